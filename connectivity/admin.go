package connectivity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Admin edits the routes table. Watch picks up every change.
type Admin struct {
	db *sql.DB
}

// NewAdmin creates an Admin over a database with Schema applied.
func NewAdmin(db *sql.DB) *Admin {
	return &Admin{db: db}
}

// RouteRow is one row of the routes table.
type RouteRow struct {
	Service   string          `json:"service"`
	Strategy  string          `json:"strategy"`
	Endpoint  string          `json:"endpoint,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
	UpdatedAt int64           `json:"updated_at"`
}

// ListRoutes returns all routes ordered by service.
func (a *Admin) ListRoutes(ctx context.Context) ([]RouteRow, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT service_name, strategy, COALESCE(endpoint, ''), COALESCE(config, '{}'), updated_at FROM routes ORDER BY service_name`)
	if err != nil {
		return nil, fmt.Errorf("connectivity: list routes: %w", err)
	}
	defer rows.Close()

	var out []RouteRow
	for rows.Next() {
		var r RouteRow
		var cfg string
		if err := rows.Scan(&r.Service, &r.Strategy, &r.Endpoint, &cfg, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("connectivity: scan route: %w", err)
		}
		r.Config = json.RawMessage(cfg)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRoute returns one route, or nil.
func (a *Admin) GetRoute(ctx context.Context, service string) (*RouteRow, error) {
	var r RouteRow
	var cfg string
	err := a.db.QueryRowContext(ctx,
		`SELECT service_name, strategy, COALESCE(endpoint, ''), COALESCE(config, '{}'), updated_at FROM routes WHERE service_name = ?`,
		service).Scan(&r.Service, &r.Strategy, &r.Endpoint, &cfg, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connectivity: get route: %w", err)
	}
	r.Config = json.RawMessage(cfg)
	return &r, nil
}

// SetRoute inserts or replaces the route of service.
func (a *Admin) SetRoute(ctx context.Context, service, strategy, endpoint string, config json.RawMessage) error {
	switch strategy {
	case "local", "noop":
	case "http":
		if endpoint == "" {
			return fmt.Errorf("connectivity: http route %s needs an endpoint", service)
		}
	default:
		return fmt.Errorf("connectivity: unknown strategy %q", strategy)
	}
	if len(config) == 0 {
		config = json.RawMessage(`{}`)
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO routes (service_name, strategy, endpoint, config)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(service_name) DO UPDATE SET
		     strategy = excluded.strategy,
		     endpoint = excluded.endpoint,
		     config   = excluded.config`,
		service, strategy, endpoint, string(config))
	if err != nil {
		return fmt.Errorf("connectivity: set route: %w", err)
	}
	return nil
}

// DeleteRoute removes a route; the service falls back to its local handler.
func (a *Admin) DeleteRoute(ctx context.Context, service string) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM routes WHERE service_name = ?`, service)
	if err != nil {
		return fmt.Errorf("connectivity: delete route: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("connectivity: route %q not found", service)
	}
	return nil
}
