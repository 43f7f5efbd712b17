package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/chatcast/dbopen"
)

// Target is a chat page registered at runtime.
type Target struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Enabled   bool   `json:"enabled"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// PutTarget inserts or updates a target, keeping its creation time.
func (s *Store) PutTarget(ctx context.Context, t *Target) error {
	now := time.Now().UnixMilli()
	if t.CreatedAt == 0 {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO targets (id, name, url, enabled, created_at, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, url=excluded.url, enabled=excluded.enabled,
			updated_at=excluded.updated_at`,
		t.ID, t.Name, t.URL, t.Enabled, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: put target %s: %w", t.ID, err)
	}
	return nil
}

// ListTargets returns targets in registration order. enabledOnly filters
// out disabled ones.
func (s *Store) ListTargets(ctx context.Context, enabledOnly bool) ([]*Target, error) {
	query := `SELECT id, name, url, enabled, created_at, updated_at FROM targets`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list targets: %w", err)
	}
	defer rows.Close()

	var out []*Target
	for rows.Next() {
		t := &Target{}
		if err := rows.Scan(&t.ID, &t.Name, &t.URL, &t.Enabled, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTarget removes a target. It reports whether a row existed.
func (s *Store) DeleteTarget(ctx context.Context, id string) (bool, error) {
	res, err := dbopen.Exec(ctx, s.DB, `DELETE FROM targets WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete target %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
