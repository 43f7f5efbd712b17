package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/chatcast/dbopen"
	"github.com/hazyhaar/chatcast/siteconfig"
)

const siteColumns = `id, name, input_selector, send_button_selector, prefer_enter, version, notes`

// PutSite inserts or replaces a site configuration. The caller sanitises
// and validates first.
func (s *Store) PutSite(ctx context.Context, c *siteconfig.SiteConfig) error {
	var prefer sql.NullBool
	if c.PreferEnter != nil {
		prefer = sql.NullBool{Bool: *c.PreferEnter, Valid: true}
	}
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO site_configs (`+siteColumns+`, updated_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, input_selector=excluded.input_selector,
			send_button_selector=excluded.send_button_selector,
			prefer_enter=excluded.prefer_enter, version=excluded.version,
			notes=excluded.notes, updated_at=excluded.updated_at`,
		c.ID, c.Name, c.InputSelector, c.SendButtonSelector, prefer, c.Version, c.Notes,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: put site %s: %w", c.ID, err)
	}
	return nil
}

// GetSite returns the stored configuration for id, or nil.
func (s *Store) GetSite(ctx context.Context, id string) (*siteconfig.SiteConfig, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM site_configs WHERE id = ?`, id)
	c, err := scanSite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get site %s: %w", id, err)
	}
	return c, nil
}

// ListSites returns every stored configuration ordered by id.
func (s *Store) ListSites(ctx context.Context) ([]*siteconfig.SiteConfig, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+siteColumns+` FROM site_configs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list sites: %w", err)
	}
	defer rows.Close()

	var out []*siteconfig.SiteConfig
	for rows.Next() {
		c, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan site: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteSite removes a stored configuration. It reports whether a row existed.
func (s *Store) DeleteSite(ctx context.Context, id string) (bool, error) {
	res, err := dbopen.Exec(ctx, s.DB, `DELETE FROM site_configs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete site %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Lookup implements siteconfig.Source.
func (s *Store) Lookup(ctx context.Context, id string) (*siteconfig.SiteConfig, error) {
	return s.GetSite(ctx, id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSite(r scanner) (*siteconfig.SiteConfig, error) {
	c := &siteconfig.SiteConfig{Source: "stored"}
	var prefer sql.NullBool
	if err := r.Scan(&c.ID, &c.Name, &c.InputSelector, &c.SendButtonSelector, &prefer, &c.Version, &c.Notes); err != nil {
		return nil, err
	}
	if prefer.Valid {
		c.PreferEnter = siteconfig.Bool(prefer.Bool)
	}
	return c, nil
}
