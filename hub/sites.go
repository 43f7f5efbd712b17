package hub

import (
	"context"
	"fmt"
	"sort"

	"github.com/hazyhaar/chatcast/siteconfig"
)

// fileSites serves the site configurations of the configuration file.
type fileSites map[string]*siteconfig.SiteConfig

func newFileSites(sites []*siteconfig.SiteConfig) fileSites {
	m := make(fileSites, len(sites))
	for _, s := range sites {
		if s == nil || s.ID == "" {
			continue
		}
		c := *s
		c.Source = "file"
		m[c.ID] = &c
	}
	return m
}

func (f fileSites) Lookup(_ context.Context, id string) (*siteconfig.SiteConfig, error) {
	c, ok := f[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

// Site returns the configuration of a site id, looked up in the store, the
// configuration file and the presets in that order. It returns nil, nil
// when none knows the id.
func (h *Hub) Site(ctx context.Context, id string) (*siteconfig.SiteConfig, error) {
	return h.sites.Lookup(ctx, id)
}

// Sites lists every known site configuration, one per id, with the same
// precedence as Site.
func (h *Hub) Sites(ctx context.Context) ([]*siteconfig.SiteConfig, error) {
	seen := make(map[string]bool)
	var out []*siteconfig.SiteConfig
	keep := func(c *siteconfig.SiteConfig) {
		if seen[c.ID] {
			return
		}
		seen[c.ID] = true
		out = append(out, c)
	}

	if h.store != nil {
		stored, err := h.store.ListSites(ctx)
		if err != nil {
			return nil, fmt.Errorf("hub: list sites: %w", err)
		}
		for _, c := range stored {
			keep(c)
		}
	}
	var fromFile []*siteconfig.SiteConfig
	for _, c := range h.fileSites {
		fromFile = append(fromFile, c)
	}
	sort.Slice(fromFile, func(i, j int) bool { return fromFile[i].ID < fromFile[j].ID })
	for _, c := range fromFile {
		keep(c)
	}
	for _, c := range siteconfig.Presets() {
		keep(c)
	}
	return out, nil
}

// PutSite sanitises, validates and stores a site configuration. Selector
// problems come back as warnings; they never block saving. Open pages of
// the site pick up the change on their next send.
func (h *Hub) PutSite(ctx context.Context, c *siteconfig.SiteConfig) ([]string, error) {
	if h.store == nil {
		return nil, ErrNoStore
	}
	c.Sanitize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := h.store.PutSite(ctx, c); err != nil {
		return nil, fmt.Errorf("hub: put site: %w", err)
	}
	h.reloadSite(c.ID)
	h.logger.Info("hub: site config saved", "site", c.ID)
	return c.Warnings(), nil
}

// DeleteSite removes a stored configuration. A preset or file entry for
// the same id takes over again.
func (h *Hub) DeleteSite(ctx context.Context, id string) (bool, error) {
	if h.store == nil {
		return false, ErrNoStore
	}
	ok, err := h.store.DeleteSite(ctx, id)
	if err != nil {
		return false, fmt.Errorf("hub: delete site: %w", err)
	}
	if ok {
		h.reloadSite(id)
	}
	return ok, nil
}

func (h *Hub) reloadSite(id string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, e := range h.entries {
		if e.coord != nil && e.coord.SiteID() == id {
			e.coord.Reload()
		}
	}
}
