// Package siteconfig describes how to reach the composer of one chat site:
// the optional input and send selectors a user (or a preset) pinned for its
// hostname, and whether Enter should be preferred over clicking.
package siteconfig

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/microcosm-cc/bluemonday"
)

// SiteConfig is keyed by the normalised hostname. Selectors are optional;
// empty means "let the resolver decide".
type SiteConfig struct {
	ID                 string `json:"id" yaml:"id"`
	Name               string `json:"name" yaml:"name"`
	InputSelector      string `json:"inputSelector,omitempty" yaml:"input_selector"`
	SendButtonSelector string `json:"sendButtonSelector,omitempty" yaml:"send_button_selector"`
	// PreferEnter overrides the default derived from the selectors.
	PreferEnter *bool  `json:"preferEnter,omitempty" yaml:"prefer_enter"`
	Version     string `json:"version,omitempty" yaml:"version"`
	Notes       string `json:"notes,omitempty" yaml:"notes"`
	// Source is "stored", "file" or "preset"; it is not persisted.
	Source string `json:"source,omitempty" yaml:"-"`
}

// Source is where the coordinator loads configurations from.
type Source interface {
	Lookup(ctx context.Context, id string) (*SiteConfig, error)
}

// EffectivePreferEnter is the explicit preference when set, otherwise true
// when only an input selector is configured.
func (c *SiteConfig) EffectivePreferEnter() bool {
	if c == nil {
		return false
	}
	if c.PreferEnter != nil {
		return *c.PreferEnter
	}
	return c.InputSelector != "" && c.SendButtonSelector == ""
}

// Bool returns a pointer to b, for PreferEnter literals.
func Bool(b bool) *bool { return &b }

// NormalizeID maps a hostname to a configuration id: every character that
// is not an ASCII letter or digit becomes '_'.
func NormalizeID(hostname string) string {
	var b strings.Builder
	b.Grow(len(hostname))
	for _, r := range hostname {
		if r < 0x80 && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// IDFromURL returns the hostname of rawURL and its configuration id.
func IDFromURL(rawURL string) (hostname, id string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("siteconfig: parse url: %w", err)
	}
	if u.Hostname() == "" {
		return "", "", fmt.Errorf("siteconfig: url %q has no host", rawURL)
	}
	return u.Hostname(), NormalizeID(u.Hostname()), nil
}

var textPolicy = bluemonday.StrictPolicy()

// Sanitize strips markup from the free-text fields and trims selectors.
// Name and notes end up in the HTTP API and in MCP tool output.
func (c *SiteConfig) Sanitize() {
	c.Name = strings.TrimSpace(textPolicy.Sanitize(c.Name))
	c.Notes = strings.TrimSpace(textPolicy.Sanitize(c.Notes))
	c.InputSelector = strings.TrimSpace(c.InputSelector)
	c.SendButtonSelector = strings.TrimSpace(c.SendButtonSelector)
}

// Validate checks the fields that must be present.
func (c *SiteConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("siteconfig: id is required")
	}
	if c.ID != NormalizeID(c.ID) {
		return fmt.Errorf("siteconfig: id %q is not normalised", c.ID)
	}
	return nil
}

// Warnings reports selectors that do not parse. Browsers accept syntax the
// parser does not know, so these never block saving.
func (c *SiteConfig) Warnings() []string {
	var out []string
	if err := CheckSelector(c.InputSelector); err != nil {
		out = append(out, fmt.Sprintf("inputSelector: %v", err))
	}
	if err := CheckSelector(c.SendButtonSelector); err != nil {
		out = append(out, fmt.Sprintf("sendButtonSelector: %v", err))
	}
	return out
}

// CheckSelector parses sel as a CSS selector group. Empty is valid.
func CheckSelector(sel string) error {
	if sel == "" {
		return nil
	}
	if _, err := cascadia.ParseGroup(sel); err != nil {
		return fmt.Errorf("siteconfig: selector %q: %w", sel, err)
	}
	return nil
}
