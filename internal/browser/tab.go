package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/chatcast/dom"
)

// ErrNoBrowser is returned when a tab is requested before Start.
var ErrNoBrowser = errors.New("browser: no active browser")

// Tab is one chat site page.
type Tab struct {
	Page   *rod.Page
	ID     string
	URL    string
	router *rod.HijackRouter

	// opTimeout bounds each element call of Document.
	opTimeout time.Duration
}

// OpenTab creates a stealth page and navigates it to pageURL.
func OpenTab(ctx context.Context, mgr *Manager, pageURL, id string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, ErrNoBrowser
	}

	var page *rod.Page
	var err error
	if mgr.cfg.Mode == ModeHeadless {
		page, err = stealth.Page(b)
	} else {
		// A headful window is a real profile; stealth patches only add noise.
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	t := &Tab{Page: page, ID: id, URL: pageURL, opTimeout: mgr.cfg.OpTimeout}
	if len(mgr.cfg.ResourceBlocking) > 0 {
		t.router = blockResources(page, mgr.cfg.ResourceBlocking)
	}

	navCtx, cancel := context.WithTimeout(ctx, mgr.cfg.NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return t, nil
}

// AdoptTab finds an already open page whose host matches pageURL's host,
// typically one the user logged into by hand. It returns nil, nil when
// none matches.
func AdoptTab(mgr *Manager, pageURL, id string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, ErrNoBrowser
	}
	want, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("browser: adopt: %w", err)
	}
	pages, err := b.Pages()
	if err != nil {
		return nil, fmt.Errorf("browser: list pages: %w", err)
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		u, err := url.Parse(info.URL)
		if err != nil {
			continue
		}
		if strings.EqualFold(u.Hostname(), want.Hostname()) {
			return &Tab{Page: p, ID: id, URL: info.URL, opTimeout: mgr.cfg.OpTimeout}, nil
		}
	}
	return nil, nil
}

// Document returns the live DOM of the tab bound to ctx. Each element
// call also gives up after the manager's OpTimeout.
func (t *Tab) Document(ctx context.Context) dom.Document {
	return NewDocument(ctx, t.Page, t.opTimeout)
}

// HTML serialises the current DOM.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// CurrentURL reports where the page is now; chat sites rewrite the URL
// per conversation.
func (t *Tab) CurrentURL() string {
	info, err := t.Page.Info()
	if err != nil {
		return t.URL
	}
	return info.URL
}

// Close stops interception and closes the page.
func (t *Tab) Close() error {
	if t.router != nil {
		t.router.Stop()
		t.router = nil
	}
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
