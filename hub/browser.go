package hub

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/chatcast/dom"
	"github.com/hazyhaar/chatcast/internal/browser"
	"github.com/hazyhaar/chatcast/outcome"
)

// BrowserOpener opens targets as Chrome tabs. A tab the user already has
// open on the target's host is adopted instead of opening a new one, so a
// session logged in by hand is reused.
type BrowserOpener struct {
	mgr *browser.Manager
	// ctx bounds every DOM call of the opened pages; it outlives requests.
	ctx context.Context
}

// NewBrowserOpener creates an opener over a started Manager. Pages opened
// through it stay usable until ctx ends.
func NewBrowserOpener(ctx context.Context, mgr *browser.Manager) *BrowserOpener {
	return &BrowserOpener{mgr: mgr, ctx: ctx}
}

func (o *BrowserOpener) Open(ctx context.Context, t Target) (Page, error) {
	tab, err := browser.AdoptTab(o.mgr, t.URL, t.ID)
	if err != nil {
		return nil, err
	}
	if tab == nil {
		if tab, err = browser.OpenTab(ctx, o.mgr, t.URL, t.ID); err != nil {
			return nil, err
		}
	}
	return &browserPage{tab: tab, doc: tab.Document(o.ctx)}, nil
}

type browserPage struct {
	tab *browser.Tab
	doc dom.Document
}

func (p *browserPage) Document() dom.Document { return p.doc }

func (p *browserPage) HTML(ctx context.Context) (string, error) { return p.tab.HTML(ctx) }

func (p *browserPage) URL() string { return p.tab.CurrentURL() }

func (p *browserPage) Closed() bool {
	_, err := p.tab.Page.Info()
	return err != nil
}

func (p *browserPage) Close() error { return p.tab.Close() }

// AttachRecycle keeps the hub consistent across Chrome restarts: every
// page is dropped before the old process dies and every enabled target is
// reopened in the new one.
func (h *Hub) AttachRecycle(ctx context.Context, mgr *browser.Manager) {
	mgr.SetRecycleCallback(&browser.RecycleCallback{
		BeforeRecycle: func() {
			for _, t := range h.Targets() {
				if t.Open {
					h.Close(t.ID)
				}
			}
		},
		AfterRecycle: func(_ *rod.Browser) {
			go func() {
				results := h.OpenAll(ctx)
				failed := 0
				for _, r := range results {
					if r.Error != "" {
						failed++
					}
				}
				h.logger.Info("hub: targets reopened after recycle",
					"targets", len(results), "failed", failed)
			}()
		},
	})
}

// ProbeBrowser opens pageURL in a fresh tab, diagnoses it and closes it.
func (h *Hub) ProbeBrowser(ctx context.Context, mgr *browser.Manager, pageURL string) (*outcome.Diagnosis, error) {
	tab, err := browser.OpenTab(ctx, mgr, pageURL, "probe")
	if err != nil {
		return nil, fmt.Errorf("hub: probe: %w", err)
	}
	defer tab.Close()
	return h.diagnose(ctx, &browserPage{tab: tab, doc: tab.Document(ctx)}, h.siteForURL(ctx, pageURL)), nil
}
