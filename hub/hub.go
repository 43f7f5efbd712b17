// Package hub keeps a set of chat pages open and broadcasts text to all of
// them. Each open page gets a Coordinator registered on the connectivity
// router as "chatcast_fill_and_send.<target id>", so a page hosted by a
// remote agent is addressed exactly like a local one.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/chatcast/connectivity"
	"github.com/hazyhaar/chatcast/coordinator"
	"github.com/hazyhaar/chatcast/dispatch"
	"github.com/hazyhaar/chatcast/dom"
	"github.com/hazyhaar/chatcast/hub/internal/config"
	"github.com/hazyhaar/chatcast/hub/internal/sink"
	"github.com/hazyhaar/chatcast/hub/internal/store"
	"github.com/hazyhaar/chatcast/idgen"
	"github.com/hazyhaar/chatcast/outcome"
	"github.com/hazyhaar/chatcast/probe"
	"github.com/hazyhaar/chatcast/resolve"
	"github.com/hazyhaar/chatcast/siteconfig"
)

// ServicePrefix prefixes the per-target connectivity service.
const ServicePrefix = "chatcast_fill_and_send."

var (
	// ErrEmptyText is returned when a broadcast carries no text.
	ErrEmptyText = errors.New("hub: empty text")
	// ErrUnknownTarget is returned for an id the hub does not know.
	ErrUnknownTarget = errors.New("hub: unknown target")
	// ErrNotOpen is returned when a target has no open page.
	ErrNotOpen = errors.New("hub: target not open")
	// ErrNoStore is returned by operations that persist when the hub runs
	// without a database.
	ErrNoStore = errors.New("hub: no store configured")
)

// Page is one open chat page.
type Page interface {
	Document() dom.Document
	HTML(ctx context.Context) (string, error)
	URL() string
	Closed() bool
	Close() error
}

// Opener opens the page of a target.
type Opener interface {
	Open(ctx context.Context, t Target) (Page, error)
}

// Target is a chat site the hub keeps open.
type Target struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

// TargetStatus is a target with its page state.
type TargetStatus struct {
	Target
	Open     bool      `json:"open"`
	TabID    string    `json:"tabId,omitempty"`
	Hostname string    `json:"hostname,omitempty"`
	SiteID   string    `json:"siteConfigId,omitempty"`
	InFlight bool      `json:"inFlight"`
	LastSend time.Time `json:"lastSend,omitzero"`
	Error    string    `json:"error,omitempty"`
}

// OpenResult is the outcome of opening one target.
type OpenResult struct {
	SiteID   string `json:"siteId"`
	TabID    string `json:"tabId,omitempty"`
	SiteName string `json:"siteName"`
	Error    string `json:"error,omitempty"`
}

// SendResult is one target's answer to a broadcast.
type SendResult struct {
	SiteID    string `json:"siteId"`
	TabID     string `json:"tabId,omitempty"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	AttemptID string `json:"attemptId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Broadcast is the aggregated result of SendToAll. Success is true when at
// least one target sent.
type Broadcast struct {
	ID      string       `json:"id"`
	Success bool         `json:"success"`
	Results []SendResult `json:"results"`
	Error   string       `json:"error,omitempty"`
}

type entry struct {
	target Target
	page   Page
	coord  *coordinator.Coordinator
	tabID  string
	err    string
}

// Hub owns the targets, their pages and their coordinators.
type Hub struct {
	cfg      *config.Config
	opener   Opener
	store    *store.Store
	sinks    *sink.Router
	router   *connectivity.Router
	feed     *Feed
	prober   *probe.Prober
	resolver *resolve.Resolver
	sites    siteconfig.Source
	logger   *slog.Logger

	fileSites fileSites

	newTabID       idgen.Generator
	newAttemptID   idgen.Generator
	newBroadcastID idgen.Generator

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// Option configures a Hub.
type Option func(*Hub)

// WithOpener sets how pages are opened. Without one, Open fails.
func WithOpener(o Opener) Option { return func(h *Hub) { h.opener = o } }

// WithStore persists sites, targets and attempts.
func WithStore(s *store.Store) Option { return func(h *Hub) { h.store = s } }

// WithSinks adds attempt and diagnosis sinks.
func WithSinks(sinks ...sink.Sink) Option {
	return func(h *Hub) {
		for _, s := range sinks {
			h.sinks.Add(s)
		}
	}
}

// WithRouter sets the connectivity router. Default: a fresh one.
func WithRouter(r *connectivity.Router) Option { return func(h *Hub) { h.router = r } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(h *Hub) { h.logger = l } }

// WithIDGenerator sets one generator for tab, attempt and broadcast ids.
func WithIDGenerator(g idgen.Generator) Option {
	return func(h *Hub) {
		h.newTabID = idgen.Prefixed("tab_", g)
		h.newAttemptID = idgen.Prefixed("att_", g)
		h.newBroadcastID = idgen.Prefixed("bc_", g)
	}
}

// New builds a hub from cfg and loads its targets: the configured ones,
// then the stored ones, a stored target replacing a configured one with
// the same id. No page is opened.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Hub, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	h := &Hub{
		cfg:            cfg,
		entries:        make(map[string]*entry),
		newTabID:       idgen.Prefixed("tab_", idgen.Default),
		newAttemptID:   idgen.Prefixed("att_", idgen.Default),
		newBroadcastID: idgen.Prefixed("bc_", idgen.Default),
	}
	h.sinks = sink.NewRouter(nil)
	for _, o := range opts {
		o(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.router == nil {
		h.router = connectivity.New(connectivity.WithLogger(h.logger))
	}
	h.resolver = resolve.New(resolve.WithLogger(h.logger))
	h.prober = probe.New(probe.WithResolver(h.resolver), probe.WithLogger(h.logger))
	h.feed = NewFeed(h, h.logger)
	h.sinks.Add(h.feed)
	h.RegisterConnectivity(h.router)

	chain := siteconfig.Chain{}
	if h.store != nil {
		chain = append(chain, h.store)
	}
	h.fileSites = newFileSites(cfg.Sites)
	chain = append(chain, h.fileSites, siteconfig.PresetSource{})
	h.sites = chain

	for _, tc := range cfg.Targets {
		h.add(Target{ID: tc.ID, Name: tc.Name, URL: tc.URL, Enabled: tc.IsEnabled()})
	}
	if h.store != nil {
		stored, err := h.store.ListTargets(ctx, false)
		if err != nil {
			return nil, fmt.Errorf("hub: load targets: %w", err)
		}
		for _, t := range stored {
			h.add(Target{ID: t.ID, Name: t.Name, URL: t.URL, Enabled: t.Enabled})
		}
	}
	return h, nil
}

// add inserts or replaces a target definition, keeping an open page.
func (h *Hub) add(t Target) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.entries[t.ID]; ok {
		e.target = t
		return
	}
	h.entries[t.ID] = &entry{target: t}
	h.order = append(h.order, t.ID)
}

// Router is the connectivity router the coordinators are registered on.
func (h *Hub) Router() *connectivity.Router { return h.router }

// Feed is the WebSocket feed.
func (h *Hub) Feed() *Feed { return h.feed }

// Sinks is the fan-out router every attempt goes through.
func (h *Hub) Sinks() *sink.Router { return h.sinks }

// Targets lists every known target in registration order.
func (h *Hub) Targets() []TargetStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]TargetStatus, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, status(h.entries[id]))
	}
	return out
}

// Target returns one target's status.
func (h *Hub) Target(id string) (TargetStatus, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entries[id]
	if !ok {
		return TargetStatus{}, fmt.Errorf("%w: %s", ErrUnknownTarget, id)
	}
	return status(e), nil
}

func status(e *entry) TargetStatus {
	s := TargetStatus{Target: e.target, Error: e.err}
	if host, _, err := siteconfig.IDFromURL(e.target.URL); err == nil {
		s.Hostname = host
	}
	if e.coord != nil {
		s.Open = true
		s.TabID = e.tabID
		s.SiteID = e.coord.SiteID()
		s.InFlight = e.coord.Gate().InFlight()
		s.LastSend = e.coord.Gate().LastSend()
	}
	return s
}

// OpenAll opens every enabled target that has no page yet.
func (h *Hub) OpenAll(ctx context.Context) []OpenResult {
	var results []OpenResult
	for _, t := range h.Targets() {
		if !t.Enabled {
			continue
		}
		st, err := h.Open(ctx, t.ID)
		r := OpenResult{SiteID: t.ID, SiteName: t.Name, TabID: st.TabID}
		if err != nil {
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	h.feed.Publish("targets", h.Targets())
	return results
}

// Open opens the page of one target and registers its coordinator. An
// already open target is returned as is.
func (h *Hub) Open(ctx context.Context, id string) (TargetStatus, error) {
	h.mu.RLock()
	e, ok := h.entries[id]
	var t Target
	open := false
	if ok {
		t, open = e.target, e.coord != nil
	}
	h.mu.RUnlock()
	if !ok {
		return TargetStatus{}, fmt.Errorf("%w: %s", ErrUnknownTarget, id)
	}
	if open {
		return h.Target(id)
	}
	if h.opener == nil {
		return TargetStatus{}, errors.New("hub: no opener configured")
	}

	page, err := h.opener.Open(ctx, t)
	if err != nil {
		h.setError(id, err.Error())
		h.logger.Warn("hub: open target failed", "target", id, "url", t.URL, "error", err)
		return TargetStatus{}, fmt.Errorf("hub: open %s: %w", id, err)
	}

	hostname, _, err := siteconfig.IDFromURL(page.URL())
	if err != nil {
		hostname, _, _ = siteconfig.IDFromURL(t.URL)
	}
	siteID := siteconfig.NormalizeID(hostname)
	coord := coordinator.New(coordinator.Config{
		TargetID: id,
		Hostname: hostname,
		Doc:      page.Document(),
		Sites:    h.sites,
		Policy:   h.policyFor(siteID),
		Resolver: h.resolver,
		Reporter: h.sinks,
		Logger:   h.logger.With("target", id),
		NewID:    h.newAttemptID,
	})

	h.mu.Lock()
	e, ok = h.entries[id]
	if !ok || e.coord != nil {
		// Removed or opened concurrently.
		h.mu.Unlock()
		page.Close()
		return h.Target(id)
	}
	e.page, e.coord, e.tabID, e.err = page, coord, h.newTabID(), ""
	h.mu.Unlock()

	h.router.RegisterLocal(ServicePrefix+id, coord.Handle)
	h.logger.Info("hub: target opened", "target", id, "hostname", hostname, "site", siteID)
	return h.Target(id)
}

func (h *Hub) setError(id, msg string) {
	h.mu.Lock()
	if e, ok := h.entries[id]; ok {
		e.err = msg
	}
	h.mu.Unlock()
}

func (h *Hub) policyFor(siteID string) dispatch.Policy {
	return h.cfg.PolicyFor(siteID)
}

// Close closes the page of one target. The target stays known.
func (h *Hub) Close(id string) error {
	h.mu.Lock()
	e, ok := h.entries[id]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTarget, id)
	}
	page := e.page
	e.page, e.coord, e.tabID = nil, nil, ""
	h.mu.Unlock()

	h.router.UnregisterLocal(ServicePrefix + id)
	if page == nil {
		return nil
	}
	h.logger.Info("hub: target closed", "target", id)
	if err := page.Close(); err != nil {
		return fmt.Errorf("hub: close %s: %w", id, err)
	}
	return nil
}

// CloseAll closes every open page.
func (h *Hub) CloseAll() error {
	var firstErr error
	for _, t := range h.Targets() {
		if !t.Open {
			continue
		}
		if err := h.Close(t.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Register adds a target at runtime, persists it when a store is
// configured and opens it when enabled. An empty id is derived from the URL.
func (h *Hub) Register(ctx context.Context, t Target) (TargetStatus, error) {
	t.URL = strings.TrimSpace(t.URL)
	if t.URL == "" {
		return TargetStatus{}, errors.New("hub: register: url is required")
	}
	_, derived, err := siteconfig.IDFromURL(t.URL)
	if err != nil {
		return TargetStatus{}, fmt.Errorf("hub: register: %w", err)
	}
	if t.ID == "" {
		t.ID = derived
	}
	if t.Name == "" {
		t.Name = t.ID
	}

	if h.store != nil {
		if err := h.store.PutTarget(ctx, &store.Target{ID: t.ID, Name: t.Name, URL: t.URL, Enabled: t.Enabled}); err != nil {
			return TargetStatus{}, fmt.Errorf("hub: register: %w", err)
		}
	}
	h.add(t)
	h.logger.Info("hub: target registered", "target", t.ID, "url", t.URL)

	defer h.feed.Publish("targets", h.Targets())
	if !t.Enabled {
		return h.Target(t.ID)
	}
	return h.Open(ctx, t.ID)
}

// Remove closes a target and forgets it, deleting its stored definition.
// A target from the configuration file returns on the next start.
func (h *Hub) Remove(ctx context.Context, id string) error {
	if err := h.Close(id); err != nil && !errors.Is(err, ErrUnknownTarget) {
		return err
	}
	h.mu.Lock()
	_, ok := h.entries[id]
	delete(h.entries, id)
	h.order = slices.DeleteFunc(h.order, func(s string) bool { return s == id })
	h.mu.Unlock()

	stored := false
	if h.store != nil {
		var err error
		if stored, err = h.store.DeleteTarget(ctx, id); err != nil {
			return fmt.Errorf("hub: remove %s: %w", id, err)
		}
	}
	if !ok && !stored {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, id)
	}
	h.feed.Publish("targets", h.Targets())
	return nil
}

// pruneClosed drops pages the user closed behind the hub's back.
func (h *Hub) pruneClosed() {
	for _, t := range h.Targets() {
		if !t.Open {
			continue
		}
		h.mu.RLock()
		e := h.entries[t.ID]
		closed := e != nil && e.page != nil && e.page.Closed()
		h.mu.RUnlock()
		if closed {
			h.logger.Info("hub: page gone, dropping", "target", t.ID)
			h.Close(t.ID)
		}
	}
}

// reachable lists the targets a broadcast goes to: every known target
// whose service the router can call, local or remote.
func (h *Hub) reachable() []TargetStatus {
	services := make(map[string]bool)
	for _, s := range h.router.Services() {
		services[s] = true
	}
	var out []TargetStatus
	for _, t := range h.Targets() {
		if services[ServicePrefix+t.ID] {
			out = append(out, t)
		}
	}
	return out
}

// SendToAll fills and submits text on every reachable target concurrently.
func (h *Hub) SendToAll(ctx context.Context, text string) (*Broadcast, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	h.pruneClosed()

	b := &Broadcast{ID: h.newBroadcastID()}
	targets := h.reachable()
	if len(targets) == 0 {
		b.Error = "no open targets"
		b.Results = []SendResult{}
		return b, nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.SendTimeout)
	defer cancel()

	b.Results = make([]SendResult, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Results[i] = h.send(ctx, t, text)
		}()
	}
	wg.Wait()

	sent := 0
	for _, r := range b.Results {
		if r.Success {
			sent++
		}
	}
	b.Success = sent > 0
	h.logger.Info("hub: broadcast done", "id", b.ID, "targets", len(targets), "sent", sent)
	h.feed.Publish("broadcast", b)
	return b, nil
}

// Send fills and submits text on one target.
func (h *Hub) Send(ctx context.Context, id, text string) (SendResult, error) {
	if strings.TrimSpace(text) == "" {
		return SendResult{}, ErrEmptyText
	}
	t, err := h.Target(id)
	if err != nil {
		return SendResult{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.SendTimeout)
	defer cancel()
	return h.send(ctx, t, text), nil
}

func (h *Hub) send(ctx context.Context, t TargetStatus, text string) SendResult {
	r := SendResult{SiteID: t.ID, TabID: t.TabID}
	payload, _ := json.Marshal(coordinator.Request{Action: coordinator.ActionFillAndSend, Text: text})
	out, err := h.router.Call(ctx, ServicePrefix+t.ID, payload)
	if err != nil {
		var nf *connectivity.ErrServiceNotFound
		if errors.As(err, &nf) {
			r.Error = ErrNotOpen.Error()
		} else {
			r.Error = err.Error()
		}
		return r
	}
	if len(out) == 0 {
		r.Error = "no response from route"
		return r
	}
	var resp coordinator.Response
	if err := json.Unmarshal(out, &resp); err != nil {
		r.Error = fmt.Sprintf("decode response: %v", err)
		return r
	}
	r.Success, r.Message, r.AttemptID = resp.Success, resp.Message, resp.AttemptID
	if !resp.Success {
		r.Error = resp.Message
	}
	return r
}

// Probe diagnoses the open page of a target and delivers the diagnosis to
// the sinks.
func (h *Hub) Probe(ctx context.Context, id string) (*outcome.Diagnosis, error) {
	h.mu.RLock()
	e, ok := h.entries[id]
	var page Page
	var coord *coordinator.Coordinator
	if ok {
		page, coord = e.page, e.coord
	}
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, id)
	}
	if page == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotOpen, id)
	}
	return h.diagnose(ctx, page, coord.Site(ctx)), nil
}

func (h *Hub) diagnose(ctx context.Context, page Page, site *siteconfig.SiteConfig) *outcome.Diagnosis {
	html, err := page.HTML(ctx)
	if err != nil {
		h.logger.Debug("hub: probe without html", "url", page.URL(), "error", err)
	}
	d := h.prober.Diagnose(ctx, probe.Page{
		URL:  page.URL(),
		Doc:  page.Document(),
		HTML: html,
		Site: site,
	})
	h.sinks.SendDiagnosis(ctx, d)
	return d
}

// siteForURL looks up the configuration of pageURL's host; nil when none
// or when the URL has no host.
func (h *Hub) siteForURL(ctx context.Context, pageURL string) *siteconfig.SiteConfig {
	_, id, err := siteconfig.IDFromURL(pageURL)
	if err != nil {
		return nil
	}
	site, err := h.sites.Lookup(ctx, id)
	if err != nil {
		h.logger.Warn("hub: site lookup failed", "site", id, "error", err)
	}
	return site
}

// Shutdown closes every page, sink and remote handler. The store is left
// to its owner.
func (h *Hub) Shutdown() error {
	err := h.CloseAll()
	if serr := h.sinks.Close(); serr != nil && err == nil {
		err = serr
	}
	if rerr := h.router.Close(); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

// ProbeURL fetches pageURL over HTTP and diagnoses the static HTML against
// the configuration of its host.
func (h *Hub) ProbeURL(ctx context.Context, pageURL string) (*outcome.Diagnosis, error) {
	if _, _, err := siteconfig.IDFromURL(pageURL); err != nil {
		return nil, fmt.Errorf("hub: probe: %w", err)
	}
	d, err := h.prober.FetchAndDiagnose(ctx, pageURL, h.siteForURL(ctx, pageURL))
	if err != nil {
		return nil, err
	}
	h.sinks.SendDiagnosis(ctx, d)
	return d, nil
}
