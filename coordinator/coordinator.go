// Package coordinator runs one fill-and-send on one page: load the site
// configuration, resolve the input, fill it, wait for the page to settle,
// dispatch, and report. One Coordinator exists per open page and owns that
// page's send gate.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/chatcast/dispatch"
	"github.com/hazyhaar/chatcast/dom"
	"github.com/hazyhaar/chatcast/fill"
	"github.com/hazyhaar/chatcast/idgen"
	"github.com/hazyhaar/chatcast/outcome"
	"github.com/hazyhaar/chatcast/resolve"
	"github.com/hazyhaar/chatcast/siteconfig"
)

// ActionFillAndSend is the only action a page handles.
const ActionFillAndSend = "fillAndSend"

// Request is the message a page receives.
type Request struct {
	Action string `json:"action"`
	Text   string `json:"text"`
}

// Response is what a page answers.
type Response struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	AttemptID string `json:"attemptId,omitempty"`
}

// Reporter receives every finished attempt.
type Reporter interface {
	ReportAttempt(ctx context.Context, a *outcome.Attempt)
}

// Config wires a Coordinator. Doc and Hostname are required.
type Config struct {
	TargetID   string
	Hostname   string
	Doc        dom.Document
	Sites      siteconfig.Source
	Policy     dispatch.Policy
	Resolver   *resolve.Resolver
	Filler     *fill.Engine
	Dispatcher *dispatch.Engine
	Reporter   Reporter
	Logger     *slog.Logger
	NewID      idgen.Generator
}

// Coordinator serves fill-and-send requests for one page.
type Coordinator struct {
	cfg  Config
	gate dispatch.Gate

	mu     sync.Mutex
	site   *siteconfig.SiteConfig
	loaded bool
}

// New creates a Coordinator, filling unset collaborators with defaults.
func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = resolve.New(resolve.WithLogger(cfg.Logger))
	}
	if cfg.Filler == nil {
		cfg.Filler = fill.New(fill.WithLogger(cfg.Logger))
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = dispatch.New(cfg.Resolver, dispatch.WithLogger(cfg.Logger))
	}
	if cfg.Sites == nil {
		cfg.Sites = siteconfig.PresetSource{}
	}
	if cfg.NewID == nil {
		cfg.NewID = idgen.Prefixed("att_", idgen.Default)
	}
	cfg.Policy = cfg.Policy.WithDefaults()
	return &Coordinator{cfg: cfg}
}

// SiteID is the configuration id of the page's hostname.
func (c *Coordinator) SiteID() string { return siteconfig.NormalizeID(c.cfg.Hostname) }

// Gate exposes the page's send gate.
func (c *Coordinator) Gate() *dispatch.Gate { return &c.gate }

// Reload forgets the cached site configuration.
func (c *Coordinator) Reload() {
	c.mu.Lock()
	c.site, c.loaded = nil, false
	c.mu.Unlock()
}

// Site returns the site configuration, loading it on first use. A failed
// lookup is not cached.
func (c *Coordinator) Site(ctx context.Context) *siteconfig.SiteConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.site
	}
	site, err := c.cfg.Sites.Lookup(ctx, c.SiteID())
	if err != nil {
		c.cfg.Logger.Warn("coordinator: site config lookup failed", "site", c.SiteID(), "error", err)
		return nil
	}
	c.site, c.loaded = site, true
	return site
}

// FillAndSend fills text into the page's composer and submits it.
func (c *Coordinator) FillAndSend(ctx context.Context, text string) Response {
	if strings.TrimSpace(text) == "" {
		return Response{Message: "empty text"}
	}
	att := &outcome.Attempt{
		ID:        c.cfg.NewID(),
		TargetID:  c.cfg.TargetID,
		Hostname:  c.cfg.Hostname,
		TextLen:   utf8.RuneCountInString(text),
		StartedAt: time.Now(),
	}
	defer c.report(ctx, att)

	d := c.cfg.Dispatcher
	if !d.Begin(&c.gate, att) {
		c.cfg.Logger.Info("coordinator: send rejected, attempt in flight", "hostname", c.cfg.Hostname)
		return response(att)
	}

	site := c.Site(ctx)
	var inputSel, sendSel string
	if site != nil {
		inputSel, sendSel = site.InputSelector, site.SendButtonSelector
	}

	att.Enter(outcome.PhaseResolvingInput)
	in := c.cfg.Resolver.Resolve(ctx, c.cfg.Doc, resolve.RoleInput, inputSel, nil)
	if in.ConfigErr != nil {
		c.cfg.Logger.Warn("coordinator: configured input selector invalid",
			"site", c.SiteID(), "selector", inputSel, "error", in.ConfigErr)
	}
	if !in.Found() {
		detail := ""
		if in.ConfigErr != nil {
			detail = fmt.Sprintf("%s (%s)", in.Reason.Message(), outcome.ConfigInvalid.Message())
		}
		d.Abort(&c.gate, att, in.Reason, detail)
		return response(att)
	}
	att.InputSelector = in.Selector
	att.InputKind = in.Kind.String()

	att.Enter(outcome.PhaseFilling)
	fr := c.cfg.Filler.Fill(ctx, in.Element, in.Kind, text)
	att.FillStrategy = fr.Strategy
	if !fr.OK {
		d.Abort(&c.gate, att, fr.Reason, "")
		return response(att)
	}

	tgt := dispatch.Target{
		Doc:          c.cfg.Doc,
		Input:        in.Element,
		SendSelector: sendSel,
		PreferEnter:  site.EffectivePreferEnter(),
	}
	d.AwaitReady(ctx, att, tgt, text, c.cfg.Policy)
	d.Dispatch(ctx, &c.gate, att, tgt, c.cfg.Policy)
	return response(att)
}

func response(att *outcome.Attempt) Response {
	r := Response{Success: att.Success, AttemptID: att.ID}
	if att.Success {
		r.Message = "sent via " + att.Action
	} else {
		r.Message = att.LastError
	}
	return r
}

func (c *Coordinator) report(ctx context.Context, att *outcome.Attempt) {
	c.cfg.Logger.Debug("coordinator: attempt finished",
		"id", att.ID, "hostname", att.Hostname, "success", att.Success,
		"reason", att.Reason, "action", att.Action, "duration", att.Duration())
	if c.cfg.Reporter != nil {
		c.cfg.Reporter.ReportAttempt(context.WithoutCancel(ctx), att)
	}
}

// Handle serves a JSON Request. It matches the connectivity handler shape
// so a page can be addressed through the service router.
func (c *Coordinator) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("coordinator: decode request: %w", err)
	}
	var resp Response
	if req.Action != "" && req.Action != ActionFillAndSend {
		resp = Response{Message: fmt.Sprintf("unknown action %q", req.Action)}
	} else {
		resp = c.FillAndSend(ctx, req.Text)
	}
	return json.Marshal(resp)
}
