// Package probe diagnoses a chat page: what the resolver picks for the
// input and the send control, how the configured selectors fare, and a
// site configuration suggested from what resolved.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/chatcast/dom"
	"github.com/hazyhaar/chatcast/idgen"
	"github.com/hazyhaar/chatcast/outcome"
	"github.com/hazyhaar/chatcast/resolve"
	"github.com/hazyhaar/chatcast/siteconfig"
)

// Prober runs diagnoses.
type Prober struct {
	resolver *resolve.Resolver
	fetcher  *Fetcher
	newID    idgen.Generator
	logger   *slog.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithResolver sets the resolver under diagnosis.
func WithResolver(r *resolve.Resolver) Option { return func(p *Prober) { p.resolver = r } }

// WithFetcher sets the HTTP fetcher used by FetchAndDiagnose.
func WithFetcher(f *Fetcher) Option { return func(p *Prober) { p.fetcher = f } }

// WithIDGenerator sets the diagnosis id generator.
func WithIDGenerator(g idgen.Generator) Option { return func(p *Prober) { p.newID = g } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(p *Prober) { p.logger = l } }

// New creates a Prober.
func New(opts ...Option) *Prober {
	p := &Prober{}
	for _, o := range opts {
		o(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.resolver == nil {
		p.resolver = resolve.New(resolve.WithLogger(p.logger))
	}
	if p.fetcher == nil {
		p.fetcher = NewFetcher(WithFetchLogger(p.logger))
	}
	if p.newID == nil {
		p.newID = idgen.Prefixed("dia_", idgen.Default)
	}
	return p
}

// Page is what Diagnose looks at. HTML is optional and only feeds the
// fingerprint.
type Page struct {
	URL  string
	Doc  dom.Document
	HTML string
	Site *siteconfig.SiteConfig
}

// Diagnose resolves both roles on the page without touching it.
func (p *Prober) Diagnose(ctx context.Context, pg Page) *outcome.Diagnosis {
	d := &outcome.Diagnosis{
		ID:       p.newID(),
		URL:      pg.URL,
		ProbedAt: time.Now(),
	}
	if host, id, err := siteconfig.IDFromURL(pg.URL); err == nil {
		d.Hostname, d.SiteID = host, id
	}
	if pg.HTML != "" {
		d.Fingerprint = Fingerprint(pg.HTML)
	}

	var inputSel, sendSel string
	if pg.Site != nil {
		inputSel, sendSel = pg.Site.InputSelector, pg.Site.SendButtonSelector
		d.Warnings = append(d.Warnings, pg.Site.Warnings()...)
	}

	in := p.resolver.Resolve(ctx, pg.Doc, resolve.RoleInput, inputSel, nil)
	d.Input = p.report(pg.Doc, in, inputSel)

	var anchor dom.Element
	if in.Found() {
		anchor = in.Element
	}
	send := p.resolver.Resolve(ctx, pg.Doc, resolve.RoleSend, sendSel, anchor)
	d.Send = p.report(pg.Doc, send, sendSel)

	d.Suggested = outcome.Suggestion{
		InputSelector:      d.Input.Generated,
		SendButtonSelector: d.Send.Generated,
		PreferEnter:        !send.Found(),
	}

	d.Warnings = append(d.Warnings, warnings(d, in, send)...)
	p.logger.Debug("probe: diagnosed",
		"url", pg.URL, "input", d.Input.Selector, "send", d.Send.Selector, "warnings", len(d.Warnings))
	return d
}

func (p *Prober) report(doc dom.Document, res resolve.Result, configured string) outcome.RoleReport {
	r := outcome.RoleReport{
		Resolved:   res.Found(),
		Selector:   res.Selector,
		Source:     string(res.Source),
		Candidates: res.Candidates,
	}
	if res.Found() {
		r.Kind = res.Kind.String()
		if sel, unique := resolve.Generate(doc, res.Element); unique {
			r.Generated = sel
		}
	}
	if configured != "" {
		r.Configured = checkSelector(doc, configured)
	}
	return r
}

func checkSelector(doc dom.Document, sel string) *outcome.SelectorCheck {
	c := &outcome.SelectorCheck{Selector: sel}
	els, err := doc.QueryAll(sel)
	if err != nil {
		c.Error = err.Error()
		return c
	}
	c.Valid = true
	c.MatchCount = len(els)
	for _, el := range els {
		if dom.Visible(el) {
			c.Visible = true
			break
		}
	}
	return c
}

func warnings(d *outcome.Diagnosis, in, send resolve.Result) []string {
	var out []string
	for _, rr := range []struct {
		role string
		c    *outcome.SelectorCheck
	}{{"input", d.Input.Configured}, {"send", d.Send.Configured}} {
		role, c := rr.role, rr.c
		switch {
		case c == nil:
		case !c.Valid:
			out = append(out, fmt.Sprintf("%s: configured selector is invalid", role))
		case c.MatchCount == 0:
			out = append(out, fmt.Sprintf("%s: configured selector matches nothing", role))
		case !c.Visible:
			out = append(out, fmt.Sprintf("%s: configured selector matches only hidden elements", role))
		}
	}
	if !in.Found() {
		out = append(out, "input: "+outcome.ResolutionFailure.Message())
	} else if d.Input.Generated == "" {
		out = append(out, "input: no unique selector could be generated")
	}
	if in.Found() && !send.Found() {
		out = append(out, "send: no control found, Enter will be used")
	}
	return out
}
