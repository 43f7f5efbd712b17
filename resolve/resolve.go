// Package resolve finds the message input and the send control on a chat
// page. Resolution runs a configured selector first, then a declarative
// cascade of rules ranked by one function, and for the send control a
// geometric search around the input. It never fails with an error: a miss is
// a Result whose Reason is outcome.ResolutionFailure.
package resolve

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/hazyhaar/chatcast/dom"
	"github.com/hazyhaar/chatcast/outcome"
)

// Role is what is being resolved.
type Role string

const (
	RoleInput Role = "input"
	RoleSend  Role = "send"
)

// Source is the resolution step that produced a Result.
type Source string

const (
	SourceConfigured Source = "configured"
	SourceCascade    Source = "cascade"
	SourceProximity  Source = "proximity"
)

// DefaultMaxDepth bounds the ancestor walk of the proximity search.
const DefaultMaxDepth = 6

// Result is a resolved element. It is valid for one attempt only.
type Result struct {
	Element    dom.Element
	Kind       dom.Kind
	Selector   string
	MatchCount int
	Score      int
	Source     Source
	Reason     outcome.Reason
	// ConfigErr is set when the configured selector was malformed.
	ConfigErr  error
	Candidates []outcome.Candidate
}

// Found reports whether an element was resolved.
func (r Result) Found() bool { return r.Element != nil }

// Resolver resolves elements. It is stateless and safe for concurrent use.
type Resolver struct {
	inputRules []Rule
	sendRules  []Rule
	deny       []string
	clickable  string
	maxDepth   int
	logger     *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(r *Resolver) { r.logger = l } }

// WithInputRules replaces the input cascade.
func WithInputRules(rules []Rule) Option { return func(r *Resolver) { r.inputRules = rules } }

// WithSendRules replaces the send cascade.
func WithSendRules(rules []Rule) Option { return func(r *Resolver) { r.sendRules = rules } }

// WithDenyWords replaces the proximity deny list.
func WithDenyWords(words []string) Option { return func(r *Resolver) { r.deny = words } }

// WithMaxDepth sets how many ancestors the proximity search climbs.
func WithMaxDepth(n int) Option { return func(r *Resolver) { r.maxDepth = n } }

// New creates a Resolver with the built-in cascades.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		inputRules: InputRules,
		sendRules:  SendRules,
		deny:       DenyWords,
		clickable:  Clickable,
		maxDepth:   DefaultMaxDepth,
	}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.maxDepth <= 0 || r.maxDepth > DefaultMaxDepth {
		r.maxDepth = DefaultMaxDepth
	}
	return r
}

// Resolve finds the element for role. userSelector may be empty. anchor is
// the resolved input and is only used for the send role.
func (r *Resolver) Resolve(ctx context.Context, doc dom.Document, role Role, userSelector string, anchor dom.Element) Result {
	var res Result
	if userSelector != "" {
		if got, ok := r.configured(doc, role, userSelector, &res); ok {
			return got
		}
	}

	cands := r.rank(ctx, doc, r.rules(role), role, anchor)
	res.Candidates = reports(cands, anchor != nil)
	if len(cands) > 0 {
		best := cands[0]
		res.Element = best.el
		res.Selector = best.rule.label()
		res.MatchCount = best.count
		res.Score = best.rule.Priority
		res.Source = SourceCascade
		res.Kind = dom.Classify(best.el)
		return res
	}

	if role == RoleSend && anchor != nil && ctx.Err() == nil {
		if el, dist, ok := r.nearest(anchor); ok {
			sel, _ := Generate(doc, el)
			res.Element = el
			res.Selector = sel
			res.MatchCount = 1
			res.Source = SourceProximity
			res.Kind = dom.Classify(el)
			res.Candidates = append(res.Candidates, outcome.Candidate{
				Selector: sel, Source: string(SourceProximity), Distance: dist,
				MatchCount: 1, Unique: true, Tag: el.TagName(), Label: shortLabel(el),
			})
			return res
		}
	}

	res.Reason = outcome.ResolutionFailure
	if ctx.Err() != nil {
		res.Reason = outcome.Cancelled
	}
	return res
}

func (r *Resolver) rules(role Role) []Rule {
	if role == RoleSend {
		return r.sendRules
	}
	return r.inputRules
}

// configured applies the user selector. A configured element is accepted
// when visible, and for the input role also editable. A disabled send
// control is accepted so the dispatcher can report and route around it.
func (r *Resolver) configured(doc dom.Document, role Role, sel string, res *Result) (Result, bool) {
	els, err := doc.QueryAll(sel)
	if err != nil {
		r.logger.Debug("resolve: configured selector invalid", "role", role, "selector", sel, "error", err)
		res.ConfigErr = err
		return Result{}, false
	}
	for _, el := range els {
		if !dom.Visible(el) {
			continue
		}
		if role == RoleInput && !dom.Editable(el) {
			continue
		}
		return Result{
			Element:    el,
			Kind:       dom.Classify(el),
			Selector:   sel,
			MatchCount: len(els),
			Score:      PriorityConfigured,
			Source:     SourceConfigured,
		}, true
	}
	r.logger.Debug("resolve: configured selector unusable", "role", role, "selector", sel, "matches", len(els))
	return Result{}, false
}

type candidate struct {
	el    dom.Element
	rule  Rule
	order int
	count int
	dist  float64
}

// acceptable is the per-element gate shared by every cascade rule.
func acceptable(role Role, el, anchor dom.Element) bool {
	if !dom.Visible(el) {
		return false
	}
	switch role {
	case RoleInput:
		return dom.Editable(el)
	case RoleSend:
		if el.Disabled() {
			return false
		}
		return anchor == nil || !el.SameAs(anchor)
	}
	return false
}

// rank evaluates every rule and orders the resulting candidates: priority
// descending, then match count, then distance to anchor, then document order.
func (r *Resolver) rank(ctx context.Context, doc dom.Document, rules []Rule, role Role, anchor dom.Element) []candidate {
	var anchorRect dom.Rect
	if anchor != nil {
		anchorRect = anchor.Rect()
	}
	var cands []candidate
	for i, rule := range rules {
		if ctx.Err() != nil {
			break
		}
		els, err := doc.QueryAll(rule.Selector)
		if err != nil {
			r.logger.Debug("resolve: rule skipped", "selector", rule.Selector, "error", err)
			continue
		}
		var pick dom.Element
		count := 0
		for _, el := range els {
			if rule.Match != nil && !rule.Match(el) {
				continue
			}
			count++
			if pick == nil && acceptable(role, el, anchor) {
				pick = el
			}
		}
		if pick == nil {
			continue
		}
		c := candidate{el: pick, rule: rule, order: i, count: count}
		if anchor != nil {
			c.dist = dom.Distance(anchorRect, pick.Rect())
		}
		cands = mergeCandidate(cands, c)
	}
	sort.SliceStable(cands, func(i, j int) bool { return better(cands[i], cands[j]) })
	return cands
}

// mergeCandidate keeps one candidate per element, the better-ranked one.
func mergeCandidate(cands []candidate, c candidate) []candidate {
	for i, existing := range cands {
		if existing.el.SameAs(c.el) {
			if better(c, existing) {
				cands[i] = c
			}
			return cands
		}
	}
	return append(cands, c)
}

func better(a, b candidate) bool {
	if a.rule.Priority != b.rule.Priority {
		return a.rule.Priority > b.rule.Priority
	}
	if a.count != b.count {
		return a.count < b.count
	}
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	if !a.el.SameAs(b.el) {
		return a.el.Precedes(b.el)
	}
	return a.order < b.order
}

func reports(cands []candidate, withDistance bool) []outcome.Candidate {
	out := make([]outcome.Candidate, 0, len(cands))
	for _, c := range cands {
		rc := outcome.Candidate{
			Selector:   c.rule.label(),
			Priority:   c.rule.Priority,
			MatchCount: c.count,
			Unique:     c.count == 1,
			Source:     string(SourceCascade),
			Tag:        c.el.TagName(),
			Label:      shortLabel(c.el),
		}
		if withDistance {
			rc.Distance = c.dist
		}
		out = append(out, rc)
	}
	return out
}

func shortLabel(el dom.Element) string {
	l := strings.Join(strings.Fields(dom.Label(el)), " ")
	if r := []rune(l); len(r) > 60 {
		return string(r[:60])
	}
	return l
}
