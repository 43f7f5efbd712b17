// Package dispatch submits a filled composer. An attempt moves through
//
//	IDLE -> RESOLVING_BUTTON -> DISPATCHING_{CLICK,ENTER,FORM_SUBMIT} -> WAITING_COOLDOWN -> DONE
//
// behind a per-page Gate. The caller owns the Gate and the attempt record;
// the Engine only advances them.
package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/chatcast/dom"
	"github.com/hazyhaar/chatcast/fill"
	"github.com/hazyhaar/chatcast/outcome"
	"github.com/hazyhaar/chatcast/resolve"
)

// Action names recorded on the attempt.
const (
	ActionClick      = "click"
	ActionEnter      = "enter"
	ActionCtrlEnter  = "ctrl_enter"
	ActionFormSubmit = "form_submit"
	ActionRetryClick = "retry_click"
)

// Target is the page an attempt dispatches on.
type Target struct {
	Doc          dom.Document
	Input        dom.Element
	SendSelector string
	PreferEnter  bool
}

// Engine drives the dispatch state machine.
type Engine struct {
	resolver *resolve.Resolver
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// New creates an Engine resolving send controls with r.
func New(r *resolve.Resolver, opts ...Option) *Engine {
	e := &Engine{resolver: r}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.resolver == nil {
		e.resolver = resolve.New(resolve.WithLogger(e.logger))
	}
	return e
}

// Begin is the IDLE state: it takes the gate or ends the attempt as
// ConcurrencyRejected.
func (e *Engine) Begin(gate *Gate, att *outcome.Attempt) bool {
	att.Enter(outcome.PhaseIdle)
	if gate.TryAcquire() {
		return true
	}
	att.Fail(outcome.ConcurrencyRejected, "")
	e.finish(att)
	return false
}

// Abort ends an attempt that never reached dispatch and frees the gate
// without a cool-down.
func (e *Engine) Abort(gate *Gate, att *outcome.Attempt, reason outcome.Reason, detail string) {
	att.Fail(reason, detail)
	gate.Release(time.Time{})
	e.finish(att)
}

// AwaitReady polls until the input shows text and a configured send control
// is visible and enabled, or until the policy's timeout. A timeout is not a
// failure: the attempt proceeds either way.
func (e *Engine) AwaitReady(ctx context.Context, att *outcome.Attempt, tgt Target, text string, pol Policy) bool {
	pol = pol.WithDefaults()
	att.Enter(outcome.PhaseAwaitingReady)

	deadline := time.NewTimer(pol.ReadyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(pol.PollInterval)
	defer tick.Stop()

	for {
		if e.ready(tgt, text) {
			att.Ready = true
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			e.logger.Debug("dispatch: readiness timeout", "hostname", att.Hostname, "timeout", pol.ReadyTimeout)
			return false
		case <-tick.C:
		}
	}
}

func (e *Engine) ready(tgt Target, text string) bool {
	if !fill.Matches(fill.Current(tgt.Input), text) {
		return false
	}
	if tgt.SendSelector == "" {
		return true
	}
	els, err := tgt.Doc.QueryAll(tgt.SendSelector)
	if err != nil {
		return true
	}
	for _, el := range els {
		if dom.Visible(el) && !el.Disabled() {
			return true
		}
	}
	return false
}

// Dispatch runs RESOLVING_BUTTON through DONE. It always releases the gate.
func (e *Engine) Dispatch(ctx context.Context, gate *Gate, att *outcome.Attempt, tgt Target, pol Policy) {
	pol = pol.WithDefaults()
	var sentAt time.Time
	defer func() { gate.Release(sentAt) }()

	att.Enter(outcome.PhaseResolvingButton)
	btn := e.resolver.Resolve(ctx, tgt.Doc, resolve.RoleSend, tgt.SendSelector, tgt.Input)
	if btn.Found() {
		att.SendSelector = btn.Selector
	}
	// Nothing has reached the page yet.
	if err := ctx.Err(); err != nil {
		att.Fail(outcome.Cancelled, err.Error())
		e.finish(att)
		return
	}

	var fired bool
	switch {
	case btn.Found() && !tgt.PreferEnter:
		if btn.Element.Disabled() {
			att.Enter(outcome.PhaseClick)
			att.Degraded = outcome.DispatchRejected
			e.logger.Debug("dispatch: send control disabled, using enter", "hostname", att.Hostname, "selector", btn.Selector)
			fired = e.enter(att, tgt.Input, false)
		} else {
			fired = e.click(att, btn.Element, ActionClick)
		}
	case !btn.Found() && pol.FallbackChain:
		fired = e.runChain(ctx, att, tgt, pol)
	default:
		fired = e.enter(att, tgt.Input, false)
	}

	if !fired {
		att.Fail(outcome.DispatchRejected, "no dispatch action fired")
		e.finish(att)
		return
	}
	sentAt = time.Now()
	att.DispatchedAt = sentAt
	att.Success = true

	att.Enter(outcome.PhaseCooldown)
	if err := sleep(ctx, pol.Cooldown); err != nil {
		e.logger.Debug("dispatch: cooldown interrupted", "hostname", att.Hostname, "error", err)
	} else {
		cleared := strings.TrimSpace(fill.Current(tgt.Input)) == ""
		att.InputCleared = &cleared
	}
	e.finish(att)
}

// click is DISPATCHING_CLICK: pointer sequence then the native click().
func (e *Engine) click(att *outcome.Attempt, btn dom.Element, action string) bool {
	att.Enter(outcome.PhaseClick)
	e.quiet("focus", btn.Focus())
	ok := false
	for _, typ := range []string{"mousedown", "mouseup", "click"} {
		if e.quiet(typ, btn.Dispatch(dom.Mouse(typ))) {
			ok = true
		}
	}
	if e.quiet("native click", btn.Click()) {
		ok = true
	}
	if ok {
		appendAction(att, action)
	}
	return ok
}

// enter is DISPATCHING_ENTER. compositionend and input flush any pending
// IME composition before the key sequence.
func (e *Engine) enter(att *outcome.Attempt, input dom.Element, ctrl bool) bool {
	att.Enter(outcome.PhaseEnter)
	e.quiet("focus", input.Focus())
	e.quiet("compositionend", input.Dispatch(dom.CompositionEnd("")))
	e.quiet("input", input.Dispatch(dom.Event{Class: dom.ClassInput, Type: "input", Bubbles: true, Cancelable: true, Composed: true}))
	ok := false
	for _, typ := range []string{"keydown", "keypress", "keyup"} {
		if e.quiet(typ, input.Dispatch(dom.Key(typ, ctrl))) {
			ok = true
		}
	}
	if ok {
		if ctrl {
			appendAction(att, ActionCtrlEnter)
		} else {
			appendAction(att, ActionEnter)
		}
	}
	return ok
}

// formSubmit is DISPATCHING_FORM_SUBMIT on the input's enclosing form.
func (e *Engine) formSubmit(att *outcome.Attempt, input dom.Element) bool {
	form := input.Closest("form")
	if form == nil {
		return false
	}
	att.Enter(outcome.PhaseFormSubmit)
	ok := e.quiet("submit event", form.Dispatch(dom.Plain("submit")))
	if e.quiet("native submit", form.SubmitForm()) {
		ok = true
	}
	if ok {
		appendAction(att, ActionFormSubmit)
	}
	return ok
}

func (e *Engine) finish(att *outcome.Attempt) {
	att.Enter(outcome.PhaseDone)
	att.FinishedAt = time.Now()
}

func (e *Engine) quiet(op string, err error) bool {
	if err != nil {
		e.logger.Debug("dispatch: "+op+" failed", "error", err)
		return false
	}
	return true
}

func appendAction(att *outcome.Attempt, action string) {
	if att.Action == "" {
		att.Action = action
		return
	}
	att.Action += "+" + action
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
