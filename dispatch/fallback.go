package dispatch

import (
	"context"
	"sort"

	"github.com/hazyhaar/chatcast/outcome"
	"github.com/hazyhaar/chatcast/resolve"
)

// fallback is one step of the chain used when no send control resolves.
type fallback struct {
	name     string
	priority int
	run      func(ctx context.Context, e *Engine, att *outcome.Attempt, tgt Target, pol Policy) bool
}

var fallbacks = sortedFallbacks([]fallback{
	{name: ActionEnter, priority: 10, run: func(_ context.Context, e *Engine, att *outcome.Attempt, tgt Target, _ Policy) bool {
		return e.enter(att, tgt.Input, false)
	}},
	{name: ActionCtrlEnter, priority: 8, run: func(_ context.Context, e *Engine, att *outcome.Attempt, tgt Target, _ Policy) bool {
		return e.enter(att, tgt.Input, true)
	}},
	{name: ActionFormSubmit, priority: 7, run: func(_ context.Context, e *Engine, att *outcome.Attempt, tgt Target, _ Policy) bool {
		return e.formSubmit(att, tgt.Input)
	}},
	{name: ActionRetryClick, priority: 5, run: retryClick},
})

func sortedFallbacks(fs []fallback) []fallback {
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].priority > fs[j].priority })
	return fs
}

// runChain executes every fallback in priority order. A step firing does
// not stop the chain; the result is whether any step fired.
func (e *Engine) runChain(ctx context.Context, att *outcome.Attempt, tgt Target, pol Policy) bool {
	fired := false
	for i, f := range fallbacks {
		if i > 0 {
			if err := sleep(ctx, pol.ChainGap); err != nil {
				break
			}
		}
		if f.run(ctx, e, att, tgt, pol) {
			fired = true
		} else {
			e.logger.Debug("dispatch: fallback did not fire", "fallback", f.name, "hostname", att.Hostname)
		}
	}
	return fired
}

// retryClick waits for late-rendered controls and resolves the send
// control once more.
func retryClick(ctx context.Context, e *Engine, att *outcome.Attempt, tgt Target, pol Policy) bool {
	if err := sleep(ctx, pol.RetryDelay); err != nil {
		return false
	}
	btn := e.resolver.Resolve(ctx, tgt.Doc, resolve.RoleSend, tgt.SendSelector, tgt.Input)
	if !btn.Found() || btn.Element.Disabled() {
		return false
	}
	return e.click(att, btn.Element, ActionRetryClick)
}
