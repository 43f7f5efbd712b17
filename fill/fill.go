// Package fill writes text into a resolved input so the page's framework
// treats it as typed by the user. The strategy depends on the element kind;
// every strategy reports a Step, and the engine decides success by reading
// the element back.
package fill

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode"

	"github.com/hazyhaar/chatcast/dom"
	"github.com/hazyhaar/chatcast/outcome"
)

// Strategy names.
const (
	NativeSetter = "native-setter"
	DirectAssign = "direct-assign"
	TextNode     = "text-node"
	EditorAPI    = "editor-api"
	GenericValue = "generic-value"
	GenericText  = "generic-text"
)

// Step is one strategy execution.
type Step struct {
	Strategy string `json:"strategy"`
	Error    string `json:"error,omitempty"`
}

// Result is the outcome of Fill.
type Result struct {
	OK       bool
	Kind     dom.Kind
	Strategy string
	Observed string
	Steps    []Step
	Reason   outcome.Reason
}

// Engine fills inputs. It holds no per-page state.
type Engine struct {
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Fill replaces the content of el with text. kind may be nil, in which case
// el is classified here. Filling twice leaves text present once.
func (e *Engine) Fill(ctx context.Context, el dom.Element, kind dom.Kind, text string) Result {
	if kind == nil {
		kind = dom.Classify(el)
	}
	res := Result{Kind: kind}
	if err := ctx.Err(); err != nil {
		res.Reason = outcome.Cancelled
		return res
	}

	e.quiet("focus", el.Focus())
	e.quiet("click", el.Click())

	switch k := kind.(type) {
	case dom.NativeControl:
		e.fillNative(el, text, &res)
	case dom.ContentEditable:
		e.fillEditable(el, text, &res)
	case dom.RichEditor:
		e.fillEditable(el, text, &res)
		if k.API {
			e.try(&res, EditorAPI, el.EditorSetText(k.Editor, text))
		}
	default:
		e.fillUnknown(el, text, &res)
	}

	res.Observed = observed(el)
	res.OK = Matches(res.Observed, text)
	if !res.OK {
		res.Reason = outcome.FillFailure
		e.logger.Debug("fill: content not observed", "kind", kind.String(), "steps", len(res.Steps))
		return res
	}
	for _, s := range res.Steps {
		if s.Error == "" {
			res.Strategy = s.Strategy
			break
		}
	}
	return res
}

func (e *Engine) fillNative(el dom.Element, text string, res *Result) {
	if e.try(res, NativeSetter, el.SetValue(text, true)) && Matches(observed(el), text) {
		e.notify(el, text, true)
		return
	}
	e.try(res, DirectAssign, el.SetValue(text, false))
	e.notify(el, text, true)
}

func (e *Engine) fillEditable(el dom.Element, text string, res *Result) {
	if e.try(res, TextNode, el.ReplaceText(text)) {
		e.quiet("collapse selection", el.CollapseSelectionToEnd())
	}
	e.notify(el, text, false)
}

func (e *Engine) fillUnknown(el dom.Element, text string, res *Result) {
	if _, ok := el.Value(); ok {
		e.try(res, GenericValue, el.SetValue(text, false))
	} else {
		e.try(res, GenericText, el.ReplaceText(text))
	}
	e.notify(el, text, false)
}

// notify dispatches the events frameworks listen to for typed input.
func (e *Engine) notify(el dom.Element, text string, keyup bool) {
	e.quiet("input event", el.Dispatch(dom.Input(text)))
	e.quiet("change event", el.Dispatch(dom.Plain("change")))
	if keyup {
		e.quiet("keyup event", el.Dispatch(dom.Event{Class: dom.ClassKeyboard, Type: "keyup", Bubbles: true, Cancelable: true}))
	}
}

func (e *Engine) try(res *Result, strategy string, err error) bool {
	step := Step{Strategy: strategy}
	if err != nil {
		step.Error = err.Error()
		if !errors.Is(err, dom.ErrNotSupported) && !errors.Is(err, dom.ErrNoEditorAPI) {
			e.logger.Debug("fill: strategy failed", "strategy", strategy, "error", err)
		}
	}
	res.Steps = append(res.Steps, step)
	return err == nil
}

func (e *Engine) quiet(op string, err error) {
	if err != nil {
		e.logger.Debug("fill: "+op+" failed", "error", err)
	}
}

func observed(el dom.Element) string {
	if v, ok := el.Value(); ok {
		return v
	}
	return el.Text()
}

// Matches reports whether shown is text as rendered. Whitespace is ignored
// because editors re-flow newlines into block elements.
func Matches(shown, text string) bool {
	return stripSpace(shown) == stripSpace(text)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// Current returns what el currently shows.
func Current(el dom.Element) string { return observed(el) }
