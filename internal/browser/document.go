package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/chatcast/dom"
)

// DefaultOpTimeout bounds one element call. A page behind a modal dialog
// or a hung renderer never answers Runtime.callFunctionOn.
const DefaultOpTimeout = 5 * time.Second

// Document is a live page seen through dom.Document. Every element method
// is one Runtime.callFunctionOn round trip, bounded by the op timeout.
type Document struct {
	page      *rod.Page
	ctx       context.Context
	opTimeout time.Duration
}

var _ dom.Document = (*Document)(nil)

// NewDocument binds page to ctx; calls fail once ctx ends. Each call is
// also cut off after opTimeout (DefaultOpTimeout when zero).
func NewDocument(ctx context.Context, page *rod.Page, opTimeout time.Duration) *Document {
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	return &Document{page: page.Context(ctx), ctx: ctx, opTimeout: opTimeout}
}

// op returns a context for one call.
func (d *Document) op() (context.Context, context.CancelFunc) {
	return context.WithTimeout(d.ctx, d.opTimeout)
}

// QueryAll implements dom.Document.
func (d *Document) QueryAll(selector string) ([]dom.Element, error) {
	ctx, cancel := d.op()
	defer cancel()
	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, selectorError(selector, err)
	}
	return d.wrap(els), nil
}

// wrap rebinds elements found under an op context to the document's own.
func (d *Document) wrap(els rod.Elements) []dom.Element {
	out := make([]dom.Element, 0, len(els))
	for _, el := range els {
		out = append(out, d.element(el))
	}
	return out
}

func (d *Document) element(el *rod.Element) *Element {
	return &Element{doc: d, el: el.Context(d.ctx)}
}

func selectorError(selector string, err error) error {
	if strings.Contains(err.Error(), "is not a valid selector") {
		return fmt.Errorf("%w: %q: %v", dom.ErrInvalidSelector, selector, err)
	}
	return fmt.Errorf("browser: query %q: %w", selector, err)
}

// Element is a live DOM node.
type Element struct {
	doc *Document
	el  *rod.Element
}

var _ dom.Element = (*Element)(nil)

const (
	jsTag      = `() => this.tagName.toLowerCase()`
	jsAttr     = `(n) => this.getAttribute(n)`
	jsRect     = `() => { const r = this.getBoundingClientRect(); return {x: r.x, y: r.y, width: r.width, height: r.height}; }`
	jsDisabled = `() => !!this.disabled || this.getAttribute('aria-disabled') === 'true'`
	jsReadOnly = `() => !!this.readOnly`
	jsEditable = `() => !!this.isContentEditable`
	jsValue    = `() => ('value' in this) ? {ok: true, v: String(this.value)} : {ok: false}`
	jsText     = `() => this.textContent || ''`
	jsClosest  = `(s) => this.closest(s)`
	jsSibling  = `() => { let i = 1, s = this; while ((s = s.previousElementSibling)) i++; return i; }`
	jsPrecedes = `(o) => !!(this.compareDocumentPosition(o) & Node.DOCUMENT_POSITION_FOLLOWING)`
	jsFocus    = `() => this.focus()`
	jsClick    = `() => this.click()`

	jsSetValue = `(v, nativeSetter) => {
		if (nativeSetter) {
			const proto = this instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype
				: this instanceof HTMLInputElement ? HTMLInputElement.prototype : null;
			const desc = proto && Object.getOwnPropertyDescriptor(proto, 'value');
			if (!desc || !desc.set) throw new Error('no native value setter');
			desc.set.call(this, v);
			return;
		}
		this.value = v;
	}`

	jsReplaceText = `(t) => { this.textContent = ''; this.appendChild(document.createTextNode(t)); }`

	jsCollapse = `() => {
		const sel = window.getSelection();
		if (!sel) return;
		const range = document.createRange();
		range.selectNodeContents(this);
		range.collapse(false);
		sel.removeAllRanges();
		sel.addRange(range);
	}`

	jsDispatch = `(ev) => {
		const init = {bubbles: ev.bubbles, cancelable: ev.cancelable, composed: ev.composed};
		let e;
		switch (ev.class) {
		case 'InputEvent':
			e = new InputEvent(ev.type, Object.assign(init, {data: ev.data || null, inputType: ev.inputType || ''}));
			break;
		case 'KeyboardEvent':
			e = new KeyboardEvent(ev.type, Object.assign(init, {key: ev.key || '', code: ev.code || '',
				keyCode: ev.keyCode || 0, which: ev.keyCode || 0, ctrlKey: !!ev.ctrlKey}));
			Object.defineProperty(e, 'keyCode', {get: () => ev.keyCode || 0});
			Object.defineProperty(e, 'which', {get: () => ev.keyCode || 0});
			break;
		case 'MouseEvent':
			e = new MouseEvent(ev.type, Object.assign(init, {view: window, detail: 1}));
			break;
		case 'CompositionEvent':
			e = new CompositionEvent(ev.type, Object.assign(init, {data: ev.data || ''}));
			break;
		default:
			e = new Event(ev.type, init);
		}
		this.dispatchEvent(e);
	}`

	jsHasEditor = `(ed) => {
		if (ed === 'quill') {
			const c = this.closest('.ql-container');
			return !!(c && c.__quill);
		}
		if (ed === 'prosemirror') {
			return !!(this.pmViewDesc && this.pmViewDesc.view);
		}
		return false;
	}`

	jsEditorSetText = `(ed, t) => {
		if (ed === 'quill') {
			const c = this.closest('.ql-container');
			if (!c || !c.__quill) throw new Error('quill instance not reachable');
			c.__quill.setText(t);
			return;
		}
		if (ed === 'prosemirror') {
			const view = this.pmViewDesc && this.pmViewDesc.view;
			if (!view) throw new Error('prosemirror view not reachable');
			const s = view.state;
			view.dispatch(s.tr.insertText(t, 0, s.doc.content.size));
			return;
		}
		throw new Error('unknown editor ' + ed);
	}`

	jsSubmit = `() => {
		if (!(this instanceof HTMLFormElement)) throw new Error('not a form');
		this.submit();
	}`
)

// bound returns the element tied to a fresh op context.
func (e *Element) bound() (*rod.Element, context.CancelFunc) {
	ctx, cancel := e.doc.op()
	return e.el.Context(ctx), cancel
}

func (e *Element) eval(js string, args ...any) (*proto.RuntimeRemoteObject, error) {
	el, cancel := e.bound()
	defer cancel()
	return el.Eval(js, args...)
}

func (e *Element) run(op, js string, args ...any) error {
	if _, err := e.eval(js, args...); err != nil {
		return fmt.Errorf("browser: %s: %w", op, err)
	}
	return nil
}

func (e *Element) str(js string, args ...any) string {
	res, err := e.eval(js, args...)
	if err != nil || res.Value.Nil() {
		return ""
	}
	return res.Value.Str()
}

func (e *Element) boolean(js string, args ...any) bool {
	res, err := e.eval(js, args...)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

func (e *Element) TagName() string { return e.str(jsTag) }

func (e *Element) Attr(name string) (string, bool) {
	res, err := e.eval(jsAttr, name)
	if err != nil || res.Value.Nil() {
		return "", false
	}
	return res.Value.Str(), true
}

func (e *Element) Rect() dom.Rect {
	res, err := e.eval(jsRect)
	if err != nil {
		return dom.Rect{}
	}
	v := res.Value
	return dom.Rect{X: v.Get("x").Num(), Y: v.Get("y").Num(), Width: v.Get("width").Num(), Height: v.Get("height").Num()}
}

func (e *Element) Disabled() bool          { return e.boolean(jsDisabled) }
func (e *Element) ReadOnly() bool          { return e.boolean(jsReadOnly) }
func (e *Element) IsContentEditable() bool { return e.boolean(jsEditable) }
func (e *Element) Text() string            { return e.str(jsText) }

func (e *Element) Value() (string, bool) {
	res, err := e.eval(jsValue)
	if err != nil || !res.Value.Get("ok").Bool() {
		return "", false
	}
	return res.Value.Get("v").Str(), true
}

func (e *Element) Parent() dom.Element {
	el, cancel := e.bound()
	defer cancel()
	p, err := el.Parent()
	if err != nil || p == nil {
		return nil
	}
	parent := e.doc.element(p)
	if t := parent.str(`() => this.nodeType === 1 ? this.tagName.toLowerCase() : '#document'`); t == "" || t == "#document" {
		return nil
	}
	return parent
}

func (e *Element) Closest(selector string) dom.Element {
	ctx, cancel := e.doc.op()
	defer cancel()
	obj, err := e.el.Context(ctx).Evaluate(rod.Eval(jsClosest, selector).ByObject())
	if err != nil || obj == nil || obj.ObjectID == "" || obj.Subtype == proto.RuntimeRemoteObjectSubtypeNull {
		return nil
	}
	el, err := e.doc.page.Context(ctx).ElementFromObject(obj)
	if err != nil {
		return nil
	}
	return e.doc.element(el)
}

func (e *Element) QueryAll(selector string) ([]dom.Element, error) {
	el, cancel := e.bound()
	defer cancel()
	els, err := el.Elements(selector)
	if err != nil {
		return nil, selectorError(selector, err)
	}
	return e.doc.wrap(els), nil
}

func (e *Element) SiblingIndex() int {
	res, err := e.eval(jsSibling)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

func (e *Element) SameAs(other dom.Element) bool {
	o, ok := other.(*Element)
	if !ok || o == nil {
		return false
	}
	el, cancel := e.bound()
	defer cancel()
	eq, err := el.Equal(o.el)
	return err == nil && eq
}

func (e *Element) Precedes(other dom.Element) bool {
	o, ok := other.(*Element)
	if !ok || o == nil {
		return false
	}
	el, cancel := e.bound()
	defer cancel()
	res, err := el.Evaluate(rod.Eval(jsPrecedes, o.el.Object))
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

func (e *Element) HasEditorAPI(editor dom.Editor) bool {
	return e.boolean(jsHasEditor, string(editor))
}

func (e *Element) Focus() error { return e.run("focus", jsFocus) }
func (e *Element) Click() error { return e.run("click", jsClick) }

func (e *Element) SetValue(value string, native bool) error {
	return e.run("set value", jsSetValue, value, native)
}

func (e *Element) ReplaceText(text string) error {
	return e.run("replace text", jsReplaceText, text)
}

func (e *Element) CollapseSelectionToEnd() error {
	return e.run("collapse selection", jsCollapse)
}

func (e *Element) Dispatch(ev dom.Event) error {
	return e.run("dispatch "+ev.Type, jsDispatch, ev)
}

func (e *Element) EditorSetText(editor dom.Editor, text string) error {
	if !e.HasEditorAPI(editor) {
		return dom.ErrNoEditorAPI
	}
	return e.run("editor set text", jsEditorSetText, string(editor), text)
}

func (e *Element) SubmitForm() error {
	if e.TagName() != "form" {
		return dom.ErrNotSupported
	}
	return e.run("submit", jsSubmit)
}

// IsDetached reports whether err means the node left the document.
func IsDetached(err error) bool {
	var nf *rod.ElementNotFoundError
	return errors.As(err, &nf) || err != nil && strings.Contains(err.Error(), "Cannot find context with specified id")
}
