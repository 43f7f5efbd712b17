package snapshot

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/chatcast/dom"
)

const (
	stackWidth  = 200
	stackHeight = 20
	stackStep   = 24
)

var nonRendered = map[string]bool{
	"head": true, "script": true, "style": true, "template": true,
	"noscript": true, "meta": true, "link": true, "title": true,
}

// Element is a node of a snapshot Document.
type Element struct {
	doc *Document
	n   *html.Node

	// value holds the live value property once assigned.
	value *string
}

var _ dom.Element = (*Element)(nil)

func (e *Element) TagName() string { return e.n.Data }

func (e *Element) Attr(name string) (string, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return attr(e.n, name)
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (e *Element) Rect() dom.Rect {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for n := e.n; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if hidden(n) {
			return dom.Rect{}
		}
	}
	if v, ok := attr(e.n, "data-rect"); ok {
		if r, ok := parseRect(v); ok {
			return r
		}
	}
	return dom.Rect{
		Y:      float64(e.doc.order[e.n] * stackStep),
		Width:  stackWidth,
		Height: stackHeight,
	}
}

func hidden(n *html.Node) bool {
	if nonRendered[n.Data] {
		return true
	}
	if _, ok := attr(n, "hidden"); ok {
		return true
	}
	if t, _ := attr(n, "type"); n.Data == "input" && strings.EqualFold(t, "hidden") {
		return true
	}
	style, _ := attr(n, "style")
	style = strings.ToLower(strings.ReplaceAll(style, " ", ""))
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

func parseRect(v string) (dom.Rect, bool) {
	f := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	if len(f) != 4 {
		return dom.Rect{}, false
	}
	var nums [4]float64
	for i, s := range f {
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return dom.Rect{}, false
		}
		nums[i] = x
	}
	return dom.Rect{X: nums[0], Y: nums[1], Width: nums[2], Height: nums[3]}, true
}

func (e *Element) Disabled() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if _, ok := attr(e.n, "disabled"); ok {
		return true
	}
	v, _ := attr(e.n, "aria-disabled")
	return v == "true"
}

func (e *Element) ReadOnly() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	_, ok := attr(e.n, "readonly")
	return ok
}

func (e *Element) IsContentEditable() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for n := e.n; n != nil && n.Type == html.ElementNode; n = n.Parent {
		v, ok := attr(n, "contenteditable")
		if !ok {
			continue
		}
		switch strings.ToLower(v) {
		case "", "true", "plaintext-only":
			return true
		default:
			return false
		}
	}
	return false
}

func (e *Element) Value() (string, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.value != nil {
		return *e.value, true
	}
	switch e.n.Data {
	case "input":
		v, _ := attr(e.n, "value")
		return v, true
	case "textarea":
		return textContent(e.n), true
	}
	return "", false
}

func (e *Element) Text() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return textContent(e.n)
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func (e *Element) Parent() dom.Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if p := e.doc.wrap(e.n.Parent); p != nil {
		return p
	}
	return nil
}

func (e *Element) Closest(selector string) dom.Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	s, err := e.doc.compile(selector)
	if err != nil {
		return nil
	}
	for n := e.n; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if s.Match(n) {
			return e.doc.wrap(n)
		}
	}
	return nil
}

func (e *Element) QueryAll(selector string) ([]dom.Element, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.queryLocked(e.n, selector, true)
}

func (e *Element) SiblingIndex() int {
	i := 1
	for s := e.n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			i++
		}
	}
	return i
}

func (e *Element) SameAs(other dom.Element) bool {
	o, ok := other.(*Element)
	return ok && o != nil && o.n == e.n
}

func (e *Element) Precedes(other dom.Element) bool {
	o, ok := other.(*Element)
	if !ok || o == nil {
		return false
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.order[e.n] < e.doc.order[o.n]
}

func (e *Element) HasEditorAPI(editor dom.Editor) bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.editors[editor]
}

func (e *Element) Focus() error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.active = e
	e.doc.record(e, dom.Event{Class: dom.ClassEvent, Type: "focus"}, true)
	return nil
}

func (e *Element) Click() error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.record(e, dom.Mouse("click"), true)
	return nil
}

func (e *Element) SetValue(value string, native bool) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	isControl := e.n.Data == "input" || e.n.Data == "textarea"
	if native && !isControl {
		return dom.ErrNotSupported
	}
	e.value = &value
	return nil
}

func (e *Element) ReplaceText(text string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.replaceLocked(text)
	return nil
}

func (e *Element) replaceLocked(text string) {
	for c := e.n.FirstChild; c != nil; {
		next := c.NextSibling
		e.n.RemoveChild(c)
		c = next
	}
	e.n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

func (e *Element) CollapseSelectionToEnd() error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.caret = e
	return nil
}

func (e *Element) Dispatch(ev dom.Event) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.record(e, ev, false)
	return nil
}

func (e *Element) EditorSetText(editor dom.Editor, text string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if !e.doc.editors[editor] {
		return dom.ErrNoEditorAPI
	}
	e.replaceLocked(text)
	e.doc.record(e, dom.Event{Class: dom.ClassEvent, Type: "editor-set-text", Data: text}, true)
	return nil
}

func (e *Element) SubmitForm() error {
	if e.n.Data != "form" {
		return dom.ErrNotSupported
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.record(e, dom.Plain("submit"), true)
	return nil
}

func (e *Element) String() string {
	var b strings.Builder
	b.WriteString(e.n.Data)
	if id, ok := attr(e.n, "id"); ok {
		b.WriteString("#" + id)
	}
	return b.String()
}
