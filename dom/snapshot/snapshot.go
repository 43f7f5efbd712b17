// Package snapshot implements dom.Document over parsed HTML. Mutations are
// applied to the in-memory tree and every event is recorded, which makes it
// the backend for offline probing and for exercising the engines in tests.
//
// Geometry is declared, not computed: an element's box comes from its
// data-rect="x,y,w,h" attribute, or else a fixed-size box stacked by
// document order. Hidden elements (hidden attribute, display:none,
// visibility:hidden, type=hidden, non-rendered tags, and their descendants)
// get an empty box.
package snapshot

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/hazyhaar/chatcast/dom"
)

// Record is one observed event.
type Record struct {
	Target *Element
	Event  dom.Event
	// Native is set for effects of native methods (focus, click, submit,
	// editor calls) as opposed to dispatchEvent.
	Native bool
}

// Option configures a Document.
type Option func(*Document)

// WithEditorAPI makes the model of editor reachable, as when the page has
// finished initialising its Quill or ProseMirror instance.
func WithEditorAPI(editor dom.Editor) Option {
	return func(d *Document) { d.editors[editor] = true }
}

// Document is a parsed HTML page.
type Document struct {
	mu      sync.Mutex
	root    *html.Node
	elems   map[*html.Node]*Element
	order   map[*html.Node]int
	sels    map[string]cascadia.Selector
	editors map[dom.Editor]bool
	events  []Record
	active  *Element
	caret   *Element
}

// Parse parses an HTML document.
func Parse(src string, opts ...Option) (*Document, error) {
	return ParseReader(strings.NewReader(src), opts...)
}

// ParseReader parses an HTML document from r.
func ParseReader(r io.Reader, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: parse: %w", err)
	}
	d := &Document{
		root:    root,
		elems:   make(map[*html.Node]*Element),
		order:   make(map[*html.Node]int),
		sels:    make(map[string]cascadia.Selector),
		editors: make(map[dom.Editor]bool),
	}
	for _, o := range opts {
		o(d)
	}
	i := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			d.order[n] = i
			i++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return d, nil
}

// MustParse is Parse for fixtures; it panics on error.
func MustParse(src string, opts ...Option) *Document {
	d, err := Parse(src, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// QueryAll implements dom.Document.
func (d *Document) QueryAll(selector string) ([]dom.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryLocked(d.root, selector, false)
}

// Find returns the first element matching selector, or nil.
func (d *Document) Find(selector string) *Element {
	els, err := d.QueryAll(selector)
	if err != nil || len(els) == 0 {
		return nil
	}
	return els[0].(*Element)
}

// Events returns a copy of every recorded event.
func (d *Document) Events() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Record, len(d.events))
	copy(out, d.events)
	return out
}

// EventTypes lists the types of events recorded on el, in order.
func (d *Document) EventTypes(el dom.Element) []string {
	var out []string
	for _, r := range d.Events() {
		if r.Target.SameAs(el) {
			out = append(out, r.Event.Type)
		}
	}
	return out
}

// Active returns the focused element, or nil.
func (d *Document) Active() dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return nil
	}
	return d.active
}

// Caret returns the element the selection was last collapsed into, or nil.
func (d *Document) Caret() dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.caret == nil {
		return nil
	}
	return d.caret
}

// HTML renders the current tree.
func (d *Document) HTML() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b strings.Builder
	html.Render(&b, d.root)
	return b.String()
}

func (d *Document) compile(selector string) (cascadia.Selector, error) {
	if s, ok := d.sels[selector]; ok {
		return s, nil
	}
	s, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", dom.ErrInvalidSelector, selector, err)
	}
	d.sels[selector] = s
	return s, nil
}

func (d *Document) queryLocked(n *html.Node, selector string, excludeSelf bool) ([]dom.Element, error) {
	s, err := d.compile(selector)
	if err != nil {
		return nil, err
	}
	var out []dom.Element
	for _, m := range s.MatchAll(n) {
		if excludeSelf && m == n {
			continue
		}
		out = append(out, d.wrap(m))
	}
	return out, nil
}

func (d *Document) wrap(n *html.Node) *Element {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	if el, ok := d.elems[n]; ok {
		return el
	}
	el := &Element{doc: d, n: n}
	d.elems[n] = el
	return el
}

func (d *Document) record(el *Element, ev dom.Event, native bool) {
	d.events = append(d.events, Record{Target: el, Event: ev, Native: native})
}
