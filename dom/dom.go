// Package dom is the page model the resolver, fill and dispatch engines work
// against. A Document is either a live browser page (internal/browser) or a
// parsed HTML snapshot (dom/snapshot).
//
// Read accessors never return errors: a node that vanished or a failed probe
// reads as the zero value, which the engines treat as "absent". Mutations
// return an error so a strategy can fall through to the next one.
package dom

import (
	"errors"
	"math"
	"strings"
)

var (
	// ErrInvalidSelector wraps selector syntax errors from QueryAll.
	ErrInvalidSelector = errors.New("dom: invalid selector")
	// ErrNoEditorAPI is returned when a rich editor's model is not reachable.
	ErrNoEditorAPI = errors.New("dom: editor api not reachable")
	// ErrNotSupported is returned by mutations that do not apply to the element.
	ErrNotSupported = errors.New("dom: operation not supported")
)

// Document is the root the engines query.
type Document interface {
	// QueryAll returns every element matching selector, in document order.
	QueryAll(selector string) ([]Element, error)
}

// Element is one node of a Document.
type Element interface {
	TagName() string
	Attr(name string) (string, bool)
	// Rect is the bounding box; empty when the element is not rendered.
	Rect() Rect
	// Disabled reports the disabled attribute or aria-disabled="true".
	Disabled() bool
	ReadOnly() bool
	IsContentEditable() bool
	// Value returns the value property of form controls.
	Value() (string, bool)
	// Text returns textContent.
	Text() string
	Parent() Element
	Closest(selector string) Element
	QueryAll(selector string) ([]Element, error)
	// SiblingIndex is the 1-based position among element siblings.
	SiblingIndex() int
	SameAs(other Element) bool
	// Precedes reports whether the element comes before other in document order.
	Precedes(other Element) bool
	HasEditorAPI(editor Editor) bool

	Focus() error
	// Click invokes the element's native click().
	Click() error
	// SetValue assigns value through the prototype setter when native is
	// true, otherwise by plain property assignment.
	SetValue(value string, native bool) error
	// ReplaceText removes all children and appends one text node.
	ReplaceText(text string) error
	CollapseSelectionToEnd() error
	Dispatch(ev Event) error
	EditorSetText(editor Editor, text string) error
	// SubmitForm calls the native submit() of a form element.
	SubmitForm() error
}

// Rect is an element's bounding box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Visible reports whether the box is non-empty.
func (r Rect) Visible() bool { return r.Width > 0 || r.Height > 0 }

// Center returns the centre point.
func (r Rect) Center() (float64, float64) { return r.X + r.Width/2, r.Y + r.Height/2 }

// Distance is the Euclidean distance between the centres of a and b.
func Distance(a, b Rect) float64 {
	ax, ay := a.Center()
	bx, by := b.Center()
	return math.Hypot(ax-bx, ay-by)
}

// Visible reports whether el is rendered.
func Visible(el Element) bool { return el != nil && el.Rect().Visible() }

// Editable reports whether el accepts typed text: not disabled, not read-only.
func Editable(el Element) bool { return !el.Disabled() && !el.ReadOnly() }

// Label is the accessible label used by deny lists and diagnostics.
func Label(el Element) string {
	var parts []string
	for _, name := range []string{"aria-label", "title"} {
		if v, ok := el.Attr(name); ok && v != "" {
			parts = append(parts, v)
		}
	}
	if t := el.Text(); t != "" {
		parts = append(parts, t)
	}
	return strings.Join(parts, " ")
}
