package dom

import "strings"

// Editor identifies a rich-text framework whose model can be driven directly.
type Editor string

const (
	EditorQuill       Editor = "quill"
	EditorProseMirror Editor = "prosemirror"
)

// Kind classifies an element for the fill engine. The set is closed:
// NativeControl, ContentEditable, RichEditor and Unknown.
type Kind interface {
	kind()
	String() string
}

// NativeControl is an <input> or <textarea>.
type NativeControl struct{ Tag string }

// ContentEditable is an editable element with no recognised framework model.
type ContentEditable struct{}

// RichEditor is a contenteditable owned by Editor. API is true when the
// framework's model object is reachable from the DOM.
type RichEditor struct {
	Editor Editor
	API    bool
}

// Unknown is anything else.
type Unknown struct{}

func (NativeControl) kind()   {}
func (ContentEditable) kind() {}
func (RichEditor) kind()      {}
func (Unknown) kind()         {}

func (k NativeControl) String() string { return "native:" + k.Tag }
func (ContentEditable) String() string { return "contenteditable" }
func (k RichEditor) String() string    { return "rich:" + string(k.Editor) }
func (Unknown) String() string         { return "unknown" }

// Classify computes the Kind of el. It is called once per resolution.
func Classify(el Element) Kind {
	if el == nil {
		return Unknown{}
	}
	switch tag := el.TagName(); tag {
	case "textarea":
		return NativeControl{Tag: tag}
	case "input":
		if t, _ := el.Attr("type"); isTextInputType(t) {
			return NativeControl{Tag: tag}
		}
		return Unknown{}
	}
	if !el.IsContentEditable() {
		return Unknown{}
	}
	if ed, ok := editorOf(el); ok {
		return RichEditor{Editor: ed, API: el.HasEditorAPI(ed)}
	}
	return ContentEditable{}
}

func isTextInputType(t string) bool {
	switch strings.ToLower(t) {
	case "", "text", "search", "email", "url", "tel":
		return true
	}
	return false
}

func editorOf(el Element) (Editor, bool) {
	cls, _ := el.Attr("class")
	switch {
	case strings.Contains(cls, "ql-editor") || el.Closest(".ql-container") != nil:
		return EditorQuill, true
	case strings.Contains(cls, "ProseMirror"):
		return EditorProseMirror, true
	}
	return "", false
}
