package fill

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/hazyhaar/chatcast/dom"
	"github.com/hazyhaar/chatcast/dom/snapshot"
	"github.com/hazyhaar/chatcast/outcome"
)

func TestFill_NativeTextarea(t *testing.T) {
	doc := snapshot.MustParse(`<textarea id="chat-input">old</textarea>`)
	el := doc.Find("#chat-input")

	res := New().Fill(context.Background(), el, nil, "hello")
	if !res.OK || res.Strategy != NativeSetter {
		t.Fatalf("got %+v", res)
	}
	if v, _ := el.Value(); v != "hello" {
		t.Fatalf("value = %q", v)
	}
	want := []string{"focus", "click", "input", "change", "keyup"}
	if got := doc.EventTypes(el); !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for _, r := range doc.Events() {
		if r.Event.Type == "input" && (r.Event.Data != "hello" || !r.Event.Bubbles || !r.Event.Cancelable) {
			t.Fatalf("input event = %+v", r.Event)
		}
	}
}

func TestFill_Idempotent(t *testing.T) {
	cases := map[string]string{
		"textarea":        `<textarea id="x"></textarea>`,
		"contenteditable": `<div id="x" contenteditable="true"><p>draft</p></div>`,
		"quill":           `<div class="ql-container"><div id="x" class="ql-editor" contenteditable="true"></div></div>`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			doc := snapshot.MustParse(src, snapshot.WithEditorAPI(dom.EditorQuill))
			el := doc.Find("#x")
			e := New()
			e.Fill(context.Background(), el, nil, "ping")
			res := e.Fill(context.Background(), el, nil, "ping")
			if !res.OK {
				t.Fatalf("second fill failed: %+v", res)
			}
			if got := Current(el); got != "ping" {
				t.Fatalf("content = %q, want exactly one copy", got)
			}
		})
	}
}

func TestFill_ContentEditableMultiline(t *testing.T) {
	doc := snapshot.MustParse(`<div id="ce" contenteditable="true"><br></div>`)
	el := doc.Find("#ce")
	text := "line one\nline two"

	res := New().Fill(context.Background(), el, nil, text)
	if !res.OK || res.Strategy != TextNode {
		t.Fatalf("got %+v", res)
	}
	if el.Text() != text {
		t.Fatalf("text = %q", el.Text())
	}
	if doc.Caret() == nil || !doc.Caret().SameAs(el) {
		t.Fatal("selection not collapsed into the element")
	}
	got := doc.EventTypes(el)
	if !slices.Contains(got, "input") || !slices.Contains(got, "change") {
		t.Fatalf("events = %v", got)
	}
	if slices.Contains(got, "keyup") {
		t.Fatal("contenteditable should not receive keyup")
	}
}

func TestFill_RichEditorUsesAPI(t *testing.T) {
	src := `<div class="ql-container"><div id="q" class="ql-editor" contenteditable="true"></div></div>`

	with := snapshot.MustParse(src, snapshot.WithEditorAPI(dom.EditorQuill))
	res := New().Fill(context.Background(), with.Find("#q"), nil, "hi")
	if !res.OK || !hasStep(res, EditorAPI, true) {
		t.Fatalf("got %+v", res)
	}
	if !slices.Contains(with.EventTypes(with.Find("#q")), "editor-set-text") {
		t.Fatal("editor api not invoked")
	}

	without := snapshot.MustParse(src)
	res = New().Fill(context.Background(), without.Find("#q"), nil, "hi")
	if !res.OK || hasStep(res, EditorAPI, false) || hasStep(res, EditorAPI, true) {
		t.Fatalf("editor api attempted without a reachable model: %+v", res)
	}
}

type brokenNativeSetter struct{ dom.Element }

func (b brokenNativeSetter) SetValue(v string, native bool) error {
	if native {
		return errors.New("no native value setter")
	}
	return b.Element.SetValue(v, false)
}

func TestFill_NativeSetterFallsBackToAssignment(t *testing.T) {
	doc := snapshot.MustParse(`<input id="i" type="text">`)
	el := brokenNativeSetter{doc.Find("#i")}

	res := New().Fill(context.Background(), el, nil, "abc")
	if !res.OK || res.Strategy != DirectAssign {
		t.Fatalf("got %+v", res)
	}
	if !hasStep(res, NativeSetter, false) {
		t.Fatal("native setter failure not recorded")
	}
}

type frozen struct{ dom.Element }

func (frozen) ReplaceText(string) error { return errors.New("node is frozen") }

func TestFill_FailureReported(t *testing.T) {
	doc := snapshot.MustParse(`<div id="ce" contenteditable="true">keep</div>`)
	res := New().Fill(context.Background(), frozen{doc.Find("#ce")}, nil, "new")
	if res.OK || res.Reason != outcome.FillFailure {
		t.Fatalf("got %+v", res)
	}
	if res.Observed != "keep" {
		t.Fatalf("observed = %q", res.Observed)
	}
}

func TestFill_UnknownElement(t *testing.T) {
	doc := snapshot.MustParse(`<span id="s">x</span>`)
	res := New().Fill(context.Background(), doc.Find("#s"), nil, "y")
	if !res.OK || res.Strategy != GenericText {
		t.Fatalf("got %+v", res)
	}
	if _, ok := res.Kind.(dom.Unknown); !ok {
		t.Fatalf("kind = %v", res.Kind)
	}
}

func TestFill_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := snapshot.MustParse(`<textarea id="t"></textarea>`)
	res := New().Fill(ctx, doc.Find("#t"), nil, "x")
	if res.OK || res.Reason != outcome.Cancelled || len(doc.Events()) != 0 {
		t.Fatalf("cancelled fill touched the page: %+v", res)
	}
}

func TestMatches(t *testing.T) {
	if !Matches("a b\n", "a\nb") {
		t.Fatal("whitespace should be ignored")
	}
	if Matches("ab", "abc") {
		t.Fatal("different text matched")
	}
	if !Matches(strings.Repeat(" ", 3), "") {
		t.Fatal("blank should match empty")
	}
}

func hasStep(res Result, strategy string, ok bool) bool {
	for _, s := range res.Steps {
		if s.Strategy == strategy && (s.Error == "") == ok {
			return true
		}
	}
	return false
}
