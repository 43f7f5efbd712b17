package probe

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/hazyhaar/chatcast/dom/snapshot"
	"github.com/hazyhaar/chatcast/idgen"
	"github.com/hazyhaar/chatcast/siteconfig"
)

const chatPage = `<html><body>
<main>
<form>
<textarea id="prompt-textarea" placeholder="Message"></textarea>
<button data-testid="send-button" aria-label="Send">Send</button>
</form>
</main>
</body></html>`

func testProber() *Prober {
	return New(
		WithIDGenerator(idgen.Sequence("dia_")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func TestDiagnose_ResolvesBoth(t *testing.T) {
	doc := snapshot.MustParse(chatPage)
	d := testProber().Diagnose(context.Background(), Page{URL: "https://chatgpt.com/c/1", Doc: doc, HTML: chatPage})

	if d.ID != "dia_1" || d.Hostname != "chatgpt.com" || d.SiteID != "chatgpt_com" {
		t.Errorf("header = %q %q %q", d.ID, d.Hostname, d.SiteID)
	}
	if !d.Input.Resolved || d.Input.Generated != "#prompt-textarea" || d.Input.Kind != "native:textarea" {
		t.Errorf("input = %+v", d.Input)
	}
	if !d.Send.Resolved || d.Send.Generated != `button[data-testid="send-button"]` {
		t.Errorf("send = %+v", d.Send)
	}
	if d.Suggested.PreferEnter || d.Suggested.InputSelector != "#prompt-textarea" {
		t.Errorf("suggested = %+v", d.Suggested)
	}
	if len(d.Warnings) != 0 {
		t.Errorf("warnings = %v", d.Warnings)
	}
	if len(d.Input.Candidates) == 0 {
		t.Error("no input candidates reported")
	}
	if d.Fingerprint == "" || d.Fingerprint != Fingerprint(chatPage) {
		t.Error("fingerprint missing or unstable")
	}
}

func TestDiagnose_NoSendSuggestsEnter(t *testing.T) {
	doc := snapshot.MustParse(`<body><div contenteditable="true" class="ql-editor"></div></body>`)
	d := testProber().Diagnose(context.Background(), Page{URL: "https://gemini.google.com/", Doc: doc})

	if !d.Input.Resolved || d.Send.Resolved {
		t.Fatalf("input %v send %v", d.Input.Resolved, d.Send.Resolved)
	}
	if !d.Suggested.PreferEnter || d.Suggested.SendButtonSelector != "" {
		t.Errorf("suggested = %+v", d.Suggested)
	}
	if !slices.Contains(d.Warnings, "send: no control found, Enter will be used") {
		t.Errorf("warnings = %v", d.Warnings)
	}
}

func TestDiagnose_ConfiguredSelectorChecks(t *testing.T) {
	doc := snapshot.MustParse(chatPage)
	site := &siteconfig.SiteConfig{ID: "chatgpt_com", InputSelector: "#missing", SendButtonSelector: "button["}
	d := testProber().Diagnose(context.Background(), Page{URL: "https://chatgpt.com/", Doc: doc, Site: site})

	if c := d.Input.Configured; c == nil || !c.Valid || c.MatchCount != 0 {
		t.Errorf("input check = %+v", c)
	}
	if c := d.Send.Configured; c == nil || c.Valid || c.Error == "" {
		t.Errorf("send check = %+v", c)
	}
	// Fallback still resolved both.
	if d.Input.Source != "cascade" || !d.Send.Resolved {
		t.Errorf("fallback: input %q send %v", d.Input.Source, d.Send.Resolved)
	}
	joined := strings.Join(d.Warnings, "\n")
	for _, want := range []string{
		"sendButtonSelector:",
		"input: configured selector matches nothing",
		"send: configured selector is invalid",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing warning %q in %v", want, d.Warnings)
		}
	}
}

func TestDiagnose_HiddenConfigured(t *testing.T) {
	doc := snapshot.MustParse(`<body><textarea class="old" hidden></textarea><textarea id="chat-input"></textarea></body>`)
	site := &siteconfig.SiteConfig{InputSelector: "textarea.old"}
	d := testProber().Diagnose(context.Background(), Page{URL: "https://x.example/", Doc: doc, Site: site})
	if c := d.Input.Configured; c == nil || c.MatchCount != 1 || c.Visible {
		t.Errorf("check = %+v", c)
	}
	if !slices.Contains(d.Warnings, "input: configured selector matches only hidden elements") {
		t.Errorf("warnings = %v", d.Warnings)
	}
}

func TestDiagnose_NothingFound(t *testing.T) {
	doc := snapshot.MustParse(`<body><p>hello</p></body>`)
	d := testProber().Diagnose(context.Background(), Page{URL: "https://x.example/", Doc: doc})
	if d.Input.Resolved || d.Send.Resolved {
		t.Fatal("resolved on an empty page")
	}
	if !slices.Contains(d.Warnings, "input: input element not found") {
		t.Errorf("warnings = %v", d.Warnings)
	}
}

func TestFingerprint_IgnoresText(t *testing.T) {
	a := Fingerprint(`<div><p>one</p><br><img src=a></div>`)
	b := Fingerprint(`<div class="x"><p>two</p><br><img src=b></div>`)
	c := Fingerprint(`<div><span>one</span></div>`)
	if a != b {
		t.Error("text or attributes changed the fingerprint")
	}
	if a == c {
		t.Error("structure change kept the fingerprint")
	}
	if got := skeleton(`<div><br><p></p></div>`); got != "0:div;1:br;1:p;" {
		t.Errorf("skeleton = %q", got)
	}
}

func TestIsShell(t *testing.T) {
	shell := []byte(`<!DOCTYPE html><html><head><title>App</title></head><body><div id="root"></div><script src="/main.js"></script></body></html>`)
	if !IsShell(shell) {
		t.Error("SPA shell not detected")
	}
	static := []byte(`<html><body><main><p>` + strings.Repeat("Lorem ipsum dolor sit amet. ", 20) + `</p></main></body></html>`)
	if IsShell(static) {
		t.Error("static page flagged as shell")
	}
	scripted := []byte(`<html><body><div id="app">x</div><script>` + strings.Repeat("var a = 1;", 200) + `</script></body></html>`)
	if !IsShell(scripted) {
		t.Error("script text counted as visible")
	}
}

func TestFetchAndDiagnose(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		io.WriteString(w, chatPage)
	})
	mux.HandleFunc("/shell", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body><div id="root"></div></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := testProber()
	ctx := context.Background()

	d, err := p.FetchAndDiagnose(ctx, srv.URL+"/chat", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Input.Resolved || !d.Send.Resolved {
		t.Errorf("chat page: input %v send %v", d.Input.Resolved, d.Send.Resolved)
	}

	d, err = p.FetchAndDiagnose(ctx, srv.URL+"/shell", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(d.Warnings, "page: static HTML looks client rendered, probe with a browser") {
		t.Errorf("shell warnings = %v", d.Warnings)
	}

	if _, err := p.FetchAndDiagnose(ctx, srv.URL+"/missing", nil); err == nil {
		t.Error("404 did not fail")
	}
}
