package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/chatcast/connectivity"
	"github.com/hazyhaar/chatcast/dbopen"
	"github.com/hazyhaar/chatcast/dom"
	"github.com/hazyhaar/chatcast/dom/snapshot"
	"github.com/hazyhaar/chatcast/hub/internal/config"
	"github.com/hazyhaar/chatcast/hub/internal/sink"
	"github.com/hazyhaar/chatcast/hub/internal/store"
	"github.com/hazyhaar/chatcast/idgen"
	"github.com/hazyhaar/chatcast/outcome"
	"github.com/hazyhaar/chatcast/siteconfig"
)

const chatPage = `<form><textarea id="prompt"></textarea><button type="submit">Send</button></form>`

type fakePage struct {
	doc    *snapshot.Document
	url    string
	closed atomic.Bool
	closes atomic.Int32
}

func (p *fakePage) Document() dom.Document { return p.doc }

func (p *fakePage) HTML(context.Context) (string, error) { return p.doc.HTML(), nil }

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Closed() bool { return p.closed.Load() }

func (p *fakePage) Close() error {
	p.closes.Add(1)
	return nil
}

type fakeOpener struct {
	mu    sync.Mutex
	html  map[string]string
	fail  map[string]error
	pages map[string]*fakePage
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		html:  make(map[string]string),
		fail:  make(map[string]error),
		pages: make(map[string]*fakePage),
	}
}

func (o *fakeOpener) Open(_ context.Context, t Target) (Page, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.fail[t.ID]; err != nil {
		return nil, err
	}
	src, ok := o.html[t.ID]
	if !ok {
		src = chatPage
	}
	p := &fakePage{doc: snapshot.MustParse(src), url: t.URL}
	o.pages[t.ID] = p
	return p, nil
}

func (o *fakeOpener) page(id string) *fakePage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pages[id]
}

const testConfig = `
policy:
  cooldown: 10ms
  ready_timeout: 30ms
  poll_interval: 5ms
targets:
  - id: alpha
    name: Alpha
    url: https://alpha.example/
  - id: beta
    name: Beta
    url: https://beta.example/chat
  - id: gamma
    url: https://gamma.example/
    enabled: false
sites:
  - id: beta_example
    name: Beta
    input_selector: "#prompt"
`

func testHub(t *testing.T, opts ...Option) (*Hub, *fakeOpener) {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	op := newFakeOpener()
	all := append([]Option{WithOpener(op), WithIDGenerator(idgen.Sequence(""))}, opts...)
	h, err := New(context.Background(), cfg, all...)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { h.Shutdown() })
	return h, op
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	if err := connectivity.Init(db); err != nil {
		t.Fatalf("routes schema: %v", err)
	}
	return &store.Store{DB: db}
}

type attemptLog struct {
	mu       sync.Mutex
	attempts []*outcome.Attempt
}

func (l *attemptLog) sink() sink.Sink {
	return sink.NewCallback(func(_ context.Context, a *outcome.Attempt) error {
		l.mu.Lock()
		l.attempts = append(l.attempts, a)
		l.mu.Unlock()
		return nil
	}, nil)
}

func (l *attemptLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}

func TestTargetsFromConfig(t *testing.T) {
	h, _ := testHub(t)
	ts := h.Targets()
	if len(ts) != 3 {
		t.Fatalf("targets = %d, want 3", len(ts))
	}
	if ts[0].ID != "alpha" || ts[1].ID != "beta" || ts[2].ID != "gamma" {
		t.Fatalf("order = %s %s %s", ts[0].ID, ts[1].ID, ts[2].ID)
	}
	if ts[2].Enabled || ts[2].Name != "gamma" {
		t.Fatalf("gamma = %+v", ts[2])
	}
	if ts[1].Hostname != "beta.example" {
		t.Fatalf("hostname = %q", ts[1].Hostname)
	}
}

func TestOpenAllSkipsDisabled(t *testing.T) {
	h, op := testHub(t)
	results := h.OpenAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}
	for _, r := range results {
		if r.Error != "" || r.TabID == "" {
			t.Fatalf("result = %+v", r)
		}
	}
	if op.page("gamma") != nil {
		t.Fatal("disabled target opened")
	}
	st, _ := h.Target("beta")
	if !st.Open || st.SiteID != "beta_example" {
		t.Fatalf("beta = %+v", st)
	}

	// Opening again keeps the same page.
	again := h.OpenAll(context.Background())
	if again[0].TabID != results[0].TabID {
		t.Fatalf("tab changed: %s -> %s", results[0].TabID, again[0].TabID)
	}
}

func TestOpenFailureRecorded(t *testing.T) {
	h, op := testHub(t)
	op.fail["beta"] = errors.New("navigation timeout")

	results := h.OpenAll(context.Background())
	if results[1].Error == "" {
		t.Fatalf("beta result = %+v", results[1])
	}
	st, _ := h.Target("beta")
	if st.Open || st.Error == "" {
		t.Fatalf("beta = %+v", st)
	}
}

func TestSendToAll(t *testing.T) {
	log := &attemptLog{}
	h, op := testHub(t, WithSinks(log.sink()))
	h.OpenAll(context.Background())

	b, err := h.SendToAll(context.Background(), "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !b.Success || len(b.Results) != 2 {
		t.Fatalf("broadcast = %+v", b)
	}
	for _, r := range b.Results {
		if !r.Success || r.AttemptID == "" || r.Error != "" {
			t.Fatalf("result = %+v", r)
		}
	}
	for _, id := range []string{"alpha", "beta"} {
		if v, _ := op.page(id).doc.Find("#prompt").Value(); v != "hello" {
			t.Fatalf("%s value = %q", id, v)
		}
	}
	if log.len() != 2 {
		t.Fatalf("attempts reported = %d", log.len())
	}
}

func TestSendToAllPartialFailure(t *testing.T) {
	h, op := testHub(t)
	op.html["beta"] = `<div>maintenance</div>`
	h.OpenAll(context.Background())

	b, err := h.SendToAll(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if !b.Success {
		t.Fatal("one target sent, broadcast should succeed")
	}
	if b.Results[1].SiteID != "beta" || b.Results[1].Success || b.Results[1].Error == "" {
		t.Fatalf("beta = %+v", b.Results[1])
	}
}

func TestSendToAllAllFail(t *testing.T) {
	h, op := testHub(t)
	op.html["alpha"] = `<p>signed out</p>`
	op.html["beta"] = `<p>signed out</p>`
	h.OpenAll(context.Background())

	b, err := h.SendToAll(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if b.Success {
		t.Fatalf("broadcast = %+v", b)
	}
}

func TestSendToAllEmptyText(t *testing.T) {
	h, _ := testHub(t)
	h.OpenAll(context.Background())
	if _, err := h.SendToAll(context.Background(), "  \n"); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("err = %v", err)
	}
}

func TestSendToAllNothingOpen(t *testing.T) {
	h, _ := testHub(t)
	b, err := h.SendToAll(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if b.Success || b.Error == "" || len(b.Results) != 0 {
		t.Fatalf("broadcast = %+v", b)
	}
}

func TestSendToAllDropsClosedPages(t *testing.T) {
	h, op := testHub(t)
	h.OpenAll(context.Background())
	op.page("alpha").closed.Store(true)

	b, err := h.SendToAll(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Results) != 1 || b.Results[0].SiteID != "beta" {
		t.Fatalf("results = %+v", b.Results)
	}
	st, _ := h.Target("alpha")
	if st.Open {
		t.Fatal("closed page still open")
	}
	if op.page("alpha").closes.Load() != 1 {
		t.Fatal("page not released")
	}
}

func TestSendToAllRemoteTarget(t *testing.T) {
	h, _ := testHub(t)
	h.Open(context.Background(), "alpha")

	// beta has no local page; its service is served elsewhere.
	var got atomic.Value
	h.Router().RegisterLocal(ServicePrefix+"beta", func(_ context.Context, payload []byte) ([]byte, error) {
		got.Store(string(payload))
		return []byte(`{"success":true,"message":"sent via remote","attemptId":"r1"}`), nil
	})

	b, err := h.SendToAll(context.Background(), "hi")
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Results) != 2 || !b.Results[1].Success || b.Results[1].AttemptID != "r1" {
		t.Fatalf("results = %+v", b.Results)
	}
	if got.Load() != `{"action":"fillAndSend","text":"hi"}` {
		t.Fatalf("payload = %v", got.Load())
	}
}

func TestSendOneTarget(t *testing.T) {
	h, _ := testHub(t)
	if _, err := h.Send(context.Background(), "nope", "hi"); !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("err = %v", err)
	}
	r, err := h.Send(context.Background(), "alpha", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if r.Success || r.Error != ErrNotOpen.Error() {
		t.Fatalf("closed target = %+v", r)
	}

	h.Open(context.Background(), "alpha")
	r, err = h.Send(context.Background(), "alpha", "hi")
	if err != nil || !r.Success {
		t.Fatalf("send = %+v, %v", r, err)
	}
}

func TestCloseUnregistersService(t *testing.T) {
	h, op := testHub(t)
	h.Open(context.Background(), "alpha")
	if err := h.Close("alpha"); err != nil {
		t.Fatal(err)
	}
	for _, s := range h.Router().Services() {
		if s == ServicePrefix+"alpha" {
			t.Fatal("service still registered")
		}
	}
	if op.page("alpha").closes.Load() != 1 {
		t.Fatal("page not closed")
	}
	if err := h.Close("nope"); !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("err = %v", err)
	}
}

func TestRegisterPersistsAndOpens(t *testing.T) {
	st := testStore(t)
	h, op := testHub(t, WithStore(st))

	ts, err := h.Register(context.Background(), Target{URL: "https://chat.deepseek.com/", Enabled: true})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if ts.ID != "chat_deepseek_com" || ts.Name != "chat_deepseek_com" || !ts.Open {
		t.Fatalf("status = %+v", ts)
	}
	if op.page("chat_deepseek_com") == nil {
		t.Fatal("page not opened")
	}

	stored, err := st.ListTargets(context.Background(), false)
	if err != nil || len(stored) != 1 || stored[0].URL != "https://chat.deepseek.com/" {
		t.Fatalf("stored = %+v, %v", stored, err)
	}

	// A new hub over the same store knows the target.
	h2, _ := testHub(t, WithStore(st))
	if _, err := h2.Target("chat_deepseek_com"); err != nil {
		t.Fatal(err)
	}
}

func TestRegisterValidation(t *testing.T) {
	h, _ := testHub(t)
	if _, err := h.Register(context.Background(), Target{}); err == nil {
		t.Fatal("empty url accepted")
	}
	if _, err := h.Register(context.Background(), Target{URL: "not a url"}); err == nil {
		t.Fatal("hostless url accepted")
	}
	ts, err := h.Register(context.Background(), Target{ID: "later", URL: "https://later.example/"})
	if err != nil || ts.Open {
		t.Fatalf("disabled register = %+v, %v", ts, err)
	}
}

func TestRemove(t *testing.T) {
	st := testStore(t)
	h, _ := testHub(t, WithStore(st))
	h.Register(context.Background(), Target{ID: "x", URL: "https://x.example/", Enabled: true})

	if err := h.Remove(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Target("x"); !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("err = %v", err)
	}
	stored, _ := st.ListTargets(context.Background(), false)
	if len(stored) != 0 {
		t.Fatalf("stored = %+v", stored)
	}
	if err := h.Remove(context.Background(), "x"); !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("second remove err = %v", err)
	}
}

func TestSitesPrecedence(t *testing.T) {
	st := testStore(t)
	h, _ := testHub(t, WithStore(st))
	ctx := context.Background()

	c, err := h.Site(ctx, "beta_example")
	if err != nil || c == nil || c.Source != "file" {
		t.Fatalf("file site = %+v, %v", c, err)
	}

	warnings, err := h.PutSite(ctx, &siteconfig.SiteConfig{
		ID:            "beta_example",
		Name:          "<b>Beta</b>",
		InputSelector: "textarea[",
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v", warnings)
	}
	c, _ = h.Site(ctx, "beta_example")
	if c.Source != "stored" || c.Name != "Beta" {
		t.Fatalf("stored site = %+v", c)
	}

	all, err := h.Sites(ctx)
	if err != nil {
		t.Fatal(err)
	}
	seen := 0
	for _, s := range all {
		if s.ID == "beta_example" {
			seen++
			if s.Source != "stored" {
				t.Fatalf("listed source = %q", s.Source)
			}
		}
	}
	if seen != 1 || len(all) < len(siteconfig.Presets())+1 {
		t.Fatalf("sites = %d, beta seen %d", len(all), seen)
	}

	ok, err := h.DeleteSite(ctx, "beta_example")
	if err != nil || !ok {
		t.Fatalf("delete = %v, %v", ok, err)
	}
	c, _ = h.Site(ctx, "beta_example")
	if c.Source != "file" {
		t.Fatalf("after delete source = %q", c.Source)
	}

	if _, err := h.PutSite(ctx, &siteconfig.SiteConfig{ID: "Not.Normal"}); err == nil {
		t.Fatal("unnormalised id accepted")
	}
}

func TestSitesWithoutStore(t *testing.T) {
	h, _ := testHub(t)
	if _, err := h.PutSite(context.Background(), &siteconfig.SiteConfig{ID: "x"}); !errors.Is(err, ErrNoStore) {
		t.Fatalf("err = %v", err)
	}
	if _, err := h.DeleteSite(context.Background(), "x"); !errors.Is(err, ErrNoStore) {
		t.Fatalf("err = %v", err)
	}
}

func TestPutSiteReloadsOpenPages(t *testing.T) {
	st := testStore(t)
	h, op := testHub(t, WithStore(st))
	op.html["alpha"] = `<textarea id="a"></textarea><textarea id="b"></textarea><button>Send</button>`
	h.Open(context.Background(), "alpha")

	if _, err := h.PutSite(context.Background(), &siteconfig.SiteConfig{ID: "alpha_example", InputSelector: "#b"}); err != nil {
		t.Fatal(err)
	}
	r, err := h.Send(context.Background(), "alpha", "routed")
	if err != nil || !r.Success {
		t.Fatalf("send = %+v, %v", r, err)
	}
	if v, _ := op.page("alpha").doc.Find("#b").Value(); v != "routed" {
		t.Fatalf("#b = %q", v)
	}
}

func TestProbe(t *testing.T) {
	h, _ := testHub(t)
	if _, err := h.Probe(context.Background(), "alpha"); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("err = %v", err)
	}
	h.Open(context.Background(), "beta")
	d, err := h.Probe(context.Background(), "beta")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Input.Resolved || d.Input.Configured == nil || !d.Input.Configured.Valid {
		t.Fatalf("input = %+v", d.Input)
	}
	if d.SiteID != "beta_example" || d.Fingerprint == "" {
		t.Fatalf("diagnosis = %+v", d)
	}
}

func TestHandleMessage(t *testing.T) {
	h, _ := testHub(t)
	ctx := context.Background()

	call := func(msg string) Reply {
		t.Helper()
		out, err := h.HandleMessage(ctx, []byte(msg))
		if err != nil {
			t.Fatalf("%s: %v", msg, err)
		}
		var r Reply
		if err := json.Unmarshal(out, &r); err != nil {
			t.Fatal(err)
		}
		return r
	}

	r := call(`{"action":"openAITabs","sites":["alpha"]}`)
	if !r.Success || len(r.Tabs) != 1 || r.Tabs[0].SiteID != "alpha" {
		t.Fatalf("open = %+v", r)
	}
	r = call(`{"action":"getAITabs"}`)
	if len(r.Targets) != 1 || r.Targets[0].ID != "alpha" {
		t.Fatalf("tabs = %+v", r)
	}
	r = call(`{"action":"sendToAllAI","text":"hello"}`)
	if !r.Success || len(r.Results) != 1 || r.ID == "" {
		t.Fatalf("send = %+v", r)
	}
	r = call(`{"action":"sendToAllAI","text":""}`)
	if r.Success || r.Error == "" {
		t.Fatalf("empty send = %+v", r)
	}
	r = call(`{"action":"fillAndSend","siteId":"alpha","text":"again"}`)
	if r.Result == nil || r.Result.SiteID != "alpha" {
		t.Fatalf("fill = %+v", r)
	}
	r = call(`{"action":"registerAITab","siteId":"beta"}`)
	if !r.Success || len(r.Targets) != 1 || !r.Targets[0].Open {
		t.Fatalf("register = %+v", r)
	}
	r = call(`{"action":"explode"}`)
	if r.Success || r.Error != `unknown action "explode"` {
		t.Fatalf("unknown = %+v", r)
	}

	if _, err := h.HandleMessage(ctx, []byte(`{`)); err == nil {
		t.Fatal("bad JSON accepted")
	}
}

func TestHandleMessageNothingOpenKeepsResults(t *testing.T) {
	h, _ := testHub(t)
	out, err := h.HandleMessage(context.Background(), []byte(`{"action":"sendToAllAI","text":"hello"}`))
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(out, &raw); err != nil {
		t.Fatal(err)
	}
	if got := string(raw["results"]); got != "[]" {
		t.Fatalf("results = %q in %s", got, out)
	}
	if string(raw["success"]) != "false" {
		t.Fatalf("reply = %s", out)
	}
}

func TestConnectivityServices(t *testing.T) {
	h, _ := testHub(t)
	h.OpenAll(context.Background())

	out, err := h.Router().Call(context.Background(), "chatcast_send_all", []byte(`{"text":"via router"}`))
	if err != nil {
		t.Fatal(err)
	}
	var b Broadcast
	if err := json.Unmarshal(out, &b); err != nil {
		t.Fatal(err)
	}
	if !b.Success || len(b.Results) != 2 {
		t.Fatalf("broadcast = %+v", b)
	}

	if _, err := h.Router().Call(context.Background(), "chatcast_send_all", []byte(`{"text":""}`)); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("err = %v", err)
	}
}
