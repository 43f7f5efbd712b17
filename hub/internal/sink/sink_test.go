package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/chatcast/dbopen"
	"github.com/hazyhaar/chatcast/hub/internal/store"
	"github.com/hazyhaar/chatcast/outcome"
)

func testAttempt() *outcome.Attempt {
	return &outcome.Attempt{
		ID:        "att_1",
		TargetID:  "chatgpt",
		Hostname:  "chatgpt.com",
		Success:   true,
		Action:    "click",
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStdout(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	if err := s.SendAttempt(context.Background(), testAttempt()); err != nil {
		t.Fatal(err)
	}
	if err := s.SendDiagnosis(context.Background(), &outcome.Diagnosis{URL: "https://x/"}); err != nil {
		t.Fatal(err)
	}

	dec := json.NewDecoder(&buf)
	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := dec.Decode(&env); err != nil || env.Type != "attempt" {
		t.Fatalf("first line: %v %q", err, env.Type)
	}
	a, err := outcome.UnmarshalAttempt(env.Data)
	if err != nil || a.ID != "att_1" {
		t.Errorf("attempt data: %+v %v", a, err)
	}
	if err := dec.Decode(&env); err != nil || env.Type != "diagnosis" {
		t.Errorf("second line: %v %q", err, env.Type)
	}
}

type failing struct{ calls int }

func (f *failing) SendAttempt(context.Context, *outcome.Attempt) error {
	f.calls++
	return errors.New("boom")
}

func (f *failing) SendDiagnosis(context.Context, *outcome.Diagnosis) error {
	return errors.New("boom")
}

func (f *failing) Close() error {
	return errors.New("close")
}

func TestRouterIsolatesFailures(t *testing.T) {
	var got []string
	cb := NewCallback(func(_ context.Context, a *outcome.Attempt) error {
		got = append(got, a.ID)
		return nil
	}, nil)
	bad := &failing{}
	r := NewRouter(nil, bad, cb)

	err := r.SendAttempt(context.Background(), testAttempt())
	if err == nil || err.Error() != "boom" {
		t.Errorf("SendAttempt err = %v", err)
	}
	if len(got) != 1 || bad.calls != 1 {
		t.Errorf("callback got %v, failing calls %d", got, bad.calls)
	}

	r.ReportAttempt(context.Background(), testAttempt())
	if len(got) != 2 {
		t.Errorf("ReportAttempt did not reach callback: %v", got)
	}
	if err := r.SendDiagnosis(context.Background(), &outcome.Diagnosis{}); err == nil {
		t.Error("expected diagnosis error from failing sink")
	}
	if err := r.Close(); err == nil || err.Error() != "close" {
		t.Errorf("Close err = %v", err)
	}
}

func TestRouterAdd(t *testing.T) {
	r := NewRouter(nil)
	var n int
	r.Add(NewCallback(func(context.Context, *outcome.Attempt) error { n++; return nil }, nil))
	if err := r.SendAttempt(context.Background(), testAttempt()); err != nil || n != 1 {
		t.Errorf("n=%d err=%v", n, err)
	}
}

func TestWebhookRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.Header.Get("Content-Type") != "application/json" || !bytes.Contains(body, []byte(`"type":"attempt"`)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond))
	if err := w.SendAttempt(context.Background(), testAttempt()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
}

func TestWebhookExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookRetries(1), WithWebhookBackoff(time.Millisecond))
	err := w.SendDiagnosis(context.Background(), &outcome.Diagnosis{})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSQLite(t *testing.T) {
	st := &store.Store{DB: dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))}
	s := NewSQLite(st)
	ctx := context.Background()
	if err := s.SendAttempt(ctx, testAttempt()); err != nil {
		t.Fatal(err)
	}
	if err := s.SendDiagnosis(ctx, &outcome.Diagnosis{}); err != nil {
		t.Fatal(err)
	}
	got, err := st.ListAttempts(ctx, store.AttemptFilter{})
	if err != nil || len(got) != 1 || got[0].Action != "click" {
		t.Errorf("stored: %+v %v", got, err)
	}
}
