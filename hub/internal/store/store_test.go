package store

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/chatcast/dbopen"
	"github.com/hazyhaar/chatcast/outcome"
	"github.com/hazyhaar/chatcast/siteconfig"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return &Store{DB: dbopen.OpenMemory(t, dbopen.WithSchema(Schema))}
}

func TestSiteCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := &siteconfig.SiteConfig{
		ID:            "chat_deepseek_com",
		Name:          "DeepSeek",
		InputSelector: "#chat-input",
		PreferEnter:   siteconfig.Bool(true),
		Version:       "1.0",
	}
	if err := s.PutSite(ctx, c); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.GetSite(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("get: got nil")
	}
	if got.InputSelector != "#chat-input" || got.Source != "stored" {
		t.Errorf("got %+v", got)
	}
	if got.PreferEnter == nil || !*got.PreferEnter {
		t.Errorf("PreferEnter: got %v, want true", got.PreferEnter)
	}

	// Upsert clears PreferEnter.
	c.PreferEnter = nil
	c.SendButtonSelector = "button.send"
	if err := s.PutSite(ctx, c); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _ = s.Lookup(ctx, c.ID)
	if got.PreferEnter != nil || got.SendButtonSelector != "button.send" {
		t.Errorf("after upsert: %+v", got)
	}

	if missing, err := s.GetSite(ctx, "nope"); err != nil || missing != nil {
		t.Errorf("missing: got %v, %v", missing, err)
	}

	all, err := s.ListSites(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("list: %d, %v", len(all), err)
	}

	ok, err := s.DeleteSite(ctx, c.ID)
	if err != nil || !ok {
		t.Errorf("delete: %v, %v", ok, err)
	}
	ok, _ = s.DeleteSite(ctx, c.ID)
	if ok {
		t.Error("second delete reported a row")
	}
}

func TestStoreBeforePresets(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	src := siteconfig.Chain{s, siteconfig.PresetSource{}}

	got, err := src.Lookup(ctx, "chat_deepseek_com")
	if err != nil || got == nil || got.Source != "preset" {
		t.Fatalf("preset lookup: %+v, %v", got, err)
	}

	if err := s.PutSite(ctx, &siteconfig.SiteConfig{ID: "chat_deepseek_com", InputSelector: "textarea"}); err != nil {
		t.Fatal(err)
	}
	got, _ = src.Lookup(ctx, "chat_deepseek_com")
	if got.Source != "stored" || got.InputSelector != "textarea" {
		t.Errorf("stored lookup: %+v", got)
	}
}

func TestTargets(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := &Target{ID: "a", Name: "A", URL: "https://a.example/", Enabled: true}
	b := &Target{ID: "b", Name: "B", URL: "https://b.example/", Enabled: false}
	for _, tg := range []*Target{a, b} {
		if err := s.PutTarget(ctx, tg); err != nil {
			t.Fatalf("put %s: %v", tg.ID, err)
		}
	}

	all, err := s.ListTargets(ctx, false)
	if err != nil || len(all) != 2 {
		t.Fatalf("list all: %d, %v", len(all), err)
	}
	enabled, _ := s.ListTargets(ctx, true)
	if len(enabled) != 1 || enabled[0].ID != "a" {
		t.Errorf("enabled: %+v", enabled)
	}

	created := a.CreatedAt
	a.Name = "A2"
	if err := s.PutTarget(ctx, a); err != nil {
		t.Fatal(err)
	}
	all, _ = s.ListTargets(ctx, false)
	if all[0].Name != "A2" || all[0].CreatedAt != created {
		t.Errorf("update: %+v", all[0])
	}

	if ok, _ := s.DeleteTarget(ctx, "b"); !ok {
		t.Error("delete b: no row")
	}
}

func TestAttempts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	cleared := true
	for i, a := range []*outcome.Attempt{
		{ID: "att_1", TargetID: "chatgpt", Hostname: "chatgpt.com", Success: true, Action: "click", StartedAt: base, InputCleared: &cleared},
		{ID: "att_2", TargetID: "chatgpt", Hostname: "chatgpt.com", Reason: outcome.ConcurrencyRejected, LastError: "in-flight", StartedAt: base.Add(time.Second)},
		{ID: "att_3", TargetID: "claude", Hostname: "claude.ai", Success: true, Action: "enter", StartedAt: base.Add(2 * time.Second)},
	} {
		a.Path = []outcome.Phase{outcome.PhaseIdle}
		if err := s.InsertAttempt(ctx, a); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	all, err := s.ListAttempts(ctx, AttemptFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "att_3" {
		t.Fatalf("newest first: got %d, first %q", len(all), all[0].ID)
	}
	if all[2].InputCleared == nil || !*all[2].InputCleared {
		t.Error("record round trip lost InputCleared")
	}

	failed, _ := s.ListAttempts(ctx, AttemptFilter{FailedOnly: true})
	if len(failed) != 1 || failed[0].Reason != outcome.ConcurrencyRejected {
		t.Errorf("failed: %+v", failed)
	}

	one, _ := s.ListAttempts(ctx, AttemptFilter{TargetID: "chatgpt", Limit: 1})
	if len(one) != 1 || one[0].ID != "att_2" {
		t.Errorf("limit: %+v", one)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 || stats[0].TargetID != "chatgpt" || stats[0].Total != 2 || stats[0].Succeeded != 1 {
		t.Errorf("stats: %+v", stats)
	}
}

func TestOpenFile(t *testing.T) {
	path := t.TempDir() + "/sub/chatcast.db"
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.PutTarget(context.Background(), &Target{ID: "x", URL: "https://x.example/"}); err != nil {
		t.Fatal(err)
	}
}
