package outcome

import (
	"testing"
	"time"
)

func TestAttemptPath(t *testing.T) {
	a := &Attempt{StartedAt: time.Unix(0, 0)}
	a.Enter(PhaseResolvingButton)
	a.Enter(PhaseEnter)
	a.Enter(PhaseDone)
	if a.Phase != PhaseDone || len(a.Path) != 3 || a.Path[1] != PhaseEnter {
		t.Fatalf("path = %v phase = %s", a.Path, a.Phase)
	}
	if a.Duration() != 0 {
		t.Fatal("unfinished attempt should have zero duration")
	}
	a.FinishedAt = time.Unix(2, 0)
	if a.Duration() != 2*time.Second {
		t.Fatalf("duration = %v", a.Duration())
	}
}

func TestFailDefaultsMessage(t *testing.T) {
	a := &Attempt{Success: true}
	a.Fail(ConcurrencyRejected, "")
	if a.Success || a.LastError != "in-flight" {
		t.Fatalf("got %+v", a)
	}
	a.Fail(FillFailure, "custom")
	if a.LastError != "custom" {
		t.Fatalf("detail lost: %q", a.LastError)
	}
}

func TestAttemptJSON(t *testing.T) {
	cleared := true
	in := &Attempt{ID: "att_1", Hostname: "chatgpt.com", Success: true, Action: "click",
		InputCleared: &cleared, Path: []Phase{PhaseClick, PhaseDone}}
	data, err := MarshalAttempt(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := UnmarshalAttempt(data)
	if err != nil {
		t.Fatal(err)
	}
	if out.ID != in.ID || !out.Success || out.InputCleared == nil || !*out.InputCleared || len(out.Path) != 2 {
		t.Fatalf("got %+v", out)
	}
}
