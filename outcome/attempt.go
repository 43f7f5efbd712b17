package outcome

import "time"

// Phase is a step of a send attempt.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseResolvingInput  Phase = "resolving_input"
	PhaseFilling         Phase = "filling"
	PhaseAwaitingReady   Phase = "awaiting_ready"
	PhaseResolvingButton Phase = "resolving_button"
	PhaseClick           Phase = "dispatching_click"
	PhaseEnter           Phase = "dispatching_enter"
	PhaseFormSubmit      Phase = "dispatching_form_submit"
	PhaseCooldown        Phase = "waiting_cooldown"
	PhaseDone            Phase = "done"
)

// Attempt is the record of one fill-and-send on one page.
type Attempt struct {
	ID        string  `json:"id"`
	TargetID  string  `json:"target_id,omitempty"`
	Hostname  string  `json:"hostname"`
	TextLen   int     `json:"text_len"`
	Phase     Phase   `json:"phase"`
	Path      []Phase `json:"path,omitempty"`
	Success   bool    `json:"success"`
	Reason    Reason  `json:"reason,omitempty"`
	LastError string  `json:"last_error,omitempty"`

	InputSelector string `json:"input_selector,omitempty"`
	InputKind     string `json:"input_kind,omitempty"`
	FillStrategy  string `json:"fill_strategy,omitempty"`
	SendSelector  string `json:"send_selector,omitempty"`
	// Action is what fired: click, enter, form_submit, or the fallback chain.
	Action string `json:"action,omitempty"`
	// Degraded is a failure that was routed around, such as a disabled
	// send control replaced by the Enter key.
	Degraded Reason `json:"degraded,omitempty"`
	Ready    bool   `json:"ready"`
	// InputCleared is the input's state after the cool-down; nil when not observed.
	InputCleared *bool `json:"input_cleared,omitempty"`

	StartedAt    time.Time `json:"started_at"`
	DispatchedAt time.Time `json:"dispatched_at,omitzero"`
	FinishedAt   time.Time `json:"finished_at,omitzero"`
}

// Enter moves the attempt to p and appends p to the path.
func (a *Attempt) Enter(p Phase) {
	a.Phase = p
	a.Path = append(a.Path, p)
}

// Fail records a failure reason and detail.
func (a *Attempt) Fail(r Reason, detail string) {
	a.Success = false
	a.Reason = r
	if detail == "" {
		detail = r.Message()
	}
	a.LastError = detail
}

// Duration is the time from start to finish.
func (a *Attempt) Duration() time.Duration {
	if a.FinishedAt.IsZero() {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}
