package sink

import (
	"context"

	"github.com/hazyhaar/chatcast/outcome"
)

// AttemptFunc is called for each attempt.
type AttemptFunc func(ctx context.Context, a *outcome.Attempt) error

// DiagnosisFunc is called for each diagnosis.
type DiagnosisFunc func(ctx context.Context, d *outcome.Diagnosis) error

// Callback delivers records as in-process function calls.
type Callback struct {
	onAttempt   AttemptFunc
	onDiagnosis DiagnosisFunc
}

// NewCallback creates a Callback sink. Either handler may be nil.
func NewCallback(onAttempt AttemptFunc, onDiagnosis DiagnosisFunc) *Callback {
	return &Callback{onAttempt: onAttempt, onDiagnosis: onDiagnosis}
}

func (c *Callback) SendAttempt(ctx context.Context, a *outcome.Attempt) error {
	if c.onAttempt != nil {
		return c.onAttempt(ctx, a)
	}
	return nil
}

func (c *Callback) SendDiagnosis(ctx context.Context, d *outcome.Diagnosis) error {
	if c.onDiagnosis != nil {
		return c.onDiagnosis(ctx, d)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
