// Package sink delivers attempt outcomes and page diagnoses to output
// backends.
package sink

import (
	"context"

	"github.com/hazyhaar/chatcast/outcome"
)

// Sink is the output interface. Implementations deliver records to
// different backends (stdout, webhook, SQLite, WebSocket feed, in-process
// callback).
type Sink interface {
	SendAttempt(ctx context.Context, a *outcome.Attempt) error
	SendDiagnosis(ctx context.Context, d *outcome.Diagnosis) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Envelope wraps a record the way every serialising sink frames it.
func Envelope(typ string, data any) any { return envelope{Type: typ, Data: data} }
