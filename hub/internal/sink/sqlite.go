package sink

import (
	"context"

	"github.com/hazyhaar/chatcast/hub/internal/store"
	"github.com/hazyhaar/chatcast/outcome"
)

// SQLite persists attempts in the attempts table. Diagnoses are not stored.
type SQLite struct {
	store *store.Store
}

// NewSQLite creates a sink over an open store. Close does not close it.
func NewSQLite(s *store.Store) *SQLite { return &SQLite{store: s} }

func (s *SQLite) SendAttempt(ctx context.Context, a *outcome.Attempt) error {
	return s.store.InsertAttempt(ctx, a)
}

func (s *SQLite) SendDiagnosis(context.Context, *outcome.Diagnosis) error { return nil }

func (s *SQLite) Close() error { return nil }
