package sink

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hazyhaar/chatcast/outcome"
)

// Router fans out records to all sinks. One sink error does not block the
// others; errors are logged and the first encountered is returned.
type Router struct {
	mu     sync.RWMutex
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Add appends a sink at runtime.
func (r *Router) Add(s Sink) {
	r.mu.Lock()
	r.sinks = append(r.sinks, s)
	r.mu.Unlock()
}

func (r *Router) snapshot() []Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Sink(nil), r.sinks...)
}

func (r *Router) SendAttempt(ctx context.Context, a *outcome.Attempt) error {
	var firstErr error
	for _, s := range r.snapshot() {
		if err := s.SendAttempt(ctx, a); err != nil {
			r.logger.Warn("sink: send attempt failed", "attempt", a.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) SendDiagnosis(ctx context.Context, d *outcome.Diagnosis) error {
	var firstErr error
	for _, s := range r.snapshot() {
		if err := s.SendDiagnosis(ctx, d); err != nil {
			r.logger.Warn("sink: send diagnosis failed", "url", d.URL, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ReportAttempt lets the router serve as a coordinator reporter. Errors
// are already logged per sink.
func (r *Router) ReportAttempt(ctx context.Context, a *outcome.Attempt) {
	_ = r.SendAttempt(ctx, a)
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.snapshot() {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
