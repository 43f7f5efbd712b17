package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazyhaar/chatcast/dbopen"
	"github.com/hazyhaar/chatcast/outcome"
)

// InsertAttempt records a finished attempt.
func (s *Store) InsertAttempt(ctx context.Context, a *outcome.Attempt) error {
	rec, err := outcome.MarshalAttempt(a)
	if err != nil {
		return err
	}
	_, err = dbopen.Exec(ctx, s.DB, `
		INSERT OR REPLACE INTO attempts
			(id, target_id, hostname, success, reason, action, started_at, record)
		VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, a.TargetID, a.Hostname, a.Success, string(a.Reason), a.Action,
		a.StartedAt.UnixMilli(), string(rec),
	)
	if err != nil {
		return fmt.Errorf("store: insert attempt %s: %w", a.ID, err)
	}
	return nil
}

// AttemptFilter narrows ListAttempts. Zero values match everything.
type AttemptFilter struct {
	TargetID   string
	FailedOnly bool
	Limit      int
}

// ListAttempts returns attempts newest first. Limit defaults to 50.
func (s *Store) ListAttempts(ctx context.Context, f AttemptFilter) ([]*outcome.Attempt, error) {
	query := `SELECT record FROM attempts WHERE 1=1`
	var args []any
	if f.TargetID != "" {
		query += ` AND target_id = ?`
		args = append(args, f.TargetID)
	}
	if f.FailedOnly {
		query += ` AND success = 0`
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list attempts: %w", err)
	}
	defer rows.Close()
	return scanAttempts(rows)
}

// AttemptStats is the success count per target.
type AttemptStats struct {
	TargetID  string `json:"target_id"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
}

// Stats aggregates attempts per target.
func (s *Store) Stats(ctx context.Context) ([]AttemptStats, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT target_id, COUNT(*), SUM(success)
		FROM attempts GROUP BY target_id ORDER BY target_id`)
	if err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	defer rows.Close()

	var out []AttemptStats
	for rows.Next() {
		var st AttemptStats
		if err := rows.Scan(&st.TargetID, &st.Total, &st.Succeeded); err != nil {
			return nil, fmt.Errorf("store: scan stats: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanAttempts(rows *sql.Rows) ([]*outcome.Attempt, error) {
	var out []*outcome.Attempt
	for rows.Next() {
		var rec string
		if err := rows.Scan(&rec); err != nil {
			return nil, fmt.Errorf("store: scan attempt: %w", err)
		}
		a, err := outcome.UnmarshalAttempt([]byte(rec))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
