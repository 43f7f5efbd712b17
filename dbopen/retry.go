package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const maxRetries = 3

// IsBusy reports whether err is an SQLite BUSY/locked condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// Exec runs a single statement, retrying up to three times on BUSY.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var err error
	for i := range maxRetries {
		var res sql.Result
		res, err = db.ExecContext(ctx, query, args...)
		if err == nil {
			return res, nil
		}
		if !IsBusy(err) || i == maxRetries-1 {
			break
		}
		if werr := wait(ctx, i); werr != nil {
			return nil, werr
		}
	}
	return nil, err
}

// wait backs off 100ms, 200ms, ... unless ctx ends first.
func wait(ctx context.Context, attempt int) error {
	t := time.NewTimer(time.Duration(100*(attempt+1)) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("dbopen: retry: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
