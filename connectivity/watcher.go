package connectivity

import (
	"context"
	"database/sql"
	"time"
)

// Watch polls PRAGMA data_version and reloads when it changes. It blocks
// until ctx is cancelled.
func (r *Router) Watch(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := r.Reload(ctx, db); err != nil {
		r.logger.Error("connectivity: initial reload failed", "error", err)
	}
	var last int64
	db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&last)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var ver int64
		if err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&ver); err != nil {
			r.logger.Warn("connectivity: data_version poll failed", "error", err)
			continue
		}
		if ver == last {
			continue
		}
		r.logger.Info("connectivity: change detected, reloading", "old_version", last, "new_version", ver)
		if err := r.Reload(ctx, db); err != nil {
			r.logger.Error("connectivity: reload failed", "error", err)
		}
		last = ver
	}
}
