package db

import (
	"context"
	"fmt"
	"time"
)

// PruneResult reports what Prune removed.
type PruneResult struct {
	Deleted  int64
	Duration time.Duration
}

// Prune deletes runs created before cutoff and runs VACUUM to reclaim space.
// Saved run directories are left alone.
func (d *Database) Prune(ctx context.Context, cutoff time.Time) (PruneResult, error) {
	start := time.Now()
	var result PruneResult

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return result, ErrClosed
	}

	res, err := d.db.ExecContext(ctx, "DELETE FROM runs WHERE created_at < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return result, fmt.Errorf("failed to delete runs: %w", err)
	}
	if result.Deleted, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := ctx.Err(); err != nil {
		result.Duration = time.Since(start)
		return result, err
	}

	// VACUUM must run outside a transaction; the rows are already gone if it fails.
	if _, err := d.db.ExecContext(ctx, "VACUUM"); err != nil {
		result.Duration = time.Since(start)
		return result, fmt.Errorf("prune succeeded but VACUUM failed: %w", err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// PruneOlderThan deletes runs older than retentionDays days.
func (d *Database) PruneOlderThan(ctx context.Context, retentionDays int) (PruneResult, error) {
	if retentionDays < 0 {
		return PruneResult{}, fmt.Errorf("retentionDays must be non-negative, got %d", retentionDays)
	}
	return d.Prune(ctx, time.Now().AddDate(0, 0, -retentionDays))
}
