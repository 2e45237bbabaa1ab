package tasks

import (
	"context"
	"fmt"

	"github.com/edgard/awaybot/internal/database"
)

// newActivitySweepTask drops tracker entries older than the quiet period.
// Such entries are already eligible, so removing them changes no decision.
func newActivitySweepTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "activity_sweep")

	return func(ctx context.Context) error {
		now := deps.Clock.Now()
		quiet := deps.Config.AutoReply.QuietPeriod

		removed := deps.Tracker.Sweep(now, quiet)

		var purged int64
		if deps.Store != nil {
			var err error
			purged, err = deps.Store.DeleteActivityAtOrBefore(ctx, now.Add(-quiet))
			if err != nil {
				return fmt.Errorf("failed to purge persisted activity: %w", err)
			}
		}

		log.DebugContext(ctx, "Activity sweep completed",
			"removed", removed,
			"purged", purged,
			"remaining", deps.Tracker.Len())
		return nil
	}
}

// newActivitySnapshotTask persists the tracker so a restart keeps open
// quiet-period windows.
func newActivitySnapshotTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "activity_snapshot")

	return func(ctx context.Context) error {
		n, err := SaveSnapshot(ctx, deps)
		if err != nil {
			return err
		}
		log.DebugContext(ctx, "Activity snapshot written", "count", n)
		return nil
	}
}

// SaveSnapshot writes the current tracker state to the store.
func SaveSnapshot(ctx context.Context, deps TaskDeps) (int, error) {
	if deps.Store == nil {
		return 0, nil
	}
	states := deps.Tracker.Snapshot()
	if err := deps.Store.SaveActivity(ctx, database.FromStates(states)); err != nil {
		return 0, fmt.Errorf("failed to save activity snapshot: %w", err)
	}
	return len(states), nil
}

// RestoreSnapshot loads persisted activity into the tracker.
func RestoreSnapshot(ctx context.Context, deps TaskDeps) (int, error) {
	if deps.Store == nil {
		return 0, nil
	}
	rows, err := deps.Store.LoadActivity(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load activity snapshot: %w", err)
	}
	return deps.Tracker.Restore(database.ToStates(rows)), nil
}
