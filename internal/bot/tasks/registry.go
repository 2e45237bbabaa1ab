package tasks

import (
	"context"

	"github.com/jonboulle/clockwork"
)

// ScheduledTaskFunc is the signature of every scheduled task. The context is
// cancelled when the scheduler shuts down.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks returns the tasks available for deps, keyed by the name
// used in the scheduler configuration. Tasks that need the store are only
// registered when persistence is enabled.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	tasks := map[string]ScheduledTaskFunc{
		"activity_sweep": newActivitySweepTask(deps),
	}
	if deps.Store != nil {
		tasks["activity_snapshot"] = newActivitySnapshotTask(deps)
		tasks["sql_maintenance"] = newSQLMaintenanceTask(deps)
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
