// Package tasks implements the scheduled maintenance tasks of the bot.
package tasks

import (
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/awaybot/internal/activity"
	"github.com/edgard/awaybot/internal/config"
	"github.com/edgard/awaybot/internal/database"
)

// TaskDeps contains all dependencies required by scheduled tasks. Store is
// nil when persistence is disabled.
type TaskDeps struct {
	Logger  *slog.Logger
	Tracker *activity.Tracker
	Store   database.Store
	Clock   clockwork.Clock
	Config  *config.Config
}
