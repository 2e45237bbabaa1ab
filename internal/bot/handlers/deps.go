package handlers

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/awaybot/internal/activity"
	"github.com/edgard/awaybot/internal/config"
	"github.com/edgard/awaybot/internal/database"
	"github.com/edgard/awaybot/internal/ingress"
)

// EventHandler receives translated business messages.
type EventHandler interface {
	Handle(ctx context.Context, ev ingress.Event) string
}

// HandlerDeps provides dependencies for Telegram handlers.
type HandlerDeps struct {
	Logger  *slog.Logger
	Config  *config.Config
	Tracker *activity.Tracker
	// Store may be nil when persistence is disabled.
	Store   database.Store
	Clock   clockwork.Clock
	Ingress EventHandler
	Owner   *Owner
}

// Owner is the Telegram user id of the business account owner. It is either
// configured or learned from the first business connection update.
type Owner struct {
	id atomic.Int64
}

// NewOwner returns an Owner preset to id; zero means not yet known.
func NewOwner(id int64) *Owner {
	o := &Owner{}
	o.id.Store(id)
	return o
}

// ID returns the owner id, or zero if unknown.
func (o *Owner) ID() int64 {
	return o.id.Load()
}

// Learn records id if no owner is known yet and reports whether it did.
func (o *Owner) Learn(id int64) bool {
	if id == 0 {
		return false
	}
	return o.id.CompareAndSwap(0, id)
}

// Is reports whether id belongs to the known owner.
func (o *Owner) Is(id int64) bool {
	known := o.id.Load()
	return known != 0 && known == id
}
