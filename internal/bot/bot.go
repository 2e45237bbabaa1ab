// Package bot implements lifecycle management and component orchestration
// for awaybot: messaging connections, the HTTP surface and the scheduler.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbot "github.com/go-telegram/bot"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/awaybot/internal/bot/tasks"
	"github.com/edgard/awaybot/internal/ingress"
)

// shutdownFlushTimeout bounds the final snapshot write on shutdown.
const shutdownFlushTimeout = 10 * time.Second

// Runner is a long-running component that stops when ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// Options lists the components the orchestrator manages. Every field except
// Logger is optional.
type Options struct {
	Logger *slog.Logger
	// Telegram is started with Start and stops on context cancellation.
	Telegram *tgbot.Bot
	// Runners are started by name, e.g. "matrix" and "web".
	Runners   map[string]Runner
	Scheduler *Scheduler
	// Handlers are drained after every runner has returned.
	Handlers []*ingress.Handler
	// TaskDeps is used for the final snapshot flush.
	TaskDeps *tasks.TaskDeps
}

// Bot represents the main application and manages its components' lifecycle.
type Bot struct {
	logger    *slog.Logger
	tgBot     *tgbot.Bot
	runners   map[string]Runner
	scheduler *Scheduler
	handlers  []*ingress.Handler
	taskDeps  *tasks.TaskDeps
}

// NewBot creates the orchestrator from opts.
func NewBot(opts Options) *Bot {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		logger:    logger.With("component", "bot_orchestrator"),
		tgBot:     opts.Telegram,
		runners:   opts.Runners,
		scheduler: opts.Scheduler,
		handlers:  opts.Handlers,
		taskDeps:  opts.TaskDeps,
	}
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails. In-flight replies are then drained and the tracker is flushed
// to the store.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	if b.tgBot != nil {
		g.Go(func() error {
			b.logger.Info("Starting Telegram bot listener...")

			b.tgBot.Start(gCtx)
			b.logger.Info("Telegram bot listener stopped.")

			if gCtx.Err() == nil {
				b.logger.Warn("Telegram bot listener stopped unexpectedly without context cancellation.")
				return fmt.Errorf("telegram listener stopped unexpectedly")
			}
			return nil
		})
	}

	for name, runner := range b.runners {
		g.Go(func() error {
			b.logger.Info("Starting component", "name", name)

			err := runner.Run(gCtx)
			switch {
			case err != nil && !errors.Is(err, context.Canceled):
				b.logger.Error("Component failed", "name", name, "error", err)
				return fmt.Errorf("%s: %w", name, err)
			case gCtx.Err() == nil:
				b.logger.Warn("Component stopped unexpectedly without context cancellation.", "name", name)
				return fmt.Errorf("%s stopped unexpectedly", name)
			}

			b.logger.Info("Component stopped", "name", name)
			return nil
		})
	}

	if b.scheduler != nil {
		g.Go(func() error {
			b.logger.Info("Starting scheduler...")
			if err := b.scheduler.Start(); err != nil {
				b.logger.Error("Failed to start scheduler", "error", err)
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			<-gCtx.Done()
			b.logger.Info("Shutdown signal received, stopping scheduler...")

			if err := b.scheduler.Stop(); err != nil {
				b.logger.Error("Error stopping scheduler", "error", err)
			}
			return nil
		})
	}

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	b.drain()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}

// drain waits for queued replies and writes a last snapshot.
func (b *Bot) drain() {
	for _, h := range b.handlers {
		h.Wait()
	}

	if b.taskDeps == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()

	n, err := tasks.SaveSnapshot(ctx, *b.taskDeps)
	if err != nil {
		b.logger.Error("Failed to flush activity snapshot on shutdown", "error", err)
		return
	}
	if n > 0 {
		b.logger.Info("Flushed activity snapshot", "count", n)
	}
}
