// Package main contains the entrypoint for awaybot.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/awaybot/internal/activity"
	"github.com/edgard/awaybot/internal/ai"
	"github.com/edgard/awaybot/internal/bot"
	"github.com/edgard/awaybot/internal/bot/handlers"
	"github.com/edgard/awaybot/internal/bot/tasks"
	"github.com/edgard/awaybot/internal/config"
	"github.com/edgard/awaybot/internal/database"
	"github.com/edgard/awaybot/internal/ingress"
	"github.com/edgard/awaybot/internal/logger"
	"github.com/edgard/awaybot/internal/matrix"
	"github.com/edgard/awaybot/internal/metrics"
	"github.com/edgard/awaybot/internal/persona"
	"github.com/edgard/awaybot/internal/telegram"
	"github.com/edgard/awaybot/internal/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires every component, blocks until shutdown and returns the exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to dotenv file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("Failed to load dotenv file", "path", *envPath, "error", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	log.Info("Configuration loaded", "config", cfg)

	clock := clockwork.NewRealClock()
	m := metrics.New()
	tracker := activity.NewTracker()
	m.TrackConversations(tracker.Len)

	var store database.Store
	if cfg.Database.Path != "" {
		db, err := database.NewDB(cfg.Database.Path)
		if err != nil {
			log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
			return 1
		}
		defer database.CloseDB(db)
		store = database.NewStore(db, log)
	} else {
		log.Info("No database path configured, activity is kept in memory only")
	}

	tDeps := tasks.TaskDeps{
		Logger:  log,
		Tracker: tracker,
		Store:   store,
		Clock:   clock,
		Config:  cfg,
	}
	if n, err := tasks.RestoreSnapshot(ctx, tDeps); err != nil {
		log.Warn("Failed to restore activity snapshot, starting empty", "error", err)
	} else if n > 0 {
		log.Info("Restored activity snapshot", "conversations", n)
	}

	prompt, err := persona.Load(cfg.Persona.Path, cfg.Persona.OwnerName)
	if err != nil {
		log.Error("Failed to load persona", "path", cfg.Persona.Path, "error", err)
		return 1
	}

	completer, err := ai.NewCompleter(ctx, cfg.AI, log)
	if err != nil {
		log.Error("Failed to initialize completion backend", "provider", cfg.AI.Provider, "error", err)
		return 1
	}
	responder := ai.NewResponder(cfg.AI, prompt, completer, m, log)
	log.Info("Responder ready", "backend", responder.Backend(), "persona_version", prompt.Version, "degraded", responder.Degraded())

	iDeps := ingress.Deps{
		Tracker:   tracker,
		Responder: responder,
		Clock:     clock,
		Metrics:   m,
		Logger:    log,
	}
	opts := bot.Options{
		Logger:   log,
		Runners:  make(map[string]bot.Runner),
		TaskDeps: &tDeps,
	}

	if cfg.Telegram.Enabled {
		tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log)
		if err != nil {
			log.Error("Failed to create Telegram bot", "error", err)
			return 1
		}
		messenger := telegram.NewMessenger(tg, clock, log)
		defer messenger.Stop()

		handler := ingress.NewHandler("telegram", messenger, iDeps, cfg.AutoReply)
		hDeps := handlers.HandlerDeps{
			Logger:  log,
			Config:  cfg,
			Tracker: tracker,
			Store:   store,
			Clock:   clock,
			Ingress: handler,
			Owner:   handlers.NewOwner(cfg.Telegram.OwnerID),
		}
		if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllHandlers(hDeps)); err != nil {
			log.Error("Failed to register Telegram handlers", "error", err)
			return 1
		}
		if err := setTelegramCommands(ctx, tg); err != nil {
			log.Warn("Failed to publish Telegram command list", "error", err)
		}

		opts.Telegram = tg
		opts.Handlers = append(opts.Handlers, handler)
	}

	if cfg.Matrix.Enabled {
		mx, err := matrix.New(cfg.Matrix, clock, log, logger.NewZerolog(cfg.Log.Level, cfg.Log.JSON, "mautrix"))
		if err != nil {
			log.Error("Failed to create Matrix client", "error", err)
			return 1
		}
		handler := ingress.NewHandler("matrix", mx, iDeps, cfg.AutoReply)
		mx.SetHandler(handler)

		opts.Runners["matrix"] = mx
		opts.Handlers = append(opts.Handlers, handler)
	}

	if cfg.Web.Enabled {
		opts.Runners["web"] = web.New(cfg.Web, web.Deps{
			Responder: responder,
			Metrics:   m,
			Clock:     clock,
			Logger:    log,
		})
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps), m)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}
	opts.Scheduler = sched

	app := bot.NewBot(opts)

	log.Info("Starting awaybot...")
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("awaybot stopped due to error", "error", runErr)
		return 1
	}

	log.Info("awaybot stopped gracefully.")
	return 0
}

func setTelegramCommands(ctx context.Context, b *tgbot.Bot) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := b.SetMyCommands(ctx, &tgbot.SetMyCommandsParams{
		Commands: []models.BotCommand{
			{Command: "status", Description: "Show tracked conversations"},
			{Command: "forget", Description: "Forget one conversation's activity"},
			{Command: "reset", Description: "Forget all tracked activity"},
			{Command: "help", Description: "Show available commands"},
		},
	})
	return err
}
