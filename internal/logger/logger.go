// Package logger configures structured logging for awaybot. Application code
// logs through slog; the Matrix client library logs through a zerolog logger
// sharing the same level.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
)

// NewLogger creates a slog Logger writing to stdout, installs it as the
// default logger and returns it. Unknown levels fall back to info.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	logger := New(os.Stdout, levelStr, jsonOutput)
	slog.SetDefault(logger)
	return logger
}

// New creates a slog Logger writing to w without touching the default logger.
func New(w io.Writer, levelStr string, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(levelStr),
	}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a configured level name to a slog level.
func ParseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewZerolog returns a zerolog logger for libraries that require one. The
// level mirrors the slog configuration.
func NewZerolog(levelStr string, jsonOutput bool, component string) zerolog.Logger {
	var w io.Writer = os.Stdout
	if !jsonOutput {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339, NoColor: true}
	}

	level := zerolog.InfoLevel
	switch ParseLevel(levelStr) {
	case slog.LevelDebug:
		level = zerolog.DebugLevel
	case slog.LevelWarn:
		level = zerolog.WarnLevel
	case slog.LevelError:
		level = zerolog.ErrorLevel
	}

	return zerolog.New(w).Level(level).With().Timestamp().Str("component", component).Logger()
}

// Middleware creates a logging middleware for the Telegram bot. It logs one
// line when an update arrives and one when its handler returns.
func Middleware(log *slog.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			startTime := time.Now()
			logEntry := log.With("update_id", update.ID)

			var updateType string
			switch {
			case update.BusinessMessage != nil:
				updateType = "business_message"
				msg := update.BusinessMessage
				logEntry = logEntry.With(
					"message_id", msg.ID,
					"chat_id", msg.Chat.ID,
					"chat_type", msg.Chat.Type,
					"business_connection_id", msg.BusinessConnectionID,
					"text_preview", Truncate(msg.Text, 50),
				)
				if msg.From != nil {
					logEntry = logEntry.With("user_id", msg.From.ID)
				}
			case update.BusinessConnection != nil:
				updateType = "business_connection"
				logEntry = logEntry.With(
					"business_connection_id", update.BusinessConnection.ID,
					"user_id", update.BusinessConnection.User.ID,
					"enabled", update.BusinessConnection.IsEnabled,
				)
			case update.Message != nil:
				updateType = "message"
				logEntry = logEntry.With(
					"message_id", update.Message.ID,
					"chat_id", update.Message.Chat.ID,
					"text_preview", Truncate(update.Message.Text, 50),
				)
				if update.Message.From != nil {
					logEntry = logEntry.With("user_id", update.Message.From.ID)
				}
			case update.EditedBusinessMessage != nil:
				updateType = "edited_business_message"
			default:
				updateType = "other"
			}
			logEntry = logEntry.With("update_type", updateType)

			logEntry.DebugContext(ctx, "Processing update")

			next(ctx, b, update)

			logEntry.DebugContext(ctx, "Finished processing update", "duration", time.Since(startTime))
		}
	}
}

// Truncate shortens s to at most maxLen runes, marking the cut with "...".
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}

// MaskSecret keeps the first and last two characters of a credential so it
// can be identified in logs.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:2] + "****" + secret[len(secret)-2:]
}
