package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the snapshot store operations.
type Store interface {
	// SaveActivity upserts entries, keeping the later timestamp when a row exists.
	SaveActivity(ctx context.Context, entries []ConversationActivity) error

	// LoadActivity returns every persisted entry.
	LoadActivity(ctx context.Context) ([]ConversationActivity, error)

	// DeleteActivityAtOrBefore removes entries last active at or before cutoff.
	DeleteActivityAtOrBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteActivity removes one entry and reports whether it existed.
	DeleteActivity(ctx context.Context, conversationID string) (bool, error)

	// DeleteAllActivity removes every entry (used by the reset command).
	DeleteAllActivity(ctx context.Context) (int64, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore implements Store using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by db.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// SaveActivity writes all entries in one transaction.
func (s *sqlxStore) SaveActivity(ctx context.Context, entries []ConversationActivity) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for saving activity", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	query := `
        INSERT INTO conversation_activity (conversation_id, last_activity_at, updated_at)
        VALUES (:conversation_id, :last_activity_at, :updated_at)
        ON CONFLICT (conversation_id) DO UPDATE SET
            last_activity_at = excluded.last_activity_at,
            updated_at = excluded.updated_at
        WHERE excluded.last_activity_at > conversation_activity.last_activity_at;
    `
	stmt, err := tx.PrepareNamedContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare activity upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, e := range entries {
		if e.ConversationID == "" {
			continue
		}
		row := ConversationActivity{
			ConversationID: e.ConversationID,
			LastActivityAt: e.LastActivityAt.UTC(),
			UpdatedAt:      now,
		}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			s.logger.ErrorContext(ctx, "Error saving activity", "conversation_id", e.ConversationID, "error", err)
			return fmt.Errorf("failed to save activity for %s: %w", e.ConversationID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Activity snapshot saved", "count", len(entries))
	return nil
}

func (s *sqlxStore) LoadActivity(ctx context.Context) ([]ConversationActivity, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var entries []ConversationActivity
	query := `
        SELECT conversation_id, last_activity_at, updated_at
        FROM conversation_activity
        ORDER BY last_activity_at DESC;
    `
	if err := s.db.SelectContext(ctx, &entries, query); err != nil {
		s.logger.ErrorContext(ctx, "Error loading activity", "error", err)
		return nil, fmt.Errorf("failed to load activity: %w", err)
	}

	s.logger.DebugContext(ctx, "Activity snapshot loaded", "count", len(entries))
	return entries, nil
}

func (s *sqlxStore) DeleteActivityAtOrBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_activity WHERE last_activity_at <= ?;`, cutoff.UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting stale activity", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to delete activity before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get affected row count when deleting activity", "error", err)
		return 0, nil
	}
	return affected, nil
}

func (s *sqlxStore) DeleteActivity(ctx context.Context, conversationID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversation_activity WHERE conversation_id = ?;`, conversationID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting activity", "conversation_id", conversationID, "error", err)
		return false, fmt.Errorf("failed to delete activity for %s: %w", conversationID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get affected row count when deleting activity", "error", err)
		return false, nil
	}
	return affected > 0, nil
}

func (s *sqlxStore) DeleteAllActivity(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversation_activity;`)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting activity", "error", err)
		return 0, fmt.Errorf("failed to delete activity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get affected row count when deleting activity", "error", err)
		return 0, nil
	}
	s.logger.InfoContext(ctx, "Deleted all persisted activity", "count", affected)
	return affected, nil
}

// RunSQLMaintenance executes VACUUM, which SQLite requires outside a transaction.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)")
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed")
	}
	return nil
}
