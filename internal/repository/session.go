package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/UnknownOlympus/janus/internal/models"
)

// CreateSession stores a new session. With evictExisting the client's previous sessions
// are deleted in the same transaction.
func (r *Repository) CreateSession(ctx context.Context, session models.Session, evictExisting bool) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // omitted because checking for errors will not affect the function

	if evictExisting {
		if _, err = tx.Exec(ctx, DeleteClientSessionsSQL, session.ClientID); err != nil {
			return fmt.Errorf("failed to evict sessions of client %s: %w", session.ClientID, err)
		}
	}

	_, err = tx.Exec(ctx, InsertSessionSQL,
		session.TokenHash, session.ClientID, session.Method, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", mapPgErr(err))
	}

	return tx.Commit(ctx)
}

// GetSession retrieves a session by its token hash. Expiry is not checked here.
func (r *Repository) GetSession(ctx context.Context, tokenHash string) (models.Session, error) {
	var session models.Session

	err := r.db.QueryRow(ctx, SelectSessionSQL, tokenHash).Scan(
		&session.TokenHash, &session.ClientID, &session.Method, &session.ExpiresAt, &session.CreatedAt,
	)
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to get session: %w", mapPgErr(err))
	}

	return session, nil
}

// DeleteSession removes the session if it exists.
func (r *Repository) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := r.db.Exec(ctx, DeleteSessionSQL, tokenHash); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes every session that expired at or before now.
func (r *Repository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	cmdTag, err := r.db.Exec(ctx, DeleteExpiredSessionsSQL, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}
