// internal/repository/postgres/session_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"authgate-service/internal/domain/auth"
	xerrors "authgate-service/internal/pkg/errors"

	"github.com/lib/pq"
)

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a session row and fills in its id and timestamps.
func (r *SessionRepository) Create(ctx context.Context, s *auth.Session) error {
	query := `
		INSERT INTO sessions (user_id, device_name, browser, last_active)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, last_active, created_at
	`

	err := r.db.QueryRow(ctx, query, s.UserID, s.DeviceName, s.Browser).
		Scan(&s.ID, &s.LastActive, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Touch bumps last_active on the heartbeat.
func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE sessions SET last_active = $1 WHERE id = $2`

	tag, err := r.db.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, userID, id string) error {
	query := `DELETE FROM sessions WHERE id = $1 AND user_id = $2`

	tag, err := r.db.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// DeleteExcept removes every session of userID except the ones in keep.
func (r *SessionRepository) DeleteExcept(ctx context.Context, userID string, keep []string) (int64, error) {
	query := `DELETE FROM sessions WHERE user_id = $1 AND NOT (id = ANY($2))`

	tag, err := r.db.Exec(ctx, query, userID, pq.Array(keep))
	if err != nil {
		return 0, fmt.Errorf("failed to delete other sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListByUser returns sessions most recently active first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]auth.Session, error) {
	query := `
		SELECT id, user_id, device_name, browser, last_active, created_at
		FROM sessions
		WHERE user_id = $1
		ORDER BY last_active DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []auth.Session{}
	for rows.Next() {
		var s auth.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.DeviceName, &s.Browser, &s.LastActive, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}
