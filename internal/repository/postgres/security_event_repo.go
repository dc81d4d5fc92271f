// internal/repository/postgres/security_event_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"authgate-service/internal/domain/auth"
)

type SecurityEventRepository struct {
	db DBTX
}

func NewSecurityEventRepository(db DBTX) *SecurityEventRepository {
	return &SecurityEventRepository{db: db}
}

func (r *SecurityEventRepository) Append(ctx context.Context, e *auth.SecurityEvent) error {
	query := `
		INSERT INTO security_events (user_id, event_type, details, notified)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	var detailsJSON []byte
	var err error
	if e.Details != nil {
		detailsJSON, err = json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
	}

	err = r.db.QueryRow(ctx, query, e.UserID, e.EventType, detailsJSON, e.Notified).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append security event: %w", err)
	}
	return nil
}

func (r *SecurityEventRepository) ListRecent(ctx context.Context, userID string, limit int) ([]auth.SecurityEvent, error) {
	if limit < 1 {
		limit = 20
	}

	query := `
		SELECT id, user_id, event_type, details, notified, created_at
		FROM security_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list security events: %w", err)
	}
	defer rows.Close()

	events := []auth.SecurityEvent{}
	for rows.Next() {
		var e auth.SecurityEvent
		var detailsJSON []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &detailsJSON, &e.Notified, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal details: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate security events: %w", err)
	}

	return events, nil
}
