// internal/repository/postgres/activity_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"authgate-service/internal/domain/auth"

	"github.com/lib/pq"
)

type ActivityRepository struct {
	db DBTX
}

func NewActivityRepository(db DBTX) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Append inserts an activity row. Rows are never updated or deleted here.
func (r *ActivityRepository) Append(ctx context.Context, e *auth.ActivityLogEntry) error {
	query := `
		INSERT INTO activity_logs (user_id, event_type, user_agent, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	var metadataJSON []byte
	var err error
	if e.Metadata != nil {
		metadataJSON, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	err = r.db.QueryRow(ctx, query, e.UserID, e.EventType, e.UserAgent, metadataJSON).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

// ListRecent returns the newest entries first. An empty types list means all
// event types.
func (r *ActivityRepository) ListRecent(ctx context.Context, userID string, types []auth.EventType, limit int) ([]auth.ActivityLogEntry, error) {
	if limit < 1 {
		limit = 20
	}

	filter := make([]string, 0, len(types))
	for _, t := range types {
		filter = append(filter, string(t))
	}

	query := `
		SELECT id, user_id, event_type, user_agent, metadata, created_at
		FROM activity_logs
		WHERE user_id = $1 AND (cardinality($2::text[]) = 0 OR event_type = ANY($2))
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, userID, pq.Array(filter), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	entries := []auth.ActivityLogEntry{}
	for rows.Next() {
		var e auth.ActivityLogEntry
		var metadataJSON []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.UserAgent, &metadataJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity: %w", err)
	}

	return entries, nil
}
