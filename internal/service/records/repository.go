// internal/service/records/repository.go
package records

import (
	"context"
	"time"

	"authgate-service/internal/domain/auth"
)

type SessionRepository interface {
	Create(ctx context.Context, s *auth.Session) error
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, userID, id string) error
	DeleteExcept(ctx context.Context, userID string, keep []string) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]auth.Session, error)
}

type ActivityRepository interface {
	Append(ctx context.Context, e *auth.ActivityLogEntry) error
	ListRecent(ctx context.Context, userID string, types []auth.EventType, limit int) ([]auth.ActivityLogEntry, error)
}

type SecurityEventRepository interface {
	Append(ctx context.Context, e *auth.SecurityEvent) error
	ListRecent(ctx context.Context, userID string, limit int) ([]auth.SecurityEvent, error)
}
