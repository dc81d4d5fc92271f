// internal/service/records/repo_memory.go
package records

import (
	"context"
	"sort"
	"sync"
	"time"

	"authgate-service/internal/domain/auth"
	xerrors "authgate-service/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
)

// MemorySessionRepository stores sessions in memory (dev/test use)
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]auth.Session
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]auth.Session)}
}

func (r *MemorySessionRepository) Create(_ context.Context, s *auth.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	s.ID = ulid.Make().String()
	s.CreatedAt = now
	s.LastActive = now
	r.sessions[s.ID] = *s
	return nil
}

func (r *MemorySessionRepository) Touch(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	s.LastActive = at
	r.sessions[id] = s
	return nil
}

func (r *MemorySessionRepository) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.UserID != userID {
		return xerrors.ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *MemorySessionRepository) DeleteExcept(_ context.Context, userID string, keep []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keepSet := make(map[string]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}

	var n int64
	for id, s := range r.sessions {
		if s.UserID == userID && !keepSet[id] {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *MemorySessionRepository) ListByUser(_ context.Context, userID string) ([]auth.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]auth.Session, 0)
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActive.After(out[j].LastActive) })
	return out, nil
}

// MemoryActivityRepository stores activity in memory (dev/test use)
type MemoryActivityRepository struct {
	mu      sync.RWMutex
	entries []auth.ActivityLogEntry
}

func NewMemoryActivityRepository() *MemoryActivityRepository {
	return &MemoryActivityRepository{entries: make([]auth.ActivityLogEntry, 0)}
}

func (r *MemoryActivityRepository) Append(_ context.Context, e *auth.ActivityLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.ID = ulid.Make().String()
	e.CreatedAt = time.Now()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *MemoryActivityRepository) ListRecent(_ context.Context, userID string, types []auth.EventType, limit int) ([]auth.ActivityLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit < 1 {
		limit = 20
	}
	typeFilter := make(map[auth.EventType]bool)
	for _, t := range types {
		typeFilter[t] = true
	}

	result := make([]auth.ActivityLogEntry, 0)
	for i := len(r.entries) - 1; i >= 0 && len(result) < limit; i-- {
		e := r.entries[i]
		if e.UserID != userID {
			continue
		}
		if len(types) > 0 && !typeFilter[e.EventType] {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

// MemorySecurityEventRepository stores security events in memory (dev/test use)
type MemorySecurityEventRepository struct {
	mu     sync.RWMutex
	events []auth.SecurityEvent
}

func NewMemorySecurityEventRepository() *MemorySecurityEventRepository {
	return &MemorySecurityEventRepository{events: make([]auth.SecurityEvent, 0)}
}

func (r *MemorySecurityEventRepository) Append(_ context.Context, e *auth.SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.ID = ulid.Make().String()
	e.CreatedAt = time.Now()
	r.events = append(r.events, *e)
	return nil
}

func (r *MemorySecurityEventRepository) ListRecent(_ context.Context, userID string, limit int) ([]auth.SecurityEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit < 1 {
		limit = 20
	}
	result := make([]auth.SecurityEvent, 0)
	for i := len(r.events) - 1; i >= 0 && len(result) < limit; i-- {
		if r.events[i].UserID == userID {
			result = append(result, r.events[i])
		}
	}
	return result, nil
}
