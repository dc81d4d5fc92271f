// Package records writes the service's own bookkeeping rows: one session row
// per signed-in browser, plus append-only activity and security logs.
//
// Log writes are queued and written by a background worker. Their failures
// are logged and never reach the caller.
package records

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"authgate-service/internal/domain/auth"
	"authgate-service/internal/pkg/device"

	"go.uber.org/zap"
)

type Config struct {
	BufferSize   int
	WriteTimeout time.Duration
}

type Writer struct {
	sessions SessionRepository
	activity ActivityRepository
	security SecurityEventRepository
	logger   *zap.Logger
	timeout  time.Duration
	now      func() time.Time

	queue     chan func(context.Context)
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewWriter(
	sessions SessionRepository,
	activity ActivityRepository,
	security SecurityEventRepository,
	cfg Config,
	logger *zap.Logger,
) *Writer {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Writer{
		sessions: sessions,
		activity: activity,
		security: security,
		logger:   logger,
		timeout:  cfg.WriteTimeout,
		now:      time.Now,
		queue:    make(chan func(context.Context), cfg.BufferSize),
		done:     make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()

	return w
}

// NewMemoryWriter wires a writer over in-memory repositories.
func NewMemoryWriter(logger *zap.Logger) *Writer {
	return NewWriter(
		NewMemorySessionRepository(),
		NewMemoryActivityRepository(),
		NewMemorySecurityEventRepository(),
		Config{},
		logger,
	)
}

func (w *Writer) run() {
	defer w.wg.Done()

	for {
		select {
		case job := <-w.queue:
			w.exec(job)
		case <-w.done:
			for {
				select {
				case job := <-w.queue:
					w.exec(job)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) exec(job func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	job(ctx)
}

// enqueue drops the job when the buffer is full.
func (w *Writer) enqueue(job func(context.Context)) {
	if w.closed.Load() {
		return
	}
	select {
	case w.queue <- job:
	case <-w.done:
	default:
		w.dropped.Add(1)
		w.logger.Warn("record queue full, dropping write")
	}
}

// Close drains queued writes and stops the worker.
func (w *Writer) Close() {
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		close(w.done)
		w.wg.Wait()
	})
}

func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

// ========== Sessions ==========

// CreateSession records a signed-in browser and returns the row id, or ""
// when the insert failed. Failure never blocks a login.
func (w *Writer) CreateSession(ctx context.Context, userID string, info device.Info) string {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	s := &auth.Session{
		UserID:     userID,
		DeviceName: info.DeviceName,
		Browser:    info.Browser,
	}
	if err := w.sessions.Create(ctx, s); err != nil {
		w.logger.Error("failed to create session record",
			zap.String("user_id", userID),
			zap.Error(err))
		return ""
	}
	return s.ID
}

func (w *Writer) TouchSession(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.sessions.Touch(ctx, id, w.now()); err != nil {
		w.logger.Warn("failed to touch session record",
			zap.String("session_id", id),
			zap.Error(err))
	}
}

func (w *Writer) DeleteSession(ctx context.Context, userID, id string) error {
	if err := w.sessions.Delete(ctx, userID, id); err != nil {
		w.logger.Warn("failed to delete session record",
			zap.String("session_id", id),
			zap.Error(err))
		return err
	}
	return nil
}

// DeleteOtherSessions removes every session row of userID except keepID.
func (w *Writer) DeleteOtherSessions(ctx context.Context, userID, keepID string) (int64, error) {
	n, err := w.sessions.DeleteExcept(ctx, userID, []string{keepID})
	if err != nil {
		w.logger.Error("failed to delete other session records",
			zap.String("user_id", userID),
			zap.Error(err))
		return 0, err
	}
	return n, nil
}

func (w *Writer) ListSessions(ctx context.Context, userID string) ([]auth.Session, error) {
	return w.sessions.ListByUser(ctx, userID)
}

// ========== Logs ==========

func (w *Writer) LogActivity(userID string, eventType auth.EventType, userAgent string, metadata map[string]interface{}) {
	if userID == "" {
		return
	}
	entry := &auth.ActivityLogEntry{
		UserID:    userID,
		EventType: eventType,
		UserAgent: userAgent,
		Metadata:  metadata,
	}
	w.enqueue(func(ctx context.Context) {
		if err := w.activity.Append(ctx, entry); err != nil {
			w.logger.Warn("failed to log activity",
				zap.String("user_id", userID),
				zap.String("event_type", string(eventType)),
				zap.Error(err))
		}
	})
}

func (w *Writer) LogSecurityEvent(userID, eventType string, details map[string]interface{}) {
	if userID == "" {
		return
	}
	event := &auth.SecurityEvent{
		UserID:    userID,
		EventType: eventType,
		Details:   details,
	}
	w.enqueue(func(ctx context.Context) {
		if err := w.security.Append(ctx, event); err != nil {
			w.logger.Warn("failed to log security event",
				zap.String("user_id", userID),
				zap.String("event_type", eventType),
				zap.Error(err))
		}
	})
}

func (w *Writer) RecentActivity(ctx context.Context, userID string, types []auth.EventType, limit int) ([]auth.ActivityLogEntry, error) {
	return w.activity.ListRecent(ctx, userID, types, limit)
}

func (w *Writer) RecentSecurityEvents(ctx context.Context, userID string, limit int) ([]auth.SecurityEvent, error) {
	return w.security.ListRecent(ctx, userID, limit)
}
