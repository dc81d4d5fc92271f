// Package ratelimit throttles repeated failed logins within a single tab.
//
// The limiter is process-local memory owned by one tab's state machine: a
// new tab, or a reload, starts with an empty map. It only slows down
// rapid-fire retries from one tab and is not a security boundary; the auth
// provider enforces its own limits independently.
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultLockout     = 15 * time.Minute
)

type Config struct {
	MaxAttempts int
	Lockout     time.Duration
}

type record struct {
	attempts    int
	lockedUntil time.Time
}

// Limiter counts consecutive failures per identifier (usually an email).
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	records map[string]*record
	now     func() time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Lockout <= 0 {
		cfg.Lockout = DefaultLockout
	}
	return &Limiter{
		cfg:     cfg,
		records: make(map[string]*record),
		now:     time.Now,
	}
}

// SetClock replaces the time source.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// RecordAttempt clears the identifier on success. On failure it bumps the
// counter and stamps a lockout once the threshold is reached.
func (l *Limiter) RecordAttempt(identifier string, success bool) {
	id := normalize(identifier)
	l.mu.Lock()
	defer l.mu.Unlock()

	if success {
		delete(l.records, id)
		return
	}

	rec, ok := l.records[id]
	if !ok {
		rec = &record{}
		l.records[id] = rec
	}
	rec.attempts++
	if rec.attempts >= l.cfg.MaxAttempts && rec.lockedUntil.IsZero() {
		rec.lockedUntil = l.now().Add(l.cfg.Lockout)
	}
}

// IsLocked reports an active lockout. An expired lockout is discarded here;
// there is no background sweep.
func (l *Limiter) IsLocked(identifier string) bool {
	id := normalize(identifier)
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[id]
	if !ok || rec.lockedUntil.IsZero() {
		return false
	}
	if l.now().Before(rec.lockedUntil) {
		return true
	}
	delete(l.records, id)
	return false
}

// RemainingTime is the time left on an active lockout, zero otherwise.
func (l *Limiter) RemainingTime(identifier string) time.Duration {
	id := normalize(identifier)
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[id]
	if !ok || rec.lockedUntil.IsZero() {
		return 0
	}
	if left := rec.lockedUntil.Sub(l.now()); left > 0 {
		return left
	}
	return 0
}

// RemainingAttempts is the number of failures still allowed before lockout.
func (l *Limiter) RemainingAttempts(identifier string) int {
	id := normalize(identifier)
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[id]
	if !ok {
		return l.cfg.MaxAttempts
	}
	if !rec.lockedUntil.IsZero() && !l.now().Before(rec.lockedUntil) {
		return l.cfg.MaxAttempts
	}
	if left := l.cfg.MaxAttempts - rec.attempts; left > 0 {
		return left
	}
	return 0
}

func normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
