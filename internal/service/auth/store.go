// internal/service/auth/store.go
package auth

import (
	"sync"
)

// Store holds one tab's State behind a single update entry point.
type Store struct {
	mu        sync.Mutex
	state     State
	listeners map[int]func(State)
	nextID    int
}

func NewStore() *Store {
	return &Store{
		state:     initialState(),
		listeners: make(map[int]func(State)),
	}
}

// Dispatch applies a and reports whether it changed anything. Listeners see
// the new snapshot after the lock is released; they should drop snapshots
// whose Version is not newer than the last one they saw.
func (s *Store) Dispatch(a Action) (State, bool) {
	s.mu.Lock()
	next, changed := reduce(s.state, a)
	if !changed {
		current := s.state
		s.mu.Unlock()
		return current, false
	}
	next.Version = s.state.Version + 1
	s.state = next
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return next, true
}

func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) snapshotListeners() []func(State) {
	out := make([]func(State), 0, len(s.listeners))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.listeners[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}
