package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps values in process memory. Watchers are invoked
// synchronously, outside the lock, in registration order.
type MemoryStore struct {
	mu       sync.RWMutex
	values   map[string]string
	watchers map[int]func(Change)
	nextID   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:   make(map[string]string),
		watchers: make(map[int]func(Change)),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	old := s.values[key]
	s.values[key] = value
	watchers := s.snapshotWatchers()
	s.mu.Unlock()

	notify(watchers, Change{Key: key, OldValue: old, NewValue: value})
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	old, ok := s.values[key]
	delete(s.values, key)
	watchers := s.snapshotWatchers()
	s.mu.Unlock()

	if ok {
		notify(watchers, Change{Key: key, OldValue: old, Removed: true})
	}
	return nil
}

func (s *MemoryStore) Watch(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

func (s *MemoryStore) snapshotWatchers() []func(Change) {
	out := make([]func(Change), 0, len(s.watchers))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.watchers[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(watchers []func(Change), ch Change) {
	for _, fn := range watchers {
		fn(ch)
	}
}
