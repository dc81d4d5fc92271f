// Package storage provides per-browser key-value storage shared by every tab
// of the same browser. It plays the role of the browser's localStorage: the
// provider client persists its session here and the cross-tab fallback
// channel writes and clears a reserved key to raise change notifications.
package storage

import "context"

// Change describes a write or removal observed by a watcher.
type Change struct {
	Key      string
	OldValue string
	NewValue string
	Removed  bool
}

// Store is a string key-value store with change notifications.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	// Watch registers fn for every change. The returned func stops delivery.
	Watch(fn func(Change)) (cancel func())
}
