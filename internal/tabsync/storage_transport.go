package tabsync

import (
	"context"
	"encoding/json"
	"fmt"

	"authgate-service/internal/pkg/storage"

	"go.uber.org/zap"
)

// MessageKey is the single reserved storage key the fallback writes.
const MessageKey = "auth-sync-message"

// StorageTransport writes a message to the reserved key and removes it
// straight away. Listeners see the write as a change notification; nothing
// stays behind for late listeners.
type StorageTransport struct {
	store  storage.Store
	logger *zap.Logger
}

func NewStorageTransport(store storage.Store, logger *zap.Logger) *StorageTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorageTransport{store: store, logger: logger}
}

func (t *StorageTransport) Name() string { return "storage" }

func (t *StorageTransport) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := t.store.Set(ctx, MessageKey, string(data)); err != nil {
		return err
	}
	return t.store.Remove(ctx, MessageKey)
}

func (t *StorageTransport) Subscribe(fn Handler) (func(), error) {
	cancel := t.store.Watch(func(ch storage.Change) {
		if ch.Key != MessageKey || ch.Removed || ch.NewValue == "" {
			return
		}
		var msg Message
		if err := json.Unmarshal([]byte(ch.NewValue), &msg); err != nil {
			t.logger.Warn("dropping malformed sync message", zap.Error(err))
			return
		}
		fn(msg)
	})
	return cancel, nil
}
