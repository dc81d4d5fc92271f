package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore shares one browser's storage across service instances. Values
// live under a per-browser prefix; changes are announced on a companion
// Pub/Sub channel since keyspace notifications are often disabled.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisStore(client *redis.Client, browserID string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		prefix: fmt.Sprintf("authgate:storage:%s", browserID),
		ttl:    ttl,
		logger: logger,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	old, err := s.client.SetArgs(ctx, s.key(key), value, redis.SetArgs{TTL: s.ttl, Get: true}).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	s.announce(ctx, Change{Key: key, OldValue: old, NewValue: value})
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	old, err := s.client.GetDel(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	s.announce(ctx, Change{Key: key, OldValue: old, Removed: true})
	return nil
}

// Watch subscribes to the change channel. Subscription failures are logged
// and produce a watcher that never fires.
func (s *RedisStore) Watch(fn func(Change)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	ps := s.client.Subscribe(ctx, s.changesChannel())
	if _, err := ps.Receive(ctx); err != nil {
		s.logger.Warn("storage watch unavailable", zap.String("prefix", s.prefix), zap.Error(err))
		cancel()
		_ = ps.Close()
		return func() {}
	}

	go func() {
		for msg := range ps.Channel() {
			var ch Change
			if err := json.Unmarshal([]byte(msg.Payload), &ch); err != nil {
				s.logger.Warn("dropping malformed storage change", zap.Error(err))
				continue
			}
			fn(ch)
		}
	}()

	return func() {
		cancel()
		_ = ps.Close()
	}
}

func (s *RedisStore) announce(ctx context.Context, ch Change) {
	data, err := json.Marshal(ch)
	if err != nil {
		return
	}
	if err := s.client.Publish(ctx, s.changesChannel(), data).Err(); err != nil {
		s.logger.Warn("failed to announce storage change", zap.String("key", ch.Key), zap.Error(err))
	}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":" + k
}

func (s *RedisStore) changesChannel() string {
	return s.prefix + ":changes"
}
