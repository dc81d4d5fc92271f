package tabsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisTransport publishes on a fixed per-browser Pub/Sub channel.
type RedisTransport struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisTransport(client *redis.Client, channel, browserID string, logger *zap.Logger) *RedisTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisTransport{
		client:  client,
		channel: fmt.Sprintf("%s:%s", channel, browserID),
		logger:  logger,
	}
}

func (t *RedisTransport) Name() string { return "redis" }

func (t *RedisTransport) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := t.client.Publish(ctx, t.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", t.channel, err)
	}
	return nil
}

func (t *RedisTransport) Subscribe(fn Handler) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	ps := t.client.Subscribe(ctx, t.channel)
	if _, err := ps.Receive(ctx); err != nil {
		cancel()
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", t.channel, err)
	}

	go func() {
		for m := range ps.Channel() {
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				t.logger.Warn("dropping malformed sync message", zap.Error(err))
				continue
			}
			fn(msg)
		}
	}()

	return func() {
		cancel()
		_ = ps.Close()
	}, nil
}
