package tabsync

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// seenWindow bounds the ids remembered for de-duplication.
const seenWindow = 128

// Broadcaster is one tab's endpoint. It publishes on the first transport
// that accepts the message and listens on all of them, so a sender that had
// to fall back still reaches its peers.
type Broadcaster struct {
	tabID      string
	transports []Transport
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	cancels []func()
	seen    map[string]struct{}
	order   []string
}

// NewBroadcaster orders transports by preference. Nil entries are skipped.
func NewBroadcaster(tabID string, logger *zap.Logger, transports ...Transport) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Broadcaster{
		tabID:  tabID,
		logger: logger,
		now:    time.Now,
		seen:   make(map[string]struct{}),
	}
	for _, t := range transports {
		if t != nil {
			b.transports = append(b.transports, t)
		}
	}
	return b
}

// Broadcast never fails. If every transport rejects the message it is
// dropped and logged.
func (b *Broadcaster) Broadcast(ctx context.Context, typ MessageType, payload map[string]interface{}) {
	msg := Message{
		ID:      ulid.Make().String(),
		Type:    typ,
		Payload: payload,
		Sender:  b.tabID,
		SentAt:  b.now(),
	}

	for _, t := range b.transports {
		err := t.Publish(ctx, msg)
		if err == nil {
			return
		}
		b.logger.Debug("sync transport unavailable, falling back",
			zap.String("transport", t.Name()),
			zap.String("tab_id", b.tabID),
			zap.Error(err))
	}

	b.logger.Warn("sync message dropped",
		zap.String("type", string(typ)),
		zap.String("tab_id", b.tabID))
}

// Listen delivers messages from other tabs to fn. A transport that cannot
// subscribe is skipped silently.
func (b *Broadcaster) Listen(fn Handler) {
	deliver := func(msg Message) {
		if msg.Sender == b.tabID || !msg.Type.Valid() || !b.firstSighting(msg.ID) {
			return
		}
		fn(msg)
	}

	for _, t := range b.transports {
		cancel, err := t.Subscribe(deliver)
		if err != nil {
			b.logger.Debug("sync transport cannot subscribe",
				zap.String("transport", t.Name()),
				zap.Error(err))
			continue
		}
		b.mu.Lock()
		b.cancels = append(b.cancels, cancel)
		b.mu.Unlock()
	}
}

func (b *Broadcaster) firstSighting(id string) bool {
	if id == "" {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.seen[id]; ok {
		return false
	}
	b.seen[id] = struct{}{}
	b.order = append(b.order, id)
	if len(b.order) > seenWindow {
		delete(b.seen, b.order[0])
		b.order = b.order[1:]
	}
	return true
}

// Close stops every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	cancels := b.cancels
	b.cancels = nil
	b.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}
