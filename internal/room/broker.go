package room

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Broker fans accepted batches out to every instance serving a board. All
// broadcasts flow through the broker, own submissions included, so every
// replica sees batches in one channel order.
type Broker interface {
	Publish(ctx context.Context, boardID string, payload []byte) error
	Subscribe(ctx context.Context, boardID string) (<-chan []byte, func())
}

// RedisBroker uses one Redis pub/sub channel per board.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func channelFor(boardID string) string {
	return "board:" + boardID
}

func (b *RedisBroker) Publish(ctx context.Context, boardID string, payload []byte) error {
	return b.client.Publish(ctx, channelFor(boardID), payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, boardID string) (<-chan []byte, func()) {
	pubsub := b.client.Subscribe(ctx, channelFor(boardID))
	out := make(chan []byte, 64)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			out <- []byte(msg.Payload)
		}
	}()

	return out, func() { _ = pubsub.Close() }
}

// LoopbackBroker is the single-instance broker used when Redis is not
// configured: publishes are delivered straight back to the board's local
// subscriber.
type LoopbackBroker struct {
	mu   sync.Mutex
	subs map[string]chan []byte
}

func NewLoopbackBroker() *LoopbackBroker {
	return &LoopbackBroker{subs: make(map[string]chan []byte)}
}

func (b *LoopbackBroker) Publish(ctx context.Context, boardID string, payload []byte) error {
	b.mu.Lock()
	ch, ok := b.subs[boardID]
	b.mu.Unlock()
	if ok {
		ch <- payload
	}
	return nil
}

func (b *LoopbackBroker) Subscribe(ctx context.Context, boardID string) (<-chan []byte, func()) {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.subs[boardID] = ch
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if current, ok := b.subs[boardID]; ok && current == ch {
			delete(b.subs, boardID)
			close(ch)
		}
	}
}
