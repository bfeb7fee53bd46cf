package messaging

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrQueueFull is returned by Memory.Publish when no consumer keeps up with the buffer.
var ErrQueueFull = errors.New("messaging: memory queue full")

// Memory is an in-process Client backed by a buffered channel. Each message is
// delivered to exactly one consumer; failed handlers do not get a redelivery.
type Memory struct {
	topic  string
	queue  chan Message
	offset atomic.Int64
}

// NewMemory creates a Memory bus for topic. A non-positive size uses 256.
func NewMemory(topic string, size int) *Memory {
	if size <= 0 {
		size = 256
	}
	return &Memory{topic: topic, queue: make(chan Message, size)}
}

// Publish enqueues the message without waiting. A full buffer drops it with ErrQueueFull.
func (m *Memory) Publish(ctx context.Context, key []byte, value []byte) error {
	msg := Message{
		Topic:  m.topic,
		Key:    append([]byte(nil), key...),
		Value:  append([]byte(nil), value...),
		Offset: m.offset.Add(1) - 1,
		Time:   time.Now(),
	}
	if tenant := tenantOf(key); tenant != "" {
		msg.Headers = map[string]string{TenantHeader: tenant}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case m.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Consume hands queued messages to handler until ctx is cancelled.
func (m *Memory) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-m.queue:
			_ = handler(ctx, msg)
		}
	}
}

func (m *Memory) Topic() string { return m.topic }
