package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dotsetgreg/wargabot/pkg/logger"
)

const (
	defaultCapacity       = 100
	defaultPublishTimeout = 100 * time.Millisecond
)

// queue is one direction of the bus. Publishing blocks for at most the
// publish timeout when the buffer is full, then drops the message.
type queue[T any] struct {
	name      string
	ch        chan T
	published atomic.Uint64
	dropped   atomic.Uint64
}

func newQueue[T any](name string, capacity int) *queue[T] {
	return &queue[T]{name: name, ch: make(chan T, capacity)}
}

func (q *queue[T]) publish(msg T, timeout time.Duration) bool {
	select {
	case q.ch <- msg:
		q.published.Add(1)
		return true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case q.ch <- msg:
		q.published.Add(1)
		return true
	case <-timer.C:
		n := q.dropped.Add(1)
		logger.WarnCF("bus", "Queue full, message dropped", map[string]interface{}{
			"queue":   q.name,
			"dropped": n,
		})
		return false
	}
}

func (q *queue[T]) next(ctx context.Context) (T, bool) {
	var zero T
	select {
	case msg, ok := <-q.ch:
		if !ok {
			return zero, false
		}
		return msg, true
	case <-ctx.Done():
		return zero, false
	}
}

type Option func(*MessageBus)

// WithCapacity sets the buffer size of each direction.
func WithCapacity(n int) Option {
	return func(mb *MessageBus) {
		if n > 0 {
			mb.capacity = n
		}
	}
}

func WithPublishTimeout(d time.Duration) Option {
	return func(mb *MessageBus) {
		if d > 0 {
			mb.timeout = d
		}
	}
}

// MessageBus connects channel adapters to the agent loop: citizen messages
// flow inbound, replies flow outbound.
type MessageBus struct {
	inbound  *queue[InboundMessage]
	outbound *queue[OutboundMessage]
	capacity int
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
}

func NewMessageBus(opts ...Option) *MessageBus {
	mb := &MessageBus{capacity: defaultCapacity, timeout: defaultPublishTimeout}
	for _, opt := range opts {
		opt(mb)
	}
	mb.inbound = newQueue[InboundMessage]("inbound", mb.capacity)
	mb.outbound = newQueue[OutboundMessage]("outbound", mb.capacity)
	return mb
}

// PublishInbound reports whether the message was queued. Messages published
// after Close are ignored.
func (mb *MessageBus) PublishInbound(msg InboundMessage) bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return false
	}
	return mb.inbound.publish(msg, mb.timeout)
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	return mb.inbound.next(ctx)
}

func (mb *MessageBus) PublishOutbound(msg OutboundMessage) bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return false
	}
	return mb.outbound.publish(msg, mb.timeout)
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	return mb.outbound.next(ctx)
}

// Close stops both directions. Consumers drain what is buffered and then
// see ok=false.
func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.inbound.ch)
	close(mb.outbound.ch)
}

type Stats struct {
	InboundDepth      int    `json:"inbound_depth"`
	OutboundDepth     int    `json:"outbound_depth"`
	InboundPublished  uint64 `json:"inbound_published"`
	OutboundPublished uint64 `json:"outbound_published"`
	InboundDropped    uint64 `json:"inbound_dropped"`
	OutboundDropped   uint64 `json:"outbound_dropped"`
}

func (mb *MessageBus) Stats() Stats {
	return Stats{
		InboundDepth:      len(mb.inbound.ch),
		OutboundDepth:     len(mb.outbound.ch),
		InboundPublished:  mb.inbound.published.Load(),
		OutboundPublished: mb.outbound.published.Load(),
		InboundDropped:    mb.inbound.dropped.Load(),
		OutboundDropped:   mb.outbound.dropped.Load(),
	}
}
