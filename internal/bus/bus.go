// Package bus carries inbound chat events to the dispatcher and replies back
// to the channel they came from.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"chatbridge/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a buffered Go channel for events plus per-channel reply handlers.
type InMemoryBus struct {
	inbound  chan domain.Event
	handlers map[string]func(domain.Reply)
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
}

func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound:  make(chan domain.Event, bufferSize),
		handlers: make(map[string]func(domain.Reply)),
		logger:   logger,
	}
}

// Publish enqueues ev. When the buffer is full it waits up to publishTimeout
// before dropping the event.
func (b *InMemoryBus) Publish(ev domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("event published to closed bus", "channel", ev.Channel, "kind", ev.KindOf())
		return
	}

	select {
	case b.inbound <- ev:
		return
	default:
	}

	b.logger.Warn("inbound bus full, waiting", "channel", ev.Channel, "user", ev.UserID)
	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case b.inbound <- ev:
	case <-timer.C:
		b.logger.Error("event dropped: bus full", "channel", ev.Channel, "kind", ev.KindOf(), "wait", publishTimeout)
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.Event {
	return b.inbound
}

// SendOutbound hands r to the handler registered for r.Channel.
func (b *InMemoryBus) SendOutbound(r domain.Reply) {
	b.mu.RLock()
	handler, ok := b.handlers[r.Channel]
	b.mu.RUnlock()

	if !ok {
		b.logger.Warn("no reply handler for channel", "channel", r.Channel, "event_id", r.EventID)
		return
	}

	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("reply handler panic", "channel", r.Channel, "event_id", r.EventID, "panic", p)
		}
	}()
	handler(r)
}

func (b *InMemoryBus) OnOutbound(channelName string, handler func(domain.Reply)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channelName] = handler
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
