package channel

import (
	"log/slog"
	"os"
	"sync"

	"chatbridge/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type captureBus struct {
	mu        sync.Mutex
	published []domain.Event
	handlers  map[string]func(domain.Reply)
}

func newCaptureBus() *captureBus {
	return &captureBus{handlers: make(map[string]func(domain.Reply))}
}

func (c *captureBus) Publish(ev domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, ev)
}

func (c *captureBus) Subscribe() <-chan domain.Event { return nil }

func (c *captureBus) SendOutbound(r domain.Reply) {
	c.mu.Lock()
	h := c.handlers[r.Channel]
	c.mu.Unlock()
	if h != nil {
		h(r)
	}
}

func (c *captureBus) OnOutbound(name string, handler func(domain.Reply)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[name] = handler
}

func (c *captureBus) Close() {}

func (c *captureBus) events() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Event(nil), c.published...)
}
