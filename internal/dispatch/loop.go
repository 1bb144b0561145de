package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"chatbridge/internal/domain"
	"chatbridge/internal/metrics"
)

const defaultWorkers = 1

// Handler is the part of Dispatcher the loop depends on.
type Handler interface {
	Dispatch(ctx context.Context, ev domain.Event) (string, bool, error)
}

type LoopConfig struct {
	Handler      Handler
	Bus          domain.MessageBus
	Workers      int    // events processed in parallel; the session still serializes turns
	FailureReply string // sent when an event fails; empty string sends nothing
	Logger       *slog.Logger
}

// Loop consumes events from the bus and sends replies back through it.
type Loop struct {
	handler      Handler
	bus          domain.MessageBus
	workers      int
	failureReply string
	logger       *slog.Logger
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		handler:      cfg.Handler,
		bus:          cfg.Bus,
		workers:      cfg.Workers,
		failureReply: cfg.FailureReply,
		logger:       cfg.Logger,
	}
}

// Run blocks until ctx is done or the bus is closed, then waits for events
// already handed to a worker. Events still waiting for a worker slot when
// ctx ends are dropped.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("dispatch loop started", "workers", l.workers)

	sem := make(chan struct{}, l.workers)
	inbound := l.bus.Subscribe()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("dispatch loop stopping")
			return
		case ev, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound bus closed, dispatch loop stopping")
				return
			}
			ev.ID = eventID(ev)
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				l.logger.Warn("dropping event on shutdown", "event_id", ev.ID, "channel", ev.Channel)
				return
			}
			wg.Add(1)
			go func(ev domain.Event) {
				defer wg.Done()
				defer func() { <-sem }()
				l.process(ctx, ev)
			}(ev)
		}
	}
}

func (l *Loop) process(ctx context.Context, ev domain.Event) {
	reply, handled, err := l.handler.Dispatch(ctx, ev)
	if !handled {
		return
	}
	if err != nil {
		l.logger.Error("event failed", "event_id", ev.ID, "channel", ev.Channel, "kind", ev.KindOf(), "err", err)
		if l.failureReply == "" {
			return
		}
		reply = l.failureReply
	}

	l.bus.SendOutbound(domain.Reply{
		Channel:    ev.Channel,
		EventID:    ev.ID,
		ReplyToken: ev.ReplyToken,
		Text:       reply,
	})
	metrics.RepliesSent.Inc()
}
