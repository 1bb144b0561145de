// Package dispatch routes chat events to the normalizer and the session.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"chatbridge/internal/domain"
	"chatbridge/internal/language"
	"chatbridge/internal/metrics"
	"chatbridge/internal/normalize"
	"chatbridge/internal/session"

	"github.com/google/uuid"
)

type Config struct {
	Session    *session.Session
	Normalizer *normalize.Normalizer
	Logger     *slog.Logger
}

// Dispatcher resolves an event's platform, normalizes its message and submits
// the result to the session.
type Dispatcher struct {
	session    *session.Session
	normalizer *normalize.Normalizer
	logger     *slog.Logger

	mu        sync.RWMutex
	platforms map[string]domain.Platform
}

func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		session:    cfg.Session,
		normalizer: cfg.Normalizer,
		logger:     cfg.Logger,
		platforms:  make(map[string]domain.Platform),
	}
}

// Register makes p the platform for events whose Channel is name.
func (d *Dispatcher) Register(name string, p domain.Platform) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.platforms[name] = p
}

// Dispatch handles one event and returns the backend's reply. handled is
// false for messages outside the supported kinds; those are dropped without
// a reply.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.Event) (reply string, handled bool, err error) {
	ev.ID = eventID(ev)

	var p domain.Platform
	var build session.BuildFunc

	switch m := ev.Message.(type) {
	case domain.TextMessage:
		build = func(tr *language.Tracker) ([]domain.Part, error) {
			lang, err := userLanguage(ctx, p, ev.UserID)
			if err != nil {
				return nil, err
			}
			return d.normalizer.Text(tr, lang, m.Text), nil
		}
	case domain.ImageMessage:
		build = func(tr *language.Tracker) ([]domain.Part, error) {
			lang, err := userLanguage(ctx, p, ev.UserID)
			if err != nil {
				return nil, err
			}
			data, err := fetch(ctx, p, m.ContentID, domain.ContentPreview)
			if err != nil {
				return nil, err
			}
			return d.normalizer.Image(tr, lang, data)
		}
	case domain.StickerMessage:
		build = func(tr *language.Tracker) ([]domain.Part, error) {
			lang, err := userLanguage(ctx, p, ev.UserID)
			if err != nil {
				return nil, err
			}
			return d.normalizer.Sticker(tr, lang, m.Keywords), nil
		}
	case domain.VideoMessage:
		build = func(tr *language.Tracker) ([]domain.Part, error) {
			lang, err := userLanguage(ctx, p, ev.UserID)
			if err != nil {
				return nil, err
			}
			data, err := fetch(ctx, p, m.ContentID, domain.ContentFull)
			if err != nil {
				return nil, err
			}
			return d.normalizer.Video(tr, lang, data)
		}
	case domain.LocationMessage:
		build = func(tr *language.Tracker) ([]domain.Part, error) {
			lang, err := userLanguage(ctx, p, ev.UserID)
			if err != nil {
				return nil, err
			}
			return d.normalizer.Location(tr, lang, m), nil
		}
	default:
		metrics.EventsIgnored.Inc()
		d.logger.Debug("ignoring unsupported event", "event_id", ev.ID, "channel", ev.Channel, "message", fmt.Sprintf("%T", ev.Message))
		return "", false, nil
	}

	d.mu.RLock()
	p, ok := d.platforms[ev.Channel]
	d.mu.RUnlock()
	if !ok {
		return "", true, fmt.Errorf("no platform registered for channel %q", ev.Channel)
	}

	kind := ev.KindOf()
	metrics.Events(string(kind)).Inc()
	d.logger.Info("dispatching event", "event_id", ev.ID, "channel", ev.Channel, "kind", kind, "user", ev.UserID)

	reply, err = d.session.Exchange(ctx, build)
	if err != nil {
		if errors.Is(err, domain.ErrDecode) {
			metrics.DecodeErrors.Inc()
		}
		return "", true, fmt.Errorf("%s event %s: %w", kind, ev.ID, err)
	}
	return reply, true, nil
}

func userLanguage(ctx context.Context, p domain.Platform, userID string) (string, error) {
	lang, err := p.UserLanguage(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("profile lookup: %w", err)
	}
	return lang, nil
}

func fetch(ctx context.Context, p domain.Platform, id string, variant domain.ContentVariant) ([]byte, error) {
	data, err := p.FetchContent(ctx, id, variant)
	if err != nil {
		return nil, fmt.Errorf("fetch %s content %s: %w", variant, id, err)
	}
	return data, nil
}

func eventID(ev domain.Event) string {
	if ev.ID != "" {
		return ev.ID
	}
	return uuid.NewString()
}
