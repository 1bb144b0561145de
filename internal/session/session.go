// Package session owns the single conversation history and the language
// state that feeds it.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"chatbridge/internal/domain"
	"chatbridge/internal/language"
	"chatbridge/internal/metrics"
)

const defaultTimeout = 60 * time.Second

// Recorder receives a copy of every appended turn and every clear.
type Recorder interface {
	RecordTurn(ctx context.Context, turn domain.Turn) error
	RecordClear(ctx context.Context) error
}

// BuildFunc produces the parts of the next user turn. It runs with the
// session lock held and may read or update the language tracker.
type BuildFunc func(tr *language.Tracker) ([]domain.Part, error)

type Config struct {
	Backend  domain.Backend
	Timeout  time.Duration // bound on a single backend call
	Recorder Recorder      // optional
	Logger   *slog.Logger
}

// Session is one conversation. A single mutex guards the history and the
// language tracker; it is held for a whole exchange so turns never interleave.
type Session struct {
	mu       sync.Mutex
	history  []domain.Turn
	tracker  *language.Tracker
	backend  domain.Backend
	timeout  time.Duration
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg Config) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Session{
		tracker:  language.NewTracker(),
		backend:  cfg.Backend,
		timeout:  cfg.Timeout,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// Submit appends parts as a user turn, asks the backend for a reply and
// appends it as an assistant turn. On backend failure the user turn is kept
// and the returned error wraps domain.ErrBackend.
func (s *Session) Submit(ctx context.Context, parts []domain.Part) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitLocked(ctx, parts)
}

// Exchange runs build and submits its parts in one critical section. If
// build fails nothing is appended.
func (s *Session) Exchange(ctx context.Context, build BuildFunc) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts, err := build(s.tracker)
	if err != nil {
		return "", err
	}
	return s.submitLocked(ctx, parts)
}

func (s *Session) submitLocked(ctx context.Context, parts []domain.Part) (string, error) {
	if len(parts) == 0 {
		return "", domain.ErrEmptyTurn
	}

	prior := slices.Clone(s.history)
	user := domain.Turn{Role: domain.RoleUser, Parts: slices.Clone(parts), At: s.now()}
	s.appendLocked(ctx, user)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	metrics.BackendCalls.Inc()
	start := time.Now()
	reply, err := s.backend.SubmitTurn(callCtx, prior, user.Parts)
	metrics.BackendLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackendErrors.Inc()
		return "", fmt.Errorf("%w: %w", domain.ErrBackend, err)
	}
	if strings.TrimSpace(reply) == "" {
		metrics.BackendErrors.Inc()
		return "", fmt.Errorf("%w: empty reply", domain.ErrBackend)
	}

	s.appendLocked(ctx, domain.Turn{
		Role:  domain.RoleAssistant,
		Parts: []domain.Part{domain.TextPart(reply)},
		At:    s.now(),
	})

	s.logger.Debug("exchange complete",
		"parts", len(parts),
		"reply_len", len(reply),
		"history", len(s.history),
		"latency", time.Since(start),
	)
	return reply, nil
}

func (s *Session) appendLocked(ctx context.Context, turn domain.Turn) {
	s.history = append(s.history, turn)
	metrics.HistoryTurns.Set(float64(len(s.history)))
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordTurn(context.WithoutCancel(ctx), turn); err != nil {
		s.logger.Warn("failed to record turn", "role", turn.Role, "err", err)
	}
}

// History renders each turn by its first text part. A turn without any text
// part makes the whole read fail with domain.ErrMalformedHistory.
func (s *Session) History() ([]domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]domain.Entry, 0, len(s.history))
	for i, turn := range s.history {
		text, ok := turn.FirstText()
		if !ok {
			return nil, fmt.Errorf("%w: turn %d (%s) has no text part", domain.ErrMalformedHistory, i, turn.Role)
		}
		entries = append(entries, domain.Entry{Role: turn.Role, Text: text})
	}
	return entries, nil
}

// Turns returns a copy of the raw history.
func (s *Session) Turns() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Clear empties the history. The language state is kept.
func (s *Session) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := len(s.history)
	s.history = nil
	metrics.HistoryTurns.Set(0)

	if s.recorder != nil {
		if err := s.recorder.RecordClear(ctx); err != nil {
			s.logger.Warn("failed to record clear", "err", err)
		}
	}
	s.logger.Info("session cleared", "dropped_turns", dropped)
}
