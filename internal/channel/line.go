package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"chatbridge/internal/domain"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

const (
	lineChannelName   = "line"
	lineMaxReplyRunes = 5000
)

type LineConfig struct {
	ChannelSecret      string
	ChannelAccessToken string
	MaxImageBytes      int64
	MaxVideoBytes      int64
	HTTPClient         *http.Client
	// APIEndpoint and DataEndpoint override the Messaging API hosts.
	APIEndpoint  string
	DataEndpoint string
	Logger       *slog.Logger
}

// Line receives webhook callbacks from the LINE platform and answers through
// the Messaging API. It is also the domain.Platform for LINE events.
type Line struct {
	secret        string
	api           *messaging_api.MessagingApiAPI
	blob          *messaging_api.MessagingApiBlobAPI
	maxImageBytes int64
	maxVideoBytes int64
	logger        *slog.Logger

	// WithContext on the SDK clients stores the context on the client itself.
	apiMu  sync.Mutex
	blobMu sync.Mutex

	mu  sync.RWMutex
	bus domain.MessageBus
}

func NewLine(cfg LineConfig) (*Line, error) {
	if cfg.ChannelSecret == "" || cfg.ChannelAccessToken == "" {
		return nil, errors.New("line: channel secret and access token are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var apiOpts []messaging_api.MessagingApiAPIOption
	var blobOpts []messaging_api.MessagingApiBlobAPIOption
	if cfg.HTTPClient != nil {
		apiOpts = append(apiOpts, messaging_api.WithHTTPClient(cfg.HTTPClient))
		blobOpts = append(blobOpts, messaging_api.WithBlobHTTPClient(cfg.HTTPClient))
	}
	if cfg.APIEndpoint != "" {
		apiOpts = append(apiOpts, messaging_api.WithEndpoint(cfg.APIEndpoint))
	}
	if cfg.DataEndpoint != "" {
		blobOpts = append(blobOpts, messaging_api.WithBlobEndpoint(cfg.DataEndpoint))
	}

	api, err := messaging_api.NewMessagingApiAPI(cfg.ChannelAccessToken, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("line messaging api: %w", err)
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(cfg.ChannelAccessToken, blobOpts...)
	if err != nil {
		return nil, fmt.Errorf("line blob api: %w", err)
	}

	return &Line{
		secret:        cfg.ChannelSecret,
		api:           api,
		blob:          blob,
		maxImageBytes: cfg.MaxImageBytes,
		maxVideoBytes: cfg.MaxVideoBytes,
		logger:        cfg.Logger,
	}, nil
}

func (l *Line) Name() string { return lineChannelName }

// Start attaches the channel to the bus and blocks until ctx is done.
// Webhook callbacks arrive through CallbackHandler on the shared server.
func (l *Line) Start(ctx context.Context, bus domain.MessageBus) error {
	l.mu.Lock()
	l.bus = bus
	l.mu.Unlock()

	routeReplies(bus, lineChannelName, l, l.logger)
	l.logger.Info("line channel ready")

	<-ctx.Done()
	l.logger.Info("line channel stopping")
	return nil
}

func (l *Line) Stop() error { return nil }

// CallbackHandler verifies the X-Line-Signature header, publishes every
// message event and answers 200 before any of them is processed.
func (l *Line) CallbackHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		cb, err := webhook.ParseRequest(l.secret, r)
		if err != nil {
			if errors.Is(err, webhook.ErrInvalidSignature) {
				l.logger.Warn("line callback with invalid signature", "remote", r.RemoteAddr)
				writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "invalid signature"})
				return
			}
			l.logger.Warn("line callback parse failed", "err", err)
			writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "bad request"})
			return
		}

		l.mu.RLock()
		bus := l.bus
		l.mu.RUnlock()
		if bus == nil {
			writeJSON(rw, http.StatusServiceUnavailable, map[string]string{"error": "channel not started"})
			return
		}

		for _, raw := range cb.Events {
			e, ok := raw.(webhook.MessageEvent)
			if !ok {
				l.logger.Debug("skipping line event", "type", fmt.Sprintf("%T", raw))
				continue
			}
			bus.Publish(lineEvent(e))
		}
		writeJSON(rw, http.StatusOK, struct{}{})
	}
}

// lineEvent maps a webhook message event onto a domain event. Message types
// outside the supported set keep a nil Message and are ignored downstream.
func lineEvent(e webhook.MessageEvent) domain.Event {
	ev := domain.Event{
		ID:         e.WebhookEventId,
		Channel:    lineChannelName,
		UserID:     lineUserID(e.Source),
		ReplyToken: e.ReplyToken,
		Timestamp:  time.UnixMilli(e.Timestamp),
	}

	switch m := e.Message.(type) {
	case webhook.TextMessageContent:
		ev.Message = domain.TextMessage{Text: m.Text}
	case webhook.ImageMessageContent:
		ev.Message = domain.ImageMessage{ContentID: m.Id}
	case webhook.StickerMessageContent:
		ev.Message = domain.StickerMessage{Keywords: m.Keywords}
	case webhook.VideoMessageContent:
		ev.Message = domain.VideoMessage{ContentID: m.Id}
	case webhook.LocationMessageContent:
		ev.Message = domain.LocationMessage{
			Title:     m.Title,
			Address:   m.Address,
			Latitude:  m.Latitude,
			Longitude: m.Longitude,
		}
	}
	return ev
}

func lineUserID(src webhook.SourceInterface) string {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	}
	return ""
}

// UserLanguage returns the language from the user's LINE profile.
func (l *Line) UserLanguage(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("line: event has no user id")
	}
	l.apiMu.Lock()
	profile, err := l.api.WithContext(ctx).GetProfile(userID)
	l.apiMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("line get profile: %w", err)
	}
	return profile.Language, nil
}

// FetchContent downloads message content. Preview content is capped at
// MaxImageBytes and full content at MaxVideoBytes.
func (l *Line) FetchContent(ctx context.Context, messageID string, variant domain.ContentVariant) ([]byte, error) {
	var resp *http.Response
	var err error
	l.blobMu.Lock()
	if variant == domain.ContentPreview {
		resp, err = l.blob.WithContext(ctx).GetMessageContentPreview(messageID)
	} else {
		resp, err = l.blob.WithContext(ctx).GetMessageContent(messageID)
	}
	l.blobMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("line get %s content: %w", variant, err)
	}
	defer resp.Body.Close()

	data, err := readLimited(resp.Body, contentLimit(variant, l.maxImageBytes, l.maxVideoBytes))
	if err != nil {
		return nil, fmt.Errorf("line read content %s: %w", messageID, err)
	}
	return data, nil
}

// Reply answers a message event. Text longer than LINE's limit is cut.
func (l *Line) Reply(ctx context.Context, replyToken, text string) error {
	if replyToken == "" {
		return errors.New("line: empty reply token")
	}
	l.apiMu.Lock()
	defer l.apiMu.Unlock()
	_, err := l.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages: []messaging_api.MessageInterface{
			messaging_api.TextMessage{Text: truncateRunes(text, lineMaxReplyRunes)},
		},
	})
	if err != nil {
		return fmt.Errorf("line reply: %w", err)
	}
	return nil
}
