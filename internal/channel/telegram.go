package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"chatbridge/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramChannelName    = "telegram"
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
)

// Clearer resets the shared conversation.
type Clearer interface {
	Clear(ctx context.Context)
}

// Telegram implements domain.Channel and domain.Platform for a Telegram bot.
type Telegram struct {
	token         string
	allowFrom     []int64 // empty allows everyone
	parseMode     string
	maxImageBytes int64
	maxVideoBytes int64
	client        *http.Client
	clearer       Clearer

	bot     *tgbotapi.BotAPI
	bus     domain.MessageBus
	fileURL func(fileID string) (string, error)
	sleep   func(time.Duration)
	logger  *slog.Logger

	langMu    sync.RWMutex
	languages map[string]string
}

type TelegramConfig struct {
	Token         string
	AllowFrom     []string // user IDs as strings
	ParseMode     string
	MaxImageBytes int64
	MaxVideoBytes int64
	HTTPClient    *http.Client
	Clearer       Clearer
	Logger        *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:         cfg.Token,
		allowFrom:     allowed,
		parseMode:     cfg.ParseMode,
		maxImageBytes: cfg.MaxImageBytes,
		maxVideoBytes: cfg.MaxVideoBytes,
		client:        cfg.HTTPClient,
		clearer:       cfg.Clearer,
		sleep:         time.Sleep,
		logger:        cfg.Logger,
		languages:     make(map[string]string),
	}
}

func (t *Telegram) Name() string { return telegramChannelName }

// Start connects to Telegram and long-polls for updates until ctx is done.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.fileURL = bot.GetFileDirectURL
	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	routeReplies(bus, telegramChannelName, t, t.logger)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

// Stop is a no-op: polling ends when Start's context is cancelled, and
// StopReceivingUpdates panics if called twice.
func (t *Telegram) Stop() error { return nil }

// Reply sends text to the chat whose ID is the reply token.
func (t *Telegram) Reply(ctx context.Context, replyToken, text string) error {
	chatID, err := strconv.ParseInt(replyToken, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", replyToken, err)
	}
	if t.bot == nil {
		return fmt.Errorf("telegram: bot not started")
	}
	return t.sendMessage(chatID, text)
}

// UserLanguage returns the language code Telegram last reported for the user.
// Unknown users have no language.
func (t *Telegram) UserLanguage(ctx context.Context, userID string) (string, error) {
	t.langMu.RLock()
	defer t.langMu.RUnlock()
	return t.languages[userID], nil
}

// FetchContent downloads a file by its Telegram file ID. Telegram has no
// separate preview rendition, so the variant only selects the size cap.
func (t *Telegram) FetchContent(ctx context.Context, fileID string, variant domain.ContentVariant) ([]byte, error) {
	if t.fileURL == nil {
		return nil, fmt.Errorf("telegram: bot not started")
	}
	url, err := t.fileURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("telegram file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram download: status %d", resp.StatusCode)
	}

	data, err := readLimited(resp.Body, contentLimit(variant, t.maxImageBytes, t.maxVideoBytes))
	if err != nil {
		return nil, fmt.Errorf("telegram read file %s: %w", fileID, err)
	}
	return data, nil
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	if !t.isAllowed(msg.From.ID) {
		t.logger.Warn("unauthorized telegram user", "user_id", msg.From.ID, "username", msg.From.UserName)
		t.sendMessage(msg.Chat.ID, "Unauthorized. Your user ID is not in the allow list.")
		return
	}

	if msg.IsCommand() {
		t.handleCommand(ctx, msg)
		return
	}

	t.rememberLanguage(msg.From)
	_, _ = t.bot.Send(tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping))
	t.bus.Publish(telegramEvent(msg))
}

func (t *Telegram) rememberLanguage(u *tgbotapi.User) {
	if u.LanguageCode == "" {
		return
	}
	t.langMu.Lock()
	t.languages[strconv.FormatInt(u.ID, 10)] = u.LanguageCode
	t.langMu.Unlock()
}

// telegramEvent maps a message onto a domain event. Venues are checked
// before plain locations because Telegram fills both for a venue.
func telegramEvent(msg *tgbotapi.Message) domain.Event {
	ev := domain.Event{
		Channel:    telegramChannelName,
		UserID:     strconv.FormatInt(msg.From.ID, 10),
		ReplyToken: strconv.FormatInt(msg.Chat.ID, 10),
		Timestamp:  msg.Time(),
	}

	switch {
	case msg.Text != "":
		ev.Message = domain.TextMessage{Text: msg.Text}
	case len(msg.Photo) > 0:
		largest := msg.Photo[len(msg.Photo)-1]
		ev.Message = domain.ImageMessage{ContentID: largest.FileID}
	case msg.Sticker != nil:
		var keywords []string
		if msg.Sticker.Emoji != "" {
			keywords = append(keywords, msg.Sticker.Emoji)
		}
		ev.Message = domain.StickerMessage{Keywords: keywords}
	case msg.Video != nil:
		ev.Message = domain.VideoMessage{ContentID: msg.Video.FileID}
	case msg.Venue != nil:
		ev.Message = domain.LocationMessage{
			Title:     msg.Venue.Title,
			Address:   msg.Venue.Address,
			Latitude:  msg.Venue.Location.Latitude,
			Longitude: msg.Venue.Location.Longitude,
		}
	case msg.Location != nil:
		ev.Message = domain.LocationMessage{
			Latitude:  msg.Location.Latitude,
			Longitude: msg.Location.Longitude,
		}
	}
	return ev
}

func (t *Telegram) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		t.sendMessage(chatID, "Hello! Send me text, photos, stickers, videos or a location and I will reply.\n\nCommands:\n/clear - Clear the conversation\n/help - Show this message")
	case "clear":
		if t.clearer == nil {
			t.sendMessage(chatID, "Clearing is not available.")
			return
		}
		t.clearer.Clear(ctx)
		t.logger.Info("conversation cleared", "channel", telegramChannelName, "user_id", msg.From.ID)
		t.sendMessage(chatID, "Conversation cleared.")
	default:
		t.sendMessage(chatID, "Unknown command. Type /help for available commands.")
	}
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// sendMessage sends text in chunks and stops at the first chunk that could
// not be delivered.
func (t *Telegram) sendMessage(chatID int64, text string) error {
	for i, chunk := range splitMessage(text, telegramMaxMsgLen) {
		if err := t.sendChunk(chatID, chunk); err != nil {
			return fmt.Errorf("send chunk %d: %w", i+1, err)
		}
	}
	return nil
}

// sendChunk tries the configured parse mode first, falls back to plain text
// on an entity parse error and backs off on rate limits. It returns the last
// error once every attempt has failed.
func (t *Telegram) sendChunk(chatID int64, text string) error {
	var err error
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 && t.parseMode != "" {
			msg.ParseMode = t.parseMode
		}

		if _, err = t.bot.Send(msg); err == nil {
			return nil
		}
		errStr := err.Error()

		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off", "retry_after", retryAfter, "attempt", attempt+1)
			t.sleep(retryAfter)
			continue
		}

		if attempt == 0 && msg.ParseMode != "" && strings.Contains(errStr, "can't parse entities") {
			t.logger.Warn("telegram parse error, retrying as plain text", "err", err, "parse_mode", t.parseMode)
			continue
		}

		if attempt < telegramMaxSendRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			t.sleep(backoff)
			continue
		}
	}
	t.logger.Error("telegram send failed after retries", "err", err, "attempts", telegramMaxSendRetries+1)
	return err
}
