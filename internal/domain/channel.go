package domain

import "context"

// Channel is a chat-platform integration (LINE, Telegram).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}
