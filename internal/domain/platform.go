package domain

import "context"

// ContentVariant selects which rendition of binary content to fetch.
type ContentVariant int

const (
	ContentFull ContentVariant = iota
	ContentPreview
)

func (v ContentVariant) String() string {
	if v == ContentPreview {
		return "preview"
	}
	return "full"
}

// Platform is what the core needs from a chat platform's API client.
type Platform interface {
	UserLanguage(ctx context.Context, userID string) (string, error)
	FetchContent(ctx context.Context, messageID string, variant ContentVariant) ([]byte, error)
}

// Backend is the generative model. history holds every turn before the new one.
type Backend interface {
	SubmitTurn(ctx context.Context, history []Turn, parts []Part) (string, error)
}

// Replier delivers reply text back to the chat identified by replyToken.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}
