package domain

import "time"

// Kind names the closed set of message kinds the bridge understands.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindSticker  Kind = "sticker"
	KindVideo    Kind = "video"
	KindLocation Kind = "location"
)

// Event is one inbound chat-platform message, already stripped of transport details.
type Event struct {
	ID         string // assigned by the dispatcher when empty
	Channel    string // "line" | "telegram"
	UserID     string
	ReplyToken string
	Message    Message
	Timestamp  time.Time
}

// Message is the payload of an Event. The set of implementations is closed:
// only the types in this file satisfy it.
type Message interface {
	Kind() Kind
	message()
}

type TextMessage struct {
	Text string
}

// ImageMessage references binary content held by the platform.
type ImageMessage struct {
	ContentID string
}

type StickerMessage struct {
	Keywords []string
}

// VideoMessage references binary content held by the platform.
type VideoMessage struct {
	ContentID string
}

type LocationMessage struct {
	Title     string
	Address   string
	Latitude  float64
	Longitude float64
}

func (TextMessage) Kind() Kind     { return KindText }
func (ImageMessage) Kind() Kind    { return KindImage }
func (StickerMessage) Kind() Kind  { return KindSticker }
func (VideoMessage) Kind() Kind    { return KindVideo }
func (LocationMessage) Kind() Kind { return KindLocation }

func (TextMessage) message()     {}
func (ImageMessage) message()    {}
func (StickerMessage) message()  {}
func (VideoMessage) message()    {}
func (LocationMessage) message() {}

// KindOf returns the kind of the event's message, or "" when it has none.
func (e Event) KindOf() Kind {
	if e.Message == nil {
		return ""
	}
	return e.Message.Kind()
}
