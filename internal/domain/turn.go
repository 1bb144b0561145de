package domain

import (
	"image"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Part is a single piece of a turn: either text or a decoded still image.
type Part struct {
	Text  string
	Image image.Image
}

func TextPart(s string) Part { return Part{Text: s} }

func ImagePart(img image.Image) Part { return Part{Image: img} }

// IsText reports whether the part carries text rather than an image.
func (p Part) IsText() bool { return p.Image == nil }

// Turn is one exchange unit in the conversation history.
type Turn struct {
	Role  Role
	Parts []Part
	At    time.Time
}

// FirstText returns the first text-bearing part of the turn.
func (t Turn) FirstText() (string, bool) {
	for _, p := range t.Parts {
		if p.IsText() {
			return p.Text, true
		}
	}
	return "", false
}

// Entry is the text rendering of a Turn used by history readers.
type Entry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}
