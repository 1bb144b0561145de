// Package normalize turns chat events into ordered conversation parts.
//
// Every method consults the language tracker and prepends a language marker
// when the user's profile language changed. Media is decoded before the
// tracker is touched, so a decode failure leaves the tracker unchanged.
package normalize

import (
	"image"
	"strconv"
	"strings"

	"chatbridge/internal/domain"
	"chatbridge/internal/language"
)

const (
	StickerTag         = "[Sticker] "
	LocationTitleTag   = "[Location Title] "
	LocationAddressTag = "[Location Address] "
	LatitudeTag        = "[Latitude] "
	LongitudeTag       = "[Longitude] "
)

// FrameSampler extracts still frames from raw video bytes.
type FrameSampler interface {
	Sample(data []byte) ([]image.Image, error)
}

// Normalizer holds the decoders used for media events.
type Normalizer struct {
	sampler     FrameSampler
	decodeImage func([]byte) (image.Image, error)
}

func New(sampler FrameSampler, decodeImage func([]byte) (image.Image, error)) *Normalizer {
	return &Normalizer{sampler: sampler, decodeImage: decodeImage}
}

func (n *Normalizer) Text(tr *language.Tracker, lang, text string) []domain.Part {
	return withMarker(tr, lang, domain.TextPart(text))
}

func (n *Normalizer) Image(tr *language.Tracker, lang string, data []byte) ([]domain.Part, error) {
	img, err := n.decodeImage(data)
	if err != nil {
		return nil, err
	}
	return withMarker(tr, lang, domain.ImagePart(img)), nil
}

func (n *Normalizer) Sticker(tr *language.Tracker, lang string, keywords []string) []domain.Part {
	return withMarker(tr, lang, domain.TextPart(StickerText(keywords)))
}

func (n *Normalizer) Video(tr *language.Tracker, lang string, data []byte) ([]domain.Part, error) {
	frames, err := n.sampler.Sample(data)
	if err != nil {
		return nil, err
	}
	parts := make([]domain.Part, len(frames))
	for i, f := range frames {
		parts[i] = domain.ImagePart(f)
	}
	return withMarker(tr, lang, parts...), nil
}

func (n *Normalizer) Location(tr *language.Tracker, lang string, loc domain.LocationMessage) []domain.Part {
	return withMarker(tr, lang,
		domain.TextPart(LocationTitleTag+loc.Title),
		domain.TextPart(LocationAddressTag+loc.Address),
		domain.TextPart(LatitudeTag+formatCoord(loc.Latitude)),
		domain.TextPart(LongitudeTag+formatCoord(loc.Longitude)),
	)
}

// StickerText renders sticker keywords as a tagged line, e.g. "[Sticker] Sorry, Please".
func StickerText(keywords []string) string {
	return strings.TrimSpace(StickerTag + strings.Join(keywords, ", "))
}

func withMarker(tr *language.Tracker, lang string, content ...domain.Part) []domain.Part {
	marker, changed := tr.Observe(lang)
	if !changed {
		return content
	}
	parts := make([]domain.Part, 0, len(content)+1)
	parts = append(parts, domain.TextPart(marker))
	return append(parts, content...)
}

// formatCoord prints the shortest exact decimal, keeping a ".0" on whole
// degrees so 35 reads as 35.0.
func formatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}
