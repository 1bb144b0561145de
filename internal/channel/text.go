package channel

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"chatbridge/internal/domain"
)

// ErrContentTooLarge is returned when a media download exceeds its size cap.
var ErrContentTooLarge = errors.New("content exceeds size limit")

// splitMessage splits a message into chunks that fit within maxLen bytes,
// preferring newline boundaries and never cutting a UTF-8 sequence.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		cut := maxLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		if idx := strings.LastIndex(msg[:cut], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// readLimited reads r fully, failing once more than limit bytes arrive.
// A non-positive limit disables the cap.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrContentTooLarge, limit)
	}
	return data, nil
}

// contentLimit picks the cap for a content variant. Previews are only
// fetched for images and full content only for video.
func contentLimit(v domain.ContentVariant, imageMax, videoMax int64) int64 {
	if v == domain.ContentFull {
		return videoMax
	}
	return imageMax
}
