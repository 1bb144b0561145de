// Package language tracks the user's profile language across turns.
package language

// MarkerPrefix tags a part announcing the language used in the conversation.
const MarkerPrefix = "[Language] "

// Tracker remembers the last observed language code. It is not safe for
// concurrent use; the owning session serializes access.
type Tracker struct {
	code string
	set  bool
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe records code and returns a marker when it differs from the stored
// value. The first call always reports a change.
func (t *Tracker) Observe(code string) (string, bool) {
	if t.set && t.code == code {
		return "", false
	}
	t.code = code
	t.set = true
	return Marker(code), true
}

// Current returns the stored code and whether one has been observed.
func (t *Tracker) Current() (string, bool) {
	return t.code, t.set
}

// Marker renders the language marker text for code.
func Marker(code string) string {
	return MarkerPrefix + code
}
