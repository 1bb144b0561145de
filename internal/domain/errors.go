package domain

import "errors"

var (
	// ErrDecode marks media that could not be decoded. The turn is dropped.
	ErrDecode = errors.New("decode error")

	// ErrBackend marks a failed or timed-out backend call. The user turn stays in history.
	ErrBackend = errors.New("backend error")

	// ErrMalformedHistory marks a history turn that has no text to render.
	ErrMalformedHistory = errors.New("malformed history")

	ErrEmptyTurn = errors.New("turn has no parts")
)
