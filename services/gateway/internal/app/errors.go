package app

import "errors"

var (
	// ErrInvalidKind indicates a gallery kind other than image or video.
	ErrInvalidKind = errors.New("kind must be image or video")
	// ErrInvalidSession indicates a missing or malformed session id.
	ErrInvalidSession = errors.New("invalid session id")
)
