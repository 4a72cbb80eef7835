package util

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
)

// NewID returns a short hex id for correlating requests.
func NewID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// NewSessionID returns an unguessable URL-safe id for browser sessions.
// It never contains ':' so it can be used inside Redis keys.
func NewSessionID() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
