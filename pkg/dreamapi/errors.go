package dreamapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// RequestFailedError is returned for any non-2xx response and for transport
// failures. Status is 0 when no response was received.
type RequestFailedError struct {
	Status  int
	Message string
	Err     error
}

func (e *RequestFailedError) Error() string {
	return e.Message
}

func (e *RequestFailedError) Unwrap() error {
	return e.Err
}

// Unauthorized reports whether the backend rejected the credentials or token.
func (e *RequestFailedError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// MediaLoadError is returned when an artifact's media cannot be fetched.
type MediaLoadError struct {
	URL    string
	Status int
	Err    error
}

func (e *MediaLoadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("failed to load media %s: status %d", e.URL, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("failed to load media %s: %v", e.URL, e.Err)
	}
	return "failed to load media " + e.URL
}

func (e *MediaLoadError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err is a backend rejection of the caller's credentials.
func IsUnauthorized(err error) bool {
	var reqErr *RequestFailedError
	return errors.As(err, &reqErr) && reqErr.Unauthorized()
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var reqErr *RequestFailedError
	if errors.As(err, &reqErr) {
		return reqErr.Status
	}
	return 0
}

// parseError builds a RequestFailedError from an error response body.
// The backend reports {"detail": "..."}; request validation failures carry
// {"detail": [{"msg": "..."}]} instead.
func parseError(status int, body []byte) error {
	msg := detailMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("HTTP error! status: %d", status)
	}
	return &RequestFailedError{Status: status, Message: msg}
}

func detailMessage(body []byte) string {
	var resp struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(resp.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(resp.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if m := strings.TrimSpace(item.Msg); m != "" {
				msgs = append(msgs, m)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
