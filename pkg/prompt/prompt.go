// Package prompt validates generation prompts before they reach the network.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"mindseye/pkg/domain"
)

// ValidationError is a client-side rejection of a prompt. It never involves a request.
type ValidationError struct {
	Kind    domain.MediaKind
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validate trims text and checks it against the prompt bounds for kind.
// The returned prompt is the trimmed value that should be sent.
func Validate(kind domain.MediaKind, text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	label := kind.Label()
	if trimmed == "" {
		return "", &ValidationError{
			Kind:    kind,
			Message: fmt.Sprintf("Please enter a %s description", label),
		}
	}
	if Length(trimmed) > domain.MaxPromptLength {
		return "", &ValidationError{
			Kind:    kind,
			Message: fmt.Sprintf("%s description must be %d characters or less", capitalize(label), domain.MaxPromptLength),
		}
	}
	return trimmed, nil
}

// Length counts characters, not bytes.
func Length(text string) int {
	return utf8.RuneCountInString(text)
}

// Counter renders the "N/500" indicator shown next to a prompt input.
func Counter(text string) string {
	return fmt.Sprintf("%d/%d", Length(text), domain.MaxPromptLength)
}

// Remaining reports how many characters can still be typed; negative when over.
func Remaining(text string) int {
	return domain.MaxPromptLength - Length(strings.TrimSpace(text))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
