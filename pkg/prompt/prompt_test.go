package prompt

import (
	"errors"
	"strings"
	"testing"

	"mindseye/pkg/domain"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		kind    domain.MediaKind
		input   string
		want    string
		wantErr string
	}{
		{
			name:  "accepts a short prompt",
			kind:  domain.KindImage,
			input: "a mystical forest",
			want:  "a mystical forest",
		},
		{
			name:  "trims surrounding whitespace",
			kind:  domain.KindImage,
			input: "  floating islands \n",
			want:  "floating islands",
		},
		{
			name:    "rejects empty prompt",
			kind:    domain.KindImage,
			input:   "",
			wantErr: "Please enter a dream description",
		},
		{
			name:    "rejects whitespace only prompt",
			kind:    domain.KindImage,
			input:   " \t\n ",
			wantErr: "Please enter a dream description",
		},
		{
			name:    "video prompts use video wording",
			kind:    domain.KindVideo,
			input:   "",
			wantErr: "Please enter a video description",
		},
		{
			name:  "accepts exactly the limit",
			kind:  domain.KindImage,
			input: strings.Repeat("a", 500),
			want:  strings.Repeat("a", 500),
		},
		{
			name:    "rejects one over the limit",
			kind:    domain.KindImage,
			input:   strings.Repeat("a", 501),
			wantErr: "Dream description must be 500 characters or less",
		},
		{
			name:    "video limit message",
			kind:    domain.KindVideo,
			input:   strings.Repeat("b", 501),
			wantErr: "Video description must be 500 characters or less",
		},
		{
			name:  "limit applies after trimming",
			kind:  domain.KindImage,
			input: "   " + strings.Repeat("a", 500) + "   ",
			want:  strings.Repeat("a", 500),
		},
		{
			name:  "counts characters not bytes",
			kind:  domain.KindImage,
			input: strings.Repeat("夢", 500),
			want:  strings.Repeat("夢", 500),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Validate(tc.kind, tc.input)
			if tc.wantErr != "" {
				var vErr *ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("expected validation error, got %v", err)
				}
				if vErr.Message != tc.wantErr {
					t.Fatalf("message = %q, want %q", vErr.Message, tc.wantErr)
				}
				if got != "" {
					t.Fatalf("expected empty prompt on error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("prompt = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCounter(t *testing.T) {
	if got := Counter("a mystical forest"); got != "17/500" {
		t.Fatalf("counter = %q", got)
	}
	if got := Remaining(strings.Repeat("x", 501)); got != -1 {
		t.Fatalf("remaining = %d, want -1", got)
	}
}
