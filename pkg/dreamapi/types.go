package dreamapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"mindseye/pkg/domain"
)

// artifactResponse covers both the dream and the video response bodies.
type artifactResponse struct {
	ID        *int64 `json:"id"`
	Prompt    string `json:"prompt"`
	ImageURL  string `json:"image_url"`
	VideoURL  string `json:"video_url"`
	UserID    *int64 `json:"user_id"`
	CreatedAt string `json:"created_at"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type userResponse struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

func (u userResponse) toUser() domain.User {
	user := domain.User{Email: u.Email}
	if u.ID != 0 {
		user.ID = strconv.FormatInt(u.ID, 10)
	}
	return user
}

// toArtifact is the only place media URLs are rewritten.
func (c *Client) toArtifact(kind domain.MediaKind, r artifactResponse) domain.Artifact {
	mediaURL := r.ImageURL
	if kind == domain.KindVideo {
		mediaURL = r.VideoURL
	}
	id := uuid.NewString()
	if r.ID != nil {
		id = strconv.FormatInt(*r.ID, 10)
	}
	return domain.Artifact{
		ID:        id,
		Kind:      kind,
		Prompt:    r.Prompt,
		MediaURL:  c.NormalizeMediaURL(mediaURL),
		CreatedAt: c.parseTimestamp(r.CreatedAt),
		OwnerID:   r.UserID,
	}
}

func (c *Client) toArtifacts(kind domain.MediaKind, rs []artifactResponse) []domain.Artifact {
	out := make([]domain.Artifact, 0, len(rs))
	for _, r := range rs {
		out = append(out, c.toArtifact(kind, r))
	}
	return out
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp accepts ISO-8601 with or without a zone. Naive values are UTC.
// Unparseable values fall back to the local clock so the artifact still sorts.
func (c *Client) parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return c.now().UTC()
}
