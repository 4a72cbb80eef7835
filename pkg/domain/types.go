package domain

import "time"

type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

// MaxPromptLength bounds a generation prompt, counted in characters after trimming.
const MaxPromptLength = 500

type Artifact struct {
	ID        string    `json:"id"`
	Kind      MediaKind `json:"kind"`
	Prompt    string    `json:"prompt"`
	MediaURL  string    `json:"mediaUrl"`
	CreatedAt time.Time `json:"createdAt"`
	OwnerID   *int64    `json:"ownerId,omitempty"`
}

type User struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// Saved reports whether the backend persisted the artifact for a user.
func (a Artifact) Saved() bool {
	return a.OwnerID != nil
}

func (k MediaKind) Valid() bool {
	return k == KindImage || k == KindVideo
}

// Label is the user-facing noun for prompts of this kind.
func (k MediaKind) Label() string {
	if k == KindVideo {
		return "video"
	}
	return "dream"
}
