// Package store persists each browser session's local gallery: the artifacts
// generated in that session, newest first.
package store

import (
	"context"

	"mindseye/pkg/domain"
)

// GalleryStore keeps per-session galleries keyed by session id.
type GalleryStore interface {
	Prepend(ctx context.Context, sid string, art domain.Artifact) error
	List(ctx context.Context, sid string, kind domain.MediaKind) ([]domain.Artifact, error)
	Clear(ctx context.Context, sid string, kind domain.MediaKind) error
	// Move hands every gallery of from over to to, replacing what to held.
	Move(ctx context.Context, from, to string) error
}
