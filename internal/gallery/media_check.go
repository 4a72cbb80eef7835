package gallery

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"mindseye/pkg/domain"
	"mindseye/pkg/dreamapi"
)

const defaultCheckConcurrency = 4

// MediaOpener fetches an artifact's media.
type MediaOpener interface {
	OpenMedia(ctx context.Context, a domain.Artifact) (*dreamapi.Media, error)
}

// CheckMedia checks each item's media once and records the outcome on the view.
// It returns the number of failed items.
func (v *View) CheckMedia(ctx context.Context, opener MediaOpener) int {
	items := v.Items()
	failed := make([]bool, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultCheckConcurrency)
	for i, a := range items {
		g.Go(func() error {
			media, err := opener.OpenMedia(gctx, a)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				v.ReportMediaError(a.ID, err)
				failed[i] = true
				return nil
			}
			_, _ = io.Copy(io.Discard, io.LimitReader(media.Body, 512))
			media.Body.Close()
			v.ReportMediaLoaded(a.ID)
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, f := range failed {
		if f {
			n++
		}
	}
	return n
}
