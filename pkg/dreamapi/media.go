package dreamapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"mindseye/pkg/domain"
)

// NormalizeMediaURL rewrites a backend-relative media path into an absolute
// URL on the backend origin. Absolute URLs, empty values and paths outside the
// static namespace are returned unchanged, so applying it twice is a no-op.
func (c *Client) NormalizeMediaURL(raw string) string {
	if raw == "" {
		return raw
	}
	for _, prefix := range c.staticPrefixes {
		if strings.HasPrefix(raw, prefix) {
			return c.origin + raw
		}
	}
	return raw
}

// Media is an open media stream. Callers must close Body.
type Media struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// OpenMedia fetches the artifact's media. Failures are *MediaLoadError.
func (c *Client) OpenMedia(ctx context.Context, a domain.Artifact) (*Media, error) {
	if a.MediaURL == "" {
		return nil, &MediaLoadError{URL: a.MediaURL, Err: fmt.Errorf("artifact %s has no media url", a.ID)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.MediaURL, nil)
	if err != nil {
		return nil, &MediaLoadError{URL: a.MediaURL, Err: err}
	}
	req.Header.Set(headerUserAgent, c.userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &MediaLoadError{URL: a.MediaURL, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()
		return nil, &MediaLoadError{URL: a.MediaURL, Status: resp.StatusCode}
	}
	return &Media{
		Body:        resp.Body,
		ContentType: resp.Header.Get(headerContentType),
		Size:        resp.ContentLength,
	}, nil
}

// Download copies the artifact's media into w and returns the bytes written.
func (c *Client) Download(ctx context.Context, a domain.Artifact, w io.Writer) (int64, error) {
	media, err := c.OpenMedia(ctx, a)
	if err != nil {
		return 0, err
	}
	defer media.Body.Close()
	n, err := io.Copy(w, media.Body)
	if err != nil {
		return n, &MediaLoadError{URL: a.MediaURL, Err: err}
	}
	return n, nil
}

// DownloadName is the suggested file name for saving an artifact.
func DownloadName(a domain.Artifact) string {
	ext := ""
	if u, err := url.Parse(a.MediaURL); err == nil {
		ext = path.Ext(u.Path)
	}
	if a.Kind == domain.KindVideo {
		if ext == "" {
			ext = ".mp4"
		}
		return "ai-video-" + a.ID + ext
	}
	if ext == "" {
		ext = ".png"
	}
	return "dream-" + a.ID + ext
}
