// Package dreamapi is the HTTP client for the dream visualizer backend.
//
// Every call is a single round trip bounded only by its context: there are no
// retries, no caching and no client-side timeout. Media URLs in responses are
// rewritten to absolute URLs before they are returned.
package dreamapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mindseye/pkg/domain"
)

const (
	// DefaultOrigin is the backend the client talks to when no origin is configured.
	DefaultOrigin = "http://localhost:8000"
	// APIPrefix is prepended to every API path.
	APIPrefix = "/api/v1"
	// DefaultStaticPrefix is the backend namespace for generated media.
	DefaultStaticPrefix = "/static/"

	// DefaultRecentLimit matches the backend default for the public video listing.
	DefaultRecentLimit = 10

	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerUserAgent     = "User-Agent"
	contentTypeJSON     = "application/json"
	contentTypeForm     = "application/x-www-form-urlencoded"
	defaultUserAgent    = "mindseye-go/1.0"
)

// Client calls the dream backend over HTTP.
type Client struct {
	origin         string
	httpClient     *http.Client
	staticPrefixes []string
	userAgent      string
	now            func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithOrigin sets the backend origin, e.g. "https://dreams.example.com".
// A trailing "/api/v1" is tolerated and stripped.
func WithOrigin(origin string) Option {
	return func(c *Client) {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		origin = strings.TrimSuffix(origin, APIPrefix)
		if origin != "" {
			c.origin = origin
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithStaticPrefixes replaces the set of backend-relative media prefixes.
func WithStaticPrefixes(prefixes ...string) Option {
	return func(c *Client) {
		out := make([]string, 0, len(prefixes))
		for _, p := range prefixes {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if !strings.HasPrefix(p, "/") {
				p = "/" + p
			}
			out = append(out, p)
		}
		if len(out) > 0 {
			c.staticPrefixes = out
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if strings.TrimSpace(ua) != "" {
			c.userAgent = ua
		}
	}
}

// New constructs a backend client.
func New(opts ...Option) *Client {
	c := &Client{
		origin:         DefaultOrigin,
		httpClient:     &http.Client{},
		staticPrefixes: []string{DefaultStaticPrefix},
		userAgent:      defaultUserAgent,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Origin returns the backend origin used for API calls and media URLs.
func (c *Client) Origin() string {
	return c.origin
}

// GenerateImage asks the backend to synthesize an image. With an empty token
// the call is anonymous and the artifact is not saved for any user.
func (c *Client) GenerateImage(ctx context.Context, req domain.GenerateRequest, token string) (domain.Artifact, error) {
	var resp artifactResponse
	if err := c.doJSON(ctx, http.MethodPost, "/dreams/", token, req, &resp); err != nil {
		return domain.Artifact{}, err
	}
	return c.toArtifact(domain.KindImage, resp), nil
}

// GenerateVideo asks the backend to synthesize a short video.
func (c *Client) GenerateVideo(ctx context.Context, req domain.GenerateRequest, token string) (domain.Artifact, error) {
	var resp artifactResponse
	if err := c.doJSON(ctx, http.MethodPost, "/videos/", token, req, &resp); err != nil {
		return domain.Artifact{}, err
	}
	return c.toArtifact(domain.KindVideo, resp), nil
}

// ListMyImages returns the images saved for the token's user.
func (c *Client) ListMyImages(ctx context.Context, token string) ([]domain.Artifact, error) {
	var resp []artifactResponse
	if err := c.doJSON(ctx, http.MethodGet, "/dreams/me", token, nil, &resp); err != nil {
		return nil, err
	}
	return c.toArtifacts(domain.KindImage, resp), nil
}

// ListMyVideos returns the videos saved for the token's user.
func (c *Client) ListMyVideos(ctx context.Context, token string) ([]domain.Artifact, error) {
	var resp []artifactResponse
	if err := c.doJSON(ctx, http.MethodGet, "/videos/me", token, nil, &resp); err != nil {
		return nil, err
	}
	return c.toArtifacts(domain.KindVideo, resp), nil
}

// ListRecentVideos returns the most recent videos across all users, newest first.
func (c *Client) ListRecentVideos(ctx context.Context, limit int) ([]domain.Artifact, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	var resp []artifactResponse
	path := "/videos/?limit=" + strconv.Itoa(limit)
	if err := c.doJSON(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, err
	}
	return c.toArtifacts(domain.KindVideo, resp), nil
}

// Login exchanges credentials for a bearer token. The backend expects an
// OAuth2 password form, so the email travels as "username".
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (string, error) {
	form := url.Values{}
	form.Set("username", creds.Email)
	form.Set("password", creds.Password)

	req, err := c.newRequest(ctx, http.MethodPost, c.apiURL("/auth/login"), "", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set(headerContentType, contentTypeForm)

	var resp tokenResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		return "", &RequestFailedError{Status: http.StatusOK, Message: "login response missing access token"}
	}
	return resp.AccessToken, nil
}

// Register creates an account. It does not log the user in.
func (c *Client) Register(ctx context.Context, creds domain.Credentials) (domain.User, error) {
	var resp userResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/register", "", creds, &resp); err != nil {
		return domain.User{}, err
	}
	return resp.toUser(), nil
}

// Ping checks that the backend answers on its root path.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.origin+"/", "", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) apiURL(path string) string {
	return c.origin + APIPrefix + path
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, c.apiURL(path), token, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set(headerContentType, contentTypeJSON)
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, rawURL, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(headerUserAgent, c.userAgent)
	req.Header.Set("Accept", contentTypeJSON)
	if token != "" {
		req.Header.Set(headerAuthorization, "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Debug("dreamapi request failed", "method", req.Method, "path", req.URL.Path, "err", err)
		return &RequestFailedError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RequestFailedError{Status: resp.StatusCode, Message: err.Error(), Err: err}
	}
	slog.Debug(
		"dreamapi request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp.StatusCode, respBody)
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &RequestFailedError{
			Status:  resp.StatusCode,
			Message: "invalid response from server",
			Err:     fmt.Errorf("parse response: %w", err),
		}
	}
	return nil
}
