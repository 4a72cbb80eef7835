// Package app runs the client view-models on behalf of browser sessions.
// Each request opens the caller's session from Redis, drives the same forms
// and views a local client uses, and persists the outcome.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"mindseye/internal/forms"
	"mindseye/internal/gallery"
	"mindseye/pkg/domain"
	"mindseye/pkg/dreamapi"
	"mindseye/pkg/session"
	"mindseye/services/gateway/internal/store"
)

// Config holds runtime dependencies for the core application.
type Config struct {
	API         *dreamapi.Client
	Redis       *redis.Client
	Gallery     store.GalleryStore
	SessionTTL  time.Duration
	RecentLimit int
}

// App is the gateway core shared by all requests.
type App struct {
	api         *dreamapi.Client
	redis       *redis.Client
	gallery     store.GalleryStore
	sessionTTL  time.Duration
	recentLimit int
}

// SessionView is what a browser learns about its own session.
type SessionView struct {
	Authenticated bool         `json:"authenticated"`
	User          *domain.User `json:"user,omitempty"`
}

// Generated is the result of one generation. OfferSave asks the UI to show
// the save prompt because the artifact was not saved to an account.
type Generated struct {
	Artifact  domain.Artifact `json:"artifact"`
	OfferSave bool            `json:"offerSave"`
}

// New validates cfg and builds the core.
func New(cfg Config) (*App, error) {
	if cfg.API == nil {
		return nil, errors.New("app: dream api client is required")
	}
	if cfg.Redis == nil {
		return nil, errors.New("app: redis client is required")
	}
	if cfg.Gallery == nil {
		return nil, errors.New("app: gallery store is required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = dreamapi.DefaultRecentLimit
	}
	return &App{
		api:         cfg.API,
		redis:       cfg.Redis,
		gallery:     cfg.Gallery,
		sessionTTL:  cfg.SessionTTL,
		recentLimit: cfg.RecentLimit,
	}, nil
}

func (a *App) openSession(ctx context.Context, sid string) (*session.Store, *session.RedisStorage, error) {
	sid = strings.TrimSpace(sid)
	if sid == "" {
		return nil, nil, ErrInvalidSession
	}
	storage, err := session.NewRedisStorage(a.redis, sid, session.WithRedisTTL(a.sessionTTL))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	sess, err := session.Open(ctx, storage)
	if err != nil {
		return nil, nil, err
	}
	return sess, storage, nil
}

func viewOf(sess *session.Store) SessionView {
	v := SessionView{Authenticated: sess.IsAuthenticated()}
	if u, ok := sess.User(); ok {
		v.User = &u
	}
	return v
}

// Session reports the session state and extends its lifetime when logged in.
func (a *App) Session(ctx context.Context, sid string) (SessionView, error) {
	sess, storage, err := a.openSession(ctx, sid)
	if err != nil {
		return SessionView{}, err
	}
	if sess.IsAuthenticated() {
		if err := storage.Touch(ctx); err != nil {
			slog.Warn("session touch failed", "err", err)
		}
	}
	return viewOf(sess), nil
}

// Login authenticates the new session sid. The caller's previous session
// prev (may be empty) is only retired after the backend accepts the
// credentials: its gallery moves to sid and its login is deleted. A failed
// attempt leaves prev as it was.
func (a *App) Login(ctx context.Context, prev, sid string, creds domain.Credentials) (SessionView, error) {
	sess, _, err := a.openSession(ctx, sid)
	if err != nil {
		return SessionView{}, err
	}
	if sess.IsAuthenticated() {
		return SessionView{}, fmt.Errorf("%w: session id already in use", ErrInvalidSession)
	}
	dialog := forms.NewAuthDialog(a.api, sess, nil)
	dialog.SetEmail(creds.Email)
	dialog.SetPassword(creds.Password)
	if err := dialog.Submit(ctx); err != nil {
		return SessionView{}, err
	}
	if prev = strings.TrimSpace(prev); prev != "" && prev != sid {
		if err := a.gallery.Move(ctx, prev, sid); err != nil {
			slog.Warn("move gallery to new session failed", "err", err)
		}
		if err := a.destroySession(ctx, prev); err != nil {
			slog.Warn("retire previous session failed", "err", err)
		}
	}
	return viewOf(sess), nil
}

func (a *App) destroySession(ctx context.Context, sid string) error {
	storage, err := session.NewRedisStorage(a.redis, sid, session.WithRedisTTL(a.sessionTTL))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	return storage.Destroy(ctx)
}

// Register creates an account and returns the notice shown before logging in.
// No session is created or changed.
func (a *App) Register(ctx context.Context, creds domain.Credentials) (string, error) {
	sess, err := session.Open(ctx, session.NewMemoryStorage())
	if err != nil {
		return "", err
	}
	dialog := forms.NewAuthDialog(a.api, sess, nil)
	dialog.SetMode(forms.ModeRegister)
	dialog.SetEmail(creds.Email)
	dialog.SetPassword(creds.Password)
	if err := dialog.Submit(ctx); err != nil {
		return "", err
	}
	return dialog.State().Notice, nil
}

// Logout ends the login on sid. The session's gallery is kept.
func (a *App) Logout(ctx context.Context, sid string) error {
	sess, _, err := a.openSession(ctx, sid)
	if err != nil {
		return err
	}
	return sess.Logout(ctx)
}

// UpdateUser patches the cached profile of a logged-in session.
func (a *App) UpdateUser(ctx context.Context, sid string, user domain.User) (SessionView, error) {
	sess, _, err := a.openSession(ctx, sid)
	if err != nil {
		return SessionView{}, err
	}
	if err := sess.UpdateUser(ctx, user); err != nil {
		return SessionView{}, err
	}
	return viewOf(sess), nil
}

// Generate runs a generation form for kind with the session's token and adds
// the artifact to the session gallery.
func (a *App) Generate(ctx context.Context, sid string, kind domain.MediaKind, text string) (Generated, error) {
	if !kind.Valid() {
		return Generated{}, ErrInvalidKind
	}
	sess, _, err := a.openSession(ctx, sid)
	if err != nil {
		return Generated{}, err
	}
	form := forms.NewForm(kind, a.api, sess, func(art domain.Artifact) {
		if err := a.gallery.Prepend(ctx, sid, art); err != nil {
			slog.Warn("gallery prepend failed", "kind", art.Kind, "err", err)
		}
	})
	form.SetInput(text)
	art, err := form.Submit(ctx)
	if err != nil {
		return Generated{}, err
	}
	return Generated{Artifact: art, OfferSave: !sess.IsAuthenticated()}, nil
}

// Gallery renders the session's generated artifacts of kind.
func (a *App) Gallery(ctx context.Context, sid string, kind domain.MediaKind) (gallery.ViewState, error) {
	if !kind.Valid() {
		return gallery.ViewState{}, ErrInvalidKind
	}
	items, err := a.gallery.List(ctx, sid, kind)
	if err != nil {
		return gallery.ViewState{}, err
	}
	empty := gallery.GalleryEmpty
	if kind == domain.KindVideo {
		empty = gallery.VideosEmpty
	}
	view := gallery.NewView(empty)
	view.Replace(items)
	return view.State(), nil
}

// ClearGallery removes the session's generated artifacts of kind.
func (a *App) ClearGallery(ctx context.Context, sid string, kind domain.MediaKind) error {
	if !kind.Valid() {
		return ErrInvalidKind
	}
	return a.gallery.Clear(ctx, sid, kind)
}

// Saved lists the account's saved artifacts of kind.
func (a *App) Saved(ctx context.Context, sid string, kind domain.MediaKind) (gallery.ViewState, error) {
	if !kind.Valid() {
		return gallery.ViewState{}, ErrInvalidKind
	}
	sess, _, err := a.openSession(ctx, sid)
	if err != nil {
		return gallery.ViewState{}, err
	}
	if !sess.IsAuthenticated() {
		return gallery.ViewState{}, session.ErrNotAuthenticated
	}
	var items []domain.Artifact
	if kind == domain.KindVideo {
		items, err = a.api.ListMyVideos(ctx, sess.Token())
	} else {
		items, err = a.api.ListMyImages(ctx, sess.Token())
	}
	if err != nil {
		return gallery.ViewState{}, err
	}
	empty := gallery.DashboardEmpty
	if kind == domain.KindVideo {
		empty = gallery.VideosEmpty
	}
	view := gallery.NewView(empty)
	view.Replace(items)
	return view.State(), nil
}

// Dashboard fetches both saved lists for the logged-in session.
func (a *App) Dashboard(ctx context.Context, sid string) (gallery.DashboardState, error) {
	sess, _, err := a.openSession(ctx, sid)
	if err != nil {
		return gallery.DashboardState{}, err
	}
	if !sess.IsAuthenticated() {
		return gallery.DashboardState{}, session.ErrNotAuthenticated
	}
	dash := gallery.NewDashboard(ctx, a.api, sess)
	defer dash.Close()
	if err := dash.Refresh(ctx); err != nil {
		return dash.State(), err
	}
	return dash.State(), nil
}

// Recent lists the latest public videos. limit <= 0 uses the configured default.
func (a *App) Recent(ctx context.Context, limit int) (gallery.ViewState, error) {
	if limit <= 0 {
		limit = a.recentLimit
	}
	items, err := a.api.ListRecentVideos(ctx, limit)
	if err != nil {
		return gallery.ViewState{}, err
	}
	view := gallery.NewView(gallery.VideosEmpty)
	view.Replace(items)
	return view.State(), nil
}

// Ping checks the dream backend and Redis.
func (a *App) Ping(ctx context.Context) error {
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := a.api.Ping(ctx); err != nil {
		return fmt.Errorf("dream api: %w", err)
	}
	return nil
}
