package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"mindseye/pkg/domain"
	"mindseye/pkg/dreamapi"
	"mindseye/pkg/session"
	"mindseye/services/gateway/internal/store"
)

type backend struct {
	dreams     atomic.Int32
	failSaved  atomic.Bool
	authedGens atomic.Int32
}

func newBackend(t *testing.T) (*httptest.Server, *backend) {
	t.Helper()
	b := &backend{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authed := r.Header.Get("Authorization") == "Bearer tok"
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/dreams/":
			n := b.dreams.Add(1)
			userID := "null"
			if authed {
				b.authedGens.Add(1)
				userID = "7"
			}
			_, _ = io.WriteString(w, `{"id":`+strconv.Itoa(int(n))+`,"prompt":"p","image_url":"/static/d.png","user_id":`+userID+`,"created_at":"2024-01-01T00:00:00"}`)
		case r.URL.Path == "/api/v1/dreams/me" || r.URL.Path == "/api/v1/videos/me":
			if !authed {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"detail":"Not authenticated"}`)
				return
			}
			if b.failSaved.Load() {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, `{"detail":"database unavailable"}`)
				return
			}
			_, _ = io.WriteString(w, `[]`)
		case r.URL.Path == "/api/v1/auth/login":
			_ = r.ParseForm()
			if r.PostForm.Get("username") != "u@example.com" || r.PostForm.Get("password") != "secret1" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"detail":"Invalid credentials"}`)
				return
			}
			_, _ = io.WriteString(w, `{"access_token":"tok","token_type":"bearer"}`)
		case r.URL.Path == "/api/v1/auth/register":
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":7,"email":"u@example.com","created_at":"2024-01-01T00:00:00"}`)
		case r.URL.Path == "/":
			_, _ = io.WriteString(w, `{"message":"OK"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, b
}

func newTestApp(t *testing.T) (*App, *backend, *miniredis.Miniredis) {
	t.Helper()
	srv, b := newBackend(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	galleries, err := store.NewRedisGalleryStore(rdb, 10, time.Hour)
	if err != nil {
		t.Fatalf("gallery store: %v", err)
	}
	a, err := New(Config{
		API:        dreamapi.New(dreamapi.WithOrigin(srv.URL)),
		Redis:      rdb,
		Gallery:    galleries,
		SessionTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, b, mr
}

var goodCreds = domain.Credentials{Email: "u@example.com", Password: "secret1"}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without api client")
	}
	if _, err := New(Config{API: dreamapi.New()}); err == nil {
		t.Fatal("expected error without redis")
	}
}

func TestGenerateOffersSaveOnlyWhenAnonymous(t *testing.T) {
	a, b, _ := newTestApp(t)
	ctx := context.Background()

	gen, err := a.Generate(ctx, "anon", domain.KindImage, "  a quiet lake ")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !gen.OfferSave || gen.Artifact.Saved() {
		t.Fatalf("anonymous generation = %+v", gen)
	}
	view, err := a.Gallery(ctx, "anon", domain.KindImage)
	if err != nil {
		t.Fatalf("gallery: %v", err)
	}
	if len(view.Items) != 1 || view.Items[0].ID != gen.Artifact.ID {
		t.Fatalf("gallery = %+v", view)
	}

	if _, err := a.Login(ctx, "", "member", goodCreds); err != nil {
		t.Fatalf("login: %v", err)
	}
	gen, err = a.Generate(ctx, "member", domain.KindImage, "a saved lake")
	if err != nil {
		t.Fatalf("authenticated generate: %v", err)
	}
	if gen.OfferSave || !gen.Artifact.Saved() || b.authedGens.Load() != 1 {
		t.Fatalf("authenticated generation = %+v", gen)
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	a, b, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.Generate(ctx, "anon", domain.MediaKind("audio"), "x"); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("kind err = %v", err)
	}
	if _, err := a.Generate(ctx, "  ", domain.KindImage, "x"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("session err = %v", err)
	}
	if _, err := a.Generate(ctx, "anon", domain.KindImage, "   "); err == nil {
		t.Fatal("expected validation error")
	}
	if b.dreams.Load() != 0 {
		t.Fatalf("backend called %d times", b.dreams.Load())
	}
}

func TestDashboardRequiresLogin(t *testing.T) {
	a, _, _ := newTestApp(t)
	if _, err := a.Dashboard(context.Background(), "anon"); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Fatalf("err = %v", err)
	}
	if _, err := a.Saved(context.Background(), "anon", domain.KindVideo); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Fatalf("saved err = %v", err)
	}
}

func TestDashboardReportsBackendFailure(t *testing.T) {
	a, b, _ := newTestApp(t)
	ctx := context.Background()
	if _, err := a.Login(ctx, "", "member", goodCreds); err != nil {
		t.Fatalf("login: %v", err)
	}

	st, err := a.Dashboard(ctx, "member")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if !st.Loaded || st.Images.Empty == nil || st.Images.Empty.Title != "No dreams yet" {
		t.Fatalf("dashboard = %+v", st)
	}

	b.failSaved.Store(true)
	st, err = a.Dashboard(ctx, "member")
	if dreamapi.StatusOf(err) != http.StatusInternalServerError {
		t.Fatalf("err = %v", err)
	}
	if st.Error != "database unavailable" || st.Loading {
		t.Fatalf("failed dashboard = %+v", st)
	}
}

func TestLoginMovesGalleryAndRetiresPreviousSession(t *testing.T) {
	a, _, mr := newTestApp(t)
	ctx := context.Background()

	if _, err := a.Generate(ctx, "old", domain.KindImage, "a lake"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	view, err := a.Login(ctx, "old", "new", goodCreds)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !view.Authenticated || view.User == nil || view.User.Email != "u@example.com" {
		t.Fatalf("view = %+v", view)
	}

	moved, _ := a.Gallery(ctx, "new", domain.KindImage)
	if len(moved.Items) != 1 {
		t.Fatalf("new gallery = %+v", moved)
	}
	left, _ := a.Gallery(ctx, "old", domain.KindImage)
	if len(left.Items) != 0 {
		t.Fatalf("old gallery = %+v", left)
	}
	old, err := a.Session(ctx, "old")
	if err != nil || old.Authenticated {
		t.Fatalf("old session = %+v, %v", old, err)
	}
	for _, key := range mr.Keys() {
		if key == "mindseye:session:old" {
			t.Fatalf("previous session key %q still present", key)
		}
	}
}

func TestFailedLoginKeepsPreviousSession(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.Login(ctx, "", "first", goodCreds); err != nil {
		t.Fatalf("login: %v", err)
	}
	_, err := a.Login(ctx, "first", "second", domain.Credentials{Email: "u@example.com", Password: "wrong12"})
	if !dreamapi.IsUnauthorized(err) {
		t.Fatalf("err = %v", err)
	}
	first, err := a.Session(ctx, "first")
	if err != nil || !first.Authenticated {
		t.Fatalf("first session = %+v, %v", first, err)
	}
	second, _ := a.Session(ctx, "second")
	if second.Authenticated {
		t.Fatal("failed login must not authenticate the new id")
	}

	if _, err := a.Login(ctx, "", "first", goodCreds); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("reusing a logged-in id err = %v", err)
	}
}

func TestRegisterLeavesSessionsAlone(t *testing.T) {
	a, _, mr := newTestApp(t)
	notice, err := a.Register(context.Background(), goodCreds)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if notice != "Registration successful! Please log in." {
		t.Fatalf("notice = %q", notice)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("register wrote %v", keys)
	}
}

func TestPing(t *testing.T) {
	a, _, mr := newTestApp(t)
	if err := a.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	mr.Close()
	if err := a.Ping(context.Background()); err == nil {
		t.Fatal("expected redis failure")
	}
}

func TestSavedEmptyStatesPerKind(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()
	if _, err := a.Login(ctx, "", "member", goodCreds); err != nil {
		t.Fatalf("login: %v", err)
	}
	images, err := a.Saved(ctx, "member", domain.KindImage)
	if err != nil || images.Empty == nil || images.Empty.Title != "No dreams yet" {
		t.Fatalf("saved images = %+v, %v", images, err)
	}
	videos, err := a.Saved(ctx, "member", domain.KindVideo)
	if err != nil || videos.Empty == nil || videos.Empty.Title != "No videos yet" {
		t.Fatalf("saved videos = %+v, %v", videos, err)
	}
}
