package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"mindseye/pkg/dreamapi"
	"mindseye/pkg/session"
)

// newBackend fakes the dream service over HTTP so the app runs against the real client.
func newBackend(t *testing.T) (*dreamapi.Client, *atomic.Int32) {
	t.Helper()
	var listCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/dreams/":
			userID := "null"
			if r.Header.Get("Authorization") != "" {
				userID = "1"
			}
			_, _ = io.WriteString(w, `{"id":1,"prompt":"a mystical forest","image_url":"/static/img1.png","user_id":`+userID+`,"created_at":"2024-01-01T00:00:00Z"}`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/videos/":
			_, _ = io.WriteString(w, `{"id":5,"prompt":"waves","video_url":"/static/generated_videos/v5.mp4","created_at":"2024-01-01T00:00:00Z"}`)
		case r.URL.Path == "/api/v1/dreams/me" || r.URL.Path == "/api/v1/videos/me":
			listCalls.Add(1)
			if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"detail":"Authentication required"}`)
				return
			}
			if r.URL.Path == "/api/v1/videos/me" {
				_, _ = io.WriteString(w, `[{"id":5,"prompt":"waves","video_url":"/static/generated_videos/v5.mp4","user_id":1,"created_at":"2024-01-01T00:00:00Z"}]`)
				return
			}
			_, _ = io.WriteString(w, `[]`)
		case r.URL.Path == "/api/v1/videos/":
			_, _ = io.WriteString(w, `[{"id":9,"prompt":"recent","video_url":"/static/generated_videos/v9.mp4","created_at":"2024-01-01T00:00:00Z"}]`)
		case r.URL.Path == "/api/v1/auth/login":
			_ = r.ParseForm()
			if r.PostForm.Get("password") != "secret1" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"detail":"Invalid credentials"}`)
				return
			}
			_, _ = io.WriteString(w, `{"access_token":"tok","token_type":"bearer"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return dreamapi.New(dreamapi.WithOrigin(srv.URL)), &listCalls
}

func newApp(t *testing.T) (*App, *session.Store, *atomic.Int32) {
	t.Helper()
	api, calls := newBackend(t)
	sessions, err := session.Open(context.Background(), session.NewMemoryStorage())
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	a := New(context.Background(), api, sessions)
	t.Cleanup(a.Close)
	return a, sessions, calls
}

func TestAnonymousGenerationOffersSavePrompt(t *testing.T) {
	a, _, _ := newApp(t)

	art, err := a.GenerateDream(context.Background(), "a mystical forest")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	v := a.View()
	if v.SavePrompt == nil || v.SavePrompt.ID != art.ID {
		t.Fatalf("expected save prompt for %s, got %+v", art.ID, v.SavePrompt)
	}
	if len(v.Gallery.Items) != 1 || !strings.HasSuffix(v.Gallery.Items[0].MediaURL, "/static/img1.png") {
		t.Fatalf("gallery = %+v", v.Gallery)
	}
	if v.Auth != nil {
		t.Fatalf("auth dialog should be closed")
	}
}

func TestMaybeLaterDismissesWithoutAuth(t *testing.T) {
	a, _, _ := newApp(t)
	if _, err := a.GenerateDream(context.Background(), "a mystical forest"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	a.DeclineSavePrompt()
	v := a.View()
	if v.SavePrompt != nil {
		t.Fatalf("save prompt still shown")
	}
	if v.Auth != nil {
		t.Fatalf("declining must not open the auth dialog")
	}

	// The backend returns the same artifact id again; it stays dismissed.
	if _, err := a.GenerateDream(context.Background(), "a mystical forest"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a.View().SavePrompt != nil {
		t.Fatalf("dismissed artifact offered again")
	}
}

func TestAcceptSavePromptOpensAuth(t *testing.T) {
	a, sessions, _ := newApp(t)
	if _, err := a.GenerateDream(context.Background(), "a mystical forest"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	a.AcceptSavePrompt()
	v := a.View()
	if v.SavePrompt != nil || v.Auth == nil {
		t.Fatalf("expected auth dialog, got %+v", v)
	}

	a.Auth.SetEmail("u@example.com")
	a.Auth.SetPassword("secret1")
	if err := a.SubmitAuth(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}
	if sessions.Token() != "tok" {
		t.Fatalf("token = %q", sessions.Token())
	}
	if a.View().Auth != nil {
		t.Fatalf("auth dialog should close after login")
	}
}

func TestFailedLoginShowsBackendMessage(t *testing.T) {
	a, sessions, _ := newApp(t)
	a.OpenAuth()
	a.Auth.SetEmail("u@example.com")
	a.Auth.SetPassword("wrong-password")
	if err := a.SubmitAuth(context.Background()); err == nil {
		t.Fatalf("expected login failure")
	}
	v := a.View()
	if v.Auth == nil || v.Auth.Error != "Invalid credentials" {
		t.Fatalf("auth state = %+v", v.Auth)
	}
	if sessions.State() != session.Unauthenticated {
		t.Fatalf("state = %v", sessions.State())
	}
}

func TestAuthenticatedGenerationSkipsSavePrompt(t *testing.T) {
	a, sessions, _ := newApp(t)
	_ = sessions.Login(context.Background(), "tok", nil)
	art, err := a.GenerateDream(context.Background(), "a mystical forest")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !art.Saved() {
		t.Fatalf("authenticated artifact should be saved")
	}
	if a.View().SavePrompt != nil {
		t.Fatalf("save prompt shown to authenticated user")
	}
}

func TestDashboardRequiresLogin(t *testing.T) {
	a, _, calls := newApp(t)
	if err := a.OpenDashboard(context.Background()); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	v := a.View()
	if v.Dashboard != nil || v.Auth == nil {
		t.Fatalf("expected auth dialog instead of dashboard: %+v", v)
	}
	if calls.Load() != 0 {
		t.Fatalf("dashboard fetched without a session")
	}
}

func TestDashboardEmptyAndLogoutReset(t *testing.T) {
	a, sessions, calls := newApp(t)
	_ = sessions.Login(context.Background(), "tok", nil)
	a.bg.Wait()
	calls.Store(0)
	a.SetTab(TabVideos)

	if err := a.OpenDashboard(context.Background()); err != nil {
		t.Fatalf("open dashboard: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected images and videos fetched, got %d calls", calls.Load())
	}
	v := a.View()
	if v.Dashboard == nil || v.Dashboard.Images.Empty == nil || v.Dashboard.Images.Empty.Title != "No dreams yet" {
		t.Fatalf("expected dashboard empty state, got %+v", v.Dashboard)
	}

	if err := a.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	v = a.View()
	if v.Tab != TabDreams || v.Dashboard != nil || v.Auth != nil || v.SavePrompt != nil || v.Authenticated {
		t.Fatalf("expected landing composition, got %+v", v)
	}
	if a.Dashboard.Saved() != 0 || a.Dashboard.State().Loaded {
		t.Fatalf("dashboard data survived logout")
	}
}

func TestGenerateVideoAndRecent(t *testing.T) {
	a, _, calls := newApp(t)
	art, err := a.GenerateVideo(context.Background(), "waves")
	if err != nil {
		t.Fatalf("generate video: %v", err)
	}
	if _, err := a.GenerateVideo(context.Background(), "waves again"); err != nil {
		t.Fatalf("generate video: %v", err)
	}
	v := a.View()
	if v.Tab != TabVideos || len(v.Videos.Items) != 1 || v.Videos.Items[0].ID != art.ID {
		t.Fatalf("video tab should hold only the latest video: %+v", v.Videos)
	}
	if v.UserVideos != nil || calls.Load() != 0 {
		t.Fatalf("saved videos loaded while logged out")
	}
	if err := a.LoadRecentVideos(context.Background(), 5); err != nil {
		t.Fatalf("recent: %v", err)
	}
	if a.Recent.Len() != 1 {
		t.Fatalf("recent len = %d", a.Recent.Len())
	}
	a.ClearLatestVideo()
	if a.View().Videos.Empty == nil {
		t.Fatalf("video tab should be empty after clear")
	}
}

func TestCloseCancelsWork(t *testing.T) {
	a, _, _ := newApp(t)
	a.Close()
	if _, err := a.GenerateDream(context.Background(), "late"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled after close, got %v", err)
	}
}

func TestUserVideosFollowSession(t *testing.T) {
	a, sessions, calls := newApp(t)
	ctx := context.Background()

	if err := a.LoadUserVideos(ctx); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("saved videos fetched without a session")
	}

	if err := sessions.Login(ctx, "tok", nil); err != nil {
		t.Fatalf("login: %v", err)
	}
	a.bg.Wait()
	v := a.View()
	if v.UserVideos == nil || len(v.UserVideos.Items) != 1 || v.UserVideos.Items[0].ID != "5" {
		t.Fatalf("user videos after login = %+v", v.UserVideos)
	}

	before := calls.Load()
	if _, err := a.GenerateVideo(ctx, "waves"); err != nil {
		t.Fatalf("generate video: %v", err)
	}
	if calls.Load() != before+1 {
		t.Fatalf("saved videos not reloaded after generation")
	}

	if err := a.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if a.View().UserVideos != nil || a.UserVideos.Len() != 0 {
		t.Fatalf("saved videos survived logout")
	}
}
