// Package app composes the forms, views and session into the top-level
// client state: active tab, dashboard, auth dialog and save prompt.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"mindseye/internal/forms"
	"mindseye/internal/gallery"
	"mindseye/pkg/domain"
	"mindseye/pkg/session"
)

type Tab string

const (
	TabDreams Tab = "dreams"
	TabVideos Tab = "videos"
)

// Backend is everything the client needs from the dream service.
type Backend interface {
	forms.Generator
	forms.Authenticator
	gallery.Lister
	ListRecentVideos(ctx context.Context, limit int) ([]domain.Artifact, error)
}

// ViewState is a rendering snapshot of the whole client.
type ViewState struct {
	Tab           Tab                     `json:"tab"`
	Authenticated bool                    `json:"authenticated"`
	User          *domain.User            `json:"user,omitempty"`
	DreamForm     forms.FormState         `json:"dreamForm"`
	VideoForm     forms.FormState         `json:"videoForm"`
	Gallery       gallery.ViewState       `json:"gallery"`
	Videos        gallery.ViewState       `json:"videos"`
	UserVideos    *gallery.ViewState      `json:"userVideos,omitempty"`
	Recent        gallery.ViewState       `json:"recent"`
	Dashboard     *gallery.DashboardState `json:"dashboard,omitempty"`
	Auth          *forms.AuthState        `json:"auth,omitempty"`
	SavePrompt    *domain.Artifact        `json:"savePrompt,omitempty"`
}

// App owns the top-level UI state. All work it starts is bound to the
// context passed to New and stops on Close.
type App struct {
	ctx      context.Context
	cancel   context.CancelFunc
	api      Backend
	sessions *session.Store

	DreamForm *forms.Form
	VideoForm *forms.Form
	Auth      *forms.AuthDialog
	Gallery   *gallery.View
	Recent    *gallery.View
	Dashboard *gallery.Dashboard

	// Videos holds the latest generated video only.
	Videos     *gallery.View
	// UserVideos lists the logged-in user's saved videos on the video tab.
	UserVideos *gallery.View

	mu            sync.Mutex
	tab           Tab
	dashboardOpen bool
	authOpen      bool
	savePrompt    *domain.Artifact
	dismissed     map[string]struct{}
	unsubscribe   func()
	videosGen     uint64
	bg            sync.WaitGroup
}

// New wires a client around api and sessions.
func New(parent context.Context, api Backend, sessions *session.Store) *App {
	ctx, cancel := context.WithCancel(parent)
	a := &App{
		ctx:        ctx,
		cancel:     cancel,
		api:        api,
		sessions:   sessions,
		Gallery:    gallery.NewView(gallery.GalleryEmpty),
		Videos:     gallery.NewView(gallery.VideosEmpty),
		UserVideos: gallery.NewView(gallery.VideosEmpty),
		Recent:     gallery.NewView(gallery.VideosEmpty),
		tab:        TabDreams,
		dismissed:  make(map[string]struct{}),
	}
	a.DreamForm = forms.NewImageForm(api, sessions, a.handleGenerated)
	a.VideoForm = forms.NewVideoForm(api, sessions, a.handleGenerated)
	a.Auth = forms.NewAuthDialog(api, sessions, a.handleLoggedIn)
	a.Dashboard = gallery.NewDashboard(ctx, api, sessions)
	a.unsubscribe = sessions.Subscribe(a.handleSessionEvent)
	return a
}

// Context is the lifetime of the app; requests started from it stop on Close.
func (a *App) Context() context.Context {
	return a.ctx
}

// Session exposes the injected session store.
func (a *App) Session() *session.Store {
	return a.sessions
}

func (a *App) SetTab(tab Tab) {
	if tab != TabVideos {
		tab = TabDreams
	}
	a.mu.Lock()
	a.tab = tab
	a.mu.Unlock()
}

// GenerateDream submits text through the dream form.
func (a *App) GenerateDream(ctx context.Context, text string) (domain.Artifact, error) {
	a.SetTab(TabDreams)
	a.DreamForm.SetInput(text)
	ctx, done := a.bind(ctx)
	defer done()
	return a.DreamForm.Submit(ctx)
}

// GenerateVideo submits text through the video form. A logged-in user's
// saved videos are reloaded afterwards.
func (a *App) GenerateVideo(ctx context.Context, text string) (domain.Artifact, error) {
	a.SetTab(TabVideos)
	a.VideoForm.SetInput(text)
	ctx, done := a.bind(ctx)
	defer done()
	art, err := a.VideoForm.Submit(ctx)
	if err != nil {
		return art, err
	}
	if a.sessions.IsAuthenticated() {
		if err := a.LoadUserVideos(ctx); err != nil && !errors.Is(err, gallery.ErrSuperseded) {
			slog.Warn("reload user videos failed", "err", err)
		}
	}
	return art, nil
}

// LoadUserVideos fetches the logged-in user's saved videos. Without a login
// the list is cleared and session.ErrNotAuthenticated returned. A load
// overtaken by a newer one or by logout returns gallery.ErrSuperseded.
func (a *App) LoadUserVideos(ctx context.Context) error {
	token := a.sessions.Token()
	a.mu.Lock()
	a.videosGen++
	gen := a.videosGen
	a.mu.Unlock()
	if token == "" {
		a.UserVideos.Clear()
		return session.ErrNotAuthenticated
	}

	ctx, done := a.bind(ctx)
	defer done()
	items, err := a.api.ListMyVideos(ctx, token)

	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.videosGen {
		return gallery.ErrSuperseded
	}
	if err != nil {
		return err
	}
	a.UserVideos.Replace(items)
	return nil
}

func (a *App) loadUserVideosAsync() {
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		err := a.LoadUserVideos(a.ctx)
		if err != nil && !errors.Is(err, gallery.ErrSuperseded) && !errors.Is(err, context.Canceled) {
			slog.Warn("load user videos failed", "err", err)
		}
	}()
}

func (a *App) handleGenerated(art domain.Artifact) {
	if art.Kind == domain.KindVideo {
		a.Videos.Replace([]domain.Artifact{art})
	} else {
		a.Gallery.Prepend(art)
	}
	if a.sessions.IsAuthenticated() {
		return
	}
	a.mu.Lock()
	if _, dismissed := a.dismissed[art.ID]; !dismissed {
		offered := art
		a.savePrompt = &offered
	}
	a.mu.Unlock()
}

// AcceptSavePrompt closes the save prompt and opens the auth dialog.
func (a *App) AcceptSavePrompt() {
	a.mu.Lock()
	a.savePrompt = nil
	a.authOpen = true
	a.mu.Unlock()
}

// DeclineSavePrompt ("Maybe Later") dismisses the prompt for that artifact
// for good. The auth dialog stays closed.
func (a *App) DeclineSavePrompt() {
	a.mu.Lock()
	if a.savePrompt != nil {
		a.dismissed[a.savePrompt.ID] = struct{}{}
	}
	a.savePrompt = nil
	a.mu.Unlock()
}

func (a *App) OpenAuth() {
	a.mu.Lock()
	a.authOpen = true
	a.mu.Unlock()
}

// CloseAuth hides the dialog and forgets what was typed.
func (a *App) CloseAuth() {
	a.mu.Lock()
	a.authOpen = false
	a.mu.Unlock()
	a.Auth.Reset()
}

// SubmitAuth runs the auth dialog's current mode.
func (a *App) SubmitAuth(ctx context.Context) error {
	ctx, done := a.bind(ctx)
	defer done()
	return a.Auth.Submit(ctx)
}

func (a *App) handleLoggedIn() {
	a.mu.Lock()
	a.authOpen = false
	a.savePrompt = nil
	a.mu.Unlock()
	a.Auth.Reset()
}

// OpenDashboard shows the user's saved artifacts and fetches them. When not
// logged in it opens the auth dialog instead and returns session.ErrNotAuthenticated.
func (a *App) OpenDashboard(ctx context.Context) error {
	if !a.sessions.IsAuthenticated() {
		a.OpenAuth()
		return session.ErrNotAuthenticated
	}
	a.mu.Lock()
	a.dashboardOpen = true
	a.mu.Unlock()
	ctx, done := a.bind(ctx)
	defer done()
	err := a.Dashboard.Refresh(ctx)
	if errors.Is(err, gallery.ErrSuperseded) {
		return nil
	}
	return err
}

func (a *App) CloseDashboard() {
	a.mu.Lock()
	a.dashboardOpen = false
	a.mu.Unlock()
}

// Logout ends the session. The session change resets the composition.
func (a *App) Logout(ctx context.Context) error {
	return a.sessions.Logout(ctx)
}

// LoadRecentVideos fills the public recent-videos strip.
func (a *App) LoadRecentVideos(ctx context.Context, limit int) error {
	ctx, done := a.bind(ctx)
	defer done()
	items, err := a.api.ListRecentVideos(ctx, limit)
	if err != nil {
		return err
	}
	a.Recent.Replace(items)
	return nil
}

// ClearLatestVideo removes the generated video shown on the video tab.
func (a *App) ClearLatestVideo() {
	a.Videos.Clear()
}

func (a *App) handleSessionEvent(ev session.Event) {
	switch ev.Type {
	case session.EventLogout:
		a.mu.Lock()
		a.tab = TabDreams
		a.dashboardOpen = false
		a.authOpen = false
		a.savePrompt = nil
		a.videosGen++
		a.mu.Unlock()
		a.UserVideos.Clear()
		slog.Debug("session ended, reset to landing")
	case session.EventLogin:
		a.mu.Lock()
		a.authOpen = false
		a.savePrompt = nil
		a.mu.Unlock()
		a.loadUserVideosAsync()
	}
}

// View returns a rendering snapshot.
func (a *App) View() ViewState {
	a.mu.Lock()
	st := ViewState{
		Tab:           a.tab,
		Authenticated: a.sessions.IsAuthenticated(),
	}
	dashboardOpen := a.dashboardOpen
	authOpen := a.authOpen
	if a.savePrompt != nil {
		sp := *a.savePrompt
		st.SavePrompt = &sp
	}
	a.mu.Unlock()

	if u, ok := a.sessions.User(); ok {
		st.User = &u
	}
	st.DreamForm = a.DreamForm.State()
	st.VideoForm = a.VideoForm.State()
	st.Gallery = a.Gallery.State()
	st.Videos = a.Videos.State()
	if st.Authenticated {
		uv := a.UserVideos.State()
		st.UserVideos = &uv
	}
	st.Recent = a.Recent.State()
	if dashboardOpen {
		ds := a.Dashboard.State()
		st.Dashboard = &ds
	}
	if authOpen {
		as := a.Auth.State()
		st.Auth = &as
	}
	return st
}

// Close cancels in-flight work, waits for background loads and detaches
// from the session.
func (a *App) Close() {
	a.unsubscribe()
	a.Dashboard.Close()
	a.cancel()
	a.bg.Wait()
}

// bind ties a caller context to the app lifetime. The returned func must be called.
func (a *App) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	bound, cancel := context.WithCancel(ctx)
	if a.ctx.Err() != nil {
		cancel()
		return bound, cancel
	}
	stop := context.AfterFunc(a.ctx, cancel)
	return bound, func() {
		stop()
		cancel()
	}
}
