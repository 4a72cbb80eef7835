package gallery

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"mindseye/pkg/domain"
	"mindseye/pkg/dreamapi"
	"mindseye/pkg/session"
)

// ErrSuperseded is returned by a refresh whose results were discarded
// because a newer refresh, a logout or Close happened first.
var ErrSuperseded = errors.New("dashboard refresh superseded")

// Lister fetches the authenticated user's saved artifacts.
type Lister interface {
	ListMyImages(ctx context.Context, token string) ([]domain.Artifact, error)
	ListMyVideos(ctx context.Context, token string) ([]domain.Artifact, error)
}

// DashboardState is a rendering snapshot of the dashboard.
type DashboardState struct {
	User    *domain.User `json:"user,omitempty"`
	Loading bool         `json:"loading"`
	Loaded  bool         `json:"loaded"`
	Error   string       `json:"error,omitempty"`
	Images  ViewState    `json:"images"`
	Videos  ViewState    `json:"videos"`
}

// Dashboard shows the saved artifacts of the logged-in user. Its fetches run
// under a context owned by the dashboard, and session changes discard both
// the in-flight fetch and the lists already shown.
type Dashboard struct {
	api      Lister
	sessions *session.Store
	Images   *View
	Videos   *View

	ctx         context.Context
	cancelAll   context.CancelFunc
	unsubscribe func()

	mu       sync.Mutex
	gen      uint64
	inflight context.CancelFunc
	loading  bool
	loaded   bool
	errMsg   string
}

// NewDashboard builds a dashboard bound to parent's lifetime.
func NewDashboard(parent context.Context, api Lister, sessions *session.Store) *Dashboard {
	ctx, cancel := context.WithCancel(parent)
	d := &Dashboard{
		api:       api,
		sessions:  sessions,
		Images:    NewView(DashboardEmpty),
		Videos:    NewView(VideosEmpty),
		ctx:       ctx,
		cancelAll: cancel,
	}
	d.unsubscribe = sessions.Subscribe(func(ev session.Event) {
		switch ev.Type {
		case session.EventLogout, session.EventLogin:
			d.Discard()
		}
	})
	return d
}

// Refresh fetches images and videos concurrently and replaces both lists.
// A newer Refresh or a Discard makes this one return ErrSuperseded.
func (d *Dashboard) Refresh(ctx context.Context) error {
	token := d.sessions.Token()
	if token == "" {
		return session.ErrNotAuthenticated
	}

	d.mu.Lock()
	if d.ctx.Err() != nil {
		d.mu.Unlock()
		return ErrSuperseded
	}
	if d.inflight != nil {
		d.inflight()
	}
	d.gen++
	gen := d.gen
	fctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(d.ctx, cancel)
	d.inflight = cancel
	d.loading = true
	d.errMsg = ""
	d.mu.Unlock()
	defer func() {
		stop()
		cancel()
	}()

	var images, videos []domain.Artifact
	g, gctx := errgroup.WithContext(fctx)
	g.Go(func() error {
		var err error
		images, err = d.api.ListMyImages(gctx, token)
		return err
	})
	g.Go(func() error {
		var err error
		videos, err = d.api.ListMyVideos(gctx, token)
		return err
	})
	err := g.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen {
		slog.Debug("dropping stale dashboard results", "gen", gen, "current", d.gen)
		return ErrSuperseded
	}
	d.inflight = nil
	d.loading = false
	if err != nil {
		d.errMsg = failureMessage(err)
		return err
	}
	d.Images.Replace(images)
	d.Videos.Replace(videos)
	d.loaded = true
	return nil
}

// Discard cancels any in-flight fetch and drops the fetched lists.
func (d *Dashboard) Discard() {
	d.mu.Lock()
	d.gen++
	if d.inflight != nil {
		d.inflight()
		d.inflight = nil
	}
	d.loading = false
	d.loaded = false
	d.errMsg = ""
	d.mu.Unlock()
	d.Images.Clear()
	d.Videos.Clear()
}

// DismissError clears the inline fetch error.
func (d *Dashboard) DismissError() {
	d.mu.Lock()
	d.errMsg = ""
	d.mu.Unlock()
}

// Close stops listening to the session and cancels outstanding work.
func (d *Dashboard) Close() {
	d.unsubscribe()
	d.Discard()
	d.cancelAll()
}

func (d *Dashboard) State() DashboardState {
	d.mu.Lock()
	st := DashboardState{
		Loading: d.loading,
		Loaded:  d.loaded,
		Error:   d.errMsg,
	}
	d.mu.Unlock()
	if u, ok := d.sessions.User(); ok {
		st.User = &u
	}
	st.Images = d.Images.State()
	st.Videos = d.Videos.State()
	return st
}

// Saved returns how many artifacts the dashboard holds.
func (d *Dashboard) Saved() int {
	return d.Images.Len() + d.Videos.Len()
}

func failureMessage(err error) string {
	var reqErr *dreamapi.RequestFailedError
	if errors.As(err, &reqErr) && reqErr.Message != "" {
		return reqErr.Message
	}
	return "Failed to load dreams"
}
