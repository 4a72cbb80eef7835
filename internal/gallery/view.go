// Package gallery holds the result views: ordered artifact lists with a
// preview overlay and per-item media failure tracking.
package gallery

import (
	"errors"
	"sync"

	"mindseye/pkg/domain"
	"mindseye/pkg/dreamapi"
)

var ErrNotFound = errors.New("artifact not found")

// EmptyState is rendered instead of an empty grid.
type EmptyState struct {
	Title string `json:"title"`
	Hint  string `json:"hint"`
}

var (
	GalleryEmpty   = EmptyState{Title: "No dreams visualized yet", Hint: "Generate your first dream image above!"}
	VideosEmpty    = EmptyState{Title: "No videos yet", Hint: "Generate your first video to see it here!"}
	DashboardEmpty = EmptyState{Title: "No dreams yet", Hint: "Start creating dreams to see them here!"}
)

type MediaStatus string

const (
	MediaUnknown MediaStatus = "unknown"
	MediaOK      MediaStatus = "ok"
	MediaFailed  MediaStatus = "failed"
)

// Item is one rendered artifact.
type Item struct {
	domain.Artifact
	Media      MediaStatus `json:"media"`
	MediaError string      `json:"mediaError,omitempty"`
}

// ViewState is a rendering snapshot. Exactly one of Items or Empty is set.
type ViewState struct {
	Items    []Item           `json:"items,omitempty"`
	Empty    *EmptyState      `json:"empty,omitempty"`
	Selected *domain.Artifact `json:"selected,omitempty"`
}

// View is an ordered artifact list.
type View struct {
	mu       sync.RWMutex
	empty    EmptyState
	items    []domain.Artifact
	selected string
	media    map[string]MediaStatus
	failures map[string]*dreamapi.MediaLoadError
}

// NewView builds an empty view that renders empty when it has no items.
func NewView(empty EmptyState) *View {
	return &View{
		empty:    empty,
		media:    make(map[string]MediaStatus),
		failures: make(map[string]*dreamapi.MediaLoadError),
	}
}

// Prepend puts a newly generated artifact first. An artifact with the same
// id is replaced rather than duplicated.
func (v *View) Prepend(a domain.Artifact) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.Artifact, 0, len(v.items)+1)
	out = append(out, a)
	for _, it := range v.items {
		if it.ID != a.ID {
			out = append(out, it)
		}
	}
	v.items = out
	delete(v.media, a.ID)
	delete(v.failures, a.ID)
}

// Replace sets the list in caller order.
func (v *View) Replace(items []domain.Artifact) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.items = append([]domain.Artifact(nil), items...)
	keep := make(map[string]struct{}, len(items))
	for _, it := range items {
		keep[it.ID] = struct{}{}
	}
	for id := range v.media {
		if _, ok := keep[id]; !ok {
			delete(v.media, id)
			delete(v.failures, id)
		}
	}
	if _, ok := keep[v.selected]; !ok {
		v.selected = ""
	}
}

// Clear drops every item, the selection and failure records.
func (v *View) Clear() {
	v.mu.Lock()
	v.items = nil
	v.selected = ""
	v.media = make(map[string]MediaStatus)
	v.failures = make(map[string]*dreamapi.MediaLoadError)
	v.mu.Unlock()
}

func (v *View) Items() []domain.Artifact {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]domain.Artifact(nil), v.items...)
}

func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.items)
}

func (v *View) IsEmpty() bool {
	return v.Len() == 0
}

// Find returns the artifact with id.
func (v *View) Find(id string) (domain.Artifact, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, it := range v.items {
		if it.ID == id {
			return it, true
		}
	}
	return domain.Artifact{}, false
}

// Select opens the preview overlay for id.
func (v *View) Select(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, it := range v.items {
		if it.ID == id {
			v.selected = id
			return nil
		}
	}
	return ErrNotFound
}

// ClosePreview dismisses the overlay. Clicking outside the preview and the
// close control both end up here.
func (v *View) ClosePreview() {
	v.mu.Lock()
	v.selected = ""
	v.mu.Unlock()
}

// Selected returns the artifact shown in the preview overlay, if open.
func (v *View) Selected() (domain.Artifact, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.selected == "" {
		return domain.Artifact{}, false
	}
	for _, it := range v.items {
		if it.ID == v.selected {
			return it, true
		}
	}
	return domain.Artifact{}, false
}

// ReportMediaLoaded marks id's media as rendered.
func (v *View) ReportMediaLoaded(id string) {
	v.mu.Lock()
	v.media[id] = MediaOK
	delete(v.failures, id)
	v.mu.Unlock()
}

// ReportMediaError records that id's media failed to render. There is no
// automatic retry; the item keeps showing the failure until it is replaced.
func (v *View) ReportMediaError(id string, err error) {
	var loadErr *dreamapi.MediaLoadError
	if !errors.As(err, &loadErr) {
		url := ""
		if a, ok := v.Find(id); ok {
			url = a.MediaURL
		}
		loadErr = &dreamapi.MediaLoadError{URL: url, Err: err}
	}
	v.mu.Lock()
	v.media[id] = MediaFailed
	v.failures[id] = loadErr
	v.mu.Unlock()
}

// Media reports the render status of id and the failure, if any.
func (v *View) Media(id string) (MediaStatus, *dreamapi.MediaLoadError) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	status, ok := v.media[id]
	if !ok {
		return MediaUnknown, nil
	}
	return status, v.failures[id]
}

// State returns a rendering snapshot.
func (v *View) State() ViewState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if len(v.items) == 0 {
		empty := v.empty
		return ViewState{Empty: &empty}
	}
	st := ViewState{Items: make([]Item, 0, len(v.items))}
	for _, a := range v.items {
		item := Item{Artifact: a, Media: MediaUnknown}
		if status, ok := v.media[a.ID]; ok {
			item.Media = status
		}
		if f := v.failures[a.ID]; f != nil {
			item.MediaError = mediaFailureText(a.Kind)
		}
		st.Items = append(st.Items, item)
		if a.ID == v.selected {
			sel := a
			st.Selected = &sel
		}
	}
	return st
}

func mediaFailureText(kind domain.MediaKind) string {
	if kind == domain.KindVideo {
		return "Failed to load video"
	}
	return "Failed to load image"
}
