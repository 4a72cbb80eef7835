// Package forms holds the input state machines behind the generation forms
// and the auth dialog. Front-ends render State and forward user actions.
package forms

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"mindseye/pkg/domain"
	"mindseye/pkg/dreamapi"
	"mindseye/pkg/prompt"
)

// ErrBusy is returned when a submit arrives while the previous one is in flight.
var ErrBusy = errors.New("submission already in progress")

// Generator produces artifacts from prompts.
type Generator interface {
	GenerateImage(ctx context.Context, req domain.GenerateRequest, token string) (domain.Artifact, error)
	GenerateVideo(ctx context.Context, req domain.GenerateRequest, token string) (domain.Artifact, error)
}

// TokenSource yields the current bearer token, "" when anonymous.
type TokenSource interface {
	Token() string
}

// FormState is a snapshot for rendering a generation form.
type FormState struct {
	Kind      domain.MediaKind `json:"kind"`
	Input     string           `json:"input"`
	Counter   string           `json:"counter"`
	Loading   bool             `json:"loading"`
	Error     string           `json:"error,omitempty"`
	CanSubmit bool             `json:"canSubmit"`
}

// Form collects a prompt and submits it for one media kind.
type Form struct {
	kind        domain.MediaKind
	gen         Generator
	tokens      TokenSource
	onGenerated func(domain.Artifact)

	mu      sync.Mutex
	input   string
	loading bool
	errMsg  string
}

// NewForm builds a form for kind. onGenerated may be nil.
func NewForm(kind domain.MediaKind, gen Generator, tokens TokenSource, onGenerated func(domain.Artifact)) *Form {
	if !kind.Valid() {
		kind = domain.KindImage
	}
	return &Form{
		kind:        kind,
		gen:         gen,
		tokens:      tokens,
		onGenerated: onGenerated,
	}
}

// NewImageForm builds the dream image form.
func NewImageForm(gen Generator, tokens TokenSource, onGenerated func(domain.Artifact)) *Form {
	return NewForm(domain.KindImage, gen, tokens, onGenerated)
}

// NewVideoForm builds the video form.
func NewVideoForm(gen Generator, tokens TokenSource, onGenerated func(domain.Artifact)) *Form {
	return NewForm(domain.KindVideo, gen, tokens, onGenerated)
}

func (f *Form) Kind() domain.MediaKind {
	return f.kind
}

// SetInput replaces the prompt text.
func (f *Form) SetInput(text string) {
	f.mu.Lock()
	f.input = text
	f.mu.Unlock()
}

// DismissError clears the inline error message.
func (f *Form) DismissError() {
	f.mu.Lock()
	f.errMsg = ""
	f.mu.Unlock()
}

// State returns a rendering snapshot.
func (f *Form) State() FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, invalid := prompt.Validate(f.kind, f.input)
	return FormState{
		Kind:      f.kind,
		Input:     f.input,
		Counter:   prompt.Counter(f.input),
		Loading:   f.loading,
		Error:     f.errMsg,
		CanSubmit: !f.loading && invalid == nil,
	}
}

// Submit validates the prompt and, when valid, generates an artifact.
// Invalid prompts return *prompt.ValidationError without any request.
// On success the input is cleared and onGenerated is called; on failure the
// input is kept and the error message is shown inline.
func (f *Form) Submit(ctx context.Context) (domain.Artifact, error) {
	f.mu.Lock()
	if f.loading {
		f.mu.Unlock()
		return domain.Artifact{}, ErrBusy
	}
	text, err := prompt.Validate(f.kind, f.input)
	if err != nil {
		f.errMsg = err.Error()
		f.mu.Unlock()
		return domain.Artifact{}, err
	}
	f.loading = true
	f.errMsg = ""
	f.mu.Unlock()

	token := ""
	if f.tokens != nil {
		token = f.tokens.Token()
	}
	req := domain.GenerateRequest{Prompt: text}
	var art domain.Artifact
	if f.kind == domain.KindVideo {
		art, err = f.gen.GenerateVideo(ctx, req, token)
	} else {
		art, err = f.gen.GenerateImage(ctx, req, token)
	}

	f.mu.Lock()
	f.loading = false
	if err != nil {
		f.errMsg = ErrorMessage(err, "Failed to generate "+f.kind.Label())
		f.mu.Unlock()
		slog.Debug("generation failed", "kind", f.kind, "err", err)
		return domain.Artifact{}, err
	}
	f.input = ""
	f.mu.Unlock()

	if f.onGenerated != nil {
		f.onGenerated(art)
	}
	return art, nil
}

// ErrorMessage picks the inline message for err, or fallback when err carries none.
func ErrorMessage(err error, fallback string) string {
	var reqErr *dreamapi.RequestFailedError
	if errors.As(err, &reqErr) && reqErr.Message != "" {
		return reqErr.Message
	}
	var vErr *prompt.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}
