package forms

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"mindseye/pkg/domain"
	"mindseye/pkg/dreamapi"
	"mindseye/pkg/prompt"
	"mindseye/pkg/session"
)

type fakeBackend struct {
	mu        sync.Mutex
	calls     int
	lastReq   domain.GenerateRequest
	lastToken string
	err       error
	block     chan struct{}

	loginToken string
	loginErr   error
	registered []domain.Credentials
	regErr     error
}

func (f *fakeBackend) generate(ctx context.Context, kind domain.MediaKind, req domain.GenerateRequest, token string) (domain.Artifact, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	f.lastToken = token
	block := f.block
	err := f.err
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return domain.Artifact{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.Artifact{}, err
	}
	return domain.Artifact{ID: "1", Kind: kind, Prompt: req.Prompt, MediaURL: "http://localhost:8000/static/img1.png", CreatedAt: time.Now()}, nil
}

func (f *fakeBackend) GenerateImage(ctx context.Context, req domain.GenerateRequest, token string) (domain.Artifact, error) {
	return f.generate(ctx, domain.KindImage, req, token)
}

func (f *fakeBackend) GenerateVideo(ctx context.Context, req domain.GenerateRequest, token string) (domain.Artifact, error) {
	return f.generate(ctx, domain.KindVideo, req, token)
}

func (f *fakeBackend) Login(_ context.Context, creds domain.Credentials) (string, error) {
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return f.loginToken, nil
}

func (f *fakeBackend) Register(_ context.Context, creds domain.Credentials) (domain.User, error) {
	if f.regErr != nil {
		return domain.User{}, f.regErr
	}
	f.registered = append(f.registered, creds)
	return domain.User{ID: "5", Email: creds.Email}, nil
}

type staticToken string

func (s staticToken) Token() string { return string(s) }

func TestFormSubmitSuccess(t *testing.T) {
	backend := &fakeBackend{}
	var got []domain.Artifact
	form := NewImageForm(backend, staticToken(""), func(a domain.Artifact) { got = append(got, a) })
	form.SetInput("  a mystical forest ")

	art, err := form.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if backend.lastReq.Prompt != "a mystical forest" {
		t.Fatalf("prompt sent = %q", backend.lastReq.Prompt)
	}
	if backend.lastToken != "" {
		t.Fatalf("anonymous form sent token %q", backend.lastToken)
	}
	if len(got) != 1 || got[0].ID != art.ID {
		t.Fatalf("callback not invoked with artifact: %v", got)
	}
	st := form.State()
	if st.Input != "" || st.Loading || st.Error != "" {
		t.Fatalf("unexpected state after success: %+v", st)
	}
}

func TestFormValidationBlocksNetwork(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: "Please enter a dream description"},
		{name: "too long", input: strings.Repeat("a", 501), want: "Dream description must be 500 characters or less"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend := &fakeBackend{}
			form := NewImageForm(backend, nil, nil)
			form.SetInput(tc.input)
			_, err := form.Submit(context.Background())
			var vErr *prompt.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if backend.calls != 0 {
				t.Fatalf("expected no request, got %d", backend.calls)
			}
			st := form.State()
			if st.Error != tc.want {
				t.Fatalf("inline error = %q, want %q", st.Error, tc.want)
			}
			if st.CanSubmit {
				t.Fatalf("submit should be disabled for invalid input")
			}
			form.DismissError()
			if form.State().Error != "" {
				t.Fatalf("error not dismissed")
			}
		})
	}
}

func TestFormFailureKeepsInput(t *testing.T) {
	backend := &fakeBackend{err: &dreamapi.RequestFailedError{Status: 500, Message: "Failed to generate dream image"}}
	form := NewVideoForm(backend, staticToken("tok"), func(domain.Artifact) {
		t.Fatalf("callback must not run on failure")
	})
	form.SetInput("ocean waves")

	if _, err := form.Submit(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	st := form.State()
	if st.Input != "ocean waves" {
		t.Fatalf("input cleared on failure: %q", st.Input)
	}
	if st.Error != "Failed to generate dream image" {
		t.Fatalf("error = %q", st.Error)
	}
	if backend.lastToken != "tok" {
		t.Fatalf("token = %q", backend.lastToken)
	}
}

func TestFormRejectsResubmitWhileInFlight(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{})}
	form := NewImageForm(backend, nil, nil)
	form.SetInput("slow dream")

	done := make(chan error, 1)
	go func() {
		_, err := form.Submit(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !form.State().Loading {
		if time.Now().After(deadline) {
			t.Fatalf("form never entered loading state")
		}
		time.Sleep(time.Millisecond)
	}
	if form.State().CanSubmit {
		t.Fatalf("submit should be disabled while loading")
	}
	if _, err := form.Submit(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(backend.block)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if backend.calls != 1 {
		t.Fatalf("expected one request, got %d", backend.calls)
	}
}

func newSession(t *testing.T) *session.Store {
	t.Helper()
	s, err := session.Open(context.Background(), session.NewMemoryStorage())
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	return s
}

func TestAuthDialogInvalidCredentials(t *testing.T) {
	backend := &fakeBackend{loginErr: &dreamapi.RequestFailedError{Status: 401, Message: "Invalid credentials"}}
	sessions := newSession(t)
	succeeded := false
	dialog := NewAuthDialog(backend, sessions, func() { succeeded = true })
	dialog.SetEmail("u@example.com")
	dialog.SetPassword("wrongpass")

	if err := dialog.Submit(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if got := dialog.State().Error; got != "Invalid credentials" {
		t.Fatalf("error = %q", got)
	}
	if sessions.State() != session.Unauthenticated {
		t.Fatalf("session state = %v", sessions.State())
	}
	if succeeded {
		t.Fatalf("success callback ran on failure")
	}
}

func TestAuthDialogLoginCommitsSession(t *testing.T) {
	backend := &fakeBackend{loginToken: "opaque-token"}
	sessions := newSession(t)
	succeeded := false
	dialog := NewAuthDialog(backend, sessions, func() { succeeded = true })
	dialog.SetEmail(" u@example.com ")
	dialog.SetPassword("secret1")

	if err := dialog.Submit(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !succeeded {
		t.Fatalf("success callback not invoked")
	}
	if sessions.Token() != "opaque-token" {
		t.Fatalf("token = %q", sessions.Token())
	}
	if u, ok := sessions.User(); !ok || u.Email != "u@example.com" {
		t.Fatalf("user = %+v", u)
	}
}

func TestAuthDialogRegisterSwitchesToLogin(t *testing.T) {
	backend := &fakeBackend{}
	sessions := newSession(t)
	dialog := NewAuthDialog(backend, sessions, func() {
		t.Fatalf("registration must not log in")
	})
	dialog.SetMode(ModeRegister)
	dialog.SetEmail("new@example.com")
	dialog.SetPassword("secret1")

	if err := dialog.Submit(context.Background()); err != nil {
		t.Fatalf("register: %v", err)
	}
	st := dialog.State()
	if st.Mode != ModeLogin || st.Notice != "Registration successful! Please log in." {
		t.Fatalf("unexpected state %+v", st)
	}
	if sessions.State() != session.Unauthenticated {
		t.Fatalf("registration changed session state")
	}
	if len(backend.registered) != 1 {
		t.Fatalf("expected one registration")
	}
}

func TestAuthDialogValidation(t *testing.T) {
	backend := &fakeBackend{}
	dialog := NewAuthDialog(backend, newSession(t), nil)
	dialog.SetEmail("u@example.com")
	dialog.SetPassword("12345")
	if err := dialog.Submit(context.Background()); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected short password error, got %v", err)
	}
	if got := dialog.State().Error; got != "Password must be at least 6 characters" {
		t.Fatalf("error = %q", got)
	}
	dialog.SetEmail("")
	if err := dialog.Submit(context.Background()); !IsInputError(err) {
		t.Fatalf("expected missing email error, got %v", err)
	}
}
