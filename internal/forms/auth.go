package forms

import (
	"context"
	"errors"
	"strings"
	"sync"

	"mindseye/pkg/domain"
	"mindseye/pkg/session"
)

type AuthMode string

const (
	ModeLogin    AuthMode = "login"
	ModeRegister AuthMode = "register"
)

// MinPasswordLength is enforced before any auth request is sent.
const MinPasswordLength = 6

const registeredNotice = "Registration successful! Please log in."

// Credential problems caught before any request is sent.
var (
	ErrEmailRequired    = errors.New("Please enter your email")
	ErrEmailInvalid     = errors.New("Please enter a valid email address")
	ErrPasswordTooShort = errors.New("Password must be at least 6 characters")
)

// IsInputError reports whether err is a credential validation failure.
func IsInputError(err error) bool {
	return errors.Is(err, ErrEmailRequired) || errors.Is(err, ErrEmailInvalid) || errors.Is(err, ErrPasswordTooShort)
}

// Authenticator performs the backend auth calls.
type Authenticator interface {
	Login(ctx context.Context, creds domain.Credentials) (string, error)
	Register(ctx context.Context, creds domain.Credentials) (domain.User, error)
}

// AuthState is a snapshot for rendering the auth dialog.
type AuthState struct {
	Mode    AuthMode `json:"mode"`
	Email   string   `json:"email"`
	Loading bool     `json:"loading"`
	Error   string   `json:"error,omitempty"`
	Notice  string   `json:"notice,omitempty"`
}

// AuthDialog collects credentials and drives login or registration.
// A successful login is committed to the session store; registration only
// switches the dialog back to login mode.
type AuthDialog struct {
	api       Authenticator
	sessions  *session.Store
	onSuccess func()

	mu       sync.Mutex
	mode     AuthMode
	email    string
	password string
	loading  bool
	errMsg   string
	notice   string
}

// NewAuthDialog builds a dialog in login mode. onSuccess runs after a login
// is committed and may be nil.
func NewAuthDialog(api Authenticator, sessions *session.Store, onSuccess func()) *AuthDialog {
	return &AuthDialog{
		api:       api,
		sessions:  sessions,
		onSuccess: onSuccess,
		mode:      ModeLogin,
	}
}

func (d *AuthDialog) SetEmail(email string) {
	d.mu.Lock()
	d.email = email
	d.mu.Unlock()
}

func (d *AuthDialog) SetPassword(password string) {
	d.mu.Lock()
	d.password = password
	d.mu.Unlock()
}

// SetMode switches between login and register and clears messages.
func (d *AuthDialog) SetMode(mode AuthMode) {
	if mode != ModeRegister {
		mode = ModeLogin
	}
	d.mu.Lock()
	d.mode = mode
	d.errMsg = ""
	d.notice = ""
	d.mu.Unlock()
}

// ToggleMode flips between login and register.
func (d *AuthDialog) ToggleMode() {
	d.mu.Lock()
	next := ModeRegister
	if d.mode == ModeRegister {
		next = ModeLogin
	}
	d.mu.Unlock()
	d.SetMode(next)
}

func (d *AuthDialog) DismissError() {
	d.mu.Lock()
	d.errMsg = ""
	d.mu.Unlock()
}

// Reset clears all input, e.g. when the dialog is closed.
func (d *AuthDialog) Reset() {
	d.mu.Lock()
	d.mode = ModeLogin
	d.email = ""
	d.password = ""
	d.errMsg = ""
	d.notice = ""
	d.mu.Unlock()
}

func (d *AuthDialog) State() AuthState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return AuthState{
		Mode:    d.mode,
		Email:   d.email,
		Loading: d.loading,
		Error:   d.errMsg,
		Notice:  d.notice,
	}
}

// Submit runs the current mode's request.
func (d *AuthDialog) Submit(ctx context.Context) error {
	d.mu.Lock()
	if d.loading {
		d.mu.Unlock()
		return ErrBusy
	}
	creds := domain.Credentials{Email: strings.TrimSpace(d.email), Password: d.password}
	mode := d.mode
	if err := validateCredentials(creds); err != nil {
		d.errMsg = err.Error()
		d.mu.Unlock()
		return err
	}
	d.loading = true
	d.errMsg = ""
	d.notice = ""
	d.mu.Unlock()

	var err error
	if mode == ModeRegister {
		err = d.register(ctx, creds)
	} else {
		err = d.login(ctx, creds)
	}

	d.mu.Lock()
	d.loading = false
	if err != nil {
		d.errMsg = ErrorMessage(err, "Authentication failed")
	}
	d.mu.Unlock()

	if err == nil && mode == ModeLogin && d.onSuccess != nil {
		d.onSuccess()
	}
	return err
}

func (d *AuthDialog) register(ctx context.Context, creds domain.Credentials) error {
	if _, err := d.api.Register(ctx, creds); err != nil {
		return err
	}
	d.mu.Lock()
	d.mode = ModeLogin
	d.password = ""
	d.notice = registeredNotice
	d.mu.Unlock()
	return nil
}

func (d *AuthDialog) login(ctx context.Context, creds domain.Credentials) error {
	if err := d.sessions.BeginLogin(); err != nil {
		return err
	}
	token, err := d.api.Login(ctx, creds)
	if err != nil {
		d.sessions.FailLogin()
		return err
	}
	var user *domain.User
	if _, ok := session.ProfileFromToken(token); !ok {
		user = &domain.User{Email: creds.Email}
	}
	if err := d.sessions.Login(ctx, token, user); err != nil {
		return err
	}
	d.mu.Lock()
	d.password = ""
	d.mu.Unlock()
	return nil
}

func validateCredentials(creds domain.Credentials) error {
	if creds.Email == "" {
		return ErrEmailRequired
	}
	if !strings.Contains(creds.Email, "@") {
		return ErrEmailInvalid
	}
	if len([]rune(creds.Password)) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}
