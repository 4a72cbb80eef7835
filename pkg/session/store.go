// Package session owns the client's authentication state.
//
// A Store is the single writer of the persisted token and cached user
// profile. Views read it through the Store and learn about changes by
// subscribing instead of polling storage.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"mindseye/pkg/domain"
)

type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

type EventType string

const (
	EventLogin       EventType = "login"
	EventLogout      EventType = "logout"
	EventUserUpdated EventType = "user_updated"
)

// Event describes a committed session change.
type Event struct {
	Type EventType
	User *domain.User
}

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrLoginInProgress  = errors.New("login already in progress")
	ErrAlreadyLoggedIn  = errors.New("already logged in")
	ErrEmptyToken       = errors.New("token is required")
)

// Store holds the bearer token and optional user profile for one client.
type Store struct {
	mu      sync.RWMutex
	storage Storage
	state   State
	token   string
	user    *domain.User

	subMu   sync.Mutex
	subs    []subscriber
	nextSub int
}

type subscriber struct {
	id int
	fn func(Event)
}

// Open rehydrates a session from storage. A stored token means the session
// starts Authenticated. A cached user that cannot be decoded leaves the
// session Unauthenticated instead of failing.
func Open(ctx context.Context, storage Storage) (*Store, error) {
	if storage == nil {
		return nil, errors.New("session storage is required")
	}
	s := &Store{storage: storage}

	token, ok, err := storage.Get(ctx, KeyToken)
	if err != nil {
		return nil, fmt.Errorf("read session token: %w", err)
	}
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return s, nil
	}

	rawUser, hasUser, err := storage.Get(ctx, KeyUser)
	if err != nil {
		return nil, fmt.Errorf("read session user: %w", err)
	}
	var user *domain.User
	if hasUser && rawUser != "" {
		var u domain.User
		if err := json.Unmarshal([]byte(rawUser), &u); err != nil {
			slog.Warn("ignoring unreadable session", "err", err)
			return s, nil
		}
		user = &u
	}
	if user == nil {
		if u, ok := ProfileFromToken(token); ok {
			user = &u
		}
	}
	s.token = token
	s.user = user
	s.state = Authenticated
	return s, nil
}

// State reports the current lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsAuthenticated reports whether a token is held.
func (s *Store) IsAuthenticated() bool {
	return s.State() == Authenticated
}

// Token returns the bearer token, or "" when unauthenticated.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Authenticated {
		return ""
	}
	return s.token
}

// User returns a copy of the cached profile, if any.
func (s *Store) User() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil || s.state != Authenticated {
		return domain.User{}, false
	}
	return *s.user, true
}

// BeginLogin marks a login attempt as started.
func (s *Store) BeginLogin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Authenticating:
		return ErrLoginInProgress
	case Authenticated:
		return ErrAlreadyLoggedIn
	}
	s.state = Authenticating
	return nil
}

// FailLogin abandons a login attempt started with BeginLogin.
func (s *Store) FailLogin() {
	s.mu.Lock()
	if s.state == Authenticating {
		s.state = Unauthenticated
	}
	s.mu.Unlock()
}

// Login persists token (and user, when given) and moves to Authenticated.
// Without a user, a profile hint is taken from the token's subject and kept
// in memory only.
func (s *Store) Login(ctx context.Context, token string, user *domain.User) error {
	token = strings.TrimSpace(token)
	if token == "" {
		s.FailLogin()
		return ErrEmptyToken
	}

	s.mu.Lock()
	if err := s.storage.Set(ctx, KeyToken, token); err != nil {
		s.failLocked()
		s.mu.Unlock()
		return fmt.Errorf("persist session token: %w", err)
	}
	var cached *domain.User
	if user != nil {
		u := *user
		raw, err := json.Marshal(u)
		if err != nil {
			s.failLocked()
			s.mu.Unlock()
			return fmt.Errorf("encode session user: %w", err)
		}
		if err := s.storage.Set(ctx, KeyUser, string(raw)); err != nil {
			s.failLocked()
			s.mu.Unlock()
			return fmt.Errorf("persist session user: %w", err)
		}
		cached = &u
	} else {
		if err := s.storage.Delete(ctx, KeyUser); err != nil {
			slog.Warn("clear stale session user failed", "err", err)
		}
		if u, ok := ProfileFromToken(token); ok {
			cached = &u
		}
	}
	s.token = token
	s.user = cached
	s.state = Authenticated
	s.mu.Unlock()

	s.publish(Event{Type: EventLogin, User: copyUser(cached)})
	return nil
}

// Logout clears storage and memory and moves to Unauthenticated. Memory is
// cleared and subscribers are notified even when storage cannot be cleared.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	err := s.storage.Delete(ctx, KeyToken, KeyUser)
	s.token = ""
	s.user = nil
	s.state = Unauthenticated
	s.mu.Unlock()

	s.publish(Event{Type: EventLogout})
	if err != nil {
		return fmt.Errorf("clear session storage: %w", err)
	}
	return nil
}

// Adopt replaces this session with the login held by staged, which must be
// Authenticated. A login is run against a staged store first so that a
// failed attempt leaves the current session untouched. A profile that
// staged only derived from the token is derived again here, not persisted.
func (s *Store) Adopt(ctx context.Context, staged *Store) error {
	if staged == nil || !staged.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	token := staged.Token()
	raw, hasUser, err := staged.storage.Get(ctx, KeyUser)
	if err != nil {
		return fmt.Errorf("read staged user: %w", err)
	}
	var user *domain.User
	if hasUser && raw != "" {
		var u domain.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return fmt.Errorf("decode staged user: %w", err)
		}
		user = &u
	}
	if s.IsAuthenticated() {
		if err := s.Logout(ctx); err != nil {
			return err
		}
	}
	return s.Login(ctx, token, user)
}

// UpdateUser patches the cached profile with the non-empty fields of user.
// The token is left untouched.
func (s *Store) UpdateUser(ctx context.Context, user domain.User) error {
	s.mu.Lock()
	if s.state != Authenticated {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	merged := domain.User{}
	if s.user != nil {
		merged = *s.user
	}
	if user.ID != "" {
		merged.ID = user.ID
	}
	if user.Email != "" {
		merged.Email = user.Email
	}
	if user.Name != "" {
		merged.Name = user.Name
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("encode session user: %w", err)
	}
	if err := s.storage.Set(ctx, KeyUser, string(raw)); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persist session user: %w", err)
	}
	s.user = &merged
	s.mu.Unlock()

	s.publish(Event{Type: EventUserUpdated, User: copyUser(&merged)})
	return nil
}

// Subscribe registers fn for session changes. Events are delivered
// synchronously, after the change is committed, in subscription order.
// The returned func removes the subscription.
func (s *Store) Subscribe(fn func(Event)) func() {
	if fn == nil {
		return func() {}
	}
	s.subMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) publish(ev Event) {
	s.subMu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()
	for _, sub := range subs {
		sub.fn(ev)
	}
}

func (s *Store) failLocked() {
	if s.state == Authenticating {
		s.state = Unauthenticated
	}
}

func copyUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
