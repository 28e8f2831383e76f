// Package auth holds the OAuth session shared by every storage call.
package auth

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// DriveFileScope limits access to files created by this application.
const DriveFileScope = "https://www.googleapis.com/auth/drive.file"

// expirySkew treats tokens as expired slightly early so an upload does not start with a token
// that dies mid-request.
const expirySkew = 30 * time.Second

// Authorizer runs an interactive flow and returns a token.
type Authorizer interface {
	Authorize(ctx context.Context) (*oauth2.Token, error)
}

// TokenStore persists the token between runs.
type TokenStore interface {
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, token *oauth2.Token) error
	Clear(ctx context.Context) error
}

// EventKind distinguishes login outcomes.
type EventKind string

const (
	EventSucceeded EventKind = "succeeded"
	EventFailed    EventKind = "failed"
)

// Event is broadcast to listeners after every login attempt.
type Event struct {
	Kind   EventKind
	Reason string
}

// Listener receives session events.
type Listener interface {
	AuthChanged(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) AuthChanged(e Event) { f(e) }

// Session holds the current access token. Reads are shared by all uploads; only
// login, Invalidate and Logout write it.
type Session struct {
	authorizer Authorizer
	store      TokenStore
	now        func() time.Time

	mu    sync.RWMutex
	token *oauth2.Token

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int

	flight singleflight.Group
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithTokenStore persists tokens through store.
func WithTokenStore(store TokenStore) SessionOption {
	return func(s *Session) {
		s.store = store
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// NewSession creates an empty session.
func NewSession(authorizer Authorizer, opts ...SessionOption) *Session {
	s := &Session{
		authorizer: authorizer,
		now:        time.Now,
		listeners:  make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads a persisted token. A missing or expired token leaves the session empty.
func (s *Session) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	token, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	if token == nil || !s.usable(token) {
		return nil
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// IsAuthenticated reports whether a non-expired token is held.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usable(s.token)
}

// Token implements oauth2.TokenSource.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.usable(s.token) {
		return nil, ErrUnauthenticated
	}
	return s.token, nil
}

func (s *Session) usable(t *oauth2.Token) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return s.now().Add(expirySkew).Before(t.Expiry)
}

// Login starts an interactive login in the background and returns immediately. The outcome
// is delivered to listeners. Calls made while a login is running join that login.
func (s *Session) Login(ctx context.Context) {
	go func() {
		_ = s.login(ctx)
	}()
}

// LoginAndWait runs or joins a login and returns its result.
func (s *Session) LoginAndWait(ctx context.Context) error {
	ch := s.flight.DoChan("login", func() (interface{}, error) {
		return nil, s.authorize(ctx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) login(ctx context.Context) error {
	_, err, _ := s.flight.Do("login", func() (interface{}, error) {
		return nil, s.authorize(ctx)
	})
	return err
}

// authorize runs exactly one interactive flow and broadcasts its outcome.
func (s *Session) authorize(ctx context.Context) error {
	if s.authorizer == nil {
		err := &AuthError{Reason: "no authorizer configured"}
		s.broadcast(Event{Kind: EventFailed, Reason: err.Reason})
		return err
	}

	token, err := s.authorizer.Authorize(ctx)
	if err == nil && (token == nil || token.AccessToken == "") {
		err = &AuthError{Reason: "provider returned no access token"}
	}
	if err != nil {
		reason := err.Error()
		var authErr *AuthError
		if errors.As(err, &authErr) {
			reason = authErr.Reason
		} else if errors.Is(err, context.Canceled) || errors.Is(err, ErrLoginCancelled) {
			reason = "login cancelled"
		}
		s.broadcast(Event{Kind: EventFailed, Reason: reason})
		return err
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Save(ctx, token); err != nil {
			log.Printf("WARNING: failed to persist access token: %v", err)
		}
	}

	s.broadcast(Event{Kind: EventSucceeded})
	return nil
}

// Invalidate drops the token after the provider rejected it.
func (s *Session) Invalidate(ctx context.Context) {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
	if s.store != nil {
		if err := s.store.Clear(ctx); err != nil {
			log.Printf("WARNING: failed to clear persisted token: %v", err)
		}
	}
}

// Logout clears the session and the persisted token.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	return s.store.Clear(ctx)
}

// Subscribe registers l and returns a function that removes it.
func (s *Session) Subscribe(l Listener) (unsubscribe func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

func (s *Session) broadcast(e Event) {
	s.listenersMu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenersMu.Unlock()

	for _, l := range listeners {
		l.AuthChanged(e)
	}
}
