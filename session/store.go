// Package session holds a viewer's authentication state. A Store is created per
// view session and passed to every controller that needs the token; controllers
// that must react to login and logout subscribe to it.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// State is a snapshot of the viewer's authentication
type State struct {
	Token         string `json:"-"`
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
}

// Authenticator is the part of the backend used for login and signup
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
	Signup(ctx context.Context, username, email, password string) error
}

// TokenStore persists tokens across restarts, keyed by view session
type TokenStore interface {
	SaveToken(viewerID, token string) error
	LoadToken(viewerID string) (string, error)
	ClearToken(viewerID string) error
}

// Store is the authentication state of a single view session
type Store struct {
	mu       sync.RWMutex
	state    State
	subs     map[int]func(State)
	nextSub  int
	auth     Authenticator
	persist  TokenStore
	viewerID string
	log      *logrus.Logger
}

// NewStore creates a store for viewerID, restoring a persisted token if there is one.
// persist may be nil.
func NewStore(viewerID string, auth Authenticator, persist TokenStore, log *logrus.Logger) *Store {
	s := &Store{
		subs:     make(map[int]func(State)),
		auth:     auth,
		persist:  persist,
		viewerID: viewerID,
		log:      log,
	}

	if persist != nil {
		token, err := persist.LoadToken(viewerID)
		if err != nil {
			log.WithError(err).WithField("viewer_id", viewerID).Warn("Failed to restore session token")
		} else if token != "" {
			s.state = stateFor(token)
		}
	}

	return s
}

// State returns the current authentication state
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Token returns the token and whether the viewer is authenticated
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Token, s.state.Authenticated && s.state.Token != ""
}

// Subscribe registers fn to be called after every authentication change.
// The returned func removes the subscription.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Login authenticates with the backend. On failure the viewer is logged out.
func (s *Store) Login(ctx context.Context, email, password string) error {
	token, err := s.auth.Login(ctx, email, password)
	if err != nil {
		s.set(State{})
		return fmt.Errorf("failed to login: %w", err)
	}

	s.set(stateFor(token))
	s.log.WithField("username", s.State().Username).Info("Viewer logged in")
	return nil
}

// Signup registers the viewer and logs them in
func (s *Store) Signup(ctx context.Context, username, email, password string) error {
	if err := s.auth.Signup(ctx, username, email, password); err != nil {
		s.set(State{})
		return fmt.Errorf("failed to sign up: %w", err)
	}
	return s.Login(ctx, email, password)
}

// Logout forgets the token
func (s *Store) Logout() {
	s.set(State{})
}

// set swaps the state, persists it and notifies subscribers outside the lock
func (s *Store) set(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	s.save(next)

	if prev == next {
		return
	}
	for _, fn := range subs {
		fn(next)
	}
}

func (s *Store) save(state State) {
	if s.persist == nil {
		return
	}

	var err error
	if state.Authenticated {
		err = s.persist.SaveToken(s.viewerID, state.Token)
	} else {
		err = s.persist.ClearToken(s.viewerID)
	}
	if err != nil {
		s.log.WithError(err).WithField("viewer_id", s.viewerID).Warn("Failed to persist session token")
	}
}

func stateFor(token string) State {
	return State{
		Token:         token,
		Authenticated: token != "",
		Username:      usernameFromToken(token),
	}
}

// usernameFromToken reads the username claim without verifying the signature;
// the backend verifies the token on every authenticated call
func usernameFromToken(token string) string {
	raw := strings.TrimPrefix(token, "Bearer ")

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return ""
	}

	for _, key := range []string{"username", "sub", "user_id"} {
		if v, ok := claims[key]; ok {
			switch t := v.(type) {
			case string:
				if t != "" {
					return t
				}
			case float64:
				return fmt.Sprintf("%.0f", t)
			}
		}
	}
	return ""
}
