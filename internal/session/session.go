package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"ticket-storefront/internal/status"
	"ticket-storefront/models"
	"ticket-storefront/monitoring"
)

// WarnCannotRenew is set when only an access token could be restored.
const WarnCannotRenew = "session cannot be renewed"

// Refresher exchanges a refresh token for a new token pair.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error)
}

// AuthState is a snapshot of a visitor's authentication. Tokens never leave
// the server.
type AuthState struct {
	User            *models.User `json:"user"`
	AccessToken     string       `json:"-"`
	RefreshToken    string       `json:"-"`
	IsAuthenticated bool         `json:"isAuthenticated"`
	IsLoading       bool         `json:"isLoading"`
	Error           string       `json:"error,omitempty"`
	Warning         string       `json:"warning,omitempty"`
}

// Session owns one visitor's AuthState and its persisted keys. The zero
// state is anonymous and loading until InitializeAuth runs.
type Session struct {
	visitor        string
	store          Storage
	refresher      Refresher
	refreshTimeout time.Duration
	monitor        *monitoring.Monitor
	logger         *slog.Logger

	mu    sync.RWMutex
	state AuthState

	flight   singleflight.Group
	initOnce sync.Once
	lastSeen atomic.Int64
}

func New(visitor string, store Storage, refresher Refresher, opts ...Option) *Session {
	s := &Session{
		visitor:        visitor,
		store:          store,
		refresher:      refresher,
		refreshTimeout: 10 * time.Second,
		logger:         slog.Default(),
		state:          AuthState{IsLoading: true},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Touch()
	return s
}

type Option func(*Session)

func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Session) { s.refreshTimeout = d }
}

func WithMonitor(m *monitoring.Monitor) Option {
	return func(s *Session) { s.monitor = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

func (s *Session) Visitor() string {
	return s.visitor
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	if st.User != nil {
		u := *st.User
		st.User = &u
	}
	return st
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.AccessToken
}

func (s *Session) User() *models.User {
	return s.Snapshot().User
}

func (s *Session) IsMember() bool {
	u := s.User()
	return u != nil && u.IsMember
}

func (s *Session) Touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Login marks the session authenticated and persists both tokens and the
// user. The state changes even when persisting fails; the storage error is
// returned so the caller can log it.
func (s *Session) Login(ctx context.Context, user *models.User, accessToken, refreshToken string) error {
	s.mu.Lock()
	s.state = AuthState{
		User:            user,
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		IsAuthenticated: true,
	}
	s.mu.Unlock()

	return errors.Join(
		s.store.Set(ctx, KeyAccessToken, accessToken),
		s.store.Set(ctx, KeyRefreshToken, refreshToken),
		s.persistUser(ctx, user),
	)
}

// Logout resets the session to anonymous and removes the persisted tokens
// and user. Calling it again is harmless.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.state = AuthState{}
	s.mu.Unlock()

	return s.store.Remove(ctx, KeyAccessToken, KeyRefreshToken, KeyUser)
}

func (s *Session) SetAccessToken(ctx context.Context, token string) error {
	s.mu.Lock()
	s.state.AccessToken = token
	s.mu.Unlock()

	if token == "" {
		return s.store.Remove(ctx, KeyAccessToken)
	}
	return s.store.Set(ctx, KeyAccessToken, token)
}

func (s *Session) SetRefreshToken(ctx context.Context, token string) error {
	s.mu.Lock()
	s.state.RefreshToken = token
	s.mu.Unlock()

	if token == "" {
		return s.store.Remove(ctx, KeyRefreshToken)
	}
	return s.store.Set(ctx, KeyRefreshToken, token)
}

func (s *Session) persistUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return s.store.Remove(ctx, KeyUser)
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	return s.store.Set(ctx, KeyUser, string(data))
}

// storedUser reads the persisted user. Sessions saved before the user was
// persisted fall back to the access token claims.
func (s *Session) storedUser(ctx context.Context, accessToken string) (*models.User, bool) {
	raw, err := s.store.Get(ctx, KeyUser)
	if err != nil {
		s.logger.Warn("restore user", "visitor", s.visitor, "error", err)
	}
	if raw != "" {
		var u models.User
		if err := json.Unmarshal([]byte(raw), &u); err == nil {
			return &u, true
		}
		s.logger.Warn("decode stored user", "visitor", s.visitor)
	}
	return userFromToken(accessToken), false
}

// HandleTokenRefresh renews the token pair with the stored refresh token.
// Any failure logs the visitor out.
func (s *Session) HandleTokenRefresh(ctx context.Context) (string, error) {
	s.mu.RLock()
	refreshToken := s.state.RefreshToken
	user := s.state.User
	s.mu.RUnlock()

	if refreshToken == "" {
		if err := s.Logout(ctx); err != nil {
			s.logger.Warn("logout after missing refresh token", "visitor", s.visitor, "error", err)
		}
		s.monitor.TrackRefresh("no_token")
		return "", status.ErrNoRefreshToken
	}

	pair, err := s.refresher.RefreshToken(ctx, refreshToken)
	if err != nil {
		if lerr := s.Logout(ctx); lerr != nil {
			s.logger.Warn("logout after failed refresh", "visitor", s.visitor, "error", lerr)
		}
		s.mu.Lock()
		s.state.Error = err.Error()
		s.mu.Unlock()

		s.monitor.TrackRefresh("failure")
		s.logger.Info("token refresh failed", "visitor", s.visitor, "error", err)
		return "", fmt.Errorf("%w: %w", status.ErrRefreshFailed, err)
	}

	// The backend may or may not rotate the refresh token.
	next := pair.RefreshToken
	if next == "" {
		next = refreshToken
	}
	if err := s.Login(ctx, user, pair.AccessToken, next); err != nil {
		s.logger.Warn("persist refreshed tokens", "visitor", s.visitor, "error", err)
	}
	s.monitor.TrackRefresh("success")
	return pair.AccessToken, nil
}

// Refresh is called by the backend client after a 401. Concurrent callers
// share a single HandleTokenRefresh; a caller whose stale token was already
// replaced gets the current one without a backend call. The refresh keeps
// running when a waiter gives up, bounded by the refresh timeout.
func (s *Session) Refresh(ctx context.Context, stale string) (string, error) {
	ch := s.flight.DoChan("refresh", func() (any, error) {
		if current := s.AccessToken(); current != "" && current != stale {
			s.monitor.TrackRefresh("skipped")
			return current, nil
		}

		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
		defer cancel()

		token, err := s.HandleTokenRefresh(rctx)
		if err != nil {
			return "", fmt.Errorf("%w: %w", status.ErrSessionExpired, err)
		}
		return token, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// InitializeAuth restores the session from storage. With a refresh token the
// visitor is shown as authenticated right away and the pair is renewed; with
// only an access token the session is kept with a warning.
func (s *Session) InitializeAuth(ctx context.Context) error {
	defer func() {
		s.mu.Lock()
		s.state.IsLoading = false
		s.mu.Unlock()
	}()

	refreshToken, rerr := s.store.Get(ctx, KeyRefreshToken)
	accessToken, aerr := s.store.Get(ctx, KeyAccessToken)
	if err := errors.Join(rerr, aerr); err != nil {
		s.logger.Warn("restore session", "visitor", s.visitor, "error", err)
	}

	var user *models.User
	if refreshToken != "" || accessToken != "" {
		var stored bool
		if user, stored = s.storedUser(ctx, accessToken); !stored && user != nil {
			if err := s.persistUser(ctx, user); err != nil {
				s.logger.Warn("persist user from token", "visitor", s.visitor, "error", err)
			}
		}
	}

	switch {
	case refreshToken != "":
		s.mu.Lock()
		s.state = AuthState{
			User:            user,
			AccessToken:     accessToken,
			RefreshToken:    refreshToken,
			IsAuthenticated: accessToken != "",
			IsLoading:       true,
		}
		s.mu.Unlock()

		_, err := s.HandleTokenRefresh(ctx)
		return err

	case accessToken != "":
		s.mu.Lock()
		s.state = AuthState{
			User:            user,
			AccessToken:     accessToken,
			IsAuthenticated: true,
			IsLoading:       true,
			Warning:         WarnCannotRenew,
		}
		s.mu.Unlock()
		return nil

	default:
		return s.Logout(ctx)
	}
}

// ensureInitialized restores the session once. The restore is detached from
// the triggering request: a client that goes away must not end the session.
func (s *Session) ensureInitialized(ctx context.Context) {
	s.initOnce.Do(func() {
		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
		defer cancel()

		if err := s.InitializeAuth(ictx); err != nil {
			s.logger.Info("session restored as anonymous", "visitor", s.visitor, "error", err)
		}
	})
}
