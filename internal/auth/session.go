package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pitabwire/console/internal/observability"
	"github.com/pitabwire/console/model"
)

// Refresher exchanges a refresh token for a new token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (Tokens, error)

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	return f(ctx, refreshToken)
}

// ErrNoRefresher is returned when a refresh is needed but none is configured.
var ErrNoRefresher = errors.New("auth: no refresher configured")

// Session is the single writer of the credential pair. Concurrent callers
// that hit a 401 share one refresh call.
type Session struct {
	mu        sync.RWMutex
	tokens    Tokens
	store     TokenStore
	refresher Refresher
	group     singleflight.Group
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithRefresher sets the refresher.
func WithRefresher(r Refresher) Option {
	return func(s *Session) { s.refresher = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession loads any persisted tokens from store.
func NewSession(store TokenStore, opts ...Option) (*Session, error) {
	if store == nil {
		store = NewMemoryStore(Tokens{})
	}
	s := &Session{
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	tokens, err := store.Load()
	if err != nil {
		return nil, err
	}
	s.tokens = tokens
	return s, nil
}

// SetRefresher installs the refresher. The API client registers itself here
// once it has been built around the session.
func (s *Session) SetRefresher(r Refresher) {
	s.mu.Lock()
	s.refresher = r
	s.mu.Unlock()
}

// AccessToken returns the current access token, or "".
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.AccessToken
}

// Tokens returns a copy of the held credentials.
func (s *Session) Tokens() Tokens {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

// Authenticated reports whether an access token is held.
func (s *Session) Authenticated() bool {
	return s.AccessToken() != ""
}

// Expired reports whether the held access token is past its known expiry.
func (s *Session) Expired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.ExpiredAt(s.now())
}

// Set replaces the credentials and persists them.
func (s *Session) Set(t Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = t
	return s.store.Save(t)
}

// Clear drops the credentials in memory and in storage.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = Tokens{}
	return s.store.Clear()
}

// Refresh obtains a new access token after stale was rejected. If another
// caller has already replaced stale, the current token is returned without a
// network call. Concurrent callers share one in-flight refresh. On failure
// the credentials are cleared and an AuthExpiredError is returned.
func (s *Session) Refresh(ctx context.Context, stale string) (string, error) {
	if current := s.AccessToken(); current != "" && current != stale {
		return current, nil
	}

	v, err, shared := s.group.Do("refresh", func() (any, error) {
		s.mu.RLock()
		current := s.tokens
		refresher := s.refresher
		s.mu.RUnlock()

		// A refresh that completed between the check above and Do.
		if current.AccessToken != "" && current.AccessToken != stale {
			return current.AccessToken, nil
		}
		if current.RefreshToken == "" {
			s.expire()
			return nil, &model.AuthExpiredError{Reason: "no refresh token"}
		}
		if refresher == nil {
			return nil, &model.AuthExpiredError{Reason: "refresh unavailable", Err: ErrNoRefresher}
		}

		// The first caller's cancellation must not fail the others.
		next, err := refresher.Refresh(context.WithoutCancel(ctx), current.RefreshToken)
		if err != nil {
			s.metrics.RecordTokenRefresh("failure")
			s.logger.Error("auth: token refresh failed, clearing credentials", zap.Error(err))
			s.expire()
			return nil, &model.AuthExpiredError{Reason: "refresh failed", Err: err}
		}
		if next.RefreshToken == "" {
			next.RefreshToken = current.RefreshToken
		}
		if next.ExpiresAt.IsZero() {
			if exp, ok := ExpiryFromJWT(next.AccessToken); ok {
				next.ExpiresAt = exp
			}
		}
		if err := s.Set(next); err != nil {
			// The new pair is held in memory; persistence is retried on the next Set.
			s.logger.Warn("auth: persisting refreshed tokens failed", zap.Error(err))
		}
		s.metrics.RecordTokenRefresh("success")
		s.logger.Debug("auth: token refreshed")
		return next.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		s.logger.Debug("auth: joined in-flight refresh")
	}
	return v.(string), nil
}

func (s *Session) expire() {
	if err := s.Clear(); err != nil {
		s.logger.Warn("auth: clearing stored tokens failed", zap.Error(err))
	}
}
