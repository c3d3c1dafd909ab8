package devbackend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "console-devbackend"

// Default credentials of the seeded administrator.
const (
	DefaultEmail    = "admin@example.com"
	DefaultPassword = "password"
)

var errInvalidRefresh = errors.New("invalid refresh token")

type subjectKey struct{}

// SubjectFrom returns the authenticated email set by Authenticate.
func SubjectFrom(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}

// tokenPair is an issued access and refresh token.
type tokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// issuer signs HS256 access tokens and keeps opaque refresh tokens in
// memory. Refresh tokens rotate on every use.
type issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	refresh map[string]string
}

func newIssuer(key string, ttl time.Duration, now func() time.Time) *issuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if key == "" {
		key = uuid.NewString()
	}
	return &issuer{key: []byte(key), ttl: ttl, now: now, refresh: map[string]string{}}
}

func (i *issuer) issue(subject string) (tokenPair, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString(i.key)
	if err != nil {
		return tokenPair{}, fmt.Errorf("signing access token: %w", err)
	}

	refresh := uuid.NewString()
	i.mu.Lock()
	i.refresh[refresh] = subject
	i.mu.Unlock()
	return tokenPair{AccessToken: signed, RefreshToken: refresh, ExpiresAt: exp}, nil
}

// rotate exchanges a refresh token for a new pair. The old token is spent.
func (i *issuer) rotate(refresh string) (tokenPair, string, error) {
	i.mu.Lock()
	subject, ok := i.refresh[refresh]
	delete(i.refresh, refresh)
	i.mu.Unlock()
	if !ok {
		return tokenPair{}, "", errInvalidRefresh
	}
	pair, err := i.issue(subject)
	return pair, subject, err
}

func (i *issuer) revoke(refresh string) {
	i.mu.Lock()
	delete(i.refresh, refresh)
	i.mu.Unlock()
}

// verify validates an access token and returns its subject.
func (i *issuer) verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return i.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// Authenticate requires a valid bearer token and stores its subject in the
// request context.
func (i *issuer) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}
		subject, err := i.verify(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, subject)))
	})
}
