// Package session persists the bearer token and profile between runs.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"taskflow/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSession is returned by Store.Load when nobody is logged in.
var ErrNoSession = errors.New("no session")

// Session is a logged-in user.
type Session struct {
	Token   string      `json:"token"`
	User    models.User `json:"user"`
	SavedAt time.Time   `json:"savedAt"`
}

// Store keeps at most one Session.
type Store interface {
	Load(ctx context.Context) (Session, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

// Claims is what the client can read from a JWT without the signing key.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// ParseClaims reads the registered claims of a JWT. The signature is not
// checked; only the server can do that.
func ParseClaims(token string) (Claims, error) {
	rc := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, rc); err != nil {
		return Claims{}, fmt.Errorf("parse token claims: %w", err)
	}
	c := Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	return c, nil
}

// Authenticated reports whether s holds a token that has not expired at now.
// Opaque tokens count as valid until the server says otherwise.
func (s Session) Authenticated(now time.Time) bool {
	if s.Token == "" {
		return false
	}
	c, err := ParseClaims(s.Token)
	if err != nil || c.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(c.ExpiresAt)
}

// Token returns the stored bearer token, or "" when there is no session.
func Token(ctx context.Context, st Store) (string, error) {
	s, err := st.Load(ctx)
	if errors.Is(err, ErrNoSession) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return s.Token, nil
}

// ttlFor picks how long a stored session should live. An explicit ttl wins;
// otherwise a JWT's own expiry is used. Zero means no expiry.
func ttlFor(s Session, ttl time.Duration, now time.Time) time.Duration {
	if ttl > 0 {
		return ttl
	}
	c, err := ParseClaims(s.Token)
	if err != nil || c.ExpiresAt.IsZero() {
		return 0
	}
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return time.Second
}

// MemoryStore keeps the session for the life of the process.
type MemoryStore struct {
	mu sync.Mutex
	s  *Session
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s == nil {
		return Session{}, ErrNoSession
	}
	return *m.s, nil
}

func (m *MemoryStore) Save(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = &s
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	return nil
}
