// Package sessions provides per-browser session state for demo apps.
//
// State lives in process memory only: it is scoped to one app process and
// reset whenever the hub restarts it. The session ID is carried in an
// HS256-signed JWT cookie so a stale or forged cookie simply starts a fresh
// session instead of resurrecting someone else's state.
package sessions

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const CookieName = "DHSESSION"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrTokenGeneration = errors.New("failed to generate session token")
)

// SessionClaims is the JWT payload for a session cookie.
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
}

// Session holds one browser's state. Values are guarded by the session's
// own mutex so concurrent requests from the same browser stay consistent.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu     sync.Mutex
	values map[string]any
}

// Value returns the stored value for key, or nil.
func (s *Session) Value(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// SetValue stores a value under key.
func (s *Session) SetValue(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// GetOrCreate returns the value for key, initializing it with init() while
// holding the session lock if it is not present yet.
func (s *Session) GetOrCreate(key string, init func() any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	v := init()
	s.values[key] = v
	return v
}

// Manager issues and resolves session cookies.
type Manager struct {
	expiry    time.Duration
	secretKey []byte

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager with a process-local random signing
// key. Sessions are in-memory by design; a restart invalidates all of them.
func NewManager(expiry time.Duration) (*Manager, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate session signing key: %w", err)
	}
	return &Manager{
		expiry:    expiry,
		secretKey: key,
		sessions:  make(map[string]*Session),
	}, nil
}

// Get resolves the session for the request, creating a new one (and setting
// the cookie) when the request carries no valid session token.
func (m *Manager) Get(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if cookie, err := r.Cookie(CookieName); err == nil {
		if session, err := m.lookup(cookie.Value); err == nil {
			return session, nil
		}
		// Invalid, expired or unknown token: fall through to a new session.
	}
	return m.create(w)
}

func (m *Manager) lookup(token string) (*Session, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secretKey, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrSessionNotFound
	}

	m.mu.RLock()
	session, ok := m.sessions[claims.SessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.expiry > 0 && time.Since(session.CreatedAt) > m.expiry {
		m.mu.Lock()
		delete(m.sessions, session.ID)
		m.mu.Unlock()
		return nil, ErrSessionExpired
	}
	return session, nil
}

func (m *Manager) create(w http.ResponseWriter) (*Session, error) {
	session := &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		values:    make(map[string]any),
	}

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(session.CreatedAt.Add(m.expiry)),
		},
		SessionID: session.ID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return session, nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
