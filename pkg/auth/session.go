package auth

import (
	"sync"
	"time"

	"github.com/forge-health/forge-core/pkg/clock"
)

const (
	sessionDuration           = 8 * time.Hour
	privilegedSessionDuration = 4 * time.Hour
	sessionIdleTimeout        = 15 * time.Minute
)

// Session is an authenticated login session.
type Session struct {
	ID           string
	Subject      string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActivity time.Time
	IP           string
	UserAgent    string
	MFAVerified  bool
	MFAMethod    string
	Privileged   bool
}

// SessionStore mints and validates sessions. Privileged sessions cap at 4h;
// any session dies after 15 minutes of inactivity.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	clock    clock.Clock
	ids      clock.IDSource
}

// NewSessionStore creates the session store.
func NewSessionStore(c clock.Clock, ids clock.IDSource) *SessionStore {
	if c == nil {
		c = clock.Wall
	}
	if ids == nil {
		ids = clock.UUIDSource{}
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		clock:    c,
		ids:      ids,
	}
}

// Create mints a session after password + MFA verification.
func (s *SessionStore) Create(subject, ip, userAgent, mfaMethod string, privileged bool) *Session {
	now := s.clock.Now()
	dur := sessionDuration
	if privileged {
		dur = privilegedSessionDuration
	}
	sess := &Session{
		ID:           s.ids.NewID(),
		Subject:      subject,
		CreatedAt:    now,
		ExpiresAt:    now.Add(dur),
		LastActivity: now,
		IP:           ip,
		UserAgent:    userAgent,
		MFAVerified:  mfaMethod != "",
		MFAMethod:    mfaMethod,
		Privileged:   privileged,
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// Validate returns the session if it is neither expired nor idle beyond the
// 15-minute window, refreshing last-activity on success. Invalid sessions
// are removed and nil is returned.
func (s *SessionStore) Validate(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	now := s.clock.Now()
	if now.After(sess.ExpiresAt) || now.Sub(sess.LastActivity) > sessionIdleTimeout {
		delete(s.sessions, id)
		return nil
	}
	sess.LastActivity = now
	return sess
}

// Destroy removes a session (logout). Returns false if unknown.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}
