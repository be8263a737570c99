package auth

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/forge-health/forge-core/pkg/clock"
	"github.com/forge-health/forge-core/pkg/fault"
)

const (
	mfaChallengeTTL = 5 * time.Minute
	mfaMaxAttempts  = 3
)

// MFAChallenge is a single-use second-factor challenge.
type MFAChallenge struct {
	ID          string
	Subject     string
	Method      string // totp, sms, email
	Secret      string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Attempts    int
	MaxAttempts int
	Verified    bool // monotonic: never flips back to false
	dead        bool
}

// MFAService issues and verifies challenges.
type MFAService struct {
	mu         sync.Mutex
	challenges map[string]*MFAChallenge
	clock      clock.Clock
	ids        clock.IDSource
}

// NewMFAService creates the challenge service.
func NewMFAService(c clock.Clock, ids clock.IDSource) *MFAService {
	if c == nil {
		c = clock.Wall
	}
	if ids == nil {
		ids = clock.UUIDSource{}
	}
	return &MFAService{
		challenges: make(map[string]*MFAChallenge),
		clock:      c,
		ids:        ids,
	}
}

// CreateChallenge mints a challenge with a 5-minute expiry.
func (s *MFAService) CreateChallenge(subject, method, secret string) *MFAChallenge {
	now := s.clock.Now()
	ch := &MFAChallenge{
		ID:          s.ids.NewID(),
		Subject:     subject,
		Method:      method,
		Secret:      secret,
		CreatedAt:   now,
		ExpiresAt:   now.Add(mfaChallengeTTL),
		MaxAttempts: mfaMaxAttempts,
	}
	s.mu.Lock()
	s.challenges[ch.ID] = ch
	s.mu.Unlock()
	return ch
}

// Verify compares the supplied code in constant time. Exceeding the attempt
// budget kills the challenge permanently.
func (s *MFAService) Verify(challengeID, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[challengeID]
	if !ok {
		return false, fault.NotFoundf("mfa challenge %s", challengeID)
	}
	if ch.dead || ch.Verified {
		return ch.Verified, fault.Conflictf("mfa challenge %s is no longer usable", challengeID)
	}
	if s.clock.Now().After(ch.ExpiresAt) {
		ch.dead = true
		return false, fault.Authenticationf("mfa challenge expired")
	}

	ch.Attempts++
	match := subtle.ConstantTimeCompare([]byte(ch.Secret), []byte(code)) == 1
	if match {
		ch.Verified = true
		ch.dead = true // single use
		return true, nil
	}
	if ch.Attempts >= ch.MaxAttempts {
		ch.dead = true
		return false, fault.Authenticationf("mfa challenge exhausted")
	}
	return false, nil
}

// IsDead reports whether the challenge can no longer be used.
func (s *MFAService) IsDead(challengeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[challengeID]
	return !ok || ch.dead
}
