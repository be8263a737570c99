package auth

import (
	"sync"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/forge-health/forge-core/pkg/clock"
	"github.com/forge-health/forge-core/pkg/fault"
)

const (
	passwordMinLength = 12
	passwordHistory   = 4
	passwordMaxAge    = 90 * 24 * time.Hour
	passwordMinAge    = 24 * time.Hour
	lockoutFailures   = 5
	lockoutWindow     = 30 * time.Minute
	lockoutDuration   = 30 * time.Minute
	bcryptCostDefault = bcrypt.DefaultCost
)

// credential tracks the password state for one account.
type credential struct {
	hash       []byte
	history    [][]byte // most recent last, excluding current
	changedAt  time.Time
	failures   []time.Time
	lockedTill time.Time
}

// PasswordService enforces the password policy and the failed-attempt
// lockout rule (five failures within 30 minutes lock the account 30 min).
type PasswordService struct {
	mu    sync.Mutex
	creds map[string]*credential
	clock clock.Clock
	cost  int
}

// NewPasswordService creates the service.
func NewPasswordService(c clock.Clock) *PasswordService {
	if c == nil {
		c = clock.Wall
	}
	return &PasswordService{
		creds: make(map[string]*credential),
		clock: c,
		cost:  bcryptCostDefault,
	}
}

// CheckPolicy validates structural password requirements.
func CheckPolicy(password string) error {
	if len(password) < passwordMinLength {
		return fault.Validationf("password must be at least %d characters", passwordMinLength)
	}
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return fault.Validationf("password must contain upper, lower, digit, and symbol characters")
	}
	return nil
}

// Set changes the account password, enforcing policy, reuse of the last
// four hashes, and the 1-day minimum age.
func (s *PasswordService) Set(subject, password string) error {
	if err := CheckPolicy(password); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	cred := s.creds[subject]
	if cred != nil {
		if now.Sub(cred.changedAt) < passwordMinAge {
			return fault.Validationf("password changed too recently")
		}
		for _, old := range append(cred.history, cred.hash) {
			if bcrypt.CompareHashAndPassword(old, []byte(password)) == nil {
				return fault.Validationf("password reuse of the last %d passwords is not allowed", passwordHistory)
			}
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}
	if cred == nil {
		cred = &credential{}
		s.creds[subject] = cred
	} else {
		cred.history = append(cred.history, cred.hash)
		if len(cred.history) > passwordHistory {
			cred.history = cred.history[len(cred.history)-passwordHistory:]
		}
	}
	cred.hash = hash
	cred.changedAt = now
	return nil
}

// Seed installs an initial password without history checks. Used for
// admin bootstrap.
func (s *PasswordService) Seed(subject, password string) error {
	if err := CheckPolicy(password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[subject] = &credential{hash: hash, changedAt: s.clock.Now()}
	return nil
}

// Check verifies the password. Lockout and expiry are enforced here;
// failures feed the lockout counter.
func (s *PasswordService) Check(subject, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	cred, ok := s.creds[subject]
	if !ok {
		return fault.Authenticationf("unknown account")
	}
	if now.Before(cred.lockedTill) {
		return fault.Authenticationf("account locked")
	}
	if now.Sub(cred.changedAt) > passwordMaxAge {
		return fault.Authenticationf("password expired")
	}
	if bcrypt.CompareHashAndPassword(cred.hash, []byte(password)) != nil {
		s.recordFailureLocked(cred, now)
		return fault.Authenticationf("invalid credentials")
	}
	cred.failures = nil
	return nil
}

// RecordFailedAttempt appends a failure timestamp; five failures within 30
// minutes lock the account for 30 minutes.
func (s *PasswordService) RecordFailedAttempt(subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[subject]
	if !ok {
		return
	}
	s.recordFailureLocked(cred, s.clock.Now())
}

// IsLocked reports whether the account is currently locked out.
func (s *PasswordService) IsLocked(subject string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[subject]
	return ok && s.clock.Now().Before(cred.lockedTill)
}

func (s *PasswordService) recordFailureLocked(cred *credential, now time.Time) {
	cutoff := now.Add(-lockoutWindow)
	kept := cred.failures[:0]
	for _, f := range cred.failures {
		if f.After(cutoff) {
			kept = append(kept, f)
		}
	}
	cred.failures = append(kept, now)
	if len(cred.failures) >= lockoutFailures {
		cred.lockedTill = now.Add(lockoutDuration)
		cred.failures = nil
	}
}
