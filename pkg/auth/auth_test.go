package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-health/forge-core/pkg/auth"
	"github.com/forge-health/forge-core/pkg/blacklist"
	"github.com/forge-health/forge-core/pkg/clock"
)

const testSecret = "unit-test-signing-secret"

func newVerifier(t *testing.T, fc *clock.Fake) (*auth.Verifier, *blacklist.Local) {
	t.Helper()
	bl := blacklist.NewLocal(blacklist.WithClock(fc))
	v, err := auth.NewVerifier(testSecret, bl, fc)
	require.NoError(t, err)
	return v, bl
}

func TestVerifier_RoundTrip(t *testing.T) {
	fc := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	v, _ := newVerifier(t, fc)

	token, err := v.MintToken("user-1", "j1", []string{"clinician"}, []string{"read_patient_data"}, time.Hour)
	require.NoError(t, err)

	p, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.Subject)
	assert.Equal(t, "j1", p.TokenID)
	assert.False(t, p.IsAdmin)
	assert.True(t, p.HasPermission("read_patient_data"))
}

func TestVerifier_AdminImpliesComplianceOfficer(t *testing.T) {
	fc := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	v, _ := newVerifier(t, fc)

	token, err := v.MintToken("root", "", []string{"admin"}, nil, time.Hour)
	require.NoError(t, err)

	p, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin)
	assert.True(t, p.IsComplianceOfficer)
}

func TestVerifier_RejectsExpired(t *testing.T) {
	fc := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	v, _ := newVerifier(t, fc)

	token, err := v.MintToken("user-1", "j1", nil, nil, time.Minute)
	require.NoError(t, err)

	fc.Advance(2 * time.Minute)
	_, err = v.Verify(context.Background(), token)
	assert.Error(t, err)
}

func TestVerifier_RejectsRevokedJTI(t *testing.T) {
	fc := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	v, bl := newVerifier(t, fc)
	ctx := context.Background()

	token, err := v.MintToken("user-1", "j1", nil, nil, time.Hour)
	require.NoError(t, err)

	require.NoError(t, bl.Add(ctx, "j1", fc.Now().Add(time.Hour)))
	_, err = v.Verify(ctx, token)
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Empty(t, auth.ExtractToken(r))

	r.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", auth.ExtractToken(r))

	// The cookie takes precedence over the header.
	r.AddCookie(&http.Cookie{Name: auth.AccessTokenCookie, Value: "cookie-token"})
	assert.Equal(t, "cookie-token", auth.ExtractToken(r))
}

func TestMFA_ConstantTimeVerifyAndExhaustion(t *testing.T) {
	fc := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := auth.NewMFAService(fc, &clock.SequenceSource{Prefix: "mfa"})

	ch := svc.CreateChallenge("user-1", "totp", "123456")

	ok, err := svc.Verify(ch.ID, "000000")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = svc.Verify(ch.ID, "111111")
	require.NoError(t, err)
	assert.False(t, ok)
	// Third wrong attempt exhausts the challenge.
	ok, err = svc.Verify(ch.ID, "222222")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.True(t, svc.IsDead(ch.ID))

	// A fourth attempt, even with the right code, fails: the challenge is dead.
	_, err = svc.Verify(ch.ID, "123456")
	assert.Error(t, err)
}

func TestMFA_SuccessIsSingleUse(t *testing.T) {
	fc := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := auth.NewMFAService(fc, &clock.SequenceSource{Prefix: "mfa"})

	ch := svc.CreateChallenge("user-1", "totp", "123456")
	ok, err := svc.Verify(ch.ID, "123456")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.Verify(ch.ID, "123456")
	assert.Error(t, err)
}

func TestSession_IdleTimeout(t *testing.T) {
	fc := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	store := auth.NewSessionStore(fc, &clock.SequenceSource{Prefix: "sess"})

	sess := store.Create("user-1", "10.0.0.1", "test-agent", "totp", false)

	fc.Advance(14 * time.Minute)
	require.NotNil(t, store.Validate(sess.ID))

	// 16 minutes since the refreshed activity: idle limit exceeded.
	fc.Advance(16 * time.Minute)
	assert.Nil(t, store.Validate(sess.ID))
}

func TestSession_PrivilegedCapsAtFourHours(t *testing.T) {
	fc := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	store := auth.NewSessionStore(fc, &clock.SequenceSource{Prefix: "sess"})

	sess := store.Create("root", "10.0.0.1", "test-agent", "totp", true)
	assert.Equal(t, fc.Now().Add(4*time.Hour), sess.ExpiresAt)
}

func TestPassword_PolicyAndLockout(t *testing.T) {
	fc := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := auth.NewPasswordService(fc)

	assert.Error(t, auth.CheckPolicy("short"))
	assert.Error(t, auth.CheckPolicy("alllowercaseonly1!"))
	assert.NoError(t, auth.CheckPolicy("Hunter2!Pa$$word"))

	require.NoError(t, svc.Seed("user-1", "Hunter2!Pa$$word"))
	require.NoError(t, svc.Check("user-1", "Hunter2!Pa$$word"))

	for i := 0; i < 5; i++ {
		assert.Error(t, svc.Check("user-1", "WrongPass1!xxxx"))
	}
	assert.True(t, svc.IsLocked("user-1"))
	assert.Error(t, svc.Check("user-1", "Hunter2!Pa$$word"))

	fc.Advance(31 * time.Minute)
	assert.False(t, svc.IsLocked("user-1"))
	assert.NoError(t, svc.Check("user-1", "Hunter2!Pa$$word"))
}

func TestPassword_MinAgeAndReuse(t *testing.T) {
	fc := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := auth.NewPasswordService(fc)

	require.NoError(t, svc.Seed("user-1", "Hunter2!Pa$$word"))

	// Too soon after the last change.
	fc.Advance(time.Hour)
	assert.Error(t, svc.Set("user-1", "Another0!Pa$$word"))

	fc.Advance(24 * time.Hour)
	// Reuse of the current password is rejected.
	assert.Error(t, svc.Set("user-1", "Hunter2!Pa$$word"))
	assert.NoError(t, svc.Set("user-1", "Another0!Pa$$word"))
}
