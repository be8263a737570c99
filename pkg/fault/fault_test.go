package fault_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-health/forge-core/pkg/fault"
)

func TestWrappersPreserveClass(t *testing.T) {
	assert.ErrorIs(t, fault.Authenticationf("token %s", "expired"), fault.ErrAuthentication)
	assert.ErrorIs(t, fault.Authorizationf("denied"), fault.ErrAuthorization)
	assert.ErrorIs(t, fault.Validationf("bad input"), fault.ErrValidation)
	assert.ErrorIs(t, fault.NotFoundf("session %s", "x"), fault.ErrNotFound)
	assert.ErrorIs(t, fault.Conflictf("already registered"), fault.ErrConflict)
	assert.ErrorIs(t, fault.Transientf("timeout"), fault.ErrTransient)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, fault.IsTransient(fault.Transientf("upstream 503")))
	assert.False(t, fault.IsTransient(fault.Validationf("nope")))
	assert.False(t, fault.IsTransient(errors.New("plain")))
	assert.False(t, fault.IsTransient(nil))
}

func TestRetryStopsOnNonTransient(t *testing.T) {
	calls := 0
	err := fault.Retry(context.Background(), 5, func() error {
		calls++
		return fault.Validationf("malformed")
	})
	assert.ErrorIs(t, err, fault.ErrValidation)
	assert.Equal(t, 1, calls)
}

func TestRetryRecoversFromTransient(t *testing.T) {
	calls := 0
	err := fault.Retry(context.Background(), 3, func() error {
		calls++
		if calls == 1 {
			return fault.Transientf("flake")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fault.Retry(context.Background(), 1, func() error {
		calls++
		return fault.Transientf("still down")
	})
	assert.ErrorIs(t, err, fault.ErrTransient)
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := fault.Retry(ctx, 3, func() error {
		return fault.Transientf("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
