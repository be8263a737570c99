package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-health/forge-core/pkg/dsar"
	"github.com/forge-health/forge-core/pkg/repository"
)

// Failure paths are exercised against a mocked driver so they stay
// deterministic.
func TestRepository_PropagatesDriverErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	// Schema bootstrap: every CREATE succeeds.
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS dsars")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	for i := 0; i < 15; i++ {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(chain_position) FROM audit_events")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	repo, err := repository.New(context.Background(), db, false)
	require.NoError(t, err)

	driverErr := errors.New("disk I/O error")
	mock.ExpectExec("INSERT INTO dsars").WillReturnError(driverErr)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	err = repo.SaveDSAR(context.Background(), &dsar.Request{
		ID: "dsar-err", Type: dsar.RequestAccess, SubjectEmail: "s@example.com",
		Status: dsar.StatusReceived, Deadline: now, CreatedAt: now, UpdatedAt: now,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, driverErr)

	mock.ExpectQuery("SELECT (.+) FROM dsars").WillReturnError(driverErr)
	_, err = repo.ListDSARs(context.Background())
	assert.ErrorIs(t, err, driverErr)
}

func TestRepository_MigrationFailureAborts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS dsars").
		WillReturnError(errors.New("permission denied"))
	mock.ExpectClose()

	_, err = repository.New(context.Background(), db, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate schema")
}
