package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/forge-health/forge-core/pkg/aigov"
	"github.com/forge-health/forge-core/pkg/audit"
	"github.com/forge-health/forge-core/pkg/breach"
	"github.com/forge-health/forge-core/pkg/consent"
	"github.com/forge-health/forge-core/pkg/dsar"
	"github.com/forge-health/forge-core/pkg/fault"
	"github.com/forge-health/forge-core/pkg/repository"
)

func openRepo(t *testing.T) *repository.Repository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	repo, err := repository.New(context.Background(), db, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepository_DSARRoundTrip(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	done := now.Add(20 * 24 * time.Hour)

	req := &dsar.Request{
		ID:           "dsar-1",
		Type:         dsar.RequestAccess,
		Jurisdiction: "EU",
		Frameworks:   []string{"GDPR"},
		SubjectName:  "Alex Doe",
		SubjectEmail: "alex@example.com",
		Status:       dsar.StatusCompleted,
		Deadline:     now.AddDate(0, 0, 30),
		AssignedTo:   "analyst-1",
		Notes:        []dsar.Note{{At: now, By: "officer", Text: "verified id"}},
		CreatedAt:    now,
		UpdatedAt:    done,
		CompletedAt:  &done,
	}
	require.NoError(t, repo.SaveDSAR(ctx, req))

	got, err := repo.GetDSAR(ctx, "dsar-1")
	require.NoError(t, err)
	assert.Equal(t, req.Status, got.Status)
	assert.Equal(t, req.Deadline, got.Deadline)
	assert.Equal(t, req.Frameworks, got.Frameworks)
	require.Len(t, got.Notes, 1)
	assert.Equal(t, "verified id", got.Notes[0].Text)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, done, *got.CompletedAt)

	_, err = repo.GetDSAR(ctx, "missing")
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestRepository_DSARUpsert(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	req := &dsar.Request{
		ID: "dsar-2", Type: dsar.RequestDeletion, SubjectEmail: "s@example.com",
		Status: dsar.StatusReceived, Deadline: now.AddDate(0, 0, 30),
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.SaveDSAR(ctx, req))
	req.Status = dsar.StatusVerified
	require.NoError(t, repo.SaveDSAR(ctx, req))

	got, err := repo.GetDSAR(ctx, "dsar-2")
	require.NoError(t, err)
	assert.Equal(t, dsar.StatusVerified, got.Status)

	all, err := repo.ListDSARs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRepository_BreachRoundTrip(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	t0 := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	deadline := t0.Add(72 * time.Hour)

	inc := &breach.Incident{
		ID:            "inc-1",
		Type:          "unauthorized_access",
		Severity:      breach.SeverityCritical,
		Status:        breach.StatusDetected,
		DiscoveredAt:  t0,
		Categories:    []breach.DataCategory{breach.CategoryPersonalData},
		Elements:      []string{"ssn"},
		Jurisdictions: []string{"EU"},
		RecordCount:   1200,
		DPARequired:   true,
		DPADeadline:   &deadline,
		CreatedAt:     t0,
		UpdatedAt:     t0,
	}
	require.NoError(t, repo.SaveBreach(ctx, inc))

	got, err := repo.GetBreach(ctx, "inc-1")
	require.NoError(t, err)
	assert.Equal(t, breach.SeverityCritical, got.Severity)
	assert.True(t, got.DPARequired)
	require.NotNil(t, got.DPADeadline)
	assert.Equal(t, deadline, *got.DPADeadline)
	assert.Equal(t, []string{"ssn"}, got.Elements)

	n := &breach.Notification{
		ID: "n-1", IncidentID: "inc-1", Recipient: breach.RecipientDPA,
		Jurisdiction: "EU", Status: breach.NotificationSent,
		Deadline: &deadline, SentAt: &t0, CreatedAt: t0,
	}
	require.NoError(t, repo.SaveNotification(ctx, n))
	list, err := repo.ListNotifications(ctx, "inc-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Deadline)
}

func TestRepository_ConsentRoundTrip(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	rec := &consent.Record{
		ID: "c-1", UserID: "user-1", Type: "data_processing", Purpose: "care",
		Granted: true, GrantedAt: now, CollectedVia: "web",
		TextVersion: "v3", TextHash: "abc", ThirdParties: []string{"lab-x"},
	}
	require.NoError(t, repo.SaveConsent(ctx, rec))

	byUser, err := repo.ListConsentsByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.True(t, byUser[0].Granted)
	assert.Equal(t, []string{"lab-x"}, byUser[0].ThirdParties)

	// Withdrawal persists via upsert.
	w := now.Add(time.Hour)
	rec.Granted = false
	rec.WithdrawnAt = &w
	require.NoError(t, repo.SaveConsent(ctx, rec))
	got, err := repo.GetConsent(ctx, "c-1")
	require.NoError(t, err)
	assert.False(t, got.Granted)
	require.NotNil(t, got.WithdrawnAt)
}

func TestRepository_AISystemUniqueness(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	reg := &aigov.SystemRegistration{
		ID: "ai-1", Name: "engine", Version: "1.0.0",
		Risk: aigov.RiskHigh, RegisteredAt: now,
	}
	require.NoError(t, repo.SaveAISystem(ctx, reg))

	dup := &aigov.SystemRegistration{ID: "ai-2", Name: "engine", Version: "1.0.0", RegisteredAt: now}
	assert.Error(t, repo.SaveAISystem(ctx, dup))

	found, err := repo.FindAISystem(ctx, "engine", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "ai-1", found.ID)
}

func TestRepository_AuditChainPersistsAndRestores(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()

	log := audit.NewLog(audit.WithSink(repo))
	for i := 0; i < 5; i++ {
		_, err := log.Append(audit.Event{
			Category: audit.CategoryDSAR,
			Actor:    "officer-1",
			Action:   "update",
			Success:  true,
		})
		require.NoError(t, err)
	}

	events, err := repo.LoadAuditEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 5)

	restored := audit.NewLog()
	require.NoError(t, restored.Restore(events))
	ok, n := restored.Verify()
	assert.True(t, ok)
	assert.Equal(t, 5, n)
}
