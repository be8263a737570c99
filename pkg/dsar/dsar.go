// Package dsar tracks Data Subject Access Requests through a fixed state
// machine with jurisdiction-derived deadlines.
package dsar

import (
	"context"
	"strings"
	"time"

	"github.com/forge-health/forge-core/pkg/clock"
	"github.com/forge-health/forge-core/pkg/fault"
)

// Status is the DSAR lifecycle state.
type Status string

const (
	StatusReceived   Status = "received"
	StatusVerified   Status = "verified"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
	StatusExpired    Status = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusExpired
}

// RequestType is the right being exercised.
type RequestType string

const (
	RequestAccess        RequestType = "access"
	RequestDeletion      RequestType = "deletion"
	RequestRectification RequestType = "rectification"
	RequestPortability   RequestType = "portability"
)

// Note is one append-only processing note.
type Note struct {
	At   time.Time `json:"at"`
	By   string    `json:"by"`
	Text string    `json:"text"`
}

// Request is one DSAR.
type Request struct {
	ID           string      `json:"id"`
	Type         RequestType `json:"request_type"`
	Jurisdiction string      `json:"jurisdiction"`
	Frameworks   []string    `json:"frameworks,omitempty"`
	SubjectName  string      `json:"subject_name"`
	SubjectEmail string      `json:"subject_email"`
	Status       Status      `json:"status"`
	Deadline     time.Time   `json:"deadline"`
	AssignedTo   string      `json:"assigned_to,omitempty"`
	Notes        []Note      `json:"notes,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
}

// Store persists DSARs.
type Store interface {
	SaveDSAR(ctx context.Context, r *Request) error
	GetDSAR(ctx context.Context, id string) (*Request, error)
	ListDSARs(ctx context.Context) ([]*Request, error)
}

// deadlineDays maps jurisdiction to the statutory response window. CCPA
// allows a 45-day extension, applied via Extend.
func deadlineDays(jurisdiction string) int {
	switch strings.ToUpper(jurisdiction) {
	case "EU", "GDPR", "UK":
		return 30
	case "CCPA", "CALIFORNIA", "US-CA":
		return 45
	case "LGPD", "BRAZIL":
		return 15
	default:
		return 30
	}
}

func extensible(jurisdiction string) bool {
	switch strings.ToUpper(jurisdiction) {
	case "CCPA", "CALIFORNIA", "US-CA":
		return true
	default:
		return false
	}
}

// Auditor receives one record per state change.
type Auditor interface {
	RecordDSAREvent(requestID, action, actor string, success bool) error
}

// Service drives the DSAR workflow.
type Service struct {
	store   Store
	auditor Auditor
	clock   clock.Clock
	ids     clock.IDSource
}

// NewService creates the workflow service.
func NewService(store Store, auditor Auditor, c clock.Clock, ids clock.IDSource) *Service {
	if c == nil {
		c = clock.Wall
	}
	if ids == nil {
		ids = clock.UUIDSource{}
	}
	return &Service{store: store, auditor: auditor, clock: c, ids: ids}
}

// Create opens a DSAR in received status. The deadline derives from the
// jurisdiction and is frozen at creation.
func (s *Service) Create(ctx context.Context, r Request) (*Request, error) {
	if r.Type == "" || r.SubjectEmail == "" {
		return nil, fault.Validationf("dsar requires request type and subject email")
	}
	now := s.clock.Now()
	r.ID = s.ids.NewID()
	r.Status = StatusReceived
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Deadline = now.AddDate(0, 0, deadlineDays(r.Jurisdiction))
	if err := s.store.SaveDSAR(ctx, &r); err != nil {
		return nil, err
	}
	s.audit(r.ID, "dsar_created", "system", true)
	return &r, nil
}

// Verify confirms the subject's identity: received -> verified.
func (s *Service) Verify(ctx context.Context, id, actor string) (*Request, error) {
	return s.transition(ctx, id, actor, "dsar_verified", StatusReceived, StatusVerified, nil)
}

// Assign hands the request to an operator: verified -> processing.
func (s *Service) Assign(ctx context.Context, id, actor, assignee string) (*Request, error) {
	return s.transition(ctx, id, actor, "dsar_assigned", StatusVerified, StatusProcessing, func(r *Request) {
		r.AssignedTo = assignee
	})
}

// Complete fulfils the request: processing -> completed.
func (s *Service) Complete(ctx context.Context, id, actor string) (*Request, error) {
	return s.transition(ctx, id, actor, "dsar_completed", StatusProcessing, StatusCompleted, func(r *Request) {
		now := s.clock.Now()
		r.CompletedAt = &now
	})
}

// Reject declines the request from received, verified, or processing.
func (s *Service) Reject(ctx context.Context, id, actor, reason string) (*Request, error) {
	r, err := s.store.GetDSAR(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusReceived && r.Status != StatusVerified && r.Status != StatusProcessing {
		s.audit(id, "dsar_rejected", actor, false)
		return nil, fault.Conflictf("cannot reject dsar in status %s", r.Status)
	}
	now := s.clock.Now()
	r.Status = StatusRejected
	r.UpdatedAt = now
	r.Notes = append(r.Notes, Note{At: now, By: actor, Text: "rejected: " + reason})
	if err := s.store.SaveDSAR(ctx, r); err != nil {
		return nil, err
	}
	s.audit(id, "dsar_rejected", actor, true)
	return r, nil
}

// Extend pushes the deadline out for jurisdictions that allow it (CCPA:
// 45 days to 90). The deadline never shortens; the extension is noted.
func (s *Service) Extend(ctx context.Context, id, actor, reason string) (*Request, error) {
	r, err := s.store.GetDSAR(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return nil, fault.Conflictf("cannot extend dsar in status %s", r.Status)
	}
	if !extensible(r.Jurisdiction) {
		return nil, fault.Validationf("jurisdiction %s does not allow deadline extension", r.Jurisdiction)
	}
	extended := r.CreatedAt.AddDate(0, 0, 90)
	if extended.Before(r.Deadline) {
		return r, nil
	}
	now := s.clock.Now()
	r.Deadline = extended
	r.UpdatedAt = now
	r.Notes = append(r.Notes, Note{At: now, By: actor, Text: "deadline extended: " + reason})
	if err := s.store.SaveDSAR(ctx, r); err != nil {
		return nil, err
	}
	s.audit(id, "dsar_extended", actor, true)
	return r, nil
}

// AddNote appends a processing note without changing state.
func (s *Service) AddNote(ctx context.Context, id, actor, text string) (*Request, error) {
	r, err := s.store.GetDSAR(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Notes = append(r.Notes, Note{At: s.clock.Now(), By: actor, Text: text})
	if err := s.store.SaveDSAR(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Overdue returns all non-terminal requests whose deadline has passed.
func (s *Service) Overdue(ctx context.Context) ([]*Request, error) {
	all, err := s.store.ListDSARs(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	var out []*Request
	for _, r := range all {
		if !r.Status.Terminal() && r.Deadline.Before(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ExpireOverdue moves every overdue request to expired and returns how many
// were expired. Intended for a periodic sweep.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := s.Overdue(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range overdue {
		r.Status = StatusExpired
		r.UpdatedAt = s.clock.Now()
		if err := s.store.SaveDSAR(ctx, r); err != nil {
			return n, err
		}
		s.audit(r.ID, "dsar_expired", "system", true)
		n++
	}
	return n, nil
}

func (s *Service) transition(ctx context.Context, id, actor, action string, from, to Status, apply func(*Request)) (*Request, error) {
	r, err := s.store.GetDSAR(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != from {
		s.audit(id, action, actor, false)
		return nil, fault.Conflictf("invalid dsar transition %s -> %s", r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = s.clock.Now()
	if apply != nil {
		apply(r)
	}
	if err := s.store.SaveDSAR(ctx, r); err != nil {
		return nil, err
	}
	s.audit(id, action, actor, true)
	return r, nil
}

func (s *Service) audit(id, action, actor string, success bool) {
	if s.auditor != nil {
		_ = s.auditor.RecordDSAREvent(id, action, actor, success)
	}
}
