package breach

import (
	"context"
	"strings"
	"time"

	"github.com/forge-health/forge-core/pkg/clock"
	"github.com/forge-health/forge-core/pkg/fault"
)

// jurisdictionRule holds per-jurisdiction notification windows in hours.
// Zero means no fixed statutory window (e.g. GDPR individual notification
// is "without undue delay").
type jurisdictionRule struct {
	dpaHours        int
	individualHours int
	mediaHours      int
}

func ruleFor(jurisdiction string, recordCount int) jurisdictionRule {
	switch strings.ToUpper(jurisdiction) {
	case "EU", "GDPR", "UK":
		return jurisdictionRule{dpaHours: 72}
	case "CALIFORNIA", "US-CA", "CCPA":
		return jurisdictionRule{dpaHours: 72, individualHours: 72}
	case "COLORADO", "US-CO":
		return jurisdictionRule{individualHours: 720}
	case "HIPAA", "US-HIPAA":
		// HHS must hear within 72h for large breaches, 60 days otherwise.
		dpa := 1440
		if recordCount >= 500 {
			dpa = 72
		}
		return jurisdictionRule{dpaHours: dpa, individualHours: 1440, mediaHours: 1440}
	default:
		return jurisdictionRule{dpaHours: 72}
	}
}

// Store persists incidents and notification records.
type Store interface {
	SaveBreach(ctx context.Context, inc *Incident) error
	GetBreach(ctx context.Context, id string) (*Incident, error)
	ListBreaches(ctx context.Context) ([]*Incident, error)
	SaveNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, incidentID string) ([]*Notification, error)
}

// Auditor receives one record per incident state change.
type Auditor interface {
	RecordBreachEvent(incidentID, action, actor string, success bool) error
}

// Service drives the breach workflow.
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

// Report registers a new incident, assesses severity and notification
// obligations, and computes deadlines. Encryption in place reduces assessed
// severity but never waives notification on its own.
func (s *Service) Report(ctx context.Context, inc Incident) (*Incident, error) {
	if len(inc.Jurisdictions) == 0 {
		return nil, fault.Validationf("breach requires at least one jurisdiction")
	}
	now := s.clock.Now()
	inc.ID = s.ids.NewID()
	inc.Status = StatusDetected
	inc.CreatedAt = now
	inc.UpdatedAt = now
	if inc.DiscoveredAt.IsZero() {
		inc.DiscoveredAt = now
	}

	assess(&inc)

	if inc.DPARequired {
		if hours, ok := minDPAHours(inc.Jurisdictions, inc.RecordCount); ok {
			d := inc.DiscoveredAt.Add(time.Duration(hours) * time.Hour)
			inc.DPADeadline = &d
		}
	}
	if inc.IndividualRequired {
		if hours, ok := minIndividualHours(inc.Jurisdictions, inc.RecordCount); ok {
			d := inc.DiscoveredAt.Add(time.Duration(hours) * time.Hour)
			inc.IndividualDeadline = &d
		}
	}

	if err := s.store.SaveBreach(ctx, &inc); err != nil {
		return nil, err
	}
	s.audit(inc.ID, "breach_reported", "system", true)
	return &inc, nil
}

// assess derives notification requirements and severity. Requirements are
// policy-derived, never free-form.
func assess(inc *Incident) {
	highRisk := false
	for _, c := range inc.Categories {
		if c.highRisk() {
			highRisk = true
			break
		}
	}
	sensitive := false
	for _, e := range inc.Elements {
		if isSensitiveElement(e) {
			sensitive = true
			break
		}
	}

	inc.DPARequired = highRisk || sensitive || inc.RecordCount >= 500
	inc.IndividualRequired = inc.LikelyHarm || inc.RecordCount >= 500 || highRisk

	switch {
	case (sensitive || highRisk) && inc.RecordCount >= 1000:
		inc.Severity = SeverityCritical
	case highRisk || sensitive || inc.RecordCount >= 500:
		inc.Severity = SeverityHigh
	case inc.RecordCount >= 100:
		inc.Severity = SeverityMedium
	default:
		inc.Severity = SeverityLow
	}
	if inc.Encrypted && inc.Severity > SeverityLow {
		inc.Severity--
	}
}

func minDPAHours(jurisdictions []string, recordCount int) (int, bool) {
	min, found := 0, false
	for _, j := range jurisdictions {
		h := ruleFor(j, recordCount).dpaHours
		if h > 0 && (!found || h < min) {
			min, found = h, true
		}
	}
	return min, found
}

func minIndividualHours(jurisdictions []string, recordCount int) (int, bool) {
	min, found := 0, false
	for _, j := range jurisdictions {
		h := ruleFor(j, recordCount).individualHours
		if h > 0 && (!found || h < min) {
			min, found = h, true
		}
	}
	return min, found
}

// UpdateStatus advances the incident along the lifecycle. Transitions only
// move forward; contained/remediated/closed stamp their timestamps. Closing
// requires remediation first.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status, actor string) (*Incident, error) {
	inc, err := s.store.GetBreach(ctx, id)
	if err != nil {
		return nil, err
	}
	fromRank, ok := statusRank[inc.Status]
	toRank, ok2 := statusRank[to]
	if !ok || !ok2 || toRank <= fromRank {
		s.audit(id, "breach_status_"+string(to), actor, false)
		return nil, fault.Conflictf("invalid breach transition %s -> %s", inc.Status, to)
	}
	if to == StatusClosed && inc.RemediatedAt == nil && inc.Status != StatusRemediated {
		s.audit(id, "breach_status_closed", actor, false)
		return nil, fault.Conflictf("cannot close breach before remediation")
	}

	now := s.clock.Now()
	switch to {
	case StatusContained:
		inc.ContainedAt = &now
	case StatusRemediated:
		inc.RemediatedAt = &now
	case StatusClosed:
		if inc.RemediatedAt == nil {
			inc.RemediatedAt = &now
		}
		inc.ClosedAt = &now
	}
	inc.Status = to
	inc.UpdatedAt = now
	if err := s.store.SaveBreach(ctx, inc); err != nil {
		return nil, err
	}
	s.audit(id, "breach_status_"+string(to), actor, true)
	return inc, nil
}

// AddRemediation appends a remediation action.
func (s *Service) AddRemediation(ctx context.Context, id, action string) (*Incident, error) {
	inc, err := s.store.GetBreach(ctx, id)
	if err != nil {
		return nil, err
	}
	inc.Remediation = append(inc.Remediation, action)
	inc.UpdatedAt = s.clock.Now()
	if err := s.store.SaveBreach(ctx, inc); err != nil {
		return nil, err
	}
	return inc, nil
}

// RecordNotification appends a notification record. Sending a DPA
// notification stops deadline alerts for the incident.
func (s *Service) RecordNotification(ctx context.Context, n Notification) (*Notification, error) {
	inc, err := s.store.GetBreach(ctx, n.IncidentID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	n.ID = s.ids.NewID()
	n.CreatedAt = now
	if n.Status == "" {
		n.Status = NotificationPending
	}
	if n.Deadline == nil && n.Recipient == RecipientDPA {
		n.Deadline = inc.DPADeadline
	}
	if n.Status == NotificationSent || n.Status == NotificationDelivered {
		n.SentAt = &now
	}
	if err := s.store.SaveNotification(ctx, &n); err != nil {
		return nil, err
	}
	s.audit(inc.ID, "breach_notification_"+string(n.Recipient), "system", true)
	return &n, nil
}

// DPANotified reports whether a DPA notification has been sent for the
// incident.
func (s *Service) DPANotified(ctx context.Context, incidentID string) (bool, error) {
	notifications, err := s.store.ListNotifications(ctx, incidentID)
	if err != nil {
		return false, err
	}
	for _, n := range notifications {
		if n.Recipient == RecipientDPA && n.SentAt != nil {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) audit(id, action, actor string, success bool) {
	if s.auditor != nil {
		_ = s.auditor.RecordBreachEvent(id, action, actor, success)
	}
}
