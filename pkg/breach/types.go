// Package breach implements the breach-notification workflow: severity
// assessment, per-jurisdiction notification deadlines, the incident status
// machine, and the tiered deadline alert scheduler.
package breach

import (
	"strings"
	"time"
)

// Severity orders incidents for triage.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	default:
		return "low"
	}
}

// Status is the incident lifecycle state.
type Status string

const (
	StatusDetected      Status = "detected"
	StatusInvestigating Status = "investigating"
	StatusContained     Status = "contained"
	StatusAssessed      Status = "assessed"
	StatusNotifying     Status = "notifying"
	StatusRemediated    Status = "remediated"
	StatusClosed        Status = "closed"
)

// Terminal reports whether the incident needs no further deadline tracking.
func (s Status) Terminal() bool { return s == StatusClosed }

// statusRank encodes the forward-only lifecycle order.
var statusRank = map[Status]int{
	StatusDetected:      0,
	StatusInvestigating: 1,
	StatusContained:     2,
	StatusAssessed:      3,
	StatusNotifying:     4,
	StatusRemediated:    5,
	StatusClosed:        6,
}

// DataCategory classifies the data involved in an incident.
type DataCategory string

const (
	CategoryPersonalData      DataCategory = "PERSONAL_DATA"
	CategorySensitivePersonal DataCategory = "SENSITIVE_PERSONAL"
	CategoryPHI               DataCategory = "PHI"
	CategoryPCI               DataCategory = "PCI"
	CategoryFinancial         DataCategory = "FINANCIAL"
)

// highRisk categories trigger DPA notification on their own.
func (c DataCategory) highRisk() bool {
	switch c {
	case CategorySensitivePersonal, CategoryPHI, CategoryPCI, CategoryFinancial:
		return true
	default:
		return false
	}
}

// sensitiveElements are data elements that force DPA notification regardless
// of category.
var sensitiveElements = []string{
	"ssn", "social-security", "passport", "credit-card", "credit_card",
	"bank-account", "credentials", "password", "biometric", "health-record",
	"drivers-license",
}

func isSensitiveElement(element string) bool {
	e := strings.ToLower(element)
	for _, s := range sensitiveElements {
		if strings.Contains(e, s) {
			return true
		}
	}
	return false
}

// Incident is one breach under management.
type Incident struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Description   string         `json:"description,omitempty"`
	Severity      Severity       `json:"severity"`
	Status        Status         `json:"status"`
	DiscoveredAt  time.Time      `json:"discovered_at"`
	OccurredAt    *time.Time     `json:"occurred_at,omitempty"`
	Categories    []DataCategory `json:"data_categories"`
	Elements      []string       `json:"data_elements"`
	Jurisdictions []string       `json:"jurisdictions"`
	RecordCount   int            `json:"record_count"`
	Encrypted     bool           `json:"encrypted"`
	LikelyHarm    bool           `json:"likely_harm"`

	DPARequired        bool       `json:"dpa_notification_required"`
	IndividualRequired bool       `json:"individual_notification_required"`
	DPADeadline        *time.Time `json:"dpa_deadline,omitempty"`
	IndividualDeadline *time.Time `json:"individual_deadline,omitempty"`

	ContainedAt  *time.Time `json:"contained_at,omitempty"`
	RemediatedAt *time.Time `json:"remediated_at,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	Remediation  []string   `json:"remediation_actions,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// RecipientType distinguishes who a notification goes to.
type RecipientType string

const (
	RecipientDPA        RecipientType = "dpa"
	RecipientIndividual RecipientType = "individual"
	RecipientMedia      RecipientType = "media"
)

// NotificationStatus tracks delivery of one notification.
type NotificationStatus string

const (
	NotificationPending      NotificationStatus = "pending"
	NotificationSent         NotificationStatus = "sent"
	NotificationDelivered    NotificationStatus = "delivered"
	NotificationFailed       NotificationStatus = "failed"
	NotificationAcknowledged NotificationStatus = "acknowledged"
)

// Notification is one append-only notification record. The deadline is
// preserved after sending for audit.
type Notification struct {
	ID           string             `json:"id"`
	IncidentID   string             `json:"incident_id"`
	Recipient    RecipientType      `json:"recipient_type"`
	Jurisdiction string             `json:"jurisdiction"`
	Status       NotificationStatus `json:"status"`
	Deadline     *time.Time         `json:"deadline,omitempty"`
	SentAt       *time.Time         `json:"sent_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// AlertLevel is the urgency tier of a deadline alert.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"  // (12h, 24h] remaining
	AlertUrgent   AlertLevel = "urgent"   // (6h, 12h]
	AlertCritical AlertLevel = "critical" // (1h, 6h]
	AlertImminent AlertLevel = "imminent" // (0h, 1h]
	AlertOverdue  AlertLevel = "overdue"  // <= 0h
)

// DeadlineAlert is one emitted alert.
type DeadlineAlert struct {
	IncidentID     string     `json:"incident_id"`
	Jurisdiction   string     `json:"jurisdiction"`
	Deadline       time.Time  `json:"deadline"`
	Level          AlertLevel `json:"level"`
	HoursRemaining float64    `json:"hours_remaining"`
}

// levelFor maps remaining time to an alert tier. More than 24h out means no
// alert yet.
func levelFor(remaining time.Duration) (AlertLevel, bool) {
	h := remaining.Hours()
	switch {
	case h > 24:
		return "", false
	case h > 12:
		return AlertWarning, true
	case h > 6:
		return AlertUrgent, true
	case h > 1:
		return AlertCritical, true
	case h > 0:
		return AlertImminent, true
	default:
		return AlertOverdue, true
	}
}
