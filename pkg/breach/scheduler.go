package breach

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/forge-health/forge-core/pkg/clock"
)

// DefaultSchedulerInterval is how often deadlines are re-checked.
const DefaultSchedulerInterval = 15 * time.Minute

// AlertFunc receives emitted deadline alerts.
type AlertFunc func(DeadlineAlert)

// Scheduler periodically scans open incidents and emits tiered alerts as
// their DPA deadlines approach. Each (incident, level) pair fires at most
// once, no matter how many ticks observe it.
type Scheduler struct {
	service  *Service
	clock    clock.Clock
	interval time.Duration
	alert    AlertFunc
	logger   *slog.Logger

	mu      sync.Mutex
	emitted map[string]struct{} // "{incident}_{level}"
}

// NewScheduler creates a deadline scheduler.
func NewScheduler(service *Service, c clock.Clock, alert AlertFunc, logger *slog.Logger) *Scheduler {
	if c == nil {
		c = clock.Wall
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		service:  service,
		clock:    c,
		interval: DefaultSchedulerInterval,
		alert:    alert,
		logger:   logger,
		emitted:  map[string]struct{}{},
	}
}

// SetInterval overrides the tick interval.
func (s *Scheduler) SetInterval(d time.Duration) { s.interval = d }

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			alerts, err := s.Tick(ctx)
			if err != nil {
				s.logger.Error("deadline scheduler tick failed", "error", err)
				continue
			}
			for _, a := range alerts {
				s.logger.Warn("breach notification deadline alert",
					"incident_id", a.IncidentID,
					"jurisdiction", a.Jurisdiction,
					"level", a.Level,
					"hours_remaining", a.HoursRemaining)
			}
		}
	}
}

// Tick scans once and returns the newly emitted alerts.
func (s *Scheduler) Tick(ctx context.Context) ([]DeadlineAlert, error) {
	incidents, err := s.service.store.ListBreaches(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	var out []DeadlineAlert
	for _, inc := range incidents {
		if inc.Status.Terminal() || !inc.DPARequired || inc.DPADeadline == nil {
			continue
		}
		notified, err := s.service.DPANotified(ctx, inc.ID)
		if err != nil {
			return out, err
		}
		if notified {
			s.ClearIncident(inc.ID)
			continue
		}

		remaining := inc.DPADeadline.Sub(now)
		level, ok := levelFor(remaining)
		if !ok {
			continue
		}
		key := fmt.Sprintf("%s_%s", inc.ID, level)
		s.mu.Lock()
		_, seen := s.emitted[key]
		if !seen {
			s.emitted[key] = struct{}{}
		}
		s.mu.Unlock()
		if seen {
			continue
		}

		a := DeadlineAlert{
			IncidentID:     inc.ID,
			Jurisdiction:   firstJurisdiction(inc),
			Deadline:       *inc.DPADeadline,
			Level:          level,
			HoursRemaining: remaining.Hours(),
		}
		if s.alert != nil {
			s.alert(a)
		}
		out = append(out, a)
	}
	return out, nil
}

// ClearIncident erases the incident's idempotency entries, e.g. after its
// notifications are sent or the incident resolves.
func (s *Scheduler) ClearIncident(incidentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := incidentID + "_"
	for key := range s.emitted {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(s.emitted, key)
		}
	}
}

func firstJurisdiction(inc *Incident) string {
	if len(inc.Jurisdictions) > 0 {
		return inc.Jurisdictions[0]
	}
	return ""
}
