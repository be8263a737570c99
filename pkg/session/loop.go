package session

import (
	"context"

	"github.com/forge-health/forge-core/pkg/diagnosis"
	"github.com/forge-health/forge-core/pkg/dx"
	"github.com/forge-health/forge-core/pkg/fault"
)

// StartDiagnosis runs intake under the session lock and, with
// auto-advance on, drives the loop to its next pause point.
func (c *Controller) StartDiagnosis(ctx context.Context, id string, in diagnosis.Intake) error {
	h, err := c.handleFor(id)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := c.engine.ProcessIntake(ctx, h.session, in); err != nil {
		return err
	}
	c.emit(h, EventIntakeComplete, map[string]any{
		"phenotypes": len(h.session.Patient.Phenotypes),
		"variants":   len(h.session.Patient.Variants),
	})
	if c.cfg.AutoAdvance {
		c.runLoop(ctx, h)
	}
	return nil
}

// runLoop advances the session state machine until it pauses, completes,
// expires, or hits the iteration cap. The caller holds h.mu.
func (c *Controller) runLoop(ctx context.Context, h *handle) {
	s := h.session
	for {
		if ctx.Err() != nil {
			return
		}
		if c.clock.Now().After(s.ExpiresAt) {
			c.expireLocked(h)
			return
		}

		switch s.State {
		case dx.StateAnalyzing:
			if err := c.engine.GenerateHypotheses(ctx, s); err != nil {
				c.fail(h, err)
				return
			}
			c.emit(h, EventHypothesesGenerated, map[string]any{"count": len(s.Hypotheses)})
			if err := c.engine.ScoreHypotheses(ctx, s); err != nil {
				c.fail(h, err)
				return
			}
			c.emit(h, EventScoringComplete, scoringData(s))

		case dx.StateQuestioning:
			if c.earlyTerminate(s) {
				c.complete(h)
				return
			}
			if s.Iterations >= s.MaxIterations {
				c.complete(h)
				return
			}
			if err := c.engine.GenerateQuestions(ctx, s); err != nil {
				c.fail(h, err)
				return
			}
			if len(s.PendingQuestions) == 0 {
				c.complete(h)
				return
			}
			c.emit(h, EventQuestionsReady, map[string]any{"questions": len(s.PendingQuestions)})
			if c.cfg.PauseForQuestions {
				s.State = dx.StatePaused
				c.emit(h, EventSessionPaused, nil)
			}
			return

		case dx.StateRefining:
			if err := c.engine.ScoreHypotheses(ctx, s); err != nil {
				c.fail(h, err)
				return
			}
			c.emit(h, EventRefinementComplete, scoringData(s))
			if s.State == dx.StateComplete || c.earlyTerminate(s) {
				c.complete(h)
				return
			}
			s.State = dx.StateQuestioning

		case dx.StateComplete:
			c.complete(h)
			return

		case dx.StatePaused, dx.StateExpired:
			return

		default:
			return
		}
	}
}

func scoringData(s *dx.Session) map[string]any {
	data := map[string]any{"hypotheses": len(s.Hypotheses), "top": len(s.TopHypotheses)}
	if len(s.TopHypotheses) > 0 {
		data["top_score"] = s.TopHypotheses[0].CombinedScore
	}
	return data
}

func (c *Controller) earlyTerminate(s *dx.Session) bool {
	return len(s.TopHypotheses) > 0 && s.TopHypotheses[0].CombinedScore >= c.cfg.EarlyTermination
}

// complete finalizes and emits session_complete with the primary
// diagnosis in the payload. The caller holds h.mu.
func (c *Controller) complete(h *handle) {
	s := h.session
	s.State = dx.StateComplete
	result := c.engine.FinalizeSession(context.Background(), s)
	data := map[string]any{"iterations": s.Iterations}
	if result.Primary != nil {
		data["primary_diagnosis"] = result.Primary.DiseaseName
		data["combined_score"] = result.Primary.CombinedScore
	}
	c.emit(h, EventSessionComplete, data)
}

func (c *Controller) expireLocked(h *handle) {
	h.session.State = dx.StateExpired
	c.emit(h, EventSessionExpired, nil)
}

// fail degrades to partial results: the error is surfaced as an event
// and the session stays alive.
func (c *Controller) fail(h *handle, err error) {
	c.logger.Error("session loop error", "session", h.session.ID, "error", err)
	c.emit(h, EventError, map[string]any{"detail": err.Error()})
}

// AnswerQuestions replays answers under the session lock. A paused
// session resumes into refining and the loop continues.
func (c *Controller) AnswerQuestions(ctx context.Context, id string, answers map[string]string) error {
	h, err := c.handleFor(id)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.session
	if s.State.Terminal() {
		return fault.Conflictf("session %s is %s", id, s.State)
	}
	if s.State == dx.StatePaused {
		s.State = dx.StateQuestioning
		c.emit(h, EventSessionResumed, nil)
	}
	for questionID, answer := range answers {
		if err := c.engine.AnswerQuestion(ctx, s, questionID, answer); err != nil {
			c.fail(h, err)
			continue
		}
	}
	c.emit(h, EventRefinementComplete, scoringData(s))
	if c.cfg.AutoAdvance {
		if s.State == dx.StateComplete {
			c.complete(h)
		} else {
			s.State = dx.StateQuestioning
			c.runLoop(ctx, h)
		}
	}
	return nil
}

// SkipQuestions clears pending questions and completes the session with
// the evidence on hand.
func (c *Controller) SkipQuestions(id string) error {
	h, err := c.handleFor(id)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session.State.Terminal() {
		return fault.Conflictf("session %s is %s", id, h.session.State)
	}
	h.session.PendingQuestions = nil
	c.complete(h)
	return nil
}

// PauseSession flips a running session to paused.
func (c *Controller) PauseSession(id string) error {
	h, err := c.handleFor(id)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.session
	if s.State.Terminal() || s.State == dx.StatePaused {
		return fault.Conflictf("session %s is %s", id, s.State)
	}
	s.State = dx.StatePaused
	s.LastActivity = c.clock.Now()
	c.emit(h, EventSessionPaused, nil)
	return nil
}

// ResumeSession routes a paused session to questioning when answers are
// outstanding, else to refining, and drives the loop.
func (c *Controller) ResumeSession(ctx context.Context, id string) error {
	h, err := c.handleFor(id)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.session
	if s.State != dx.StatePaused {
		return fault.Conflictf("session %s is %s, expected paused", id, s.State)
	}
	if len(s.PendingQuestions) > 0 {
		s.State = dx.StateQuestioning
	} else {
		s.State = dx.StateRefining
	}
	s.LastActivity = c.clock.Now()
	c.emit(h, EventSessionResumed, nil)
	if c.cfg.AutoAdvance && s.State == dx.StateRefining {
		c.runLoop(ctx, h)
	}
	return nil
}

// GetResult finalizes and returns the session's current diagnosis.
func (c *Controller) GetResult(ctx context.Context, id string) (*dx.Result, error) {
	h, err := c.handleFor(id)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return c.engine.FinalizeSession(ctx, h.session), nil
}
