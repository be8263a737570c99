// Package session implements the diagnosis session controller: per-session
// locking, the autonomous diagnosis loop, event streaming to bounded
// subscriber buffers, and the janitor that reaps expired sessions.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/forge-health/forge-core/pkg/clock"
	"github.com/forge-health/forge-core/pkg/diagnosis"
	"github.com/forge-health/forge-core/pkg/dx"
	"github.com/forge-health/forge-core/pkg/fault"
)

// EventType names the session lifecycle events.
type EventType string

const (
	EventIntakeComplete      EventType = "intake_complete"
	EventHypothesesGenerated EventType = "hypotheses_generated"
	EventScoringComplete     EventType = "scoring_complete"
	EventQuestionsReady      EventType = "questions_ready"
	EventSessionPaused       EventType = "session_paused"
	EventSessionResumed      EventType = "session_resumed"
	EventRefinementComplete  EventType = "refinement_complete"
	EventSessionComplete     EventType = "session_complete"
	EventSessionExpired      EventType = "session_expired"
	EventError               EventType = "error"
)

// Event is one streamed session event.
type Event struct {
	Event     EventType      `json:"event"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// terminal reports whether the event ends a subscription.
func (e Event) terminal() bool {
	return e.Event == EventSessionComplete || e.Event == EventSessionExpired
}

// Callback observes events out-of-band. Callbacks must not block; they
// run on their own goroutine and panics are swallowed into logs.
type Callback func(Event)

// Config tunes the controller. Zero values use defaults.
type Config struct {
	SessionTimeout    time.Duration // default 1h
	IdleTimeout       time.Duration // default 30m
	JanitorInterval   time.Duration // default 60s
	EarlyTermination  float64       // default 0.9
	SubscriberBuffer  int           // default 64
	AutoAdvance       bool
	PauseForQuestions bool
}

func (c Config) withDefaults() Config {
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = time.Hour
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = 60 * time.Second
	}
	if c.EarlyTermination <= 0 {
		c.EarlyTermination = 0.9
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 64
	}
	return c
}

// Controller owns all live sessions.
type Controller struct {
	engine *diagnosis.Engine
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*handle

	stopOnce sync.Once
	stopped  chan struct{}
	wg       sync.WaitGroup
}

// handle is one session's controller-side state. All session mutation
// happens while holding mu.
type handle struct {
	mu          sync.Mutex
	session     *dx.Session
	callback    Callback
	subscribers []*subscriber
	terminalAt  time.Time // when the session reached a terminal state
}

type subscriber struct {
	ch     chan Event
	once   sync.Once
	closed chan struct{}
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.closed)
		close(s.ch)
	})
}

// NewController creates a controller over the engine.
func NewController(engine *diagnosis.Engine, cfg Config, clk clock.Clock, logger *slog.Logger) *Controller {
	if clk == nil {
		clk = clock.Wall
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		engine:   engine,
		cfg:      cfg.withDefaults(),
		clock:    clk,
		logger:   logger,
		sessions: make(map[string]*handle),
		stopped:  make(chan struct{}),
	}
}

// CreateSession mints a session and registers an optional event callback.
func (c *Controller) CreateSession(callback Callback) *dx.Session {
	s := c.engine.CreateSession(c.cfg.SessionTimeout)
	h := &handle{session: s, callback: callback}
	c.mu.Lock()
	c.sessions[s.ID] = h
	c.mu.Unlock()
	return s
}

func (c *Controller) handleFor(id string) (*handle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.sessions[id]
	if !ok {
		return nil, fault.NotFoundf("session %s", id)
	}
	return h, nil
}

// Session returns a snapshot pointer for inspection. Callers must not
// mutate it.
func (c *Controller) Session(id string) (*dx.Session, error) {
	h, err := c.handleFor(id)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session, nil
}

// StreamEvents subscribes to a session's events. The returned channel
// closes on a terminal event, on unsubscribe, or when the session is
// deleted. Events are delivered in emission order; a full buffer drops
// the newest event for that subscriber.
func (c *Controller) StreamEvents(id string) (<-chan Event, func(), error) {
	h, err := c.handleFor(id)
	if err != nil {
		return nil, nil, err
	}
	sub := &subscriber{
		ch:     make(chan Event, c.cfg.SubscriberBuffer),
		closed: make(chan struct{}),
	}
	h.mu.Lock()
	h.subscribers = append(h.subscribers, sub)
	h.mu.Unlock()
	return sub.ch, sub.close, nil
}

// emit delivers an event to the callback and every subscriber. The
// caller holds h.mu.
func (c *Controller) emit(h *handle, typ EventType, data map[string]any) {
	evt := Event{
		Event:     typ,
		SessionID: h.session.ID,
		Timestamp: c.clock.Now(),
		Data:      data,
	}
	if h.callback != nil {
		cb := h.callback
		go func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("session callback panic", "session", evt.SessionID, "event", string(evt.Event))
				}
			}()
			cb(evt)
		}()
	}
	for _, sub := range h.subscribers {
		select {
		case <-sub.closed:
			continue
		default:
		}
		select {
		case sub.ch <- evt:
		default:
			c.logger.Warn("subscriber buffer full, event dropped", "session", evt.SessionID, "event", string(evt.Event))
		}
		if evt.terminal() {
			sub.close()
		}
	}
	if evt.terminal() {
		h.subscribers = nil
		h.terminalAt = evt.Timestamp
	}
}

// DeleteSession cancels the session's subscriptions and removes it.
// Returns false when the session does not exist, so deleting twice
// reports false the second time.
func (c *Controller) DeleteSession(id string) bool {
	c.mu.Lock()
	h, ok := c.sessions[id]
	if ok {
		delete(c.sessions, id)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	h.mu.Lock()
	for _, sub := range h.subscribers {
		sub.close()
	}
	h.subscribers = nil
	h.mu.Unlock()
	return true
}

// Stop halts the janitor and waits for background work.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stopped) })
	c.wg.Wait()
}
