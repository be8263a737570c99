package agents

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/forge-health/forge-core/pkg/dx"
)

const (
	// DefaultAgentTimeout bounds one specialist's analysis.
	DefaultAgentTimeout = 30 * time.Second
	// DefaultTotalTimeout bounds the whole gather.
	DefaultTotalTimeout = 120 * time.Second
)

// AgentResult is one specialist's gathered outcome. A failed agent
// carries its error here instead of cancelling its peers.
type AgentResult struct {
	Role     string
	Analysis *Analysis
	Err      error
}

// Coordinator fans patient analysis out to the registered specialists.
type Coordinator struct {
	agents       []Agent
	bus          *Bus
	parallelism  int64
	agentTimeout time.Duration
	totalTimeout time.Duration
	logger       *slog.Logger
}

// CoordinatorConfig tunes the gather. Zero values use defaults.
type CoordinatorConfig struct {
	Parallelism  int
	AgentTimeout time.Duration
	TotalTimeout time.Duration
	Logger       *slog.Logger
}

// NewCoordinator creates a coordinator over the agents, registering each
// on the bus.
func NewCoordinator(bus *Bus, agents []Agent, cfg CoordinatorConfig) *Coordinator {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = DefaultAgentTimeout
	}
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = DefaultTotalTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	for _, a := range agents {
		bus.Register(a)
	}
	return &Coordinator{
		agents:       agents,
		bus:          bus,
		parallelism:  int64(cfg.Parallelism),
		agentTimeout: cfg.AgentTimeout,
		totalTimeout: cfg.TotalTimeout,
		logger:       cfg.Logger,
	}
}

// Analyze gathers every specialist's analysis with bounded parallelism.
// One agent's failure never cancels the others; results arrive in agent
// registration order.
func (c *Coordinator) Analyze(ctx context.Context, patient *dx.PatientProfile) []AgentResult {
	ctx, cancel := context.WithTimeout(ctx, c.totalTimeout)
	defer cancel()

	sem := semaphore.NewWeighted(c.parallelism)
	results := make([]AgentResult, len(c.agents))
	var wg sync.WaitGroup
	for i, a := range c.agents {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = AgentResult{Role: a.Role(), Err: err}
			continue
		}
		wg.Add(1)
		go func(i int, a Agent) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = c.runOne(ctx, a, patient)
		}(i, a)
	}
	wg.Wait()
	return results
}

// runOne calls one agent with its own timeout, converting panics into
// errors.
func (c *Coordinator) runOne(ctx context.Context, a Agent, patient *dx.PatientProfile) (result AgentResult) {
	result.Role = a.Role()
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("agent %s panic: %v", a.Role(), r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, c.agentTimeout)
	defer cancel()
	result.Analysis, result.Err = a.Analyze(ctx, patient)
	return result
}

// Broadcast fans an analysis message out to the other agents without
// waiting; failures are logged, never propagated.
func (c *Coordinator) Broadcast(ctx context.Context, sender string, analysis *Analysis) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("broadcast panic", "sender", sender, "panic", fmt.Sprint(r))
			}
		}()
		replies := c.bus.Send(ctx, &Message{
			Sender:  sender,
			Type:    MsgAnalysis,
			Content: analysis.Summary,
		})
		for _, r := range replies {
			if r.Type == MsgError {
				c.logger.Warn("broadcast recipient failed", "sender", sender, "recipient", r.Sender, "error", r.Content)
			}
		}
	}()
}
