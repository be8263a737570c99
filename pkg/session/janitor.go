package session

import (
	"context"
	"time"

	"github.com/forge-health/forge-core/pkg/dx"
)

// Reap windows for terminal sessions.
const (
	expiredRetention   = time.Hour
	completedRetention = 2 * time.Hour
)

// Run drives the janitor until ctx is cancelled or Stop is called.
func (c *Controller) Run(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.JanitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopped:
				return
			case <-ticker.C:
				c.Tick()
			}
		}
	}()
}

// Tick performs one janitor pass over a snapshot of the sessions:
// expire sessions past their deadline, idle-expire stale ones, and
// delete terminal sessions past their retention window.
func (c *Controller) Tick() {
	now := c.clock.Now()

	c.mu.RLock()
	snapshot := make(map[string]*handle, len(c.sessions))
	for id, h := range c.sessions {
		snapshot[id] = h
	}
	c.mu.RUnlock()

	var reap []string
	for id, h := range snapshot {
		h.mu.Lock()
		s := h.session
		switch {
		case !s.State.Terminal() && now.After(s.ExpiresAt):
			c.expireLocked(h)
		case !s.State.Terminal() && now.Sub(s.LastActivity) > c.cfg.IdleTimeout:
			c.expireLocked(h)
		case s.State == dx.StateExpired && !h.terminalAt.IsZero() && now.Sub(h.terminalAt) > expiredRetention:
			reap = append(reap, id)
		case s.State == dx.StateComplete && !h.terminalAt.IsZero() && now.Sub(h.terminalAt) > completedRetention:
			reap = append(reap, id)
		}
		h.mu.Unlock()
	}

	for _, id := range reap {
		if c.DeleteSession(id) {
			c.logger.Info("session reaped", "session", id)
		}
	}
}
