// Package agents implements the diagnostic agent kernel: a typed message
// bus, the specialist agents (phenotype, genetic, differential), and the
// coordinator that gathers their analyses.
package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/forge-health/forge-core/pkg/clock"
)

// MessageType classifies bus traffic.
type MessageType string

const (
	MsgRequest    MessageType = "request"
	MsgResponse   MessageType = "response"
	MsgAnalysis   MessageType = "analysis"
	MsgHypothesis MessageType = "hypothesis"
	MsgEvidence   MessageType = "evidence"
	MsgQuestion   MessageType = "question"
	MsgConsensus  MessageType = "consensus"
	MsgError      MessageType = "error"
)

// Message is one bus envelope. An empty Recipient means broadcast.
// Messages form threads keyed by the first request's id.
type Message struct {
	ID        string         `json:"id"`
	Sender    string         `json:"sender"`
	Recipient string         `json:"recipient,omitempty"`
	Type      MessageType    `json:"type"`
	Content   string         `json:"content"`
	Context   map[string]any `json:"context,omitempty"`
	InReplyTo string         `json:"in_reply_to,omitempty"`
	ThreadID  string         `json:"thread_id,omitempty"`
	Priority  int            `json:"priority"`
	CreatedAt time.Time      `json:"created_at"`
}

// Reply builds a response threaded under m. A new thread starts at the
// first request, so the thread id is m's thread or m itself.
func (m *Message) Reply(id, sender string, typ MessageType, content string, now time.Time) *Message {
	thread := m.ThreadID
	if thread == "" {
		thread = m.ID
	}
	return &Message{
		ID:        id,
		Sender:    sender,
		Recipient: m.Sender,
		Type:      typ,
		Content:   content,
		InReplyTo: m.ID,
		ThreadID:  thread,
		Priority:  m.Priority,
		CreatedAt: now,
	}
}

// Bus routes messages between registered agents and records threads.
// Agent failures come back as type=error messages, never as panics.
type Bus struct {
	mu      sync.RWMutex
	agents  map[string]Agent
	threads map[string][]*Message
	clock   clock.Clock
	ids     clock.IDSource
}

// NewBus creates an empty bus.
func NewBus(clk clock.Clock, ids clock.IDSource) *Bus {
	if clk == nil {
		clk = clock.Wall
	}
	if ids == nil {
		ids = clock.UUIDSource{}
	}
	return &Bus{
		agents:  make(map[string]Agent),
		threads: make(map[string][]*Message),
		clock:   clk,
		ids:     ids,
	}
}

// Register adds an agent under its role. Later registrations replace
// earlier ones.
func (b *Bus) Register(a Agent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.agents[a.Role()] = a
}

// Send delivers m to its recipient (or to every other agent when
// broadcast) and returns the replies. A recipient that fails produces a
// type=error reply instead of an error return.
func (b *Bus) Send(ctx context.Context, m *Message) []*Message {
	if m.ID == "" {
		m.ID = b.ids.NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = b.clock.Now()
	}
	if m.ThreadID == "" {
		m.ThreadID = m.ID
	}
	b.record(m)

	b.mu.RLock()
	var targets []Agent
	if m.Recipient != "" {
		if a, ok := b.agents[m.Recipient]; ok {
			targets = append(targets, a)
		}
	} else {
		for role, a := range b.agents {
			if role != m.Sender {
				targets = append(targets, a)
			}
		}
	}
	b.mu.RUnlock()

	var replies []*Message
	for _, a := range targets {
		reply := b.deliver(ctx, a, m)
		if reply != nil {
			if reply.ID == "" {
				reply.ID = b.ids.NewID()
			}
			b.record(reply)
			replies = append(replies, reply)
		}
	}
	return replies
}

// deliver invokes one agent, converting panics into error messages.
func (b *Bus) deliver(ctx context.Context, a Agent, m *Message) (reply *Message) {
	defer func() {
		if r := recover(); r != nil {
			reply = m.Reply(b.ids.NewID(), a.Role(), MsgError, fmt.Sprintf("agent panic: %v", r), b.clock.Now())
		}
	}()
	out, err := a.ReceiveMessage(ctx, m)
	if err != nil {
		return m.Reply(b.ids.NewID(), a.Role(), MsgError, err.Error(), b.clock.Now())
	}
	return out
}

func (b *Bus) record(m *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.threads[m.ThreadID] = append(b.threads[m.ThreadID], m)
}

// Thread returns the recorded messages for a thread in arrival order.
func (b *Bus) Thread(id string) []*Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	msgs := b.threads[id]
	out := make([]*Message, len(msgs))
	copy(out, msgs)
	return out
}
