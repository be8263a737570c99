package llm

import "context"

// mockReply is a well-formed tri-perspective deliberation so downstream
// validation passes in mock mode.
const mockReply = `{
  "optimistic": {"assessment": "Mock analysis. No provider is configured, so this opinion is canned.", "key_points": ["mock mode"], "confidence": 0.5},
  "balanced": {"assessment": "Mock analysis. No provider is configured, so this opinion is canned.", "key_points": ["mock mode"], "confidence": 0.5},
  "critical": {"assessment": "Mock analysis. No provider is configured, so this opinion is canned.", "key_points": ["mock mode"], "confidence": 0.5},
  "synthesis": {"vote": "ABSTAIN", "reasoning": "Mock mode cannot evaluate the proposal.", "confidence": 0.5, "top_benefits": [], "top_concerns": ["no LLM provider configured"]}
}`

// Mock is the in-process client used when no provider is configured and
// in tests. Reply, when set, computes the response per call.
type Mock struct {
	Reply func(system, user string) (string, error)
	Calls int
}

// NewMock creates a mock client. A nil reply function returns a canned
// ABSTAIN deliberation.
func NewMock(reply func(system, user string) (string, error)) *Mock {
	return &Mock{Reply: reply}
}

func (c *Mock) Chat(ctx context.Context, system, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.Calls++
	if c.Reply != nil {
		return c.Reply(system, user)
	}
	return mockReply, nil
}

func (c *Mock) Name() string { return "mock" }
func (c *Mock) Close() error { return nil }
