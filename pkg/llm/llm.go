// Package llm provides the provider-agnostic chat client the Ghost Council
// deliberates through. Each invocation is a single system+user turn; the
// reply is expected to be raw text (usually JSON the caller validates).
package llm

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/forge-health/forge-core/pkg/fault"
)

// Client is one chat provider. Implementations share a reusable HTTP
// client and release it on Close.
type Client interface {
	// Chat sends one system+user turn and returns the assistant reply.
	Chat(ctx context.Context, system, user string) (string, error)
	// Name identifies the provider in logs.
	Name() string
	// Close releases the underlying connections.
	Close() error
}

// defaultTimeout bounds a single provider call.
const defaultTimeout = 30 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// Retrying wraps a client with exponential-backoff retries on transient
// failures.
type Retrying struct {
	inner       Client
	maxAttempts int
}

// WithRetries wraps client; maxAttempts below 1 defaults to 3.
func WithRetries(client Client, maxAttempts int) *Retrying {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &Retrying{inner: client, maxAttempts: maxAttempts}
}

func (r *Retrying) Chat(ctx context.Context, system, user string) (string, error) {
	var reply string
	err := fault.Retry(ctx, r.maxAttempts, func() error {
		var callErr error
		reply, callErr = r.inner.Chat(ctx, system, user)
		return callErr
	})
	return reply, err
}

func (r *Retrying) Name() string { return r.inner.Name() }
func (r *Retrying) Close() error { return r.inner.Close() }

// Config selects and configures a provider.
type Config struct {
	OpenAIKey      string
	AnthropicKey   string
	OllamaEndpoint string
	Model          string
	MaxRetries     int
}

// NewFromConfig picks the first configured provider in order OpenAI,
// Anthropic, Ollama. With none configured it returns a mock client and
// warns loudly: deliberation output is then canned, not advisory.
func NewFromConfig(cfg Config, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	var client Client
	switch {
	case cfg.OpenAIKey != "":
		client = NewOpenAI(cfg.OpenAIKey, cfg.Model)
	case cfg.AnthropicKey != "":
		client = NewAnthropic(cfg.AnthropicKey, cfg.Model)
	case cfg.OllamaEndpoint != "":
		client = NewOllama(cfg.OllamaEndpoint, cfg.Model)
	default:
		logger.Warn("NO LLM PROVIDER CONFIGURED - deliberation runs in MOCK MODE; opinions are canned and must not be relied on")
		client = NewMock(nil)
	}
	return WithRetries(client, cfg.MaxRetries)
}
