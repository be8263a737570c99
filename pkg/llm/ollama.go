package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/forge-health/forge-core/pkg/fault"
)

const defaultOllamaModel = "llama3.1"

// Ollama calls a local Ollama server's chat endpoint.
type Ollama struct {
	endpoint string
	model    string
	http     *http.Client
}

// NewOllama creates an Ollama client for the given endpoint, e.g.
// http://localhost:11434. Local models are slow; the timeout is generous.
func NewOllama(endpoint, model string) *Ollama {
	if model == "" {
		model = defaultOllamaModel
	}
	return &Ollama{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		http:     &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Ollama) Name() string { return "ollama" }

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaResponse struct {
	Message openAIMessage `json:"message"`
	Error   string        `json:"error,omitempty"`
}

func (c *Ollama) Chat(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(ollamaRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("encode ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fault.Transientf("ollama request: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fault.Transientf("read ollama response: %v", err)
	}
	if resp.StatusCode >= 500 {
		return "", fault.Transientf("ollama status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama status %d", resp.StatusCode)
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("ollama: %s", parsed.Error)
	}
	return parsed.Message.Content, nil
}

func (c *Ollama) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
