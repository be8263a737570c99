package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-health/forge-core/pkg/fault"
	"github.com/forge-health/forge-core/pkg/llm"
)

func TestOpenAI_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		msgs := req["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
		assert.Equal(t, "user", msgs[1].(map[string]any)["role"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	client := llm.NewOpenAI("test-key", "gpt-test").WithBaseURL(srv.URL)
	defer client.Close()

	reply, err := client.Chat(context.Background(), "be brief", "say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)
}

func TestOpenAI_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := llm.NewOpenAI("test-key", "").WithBaseURL(srv.URL)
	defer client.Close()

	_, err := client.Chat(context.Background(), "s", "u")
	assert.True(t, fault.IsTransient(err))
}

func TestOpenAI_AuthErrorIsNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := llm.NewOpenAI("bad-key", "").WithBaseURL(srv.URL)
	defer client.Close()

	_, err := client.Chat(context.Background(), "s", "u")
	require.Error(t, err)
	assert.False(t, fault.IsTransient(err))
}

func TestAnthropic_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "system prompt", req["system"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"reply text"}]}`))
	}))
	defer srv.Close()

	client := llm.NewAnthropic("test-key", "").WithBaseURL(srv.URL)
	defer client.Close()

	reply, err := client.Chat(context.Background(), "system prompt", "user turn")
	require.NoError(t, err)
	assert.Equal(t, "reply text", reply)
}

func TestRetrying_RecoversFromTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	client := llm.WithRetries(llm.NewOpenAI("k", "").WithBaseURL(srv.URL), 3)
	defer client.Close()

	reply, err := client.Chat(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNewFromConfig_FallsBackToMock(t *testing.T) {
	client := llm.NewFromConfig(llm.Config{}, nil)
	defer client.Close()

	assert.Equal(t, "mock", client.Name())

	reply, err := client.Chat(context.Background(), "s", "u")
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(reply), &parsed))
	assert.Contains(t, parsed, "synthesis")
}

func TestMock_CustomReply(t *testing.T) {
	mock := llm.NewMock(func(system, user string) (string, error) {
		return system + "|" + user, nil
	})
	reply, err := mock.Chat(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "a|b", reply)
	assert.Equal(t, 1, mock.Calls)
}
