package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicBackend_Generate_Success(t *testing.T) {
	var got anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Expected path /v1/messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Expected x-api-key header test-key, got %s", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("Expected anthropic-version header 2023-06-01, got %s", r.Header.Get("anthropic-version"))
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"model": "claude-opus-4",
			"content": [
				{"type": "thinking", "thinking": "..."},
				{"type": "text", "text": "{\"correctness\": true, "},
				{"type": "text", "text": "\"feedback\": \"\"}"}
			],
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	backend, err := NewAnthropicBackend(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := backend.Generate(context.Background(), Request{
		Conversation: NewConversation(System("judge"), User("assess")),
		Schema:       &Schema{Name: "verdict"},
		Model:        "claude-opus-4",
		Reasoning:    "medium",
	})
	require.NoError(t, err)

	assert.Equal(t, `{"correctness": true, "feedback": ""}`, resp.Text)
	assert.Equal(t, 15, resp.TokensUsed)
	assert.Contains(t, got.System, "judge")
	assert.Contains(t, got.System, "JSON schema")
	require.NotNil(t, got.Thinking)
	assert.Equal(t, 8192, got.Thinking.BudgetTokens)
	assert.Equal(t, 16000+8192, got.MaxTokens)
}

func TestAnthropicBackend_Generate_ToolUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		if len(req.Tools) != 1 || req.Thinking != nil {
			t.Errorf("expected one tool and no thinking, got %+v", req)
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"tool_use","id":"tu_1","name":"run_python","input":{"code":"print(2)"}}]}`))
	}))
	defer server.Close()

	backend, err := NewAnthropicBackend(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := backend.Generate(context.Background(), Request{
		Conversation: NewConversation(User("predict")),
		Model:        "claude-opus-4",
		Reasoning:    "high",
		Tools:        []ToolDefinition{{Name: "run_python", Parameters: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, ToolCall{ID: "tu_1", Name: "run_python", Arguments: `{"code":"print(2)"}`}, resp.ToolCalls[0])
}

func TestToAnthropicMessages_MergesToolResults(t *testing.T) {
	c1 := ToolCall{ID: "a", Name: "run_python", Arguments: `{"code":"1"}`}
	c2 := ToolCall{ID: "b", Name: "run_python", Arguments: `not json`}
	conv := NewConversation(
		System("s1"),
		User("u1"),
		Assistant("thinking aloud", c1, c2),
		ToolResult(c1, `{"stdout":"1"}`),
		ToolResult(c2, `{"error":"bad"}`),
		System("s2"),
	)

	system, msgs := toAnthropicMessages(conv)

	assert.Equal(t, "s1\n\ns2", system)
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
	require.Len(t, msgs[1].Content, 3)
	assert.Equal(t, json.RawMessage("{}"), msgs[1].Content[2].Input, "invalid arguments are replaced")
	assert.Equal(t, "user", msgs[2].Role)
	require.Len(t, msgs[2].Content, 2)
	assert.Equal(t, "tool_result", msgs[2].Content[0].Type)
	assert.Equal(t, "b", msgs[2].Content[1].ToolUseID)
}

func TestAnthropicBackend_Generate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   Kind
	}{
		{"overloaded", 529, KindRateLimited},
		{"rate limited", http.StatusTooManyRequests, KindRateLimited},
		{"server", http.StatusServiceUnavailable, KindServer},
		{"bad request", http.StatusBadRequest, KindFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"type":"error","error":{"type":"x","message":"nope"}}`))
			}))
			defer server.Close()

			backend, err := NewAnthropicBackend(Config{APIKey: "k", BaseURL: server.URL})
			require.NoError(t, err)

			_, err = backend.Generate(context.Background(), Request{Conversation: NewConversation(User("hi"))})
			var e *Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.kind, e.Kind)
			assert.Contains(t, e.Error(), "nope")
		})
	}
}

func TestAnthropicBackend_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	backend, err := NewAnthropicBackend(Config{APIKey: "k", BaseURL: url})
	require.NoError(t, err)

	_, err = backend.Generate(context.Background(), Request{Conversation: NewConversation(User("hi"))})
	require.Error(t, err)
	assert.Equal(t, KindConnection, KindOf(err))
}
