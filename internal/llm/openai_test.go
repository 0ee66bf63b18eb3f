package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIBackend_Generate_ToolCalls(t *testing.T) {
	var got openai.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		resp := openai.ChatCompletionResponse{
			ID:    "chatcmpl-123",
			Model: "gpt-5",
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{
					Role: openai.ChatMessageRoleAssistant,
					ToolCalls: []openai.ToolCall{{
						ID:   "call_1",
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      "run_python",
							Arguments: `{"code":"print(1)"}`,
						},
					}},
				},
				FinishReason: openai.FinishReasonToolCalls,
			}},
			Usage: openai.Usage{TotalTokens: 42},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	backend, err := NewOpenAIBackend(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	schema := &Schema{Name: "proof", Definition: &jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: map[string]jsonschema.Definition{"proof_markdown": {Type: jsonschema.String}},
		Required:   []string{"proof_markdown"},
	}}
	conv := NewConversation(System("You are a prover."), User("Prove it."))
	resp, err := backend.Generate(context.Background(), Request{
		Conversation: conv,
		Schema:       schema,
		Model:        "gpt-5",
		Reasoning:    "high",
		Timeout:      5 * time.Second,
		Tools:        []ToolDefinition{{Name: "run_python", Description: "run code", Parameters: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "run_python", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"code":"print(1)"}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, 42, resp.TokensUsed)

	assert.Equal(t, "high", got.ReasoningEffort)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONSchema, got.ResponseFormat.Type)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "run_python", got.Tools[0].Function.Name)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
}

func TestOpenAIBackend_Generate_ReplaysToolTurns(t *testing.T) {
	var got openai.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: `{"ok":true}`}}},
		})
	}))
	defer server.Close()

	backend, err := NewOllamaBackend(Config{BaseURL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, "ollama", backend.Name())

	call := ToolCall{ID: "c1", Name: "validate_markdown", Arguments: `{"markdown":"x"}`}
	conv := NewConversation(User("write"), Assistant("", call), ToolResult(call, `{"ok":true,"errors":[]}`))

	resp, err := backend.Generate(context.Background(), Request{Conversation: conv, Model: "gpt-oss:20b", Reasoning: "high"})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Text)

	require.Len(t, got.Messages, 3)
	assert.Empty(t, got.ReasoningEffort, "reasoning effort is only sent to OpenAI itself")
	require.Len(t, got.Messages[1].ToolCalls, 1)
	assert.Equal(t, "c1", got.Messages[1].ToolCalls[0].ID)
	assert.Equal(t, openai.ChatMessageRoleTool, got.Messages[2].Role)
	assert.Equal(t, "c1", got.Messages[2].ToolCallID)
}

func TestOpenAIBackend_Generate_ClassifiesStatus(t *testing.T) {
	tests := []struct {
		status int
		kind   Kind
	}{
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusInternalServerError, KindServer},
		{http.StatusBadGateway, KindServer},
		{http.StatusBadRequest, KindFatal},
		{http.StatusUnauthorized, KindFatal},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"test"}}`))
			}))
			defer server.Close()

			backend, err := NewOpenAIBackend(Config{APIKey: "k", BaseURL: server.URL})
			require.NoError(t, err)

			_, err = backend.Generate(context.Background(), Request{Conversation: NewConversation(User("hi")), Model: "gpt-5"})
			require.Error(t, err)

			var e *Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.status, e.StatusCode)
		})
	}
}

func TestOpenAIBackend_Generate_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	backend, err := NewOpenAIBackend(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = backend.Generate(context.Background(), Request{
		Conversation: NewConversation(User("hi")),
		Model:        "gpt-5",
		Timeout:      50 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.True(t, IsRetryable(err))
}

func TestNewOpenAIBackend_RequiresKey(t *testing.T) {
	_, err := NewOpenAIBackend(Config{})
	assert.Error(t, err)
}
