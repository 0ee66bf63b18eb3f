// Package llm adapts generative reasoning backends to a single capability:
// produce text (ideally a JSON value matching a schema) from a conversation,
// optionally requesting tool executions.
package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Backend is one generative reasoning service
type Backend interface {
	// Name returns the backend id (e.g., "openai", "anthropic")
	Name() string

	// SupportsTools reports whether the backend can host tool execution
	SupportsTools() bool

	// Generate issues a single generation call. Failures are *Error values.
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Request is a single generation call
type Request struct {
	Conversation Conversation     // Ordered turns
	Schema       *Schema          // Target response schema; nil for free text
	Model        string           // Model name
	Reasoning    string           // low, medium, high
	Timeout      time.Duration    // Per-call timeout
	Tools        []ToolDefinition // Tools the backend may request
	MaxTokens    int              // 0 = backend default
}

// Response is what a backend produced for one call
type Response struct {
	Text       string     // Raw text output
	ToolCalls  []ToolCall // Tool executions requested instead of (or before) an answer
	Model      string     // Model reported by the backend
	TokensUsed int        // Total tokens if reported
}

// Schema names a JSON schema for structured output
type Schema struct {
	Name       string
	Definition *jsonschema.Definition
	Strict     bool
}

// JSON returns the schema document as indented JSON text
func (s *Schema) JSON() string {
	if s == nil || s.Definition == nil {
		return "{}"
	}
	data, err := json.MarshalIndent(s.Definition, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ToolDefinition declares a callable the backend may request
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"` // JSON schema of the argument object
}

// ToolCall is a backend request to execute a tool
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON object text
}

// Config holds connection settings for one backend
type Config struct {
	Provider  string // openai, anthropic, google, ollama
	APIKey    string
	BaseURL   string
	MaxTokens int
}
