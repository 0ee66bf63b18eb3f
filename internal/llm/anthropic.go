package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// AnthropicBackend implements Backend over the Anthropic Messages API
type AnthropicBackend struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxTokens  int
}

// Anthropic API structures
type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
	Thinking  *anthropicThinking `json:"thinking,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"input_schema"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicResponse struct {
	ID         string           `json:"id"`
	Model      string           `json:"model"`
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// thinking budgets per reasoning level
var anthropicBudgets = map[string]int{
	"low":    2048,
	"medium": 8192,
	"high":   16384,
}

// NewAnthropicBackend creates a new Anthropic backend
func NewAnthropicBackend(config Config) (*AnthropicBackend, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	return &AnthropicBackend{
		apiKey:     config.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		maxTokens:  config.MaxTokens,
	}, nil
}

// Name returns the backend id
func (b *AnthropicBackend) Name() string {
	return "anthropic"
}

// SupportsTools reports tool_use support
func (b *AnthropicBackend) SupportsTools() bool {
	return true
}

// Generate issues one Messages API call
func (b *AnthropicBackend) Generate(ctx context.Context, req Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = b.maxTokens
	}
	if maxTokens == 0 {
		maxTokens = 16000
	}

	system, messages := toAnthropicMessages(req.Conversation)
	if req.Schema != nil {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object (no prose, no code fences) conforming to this JSON schema:\n" + req.Schema.JSON())
	}

	apiReq := anthropicRequest{
		Model:     req.Model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  messages,
	}
	for _, t := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	// Thinking blocks would have to be replayed on tool turns; keep it to tool-free calls.
	if budget, ok := anthropicBudgets[req.Reasoning]; ok && len(req.Tools) == 0 {
		apiReq.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: budget}
		apiReq.MaxTokens = maxTokens + budget
	}

	resp, err := b.makeRequest(ctx, apiReq)
	if err != nil {
		return nil, err
	}

	out := &Response{
		Model:      resp.Model,
		TokensUsed: resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	out.Text = text.String()
	return out, nil
}

// toAnthropicMessages folds system turns into the system prompt and merges
// consecutive turns of the same role, since tool results travel as user turns.
func toAnthropicMessages(conv Conversation) (string, []anthropicMessage) {
	var system []string
	var out []anthropicMessage

	push := func(role string, blocks ...anthropicBlock) {
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropicMessage{Role: role, Content: blocks})
	}

	for _, m := range conv.Messages() {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			var blocks []anthropicBlock
			if m.Content != "" {
				blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(tc.Arguments)
				if !json.Valid(input) {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropicBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
			}
			if len(blocks) > 0 {
				push("assistant", blocks...)
			}
		case RoleTool:
			push("user", anthropicBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content})
		default:
			push("user", anthropicBlock{Type: "text", Text: m.Content})
		}
	}
	return strings.Join(system, "\n\n"), out
}

// makeRequest makes an HTTP request to the Anthropic API
func (b *AnthropicBackend) makeRequest(ctx context.Context, apiReq anthropicRequest) (*anthropicResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, &Error{Kind: KindFatal, Backend: b.Name(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	url := fmt.Sprintf("%s/v1/messages", b.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindFatal, Backend: b.Name(), Err: fmt.Errorf("create request: %w", err)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", b.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	httpResp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, wrap(b.Name(), fmt.Errorf("execute request: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, wrap(b.Name(), fmt.Errorf("read response: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		var apiErr anthropicError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, statusError(b.Name(), httpResp.StatusCode, fmt.Errorf("%s - %s", apiErr.Error.Type, apiErr.Error.Message))
		}
		return nil, statusError(b.Name(), httpResp.StatusCode, fmt.Errorf("%s", string(respBody)))
	}

	var resp anthropicResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &Error{Kind: KindServer, Backend: b.Name(), Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	return &resp, nil
}
