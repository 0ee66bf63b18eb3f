package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIBackend talks to the OpenAI chat completions API or any compatible
// endpoint (Ollama, vLLM) through go-openai.
type OpenAIBackend struct {
	name      string
	client    *openai.Client
	maxTokens int
}

// NewOpenAIBackend creates a backend for the OpenAI API
func NewOpenAIBackend(config Config) (*OpenAIBackend, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	return newOpenAICompatible("openai", config), nil
}

// NewOllamaBackend creates a backend for Ollama's OpenAI-compatible endpoint
func NewOllamaBackend(config Config) (*OpenAIBackend, error) {
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:11434/v1"
	}
	if config.APIKey == "" {
		config.APIKey = "ollama"
	}
	return newOpenAICompatible("ollama", config), nil
}

func newOpenAICompatible(name string, config Config) *OpenAIBackend {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	}
	return &OpenAIBackend{
		name:      name,
		client:    openai.NewClientWithConfig(clientConfig),
		maxTokens: config.MaxTokens,
	}
}

// Name returns the backend id
func (b *OpenAIBackend) Name() string {
	return b.name
}

// SupportsTools reports function-calling support
func (b *OpenAIBackend) SupportsTools() bool {
	return true
}

// Generate issues one chat completion call
func (b *OpenAIBackend) Generate(ctx context.Context, req Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	apiReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Conversation),
	}
	if req.Reasoning != "" && b.name == "openai" {
		apiReq.ReasoningEffort = req.Reasoning
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = b.maxTokens
	}
	if maxTokens > 0 {
		apiReq.MaxCompletionTokens = maxTokens
	}
	if req.Schema != nil && req.Schema.Definition != nil {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.Schema.Name,
				Schema: req.Schema.Definition,
				Strict: req.Schema.Strict,
			},
		}
	}
	for _, t := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := b.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return nil, b.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Kind: KindServer, Backend: b.name, Err: errors.New("no choices in response")}
	}

	msg := resp.Choices[0].Message
	out := &Response{
		Text:       msg.Content,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func (b *OpenAIBackend) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return statusError(b.name, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return statusError(b.name, reqErr.HTTPStatusCode, err)
	}
	return wrap(b.name, err)
}

func toOpenAIMessages(conv Conversation) []openai.ChatCompletionMessage {
	msgs := conv.Messages()
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{Content: m.Content}
		switch m.Role {
		case RoleSystem:
			om.Role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			om.Role = openai.ChatMessageRoleAssistant
			for _, tc := range m.ToolCalls {
				om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		case RoleTool:
			om.Role = openai.ChatMessageRoleTool
			om.ToolCallID = m.ToolCallID
			om.Name = m.ToolName
		default:
			om.Role = openai.ChatMessageRoleUser
		}
		out = append(out, om)
	}
	return out
}
