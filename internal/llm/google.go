package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GoogleBackend implements Backend over the Gemini API. Tool execution is not
// offered; callers that request tools degrade to plain generation.
type GoogleBackend struct {
	client    *genai.Client
	maxTokens int
}

// NewGoogleBackend creates a Gemini backend
func NewGoogleBackend(ctx context.Context, config Config) (*GoogleBackend, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Google API key is required")
	}
	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GoogleBackend{client: client, maxTokens: config.MaxTokens}, nil
}

// Name returns the backend id
func (b *GoogleBackend) Name() string {
	return "google"
}

// SupportsTools is false: local tool round-trips are not wired for Gemini
func (b *GoogleBackend) SupportsTools() bool {
	return false
}

// Generate issues one GenerateContent call
func (b *GoogleBackend) Generate(ctx context.Context, req Request) (*Response, error) {
	if len(req.Tools) > 0 {
		return nil, &Error{Kind: KindFatal, Backend: b.Name(), Err: ErrToolsUnsupported}
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var system []string
	var contents []*genai.Content
	for _, m := range req.Conversation.Messages() {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			if m.Content != "" {
				contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
			}
		case RoleTool:
			contents = append(contents, genai.NewContentFromText(
				fmt.Sprintf("Result of tool %s:\n%s", m.ToolName, m.Content), genai.RoleUser))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{}
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		system = append(system, "Respond with a single JSON object conforming to this JSON schema:\n"+req.Schema.JSON())
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = b.maxTokens
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}

	resp, err := b.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, b.classify(err)
	}
	text := resp.Text()
	if text == "" {
		return nil, &Error{Kind: KindServer, Backend: b.Name(), Err: errors.New("empty response")}
	}

	out := &Response{Text: text, Model: req.Model}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

// grpcStatusCodes maps the status names Gemini puts in error bodies to HTTP
// codes, for errors that arrive without a numeric code.
var grpcStatusCodes = map[string]int{
	"RESOURCE_EXHAUSTED": 429,
	"DEADLINE_EXCEEDED":  504,
	"UNAVAILABLE":        503,
	"INTERNAL":           500,
	"UNKNOWN":            500,
}

func (b *GoogleBackend) classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Code
		if code == 0 {
			code = grpcStatusCodes[apiErr.Status]
		}
		if code != 0 {
			return statusError(b.Name(), code, err)
		}
	}
	return wrap(b.Name(), err)
}
