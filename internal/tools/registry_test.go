package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ppiankov/lemmata/internal/config"
	"github.com/ppiankov/lemmata/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func echoTool() Tool {
	return Tool{
		Definition: llm.ToolDefinition{Name: "echo"},
		Run: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in map[string]any
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return in, nil
		},
	}
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &out))
	return out
}

func TestRegistryExecute(t *testing.T) {
	failing := Tool{
		Definition: llm.ToolDefinition{Name: "fail"},
		Run: func(ctx context.Context, args json.RawMessage) (any, error) {
			return nil, errors.New("disk on fire")
		},
	}
	panicking := Tool{
		Definition: llm.ToolDefinition{Name: "panic"},
		Run: func(ctx context.Context, args json.RawMessage) (any, error) {
			panic("boom")
		},
	}
	r := NewRegistry(zaptest.NewLogger(t), echoTool(), failing, panicking)
	ctx := context.Background()

	tests := []struct {
		name      string
		tool      string
		args      string
		wantKey   string
		wantValue any
	}{
		{"echo", "echo", `{"x": 1}`, "x", float64(1)},
		{"empty args", "echo", ``, "", nil},
		{"unknown tool", "web_search", `{}`, "error", "unknown tool: web_search"},
		{"invalid json", "echo", `{not json`, "error", "arguments for echo are not valid JSON"},
		{"tool error", "fail", `{}`, "error", "disk on fire"},
		{"panic", "panic", `{}`, "error", "panic panicked: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := decode(t, r.Execute(ctx, tt.tool, tt.args))
			if tt.wantKey == "" {
				assert.Empty(t, out)
				return
			}
			assert.Equal(t, tt.wantValue, out[tt.wantKey])
		})
	}
}

func TestRegistrySubsetAndDefinitions(t *testing.T) {
	r := Builtins(config.Default().Tools, nil)
	assert.Equal(t, 3, r.Len())

	names := []string{}
	for _, d := range r.Definitions() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{RunGoTool, RunPythonTool, ValidateMarkdownTool}, names)

	sub := r.Subset(ValidateMarkdownTool, "missing")
	assert.Equal(t, 1, sub.Len())
	assert.Empty(t, ScratchTools(sub))
	assert.Equal(t, []string{RunPythonTool, RunGoTool}, ScratchTools(r))

	var nilRegistry *Registry
	assert.Equal(t, 0, nilRegistry.Len())
	assert.Contains(t, nilRegistry.Execute(context.Background(), "echo", "{}"), "unknown tool")
}
