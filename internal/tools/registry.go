// Package tools is the local tool registry exposed to generative backends.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ppiankov/lemmata/internal/llm"
	"github.com/ppiankov/lemmata/internal/metrics"
	"go.uber.org/zap"
)

// Func executes a tool. The result must be JSON-serializable.
type Func func(ctx context.Context, args json.RawMessage) (any, error)

// Tool is a named local capability
type Tool struct {
	Definition llm.ToolDefinition
	Run        Func
}

// Registry maps tool names to local capabilities. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	tools  map[string]Tool
	logger *zap.Logger
}

// NewRegistry builds a registry. Later tools replace earlier ones of the same name.
func NewRegistry(logger *zap.Logger, tools ...Tool) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{tools: make(map[string]Tool, len(tools)), logger: logger}
	for _, t := range tools {
		r.tools[t.Definition.Name] = t
	}
	return r
}

// Subset returns a registry holding only the named tools that exist here
func (r *Registry) Subset(names ...string) *Registry {
	if r == nil {
		return nil
	}
	out := &Registry{tools: make(map[string]Tool, len(names)), logger: r.logger}
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			out.tools[name] = t
		}
	}
	return out
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.tools)
}

// Definitions returns the tool declarations sorted by name
func (r *Registry) Definitions() []llm.ToolDefinition {
	if r == nil {
		return nil
	}
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs the named tool and returns its result as JSON text. It never
// fails: unknown tools, bad arguments, tool errors and panics are all reported
// as {"error": "..."} so the backend can react.
func (r *Registry) Execute(ctx context.Context, name, arguments string) string {
	result := r.call(ctx, name, arguments)
	data, err := json.Marshal(result)
	if err != nil {
		data, _ = json.Marshal(errorResult(fmt.Errorf("encode result of %s: %w", name, err)))
	}
	return string(data)
}

func (r *Registry) call(ctx context.Context, name, arguments string) (result any) {
	var t Tool
	ok := r != nil
	if ok {
		t, ok = r.tools[name]
	}
	if !ok {
		metrics.ToolCalls.WithLabelValues(name, "unknown").Inc()
		return errorResult(fmt.Errorf("unknown tool: %s", name))
	}

	args := json.RawMessage(arguments)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if !json.Valid(args) {
		metrics.ToolCalls.WithLabelValues(name, "error").Inc()
		return errorResult(fmt.Errorf("arguments for %s are not valid JSON", name))
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", zap.String("tool", name), zap.Any("panic", p))
			metrics.ToolCalls.WithLabelValues(name, "error").Inc()
			result = errorResult(fmt.Errorf("%s panicked: %v", name, p))
		}
	}()

	out, err := t.Run(ctx, args)
	if err != nil {
		r.logger.Debug("tool returned error", zap.String("tool", name), zap.Error(err))
		metrics.ToolCalls.WithLabelValues(name, "error").Inc()
		return errorResult(err)
	}
	metrics.ToolCalls.WithLabelValues(name, "ok").Inc()
	return out
}

func errorResult(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

// decodeArgs unmarshals tool arguments into v
func decodeArgs(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
