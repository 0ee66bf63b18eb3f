// Package completion turns a conversation into a value of a Go type by driving
// a backend through tool rounds, transient-failure retries and schema repair.
package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/lemmata/internal/config"
	"github.com/ppiankov/lemmata/internal/llm"
	"github.com/ppiankov/lemmata/internal/metrics"
	"github.com/ppiankov/lemmata/internal/tools"
	"github.com/ppiankov/lemmata/internal/worker"
)

var (
	// ErrRetriesExhausted means every attempt of a call failed retryably
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrSchemaRepairExhausted means the output never matched the schema
	ErrSchemaRepairExhausted = errors.New("schema repair exhausted")
)

const (
	DefaultRepairTurns   = 2
	DefaultMaxToolRounds = 24
)

const repairInstruction = "Your previous reply could not be used: %v\n\n" +
	"Return only a JSON value conforming to this schema, with no prose and no code fences:\n%s"

// Request is one structured completion
type Request struct {
	Conversation llm.Conversation
	Backend      string
	Model        string
	Reasoning    string
	Timeout      time.Duration   // Per generation call
	Tools        *tools.Registry // nil = no tools
	SchemaName   string          // Defaults to the lowercased output type name
}

// ForStage fills backend, model, reasoning and timeout from a stage config
func ForStage(stage config.StageConfig, conv llm.Conversation) Request {
	return Request{
		Conversation: conv,
		Backend:      stage.Backend,
		Model:        stage.Model,
		Reasoning:    stage.Reasoning,
		Timeout:      stage.Timeout(),
	}
}

// Completer is the capability consumed by pipeline stages
type Completer interface {
	Complete(ctx context.Context, req Request, out any) (string, error)
}

// Options tunes an Adapter
type Options struct {
	Retry         RetryPolicy
	RepairTurns   int
	MaxToolRounds int
	Limiter       *worker.Limiter // Keyed by backend id; nil = unlimited
	Logger        *zap.Logger

	// Sleep waits between retries; tests replace it to avoid real delays
	Sleep func(ctx context.Context, d time.Duration) error
}

// Adapter implements Completer over a backend registry. It is safe for
// concurrent use by independent conversations.
type Adapter struct {
	backends *llm.Registry
	opts     Options
	logger   *zap.Logger
}

// New creates an adapter
func New(backends *llm.Registry, opts Options) *Adapter {
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Retry.MaxAttempts < 0 {
		opts.Retry.MaxAttempts = 0
	}
	if opts.RepairTurns < 0 {
		opts.RepairTurns = 0
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = DefaultMaxToolRounds
	}
	if opts.Limiter == nil {
		opts.Limiter = worker.NewLimiter(0, 0)
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{backends: backends, opts: opts, logger: logger.Named("completion")}
}

// FromConfig builds adapter options from the retry and completion settings
func FromConfig(cfg config.Config, logger *zap.Logger) Options {
	return Options{
		Retry: RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseBackoff: time.Duration(cfg.Retry.BaseBackoffMS) * time.Millisecond,
			Jitter:      time.Duration(cfg.Retry.JitterMS) * time.Millisecond,
			MaxBackoff:  time.Duration(cfg.Retry.MaxBackoffMS) * time.Millisecond,
		},
		RepairTurns:   cfg.Completion.RepairTurns,
		MaxToolRounds: cfg.Completion.MaxToolRounds,
		Logger:        logger,
	}
}

// Complete drives req to a value decoded into out (a non-nil pointer) and
// returns the raw text of the final generation.
func (a *Adapter) Complete(ctx context.Context, req Request, out any) (string, error) {
	backend, err := a.backends.Get(req.Backend)
	if err != nil {
		return "", &llm.Error{Kind: llm.KindFatal, Backend: req.Backend, Err: err}
	}
	schema, err := SchemaFor(out, req.SchemaName)
	if err != nil {
		return "", &llm.Error{Kind: llm.KindFatal, Backend: backend.Name(), Err: err}
	}

	logger := a.logger.With(zap.String("backend", backend.Name()), zap.String("schema", schema.Name))

	var defs []llm.ToolDefinition
	if req.Tools.Len() > 0 {
		if backend.SupportsTools() {
			defs = req.Tools.Definitions()
		} else {
			logger.Debug("backend cannot host tools, issuing a single call without them")
		}
	}

	conv := req.Conversation
	resp, err := a.generate(ctx, backend, req, conv, schema, defs)

	for round := 0; err == nil && len(resp.ToolCalls) > 0 && len(defs) > 0; round++ {
		conv = conv.With(llm.Assistant(resp.Text, resp.ToolCalls...))
		for _, call := range resp.ToolCalls {
			logger.Debug("executing tool", zap.String("tool", call.Name), zap.Int("round", round+1))
			conv = conv.With(llm.ToolResult(call, req.Tools.Execute(ctx, call.Name, call.Arguments)))
		}

		next := defs
		if round+1 >= a.opts.MaxToolRounds {
			logger.Warn("tool round budget reached, requesting a final answer",
				zap.Int("rounds", round+1))
			next = nil
		}
		resp, err = a.generate(ctx, backend, req, conv, schema, next)
		if next == nil {
			break
		}
	}

	var raw string
	var parseErr error
	switch {
	case err == nil:
		raw = resp.Text
		parseErr = Decode(raw, out)
	case llm.KindOf(err) == llm.KindValidation:
		parseErr = err
	default:
		return "", err
	}

	for turn := 0; parseErr != nil && turn < a.opts.RepairTurns; turn++ {
		metrics.RepairTurns.WithLabelValues(backend.Name()).Inc()
		logger.Info("output did not match schema, requesting repair",
			zap.Int("turn", turn+1), zap.Error(parseErr))

		if raw != "" {
			conv = conv.With(llm.Assistant(raw))
		}
		conv = conv.With(llm.User(fmt.Sprintf(repairInstruction, parseErr, schema.JSON())))

		resp, err = a.generate(ctx, backend, req, conv, schema, nil)
		switch {
		case err == nil:
			raw = resp.Text
			parseErr = Decode(raw, out)
		case llm.KindOf(err) == llm.KindValidation:
			raw = ""
			parseErr = err
		default:
			return "", err
		}
	}

	if parseErr != nil {
		return raw, &llm.Error{
			Kind:    llm.KindValidation,
			Backend: backend.Name(),
			Err:     fmt.Errorf("%w after %d repair turns: %w", ErrSchemaRepairExhausted, a.opts.RepairTurns, parseErr),
		}
	}
	return raw, nil
}

// generate issues one logical call, retrying retryable failures with backoff
func (a *Adapter) generate(ctx context.Context, backend llm.Backend, req Request, conv llm.Conversation,
	schema *llm.Schema, defs []llm.ToolDefinition) (*llm.Response, error) {
	name := backend.Name()
	call := llm.Request{
		Conversation: conv,
		Schema:       schema,
		Model:        req.Model,
		Reasoning:    req.Reasoning,
		Timeout:      req.Timeout,
		Tools:        defs,
	}

	for attempt := 0; ; attempt++ {
		if err := a.opts.Limiter.Wait(ctx, name); err != nil {
			return nil, &llm.Error{Kind: llm.KindFatal, Backend: name, Err: err}
		}

		start := time.Now()
		resp, err := backend.Generate(ctx, call)
		metrics.BackendLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.BackendCalls.WithLabelValues(name, "ok").Inc()
			return resp, nil
		}

		kind := llm.KindOf(err)
		metrics.BackendCalls.WithLabelValues(name, kind.String()).Inc()
		if !llm.IsRetryable(err) {
			return nil, err
		}
		// A cancelled or expired parent is not transient
		if ctx.Err() != nil {
			return nil, &llm.Error{Kind: llm.KindFatal, Backend: name, Err: ctx.Err()}
		}
		if attempt >= a.opts.Retry.MaxAttempts {
			return nil, &llm.Error{
				Kind:    llm.KindFatal,
				Backend: name,
				Err:     fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt+1, err),
			}
		}

		delay := a.opts.Retry.Backoff(attempt)
		metrics.Retries.WithLabelValues(name, kind.String()).Inc()
		a.logger.Warn("retryable backend failure",
			zap.String("backend", name),
			zap.Stringer("kind", kind),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err))

		if err := a.opts.Sleep(ctx, delay); err != nil {
			return nil, &llm.Error{Kind: llm.KindFatal, Backend: name, Err: err}
		}
	}
}
