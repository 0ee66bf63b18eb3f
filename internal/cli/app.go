package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ppiankov/lemmata/internal/cache"
	"github.com/ppiankov/lemmata/internal/completion"
	"github.com/ppiankov/lemmata/internal/config"
	"github.com/ppiankov/lemmata/internal/llm"
	"github.com/ppiankov/lemmata/internal/research"
	"github.com/ppiankov/lemmata/internal/sources"
	"github.com/ppiankov/lemmata/internal/tools"
	"github.com/ppiankov/lemmata/internal/worker"
)

// app is everything a command needs, built once from the loaded configuration
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	completer completion.Completer
	research  *research.Orchestrator
}

// loadConfig decodes viper settings and applies the --backend/--model overrides
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, err
	}
	if backendID != "" || modelName != "" {
		cfg.Pipeline = cfg.Pipeline.WithModel(backendID, modelName)
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

// newLogger builds a development logger for --verbose and a production one
// otherwise. Both write to stderr so stdout stays clean for results.
func newLogger(verbose bool, format string) (*zap.Logger, error) {
	var zc zap.Config
	if verbose {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	switch format {
	case "json":
		zc.Encoding = "json"
	case "console", "":
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q (supported: console, json)", format)
	}
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

// stageBackends returns the canonical backend ids referenced by the pipeline
func stageBackends(p config.PipelineConfig) []string {
	seen := map[string]bool{}
	for _, name := range []string{
		config.StageLiterature, config.StagePrediction, config.StageProving, config.StageJudging,
		config.StageNovelty, config.StageReporting, config.StageRefinement,
	} {
		s, _ := p.Stage(name)
		seen[llm.Canonical(s.Backend)] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func backendConfig(b config.BackendsConfig, id string) config.BackendConfig {
	switch id {
	case "openai":
		return b.OpenAI
	case "anthropic":
		return b.Anthropic
	case "google":
		return b.Google
	case "ollama":
		return b.Ollama
	}
	return config.BackendConfig{}
}

// newBackends connects only the backends some stage actually uses, and
// registers their request rate on the limiter.
func newBackends(ctx context.Context, cfg config.Config, limiter *worker.Limiter) (*llm.Registry, error) {
	var backends []llm.Backend
	for _, id := range stageBackends(cfg.Pipeline) {
		bc := backendConfig(cfg.Backends, id)
		b, err := llm.NewBackend(ctx, llm.Config{
			Provider:  id,
			APIKey:    bc.APIKey,
			BaseURL:   bc.BaseURL,
			MaxTokens: bc.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", id, err)
		}
		if bc.RPM > 0 {
			limiter.SetPerMinute(id, bc.RPM)
		}
		backends = append(backends, b)
	}
	return llm.NewRegistry(backends...), nil
}

// newApp loads configuration and wires every component
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(verbose, logFormat)
	if err != nil {
		return nil, err
	}

	limiter := worker.NewLimiter(0, 0)
	registry, err := newBackends(ctx, cfg, limiter)
	if err != nil {
		return nil, err
	}
	opts := completion.FromConfig(cfg, logger)
	opts.Limiter = limiter
	completer := completion.New(registry, opts)

	return assemble(cfg, completer, logger), nil
}

// assemble builds the orchestrator and its collaborators around a completer
func assemble(cfg config.Config, completer completion.Completer, logger *zap.Logger) *app {
	toolbox := tools.Builtins(cfg.Tools, logger)

	var checker *sources.Checker
	if cfg.Sources.Enabled {
		checker = sources.NewChecker(cfg.Sources, cfg.Workers.Sources, logger)
	}

	orch := research.New(completer, cfg, research.Options{
		Tools:   toolbox,
		Sources: checker,
		Cache:   cache.New(cfg.Cache),
		Logger:  logger,
	})

	logger.Debug("components ready",
		zap.Int("tools", toolbox.Len()),
		zap.Bool("sources", checker != nil),
		zap.Bool("cache", cfg.Cache.Enabled))

	return &app{
		cfg:       cfg,
		logger:    logger,
		completer: completer,
		research:  orch,
	}
}

func (a *app) close() {
	_ = a.logger.Sync()
}
