// Package config holds the immutable run configuration. It is built once by the
// CLI and passed by value into every component that needs it.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Stage names used as keys in logs and metrics
const (
	StageLiterature = "literature"
	StagePrediction = "prediction"
	StageProving    = "proving"
	StageJudging    = "judging"
	StageNovelty    = "novelty"
	StageReporting  = "reporting"
	StageRefinement = "refinement"
)

// Config is the complete configuration for one process
type Config struct {
	Backends   BackendsConfig   `yaml:"backends" mapstructure:"backends"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline" validate:"required"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Completion CompletionConfig `yaml:"completion" mapstructure:"completion"`
	Workers    WorkersConfig    `yaml:"workers" mapstructure:"workers"`
	Solver     SolverConfig     `yaml:"solver" mapstructure:"solver"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Tools      ToolsConfig      `yaml:"tools" mapstructure:"tools"`
	Sources    SourcesConfig    `yaml:"sources" mapstructure:"sources"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
}

// BackendsConfig carries connection settings per backend id
type BackendsConfig struct {
	OpenAI    BackendConfig `yaml:"openai" mapstructure:"openai"`
	Anthropic BackendConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Google    BackendConfig `yaml:"google" mapstructure:"google"`
	Ollama    BackendConfig `yaml:"ollama" mapstructure:"ollama"`
}

// BackendConfig holds the settings for one generative backend
type BackendConfig struct {
	APIKey    string `yaml:"api_key,omitempty" mapstructure:"api_key"`       // Prefer env vars
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`     // Custom endpoint
	MaxTokens int    `yaml:"max_tokens,omitempty" mapstructure:"max_tokens"` // Output token cap (0 = backend default)
	RPM       int    `yaml:"rpm,omitempty" mapstructure:"rpm"`               // Requests per minute (0 = unlimited)
}

// PipelineConfig selects backend, model and reasoning intensity per stage
type PipelineConfig struct {
	Literature StageConfig `yaml:"literature" mapstructure:"literature"`
	Prediction StageConfig `yaml:"prediction" mapstructure:"prediction"`
	Proving    StageConfig `yaml:"proving" mapstructure:"proving"`
	Judging    StageConfig `yaml:"judging" mapstructure:"judging"`
	Novelty    StageConfig `yaml:"novelty" mapstructure:"novelty"`
	Reporting  StageConfig `yaml:"reporting" mapstructure:"reporting"`
	Refinement StageConfig `yaml:"refinement" mapstructure:"refinement"`
}

// StageConfig is the backend selection for one stage
type StageConfig struct {
	Backend        string `yaml:"backend" mapstructure:"backend" validate:"oneof=openai anthropic claude google gemini ollama"`
	Model          string `yaml:"model" mapstructure:"model" validate:"required"`
	Reasoning      string `yaml:"reasoning" mapstructure:"reasoning" validate:"oneof=low medium high"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds" validate:"gte=1"`
}

// Timeout returns the per-call timeout as a duration
func (s StageConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// RetryConfig governs transient-failure retries in the completion adapter
type RetryConfig struct {
	MaxAttempts   int `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=0"` // Retries after the first call
	BaseBackoffMS int `yaml:"base_backoff_ms" mapstructure:"base_backoff_ms" validate:"gte=0"`
	JitterMS      int `yaml:"jitter_ms" mapstructure:"jitter_ms" validate:"gte=0"`
	MaxBackoffMS  int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms" validate:"gte=0"`
}

// CompletionConfig bounds repair and tool rounds
type CompletionConfig struct {
	RepairTurns   int `yaml:"repair_turns" mapstructure:"repair_turns" validate:"gte=0"`
	MaxToolRounds int `yaml:"max_tool_rounds" mapstructure:"max_tool_rounds" validate:"gte=1"`
}

// WorkersConfig sizes the bounded pools of each fan-out stage
type WorkersConfig struct {
	Novelty    int `yaml:"novelty" mapstructure:"novelty" validate:"gte=1"`
	Proving    int `yaml:"proving" mapstructure:"proving" validate:"gte=1"`
	Refinement int `yaml:"refinement" mapstructure:"refinement" validate:"gte=1"`
	Sources    int `yaml:"sources" mapstructure:"sources" validate:"gte=1"`
}

// SolverConfig bounds the verification gate
type SolverConfig struct {
	MaxTries         int `yaml:"max_tries" mapstructure:"max_tries" validate:"gte=1"`                   // Standalone prove
	ResearchMaxTries int `yaml:"research_max_tries" mapstructure:"research_max_tries" validate:"gte=1"` // Inside research runs
	Replicas         int `yaml:"replicas" mapstructure:"replicas" validate:"gte=1"`
}

// ResearchConfig tunes the orchestrator
type ResearchConfig struct {
	Guideline         string `yaml:"guideline,omitempty" mapstructure:"guideline"`
	LiteratureCap     int    `yaml:"literature_cap" mapstructure:"literature_cap" validate:"gte=1"`
	PredictionRetries int    `yaml:"prediction_retries" mapstructure:"prediction_retries" validate:"gte=0"`
	ReportRounds      int    `yaml:"report_rounds" mapstructure:"report_rounds" validate:"gte=1"`
}

// ToolsConfig configures the sandboxed script tools
type ToolsConfig struct {
	PythonPath     string `yaml:"python_path" mapstructure:"python_path"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds" validate:"gte=1"`
	MemoryLimitMB  int    `yaml:"memory_limit_mb" mapstructure:"memory_limit_mb" validate:"gte=16"`
	EnableGo       bool   `yaml:"enable_go" mapstructure:"enable_go"`
}

// SourcesConfig controls the literature source checker
type SourcesConfig struct {
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds" validate:"gte=1"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBytes       int64  `yaml:"max_bytes" mapstructure:"max_bytes" validate:"gte=1024"`
	HTTPProxy      string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy     string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy        string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig controls the novelty verdict cache
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir      string `yaml:"dir,omitempty" mapstructure:"dir"` // Disk layer; empty = memory only
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours" validate:"gte=1"`
}

// TTL returns the cache time-to-live
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// Stage returns the stage configuration by name
func (p PipelineConfig) Stage(name string) (StageConfig, bool) {
	switch name {
	case StageLiterature:
		return p.Literature, true
	case StagePrediction:
		return p.Prediction, true
	case StageProving:
		return p.Proving, true
	case StageJudging:
		return p.Judging, true
	case StageNovelty:
		return p.Novelty, true
	case StageReporting:
		return p.Reporting, true
	case StageRefinement:
		return p.Refinement, true
	}
	return StageConfig{}, false
}

// WithModel returns a copy where every stage uses the given backend and model.
// Empty arguments leave the corresponding field untouched.
func (p PipelineConfig) WithModel(backend, model string) PipelineConfig {
	apply := func(s StageConfig) StageConfig {
		if backend != "" {
			s.Backend = backend
		}
		if model != "" {
			s.Model = model
		}
		return s
	}
	p.Literature = apply(p.Literature)
	p.Prediction = apply(p.Prediction)
	p.Proving = apply(p.Proving)
	p.Judging = apply(p.Judging)
	p.Novelty = apply(p.Novelty)
	p.Reporting = apply(p.Reporting)
	p.Refinement = apply(p.Refinement)
	return p
}

// Default returns the built-in configuration
func Default() Config {
	stage := func(model, reasoning string, timeout int) StageConfig {
		return StageConfig{Backend: "openai", Model: model, Reasoning: reasoning, TimeoutSeconds: timeout}
	}
	return Config{
		Backends: BackendsConfig{
			Ollama: BackendConfig{BaseURL: "http://127.0.0.1:11434/v1"},
		},
		Pipeline: PipelineConfig{
			Literature: stage("gpt-5", "medium", 2400),
			Prediction: stage("gpt-5", "high", 3600),
			Proving:    stage("gpt-5", "high", 2400),
			Judging:    stage("gpt-5", "high", 1800),
			Novelty:    stage("gpt-5", "medium", 900),
			Reporting:  stage("gpt-5-mini", "medium", 1800),
			Refinement: stage("gpt-5", "medium", 900),
		},
		Retry: RetryConfig{
			MaxAttempts:   4,
			BaseBackoffMS: 1000,
			JitterMS:      500,
			MaxBackoffMS:  60000,
		},
		Completion: CompletionConfig{
			RepairTurns:   2,
			MaxToolRounds: 24,
		},
		Workers: WorkersConfig{
			Novelty:    8,
			Proving:    12,
			Refinement: 12,
			Sources:    8,
		},
		Solver: SolverConfig{
			MaxTries:         10,
			ResearchMaxTries: 8,
			Replicas:         1,
		},
		Research: ResearchConfig{
			LiteratureCap:     40,
			PredictionRetries: 2,
			ReportRounds:      5,
		},
		Tools: ToolsConfig{
			PythonPath:     "python3",
			TimeoutSeconds: 10,
			MemoryLimitMB:  256,
			EnableGo:       true,
		},
		Sources: SourcesConfig{
			Enabled:        false,
			TimeoutSeconds: 20,
			UserAgent:      "lemmata/0.3 (+https://github.com/ppiankov/lemmata)",
			MaxBytes:       512_000,
		},
		Cache: CacheConfig{
			Enabled:  true,
			TTLHours: 24 * 7,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and returns a readable error listing every
// offending field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
