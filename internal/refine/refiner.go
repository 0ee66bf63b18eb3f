// Package refine cleans up accepted results: it drops unused hypotheses,
// removes provisional markers and optionally tightens the statement.
package refine

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/lemmata/internal/completion"
	"github.com/ppiankov/lemmata/internal/config"
	"github.com/ppiankov/lemmata/internal/llm"
	"github.com/ppiankov/lemmata/internal/model"
	"github.com/ppiankov/lemmata/internal/prompts"
)

var (
	// "(Conjecture)", "(Conjecture 4.2)", "(conjectured)", "(provisional)"
	markerParen = regexp.MustCompile(`(?i)\s*\((?:conjecture[d]?|provisional|unproven)\b[^)]*\)`)
	// "Conjecture:", "Conjecture 3.", "Conjecture (Foo):" at the start
	markerPrefix = regexp.MustCompile(`(?i)^\s*(?:\*\*)?conjecture(?:\s+[\w.\-]+)?(?:\s*\([^)]*\))?\s*[:.](?:\*\*)?\s*`)
)

// StripProvisional removes markers of conjectural status from a statement
func StripProvisional(s model.Statement) model.Statement {
	out := markerParen.ReplaceAllString(s, "")
	out = markerPrefix.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// Editor performs the two refinement transformations. A nil result means the
// input pair is kept.
type Editor interface {
	Refine(ctx context.Context, statement model.Statement, proof model.Proof) (*model.ProvenResult, error)
	Tighten(ctx context.Context, statement model.Statement, proof model.Proof) (*model.ProvenResult, error)
}

type refineResponse struct {
	NewStatement     string `json:"new_statement"`
	NewProofMarkdown string `json:"new_proof_markdown"`
	Changed          bool   `json:"changed"`
}

type tightenResponse struct {
	CanTighten       bool   `json:"can_tighten"`
	UpdatedStatement string `json:"updated_statement,omitempty"`
	UpdatedProof     string `json:"updated_proof,omitempty"`
}

// Refiner implements Editor through structured completions
type Refiner struct {
	completer completion.Completer
	stage     config.StageConfig
	logger    *zap.Logger
}

// NewRefiner creates a refiner for the refinement stage config
func NewRefiner(c completion.Completer, stage config.StageConfig, logger *zap.Logger) *Refiner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refiner{completer: c, stage: stage, logger: logger.Named("refiner")}
}

// Refine returns the refined pair, or nil when nothing changed. A backend that
// claims a change but returns the same text counts as unchanged.
func (r *Refiner) Refine(ctx context.Context, statement model.Statement, proof model.Proof) (*model.ProvenResult, error) {
	conv := llm.NewConversation(
		llm.System(prompts.RefineSystem),
		llm.User(prompts.Refine(statement, proof)),
	)
	req := completion.ForStage(r.stage, conv)
	req.SchemaName = "refinement"

	var out refineResponse
	if _, err := r.completer.Complete(ctx, req, &out); err != nil {
		return nil, err
	}

	newStatement, newProof := statement, proof
	if out.Changed {
		if s := strings.TrimSpace(out.NewStatement); s != "" {
			newStatement = s
		}
		if p := strings.TrimSpace(out.NewProofMarkdown); p != "" {
			newProof = p
		}
	}
	newStatement = StripProvisional(newStatement)

	if newStatement == strings.TrimSpace(statement) && strings.TrimSpace(newProof) == strings.TrimSpace(proof) {
		r.logger.Debug("refinement left the result unchanged")
		return nil, nil
	}
	r.logger.Info("refined result",
		zap.String("before", model.Truncate(statement, 80)),
		zap.String("after", model.Truncate(newStatement, 80)))
	return &model.ProvenResult{Statement: newStatement, Proof: newProof}, nil
}

// Tighten returns a strictly tighter pair, or nil when the backend declines or
// leaves either part empty.
func (r *Refiner) Tighten(ctx context.Context, statement model.Statement, proof model.Proof) (*model.ProvenResult, error) {
	conv := llm.NewConversation(
		llm.System(prompts.TightenSystem),
		llm.User(prompts.Tighten(statement, proof)),
	)
	req := completion.ForStage(r.stage, conv)
	req.SchemaName = "tightening"

	var out tightenResponse
	if _, err := r.completer.Complete(ctx, req, &out); err != nil {
		return nil, err
	}
	if !out.CanTighten {
		return nil, nil
	}
	s := strings.TrimSpace(out.UpdatedStatement)
	p := strings.TrimSpace(out.UpdatedProof)
	if s == "" || p == "" {
		return nil, nil
	}
	return &model.ProvenResult{Statement: s, Proof: p}, nil
}
