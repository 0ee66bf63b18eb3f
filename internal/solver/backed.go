package solver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/lemmata/internal/completion"
	"github.com/ppiankov/lemmata/internal/config"
	"github.com/ppiankov/lemmata/internal/llm"
	"github.com/ppiankov/lemmata/internal/model"
	"github.com/ppiankov/lemmata/internal/prompts"
	"github.com/ppiankov/lemmata/internal/tools"
)

type proofResponse struct {
	ProofMarkdown string `json:"proof_markdown" validate:"required"`
}

type choiceResponse struct {
	ChosenIndex int `json:"chosen_index" validate:"gte=0"`
}

// CompletionProver proves through a structured completion. Every call starts a
// new conversation, so one value can serve concurrent statements.
type CompletionProver struct {
	completer completion.Completer
	stage     config.StageConfig
	tools     *tools.Registry
	logger    *zap.Logger
}

// NewProver creates a prover for the given stage. scratch may be nil.
func NewProver(c completion.Completer, stage config.StageConfig, scratch *tools.Registry, logger *zap.Logger) *CompletionProver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompletionProver{completer: c, stage: stage, tools: scratch, logger: logger.Named("prover")}
}

// Prove requests a fresh proof
func (p *CompletionProver) Prove(ctx context.Context, statement model.Statement, lit *model.Literature) (model.Proof, error) {
	conv := llm.NewConversation(
		llm.System(prompts.ProverSystem),
		llm.User(prompts.Prove(statement, lit)),
	)
	return p.complete(ctx, conv)
}

// Reprove requests a revision of previous addressing feedback
func (p *CompletionProver) Reprove(ctx context.Context, statement model.Statement, previous model.Proof, feedback string,
	lit *model.Literature) (model.Proof, error) {
	conv := llm.NewConversation(
		llm.System(prompts.ProverSystem),
		llm.User(prompts.Reprove(statement, previous, feedback, lit)),
	)
	return p.complete(ctx, conv)
}

func (p *CompletionProver) complete(ctx context.Context, conv llm.Conversation) (model.Proof, error) {
	req := completion.ForStage(p.stage, conv)
	req.Tools = p.tools

	var out proofResponse
	if _, err := p.completer.Complete(ctx, req, &out); err != nil {
		return "", err
	}
	p.logger.Debug("received proof", zap.Int("chars", len(out.ProofMarkdown)))
	return out.ProofMarkdown, nil
}

// CompletionJudge assesses a proof through a structured completion with a
// fresh conversation per assessment.
type CompletionJudge struct {
	completer completion.Completer
	stage     config.StageConfig
}

// NewJudge creates a judge for the given stage
func NewJudge(c completion.Completer, stage config.StageConfig) *CompletionJudge {
	return &CompletionJudge{completer: c, stage: stage}
}

// JudgesFor returns a factory producing a new judge per assessment
func JudgesFor(c completion.Completer, stage config.StageConfig) JudgeFactory {
	return func() Judge { return NewJudge(c, stage) }
}

// Assess returns the judge's verdict on proof
func (j *CompletionJudge) Assess(ctx context.Context, statement model.Statement, proof model.Proof,
	lit *model.Literature) (model.Verdict, error) {
	conv := llm.NewConversation(
		llm.System(prompts.JudgeSystem),
		llm.User(prompts.Judge(statement, proof, lit)),
	)
	req := completion.ForStage(j.stage, conv)
	req.SchemaName = "verdict"

	var v model.Verdict
	if _, err := j.completer.Complete(ctx, req, &v); err != nil {
		return model.Verdict{}, err
	}
	return v, nil
}

// FinalJudge picks the least incorrect of several failed attempts
type FinalJudge struct {
	completer completion.Completer
	stage     config.StageConfig
}

// NewFinalJudge creates a final judge for the given stage
func NewFinalJudge(c completion.Completer, stage config.StageConfig) *FinalJudge {
	return &FinalJudge{completer: c, stage: stage}
}

// Choose returns the index of the chosen proof. A single proof needs no call.
func (f *FinalJudge) Choose(ctx context.Context, statement model.Statement, proofs []model.Proof) (int, error) {
	switch len(proofs) {
	case 0:
		return -1, fmt.Errorf("final judge: no proofs")
	case 1:
		return 0, nil
	}

	conv := llm.NewConversation(
		llm.System(prompts.FinalJudgeSystem),
		llm.User(prompts.FinalJudge(statement, proofs)),
	)
	req := completion.ForStage(f.stage, conv)
	req.SchemaName = "choice"

	var out choiceResponse
	if _, err := f.completer.Complete(ctx, req, &out); err != nil {
		return -1, err
	}
	if out.ChosenIndex >= len(proofs) {
		return -1, fmt.Errorf("final judge: index %d out of range for %d proofs", out.ChosenIndex, len(proofs))
	}
	return out.ChosenIndex, nil
}
