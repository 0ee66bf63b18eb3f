// Package solver implements the verification gate: a prover whose proofs must
// be accepted by two independently instantiated judges in a row.
package solver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/lemmata/internal/metrics"
	"github.com/ppiankov/lemmata/internal/model"
)

// NoProofFound is the failure text when no attempt produced any feedback
const NoProofFound = "No correct proof found within allotted attempts."

const (
	DefaultMaxTries         = 10
	DefaultResearchMaxTries = 8
)

// Prover produces and revises proofs
type Prover interface {
	Prove(ctx context.Context, statement model.Statement, lit *model.Literature) (model.Proof, error)
	Reprove(ctx context.Context, statement model.Statement, previous model.Proof, feedback string, lit *model.Literature) (model.Proof, error)
}

// Judge assesses one proof
type Judge interface {
	Assess(ctx context.Context, statement model.Statement, proof model.Proof, lit *model.Literature) (model.Verdict, error)
}

// JudgeFactory returns a judge with no memory of earlier assessments
type JudgeFactory func() Judge

// Stage names the gate step that ended a round
type Stage string

const (
	StageJudge1 Stage = "judge1"
	StageJudge2 Stage = "judge2"
)

// Round records one GENERATE → JUDGE1 (→ JUDGE2) pass
type Round struct {
	Number   int
	Proof    model.Proof
	Stage    Stage // Last judge consulted
	Verdict  model.Verdict
	Accepted bool // Both judges accepted
}

// Outcome is the result of one gate run. Text holds the accepted proof, or
// the most recent feedback when nothing was accepted.
type Outcome struct {
	Accepted  bool
	Text      string
	LastProof model.Proof
	Rounds    []Round
}

// Gate runs the verification loop for one statement
type Gate interface {
	Solve(ctx context.Context, statement model.Statement, lit *model.Literature) (Outcome, error)
}

// GateFunc adapts a function to Gate
type GateFunc func(ctx context.Context, statement model.Statement, lit *model.Literature) (Outcome, error)

func (f GateFunc) Solve(ctx context.Context, statement model.Statement, lit *model.Literature) (Outcome, error) {
	return f(ctx, statement, lit)
}

// Options tunes a Solver
type Options struct {
	MaxTries int
	Logger   *zap.Logger
	OnRound  func(Round) // Called after every round, including failed ones
}

// Solver is the generate/judge/judge loop. It holds no per-statement state and
// may run several statements concurrently if its prover and judges allow it.
type Solver struct {
	prover Prover
	judges JudgeFactory
	opts   Options
	logger *zap.Logger
}

// New creates a solver
func New(prover Prover, judges JudgeFactory, opts Options) *Solver {
	if opts.MaxTries <= 0 {
		opts.MaxTries = DefaultMaxTries
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Solver{prover: prover, judges: judges, opts: opts, logger: logger.Named("solver")}
}

// Solve drives statement through at most MaxTries rounds. A second-judge
// rejection ends the round as a failure and its feedback seeds the next
// GENERATE; only two consecutive acceptances of the same proof succeed.
// Errors from the prover or a judge abort the gate.
func (s *Solver) Solve(ctx context.Context, statement model.Statement, lit *model.Literature) (Outcome, error) {
	logger := s.logger.With(zap.String("statement", model.Truncate(statement, 80)))

	var out Outcome
	var feedback string

	for try := 1; try <= s.opts.MaxTries; try++ {
		if err := ctx.Err(); err != nil {
			metrics.GateOutcomes.WithLabelValues("error").Inc()
			return s.exhausted(out, feedback), err
		}

		var proof model.Proof
		var err error
		if feedback == "" {
			logger.Info("prover: attempting proof", zap.Int("try", try))
			proof, err = s.prover.Prove(ctx, statement, lit)
		} else {
			logger.Info("prover: revising proof with feedback", zap.Int("try", try))
			proof, err = s.prover.Reprove(ctx, statement, out.LastProof, feedback, lit)
		}
		if err != nil {
			metrics.GateOutcomes.WithLabelValues("error").Inc()
			return s.exhausted(out, feedback), fmt.Errorf("prove (try %d): %w", try, err)
		}
		out.LastProof = proof

		round, err := s.judge(ctx, try, statement, proof, lit)
		if err != nil {
			metrics.GateOutcomes.WithLabelValues("error").Inc()
			return s.exhausted(out, feedback), err
		}
		out.Rounds = append(out.Rounds, round)
		if s.opts.OnRound != nil {
			s.opts.OnRound(round)
		}

		if round.Accepted {
			metrics.SolverRounds.WithLabelValues("accepted").Inc()
			metrics.GateOutcomes.WithLabelValues("accepted").Inc()
			logger.Info("both judges accepted", zap.Int("try", try))
			out.Accepted = true
			out.Text = proof
			return out, nil
		}

		metrics.SolverRounds.WithLabelValues(string(round.Stage) + "_rejected").Inc()
		logger.Info("judge found a flaw, looping with feedback",
			zap.String("judge", string(round.Stage)),
			zap.Int("try", try))
		feedback = round.Verdict.Feedback
		if feedback == "" {
			feedback = "The judge rejected the proof without naming a flaw."
		}
	}

	metrics.GateOutcomes.WithLabelValues("exhausted").Inc()
	logger.Info("exhausted max tries", zap.Int("max_tries", s.opts.MaxTries))
	return s.exhausted(out, feedback), nil
}

// judge runs JUDGE1 and, on acceptance, JUDGE2 with a fresh judge each
func (s *Solver) judge(ctx context.Context, try int, statement model.Statement, proof model.Proof,
	lit *model.Literature) (Round, error) {
	round := Round{Number: try, Proof: proof, Stage: StageJudge1}

	v1, err := s.judges().Assess(ctx, statement, proof, lit)
	if err != nil {
		return round, fmt.Errorf("judge #1 (try %d): %w", try, err)
	}
	round.Verdict = v1
	if !v1.Correct {
		return round, nil
	}

	round.Stage = StageJudge2
	v2, err := s.judges().Assess(ctx, statement, proof, lit)
	if err != nil {
		return round, fmt.Errorf("judge #2 (try %d): %w", try, err)
	}
	round.Verdict = v2
	round.Accepted = v2.Correct
	return round, nil
}

func (s *Solver) exhausted(out Outcome, feedback string) Outcome {
	out.Accepted = false
	out.Text = feedback
	if out.Text == "" {
		out.Text = NoProofFound
	}
	return out
}
