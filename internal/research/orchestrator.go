// Package research runs the discovery pipeline: literature review,
// prediction, novelty filtering, proving, refinement and report compilation.
// Every stage degrades to an explicit fallback instead of aborting the run.
package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/lemmata/internal/cache"
	"github.com/ppiankov/lemmata/internal/completion"
	"github.com/ppiankov/lemmata/internal/config"
	"github.com/ppiankov/lemmata/internal/model"
	"github.com/ppiankov/lemmata/internal/refine"
	"github.com/ppiankov/lemmata/internal/solver"
	"github.com/ppiankov/lemmata/internal/sources"
	"github.com/ppiankov/lemmata/internal/tools"
	"github.com/ppiankov/lemmata/internal/worker"
)

const (
	// ProblemLiteratureCap bounds the literature collected for an open problem
	ProblemLiteratureCap = 30

	MinSolveIterations     = 1
	MaxSolveIterations     = 20
	DefaultSolveIterations = 12
)

const noveltyNamespace = "novelty"

// Sink receives each accepted, refined result as soon as it is ready. It is
// called from one goroutine at a time.
type Sink func(model.ProvenResult)

// Options carries the optional collaborators of an Orchestrator
type Options struct {
	Tools   *tools.Registry  // Scratch and validation tools; nil disables tool use
	Sources *sources.Checker // nil skips literature source checks
	Cache   cache.Store      // Novelty verdict memo; nil disables it
	Logger  *zap.Logger
}

// Orchestrator runs research over one immutable configuration. It keeps no
// per-run state, so one value can serve several runs.
type Orchestrator struct {
	completer completion.Completer
	cfg       config.Config
	tools     *tools.Registry
	sources   *sources.Checker
	verdicts  *cache.Typed[NoveltyVerdict]
	refiner   *refine.Stage
	logger    *zap.Logger

	noveltyPool *worker.Pool
	provingPool *worker.Pool
}

// New creates an orchestrator
func New(c completion.Completer, cfg config.Config, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("research")

	editor := refine.NewRefiner(c, cfg.Pipeline.Refinement, logger)
	return &Orchestrator{
		completer:   c,
		cfg:         cfg,
		tools:       opts.Tools,
		sources:     opts.Sources,
		verdicts:    cache.NewTyped[NoveltyVerdict](opts.Cache, noveltyNamespace, cfg.Cache.TTL()),
		refiner:     refine.NewStage(editor, solver.JudgesFor(c, cfg.Pipeline.Judging), logger),
		logger:      logger,
		noveltyPool: worker.NewPool(config.StageNovelty, cfg.Workers.Novelty, logger),
		provingPool: worker.NewPool(config.StageProving, cfg.Workers.Proving, logger),
	}
}

// Exploration is everything one pass of stages 1 to 5 produced
type Exploration struct {
	RunID      string
	Literature model.Literature // Includes known results folded in by the novelty filter
	Candidates []model.Statement
	Novel      []model.Statement
	Results    []model.ProvenResult // In candidate order
	Stages     []StageStatus
}

// StageStatus summarises one stage of a run
type StageStatus struct {
	Stage  string
	Status Status
	Err    error
}

// Degraded reports whether any stage fell back to a substitute value
func (e *Exploration) Degraded() bool {
	for _, s := range e.Stages {
		if s.Status != StatusOk {
			return true
		}
	}
	return false
}

func record[T any](e *Exploration, r StageResult[T]) T {
	e.Stages = append(e.Stages, StageStatus{Stage: r.Stage, Status: r.Status, Err: r.Err})
	return r.Value
}

// Explore runs literature review through refinement for seeds. Each accepted
// result reaches sink (if non-nil) as soon as it has been refined.
func (o *Orchestrator) Explore(ctx context.Context, seeds []model.Statement, sink Sink) *Exploration {
	e := &Exploration{RunID: uuid.NewString()}
	logger := o.logger.With(zap.String("run_id", e.RunID))
	logger.Info("exploration: start", zap.Int("seeds", len(seeds)))

	// 1. Literature
	lit := record(e, o.Literature(ctx, seeds))

	// 2. Prediction
	pred := record(e, o.Predict(ctx, lit))
	e.Candidates = pred.Candidates

	// 3. Novelty
	filtered := record(e, o.FilterNovel(ctx, lit, pred.Candidates))
	e.Literature = filtered.Literature
	e.Novel = filtered.Novel

	// 4-5. Proving and refinement
	e.Results = record(e, o.Prove(ctx, e.Literature, e.Novel, sink))

	logger.Info("exploration: done",
		zap.Int("candidates", len(e.Candidates)),
		zap.Int("novel", len(e.Novel)),
		zap.Int("proved", len(e.Results)),
		zap.Bool("degraded", e.Degraded()))
	return e
}

// Result is a full research pass: Explore followed by report compilation
type Result struct {
	*Exploration
	Report string
}

// Run explores seeds and compiles the report
func (o *Orchestrator) Run(ctx context.Context, seeds []model.Statement, sink Sink) *Result {
	e := o.Explore(ctx, seeds, sink)
	report := record(e, o.Report(ctx, e.Literature, e.Results))
	return &Result{Exploration: e, Report: report}
}

// Prove runs one verification gate per candidate on the proving pool. A
// failing candidate never affects its siblings. Accepted results are refined
// before they are handed to sink.
func (o *Orchestrator) Prove(ctx context.Context, lit model.Literature, candidates []model.Statement,
	sink Sink) StageResult[[]model.ProvenResult] {
	o.logger.Info("proving: start", zap.Int("candidates", len(candidates)))

	tasks := make([]worker.Task[model.Statement, *model.ProvenResult], len(candidates))
	for i, c := range candidates {
		tasks[i] = worker.Task[model.Statement, *model.ProvenResult]{Key: c, Run: func(ctx context.Context) (*model.ProvenResult, error) {
			out, err := o.solve(ctx, c, &lit, o.cfg.Solver.ResearchMaxTries)
			if err != nil {
				return nil, err
			}
			if !out.Accepted {
				return nil, nil
			}
			refined := o.refiner.Apply(ctx, model.ProvenResult{Statement: c, Proof: out.Text})
			return &refined, nil
		}}
	}

	accepted := make(map[model.Statement]model.ProvenResult, len(candidates))
	worker.Stream(ctx, o.provingPool, tasks, func(r worker.Result[model.Statement, *model.ProvenResult]) {
		switch {
		case r.Err != nil:
			o.logger.Warn("prover failed for a statement",
				zap.String("statement", model.Truncate(r.Key, 80)),
				zap.Error(r.Err))
		case r.Value == nil:
			o.logger.Info("proving failed", zap.String("statement", model.Truncate(r.Key, 80)))
		default:
			o.logger.Info("proving succeeded", zap.String("statement", model.Truncate(r.Key, 80)))
			accepted[r.Key] = *r.Value
			if sink != nil {
				sink(*r.Value)
			}
		}
	})

	results := make([]model.ProvenResult, 0, len(accepted))
	for _, c := range candidates {
		if r, ok := accepted[c]; ok {
			results = append(results, r)
		}
	}
	o.logger.Info("proving: done", zap.Int("accepted", len(results)))
	return Ok(config.StageProving, results)
}

// Solution is the outcome of an open-problem attempt
type Solution struct {
	Solved     bool
	Text       string // Proof when solved, last feedback otherwise
	Literature model.Literature
	Iterations int
	Rounds     []solver.Round
}

// Solve collects literature around an open problem and runs the verification
// gate on the problem itself. iterations is clamped to [1, 20].
func (o *Orchestrator) Solve(ctx context.Context, problem model.Statement, iterations int) (*Solution, error) {
	problem = strings.TrimSpace(problem)
	if problem == "" {
		return nil, errors.New("problem statement is required")
	}
	iterations = max(MinSolveIterations, min(iterations, MaxSolveIterations))

	logger := o.logger.With(zap.String("run_id", uuid.NewString()))
	logger.Info("open problem: collecting literature", zap.Int("iterations", iterations))

	lit := o.ProblemLiterature(ctx, problem).Value
	out, err := o.solve(ctx, problem, &lit, iterations)
	if err != nil {
		return nil, fmt.Errorf("solve: %w", err)
	}
	logger.Info("open problem: done", zap.Bool("solved", out.Accepted), zap.Int("rounds", len(out.Rounds)))
	return &Solution{
		Solved:     out.Accepted,
		Text:       out.Text,
		Literature: lit,
		Iterations: iterations,
		Rounds:     out.Rounds,
	}, nil
}

// solve runs one gate, or races several replicas when configured
func (o *Orchestrator) solve(ctx context.Context, statement model.Statement, lit *model.Literature,
	maxTries int) (solver.Outcome, error) {
	if o.cfg.Solver.Replicas <= 1 {
		return o.Gate(maxTries, nil).Solve(ctx, statement, lit)
	}
	gates := solver.Replicas(o.cfg.Solver.Replicas, func(int) solver.Gate { return o.Gate(maxTries, nil) })
	return solver.Race(ctx, gates, statement, lit, o.logger)
}

// Gate builds a fresh verification gate over the proving and judging stages.
// onRound, if set, observes every round.
func (o *Orchestrator) Gate(maxTries int, onRound func(solver.Round)) solver.Gate {
	scratch := o.tools.Subset(tools.RunPythonTool, tools.RunGoTool)
	prover := solver.NewProver(o.completer, o.cfg.Pipeline.Proving, scratch, o.logger)
	return solver.New(prover, solver.JudgesFor(o.completer, o.cfg.Pipeline.Judging), solver.Options{
		MaxTries: maxTries,
		Logger:   o.logger,
		OnRound:  onRound,
	})
}

// Refiner returns the refinement stage applied to accepted results
func (o *Orchestrator) Refiner() *refine.Stage {
	return o.refiner
}
