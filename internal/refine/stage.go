package refine

import (
	"context"

	"go.uber.org/zap"

	"github.com/ppiankov/lemmata/internal/model"
	"github.com/ppiankov/lemmata/internal/solver"
	"github.com/ppiankov/lemmata/internal/worker"
)

// Stage applies Refine then Tighten to accepted results. It never fails: every
// error falls back to the last good pair.
type Stage struct {
	editor Editor
	judges solver.JudgeFactory // nil disables tightening
	logger *zap.Logger
}

// NewStage creates a refinement stage. judges re-assesses tightened results;
// pass nil to skip tightening.
func NewStage(editor Editor, judges solver.JudgeFactory, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{editor: editor, judges: judges, logger: logger.Named("refine")}
}

// Apply returns the refined (and possibly tightened) result
func (s *Stage) Apply(ctx context.Context, r model.ProvenResult) model.ProvenResult {
	logger := s.logger.With(zap.String("statement", model.Truncate(r.Statement, 80)))
	current := r

	refined, err := s.editor.Refine(ctx, current.Statement, current.Proof)
	switch {
	case err != nil:
		logger.Warn("refine failed, keeping original", zap.Error(err))
	case refined != nil:
		current = *refined
	}

	if s.judges == nil {
		return current
	}

	tight, err := s.editor.Tighten(ctx, current.Statement, current.Proof)
	if err != nil {
		logger.Warn("tighten failed, keeping refined result", zap.Error(err))
		return current
	}
	if tight == nil {
		return current
	}

	verdict, err := s.judges().Assess(ctx, tight.Statement, tight.Proof, nil)
	switch {
	case err != nil:
		logger.Warn("judge failed on tightened result, keeping refined result", zap.Error(err))
		return current
	case !verdict.Correct:
		logger.Info("tightened statement rejected by judge", zap.String("feedback", model.Truncate(verdict.Feedback, 200)))
		return current
	}
	logger.Info("tightened statement accepted", zap.String("tightened", model.Truncate(tight.Statement, 80)))
	return *tight
}

// Batch applies the stage to every result on the pool, preserving input order
func (s *Stage) Batch(ctx context.Context, pool *worker.Pool, results []model.ProvenResult) []model.ProvenResult {
	tasks := make([]worker.Task[int, model.ProvenResult], len(results))
	for i, r := range results {
		tasks[i] = worker.Task[int, model.ProvenResult]{Key: i, Run: func(ctx context.Context) (model.ProvenResult, error) {
			return s.Apply(ctx, r), nil
		}}
	}

	out := make([]model.ProvenResult, len(results))
	copy(out, results)
	worker.Stream(ctx, pool, tasks, func(res worker.Result[int, model.ProvenResult]) {
		if res.Err != nil {
			s.logger.Warn("refinement task failed", zap.Int("index", res.Key), zap.Error(res.Err))
			return
		}
		out[res.Key] = res.Value
	})
	return out
}
