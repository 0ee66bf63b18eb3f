package solver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/lemmata/internal/model"
	"github.com/ppiankov/lemmata/internal/worker"
)

// Race runs every gate on the same statement concurrently. The first accepted
// outcome in completion order wins; slower replicas are not cancelled and run
// to completion. Without an acceptance, the outcome with the longest feedback
// is returned. An error is returned only if every replica failed.
func Race(ctx context.Context, gates []Gate, statement model.Statement, lit *model.Literature,
	logger *zap.Logger) (Outcome, error) {
	if len(gates) == 0 {
		return Outcome{}, errors.New("race: no gates")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	tasks := make([]worker.Task[int, Outcome], len(gates))
	for i, g := range gates {
		tasks[i] = worker.Task[int, Outcome]{Key: i, Run: func(ctx context.Context) (Outcome, error) {
			return g.Solve(ctx, statement, lit)
		}}
	}

	var (
		winner   *Outcome
		fallback *Outcome
		errs     []error
	)
	pool := worker.NewPool("replicas", len(gates), logger)
	worker.Stream(ctx, pool, tasks, func(r worker.Result[int, Outcome]) {
		if r.Err != nil {
			logger.Warn("replica failed", zap.Int("replica", r.Key), zap.Error(r.Err))
			errs = append(errs, fmt.Errorf("replica %d: %w", r.Key, r.Err))
			return
		}
		out := r.Value
		logger.Info("replica finished", zap.Int("replica", r.Key), zap.Bool("accepted", out.Accepted))
		switch {
		case out.Accepted:
			if winner == nil {
				winner = &out
			}
		case fallback == nil || len(out.Text) > len(fallback.Text):
			fallback = &out
		}
	})

	if winner != nil {
		return *winner, nil
	}
	if fallback != nil {
		return *fallback, nil
	}
	return Outcome{Text: NoProofFound}, errors.Join(errs...)
}

// Replicas builds n gates from a constructor, one independent gate per replica
func Replicas(n int, build func(replica int) Gate) []Gate {
	if n < 1 {
		n = 1
	}
	gates := make([]Gate, n)
	for i := range gates {
		gates[i] = build(i)
	}
	return gates
}
