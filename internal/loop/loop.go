// Package loop drives research iterations until the seed set reaches a
// fixpoint: each iteration's proved statements become seeds for the next.
package loop

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/lemmata/internal/metrics"
	"github.com/ppiankov/lemmata/internal/model"
	"github.com/ppiankov/lemmata/internal/research"
	"github.com/ppiankov/lemmata/internal/store"
)

// StopReason says why the loop ended
type StopReason string

const (
	StopNoNovel       StopReason = "no novel candidates"
	StopNoProofs      StopReason = "no proofs succeeded"
	StopMaxIterations StopReason = "iteration limit reached"
	StopCancelled     StopReason = "cancelled"
)

// Explorer runs literature review through refinement for a seed set
type Explorer interface {
	Explore(ctx context.Context, seeds []model.Statement, sink research.Sink) *research.Exploration
}

// Options tunes a Controller
type Options struct {
	SeedFile      string // Rewritten after every productive iteration; empty disables it
	MaxIterations int    // 0 = run to the fixpoint
	Logger        *zap.Logger
}

// Controller is the continuous research loop
type Controller struct {
	explorer Explorer
	results  *store.Results
	opts     Options
	logger   *zap.Logger
}

// Summary describes a finished loop
type Summary struct {
	Iterations int // Iterations started
	Proved     []model.ProvenResult
	Seeds      []model.Statement
	Reason     StopReason
}

// New creates a controller persisting accepted results to results
func New(explorer Explorer, results *store.Results, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{explorer: explorer, results: results, opts: opts, logger: logger.Named("loop")}
}

// Run iterates from seeds until an iteration keeps no novel candidate or
// proves nothing. Every accepted result is appended to the result store the
// moment it arrives, so progress survives a crash mid-iteration.
func (c *Controller) Run(ctx context.Context, seeds []model.Statement) (*Summary, error) {
	current := model.DedupeStatements(seeds)
	if len(current) == 0 {
		return nil, errors.New("at least one seed is required")
	}
	seen := make(map[model.Statement]bool, len(current))
	for _, s := range current {
		seen[s] = true
	}

	sum := &Summary{}
	for iteration := 1; ; iteration++ {
		if err := ctx.Err(); err != nil {
			sum.Reason = StopCancelled
			sum.Seeds = current
			return sum, err
		}
		if c.opts.MaxIterations > 0 && iteration > c.opts.MaxIterations {
			sum.Reason = StopMaxIterations
			break
		}

		sum.Iterations = iteration
		metrics.LoopIterations.Inc()
		logger := c.logger.With(zap.Int("iteration", iteration), zap.String("iteration_id", uuid.NewString()))
		logger.Info("iteration: start", zap.Int("seeds", len(current)))

		var proved []model.ProvenResult
		e := c.explorer.Explore(ctx, current, func(r model.ProvenResult) {
			c.persist(logger, r)
			proved = append(proved, r)
		})
		sum.Proved = append(sum.Proved, proved...)

		if len(e.Novel) == 0 {
			logger.Info("no novel predictions, stopping")
			sum.Reason = StopNoNovel
			break
		}
		if len(proved) == 0 {
			logger.Info("no proofs succeeded, stopping")
			sum.Reason = StopNoProofs
			break
		}

		added := 0
		for _, r := range proved {
			if !seen[r.Statement] {
				seen[r.Statement] = true
				current = append(current, r.Statement)
				added++
			}
		}
		logger.Info("iteration: done", zap.Int("proved", len(proved)), zap.Int("new_seeds", added))

		if c.opts.SeedFile != "" {
			if err := store.WriteSeeds(c.opts.SeedFile, current); err != nil {
				logger.Warn("failed to update seed file", zap.String("path", c.opts.SeedFile), zap.Error(err))
			} else {
				logger.Info("updated seed file", zap.String("path", c.opts.SeedFile), zap.Int("count", len(current)))
			}
		}
	}

	sum.Seeds = current
	c.logger.Info("loop finished",
		zap.String("reason", string(sum.Reason)),
		zap.Int("iterations", sum.Iterations),
		zap.Int("proved", len(sum.Proved)))
	return sum, nil
}

// persist appends r; failures are logged and never stop the loop
func (c *Controller) persist(logger *zap.Logger, r model.ProvenResult) {
	if c.results == nil {
		return
	}
	if err := c.results.Append(r); err != nil {
		logger.Error("failed to persist result",
			zap.String("statement", model.Truncate(r.Statement, 80)),
			zap.Error(fmt.Errorf("append to %s: %w", c.results.Path(), err)))
		return
	}
	logger.Info("proof accepted, persisted", zap.String("path", c.results.Path()))
}
