// Package worker provides the bounded worker pool shared by every fan-out stage
// and a keyed rate limiter.
package worker

import (
	"context"
	"fmt"

	"github.com/ppiankov/lemmata/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pool runs tasks with at most Workers() of them in flight. A Pool holds no
// goroutines between calls, so one value can be reused across stages and runs.
type Pool struct {
	name    string
	workers int
	logger  *zap.Logger
}

// Task is one unit of work identified by a caller-chosen key
type Task[K comparable, V any] struct {
	Key K
	Run func(ctx context.Context) (V, error)
}

// Result is the outcome of one Task
type Result[K comparable, V any] struct {
	Key   K
	Value V
	Err   error
}

// NewPool creates a pool with the given size. Sizes below 1 become 1.
func NewPool(name string, workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{name: name, workers: workers, logger: logger}
}

// Workers returns the concurrency bound
func (p *Pool) Workers() int {
	return p.workers
}

// Stream runs every task and calls handle on the calling goroutine for each
// result as it completes. Completion order is unrelated to submission order;
// callers reassemble by Key. A failing or panicking task never affects its
// siblings. Tasks not yet started when ctx is done report ctx.Err().
func Stream[K comparable, V any](ctx context.Context, p *Pool, tasks []Task[K, V], handle func(Result[K, V])) {
	results := make(chan Result[K, V], len(tasks))

	go func() {
		var g errgroup.Group
		g.SetLimit(p.workers)
		for _, t := range tasks {
			g.Go(func() error {
				results <- execute(ctx, p, t)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	for r := range results {
		if handle != nil {
			handle(r)
		}
	}
}

// Run executes every task and returns the results in completion order.
func Run[K comparable, V any](ctx context.Context, p *Pool, tasks []Task[K, V]) []Result[K, V] {
	out := make([]Result[K, V], 0, len(tasks))
	Stream(ctx, p, tasks, func(r Result[K, V]) {
		out = append(out, r)
	})
	return out
}

func execute[K comparable, V any](ctx context.Context, p *Pool, t Task[K, V]) (res Result[K, V]) {
	res.Key = t.Key
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	gauge := metrics.PoolInFlight.WithLabelValues(p.name)
	gauge.Inc()
	defer gauge.Dec()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				zap.String("pool", p.name),
				zap.Any("key", t.Key),
				zap.Any("panic", r))
			res.Err = fmt.Errorf("task %v panicked: %v", t.Key, r)
		}
	}()

	res.Value, res.Err = t.Run(ctx)
	return res
}
