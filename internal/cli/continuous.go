package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/lemmata/internal/loop"
	"github.com/ppiankov/lemmata/internal/store"
)

var (
	continuousSeedsFile   string
	continuousSeedOut     string
	continuousOut         string
	continuousMaxIter     int
	continuousMetricsAddr string
)

// continuousCmd represents the continuous command
var continuousCmd = &cobra.Command{
	Use:   "continuous [seed statements...]",
	Short: "Iterate research until no new results are proved",
	Long: `Run research passes where each pass's proved statements become seeds for
the next. Every accepted result is appended to the results file the moment it
is proved, so an interrupted run keeps its progress.

The loop stops when an iteration keeps no novel candidate or proves nothing.
There is no iteration cap unless --max-iterations is given.

Examples:
  lemmata continuous --seeds-file seeds.txt --out results.json
  lemmata continuous --seeds-file seeds.txt --seed-out seeds.json --metrics-addr :9090`,
	RunE: runContinuous,
}

func init() {
	rootCmd.AddCommand(continuousCmd)

	continuousCmd.Flags().StringVarP(&continuousSeedsFile, "seeds-file", "s", "", "read initial seeds from a file")
	continuousCmd.Flags().StringVar(&continuousSeedOut, "seed-out", "", "rewrite the growing seed set here after each productive iteration")
	continuousCmd.Flags().StringVarP(&continuousOut, "out", "o", "results.json", "append accepted results to this JSON file")
	continuousCmd.Flags().IntVar(&continuousMaxIter, "max-iterations", 0, "stop after this many iterations (0 = run to fixpoint)")
	continuousCmd.Flags().StringVar(&continuousMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
}

func runContinuous(cmd *cobra.Command, args []string) error {
	seeds, err := seedsFrom(args, continuousSeedsFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	results, err := store.NewResults(continuousOut, a.logger)
	if err != nil {
		return err
	}

	if continuousMetricsAddr != "" {
		stop := serveMetrics(ctx, continuousMetricsAddr, a.logger)
		defer stop()
	}

	banner(os.Stderr, "Continuous research")
	fmt.Fprintf(os.Stderr, "Seeds:   %d\n", len(seeds))
	fmt.Fprintf(os.Stderr, "Results: %s\n\n", results.Path())

	controller := loop.New(a.research, results, loop.Options{
		SeedFile:      continuousSeedOut,
		MaxIterations: continuousMaxIter,
		Logger:        a.logger,
	})
	sum, err := controller.Run(ctx, seeds)
	if sum != nil {
		printLoopSummary(sum)
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, warnStyle.Render("Interrupted; results proved so far are saved."))
		return nil
	}
	return err
}

func printLoopSummary(sum *loop.Summary) {
	fmt.Fprintln(os.Stderr)
	banner(os.Stderr, "Loop finished")
	fmt.Fprintf(os.Stderr, "Iterations: %d\n", sum.Iterations)
	fmt.Fprintf(os.Stderr, "Proved:     %d\n", len(sum.Proved))
	fmt.Fprintf(os.Stderr, "Seeds:      %d\n", len(sum.Seeds))
	fmt.Fprintf(os.Stderr, "Stopped:    %s\n\n", sum.Reason)
	printProved(os.Stderr, sum.Proved)
}

// serveMetrics exposes the default Prometheus registry until the returned
// function is called
func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
