package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/lemmata/internal/config"
	"github.com/ppiankov/lemmata/internal/store"
	"github.com/ppiankov/lemmata/internal/worker"
)

var refineOut string

// refineCmd represents the refine command
var refineCmd = &cobra.Command{
	Use:   "refine <results.json>",
	Short: "Refine every proof in a results file",
	Long: `Polish the proofs in a results file and try to tighten each statement.
A tightened statement is kept only if a fresh judge accepts it; any failure
keeps the previous version. Order is preserved.

Examples:
  lemmata refine results.json
  lemmata refine results.json --out refined.json`,
	Args: cobra.ExactArgs(1),
	RunE: runRefine,
}

func init() {
	rootCmd.AddCommand(refineCmd)

	refineCmd.Flags().StringVarP(&refineOut, "out", "o", "", "write refined results here (default: overwrite the input)")
}

func runRefine(cmd *cobra.Command, args []string) error {
	in := args[0]
	results, err := store.ReadResults(in)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("no results in %s", in)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	banner(os.Stderr, "Refine")
	fmt.Fprintf(os.Stderr, "Results: %d from %s\n\n", len(results), in)

	pool := worker.NewPool(config.StageRefinement, a.cfg.Workers.Refinement, a.logger)
	refined := a.research.Refiner().Batch(ctx, pool, results)

	changed := 0
	for i := range refined {
		if refined[i] != results[i] {
			changed++
		}
	}

	out := refineOut
	if out == "" {
		out = in
	}
	if err := store.WriteResults(out, refined); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s %d of %d changed, written to %s\n",
		okStyle.Render("✓"), changed, len(refined), out)
	return nil
}
