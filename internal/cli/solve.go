package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/lemmata/internal/research"
)

var (
	solveFile       string
	solveIterations int
)

// solveCmd represents the solve command
var solveCmd = &cobra.Command{
	Use:   "solve [problem]",
	Short: "Attempt an open problem",
	Long: `Collect literature relevant to an open problem, then run the
double-judge gate on the problem itself for up to --iterations attempts
(clamped to 1..20).

Examples:
  lemmata solve "Is every even integer greater than 2 a sum of two primes?"
  lemmata solve --file problem.md --iterations 20`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSolve,
}

func init() {
	rootCmd.AddCommand(solveCmd)

	solveCmd.Flags().StringVarP(&solveFile, "file", "f", "", "read the problem from a file")
	solveCmd.Flags().IntVarP(&solveIterations, "iterations", "n", research.DefaultSolveIterations, "attempt budget (1..20)")
}

func runSolve(cmd *cobra.Command, args []string) error {
	problem, err := statementArg(args, solveFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	banner(os.Stderr, "Open problem")
	sol, err := a.research.Solve(ctx, problem, solveIterations)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Related results: %d\n", len(sol.Literature.Items))
	for _, it := range sol.Literature.Items {
		fmt.Fprintf(os.Stderr, "  %s\n", dimStyle.Render(it.String()))
	}
	fmt.Fprintf(os.Stderr, "Attempts: %d of %d\n\n", len(sol.Rounds), sol.Iterations)

	if sol.Solved {
		fmt.Fprintln(os.Stderr, okStyle.Render("✓ Solved"))
	} else {
		fmt.Fprintln(os.Stderr, failStyle.Render("✗ Not solved; last feedback follows"))
	}
	fmt.Println(sol.Text)
	return nil
}
