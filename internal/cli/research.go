package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/lemmata/internal/model"
	"github.com/ppiankov/lemmata/internal/research"
	"github.com/ppiankov/lemmata/internal/store"
)

var (
	researchSeedsFile string
	researchOut       string
	researchReport    string
)

// researchCmd represents the research command
var researchCmd = &cobra.Command{
	Use:   "research [seed statements...]",
	Short: "Run one research pass from seed results",
	Long: `Review the literature around the seeds, predict likely-new results, drop
the known ones, prove the rest through the double-judge gate, refine accepted
proofs and compile a markdown report.

Stages that fail degrade instead of aborting: the run always ends with a
report, even if it is a placeholder.

Examples:
  lemmata research "Every finite group of prime order is cyclic."
  lemmata research --seeds-file seeds.txt --out results.json --report report.md`,
	RunE: runResearch,
}

func init() {
	rootCmd.AddCommand(researchCmd)

	researchCmd.Flags().StringVarP(&researchSeedsFile, "seeds-file", "s", "", "read seeds from a file (JSON list, quoted list or blank-line blocks)")
	researchCmd.Flags().StringVarP(&researchOut, "out", "o", "", "append accepted results to this JSON file as they are proved")
	researchCmd.Flags().StringVarP(&researchReport, "report", "r", "", "write the report here instead of stdout")
}

// seedsFrom collects seeds from arguments and an optional seed file
func seedsFrom(args []string, file string) ([]model.Statement, error) {
	seeds := append([]model.Statement{}, args...)
	if file != "" {
		fromFile, err := store.ReadSeeds(file)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, fromFile...)
	}
	seeds = model.DedupeStatements(seeds)
	if len(seeds) == 0 {
		return nil, errors.New("at least one seed statement is required")
	}
	return seeds, nil
}

func runResearch(cmd *cobra.Command, args []string) error {
	seeds, err := seedsFrom(args, researchSeedsFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var sink research.Sink
	if researchOut != "" {
		results, err := store.NewResults(researchOut, a.logger)
		if err != nil {
			return err
		}
		sink = func(r model.ProvenResult) {
			if err := results.Append(r); err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", warnStyle.Render("could not save result:"), err)
			}
		}
	}

	banner(os.Stderr, "Research")
	fmt.Fprintf(os.Stderr, "Seeds: %d\n\n", len(seeds))

	run := a.research.Run(ctx, seeds, sink)

	printExploration(os.Stderr, run.Exploration)
	printProved(os.Stderr, run.Results)
	fmt.Fprintln(os.Stderr)

	if researchReport == "" {
		fmt.Println(run.Report)
		return nil
	}
	if err := os.WriteFile(researchReport, []byte(run.Report+"\n"), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Report written to %s\n", researchReport)
	return nil
}
