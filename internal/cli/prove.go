package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/lemmata/internal/model"
	"github.com/ppiankov/lemmata/internal/solver"
	"github.com/ppiankov/lemmata/internal/store"
)

var (
	proveFile     string
	proveContext  string
	proveMaxTries int
	proveReplicas int
	proveOut      string
	proveRefine   bool
)

// proveCmd represents the prove command
var proveCmd = &cobra.Command{
	Use:   "prove [statement]",
	Short: "Prove a single statement through the double-judge gate",
	Long: `Generate a proof for one statement and accept it only when two
independent judges agree it is correct. Rejections feed back into the next
attempt until the try budget runs out.

With --replicas N, N independent gates race on the same statement. The first
accepted proof wins; if none is accepted a final judge picks the least
incorrect attempt for display.

Examples:
  lemmata prove "For all integers n, n^2 >= 0."
  lemmata prove --file conjecture.md --context lemmas.json --replicas 3
  lemmata prove --file conjecture.md --out results.json --refine`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProve,
}

func init() {
	rootCmd.AddCommand(proveCmd)

	proveCmd.Flags().StringVarP(&proveFile, "file", "f", "", "read the statement from a file")
	proveCmd.Flags().StringVar(&proveContext, "context", "", "seed file of trusted lemmas shown to the prover")
	proveCmd.Flags().IntVar(&proveMaxTries, "max-tries", 0, "attempt budget per replica (default from config)")
	proveCmd.Flags().IntVar(&proveReplicas, "replicas", 0, "independent gates racing on the statement (default from config)")
	proveCmd.Flags().StringVarP(&proveOut, "out", "o", "", "append an accepted result to this results file")
	proveCmd.Flags().BoolVar(&proveRefine, "refine", false, "refine an accepted proof before printing")
}

func runProve(cmd *cobra.Command, args []string) error {
	statement, err := statementArg(args, proveFile)
	if err != nil {
		return err
	}
	var lit *model.Literature
	if proveContext != "" {
		lemmas, err := store.ReadSeeds(proveContext)
		if err != nil {
			return fmt.Errorf("read context: %w", err)
		}
		l := model.Literature{}.WithSeedsFirst(lemmas, model.SourceSeed)
		lit = &l
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	maxTries := a.cfg.Solver.MaxTries
	if proveMaxTries > 0 {
		maxTries = proveMaxTries
	}
	replicas := a.cfg.Solver.Replicas
	if proveReplicas > 0 {
		replicas = proveReplicas
	}

	banner(os.Stderr, "Prove")
	fmt.Fprintf(os.Stderr, "Statement: %s\n", model.Truncate(statement, 100))
	fmt.Fprintf(os.Stderr, "Replicas:  %d, max tries: %d\n\n", replicas, maxTries)

	res, err := a.prove(ctx, statement, lit, maxTries, replicas)
	if err != nil {
		return err
	}

	if !res.Accepted {
		fmt.Fprintln(os.Stderr, failStyle.Render("✗ No proof accepted"))
		if res.BestAttempt != "" {
			fmt.Fprintln(os.Stderr, dimStyle.Render("Least incorrect attempt:"))
			fmt.Println(res.BestAttempt)
			fmt.Println()
		}
		fmt.Fprintln(os.Stderr, dimStyle.Render("Last feedback:"))
		fmt.Println(res.Text)
		return nil
	}

	result := model.ProvenResult{Statement: statement, Proof: res.Text}
	if proveRefine {
		result = a.research.Refiner().Apply(ctx, result)
	}
	fmt.Fprintf(os.Stderr, "%s after %d rounds\n\n", okStyle.Render("✓ Proof accepted"), res.Rounds)
	fmt.Println(result.Proof)

	if proveOut != "" {
		results, err := store.NewResults(proveOut, a.logger)
		if err != nil {
			return err
		}
		if err := results.Append(result); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "\nSaved to %s\n", results.Path())
	}
	return nil
}

// proveResult is the outcome of a prove command
type proveResult struct {
	Accepted    bool
	Text        string // Proof when accepted, last feedback otherwise
	BestAttempt string // Final judge's pick among failed replicas
	Rounds      int
}

// prove races replicas gates on statement. Without an acceptance the final
// judge chooses among the last proofs of every replica.
func (a *app) prove(ctx context.Context, statement model.Statement, lit *model.Literature,
	maxTries, replicas int) (*proveResult, error) {
	var (
		mu       sync.Mutex
		attempts []model.Proof
	)
	gates := solver.Replicas(replicas, func(replica int) solver.Gate {
		gate := a.research.Gate(maxTries, func(r solver.Round) {
			a.logger.Info("round finished",
				zap.Int("replica", replica),
				zap.Int("round", r.Number),
				zap.String("stage", string(r.Stage)),
				zap.Bool("accepted", r.Accepted))
		})
		return solver.GateFunc(func(ctx context.Context, s model.Statement, l *model.Literature) (solver.Outcome, error) {
			out, err := gate.Solve(ctx, s, l)
			if err == nil && strings.TrimSpace(out.LastProof) != "" {
				mu.Lock()
				attempts = append(attempts, out.LastProof)
				mu.Unlock()
			}
			return out, err
		})
	})

	out, err := solver.Race(ctx, gates, statement, lit, a.logger)
	if err != nil && !out.Accepted && len(attempts) == 0 {
		return nil, fmt.Errorf("prove: %w", err)
	}
	res := &proveResult{Accepted: out.Accepted, Text: out.Text, Rounds: len(out.Rounds)}
	if out.Accepted || len(attempts) == 0 {
		return res, nil
	}

	idx, err := solver.NewFinalJudge(a.completer, a.cfg.Pipeline.Judging).Choose(ctx, statement, attempts)
	if err != nil {
		a.logger.Warn("final judge failed", zap.Error(err))
		return res, nil
	}
	res.BestAttempt = attempts[idx]
	return res, nil
}

// statementArg takes the statement from the single argument or from file
func statementArg(args []string, file string) (model.Statement, error) {
	var text string
	switch {
	case len(args) == 1 && file != "":
		return "", errors.New("give the statement as an argument or with --file, not both")
	case len(args) == 1:
		text = args[0]
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read statement: %w", err)
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("a statement is required")
	}
	return text, nil
}
