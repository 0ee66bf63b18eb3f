package cli

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ppiankov/lemmata/internal/server"
	"github.com/ppiankov/lemmata/internal/store"
)

var (
	serveAddr    string
	serveResults string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve research, proving and solving over HTTP",
	Long: `Start an HTTP server exposing:

  POST /v1/research   {"seeds": [...]}
  POST /v1/prove      {"statement": "..."}
  POST /v1/solve      {"problem": "...", "max_iterations": 12}
  GET  /healthz
  GET  /metrics       Prometheus metrics

Examples:
  lemmata serve --addr :8080 --results results.json`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringVar(&serveResults, "results", "", "append accepted research results to this JSON file")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	deps := server.Deps{
		Research: a.research,
		Prover:   a.research.Gate(a.cfg.Solver.MaxTries, nil),
	}
	if serveResults != "" {
		results, err := store.NewResults(serveResults, a.logger)
		if err != nil {
			return err
		}
		deps.Results = results
	}

	fmt.Fprintf(os.Stderr, "%s listening on %s\n", titleStyle.Render("lemmata"), serveAddr)
	return server.New(deps, a.logger).ListenAndServe(ctx, serveAddr)
}
