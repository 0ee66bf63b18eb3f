// Package server exposes research, proving and open-problem solving over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ppiankov/lemmata/internal/model"
	"github.com/ppiankov/lemmata/internal/research"
	"github.com/ppiankov/lemmata/internal/solver"
	"github.com/ppiankov/lemmata/internal/store"
)

const requestIDHeader = "X-Request-ID"

// Researcher is the orchestrator capability the server needs
type Researcher interface {
	Run(ctx context.Context, seeds []model.Statement, sink research.Sink) *research.Result
	Solve(ctx context.Context, problem model.Statement, iterations int) (*research.Solution, error)
}

// Deps are the collaborators behind the routes
type Deps struct {
	Research Researcher
	Prover   solver.Gate
	Results  *store.Results // Accepted research results are appended here when set
}

// Server routes HTTP requests to the research pipeline
type Server struct {
	engine *gin.Engine
	deps   Deps
	logger *zap.Logger
}

// New builds the router
func New(deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{engine: gin.New(), deps: deps, logger: logger.Named("server")}

	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")
	v1.POST("/research", s.handleResearch)
	v1.POST("/prove", s.handleProve)
	v1.POST("/solve", s.handleSolve)
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleResearch handles POST /v1/research
func (s *Server) handleResearch(c *gin.Context) {
	var req ResearchRequest
	if !bind(c, &req) {
		return
	}

	seeds := trimAll(req.Seeds)
	if len(seeds) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "seeds are blank", Code: "INVALID_REQUEST"})
		return
	}

	var sink research.Sink
	if s.deps.Results != nil {
		sink = func(r model.ProvenResult) {
			if err := s.deps.Results.Append(r); err != nil {
				s.logger.Error("failed to persist result", zap.Error(err))
			}
		}
	}
	res := s.deps.Research.Run(c.Request.Context(), seeds, sink)
	c.JSON(http.StatusOK, researchResponse(res))
}

// handleProve handles POST /v1/prove
func (s *Server) handleProve(c *gin.Context) {
	var req ProveRequest
	if !bind(c, &req) {
		return
	}

	out, err := s.deps.Prover.Solve(c.Request.Context(), strings.TrimSpace(req.Statement), nil)
	if err != nil {
		s.logger.Warn("prove failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error(), Code: "PROVE_FAILED"})
		return
	}
	resp := ProveResponse{Accepted: out.Accepted, Rounds: len(out.Rounds)}
	if out.Accepted {
		resp.Proof = out.Text
	} else {
		resp.Feedback = out.Text
	}
	c.JSON(http.StatusOK, resp)
}

// handleSolve handles POST /v1/solve
func (s *Server) handleSolve(c *gin.Context) {
	var req SolveRequest
	if !bind(c, &req) {
		return
	}
	if req.MaxIterations == 0 {
		req.MaxIterations = research.DefaultSolveIterations
	}

	sol, err := s.deps.Research.Solve(c.Request.Context(), req.Problem, req.MaxIterations)
	if err != nil {
		s.logger.Warn("solve failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error(), Code: "SOLVE_FAILED"})
		return
	}
	resp := SolveResponse{
		Status:        "failed",
		Annotations:   sol.Literature.Notation,
		Related:       nonNil(sol.Literature.Items),
		MaxIterations: sol.Iterations,
	}
	if sol.Solved {
		resp.Status = "solved"
		resp.Proof = sol.Text
	} else {
		resp.Feedback = sol.Text
	}
	c.JSON(http.StatusOK, resp)
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return false
	}
	return true
}

func trimAll(in []string) []model.Statement {
	out := make([]model.Statement, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
