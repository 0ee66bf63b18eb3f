// Package metrics declares the Prometheus collectors shared by the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BackendCalls counts generation calls per backend and outcome
	BackendCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lemmata_backend_calls_total",
			Help: "Total generation calls issued to backends",
		},
		[]string{"backend", "outcome"}, // outcome: ok, timeout, connection, rate_limited, server, validation, fatal
	)

	// BackendLatency tracks generation call duration
	BackendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lemmata_backend_call_duration_seconds",
			Help:    "Generation call latency",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		},
		[]string{"backend"},
	)

	// Retries counts transient-failure retries in the completion adapter
	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lemmata_completion_retries_total",
			Help: "Retries after retryable backend failures",
		},
		[]string{"backend", "kind"},
	)

	// RepairTurns counts schema repair turns
	RepairTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lemmata_completion_repair_turns_total",
			Help: "Repair turns issued after unparseable output",
		},
		[]string{"backend"},
	)

	// ToolCalls counts tool executions
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lemmata_tool_calls_total",
			Help: "Tool invocations handled by the tool bridge",
		},
		[]string{"tool", "outcome"}, // outcome: ok, error, unknown
	)

	// SolverRounds counts verification gate rounds by how they ended
	SolverRounds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lemmata_solver_rounds_total",
			Help: "Verification gate rounds",
		},
		[]string{"outcome"}, // outcome: accepted, judge1_rejected, judge2_rejected
	)

	// GateOutcomes counts finished verification gates
	GateOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lemmata_solver_outcomes_total",
			Help: "Verification gate terminal states",
		},
		[]string{"state"}, // state: accepted, exhausted, error
	)

	// NoveltyVerdicts counts novelty filter decisions
	NoveltyVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lemmata_novelty_verdicts_total",
			Help: "Novelty filter decisions",
		},
		[]string{"verdict"}, // verdict: novel, known, failed, cached
	)

	// StageOutcomes counts orchestrator stage results
	StageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lemmata_stage_outcomes_total",
			Help: "Research stage outcomes",
		},
		[]string{"stage", "status"}, // status: ok, degraded, fatal
	)

	// LoopIterations counts continuous loop iterations
	LoopIterations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lemmata_loop_iterations_total",
			Help: "Continuous loop iterations started",
		},
	)

	// ResultsPersisted counts results appended to durable storage
	ResultsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lemmata_results_persisted_total",
			Help: "Proven results appended to the result store",
		},
		[]string{"mode"}, // mode: append, fallback
	)

	// PoolInFlight tracks running tasks per worker pool
	PoolInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lemmata_pool_in_flight",
			Help: "Tasks currently running in a bounded worker pool",
		},
		[]string{"pool"},
	)
)
