package research

import "github.com/ppiankov/lemmata/internal/metrics"

// Status is the outcome class of one stage
type Status int

// Stages never fail outright: a failure always substitutes a fallback value.
const (
	StatusOk       Status = iota // Stage produced its value
	StatusDegraded               // Stage failed and substituted a fallback value
)

func (s Status) String() string {
	if s == StatusOk {
		return "ok"
	}
	return "degraded"
}

// StageResult carries a stage value together with how it was obtained.
// Degraded results hold the fallback value and the error that forced it.
type StageResult[T any] struct {
	Stage  string
	Status Status
	Value  T
	Err    error
}

// Ok wraps a successful stage value
func Ok[T any](stage string, v T) StageResult[T] {
	metrics.StageOutcomes.WithLabelValues(stage, StatusOk.String()).Inc()
	return StageResult[T]{Stage: stage, Status: StatusOk, Value: v}
}

// Degraded wraps a fallback value substituted after err
func Degraded[T any](stage string, fallback T, err error) StageResult[T] {
	metrics.StageOutcomes.WithLabelValues(stage, StatusDegraded.String()).Inc()
	return StageResult[T]{Stage: stage, Status: StatusDegraded, Value: fallback, Err: err}
}

// OK reports whether the stage completed without degradation
func (r StageResult[T]) OK() bool {
	return r.Status == StatusOk
}
