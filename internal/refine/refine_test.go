package refine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/lemmata/internal/completion"
	"github.com/ppiankov/lemmata/internal/config"
	"github.com/ppiankov/lemmata/internal/llm"
	"github.com/ppiankov/lemmata/internal/llm/llmtest"
	"github.com/ppiankov/lemmata/internal/model"
	"github.com/ppiankov/lemmata/internal/solver"
	"github.com/ppiankov/lemmata/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func refinerWith(t *testing.T, replies ...llmtest.Reply) (*Refiner, *llmtest.Backend) {
	t.Helper()
	b := llmtest.New("fake", true, replies...)
	a := completion.New(llm.NewRegistry(b), completion.Options{
		Retry:       completion.RetryPolicy{MaxAttempts: 1},
		RepairTurns: 1,
		Logger:      zaptest.NewLogger(t),
		Sleep:       func(ctx context.Context, d time.Duration) error { return nil },
	})
	stage := config.StageConfig{Backend: "fake", Model: "m", Reasoning: "medium", TimeoutSeconds: 60}
	return NewRefiner(a, stage, zaptest.NewLogger(t)), b
}

func TestStripProvisional(t *testing.T) {
	tests := map[string]string{
		"For all n, n^2 >= 0 (Conjecture)":        "For all n, n^2 >= 0",
		"For all n, n^2 >= 0 (Conjecture 4.2).":   "For all n, n^2 >= 0.",
		"Conjecture: every even n > 2 is a sum":   "every even n > 2 is a sum",
		"Conjecture 3. Every prime p > 2 is odd":  "Every prime p > 2 is odd",
		"**Conjecture (Goldbach).** Every even n": "Every even n",
		"For x in (0,1), x^2 < x":                 "For x in (0,1), x^2 < x",
		"Conjectures about primes are hard":       "Conjectures about primes are hard",
		"The bound holds (conjectured by Erdős)":  "The bound holds",
		"  Already clean statement  ":             "Already clean statement",
	}
	for in, want := range tests {
		assert.Equal(t, want, StripProvisional(in), in)
	}
}

func TestRefine_Unchanged(t *testing.T) {
	r, _ := refinerWith(t, llmtest.Text(`{"new_statement":"S","new_proof_markdown":"P","changed":false}`))
	got, err := r.Refine(context.Background(), "S", "P")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRefine_ChangedButIdentical(t *testing.T) {
	r, _ := refinerWith(t, llmtest.Text(`{"new_statement":"S","new_proof_markdown":"P","changed":true}`))
	got, err := r.Refine(context.Background(), "S", "P")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRefine_Idempotent(t *testing.T) {
	r, _ := refinerWith(t,
		llmtest.Text(`{"new_statement":"For all n, n^2 >= 0","new_proof_markdown":"P'","changed":true}`),
		llmtest.Text(`{"new_statement":"For all n, n^2 >= 0","new_proof_markdown":"P'","changed":false}`),
	)

	first, err := r.Refine(context.Background(), "For all n, n^2 >= 0 (Conjecture)", "P")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "For all n, n^2 >= 0", first.Statement)

	second, err := r.Refine(context.Background(), first.Statement, first.Proof)
	require.NoError(t, err)
	assert.Nil(t, second, "refining a refined result is a no-op")
}

func TestRefine_StripsMarkersLocally(t *testing.T) {
	r, _ := refinerWith(t, llmtest.Text(`{"new_statement":"","new_proof_markdown":"","changed":false}`))
	got, err := r.Refine(context.Background(), "n^2 >= 0 (Conjecture 1)", "P")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.ProvenResult{Statement: "n^2 >= 0", Proof: "P"}, *got)
}

func TestTighten(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  *model.ProvenResult
	}{
		{name: "declined", reply: `{"can_tighten":false,"updated_statement":"","updated_proof":""}`},
		{name: "empty proof", reply: `{"can_tighten":true,"updated_statement":"T","updated_proof":"  "}`},
		{name: "empty statement", reply: `{"can_tighten":true,"updated_statement":"","updated_proof":"Q"}`},
		{
			name:  "tightened",
			reply: `{"can_tighten":true,"updated_statement":" T ","updated_proof":"Q"}`,
			want:  &model.ProvenResult{Statement: "T", Proof: "Q"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := refinerWith(t, llmtest.Text(tt.reply))
			got, err := r.Tighten(context.Background(), "S", "P")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type stubEditor struct {
	refined    *model.ProvenResult
	refineErr  error
	tightened  *model.ProvenResult
	tightenErr error

	mu         sync.Mutex
	tightenArg model.ProvenResult
}

func (e *stubEditor) Refine(ctx context.Context, s model.Statement, p model.Proof) (*model.ProvenResult, error) {
	return e.refined, e.refineErr
}

func (e *stubEditor) Tighten(ctx context.Context, s model.Statement, p model.Proof) (*model.ProvenResult, error) {
	e.mu.Lock()
	e.tightenArg = model.ProvenResult{Statement: s, Proof: p}
	e.mu.Unlock()
	return e.tightened, e.tightenErr
}

type fixedJudge struct {
	verdict model.Verdict
	err     error
}

func (j fixedJudge) Assess(ctx context.Context, s model.Statement, p model.Proof, lit *model.Literature) (model.Verdict, error) {
	return j.verdict, j.err
}

func judges(v model.Verdict, err error) solver.JudgeFactory {
	return func() solver.Judge { return fixedJudge{verdict: v, err: err} }
}

func TestStageApply(t *testing.T) {
	original := model.ProvenResult{Statement: "S", Proof: "P"}
	refined := &model.ProvenResult{Statement: "S'", Proof: "P'"}
	tight := &model.ProvenResult{Statement: "T", Proof: "Q"}
	ok := model.Verdict{Correct: true}

	tests := []struct {
		name   string
		editor *stubEditor
		judges solver.JudgeFactory
		want   model.ProvenResult
	}{
		{name: "nothing to do", editor: &stubEditor{}, judges: judges(ok, nil), want: original},
		{name: "refine only", editor: &stubEditor{refined: refined}, judges: nil, want: *refined},
		{name: "refine error falls back", editor: &stubEditor{refineErr: errors.New("x")}, judges: nil, want: original},
		{name: "tighten accepted", editor: &stubEditor{refined: refined, tightened: tight}, judges: judges(ok, nil), want: *tight},
		{
			name:   "tighten rejected",
			editor: &stubEditor{refined: refined, tightened: tight},
			judges: judges(model.Verdict{Correct: false, Feedback: "too strong"}, nil),
			want:   *refined,
		},
		{name: "judge error", editor: &stubEditor{tightened: tight}, judges: judges(ok, errors.New("down")), want: original},
		{name: "tighten error", editor: &stubEditor{refined: refined, tightenErr: errors.New("x")}, judges: judges(ok, nil), want: *refined},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStage(tt.editor, tt.judges, zaptest.NewLogger(t))
			assert.Equal(t, tt.want, s.Apply(context.Background(), original))
		})
	}
}

func TestStageApply_TightensTheRefinedPair(t *testing.T) {
	e := &stubEditor{refined: &model.ProvenResult{Statement: "S'", Proof: "P'"}}
	s := NewStage(e, judges(model.Verdict{Correct: true}, nil), nil)
	s.Apply(context.Background(), model.ProvenResult{Statement: "S", Proof: "P"})
	assert.Equal(t, model.ProvenResult{Statement: "S'", Proof: "P'"}, e.tightenArg)
}

func TestStageBatch_PreservesOrder(t *testing.T) {
	s := NewStage(&stubEditor{}, nil, nil)
	in := []model.ProvenResult{{Statement: "a"}, {Statement: "b"}, {Statement: "c"}}
	out := s.Batch(context.Background(), worker.NewPool("refinement", 2, nil), in)
	assert.Equal(t, in, out)
}
