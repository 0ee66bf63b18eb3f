package prompts

import (
	"strings"
	"testing"

	"github.com/ppiankov/lemmata/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestProve_WithLiterature(t *testing.T) {
	lit := model.Literature{Items: []model.LiteratureItem{
		{Statement: "AM-GM", Source: "https://en.wikipedia.org/wiki/AM-GM"},
	}}

	plain := Prove("n^2 >= 0", nil)
	assert.Contains(t, plain, "n^2 >= 0")
	assert.NotContains(t, plain, "without proof")

	withLit := Prove("n^2 >= 0", &lit)
	assert.Contains(t, withLit, "You may use without proof")
	assert.Contains(t, withLit, "1. AM-GM (source: https://en.wikipedia.org/wiki/AM-GM)")
}

func TestReproveCarriesFeedback(t *testing.T) {
	p := Reprove("S", "old proof", "step 2 divides by zero", nil)
	assert.Contains(t, p, "old proof")
	assert.Contains(t, p, "step 2 divides by zero")
}

func TestFinalJudgeIndexesFromZero(t *testing.T) {
	p := FinalJudge("S", []string{"first", "second"})
	assert.Contains(t, p, "Attempt 0:\nfirst")
	assert.Contains(t, p, "Attempt 1:\nsecond")
}

func TestPredict(t *testing.T) {
	lit := model.Literature{Notation: "n is a natural number"}
	p := Predict(lit, "focus on primes", []string{"run_python", "run_go"})
	assert.Contains(t, p, "focus on primes")
	assert.Contains(t, p, "run_python or run_go")

	bare := Predict(lit, "", nil)
	assert.NotContains(t, bare, "guideline")
	assert.NotContains(t, bare, "counterexamples")
}

func TestReportFixListsErrors(t *testing.T) {
	p := ReportFix([]string{"unbalanced {", "code fences are not allowed"})
	assert.Equal(t, 2, strings.Count(p, "\n- "))
}
