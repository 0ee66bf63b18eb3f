package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ppiankov/lemmata/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestResults_AppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.json")
	s, err := NewResults(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	empty, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, empty)

	first := model.ProvenResult{Statement: "n^2 > -1 for all integers n", Proof: "trivial square proof"}
	second := model.ProvenResult{Statement: `$a<b$ & \frac{1}{2}`, Proof: "P"}
	require.NoError(t, s.Append(first))
	require.NoError(t, s.Append(second))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []model.ProvenResult{first, second}, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"proof_markdown": "trivial square proof"`)
	assert.Contains(t, string(raw), `$a<b$ &`, "no HTML escaping")
}

func TestResults_CorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, os.WriteFile(path, []byte("{oops"), 0o644))

	s, err := NewResults(path, nil)
	require.NoError(t, err)

	_, err = s.Load()
	assert.Error(t, err)

	r := model.ProvenResult{Statement: "S", Proof: "P"}
	require.NoError(t, s.Append(r))
	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []model.ProvenResult{r}, got)
}

func TestResults_NonArrayFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"statement":"x"}`), 0o644))

	s, err := NewResults(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Append(model.ProvenResult{Statement: "S"}))

	got, err := ReadResults(path)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestResults_FallbackWritesSingleRecord(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "results.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"statement":"old","proof_markdown":"p"}]`), 0o644))
	require.NoError(t, os.Chmod(dir, 0o555))
	defer os.Chmod(dir, 0o755)

	s, err := NewResults(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, s.Append(model.ProvenResult{Statement: "new", Proof: "q"}))

	got, err := ReadResults(path)
	require.NoError(t, err)
	assert.Equal(t, []model.ProvenResult{{Statement: "new", Proof: "q"}}, got)
}

func TestResults_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Separate values for the same path share one lock
			s, err := NewResults(path, nil)
			if err != nil {
				t.Error(err)
				return
			}
			if err := s.Append(model.ProvenResult{Statement: fmt.Sprintf("s%d", i)}); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	got, err := ReadResults(path)
	require.NoError(t, err)
	assert.Len(t, got, n)
}

func TestParseSeeds(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"json list", `["a", "b", "a"]`, []string{"a", "b"}},
		{"json string", `"single seed"`, []string{"single seed"}},
		{"unescaped latex list", `["$\mathrm{rank}(A) \le n$", "$x^2 \geq 0$"]`, []string{`$\mathrm{rank}(A) \le n$`, `$x^2 \geq 0$`}},
		{"triple quoted", "[r\"\"\"first \\alpha\"\"\", \"\"\"second\nline\"\"\"]", []string{`first \alpha`, "second\nline"}},
		{"blank line blocks", "first seed\nstill first\n\n  \nsecond seed", []string{"first seed\nstill first", "second seed"}},
		{"raw text", "  For all n, n^2 >= 0  ", []string{"For all n, n^2 >= 0"}},
		{"empty", "   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSeeds(tt.text))
		})
	}
}

func TestWriteAndReadSeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds", "seeds.json")
	require.NoError(t, WriteSeeds(path, []string{"b", "a", "b", ""}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk []string
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, []string{"b", "a"}, onDisk)

	seeds, err := ReadSeeds(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, seeds)

	require.NoError(t, WriteSeeds(path, nil))
	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}
