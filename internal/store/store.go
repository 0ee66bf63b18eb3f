// Package store persists proven results and seed lists as JSON files.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ppiankov/lemmata/internal/metrics"
	"github.com/ppiankov/lemmata/internal/model"
)

// pathLocks serialises writers of the same file within the process
var pathLocks sync.Map // cleaned absolute path -> *sync.Mutex

func lockFor(path string) *sync.Mutex {
	mu, _ := pathLocks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Results is an append-only JSON array of {statement, proof_markdown}
type Results struct {
	path   string
	logger *zap.Logger
}

// NewResults opens the result file at path. The file is created on first append.
func NewResults(path string, logger *zap.Logger) (*Results, error) {
	abs, err := filepath.Abs(expandHome(path))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Results{path: abs, logger: logger.Named("store")}, nil
}

// Path returns the resolved file path
func (s *Results) Path() string {
	return s.path
}

// Append adds r to the file. An unreadable or corrupt file is replaced by a
// fresh array; when the full rewrite fails, a single-element array is written
// instead. An error is returned only if both writes fail.
func (s *Results) Append(r model.ProvenResult) error {
	mu := lockFor(s.path)
	mu.Lock()
	defer mu.Unlock()

	existing, err := readResults(s.path)
	if err != nil {
		s.logger.Warn("result file unreadable, starting fresh", zap.String("path", s.path), zap.Error(err))
		existing = nil
	}

	err = writeJSON(s.path, append(existing, r))
	if err == nil {
		metrics.ResultsPersisted.WithLabelValues("append").Inc()
		return nil
	}

	s.logger.Warn("append failed, writing minimal result file", zap.String("path", s.path), zap.Error(err))
	if ferr := os.WriteFile(s.path, mustJSON([]model.ProvenResult{r}), 0o644); ferr != nil {
		return fmt.Errorf("persist result: %w", errors.Join(err, ferr))
	}
	metrics.ResultsPersisted.WithLabelValues("fallback").Inc()
	return nil
}

// Load returns every stored result; a missing file is empty
func (s *Results) Load() ([]model.ProvenResult, error) {
	mu := lockFor(s.path)
	mu.Lock()
	defer mu.Unlock()
	return readResults(s.path)
}

// ReadResults loads a results file that is not being appended to
func ReadResults(path string) ([]model.ProvenResult, error) {
	return readResults(expandHome(path))
}

// WriteResults replaces path with results
func WriteResults(path string, results []model.ProvenResult) error {
	return writeJSON(expandHome(path), results)
}

func readResults(path string) ([]model.ProvenResult, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var out []model.ProvenResult
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

// writeJSON writes v as indented JSON through a temp file and rename
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(mustJSON(v)); err != nil {
		tmp.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// mustJSON encodes without HTML escaping so LaTeX stays readable
func mustJSON(v any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return []byte("[]\n")
	}
	return buf.Bytes()
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
