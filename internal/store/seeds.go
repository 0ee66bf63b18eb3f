package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ppiankov/lemmata/internal/model"
)

var (
	tripleQuoted = regexp.MustCompile(`(?is)r?"""(.*?)"""`)
	doubleQuoted = regexp.MustCompile(`(?s)"([^\\"]*)"`)
	blankLines   = regexp.MustCompile(`\n\s*\n+`)
)

// ParseSeeds reads seed statements from free-form text. It accepts, in order:
// a JSON string or array of strings; a bracketed list of triple-quoted items;
// a bracketed list of double-quoted items with unescaped LaTeX; blank-line
// separated blocks; otherwise the whole text as one seed.
func ParseSeeds(text string) []model.Statement {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	var list []string
	if err := json.Unmarshal([]byte(trimmed), &list); err == nil {
		return model.DedupeStatements(trimAll(list))
	}
	var single string
	if err := json.Unmarshal([]byte(trimmed), &single); err == nil {
		return model.DedupeStatements([]string{strings.TrimSpace(single)})
	}

	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		if items := submatches(tripleQuoted, trimmed); len(items) > 0 {
			return model.DedupeStatements(items)
		}
		if items := submatches(doubleQuoted, trimmed); len(items) > 0 {
			return model.DedupeStatements(items)
		}
	}

	if blocks := trimAll(blankLines.Split(trimmed, -1)); len(blocks) > 1 {
		return model.DedupeStatements(blocks)
	}
	return []model.Statement{trimmed}
}

// ReadSeeds parses the seed file at path
func ReadSeeds(path string) ([]model.Statement, error) {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return nil, fmt.Errorf("read seeds: %w", err)
	}
	return ParseSeeds(string(data)), nil
}

// WriteSeeds rewrites path with the deduplicated seeds in first-seen order
func WriteSeeds(path string, seeds []model.Statement) error {
	path, err := filepath.Abs(expandHome(path))
	if err != nil {
		return fmt.Errorf("resolve seed path: %w", err)
	}
	mu := lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	unique := model.DedupeStatements(seeds)
	if unique == nil {
		unique = []model.Statement{}
	}
	return writeJSON(path, unique)
}

func submatches(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
