package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/lemmata/internal/llm"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// RunGoTool is the registry name of the Go interpreter sandbox
const RunGoTool = "run_go"

// packages interpreted code may import; nothing with filesystem, process or
// network access
var allowedGoImports = map[string]bool{
	"fmt":            true,
	"math":           true,
	"math/big":       true,
	"math/bits":      true,
	"math/cmplx":     true,
	"math/rand":      true,
	"sort":           true,
	"strings":        true,
	"strconv":        true,
	"slices":         true,
	"maps":           true,
	"bytes":          true,
	"unicode":        true,
	"errors":         true,
	"container/heap": true,
	"container/list": true,
}

// GoRunner interprets Go programs with yaegi. It needs no external toolchain,
// which makes it the sandbox of choice on hosts without python.
type GoRunner struct {
	TimeoutSeconds int
}

// syncBuffer serialises writes from interpreted goroutines
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Run interprets a main package. Code without a package clause is wrapped into
// one; code without a main function gets its statements wrapped into main.
func (g GoRunner) Run(ctx context.Context, code string, timeoutSeconds float64) ScriptResult {
	if codeTooLarge(code) {
		return tooLarge()
	}
	src := wrapGoSource(code)
	if err := checkGoImports(src); err != nil {
		return ScriptResult{Stderr: err.Error(), ExitCode: 1}
	}

	timeout := clampTimeout(timeoutSeconds, g.TimeoutSeconds)
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout*float64(time.Second)))
	defer cancel()

	var stdout, stderr syncBuffer
	i := interp.New(interp.Options{Stdout: &stdout, Stderr: &stderr})
	if err := i.Use(stdlib.Symbols); err != nil {
		return executorError(fmt.Errorf("load stdlib: %w", err))
	}

	_, err := i.EvalWithContext(runCtx, src)
	res := ScriptResult{Stdout: stdout.String(), Stderr: stderr.String()}
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Stderr += "\nExecution timed out."
		res.ExitCode = ExitCodeTimeout
	case err != nil:
		res.Stderr += err.Error()
		res.ExitCode = 1
	}
	return truncateOutput(res)
}

func wrapGoSource(code string) string {
	if strings.Contains(code, "package main") {
		return code
	}
	if strings.Contains(code, "func main()") {
		return "package main\n\n" + code
	}

	// Hoist import lines so the remaining statements can become main's body.
	var imports, body []string
	for _, line := range strings.Split(code, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "import ") {
			imports = append(imports, line)
			continue
		}
		body = append(body, line)
	}
	return fmt.Sprintf("package main\n\n%s\n\nfunc main() {\n%s\n}\n",
		strings.Join(imports, "\n"), strings.Join(body, "\n"))
}

func checkGoImports(src string) error {
	f, err := parser.ParseFile(token.NewFileSet(), "snippet.go", src, parser.ImportsOnly)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	var forbidden []string
	for _, imp := range f.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil || !allowedGoImports[path] {
			forbidden = append(forbidden, imp.Path.Value)
		}
	}
	if len(forbidden) > 0 {
		allowed := make([]string, 0, len(allowedGoImports))
		for pkg := range allowedGoImports {
			allowed = append(allowed, pkg)
		}
		sort.Strings(allowed)
		return fmt.Errorf("forbidden imports: %s (allowed: %s)", strings.Join(forbidden, ", "), strings.Join(allowed, ", "))
	}
	return nil
}

// Tool returns the registry entry for this runner
func (g GoRunner) Tool() Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name:        RunGoTool,
			Description: "Interpret a Go program (package main, or bare statements) with only pure standard library packages available, and return stdout, stderr, exit_code and truncated.",
			Parameters:  scriptParameters("Go"),
		},
		Run: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args ScriptArgs
			if err := decodeArgs(raw, &args); err != nil {
				return nil, err
			}
			return g.Run(ctx, args.Code, args.TimeoutSeconds), nil
		},
	}
}
