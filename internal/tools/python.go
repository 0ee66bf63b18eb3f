package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ppiankov/lemmata/internal/llm"
)

// RunPythonTool is the registry name of the python sandbox
const RunPythonTool = "run_python"

// bootstrap applies resource limits inside the child before running the snippet
const pythonBootstrap = `import runpy, sys
try:
    import resource
    mem = int(sys.argv[1]) * 1024 * 1024
    resource.setrlimit(resource.RLIMIT_AS, (mem, mem))
    resource.setrlimit(resource.RLIMIT_CORE, (0, 0))
    cpu = int(sys.argv[2])
    resource.setrlimit(resource.RLIMIT_CPU, (cpu, cpu))
except Exception:
    pass
script = sys.argv[3]
sys.argv = [script]
runpy.run_path(script, run_name="__main__")
`

// PythonRunner executes untrusted python snippets in an isolated subprocess
type PythonRunner struct {
	Path           string // Interpreter, default python3
	TimeoutSeconds int    // Default wall-clock limit
	MemoryLimitMB  int    // Default address-space limit
}

// Run executes code and captures its output. It never returns an error; failures
// are reported through the exit code and stderr.
func (p PythonRunner) Run(ctx context.Context, code string, timeoutSeconds float64, memoryLimitMB int) ScriptResult {
	if codeTooLarge(code) {
		return tooLarge()
	}
	if memoryLimitMB <= 0 {
		memoryLimitMB = p.MemoryLimitMB
	}
	if memoryLimitMB <= 0 {
		memoryLimitMB = 256
	}
	timeout := clampTimeout(timeoutSeconds, p.TimeoutSeconds)

	dir, err := os.MkdirTemp("", "lemmata-py-")
	if err != nil {
		return executorError(err)
	}
	defer os.RemoveAll(dir)

	runner := filepath.Join(dir, "_bootstrap.py")
	script := filepath.Join(dir, "snippet.py")
	if err := os.WriteFile(runner, []byte(pythonBootstrap), 0600); err != nil {
		return executorError(err)
	}
	if err := os.WriteFile(script, []byte(code), 0600); err != nil {
		return executorError(err)
	}

	path := p.Path
	if path == "" {
		path = "python3"
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout*float64(time.Second)))
	defer cancel()

	cpuSeconds := max(1, int(timeout)*2)
	cmd := exec.CommandContext(runCtx, path, "-I", runner,
		strconv.Itoa(memoryLimitMB), strconv.Itoa(cpuSeconds), script)
	cmd.Dir = dir
	cmd.Env = []string{"PATH=" + os.Getenv("PATH"), "HOME=" + dir}
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	res := ScriptResult{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Stderr += "\nExecution timed out."
		res.ExitCode = ExitCodeTimeout
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.Stderr = fmt.Sprintf("Executor error: %v", err)
		res.ExitCode = ExitCodeExecutor
	}

	return truncateOutput(res)
}

func executorError(err error) ScriptResult {
	return ScriptResult{Stderr: fmt.Sprintf("Executor error: %v", err), ExitCode: ExitCodeExecutor}
}

// Tool returns the registry entry for this runner
func (p PythonRunner) Tool() Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name:        RunPythonTool,
			Description: "Execute a Python snippet in an isolated subprocess and return stdout, stderr, exit_code and truncated. Use it to sanity-check small cases.",
			Parameters:  scriptParameters("Python"),
		},
		Run: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args ScriptArgs
			if err := decodeArgs(raw, &args); err != nil {
				return nil, err
			}
			return p.Run(ctx, args.Code, args.TimeoutSeconds, args.MemoryLimitMB), nil
		},
	}
}
