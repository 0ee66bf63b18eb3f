package tools

import "unicode/utf8"

const (
	maxCodeChars   = 200_000
	maxOutputChars = 30_000
)

// Exit codes reported for failures that happen outside the script itself
const (
	ExitCodeTooLarge = -1
	ExitCodeTimeout  = -2
	ExitCodeExecutor = -3
)

// ScriptResult is what a sandboxed script run produced
type ScriptResult struct {
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ExitCode  int    `json:"exit_code"`
	Truncated bool   `json:"truncated"`
}

// ScriptArgs are the arguments accepted by the script tools
type ScriptArgs struct {
	Code           string  `json:"code"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
	MemoryLimitMB  int     `json:"memory_limit_mb,omitempty"`
}

// codeTooLarge applies the code cap in characters, not bytes
func codeTooLarge(code string) bool {
	return utf8.RuneCountInString(code) > maxCodeChars
}

func tooLarge() ScriptResult {
	return ScriptResult{Stderr: "Code too large (>200k chars).", ExitCode: ExitCodeTooLarge}
}

// truncateOutput caps stdout and stderr, marking the result when it cut anything
func truncateOutput(res ScriptResult) ScriptResult {
	var cut bool
	res.Stdout, cut = truncate(res.Stdout)
	res.Truncated = res.Truncated || cut
	res.Stderr, cut = truncate(res.Stderr)
	res.Truncated = res.Truncated || cut
	return res
}

func truncate(s string) (string, bool) {
	if utf8.RuneCountInString(s) <= maxOutputChars {
		return s, false
	}
	r := []rune(s)
	return string(r[:maxOutputChars]) + "\n...[truncated]", true
}

func clampTimeout(requested float64, fallback int) float64 {
	if requested <= 0 {
		requested = float64(fallback)
	}
	if requested < 1 {
		requested = 1
	}
	if requested > 120 {
		requested = 120
	}
	return requested
}

func scriptParameters(language string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{
				"type":        "string",
				"description": language + " source code to execute.",
			},
			"timeout_seconds": map[string]any{
				"type":        "number",
				"description": "Max execution time in seconds (default 10).",
				"minimum":     1,
				"maximum":     120,
			},
			"memory_limit_mb": map[string]any{
				"type":        "integer",
				"description": "Memory cap in MB for the process (default 256).",
				"minimum":     64,
				"maximum":     2048,
			},
		},
		"required":             []string{"code"},
		"additionalProperties": false,
	}
}
