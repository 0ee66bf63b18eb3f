package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/lemmata/internal/llm"
)

// ValidateMarkdownTool is the registry name of the markdown validator
const ValidateMarkdownTool = "validate_markdown"

var environmentPattern = regexp.MustCompile(`\\begin\{.+?\}|\\end\{.+?\}`)

// MarkdownResult is the outcome of a structural markdown check
type MarkdownResult struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors"`
}

// ValidateMarkdown checks a generated document for constructs the report
// renderer cannot handle: code fences, unbalanced brackets and LaTeX
// environments.
func ValidateMarkdown(markdown string) MarkdownResult {
	errs := []string{}

	if strings.Contains(markdown, "```") {
		errs = append(errs, "Backticks (code fences) are not allowed in the report output.")
	}

	errs = append(errs, balancedDelimiters(markdown)...)

	if environmentPattern.MatchString(markdown) {
		errs = append(errs, `Environment blocks (\begin{...} / \end{...}) are not allowed.`)
	}

	return MarkdownResult{OK: len(errs) == 0, Errors: errs}
}

func balancedDelimiters(text string) []string {
	var errs []string
	var stack []rune
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}

	idx := 0
	escaped := false
	for _, ch := range text {
		if escaped || ch == '\\' {
			// A backslash escapes the next character, so \{ and \} are literal
			escaped = !escaped
			idx++
			continue
		}
		switch ch {
		case '(', '[', '{':
			stack = append(stack, ch)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[ch] {
				errs = append(errs, fmt.Sprintf("Unbalanced delimiter at index %d: '%c'", idx, ch))
			} else {
				stack = stack[:len(stack)-1]
			}
		}
		idx++
	}
	if len(stack) > 0 {
		errs = append(errs, "Unbalanced delimiters: "+string(stack))
	}
	return errs
}

// MarkdownTool returns the registry entry for the validator
func MarkdownTool() Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name:        ValidateMarkdownTool,
			Description: "Validate a Markdown+KaTeX report. Returns {ok, errors[]} with human-readable issues.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"markdown": map[string]any{
						"type":        "string",
						"description": "Full markdown document to validate",
					},
				},
				"required":             []string{"markdown"},
				"additionalProperties": false,
			},
		},
		Run: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args struct {
				Markdown string `json:"markdown"`
			}
			if err := decodeArgs(raw, &args); err != nil {
				return nil, err
			}
			return ValidateMarkdown(args.Markdown), nil
		},
	}
}
