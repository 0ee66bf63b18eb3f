package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateMarkdown(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		ok         bool
		wantErrors int
		contains   string
	}{
		{"clean", "# Report\n\nFor all $n$, $n^2 \\geq 0$ (see [1]).", true, 0, ""},
		{"code fence", "```python\nprint(1)\n```", false, 1, "code fences"},
		{"unclosed paren", "f(x", false, 1, "Unbalanced delimiters: ("},
		{"stray close", "x]", false, 1, "index 1"},
		{"mismatch", "(]", false, 2, "Unbalanced"},
		{"environment", "\\begin{align} a \\end{align}", false, 1, "Environment blocks"},
		{"unicode index", "éé)", false, 1, "index 2"},
		{"escaped braces", "the set $\\{ n : n > 0 \\}$", true, 0, ""},
		{"escaped close only", "a \\} b", true, 0, ""},
		{"escaped open leaves real close", "\\( x )", false, 1, "index 5"},
		{"double backslash does not escape", "a \\\\{", false, 1, "Unbalanced delimiters: {"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateMarkdown(tt.input)
			assert.Equal(t, tt.ok, res.OK)
			assert.Len(t, res.Errors, tt.wantErrors)
			if tt.contains != "" {
				assert.Contains(t, res.Errors[0], tt.contains)
			}
		})
	}
}

func TestMarkdownToolViaRegistry(t *testing.T) {
	r := NewRegistry(nil, MarkdownTool())
	out := decode(t, r.Execute(context.Background(), ValidateMarkdownTool, `{"markdown": "a {b"}`))
	assert.Equal(t, false, out["ok"])
	assert.Len(t, out["errors"], 1)
}
