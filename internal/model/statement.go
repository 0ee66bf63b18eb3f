package model

import "strings"

// Statement is a candidate mathematical claim. Its identity is its exact text.
type Statement = string

// Proof is markdown text produced for a Statement.
type Proof = string

// ProvenResult is a statement accepted by both judges, possibly refined afterwards
type ProvenResult struct {
	Statement Statement `json:"statement"`      // Final statement text
	Proof     Proof     `json:"proof_markdown"` // Accepted proof in markdown
}

// DedupeStatements returns statements in first-seen order with exact duplicates
// and blank entries removed.
func DedupeStatements(statements []Statement) []Statement {
	seen := make(map[Statement]bool, len(statements))
	out := make([]Statement, 0, len(statements))
	for _, s := range statements {
		if strings.TrimSpace(s) == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Truncate shortens a statement for log lines.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
