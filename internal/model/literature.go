package model

import "fmt"

// Sentinel sources for literature items that have no external URL
const (
	SourceSeed    = "seed://input"
	SourceProblem = "problem://input"
)

// LiteratureItem is a known result and where it was found
type LiteratureItem struct {
	Statement Statement     `json:"statement"`        // Known result text
	Source    string        `json:"url"`              // URI of the source
	Status    *SourceStatus `json:"status,omitempty"` // Filled by the source checker
}

// SourceStatus describes what a source check found behind a literature URL
type SourceStatus struct {
	Reachable  bool          `json:"reachable"`             // Whether the page could be fetched
	StatusCode int           `json:"status_code,omitempty"` // HTTP status code
	Title      string        `json:"title,omitempty"`       // Page <title>
	Authority  AuthorityTier `json:"authority"`             // Authority classification
	Error      string        `json:"error,omitempty"`       // Failure reason, if any
	Skipped    bool          `json:"skipped,omitempty"`     // Not checked (sentinel or robots.txt)
}

// Literature is the shared notation plus the ordered list of known results.
// Values are never mutated in place; every operation returns a new Literature.
type Literature struct {
	Notation string           `json:"annotations"` // Shared notation and conventions
	Items    []LiteratureItem `json:"results"`     // Seeds first, then related results
}

// WithSeedsFirst returns a copy whose leading items are the given seeds tagged with
// source, in order, followed by the remaining items that do not repeat a seed.
func (l Literature) WithSeedsFirst(seeds []Statement, source string) Literature {
	seeds = DedupeStatements(seeds)
	isSeed := make(map[Statement]bool, len(seeds))
	items := make([]LiteratureItem, 0, len(seeds)+len(l.Items))
	for _, s := range seeds {
		isSeed[s] = true
		items = append(items, LiteratureItem{Statement: s, Source: source})
	}
	for _, it := range l.Items {
		if isSeed[it.Statement] || it.Source == source {
			continue
		}
		items = append(items, it)
	}
	return Literature{Notation: l.Notation, Items: items}
}

// Append returns a copy with extra items added at the end.
func (l Literature) Append(items ...LiteratureItem) Literature {
	out := make([]LiteratureItem, 0, len(l.Items)+len(items))
	out = append(out, l.Items...)
	out = append(out, items...)
	return Literature{Notation: l.Notation, Items: out}
}

// Cap returns a copy with at most n items. n <= 0 means no cap.
func (l Literature) Cap(n int) Literature {
	if n <= 0 || len(l.Items) <= n {
		return l.Append()
	}
	out := make([]LiteratureItem, n)
	copy(out, l.Items[:n])
	return Literature{Notation: l.Notation, Items: out}
}

// Statements returns the statement text of every item.
func (l Literature) Statements() []Statement {
	out := make([]Statement, len(l.Items))
	for i, it := range l.Items {
		out[i] = it.Statement
	}
	return out
}

// String renders the items as a numbered list for prompts.
func (it LiteratureItem) String() string {
	if it.Status == nil || it.Status.Skipped {
		return fmt.Sprintf("%s (source: %s)", it.Statement, it.Source)
	}
	state := "reachable"
	if !it.Status.Reachable {
		state = "unreachable"
	}
	return fmt.Sprintf("%s (source: %s, %s, %s)", it.Statement, it.Source, it.Status.Authority, state)
}
