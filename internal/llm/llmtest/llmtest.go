// Package llmtest provides scripted backends for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/ppiankov/lemmata/internal/llm"
)

// Reply produces the outcome of one Generate call
type Reply func(req llm.Request) (*llm.Response, error)

// Text replies with fixed text
func Text(text string) Reply {
	return func(llm.Request) (*llm.Response, error) {
		return &llm.Response{Text: text}, nil
	}
}

// Fail replies with a classified error
func Fail(kind llm.Kind, msg string) Reply {
	return func(llm.Request) (*llm.Response, error) {
		return nil, &llm.Error{Kind: kind, Backend: "scripted", Err: errString(msg)}
	}
}

// Calls replies with tool requests
func Calls(calls ...llm.ToolCall) Reply {
	return func(llm.Request) (*llm.Response, error) {
		return &llm.Response{ToolCalls: calls}, nil
	}
}

type errString string

func (e errString) Error() string { return string(e) }

// Backend replays replies in order; the last reply repeats once the script
// runs out. It records every request.
type Backend struct {
	ID    string
	Tools bool

	mu       sync.Mutex
	replies  []Reply
	requests []llm.Request
}

// New creates a scripted backend named id
func New(id string, tools bool, replies ...Reply) *Backend {
	return &Backend{ID: id, Tools: tools, replies: replies}
}

func (b *Backend) Name() string        { return b.ID }
func (b *Backend) SupportsTools() bool { return b.Tools }

func (b *Backend) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	var reply Reply
	switch {
	case len(b.replies) == 0:
		reply = Text("")
	case len(b.requests) <= len(b.replies):
		reply = b.replies[len(b.requests)-1]
	default:
		reply = b.replies[len(b.replies)-1]
	}
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &llm.Error{Kind: llm.KindTimeout, Backend: b.ID, Err: err}
	}
	return reply(req)
}

// Requests returns the recorded requests
func (b *Backend) Requests() []llm.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]llm.Request(nil), b.requests...)
}

// CallCount returns the number of Generate calls
func (b *Backend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}
