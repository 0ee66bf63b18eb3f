package completion

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/lemmata/internal/llm"
	"github.com/ppiankov/lemmata/internal/llm/llmtest"
	"github.com/ppiankov/lemmata/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type answer struct {
	Value string `json:"value" validate:"required"`
	Score int    `json:"score,omitempty"`
}

func newAdapter(t *testing.T, b llm.Backend, sleeps *int32) *Adapter {
	t.Helper()
	return New(llm.NewRegistry(b), Options{
		Retry:         RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Second, Jitter: time.Second},
		RepairTurns:   2,
		MaxToolRounds: 3,
		Logger:        zaptest.NewLogger(t),
		Sleep: func(ctx context.Context, d time.Duration) error {
			if sleeps != nil {
				atomic.AddInt32(sleeps, 1)
			}
			return ctx.Err()
		},
	})
}

func request(backend string) Request {
	return Request{
		Backend:      backend,
		Conversation: llm.NewConversation(llm.User("solve it")),
	}
}

func echoRegistry(t *testing.T) *tools.Registry {
	return tools.NewRegistry(zaptest.NewLogger(t), tools.Tool{
		Definition: llm.ToolDefinition{Name: "echo", Description: "echo arguments"},
		Run: func(ctx context.Context, args json.RawMessage) (any, error) {
			return json.RawMessage(args), nil
		},
	})
}

func TestComplete_Success(t *testing.T) {
	b := llmtest.New("fake", true, llmtest.Text(`{"value":"ok","score":3}`))
	a := newAdapter(t, b, nil)

	var out answer
	raw, err := a.Complete(context.Background(), request("fake"), &out)
	require.NoError(t, err)
	assert.Equal(t, `{"value":"ok","score":3}`, raw)
	assert.Equal(t, answer{Value: "ok", Score: 3}, out)

	reqs := b.Requests()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].Schema)
	assert.Equal(t, "answer", reqs[0].Schema.Name)
	assert.Contains(t, reqs[0].Schema.JSON(), `"value"`)
	assert.Empty(t, reqs[0].Tools)
}

func TestComplete_RetryBound(t *testing.T) {
	var sleeps int32
	b := llmtest.New("fake", true, llmtest.Fail(llm.KindServer, "503 service unavailable"))
	a := newAdapter(t, b, &sleeps)

	var out answer
	_, err := a.Complete(context.Background(), request("fake"), &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetriesExhausted))
	assert.Equal(t, llm.KindFatal, llm.KindOf(err))
	assert.Equal(t, 4, b.CallCount(), "MaxAttempts+1 calls")
	assert.Equal(t, int32(3), atomic.LoadInt32(&sleeps))
}

func TestComplete_RetryThenSuccess(t *testing.T) {
	b := llmtest.New("fake", true,
		llmtest.Fail(llm.KindRateLimited, "429"),
		llmtest.Fail(llm.KindConnection, "connection reset"),
		llmtest.Text(`{"value":"late"}`),
	)
	a := newAdapter(t, b, nil)

	var out answer
	_, err := a.Complete(context.Background(), request("fake"), &out)
	require.NoError(t, err)
	assert.Equal(t, "late", out.Value)
	assert.Equal(t, 3, b.CallCount())
}

func TestComplete_FatalReturnsImmediately(t *testing.T) {
	b := llmtest.New("fake", true, llmtest.Fail(llm.KindFatal, "401 invalid api key"))
	a := newAdapter(t, b, nil)

	var out answer
	_, err := a.Complete(context.Background(), request("fake"), &out)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRetriesExhausted))
	assert.Equal(t, 1, b.CallCount())
}

func TestComplete_ParentCancelIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := llmtest.New("fake", true, llmtest.Text(`{"value":"x"}`))
	a := newAdapter(t, b, nil)

	var out answer
	_, err := a.Complete(ctx, request("fake"), &out)
	require.Error(t, err)
	assert.LessOrEqual(t, b.CallCount(), 1)
	assert.False(t, errors.Is(err, ErrRetriesExhausted))
}

func TestComplete_UnknownBackend(t *testing.T) {
	a := newAdapter(t, llmtest.New("fake", true), nil)
	var out answer
	_, err := a.Complete(context.Background(), request("missing"), &out)
	require.Error(t, err)
	assert.Equal(t, llm.KindFatal, llm.KindOf(err))
}

func TestComplete_Repair(t *testing.T) {
	b := llmtest.New("fake", true,
		llmtest.Text("I think the answer is ok."),
		llmtest.Text("```json\n{\"value\":\"ok\"}\n```"),
	)
	a := newAdapter(t, b, nil)

	var out answer
	_, err := a.Complete(context.Background(), Request{
		Backend:      "fake",
		Conversation: llm.NewConversation(llm.User("solve it")),
		Tools:        echoRegistry(t),
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Value)

	reqs := b.Requests()
	require.Len(t, reqs, 2)
	assert.NotEmpty(t, reqs[0].Tools)
	assert.Empty(t, reqs[1].Tools, "repair turns carry no tools")

	last, ok := reqs[1].Conversation.Last()
	require.True(t, ok)
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.Contains(t, last.Content, "Return only a JSON value")
	assert.Contains(t, last.Content, `"value"`)
}

func TestComplete_RepairOnTagViolation(t *testing.T) {
	b := llmtest.New("fake", false,
		llmtest.Text(`{"score":1}`),
		llmtest.Text(`{"value":"filled","score":1}`),
	)
	a := newAdapter(t, b, nil)

	var out answer
	_, err := a.Complete(context.Background(), request("fake"), &out)
	require.NoError(t, err)
	assert.Equal(t, "filled", out.Value)
	assert.Equal(t, 2, b.CallCount())
}

func TestComplete_RepairOnMissingField(t *testing.T) {
	b := llmtest.New("fake", false,
		llmtest.Text(`{"notes":"notation only"}`),
		llmtest.Text(`{"notes":"notation","entries":[{"statement":"s","url":"https://arxiv.org/abs/1"}]}`),
	)
	a := newAdapter(t, b, nil)

	var out review
	_, err := a.Complete(context.Background(), request("fake"), &out)
	require.NoError(t, err)
	require.Len(t, out.Entries, 1)
	assert.Equal(t, "s", out.Entries[0].Statement)
	assert.Equal(t, 2, b.CallCount())

	last, ok := b.Requests()[1].Conversation.Last()
	require.True(t, ok)
	assert.Contains(t, last.Content, "missing required fields: entries")
}

func TestComplete_RepairExhausted(t *testing.T) {
	b := llmtest.New("fake", true, llmtest.Text("no json here"))
	a := newAdapter(t, b, nil)

	var out answer
	raw, err := a.Complete(context.Background(), request("fake"), &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaRepairExhausted))
	assert.Equal(t, llm.KindValidation, llm.KindOf(err))
	assert.Equal(t, "no json here", raw)
	assert.Equal(t, 3, b.CallCount(), "initial call plus two repair turns")
}

func TestComplete_ToolLoop(t *testing.T) {
	b := llmtest.New("fake", true,
		llmtest.Calls(llm.ToolCall{ID: "c1", Name: "echo", Arguments: `{"x":1}`}),
		llmtest.Calls(llm.ToolCall{ID: "c2", Name: "nope", Arguments: `{}`}),
		llmtest.Text(`{"value":"done"}`),
	)
	a := newAdapter(t, b, nil)

	var out answer
	_, err := a.Complete(context.Background(), Request{
		Backend:      "fake",
		Conversation: llm.NewConversation(llm.User("compute")),
		Tools:        echoRegistry(t),
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "done", out.Value)

	reqs := b.Requests()
	require.Len(t, reqs, 3)

	msgs := reqs[2].Conversation.Messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "c1", msgs[1].ToolCalls[0].ID)
	assert.Equal(t, llm.RoleTool, msgs[2].Role)
	assert.JSONEq(t, `{"x":1}`, msgs[2].Content)
	assert.Equal(t, llm.RoleTool, msgs[4].Role)
	assert.Contains(t, msgs[4].Content, "unknown tool: nope")

	// The caller's conversation is untouched
	assert.Equal(t, 1, reqs[0].Conversation.Len())
}

func TestComplete_ToolRoundBudget(t *testing.T) {
	b := llmtest.New("fake", true, func(req llm.Request) (*llm.Response, error) {
		if len(req.Tools) > 0 {
			return &llm.Response{ToolCalls: []llm.ToolCall{{ID: "c", Name: "echo", Arguments: `{}`}}}, nil
		}
		return &llm.Response{Text: `{"value":"final"}`}, nil
	})
	a := newAdapter(t, b, nil)

	var out answer
	_, err := a.Complete(context.Background(), Request{
		Backend:      "fake",
		Conversation: llm.NewConversation(llm.User("loop forever")),
		Tools:        echoRegistry(t),
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "final", out.Value)

	reqs := b.Requests()
	require.Len(t, reqs, 4, "three tool rounds then one final call")
	assert.Empty(t, reqs[3].Tools)
}

func TestComplete_DegradesWithoutToolSupport(t *testing.T) {
	b := llmtest.New("fake", false, llmtest.Text(`{"value":"plain"}`))
	a := newAdapter(t, b, nil)

	var out answer
	_, err := a.Complete(context.Background(), Request{
		Backend:      "fake",
		Conversation: llm.NewConversation(llm.User("compute")),
		Tools:        echoRegistry(t),
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "plain", out.Value)
	require.Equal(t, 1, b.CallCount())
	assert.Empty(t, b.Requests()[0].Tools)
}

func TestComplete_BackendValidationErrorTriggersRepair(t *testing.T) {
	b := llmtest.New("fake", true,
		llmtest.Fail(llm.KindValidation, "response did not match schema"),
		llmtest.Text(`{"value":"fixed"}`),
	)
	a := newAdapter(t, b, nil)

	var out answer
	_, err := a.Complete(context.Background(), request("fake"), &out)
	require.NoError(t, err)
	assert.Equal(t, "fixed", out.Value)

	last, _ := b.Requests()[1].Conversation.Last()
	assert.True(t, strings.Contains(last.Content, "did not match schema"))
}

func TestComplete_ConcurrentConversations(t *testing.T) {
	b := llmtest.New("fake", true, func(req llm.Request) (*llm.Response, error) {
		last, _ := req.Conversation.Last()
		return &llm.Response{Text: `{"value":"` + last.Content + `"}`}, nil
	})
	a := newAdapter(t, b, nil)

	const n = 16
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			var out answer
			req := Request{Backend: "fake", Conversation: llm.NewConversation(llm.User(strings.Repeat("a", i+1)))}
			if _, err := a.Complete(context.Background(), req, &out); err != nil {
				results <- "error"
				return
			}
			results <- out.Value
		}(i)
	}

	seen := make(map[int]bool)
	for i := 0; i < n; i++ {
		v := <-results
		require.NotEqual(t, "error", v)
		seen[len(v)] = true
	}
	assert.Len(t, seen, n)
}
