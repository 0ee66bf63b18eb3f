package completion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type review struct {
	Notes   string  `json:"notes"`
	Entries []entry `json:"entries"`
	Comment string  `json:"comment,omitempty"`
}

type entry struct {
	Statement string `json:"statement"`
	URL       string `json:"url"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "plain", raw: `{"value":"a"}`, want: "a"},
		{name: "fenced", raw: "```json\n{\"value\":\"b\"}\n```", want: "b"},
		{name: "bare fence", raw: "```\n{\"value\":\"c\"}\n```", want: "c"},
		{name: "prose around", raw: "Here you go: {\"value\":\"d\"} hope it helps", want: "d"},
		{name: "empty", raw: "   ", wantErr: true},
		{name: "broken", raw: `{"value":`, wantErr: true},
		{name: "missing required", raw: `{"score":2}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out answer
			err := Decode(tt.raw, &out)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Value)
		})
	}
}

func TestDecode_EnforcesSchema(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{name: "complete", raw: `{"notes":"n","entries":[{"statement":"s","url":"u"}]}`},
		{name: "optional omitted", raw: `{"notes":"","entries":[]}`},
		{name: "extra keys ignored", raw: `{"notes":"n","entries":[],"extra":1}`},
		{name: "missing array", raw: `{"notes":"notation only"}`, wantErr: "missing required fields: entries"},
		{name: "null counts as missing", raw: `{"notes":null,"entries":[]}`, wantErr: "missing required fields: notes"},
		{name: "all missing", raw: `{}`, wantErr: "missing required fields: entries, notes"},
		{name: "nested missing", raw: `{"notes":"n","entries":[{"statement":"s"}]}`, wantErr: "does not conform"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out review
			err := Decode(tt.raw, &out)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorContains(t, err, "schema mismatch")
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

type lenient struct {
	Value string
}

func (l *lenient) UnmarshalJSON(data []byte) error {
	l.Value = string(data)
	return nil
}

func TestDecode_CustomUnmarshalerSkipsSchema(t *testing.T) {
	var out lenient
	require.NoError(t, Decode(`{"anything":true}`, &out))
	assert.Equal(t, `{"anything":true}`, out.Value)
}

func TestDecode_Array(t *testing.T) {
	var out []string
	require.NoError(t, Decode(`result: ["a","b"]`, &out))
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestSchemaFor(t *testing.T) {
	s, err := SchemaFor(&answer{}, "")
	require.NoError(t, err)
	assert.Equal(t, "answer", s.Name)
	assert.Contains(t, s.JSON(), `"score"`)

	named, err := SchemaFor(&answer{}, "custom")
	require.NoError(t, err)
	assert.Equal(t, "custom", named.Name)

	_, err = SchemaFor(answer{}, "")
	assert.Error(t, err)
}

func TestBackoff(t *testing.T) {
	p := RetryPolicy{BaseBackoff: 100 * time.Millisecond, Jitter: 50 * time.Millisecond, MaxBackoff: time.Second}

	for attempt, base := range []time.Duration{100, 200, 400, 800, 1000, 1000} {
		d := p.Backoff(attempt)
		lo := base * time.Millisecond
		assert.GreaterOrEqual(t, d, lo, "attempt %d", attempt)
		assert.Less(t, d, lo+50*time.Millisecond, "attempt %d", attempt)
	}
}
