package completion

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/ppiankov/lemmata/internal/llm"
	"github.com/sashabaranov/go-openai/jsonschema"
)

var (
	validate    = validator.New()
	schemaCache sync.Map // reflect.Type -> *jsonschema.Definition
)

// SchemaFor derives the JSON schema of the value out points to
func SchemaFor(out any, name string) (*llm.Schema, error) {
	v := reflect.ValueOf(out)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil, fmt.Errorf("output must be a non-nil pointer, got %T", out)
	}
	t := v.Elem().Type()
	if name == "" {
		name = strings.ToLower(t.Name())
	}
	if name == "" {
		name = "response"
	}

	if def, ok := schemaCache.Load(t); ok {
		return &llm.Schema{Name: name, Definition: def.(*jsonschema.Definition)}, nil
	}
	def, err := jsonschema.GenerateSchemaForType(reflect.Zero(t).Interface())
	if err != nil {
		return nil, fmt.Errorf("generate schema for %s: %w", t, err)
	}
	schemaCache.Store(t, def)
	return &llm.Schema{Name: name, Definition: def}, nil
}

// Decode extracts the JSON value from raw model text into out and validates it.
// Code fences and prose around a single top-level value are tolerated.
func Decode(raw string, out any) error {
	text := extractJSON(raw)
	if text == "" {
		return errors.New("empty response")
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if isStructPointer(out) {
		if err := conform(out, []byte(text)); err != nil {
			return fmt.Errorf("schema mismatch: %w", err)
		}
		if err := validate.Struct(out); err != nil {
			return fmt.Errorf("schema mismatch: %w", err)
		}
	}
	return nil
}

// conform checks the decoded document against the schema derived for out.
// Fields without omitempty are required; a null value counts as absent.
// Types with their own UnmarshalJSON accept shapes their schema does not
// describe and are left to it.
func conform(out any, text []byte) error {
	if _, ok := out.(json.Unmarshaler); ok {
		return nil
	}
	schema, err := SchemaFor(out, "")
	if err != nil {
		return err
	}
	var data any
	if err := json.Unmarshal(text, &data); err != nil {
		return err
	}
	data = dropNulls(data)
	def := *schema.Definition
	if jsonschema.Validate(def, data, jsonschema.WithDefs(jsonschema.CollectDefs(def))) {
		return nil
	}
	if missing := missingFields(def, data); len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return errors.New("value does not conform to the JSON schema")
}

func dropNulls(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if val == nil {
				delete(t, k)
				continue
			}
			t[k] = dropNulls(val)
		}
	case []any:
		for i, val := range t {
			t[i] = dropNulls(val)
		}
	}
	return v
}

func missingFields(def jsonschema.Definition, data any) []string {
	m, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	var missing []string
	for _, field := range def.Required {
		if _, ok := m[field]; !ok {
			missing = append(missing, field)
		}
	}
	sort.Strings(missing)
	return missing
}

func isStructPointer(out any) bool {
	v := reflect.ValueOf(out)
	return v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Kind() == reflect.Struct
}

func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if s == "" || s[0] == '{' || s[0] == '[' {
		return s
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end <= start {
		return s[start:]
	}
	return s[start : end+1]
}
