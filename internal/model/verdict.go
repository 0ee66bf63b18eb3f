package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Verdict is a judge's assessment of one proof
type Verdict struct {
	Correct  bool   `json:"correctness"` // Whether the proof is complete and rigorous
	Feedback string `json:"feedback"`    // Exactly one flaw when Correct is false
}

var (
	verdictCorrectKeys  = []string{"correctness", "is_correct", "correct"}
	verdictFeedbackKeys = []string{"feedback", "explanation", "reason"}
)

// UnmarshalJSON accepts the field aliases judges tend to emit.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	found := false
	for _, key := range verdictCorrectKeys {
		msg, ok := raw[key]
		if !ok {
			continue
		}
		correct, err := parseLooseBool(msg)
		if err != nil {
			return fmt.Errorf("verdict %s: %w", key, err)
		}
		v.Correct = correct
		found = true
		break
	}
	if !found {
		return errors.New("verdict: missing correctness field")
	}

	v.Feedback = ""
	for _, key := range verdictFeedbackKeys {
		msg, ok := raw[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return fmt.Errorf("verdict %s: %w", key, err)
		}
		v.Feedback = s
		break
	}
	return nil
}

func parseLooseBool(msg json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(msg, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return false, fmt.Errorf("not a boolean: %s", string(msg))
	}
	switch s {
	case "true", "True", "TRUE", "yes", "correct":
		return true, nil
	case "false", "False", "FALSE", "no", "incorrect":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}
