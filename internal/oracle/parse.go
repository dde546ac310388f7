package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// actionPayload is the wire shape of an action decision.
type actionPayload struct {
	ActionKind    string `json:"ActionKind"`
	SelectorKind  string `json:"SelectorKind"`
	SelectorValue string `json:"SelectorValue"`
	InputData     string `json:"InputData"`
	Reasoning     string `json:"Reasoning"`
}

// verificationPayload is the wire shape of a verification decision.
type verificationPayload struct {
	Passed    bool   `json:"Passed"`
	Reasoning string `json:"Reasoning"`
}

// extractJSON cuts the text down to its outermost JSON object. Models wrap
// payloads in prose or code fences often enough that this is the common
// path, not the exception.
func extractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", errors.New("no JSON object in model response")
	}
	return text[start : end+1], nil
}

// unmarshalDecision parses a decision body, running a repair pass when the
// raw body does not unmarshal. A body that still fails after repair is a
// decision failure; it is never retried against the same output.
func unmarshalDecision(text string, v any) error {
	body, err := extractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(body), v); err == nil {
		return nil
	}
	repaired, err := jsonrepair.JSONRepair(body)
	if err != nil {
		return fmt.Errorf("malformed decision JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("malformed decision JSON: %w", err)
	}
	return nil
}

func parseActionDecision(text string) (*ActionDecision, error) {
	var p actionPayload
	if err := unmarshalDecision(text, &p); err != nil {
		return nil, err
	}
	return &ActionDecision{
		Action:        ParseActionKind(p.ActionKind),
		Selector:      ParseSelectorKind(p.SelectorKind),
		SelectorValue: p.SelectorValue,
		InputData:     p.InputData,
		Reasoning:     p.Reasoning,
		RawAction:     p.ActionKind,
		RawSelector:   p.SelectorKind,
	}, nil
}

func parseVerificationDecision(text string) (*VerificationDecision, error) {
	var p verificationPayload
	if err := unmarshalDecision(text, &p); err != nil {
		return nil, err
	}
	return &VerificationDecision{Passed: p.Passed, Reasoning: p.Reasoning}, nil
}
