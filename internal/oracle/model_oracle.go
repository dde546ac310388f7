package oracle

import (
	"context"
	"fmt"
	"strings"
)

const actionInstruction = `You translate one test step into one browser action against the page described by the accessibility snapshot.
Respond with a single JSON object and nothing else:
{"ActionKind": "...", "SelectorKind": "...", "SelectorValue": "...", "InputData": "...", "Reasoning": "..."}
ActionKind is one of: Click, Fill, Type, Input, Check, Uncheck, Navigate, Hover.
SelectorKind is one of: Button, Link, Textbox, Checkbox, Radio, Combobox, Listbox, Option, Menuitem, Tab, Searchbox, Switch, Text, Label, Placeholder, Css.
SelectorValue is the accessible name, text, label, placeholder, URL (for Navigate) or raw CSS selector.
InputData is the literal value to type for Fill/Type/Input, otherwise empty. Keep any {{Placeholder}} tokens exactly as written.
Prefer semantic roles over text, and text over raw selectors.`

const verifyInstruction = `You judge whether the page described by the accessibility snapshot satisfies one test assertion.
Respond with a single JSON object and nothing else:
{"Passed": true|false, "Reasoning": "..."}
Pass only when the snapshot clearly shows the asserted state.`

const synthesizeInstruction = `You write one plain-language test step (gherkin style, starting with When/And/Then) describing a browser action that was just performed.
Respond with the step text only, no quotes and no JSON.`

// ModelOracle implements Oracle on top of a Transport using the shared
// model-iteration protocol.
type ModelOracle struct {
	transport Transport
	models    ModelLists
	opts      Options
}

// NewModelOracle wires a transport and per-capability model lists into an
// Oracle.
func NewModelOracle(t Transport, models ModelLists, opts Options) *ModelOracle {
	return &ModelOracle{transport: t, models: models, opts: opts.withDefaults()}
}

// ResolveAction decides which browser operation implements an action step.
func (o *ModelOracle) ResolveAction(ctx context.Context, step, snapshot string) (*ActionDecision, error) {
	user := fmt.Sprintf("Step:\n%s\n\nPage snapshot:\n%s", step, snapshot)
	resp, err := complete(ctx, o.transport, o.models.Action, o.opts, Request{
		System:       actionInstruction,
		User:         user,
		JSONResponse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve action: %w", err)
	}
	decision, err := parseActionDecision(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("resolve action: %w", err)
	}
	return decision, nil
}

// Verify judges an assertion step against the page snapshot.
func (o *ModelOracle) Verify(ctx context.Context, step, snapshot string) (*VerificationDecision, error) {
	user := fmt.Sprintf("Assertion:\n%s\n\nPage snapshot:\n%s", step, snapshot)
	resp, err := complete(ctx, o.transport, o.models.Verify, o.opts, Request{
		System:       verifyInstruction,
		User:         user,
		JSONResponse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	decision, err := parseVerificationDecision(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	return decision, nil
}

// SynthesizeStep writes a scenario line for a recorded browser action.
func (o *ModelOracle) SynthesizeStep(ctx context.Context, actionKind, selectorHint, value, snapshot string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Action performed: %s\n", actionKind)
	if selectorHint != "" {
		fmt.Fprintf(&b, "Target element: %s\n", selectorHint)
	}
	if value != "" {
		fmt.Fprintf(&b, "Value entered: %s\n", value)
	}
	fmt.Fprintf(&b, "\nPage snapshot:\n%s", snapshot)

	resp, err := complete(ctx, o.transport, o.models.Synthesize, o.opts, Request{
		System: synthesizeInstruction,
		User:   b.String(),
	})
	if err != nil {
		return "", fmt.Errorf("synthesize step: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
