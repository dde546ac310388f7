// Package oracle turns natural-language steps plus page snapshots into
// concrete browser decisions by querying configured language models.
package oracle

import (
	"context"
	"strings"
)

// ActionKind is the closed set of browser operations a decision may name.
// Unrecognized model output parses to ActionUnknown, which the executor
// dispatches as a click — an explicit case, not a silent default.
type ActionKind int

const (
	ActionUnknown ActionKind = iota
	ActionClick
	ActionFill
	ActionType
	ActionInput
	ActionCheck
	ActionUncheck
	ActionNavigate
	ActionHover
)

var actionNames = map[ActionKind]string{
	ActionUnknown:  "unknown",
	ActionClick:    "click",
	ActionFill:     "fill",
	ActionType:     "type",
	ActionInput:    "input",
	ActionCheck:    "check",
	ActionUncheck:  "uncheck",
	ActionNavigate: "navigate",
	ActionHover:    "hover",
}

func (k ActionKind) String() string { return actionNames[k] }

// ParseActionKind maps a model-provided action string to its enum value.
func ParseActionKind(s string) ActionKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "click":
		return ActionClick
	case "fill":
		return ActionFill
	case "type":
		return ActionType
	case "input":
		return ActionInput
	case "check":
		return ActionCheck
	case "uncheck":
		return ActionUncheck
	case "navigate", "goto":
		return ActionNavigate
	case "hover":
		return ActionHover
	default:
		return ActionUnknown
	}
}

// SelectorKind is the closed set of locator strategies a decision may
// name. Unrecognized values parse to SelectorCSS, the raw-selector escape
// hatch.
type SelectorKind int

const (
	SelectorCSS SelectorKind = iota
	SelectorButton
	SelectorLink
	SelectorTextbox
	SelectorCheckbox
	SelectorRadio
	SelectorCombobox
	SelectorListbox
	SelectorOption
	SelectorMenuitem
	SelectorTab
	SelectorSearchbox
	SelectorSwitch
	SelectorText
	SelectorLabel
	SelectorPlaceholder
)

var selectorNames = map[SelectorKind]string{
	SelectorCSS:         "css",
	SelectorButton:      "button",
	SelectorLink:        "link",
	SelectorTextbox:     "textbox",
	SelectorCheckbox:    "checkbox",
	SelectorRadio:       "radio",
	SelectorCombobox:    "combobox",
	SelectorListbox:     "listbox",
	SelectorOption:      "option",
	SelectorMenuitem:    "menuitem",
	SelectorTab:         "tab",
	SelectorSearchbox:   "searchbox",
	SelectorSwitch:      "switch",
	SelectorText:        "text",
	SelectorLabel:       "label",
	SelectorPlaceholder: "placeholder",
}

func (k SelectorKind) String() string { return selectorNames[k] }

// ParseSelectorKind maps a model-provided selector string to its enum
// value.
func ParseSelectorKind(s string) SelectorKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "button":
		return SelectorButton
	case "link":
		return SelectorLink
	case "textbox", "text box", "input":
		return SelectorTextbox
	case "checkbox":
		return SelectorCheckbox
	case "radio":
		return SelectorRadio
	case "combobox":
		return SelectorCombobox
	case "listbox":
		return SelectorListbox
	case "option":
		return SelectorOption
	case "menuitem", "menu item":
		return SelectorMenuitem
	case "tab":
		return SelectorTab
	case "searchbox", "search box":
		return SelectorSearchbox
	case "switch":
		return SelectorSwitch
	case "text":
		return SelectorText
	case "label":
		return SelectorLabel
	case "placeholder":
		return SelectorPlaceholder
	default:
		return SelectorCSS
	}
}

// IsRole reports whether the selector kind is a semantic ARIA role (as
// opposed to text/label/placeholder/raw lookup).
func (k SelectorKind) IsRole() bool {
	switch k {
	case SelectorButton, SelectorLink, SelectorTextbox, SelectorCheckbox,
		SelectorRadio, SelectorCombobox, SelectorListbox, SelectorOption,
		SelectorMenuitem, SelectorTab, SelectorSearchbox, SelectorSwitch:
		return true
	}
	return false
}

// ActionDecision is the oracle's answer for an action step.
type ActionDecision struct {
	Action        ActionKind
	Selector      SelectorKind
	SelectorValue string
	InputData     string
	Reasoning     string

	// Raw model strings, kept for the reasoning log.
	RawAction   string
	RawSelector string
}

// VerificationDecision is the oracle's pass/fail judgment for an
// assertion step.
type VerificationDecision struct {
	Passed    bool
	Reasoning string
}

// Oracle is the model-backed decision service, polymorphic over the three
// capabilities the runner needs.
type Oracle interface {
	// ResolveAction decides which browser operation implements a step.
	ResolveAction(ctx context.Context, step, snapshot string) (*ActionDecision, error)

	// Verify judges whether the page state satisfies an assertion step.
	Verify(ctx context.Context, step, snapshot string) (*VerificationDecision, error)

	// SynthesizeStep writes a plain-language step describing a recorded
	// browser action. Shared with the recording pipeline.
	SynthesizeStep(ctx context.Context, actionKind, selectorHint, value, snapshot string) (string, error)
}

// Usage carries token counts reported by a model response.
type Usage struct {
	Prompt     int64
	Completion int64
	Total      int64
}

// UsageSink receives token usage for run accounting.
type UsageSink interface {
	AddUsage(u Usage)
}
