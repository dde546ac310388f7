// Package scenario parses plain-language test scripts into executable steps.
package scenario

import "strings"

// Kind distinguishes steps that drive the page from steps that assert on it.
type Kind int

const (
	// KindAction is a step that performs a browser operation.
	KindAction Kind = iota
	// KindVerification is a step judged as pass/fail against page state.
	KindVerification
)

func (k Kind) String() string {
	if k == KindVerification {
		return "verification"
	}
	return "action"
}

// Step is a single executable scenario line.
type Step struct {
	Text string
	Kind Kind
}

// structuralPrefixes are gherkin declaration lines that carry no behavior.
var structuralPrefixes = []string{
	"feature:",
	"scenario outline:",
	"scenario:",
	"background:",
	"examples:",
	"rule:",
}

// verificationMarkers turn a non-"Then" line into an assertion.
var verificationMarkers = []string{"is displayed", "is visible"}

// Parse splits a scenario script into steps, dropping blank lines, comment
// and tag lines, and structural keyword lines. When mask is non-nil it is
// applied to each step's text before classification, so secret literals
// never travel further down the pipeline.
func Parse(script string, mask func(string) string) []Step {
	var steps []Step
	for _, raw := range strings.Split(script, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "@") {
			continue
		}
		if isStructural(line) {
			continue
		}
		if mask != nil {
			line = mask(line)
		}
		steps = append(steps, Step{Text: line, Kind: classify(line)})
	}
	return steps
}

func isStructural(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range structuralPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func classify(line string) Kind {
	lower := strings.ToLower(line)
	if strings.HasPrefix(lower, "then ") || lower == "then" {
		return KindVerification
	}
	for _, m := range verificationMarkers {
		if strings.Contains(lower, m) {
			return KindVerification
		}
	}
	return KindAction
}
