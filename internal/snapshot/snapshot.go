// Package snapshot produces the sanitized, size-bounded page description
// the oracle reasons over: an aria snapshot with PII redacted, truncated
// to a character budget, plus a best-effort block of DOM identifier hints.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/stepwise-run/stepwise/internal/devlog"
)

// TruncationMarker is appended whenever a snapshot is cut to budget.
const TruncationMarker = "\n... (truncated)"

// Source is the page-side capability the provider reads from.
type Source interface {
	// AriaSnapshot returns the accessibility tree rooted at the body.
	AriaSnapshot(ctx context.Context) (string, error)
	// Evaluate runs a script in the page and returns its JSON result.
	Evaluate(ctx context.Context, script string) (any, error)
}

// Options sizes the snapshot.
type Options struct {
	// Budget is the character budget for action-step snapshots.
	Budget int
	// VerifyBudget is the smaller budget for verification steps; falls
	// back to Budget when zero.
	VerifyBudget int
	// Reserve is held back from the budget when truncating so the hint
	// block and marker fit underneath it.
	Reserve int
}

func (o Options) withDefaults() Options {
	if o.Budget <= 0 {
		o.Budget = 16000
	}
	if o.Reserve <= 0 {
		o.Reserve = 800
	}
	return o
}

// redactTimeout bounds each redaction pattern. The patterns are fixed and
// benign, but page text is attacker-supplied, so every match is clamped.
const redactTimeout = 250 * time.Millisecond

type redaction struct {
	pattern     *regexp2.Regexp
	replacement string
}

var redactions = buildRedactions()

func buildRedactions() []redaction {
	compile := func(pattern string) *regexp2.Regexp {
		re := regexp2.MustCompile(pattern, regexp2.IgnoreCase)
		re.MatchTimeout = redactTimeout
		return re
	}
	// Card-like digit runs go first so phone redaction doesn't eat them.
	return []redaction{
		{compile(`\b(?:\d[ -]?){13,16}\b`), "[redacted-card]"},
		{compile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), "[redacted-email]"},
		{compile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "[redacted-ip]"},
		{compile(`\+?\d[\d\s().\-]{7,}\d`), "[redacted-phone]"},
	}
}

// hintKeywords is the allowlist of navigation-ish words whose presence in
// an element's text makes its id/class worth surfacing to the oracle.
var hintKeywords = []string{
	"cart", "menu", "nav", "header", "footer", "login", "logout",
	"account", "logo", "search", "banner", "profile", "checkout", "basket",
}

const maxHints = 100

// Provider captures sanitized snapshots.
type Provider struct {
	opts Options
}

// NewProvider creates a snapshot provider with the given budgets.
func NewProvider(opts Options) *Provider {
	return &Provider{opts: opts.withDefaults()}
}

// Capture returns the sanitized page snapshot. Order is fixed: redact,
// then truncate to budget minus reserve, then append hints, then one final
// hard-budget cut. Hint collection is best-effort; snapshot capture
// failures propagate.
func (p *Provider) Capture(ctx context.Context, src Source, forVerification bool) (string, error) {
	tree, err := src.AriaSnapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("aria snapshot failed: %w", err)
	}

	tree = Redact(tree)

	budget := p.opts.Budget
	if forVerification && p.opts.VerifyBudget > 0 {
		budget = p.opts.VerifyBudget
	}
	// A reserve as large as the budget would leave no room for content.
	reserve := p.opts.Reserve
	if reserve >= budget {
		reserve = 0
	}
	if len(tree) > budget {
		tree = truncate(tree, budget-reserve)
	}

	if hints := p.collectHints(ctx, src); hints != "" {
		tree += hints
	}
	// Hard cut: marker included, so the result never exceeds the budget.
	if len(tree) > budget {
		tree = truncate(tree, budget-len(TruncationMarker))
	}
	return tree, nil
}

// Redact strips PII-shaped substrings: card numbers, email addresses,
// IPv4 addresses, phone numbers. A pattern that times out is skipped.
func Redact(text string) string {
	for _, r := range redactions {
		replaced, err := r.pattern.Replace(text, r.replacement, -1, -1)
		if err != nil {
			devlog.Tagf("Snapshot", "redaction pattern skipped: %v", err)
			continue
		}
		text = replaced
	}
	return text
}

func truncate(s string, max int) string {
	if max < 0 {
		max = 0
	}
	if len(s) <= max {
		return s
	}
	return s[:max] + TruncationMarker
}

const hintScript = `(() => {
	const kws = %s;
	const ids = new Set(), classes = new Set();
	for (const el of document.querySelectorAll('[id], [class]')) {
		const text = (el.textContent || '').toLowerCase();
		if (!kws.some(k => text.includes(k))) continue;
		if (el.id) ids.add(el.id);
		if (typeof el.className === 'string') {
			for (const c of el.className.split(/\s+/)) if (c) classes.add(c);
		}
	}
	return {ids: [...ids], classes: [...classes]};
})()`

// collectHints gathers DOM id/class values attached to keyword-bearing
// elements. Any failure yields an empty block.
func (p *Provider) collectHints(ctx context.Context, src Source) string {
	kws := make([]string, len(hintKeywords))
	for i, k := range hintKeywords {
		kws[i] = fmt.Sprintf("%q", k)
	}
	script := fmt.Sprintf(hintScript, "["+strings.Join(kws, ",")+"]")

	result, err := src.Evaluate(ctx, script)
	if err != nil {
		devlog.Tagf("Snapshot", "hint collection failed: %v", err)
		return ""
	}
	obj, ok := result.(map[string]any)
	if !ok {
		return ""
	}
	ids := hintList(obj["ids"])
	classes := hintList(obj["classes"])
	if len(ids) == 0 && len(classes) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\nDOM identifier hints:\n")
	if len(ids) > 0 {
		b.WriteString("ids: " + strings.Join(ids, ", ") + "\n")
	}
	if len(classes) > 0 {
		b.WriteString("classes: " + strings.Join(classes, ", ") + "\n")
	}
	return b.String()
}

func hintList(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	if len(out) > maxHints {
		out = out[:maxHints]
	}
	return out
}
