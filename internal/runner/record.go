// Package runner drives one scenario end to end: browser acquisition,
// navigation, the step decision loop, verification retries, and guaranteed
// finalization.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/stepwise-run/stepwise/internal/oracle"
)

// Status is a run's lifecycle state. Transitions are monotonic:
// Pending → Running → Passed or Failed, never rewritten afterwards; a
// re-run creates a new record.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
)

// RunRecord is the persisted outcome of one test execution. Owned
// exclusively by the run while it executes.
type RunRecord struct {
	ID        string
	URL       string
	Script    string
	Status    Status
	StartedAt time.Time
	Duration  time.Duration
	Error     string

	ScreenshotPath string
	VideoPath      string
	ReasoningLog   string

	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// RecordStore persists run records. The surrounding system provides the
// implementation; the run writes back once per transition plus once at
// finalization.
type RecordStore interface {
	Save(ctx context.Context, rec *RunRecord) error
}

// TokenCounter accumulates model token usage for one run. It implements
// oracle.UsageSink; the oracle may report usage from a model call that is
// still unwinding while the run finalizes, hence the lock.
type TokenCounter struct {
	mu         sync.Mutex
	prompt     int64
	completion int64
	total      int64
}

// NewTokenCounter creates an empty counter.
func NewTokenCounter() *TokenCounter { return &TokenCounter{} }

// AddUsage records one response's token counts.
func (c *TokenCounter) AddUsage(u oracle.Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompt += u.Prompt
	c.completion += u.Completion
	c.total += u.Total
}

// Reset clears the counter at the Running transition.
func (c *TokenCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompt, c.completion, c.total = 0, 0, 0
}

// Totals returns the accumulated counts.
func (c *TokenCounter) Totals() (prompt, completion, total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt, c.completion, c.total
}
