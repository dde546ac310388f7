package runner

import (
	"context"
	"fmt"
	"time"
)

// verifyStep runs the bounded verification loop: fresh verification-scoped
// snapshot, one oracle judgment per attempt, success short-circuits. The
// returned error carries the last reasoning when every attempt fails.
func (r *Runner) verifyStep(ctx context.Context, page PageDriver, step string, log *ReasoningLog) error {
	lastReasoning := ""
	for attempt := 1; attempt <= r.opts.MaxVerifyAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.opts.VerifyRetryDelay):
			}
		}

		snap, err := r.snapshots.Capture(ctx, page, true)
		if err != nil {
			return fmt.Errorf("verification snapshot: %w", err)
		}
		decision, err := r.oracle.Verify(ctx, step, snap)
		if err != nil {
			return err
		}
		if decision.Passed {
			log.Appendf("verified (attempt %d): %s", attempt, decision.Reasoning)
			return nil
		}
		lastReasoning = decision.Reasoning
		log.Appendf("verification attempt %d failed: %s", attempt, decision.Reasoning)
	}
	return fmt.Errorf("verification failed after %d attempts: %s", r.opts.MaxVerifyAttempts, lastReasoning)
}
