package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/stepwise-run/stepwise/internal/browser"
	"github.com/stepwise-run/stepwise/internal/devlog"
	"github.com/stepwise-run/stepwise/internal/oracle"
	"github.com/stepwise-run/stepwise/internal/scenario"
	"github.com/stepwise-run/stepwise/internal/secrets"
	"github.com/stepwise-run/stepwise/internal/snapshot"
	"github.com/stepwise-run/stepwise/internal/testdata"
)

// PageDriver is the browser surface one run drives. *browser.Page is the
// production implementation.
type PageDriver interface {
	snapshot.Source
	Navigate(ctx context.Context, url string) error
	Execute(ctx context.Context, d *oracle.ActionDecision, resolve func(string) string) error
	Screenshot(ctx context.Context, path string) error
}

// Session is an acquired browser chain.
type Session interface {
	Page() PageDriver
	Close()
	CollectVideo(runID string) string
}

// Options tunes one runner.
type Options struct {
	MaxVerifyAttempts int
	VerifyRetryDelay  time.Duration
	ArtifactDir       string
	VideoDir          string
	ActionTimeout     time.Duration
	PostActionDelay   time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxVerifyAttempts <= 0 {
		o.MaxVerifyAttempts = 2
	}
	if o.VerifyRetryDelay <= 0 {
		o.VerifyRetryDelay = 2 * time.Second
	}
	if o.ArtifactDir == "" {
		o.ArtifactDir = "artifacts"
	}
	return o
}

// Request describes one execution.
type Request struct {
	RunID        string
	URL          string
	Headed       bool
	Script       string
	TestDataPath string
}

// Runner executes scenarios. One Runner instance owns one run at a time;
// cross-run parallelism is the caller's concern.
type Runner struct {
	oracle    oracle.Oracle
	snapshots *snapshot.Provider
	secrets   *secrets.Store
	store     RecordStore
	tokens    *TokenCounter
	opts      Options

	// launch is swappable in tests.
	launch func(opts browser.Options) (Session, error)
}

// New wires a runner. store may be nil (records are still returned),
// tokens must be the same counter the oracle reports usage to.
func New(o oracle.Oracle, snapshots *snapshot.Provider, sec *secrets.Store, store RecordStore, tokens *TokenCounter, opts Options) *Runner {
	return &Runner{
		oracle:    o,
		snapshots: snapshots,
		secrets:   sec,
		store:     store,
		tokens:    tokens,
		opts:      opts.withDefaults(),
		launch:    launchPlaywright,
	}
}

func launchPlaywright(opts browser.Options) (Session, error) {
	s, err := browser.Launch(opts)
	if err != nil {
		return nil, err
	}
	return playwrightSession{s}, nil
}

type playwrightSession struct{ s *browser.Session }

func (p playwrightSession) Page() PageDriver              { return p.s.Page() }
func (p playwrightSession) Close()                        { p.s.Close() }
func (p playwrightSession) CollectVideo(id string) string { return p.s.CollectVideo(id) }

// Execute runs one scenario to completion. The returned record is always
// populated and terminal; the error is non-nil only for cancellation, so
// callers can tell an aborted run from a failed one.
func (r *Runner) Execute(ctx context.Context, req Request) (*RunRecord, error) {
	rec := &RunRecord{
		ID:     req.RunID,
		URL:    req.URL,
		Script: req.Script,
		Status: StatusPending,
	}
	r.save(rec)

	log := &ReasoningLog{}
	scope := r.secrets.Scope()
	r.loadTestData(req, scope, log)

	rec.Status = StatusRunning
	rec.StartedAt = time.Now()
	r.tokens.Reset()
	r.save(rec)

	session, err := r.launch(browser.Options{
		Headed:          req.Headed,
		ArtifactDir:     r.opts.ArtifactDir,
		VideoDir:        r.opts.VideoDir,
		ActionTimeout:   r.opts.ActionTimeout,
		PostActionDelay: r.opts.PostActionDelay,
	})
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = fmt.Sprintf("browser launch: %v", err)
		log.Appendf("error: %s", rec.Error)
		r.finalize(rec, log, nil)
		return rec, nil
	}

	runErr := r.drive(ctx, session.Page(), req, scope, log)

	switch {
	case runErr == nil:
		shot := filepath.Join(r.opts.ArtifactDir, req.RunID+".png")
		if err := session.Page().Screenshot(context.Background(), shot); err == nil {
			rec.ScreenshotPath = shot
		}
		rec.Status = StatusPassed
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		rec.Status = StatusFailed
		rec.Error = "run canceled: " + runErr.Error()
		log.Appendf("canceled: %v", runErr)
	default:
		rec.Status = StatusFailed
		rec.Error = runErr.Error()
		log.Appendf("error: %v", runErr)
	}

	r.finalize(rec, log, session)

	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		return rec, runErr
	}
	return rec, nil
}

// loadTestData fills the scoped tier. When the run names a data source
// that cannot be read, static fallback is refused for the whole run so the
// wrong environment's credentials cannot leak in; lookups then return the
// raw placeholder instead.
func (r *Runner) loadTestData(req Request, scope *secrets.Scope, log *ReasoningLog) {
	if req.TestDataPath == "" {
		return
	}
	values, err := testdata.Load(req.TestDataPath)
	if err != nil {
		scope.RefuseStaticFallback()
		if errors.Is(err, testdata.ErrNotFound) {
			log.Appendf("test data %s not found; static fallback refused", req.TestDataPath)
		} else {
			log.Appendf("test data %s unreadable (%v); static fallback refused", req.TestDataPath, err)
		}
		return
	}
	scope.Load(values)
	log.Appendf("loaded %d test data entries from %s", len(values), req.TestDataPath)
	if testdata.IsProductionPath(req.TestDataPath) {
		log.Appendf("test data source looks production-scoped")
	}
}

// drive navigates and walks the step loop. Every returned error names the
// step that was executing.
func (r *Runner) drive(ctx context.Context, page PageDriver, req Request, scope *secrets.Scope, log *ReasoningLog) error {
	log.Appendf("navigating to %s", req.URL)
	if err := page.Navigate(ctx, req.URL); err != nil {
		return fmt.Errorf("step %q: %w", "navigate to "+req.URL, err)
	}

	steps := scenario.Parse(req.Script, scope.MaskLiterals)
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Appendf("step (%s): %s", step.Kind, step.Text)

		var err error
		if step.Kind == scenario.KindVerification {
			err = r.verifyStep(ctx, page, step.Text, log)
		} else {
			err = r.actionStep(ctx, page, step.Text, scope, log)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("step %q: %w", step.Text, err)
		}
	}
	return nil
}

// actionStep resolves one action step through the oracle and executes it.
func (r *Runner) actionStep(ctx context.Context, page PageDriver, step string, scope *secrets.Scope, log *ReasoningLog) error {
	snap, err := r.snapshots.Capture(ctx, page, false)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	decision, err := r.oracle.ResolveAction(ctx, step, snap)
	if err != nil {
		return err
	}
	log.Appendf("decision: %s %s=%q input=%q — %s",
		decision.Action, decision.Selector, decision.SelectorValue,
		scope.MaskLiterals(decision.InputData), decision.Reasoning)

	return page.Execute(ctx, decision, scope.Resolve)
}

// finalize flushes the reasoning log, captures token totals, releases the
// browser chain and relocates any video, then records duration and writes
// the record back. It runs on success, failure and cancellation alike.
func (r *Runner) finalize(rec *RunRecord, log *ReasoningLog, session Session) {
	rec.ReasoningLog = log.String()
	rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens = r.tokens.Totals()

	if session != nil {
		session.Close()
		if path := session.CollectVideo(rec.ID); path != "" {
			rec.VideoPath = path
		}
	}
	if !rec.StartedAt.IsZero() {
		rec.Duration = time.Since(rec.StartedAt)
	}
	r.save(rec)
}

func (r *Runner) save(rec *RunRecord) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(context.Background(), rec); err != nil {
		devlog.Tagf("Runner", "record save failed: %v", err)
	}
}
