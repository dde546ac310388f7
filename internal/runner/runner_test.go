package runner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stepwise-run/stepwise/internal/browser"
	"github.com/stepwise-run/stepwise/internal/oracle"
	"github.com/stepwise-run/stepwise/internal/secrets"
	"github.com/stepwise-run/stepwise/internal/snapshot"
)

type executedAction struct {
	decision *oracle.ActionDecision
	resolved string
}

type fakePage struct {
	navigated []string
	executed  []executedAction
	execErr   error
	shots     []string
}

func (p *fakePage) AriaSnapshot(ctx context.Context) (string, error) {
	return "- heading \"Store\"\n- button \"Sign In\"", nil
}

func (p *fakePage) Evaluate(ctx context.Context, script string) (any, error) {
	return nil, errors.New("no hints in tests")
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *fakePage) Execute(ctx context.Context, d *oracle.ActionDecision, resolve func(string) string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resolved := d.InputData
	if resolve != nil {
		resolved = resolve(d.InputData)
	}
	p.executed = append(p.executed, executedAction{decision: d, resolved: resolved})
	return p.execErr
}

func (p *fakePage) Screenshot(ctx context.Context, path string) error {
	p.shots = append(p.shots, path)
	return nil
}

type fakeSession struct {
	page   *fakePage
	closed bool
	video  string
}

func (s *fakeSession) Page() PageDriver { return s.page }
func (s *fakeSession) Close()           { s.closed = true }
func (s *fakeSession) CollectVideo(id string) string {
	if !s.closed {
		panic("video collected before close")
	}
	return s.video
}

type fakeOracle struct {
	actions    []*oracle.ActionDecision
	verdicts   []*oracle.VerificationDecision
	verifyErr  error
	actionErr  error
	tokens     *TokenCounter
	actionCall int
	verifyCall int
}

func (o *fakeOracle) ResolveAction(ctx context.Context, step, snap string) (*oracle.ActionDecision, error) {
	o.actionCall++
	if o.tokens != nil {
		o.tokens.AddUsage(oracle.Usage{Prompt: 100, Completion: 20, Total: 120})
	}
	if o.actionErr != nil {
		return nil, o.actionErr
	}
	d := o.actions[0]
	if len(o.actions) > 1 {
		o.actions = o.actions[1:]
	}
	return d, nil
}

func (o *fakeOracle) Verify(ctx context.Context, step, snap string) (*oracle.VerificationDecision, error) {
	o.verifyCall++
	if o.verifyErr != nil {
		return nil, o.verifyErr
	}
	v := o.verdicts[0]
	if len(o.verdicts) > 1 {
		o.verdicts = o.verdicts[1:]
	}
	return v, nil
}

func (o *fakeOracle) SynthesizeStep(ctx context.Context, actionKind, hint, value, snap string) (string, error) {
	return "When I click the thing", nil
}

type fakeStore struct {
	statuses []Status
}

func (s *fakeStore) Save(ctx context.Context, rec *RunRecord) error {
	s.statuses = append(s.statuses, rec.Status)
	return nil
}

func newTestRunner(o oracle.Oracle, tokens *TokenCounter, session *fakeSession, st RecordStore) *Runner {
	sec := secrets.NewStore(map[string]string{"Username": "foo"})
	r := New(o, snapshot.NewProvider(snapshot.Options{Budget: 8000}), sec, st, tokens, Options{
		MaxVerifyAttempts: 2,
		VerifyRetryDelay:  time.Millisecond,
	})
	r.launch = func(opts browser.Options) (Session, error) { return session, nil }
	return r
}

const signInScript = `When I type '{{Username}}' into the 'Username' field
And I click the 'Sign In' button
Then I see the 'Dashboard'`

func TestExecuteEndToEndPass(t *testing.T) {
	tokens := NewTokenCounter()
	o := &fakeOracle{
		actions: []*oracle.ActionDecision{
			{Action: oracle.ActionFill, Selector: oracle.SelectorTextbox, SelectorValue: "Username", InputData: "{{Username}}"},
			{Action: oracle.ActionClick, Selector: oracle.SelectorButton, SelectorValue: "Sign In"},
		},
		verdicts: []*oracle.VerificationDecision{
			{Passed: false, Reasoning: "still loading"},
			{Passed: true, Reasoning: "dashboard heading visible"},
		},
		tokens: tokens,
	}
	page := &fakePage{}
	session := &fakeSession{page: page, video: "artifacts/run-1.webm"}
	st := &fakeStore{}
	r := newTestRunner(o, tokens, session, st)

	rec, err := r.Execute(context.Background(), Request{RunID: "run-1", URL: "https://shop.test", Script: signInScript})
	if err != nil {
		t.Fatal(err)
	}

	if rec.Status != StatusPassed {
		t.Fatalf("want passed, got %s (%s)", rec.Status, rec.Error)
	}
	if len(page.navigated) != 1 || page.navigated[0] != "https://shop.test" {
		t.Errorf("navigation: %v", page.navigated)
	}
	if len(page.executed) != 2 {
		t.Fatalf("want 2 executed actions, got %d", len(page.executed))
	}
	if page.executed[0].resolved != "foo" {
		t.Errorf("fill value should resolve to secret, got %q", page.executed[0].resolved)
	}
	if page.executed[1].decision.Action != oracle.ActionClick {
		t.Errorf("second action should click, got %v", page.executed[1].decision.Action)
	}
	if o.verifyCall != 2 {
		t.Errorf("want 2 verification attempts, got %d", o.verifyCall)
	}
	if !session.closed {
		t.Error("session not released")
	}
	if rec.VideoPath != "artifacts/run-1.webm" {
		t.Errorf("video not collected: %q", rec.VideoPath)
	}
	if rec.TotalTokens != 240 {
		t.Errorf("token accounting: want 240, got %d", rec.TotalTokens)
	}
	if rec.Duration <= 0 {
		t.Error("duration not recorded")
	}
	if rec.ReasoningLog == "" || !strings.Contains(rec.ReasoningLog, "dashboard heading visible") {
		t.Errorf("reasoning log incomplete:\n%s", rec.ReasoningLog)
	}
	if want := []Status{StatusPending, StatusRunning, StatusPassed}; len(st.statuses) != 3 ||
		st.statuses[0] != want[0] || st.statuses[1] != want[1] || st.statuses[2] != want[2] {
		t.Errorf("status transitions: %v", st.statuses)
	}
}

func TestVerificationStopsAtFirstPass(t *testing.T) {
	tokens := NewTokenCounter()
	o := &fakeOracle{
		verdicts: []*oracle.VerificationDecision{{Passed: true, Reasoning: "present"}},
	}
	session := &fakeSession{page: &fakePage{}}
	r := newTestRunner(o, tokens, session, nil)

	rec, err := r.Execute(context.Background(), Request{RunID: "run-2", URL: "https://x.test", Script: "Then the banner is displayed"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusPassed {
		t.Fatalf("want passed, got %s", rec.Status)
	}
	if o.verifyCall != 1 {
		t.Errorf("passing verification must not retry, got %d calls", o.verifyCall)
	}
}

func TestVerificationBoundedAndCarriesLastReasoning(t *testing.T) {
	tokens := NewTokenCounter()
	o := &fakeOracle{
		verdicts: []*oracle.VerificationDecision{{Passed: false, Reasoning: "no dashboard anywhere"}},
	}
	session := &fakeSession{page: &fakePage{}}
	r := newTestRunner(o, tokens, session, nil)

	rec, err := r.Execute(context.Background(), Request{RunID: "run-3", URL: "https://x.test", Script: "Then I see the 'Dashboard'"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusFailed {
		t.Fatalf("want failed, got %s", rec.Status)
	}
	if o.verifyCall != 2 {
		t.Errorf("want exactly maxAttempts=2 calls, got %d", o.verifyCall)
	}
	if !strings.Contains(rec.Error, "no dashboard anywhere") {
		t.Errorf("error should carry last reasoning: %q", rec.Error)
	}
	if !strings.Contains(rec.Error, "Then I see the 'Dashboard'") {
		t.Errorf("error should name the failing step: %q", rec.Error)
	}
	if !session.closed {
		t.Error("session not released on failure")
	}
}

func TestActionFailureNamesStepAndCleansUp(t *testing.T) {
	tokens := NewTokenCounter()
	o := &fakeOracle{
		actions: []*oracle.ActionDecision{{Action: oracle.ActionClick, Selector: oracle.SelectorButton, SelectorValue: "Buy"}},
	}
	page := &fakePage{execErr: errors.New("element detached")}
	session := &fakeSession{page: page}
	r := newTestRunner(o, tokens, session, nil)

	rec, err := r.Execute(context.Background(), Request{RunID: "run-4", URL: "https://x.test", Script: "When I click the 'Buy' button"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusFailed {
		t.Fatalf("want failed, got %s", rec.Status)
	}
	if !strings.Contains(rec.Error, "When I click the 'Buy' button") || !strings.Contains(rec.Error, "element detached") {
		t.Errorf("error should combine step and cause: %q", rec.Error)
	}
	if !session.closed {
		t.Error("session not released")
	}
}

func TestCancellationStillFinalizes(t *testing.T) {
	tokens := NewTokenCounter()
	o := &fakeOracle{}
	session := &fakeSession{page: &fakePage{}}
	st := &fakeStore{}
	r := newTestRunner(o, tokens, session, st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := r.Execute(ctx, Request{RunID: "run-5", URL: "https://x.test", Script: "When I click the 'Buy' button"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancellation must propagate distinctly, got %v", err)
	}
	if rec.Status != StatusFailed {
		t.Errorf("record should be terminal, got %s", rec.Status)
	}
	if !strings.Contains(rec.Error, "canceled") {
		t.Errorf("cancellation should not be reported as a business failure: %q", rec.Error)
	}
	if !session.closed {
		t.Error("cleanup must run under cancellation")
	}
	if len(st.statuses) == 0 || st.statuses[len(st.statuses)-1] != StatusFailed {
		t.Errorf("finalization write missing: %v", st.statuses)
	}
}

func TestMissingTestDataRefusesStaticFallback(t *testing.T) {
	tokens := NewTokenCounter()
	o := &fakeOracle{
		actions: []*oracle.ActionDecision{
			{Action: oracle.ActionFill, Selector: oracle.SelectorTextbox, SelectorValue: "Username", InputData: "{{Username}}"},
		},
	}
	page := &fakePage{}
	session := &fakeSession{page: page}
	r := newTestRunner(o, tokens, session, nil)

	rec, err := r.Execute(context.Background(), Request{
		RunID:        "run-6",
		URL:          "https://x.test",
		Script:       "When I type '{{Username}}' into the 'Username' field",
		TestDataPath: "/nonexistent/prod-data.csv",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusPassed {
		t.Fatalf("run itself should pass, got %s (%s)", rec.Status, rec.Error)
	}
	// Static tier holds Username=foo, but the scoped source was required
	// and unavailable: the raw placeholder must go through instead.
	if page.executed[0].resolved != "{{Username}}" {
		t.Errorf("static fallback leaked: %q", page.executed[0].resolved)
	}
	if !strings.Contains(rec.ReasoningLog, "static fallback refused") {
		t.Errorf("refusal not logged:\n%s", rec.ReasoningLog)
	}
}
