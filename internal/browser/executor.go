package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/stepwise-run/stepwise/internal/devlog"
	"github.com/stepwise-run/stepwise/internal/oracle"
)

// settleNetworkIdleCap bounds the advisory network-idle wait after clicks
// and navigations.
const settleNetworkIdleCap = 3 * time.Second

// Page executes decisions against one Playwright page.
type Page struct {
	page            playwright.Page
	timeout         time.Duration
	postActionDelay time.Duration
	artifactDir     string
}

// AriaSnapshot returns the accessibility tree rooted at the body.
func (p *Page) AriaSnapshot(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Locator("body").AriaSnapshot()
}

// Evaluate runs a script in the page context.
func (p *Page) Evaluate(ctx context.Context, script string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.page.Evaluate(script)
}

// Navigate drives the page to a URL and waits for it to settle.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(p.timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	p.settle()
	return nil
}

// Execute dispatches a resolved decision. Fill-like values run through
// resolve so {{Placeholder}} tokens become secrets only at the last
// moment. On failure a screenshot is captured best-effort and the error
// returned; the run decides what failing means.
func (p *Page) Execute(ctx context.Context, d *oracle.ActionDecision, resolve func(string) string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.dispatch(ctx, d, resolve); err != nil {
		p.failureScreenshot()
		return err
	}
	if p.postActionDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.postActionDelay):
		}
	}
	return nil
}

func (p *Page) dispatch(ctx context.Context, d *oracle.ActionDecision, resolve func(string) string) error {
	if d.Action == oracle.ActionNavigate {
		url := d.SelectorValue
		if url == "" {
			url = d.InputData
		}
		return p.Navigate(ctx, url)
	}

	locator := p.resolveLocator(d.Selector, d.SelectorValue)

	// The element may sit in a non-scrollable container or already be in
	// view; scroll failures are advisory.
	if err := locator.ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{
		Timeout: playwright.Float(float64(p.timeout.Milliseconds())),
	}); err != nil {
		devlog.Tagf("Executor", "scroll into view skipped: %v", err)
	}

	timeout := playwright.Float(float64(p.timeout.Milliseconds()))

	switch d.Action {
	case oracle.ActionFill, oracle.ActionType, oracle.ActionInput:
		value := d.InputData
		if resolve != nil {
			value = resolve(value)
		}
		if err := locator.Fill(value, playwright.LocatorFillOptions{Timeout: timeout}); err != nil {
			return fmt.Errorf("fill %q failed: %w", d.SelectorValue, err)
		}
	case oracle.ActionCheck:
		if err := locator.Check(playwright.LocatorCheckOptions{Timeout: timeout}); err != nil {
			return fmt.Errorf("check %q failed: %w", d.SelectorValue, err)
		}
	case oracle.ActionUncheck:
		if err := locator.Uncheck(playwright.LocatorUncheckOptions{Timeout: timeout}); err != nil {
			return fmt.Errorf("uncheck %q failed: %w", d.SelectorValue, err)
		}
	case oracle.ActionHover:
		if err := locator.Hover(playwright.LocatorHoverOptions{Timeout: timeout}); err != nil {
			return fmt.Errorf("hover %q failed: %w", d.SelectorValue, err)
		}
	default:
		// Click, and the explicit unknown-dispatches-as-click case.
		if err := locator.Click(playwright.LocatorClickOptions{
			Force:   playwright.Bool(true),
			Timeout: timeout,
		}); err != nil {
			return fmt.Errorf("click %q failed: %w", d.SelectorValue, err)
		}
		p.settle()
	}
	return nil
}

// settle waits, best-effort, for DOM-ready then network idle. Timing out
// here is not a failure; the page is simply taken as-is.
func (p *Page) settle() {
	_ = p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: playwright.Float(float64(p.timeout.Milliseconds())),
	})
	idle := settleNetworkIdleCap
	if p.timeout < idle {
		idle = p.timeout
	}
	_ = p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(idle.Milliseconds())),
	})
}

// Screenshot writes a full-page screenshot to path.
func (p *Page) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("screenshot dir: %w", err)
	}
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}
	return nil
}

func (p *Page) failureScreenshot() {
	path := filepath.Join(p.artifactDir, fmt.Sprintf("failure-%d.png", time.Now().UnixMilli()))
	if err := p.Screenshot(context.Background(), path); err != nil {
		devlog.Tagf("Executor", "failure screenshot skipped: %v", err)
	}
}
