// Package browser wraps Playwright with the single browser/page pair a run
// owns: launch, locator resolution, action execution, screenshots, video,
// and strictly ordered release.
package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/stepwise-run/stepwise/internal/devlog"
)

// Options configures a run's browser session.
type Options struct {
	// Headed runs the browser with a visible window.
	Headed bool
	// ArtifactDir receives failure screenshots and relocated videos.
	ArtifactDir string
	// VideoDir, when set, enables context-level video recording.
	VideoDir string
	// ActionTimeout bounds each element interaction.
	ActionTimeout time.Duration
	// PostActionDelay is applied after every action so client-rendered UI
	// can catch up before the next snapshot.
	PostActionDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = 30 * time.Second
	}
	if o.PostActionDelay < 0 {
		o.PostActionDelay = 0
	}
	if o.ArtifactDir == "" {
		o.ArtifactDir = "artifacts"
	}
	return o
}

// Session owns one driver/browser/context/page chain for one run.
type Session struct {
	opts    Options
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    *Page

	videoPath string
	closed    bool
}

// Launch acquires the full chain. On partial failure everything already
// acquired is released before returning.
func Launch(opts Options) (*Session, error) {
	opts = opts.withDefaults()

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(!opts.Headed),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.VideoDir != "" {
		ctxOpts.RecordVideo = &playwright.RecordVideo{Dir: opts.VideoDir}
	}
	context, err := browser.NewContext(ctxOpts)
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("create context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		_ = context.Close()
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("create page: %w", err)
	}

	return &Session{
		opts:    opts,
		pw:      pw,
		browser: browser,
		context: context,
		page: &Page{
			page:            page,
			timeout:         opts.ActionTimeout,
			postActionDelay: opts.PostActionDelay,
			artifactDir:     opts.ArtifactDir,
		},
	}, nil
}

// Page returns the run's page.
func (s *Session) Page() *Page { return s.page }

// Close releases page, context, browser and driver in that order. Every
// release is attempted even when an earlier one fails; failures are logged
// and never escalated.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true

	if s.page != nil && s.opts.VideoDir != "" {
		if video := s.page.page.Video(); video != nil {
			if path, err := video.Path(); err == nil {
				s.videoPath = path
			}
		}
	}

	if s.page != nil {
		if err := s.page.page.Close(); err != nil {
			devlog.Tagf("Browser", "page close failed: %v", err)
		}
	}
	if s.context != nil {
		if err := s.context.Close(); err != nil {
			devlog.Tagf("Browser", "context close failed: %v", err)
		}
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			devlog.Tagf("Browser", "browser close failed: %v", err)
		}
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			devlog.Tagf("Browser", "driver stop failed: %v", err)
		}
	}
}

// CollectVideo moves the recorded video, finalized by Close, into the
// artifact directory. Returns the new path, or "" when no video exists.
func (s *Session) CollectVideo(runID string) string {
	if s.videoPath == "" {
		return ""
	}
	if err := os.MkdirAll(s.opts.ArtifactDir, 0o755); err != nil {
		devlog.Tagf("Browser", "artifact dir: %v", err)
		return s.videoPath
	}
	dst := filepath.Join(s.opts.ArtifactDir, runID+filepath.Ext(s.videoPath))
	if err := os.Rename(s.videoPath, dst); err != nil {
		devlog.Tagf("Browser", "video relocate failed: %v", err)
		return s.videoPath
	}
	return dst
}
