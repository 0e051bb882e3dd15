// Package browser wraps a headless Chrome session behind the small set of
// page operations the crawler needs.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

// ErrTimeout is returned when a bounded wait expires before its condition
// holds.
var ErrTimeout = errors.New("timed out waiting for page")

// Driver is a single page-rendering session. There is exactly one current
// page; every call acts on it and may replace it, so a Driver must not be
// shared between goroutines.
type Driver interface {
	// Navigate loads url and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error
	// WaitPresent blocks until selector matches an element or timeout
	// expires, in which case the error wraps ErrTimeout.
	WaitPresent(ctx context.Context, selector string, timeout time.Duration) error
	// WaitAbsent blocks until selector matches nothing or timeout expires.
	WaitAbsent(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	ScrollToBottom(ctx context.Context) error
	// ScrollHeight reports the height of the scrollable document body.
	ScrollHeight(ctx context.Context) (int64, error)
	// HTML returns the serialized DOM of the current page.
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Options configures a Chrome session.
type Options struct {
	Headless bool
	// ExecPath points at a Chrome binary. Empty means search the usual
	// locations.
	ExecPath  string
	UserAgent string
	// ActionTimeout bounds every operation that has no explicit timeout of
	// its own (navigation, clicks, typing, script evaluation).
	ActionTimeout time.Duration
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Headless:      true,
		ActionTimeout: 60 * time.Second,
	}
}

// Session is a Driver backed by a chromedp browser tab.
type Session struct {
	ctx           context.Context
	cancelTab     context.CancelFunc
	cancelAlloc   context.CancelFunc
	actionTimeout time.Duration
}

// NewSession starts a browser and opens one tab. The caller owns the
// session and must Close it on every exit path so the browser process is
// not leaked.
func NewSession(opts Options) (*Session, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{},
		chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.Flag("headless", opts.Headless))
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// The first Run launches the browser. It must use the tab context itself
	// rather than a derived one, or cancelling the derived context would
	// tear the browser down.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	timeout := opts.ActionTimeout
	if timeout <= 0 {
		timeout = DefaultOptions().ActionTimeout
	}

	slog.Debug("browser session started", "headless", opts.Headless)

	return &Session{
		ctx:           tabCtx,
		cancelTab:     cancelTab,
		cancelAlloc:   cancelAlloc,
		actionTimeout: timeout,
	}, nil
}

// run executes actions on the tab, bounded by timeout and by the caller's
// ctx. Expiry of timeout is reported as ErrTimeout.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v: %v", ErrTimeout, timeout, err)
	}
	return err
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.actionTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (s *Session) WaitPresent(ctx context.Context, selector string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (s *Session) WaitAbsent(ctx context.Context, selector string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.WaitNotPresent(selector, chromedp.ByQuery))
}

func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, s.actionTimeout, chromedp.Click(selector, chromedp.ByQuery))
}

func (s *Session) Type(ctx context.Context, selector, text string) error {
	return s.run(ctx, s.actionTimeout, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

func (s *Session) ScrollToBottom(ctx context.Context) error {
	return s.run(ctx, s.actionTimeout,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight);`, nil))
}

func (s *Session) ScrollHeight(ctx context.Context) (int64, error) {
	var height int64
	err := s.run(ctx, s.actionTimeout,
		chromedp.Evaluate(`document.body.scrollHeight`, &height))
	if err != nil {
		return 0, fmt.Errorf("failed to measure scroll height: %w", err)
	}
	return height, nil
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, s.actionTimeout,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err != nil {
		return "", fmt.Errorf("failed to read page HTML: %w", err)
	}
	return html, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancelTab()
	s.cancelAlloc()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	slog.Debug("browser session closed")
	return nil
}
