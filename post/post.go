// Package post loads individual posts and extracts their content.
package post

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/pevans/substack2epub/archive"
	"github.com/pevans/substack2epub/browser"
	"github.com/pevans/substack2epub/scraper"
)

// Content is the extracted content of one post. Date and LikeCount are
// kept exactly as the site displays them.
type Content struct {
	Title     string
	Subtitle  string
	Date      string
	LikeCount string
	BodyHTML  string
	Paywalled bool
}

// Result is the outcome of fetching one post with retries. Content is nil
// when the post was skipped.
type Result struct {
	Summary  archive.PostSummary
	Content  *Content
	Attempts int
	Err      error // Last failure of a skipped post
}

// Fetched reports whether the post's content was retrieved.
func (r Result) Fetched() bool {
	return r.Content != nil
}

// FetcherConfig holds the fetcher's timeouts and retry policy.
type FetcherConfig struct {
	WaitTimeout time.Duration
	// RetryLimit is the total number of attempts per post.
	RetryLimit int
	RetryDelay time.Duration
	Selectors  scraper.PostConfig
}

// DefaultFetcherConfig returns five attempts with a 30 second wait each.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		WaitTimeout: 30 * time.Second,
		RetryLimit:  5,
		RetryDelay:  1 * time.Second,
		Selectors:   scraper.DefaultSelectors().Post,
	}
}

// Fetcher loads posts through a browser session.
type Fetcher struct {
	driver browser.Driver
	config FetcherConfig
}

// NewFetcher creates a fetcher that drives drv.
func NewFetcher(drv browser.Driver, config FetcherConfig) *Fetcher {
	if config.RetryLimit < 1 {
		config.RetryLimit = 1
	}
	return &Fetcher{driver: drv, config: config}
}

// Fetch loads url once and extracts its content. If the content container
// never appears the error wraps browser.ErrTimeout.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Content, error) {
	slog.Info("parsing post", "url", url)

	if err := f.driver.Navigate(ctx, url); err != nil {
		return nil, err
	}

	sel := f.config.Selectors
	if err := f.driver.WaitPresent(ctx, sel.ContainerSelector, f.config.WaitTimeout); err != nil {
		return nil, fmt.Errorf("post content never appeared: %w", err)
	}

	html, err := f.driver.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	content, err := Extract(doc, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", url, err)
	}

	slog.Info("parsed post", "title", content.Title, "paywalled", content.Paywalled, "likes", content.LikeCount)
	return content, nil
}

// FetchWithRetry fetches summary's post, retrying only when the page times
// out. When every attempt times out the post is skipped: the returned
// Result has no Content and a nil error. Any other failure is returned as
// an error.
func (f *Fetcher) FetchWithRetry(ctx context.Context, summary archive.PostSummary) (Result, error) {
	result := Result{Summary: summary}

	operation := func() error {
		result.Attempts++
		content, err := f.Fetch(ctx, summary.URL)
		if err == nil {
			result.Content = content
			return nil
		}
		if errors.Is(err, browser.ErrTimeout) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(f.config.RetryDelay),
			uint64(f.config.RetryLimit-1),
		),
		ctx,
	)

	notify := func(err error, _ time.Duration) {
		slog.Warn("retrying post", "url", summary.URL, "attempt", result.Attempts, "err", err)
	}

	err := backoff.RetryNotify(operation, policy, notify)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if errors.Is(err, browser.ErrTimeout) {
		slog.Warn("giving up on post", "url", summary.URL, "attempts", result.Attempts)
		result.Err = err
		return result, nil
	}
	return result, err
}

// Extract reads a post out of a rendered page. Only the title, date, like
// count and body are required; a missing subtitle is an empty string.
func Extract(doc *goquery.Document, sel scraper.PostConfig) (*Content, error) {
	container := doc.Find(sel.ContainerSelector).First()
	if container.Length() == 0 {
		return nil, fmt.Errorf("%w: post container (%s)", scraper.ErrElementNotFound, sel.ContainerSelector)
	}

	content := &Content{
		Paywalled: container.Find(sel.PaywallSelector).Length() > 0,
	}

	title := container.Find(sel.TitleSelector).First()
	if title.Length() == 0 {
		return nil, fmt.Errorf("%w: post title (%s)", scraper.ErrElementNotFound, sel.TitleSelector)
	}
	content.Title = normalizeSpace(title.Text())

	if sel.SubtitleSelector != "" {
		if subtitle := container.Find(sel.SubtitleSelector).First(); subtitle.Length() > 0 {
			content.Subtitle = normalizeSpace(subtitle.Text())
		} else {
			slog.Debug("post has no subtitle", "title", content.Title)
		}
	}

	date := container.Find(sel.DateSelector).First()
	if date.Length() == 0 {
		return nil, fmt.Errorf("%w: post date (%s)", scraper.ErrElementNotFound, sel.DateSelector)
	}
	content.Date = strings.TrimSpace(date.AttrOr(sel.DateAttribute, ""))

	likes := container.Find(sel.LikesSelector).First()
	if likes.Length() == 0 {
		return nil, fmt.Errorf("%w: like count (%s)", scraper.ErrElementNotFound, sel.LikesSelector)
	}
	content.LikeCount = normalizeSpace(likes.Text())

	body := container.Find(sel.BodySelector).First()
	if body.Length() == 0 {
		return nil, fmt.Errorf("%w: post body (%s)", scraper.ErrElementNotFound, sel.BodySelector)
	}
	bodyHTML, err := BodyHTML(body, sel.ExcludeSelector)
	if err != nil {
		return nil, err
	}
	content.BodyHTML = bodyHTML

	return content, nil
}

// BodyHTML serializes the direct children of body in order, leaving out
// those matching exclude (the subscription prompts).
func BodyHTML(body *goquery.Selection, exclude string) (string, error) {
	children := body.Children()
	if exclude != "" {
		children = children.Not(exclude)
	}

	parts := make([]string, 0, children.Length())
	var err error
	children.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var html string
		html, err = goquery.OuterHtml(s)
		if err != nil {
			err = fmt.Errorf("failed to serialize post body: %w", err)
			return false
		}
		parts = append(parts, html)
		return true
	})
	if err != nil {
		return "", err
	}

	return strings.Join(parts, "\n"), nil
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
