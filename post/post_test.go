package post

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/substack2epub/archive"
	"github.com/pevans/substack2epub/browser/browsertest"
	"github.com/pevans/substack2epub/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullPost = `<html><body>
<div class="single-post">
  <h1 class="post-title">  A   Post </h1>
  <h3 class="subtitle">The subtitle</h3>
  <div class="post-date" title="Mar 3, 2024, 9:00 AM">Mar 3</div>
  <div class="like-count">42</div>
  <div class="available-content"><div class="body markup">
<p>First paragraph</p>
<div class="subscription-widget-wrap subscribe-widget"><form>Subscribe</form></div>
<h2>Heading</h2>
<p>Last <em>paragraph</em></p>
  </div></div>
</div>
</body></html>`

const paywalledPost = `<html><body>
<div class="single-post">
  <h1 class="post-title">Members only</h1>
  <div class="post-date" title="Jan 1, 2024">Jan 1</div>
  <div class="like-count">3</div>
  <div class="available-content"><div class="body"><p>Teaser</p></div></div>
  <div class="paywall-jump"><div class="paywall">Subscribe to read</div></div>
</div>
</body></html>`

func docFrom(t *testing.T, html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func testConfig() FetcherConfig {
	cfg := DefaultFetcherConfig()
	cfg.RetryDelay = 0
	return cfg
}

// TestExtract_Complete verifies every field of a full post
func TestExtract_Complete(t *testing.T) {
	content, err := Extract(docFrom(t, fullPost), scraper.DefaultSelectors().Post)

	require.NoError(t, err)
	assert.Equal(t, "A Post", content.Title)
	assert.Equal(t, "The subtitle", content.Subtitle)
	assert.Equal(t, "Mar 3, 2024, 9:00 AM", content.Date)
	assert.Equal(t, "42", content.LikeCount)
	assert.False(t, content.Paywalled)
}

// TestExtract_ExcludesSubscribeWidget verifies the subscription prompt is dropped
func TestExtract_ExcludesSubscribeWidget(t *testing.T) {
	content, err := Extract(docFrom(t, fullPost), scraper.DefaultSelectors().Post)

	require.NoError(t, err)
	assert.NotContains(t, content.BodyHTML, "Subscribe")
	assert.Equal(t,
		"<p>First paragraph</p>\n<h2>Heading</h2>\n<p>Last <em>paragraph</em></p>",
		content.BodyHTML,
		"other children stay in their original order")
}

// TestExtract_NoSubtitle verifies a missing subtitle is an empty string
func TestExtract_NoSubtitle(t *testing.T) {
	content, err := Extract(docFrom(t, paywalledPost), scraper.DefaultSelectors().Post)

	require.NoError(t, err)
	assert.Equal(t, "", content.Subtitle)
	assert.Equal(t, "Members only", content.Title)
}

// TestExtract_Paywalled verifies the paywall marker sets the flag
func TestExtract_Paywalled(t *testing.T) {
	content, err := Extract(docFrom(t, paywalledPost), scraper.DefaultSelectors().Post)

	require.NoError(t, err)
	assert.True(t, content.Paywalled)
	assert.Equal(t, "<p>Teaser</p>", content.BodyHTML)
}

// TestExtract_MissingTitle verifies a post without a title is rejected
func TestExtract_MissingTitle(t *testing.T) {
	html := strings.Replace(fullPost, `class="post-title"`, `class="headline"`, 1)

	_, err := Extract(docFrom(t, html), scraper.DefaultSelectors().Post)

	assert.ErrorIs(t, err, scraper.ErrElementNotFound)
}

// TestExtract_MissingBody verifies a post without a body is rejected
func TestExtract_MissingBody(t *testing.T) {
	html := strings.Replace(fullPost, `class="available-content"`, `class="elsewhere"`, 1)

	_, err := Extract(docFrom(t, html), scraper.DefaultSelectors().Post)

	assert.ErrorIs(t, err, scraper.ErrElementNotFound)
}

// TestExtract_DateWithoutTooltip verifies a date element without its attribute
func TestExtract_DateWithoutTooltip(t *testing.T) {
	html := strings.Replace(fullPost, ` title="Mar 3, 2024, 9:00 AM"`, "", 1)

	content, err := Extract(docFrom(t, html), scraper.DefaultSelectors().Post)

	require.NoError(t, err)
	assert.Empty(t, content.Date)
}

// TestBodyHTML_NoExclusion verifies every child is kept without a filter
func TestBodyHTML_NoExclusion(t *testing.T) {
	doc := docFrom(t, `<div class="body"><p>a</p><div class="subscribe-widget">b</div></div>`)

	html, err := BodyHTML(doc.Find(".body"), "")

	require.NoError(t, err)
	assert.Equal(t, "<p>a</p>\n<div class=\"subscribe-widget\">b</div>", html)
}

// TestFetch_Success verifies a post is loaded through the driver
func TestFetch_Success(t *testing.T) {
	drv := browsertest.New()
	drv.AddPage("https://test.example.com/p/a-post", fullPost)

	content, err := NewFetcher(drv, testConfig()).Fetch(context.Background(), "https://test.example.com/p/a-post")

	require.NoError(t, err)
	assert.Equal(t, "A Post", content.Title)
	assert.Equal(t, []string{"https://test.example.com/p/a-post"}, drv.Visits)
}

// TestFetchWithRetry_RecoversAfterTimeouts verifies timeouts are retried
func TestFetchWithRetry_RecoversAfterTimeouts(t *testing.T) {
	drv := browsertest.New()
	page := drv.AddPage("https://test.example.com/p/a-post", fullPost)
	page.Stalls = 2

	summary := archive.PostSummary{URL: "https://test.example.com/p/a-post", Title: "A Post"}
	result, err := NewFetcher(drv, testConfig()).FetchWithRetry(context.Background(), summary)

	require.NoError(t, err)
	assert.True(t, result.Fetched())
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, summary, result.Summary)
	assert.Equal(t, "A Post", result.Content.Title)
}

// TestFetchWithRetry_SkipsAfterRetryLimit verifies exhaustion yields a skipped result
func TestFetchWithRetry_SkipsAfterRetryLimit(t *testing.T) {
	drv := browsertest.New()
	page := drv.AddPage("https://test.example.com/p/slow", fullPost)
	page.Stalls = 10

	summary := archive.PostSummary{URL: "https://test.example.com/p/slow"}
	result, err := NewFetcher(drv, testConfig()).FetchWithRetry(context.Background(), summary)

	require.NoError(t, err, "a skipped post is not an error")
	assert.False(t, result.Fetched())
	assert.Equal(t, 5, result.Attempts)
	assert.Len(t, drv.Visits, 5)
	assert.Error(t, result.Err)
}

// TestFetchWithRetry_OtherErrorsNotRetried verifies non-timeout failures propagate
func TestFetchWithRetry_OtherErrorsNotRetried(t *testing.T) {
	drv := browsertest.New()
	drv.AddPage("https://test.example.com/p/broken", `<html><body><div class="single-post"></div></body></html>`)

	summary := archive.PostSummary{URL: "https://test.example.com/p/broken"}
	result, err := NewFetcher(drv, testConfig()).FetchWithRetry(context.Background(), summary)

	require.Error(t, err)
	assert.ErrorIs(t, err, scraper.ErrElementNotFound)
	assert.Equal(t, 1, result.Attempts)
}

// TestNewFetcher_MinimumOneAttempt verifies a zero retry limit still fetches once
func TestNewFetcher_MinimumOneAttempt(t *testing.T) {
	drv := browsertest.New()
	drv.AddPage("https://test.example.com/p/a-post", fullPost)

	cfg := testConfig()
	cfg.RetryLimit = 0
	result, err := NewFetcher(drv, cfg).FetchWithRetry(context.Background(), archive.PostSummary{URL: "https://test.example.com/p/a-post"})

	require.NoError(t, err)
	assert.True(t, result.Fetched())
}
