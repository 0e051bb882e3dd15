// Package crawl runs the whole archive-to-book pipeline over one browser
// session.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/purell"
	"github.com/pevans/substack2epub/archive"
	"github.com/pevans/substack2epub/auth"
	"github.com/pevans/substack2epub/book"
	"github.com/pevans/substack2epub/browser"
	"github.com/pevans/substack2epub/config"
	"github.com/pevans/substack2epub/feed"
	"github.com/pevans/substack2epub/post"
)

// DefaultLanguage is the book language when neither the config nor the feed
// names one.
const DefaultLanguage = "en"

// ErrInvalidURL is returned for publication URLs that cannot be crawled.
var ErrInvalidURL = errors.New("invalid publication URL")

// PublicationSource provides feed-level metadata for a publication.
type PublicationSource interface {
	FetchPublication(ctx context.Context, baseURL string) (*feed.Publication, error)
}

// Report summarizes a finished run.
type Report struct {
	BlogName   string
	OutputPath string
	Discovered int
	Chapters   int
	// Unfetched lists posts that timed out on every attempt, oldest first.
	Unfetched []string
	Duration  time.Duration
}

// Pipeline wires the crawl components together. It holds the only
// reference to the driver it is given; the caller still owns the driver and
// closes it.
type Pipeline struct {
	driver browser.Driver
	config *config.Config
	writer book.Writer
	feed   PublicationSource
	out    io.Writer
}

// New creates a pipeline. pubs may be nil to skip feed metadata; out
// receives the human-readable tables and may be nil.
func New(drv browser.Driver, cfg *config.Config, writer book.Writer, pubs PublicationSource, out io.Writer) *Pipeline {
	if out == nil {
		out = io.Discard
	}
	return &Pipeline{
		driver: drv,
		config: cfg,
		writer: writer,
		feed:   pubs,
		out:    out,
	}
}

// Run signs in when credentials are configured, discovers the archive of
// the publication at rawURL, fetches every selected post oldest first and
// writes the book. Nothing is written unless every step before the write
// succeeds.
func (p *Pipeline) Run(ctx context.Context, rawURL string) (*Report, error) {
	start := time.Now()

	baseURL, err := NormalizeBaseURL(rawURL)
	if err != nil {
		return nil, err
	}

	crawl := p.config.Crawl
	if p.config.Credentials.Complete() {
		err := auth.SignIn(ctx, p.driver, p.config.Selectors.SignIn, p.config.Credentials, crawl.WaitTimeout)
		if err != nil {
			return nil, err
		}
	}

	opts, err := p.archiveOptions()
	if err != nil {
		return nil, err
	}
	found, err := archive.DiscoverPosts(ctx, p.driver, baseURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to discover posts: %w", err)
	}
	PrintPosts(p.out, found.Posts)

	entries, err := p.fetchAll(ctx, found.Posts)
	if err != nil {
		return nil, err
	}

	meta, language := p.metadata(ctx, baseURL)
	doc, err := book.Assemble(found.BlogName, language, entries)
	if err != nil {
		return nil, err
	}
	doc.Metadata = meta

	path := book.OutputPath(p.config.Book.OutputDir, found.BlogName)
	if err := p.writer.Write(doc, path); err != nil {
		return nil, err
	}

	return &Report{
		BlogName:   found.BlogName,
		OutputPath: path,
		Discovered: len(found.Posts),
		Chapters:   len(doc.Chapters),
		Unfetched:  doc.Unfetched,
		Duration:   time.Since(start),
	}, nil
}

func (p *Pipeline) archiveOptions() (archive.Options, error) {
	crawl := p.config.Crawl

	filter, err := archive.CompileTitleFilter(crawl.TitleFilter)
	if err != nil {
		return archive.Options{}, err
	}
	policy, err := archive.ParsePaywallPolicy(crawl.Paywall)
	if err != nil {
		return archive.Options{}, err
	}

	return archive.Options{
		Limit:       crawl.Limit,
		TitleFilter: filter,
		Paywall:     policy,
		MaxScrolls:  crawl.MaxScrolls,
		ScrollDelay: crawl.ScrollDelay,
		WaitTimeout: crawl.WaitTimeout,
		Selectors:   p.config.Selectors.Archive,
	}, nil
}

// fetchAll fetches posts oldest first and returns entries in the original
// newest-first order.
func (p *Pipeline) fetchAll(ctx context.Context, posts []archive.PostSummary) ([]book.Entry, error) {
	fetcher := post.NewFetcher(p.driver, post.FetcherConfig{
		WaitTimeout: p.config.Crawl.WaitTimeout,
		RetryLimit:  p.config.Crawl.RetryLimit,
		RetryDelay:  p.config.Crawl.RetryDelay,
		Selectors:   p.config.Selectors.Post,
	})

	entries := make([]book.Entry, len(posts))
	for i := len(posts) - 1; i >= 0; i-- {
		slog.Info("fetching post", "n", len(posts)-i, "of", len(posts), "title", posts[i].Title)

		result, err := fetcher.FetchWithRetry(ctx, posts[i])
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", posts[i].URL, err)
		}
		if !result.Fetched() {
			slog.Warn("skipping post", "url", posts[i].URL, "attempts", result.Attempts)
		}
		entries[i] = book.Entry{Summary: result.Summary, Content: result.Content}
	}

	return entries, nil
}

// metadata builds the book metadata and picks its language. Feed failures
// only cost the feed-provided fields.
func (p *Pipeline) metadata(ctx context.Context, baseURL string) (book.Metadata, string) {
	cfg := p.config.Book
	meta := book.Metadata{
		Identifier:  book.NewIdentifier(),
		Description: cfg.Description,
		Publisher:   cfg.Publisher,
	}
	language := cfg.Language

	if cfg.FeedMetadata && p.feed != nil {
		pub, err := p.feed.FetchPublication(ctx, baseURL)
		if err != nil {
			slog.Warn("failed to read publication feed", "url", feed.FeedURL(baseURL), "err", err)
		} else {
			if pub.Description != "" {
				meta.Description = pub.Description
			}
			meta.Author = pub.Author
			if language == "" {
				language = pub.Language
			}
		}
	}

	if language == "" {
		language = DefaultLanguage
	}
	return meta, language
}

// NormalizeBaseURL cleans up a publication URL given on the command line.
// A missing scheme defaults to https.
func NormalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	normalized, err := purell.NormalizeURLString(raw,
		purell.FlagsSafe|purell.FlagRemoveTrailingSlash|purell.FlagRemoveFragment)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	u, err := url.Parse(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: no host", ErrInvalidURL)
	}

	return normalized, nil
}
