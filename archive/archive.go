// Package archive expands a publication's lazily loaded archive listing and
// reads the post summaries out of it.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/substack2epub/browser"
	"github.com/pevans/substack2epub/scraper"
)

// PostSummary is one entry of the archive listing.
type PostSummary struct {
	URL       string
	Title     string
	Paywalled bool
}

// Archive is the result of discovery. Posts are newest first, as the
// listing shows them.
type Archive struct {
	BlogName string
	Posts    []PostSummary
}

// PaywallPolicy selects posts by their paywall flag.
type PaywallPolicy string

const (
	PaywallInclude PaywallPolicy = "include" // Every post
	PaywallExclude PaywallPolicy = "exclude" // Free posts only
	PaywallOnly    PaywallPolicy = "only"    // Paywalled posts only
)

// ParsePaywallPolicy accepts the policy names used in config files. An
// empty string means PaywallInclude.
func ParsePaywallPolicy(s string) (PaywallPolicy, error) {
	switch p := PaywallPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PaywallInclude, nil
	case PaywallInclude, PaywallExclude, PaywallOnly:
		return p, nil
	default:
		return "", fmt.Errorf("unknown paywall policy %q (want include, exclude or only)", s)
	}
}

func (p PaywallPolicy) allows(paywalled bool) bool {
	switch p {
	case PaywallExclude:
		return !paywalled
	case PaywallOnly:
		return paywalled
	default:
		return true
	}
}

// Options controls discovery.
type Options struct {
	// Limit caps the number of summaries returned. Negative means no cap.
	Limit int
	// TitleFilter keeps only titles it matches at their start. Nil keeps
	// everything.
	TitleFilter *regexp.Regexp
	Paywall     PaywallPolicy
	// MaxScrolls bounds the expansion loop. Zero or negative lets it run
	// until the page stops growing.
	MaxScrolls  int
	ScrollDelay time.Duration
	WaitTimeout time.Duration
	Selectors   scraper.ArchiveConfig
}

// DefaultOptions returns unbounded discovery with the default selectors.
func DefaultOptions() Options {
	return Options{
		Limit:       -1,
		Paywall:     PaywallInclude,
		MaxScrolls:  1000,
		ScrollDelay: 500 * time.Millisecond,
		WaitTimeout: 30 * time.Second,
		Selectors:   scraper.DefaultSelectors().Archive,
	}
}

// CompileTitleFilter compiles pattern so that it must match at the start of
// a title. An empty pattern returns nil.
func CompileTitleFilter(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)`)
	if err != nil {
		return nil, fmt.Errorf("invalid title filter: %w", err)
	}
	return re, nil
}

// DiscoverPosts opens the archive of the publication at baseURL, scrolls
// until every post is loaded and returns the selected summaries.
func DiscoverPosts(ctx context.Context, drv browser.Driver, baseURL string, opts Options) (*Archive, error) {
	sel := opts.Selectors
	archiveURL := strings.TrimRight(baseURL, "/") + sel.Path

	if err := drv.Navigate(ctx, archiveURL); err != nil {
		return nil, err
	}

	html, err := drv.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	blogName, err := ExtractBlogName(doc, sel)
	if err != nil {
		return nil, err
	}
	slog.Info("found publication", "name", blogName, "url", archiveURL)

	if err := expand(ctx, drv, opts); err != nil {
		return nil, err
	}

	html, err = drv.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err = goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	all := ExtractSummaries(doc, sel, archiveURL)
	posts := Select(all, opts.TitleFilter, opts.Paywall, opts.Limit)
	slog.Info("discovered posts", "listed", len(all), "selected", len(posts))

	return &Archive{BlogName: blogName, Posts: posts}, nil
}

// expand scrolls until the document height stops growing between two
// consecutive scrolls.
func expand(ctx context.Context, drv browser.Driver, opts Options) error {
	last, err := drv.ScrollHeight(ctx)
	if err != nil {
		return err
	}

	for i := 0; opts.MaxScrolls <= 0 || i < opts.MaxScrolls; i++ {
		if err := drv.ScrollToBottom(ctx); err != nil {
			return fmt.Errorf("failed to scroll: %w", err)
		}

		if opts.ScrollDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.ScrollDelay):
			}
		}

		if err := drv.WaitAbsent(ctx, opts.Selectors.PlaceholderSelector, opts.WaitTimeout); err != nil {
			return fmt.Errorf("archive never finished loading: %w", err)
		}

		recent, err := drv.ScrollHeight(ctx)
		if err != nil {
			return err
		}
		slog.Info("scrolling screen down", "last", last, "now", recent)
		if recent == last {
			return nil
		}
		last = recent
	}

	slog.Warn("archive still growing, giving up on scrolling", "scrolls", opts.MaxScrolls)
	return nil
}

// ExtractBlogName reads the publication's display name.
func ExtractBlogName(doc *goquery.Document, sel scraper.ArchiveConfig) (string, error) {
	name := doc.Find(sel.BlogNameSelector).First()
	if name.Length() == 0 {
		return "", fmt.Errorf("%w: blog name (%s)", scraper.ErrElementNotFound, sel.BlogNameSelector)
	}
	return normalizeSpace(name.Text()), nil
}

// ExtractSummaries reads every post preview in document order. Previews
// without a title link are skipped. Relative links are resolved against
// pageURL.
func ExtractSummaries(doc *goquery.Document, sel scraper.ArchiveConfig, pageURL string) []PostSummary {
	base, _ := url.Parse(pageURL)

	posts := []PostSummary{}
	doc.Find(sel.PreviewSelector).Each(func(i int, s *goquery.Selection) {
		link := s.Find(sel.TitleSelector).First()
		if link.Length() == 0 {
			slog.Warn("post preview has no title link", "index", i)
			return
		}

		href, _ := link.Attr("href")
		if base != nil {
			if ref, err := url.Parse(href); err == nil {
				href = base.ResolveReference(ref).String()
			}
		}

		posts = append(posts, PostSummary{
			URL:       href,
			Title:     normalizeSpace(link.Text()),
			Paywalled: s.Find(sel.LockSelector).Length() > 0,
		})
	})

	return posts
}

// Select applies the title filter and paywall policy, then truncates to
// limit when limit is not negative. Order is preserved.
func Select(posts []PostSummary, filter *regexp.Regexp, paywall PaywallPolicy, limit int) []PostSummary {
	selected := []PostSummary{}
	for _, p := range posts {
		if limit >= 0 && len(selected) >= limit {
			break
		}
		if filter != nil && !filter.MatchString(p.Title) {
			continue
		}
		if !paywall.allows(p.Paywalled) {
			continue
		}
		selected = append(selected, p)
	}
	return selected
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
