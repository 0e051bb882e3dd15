// Package feed reads a publication's RSS feed for the book metadata the
// archive page does not show.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"
)

// Publication is the feed-level metadata of a publication.
type Publication struct {
	Title       string
	Description string
	Author      string
	Language    string
}

// Client fetches publication feeds.
type Client struct {
	http *resty.Client
}

// NewClient creates a client with a 10 second timeout.
func NewClient() *Client {
	return &Client{
		http: resty.New().
			SetTimeout(10*time.Second).
			SetHeader("User-Agent", "substack2epub/1.0 (offline archive builder)"),
	}
}

// FeedURL returns the feed location for a publication's base URL.
func FeedURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/feed"
}

// FetchPublication downloads and parses the feed of the publication at
// baseURL.
func (c *Client) FetchPublication(ctx context.Context, baseURL string) (*Publication, error) {
	resp, err := c.http.R().SetContext(ctx).Get(FeedURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status())
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	return FeedToPublication(parsed), nil
}

// FeedToPublication maps a parsed RSS or Atom feed onto Publication.
// gofeed normalizes RSS managingEditor and dc:creator into Authors; the
// iTunes author is the last resort.
func FeedToPublication(f *gofeed.Feed) *Publication {
	pub := &Publication{
		Title:       strings.TrimSpace(f.Title),
		Description: strings.TrimSpace(f.Description),
		Language:    strings.TrimSpace(f.Language),
	}

	names := []string{}
	for _, a := range f.Authors {
		if a != nil && a.Name != "" {
			names = append(names, a.Name)
		}
	}
	if len(names) == 0 && f.Author != nil && f.Author.Name != "" {
		names = append(names, f.Author.Name)
	}
	if len(names) == 0 && f.ITunesExt != nil && f.ITunesExt.Author != "" {
		names = append(names, f.ITunesExt.Author)
	}
	pub.Author = strings.Join(names, ", ")

	return pub
}
