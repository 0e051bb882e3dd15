// Package browsertest provides a scripted browser.Driver for tests.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/substack2epub/browser"
)

// Page is one URL's scripted content. States are successive renderings;
// each scroll to the bottom advances to the next one until the last is
// reached, which is how lazy-loaded listings grow.
type Page struct {
	States []string
	// Stalls is the number of initial visits that render an empty document,
	// so waits for content time out.
	Stalls int
	// Heights overrides the reported scroll height per state. When nil the
	// height is the length of the state's HTML.
	Heights []int64
	// Growing makes every scroll report a taller page, for listings that
	// never settle.
	Growing bool
}

// Fake is an in-memory browser.Driver. Presence checks run the selector
// against the current HTML, so a wait either succeeds immediately or fails
// with browser.ErrTimeout.
type Fake struct {
	Pages map[string]*Page
	// Redirects maps a clicked selector to the URL the click navigates to.
	Redirects map[string]string

	Visits  []string
	Clicks  []string
	Typed   map[string]string
	Scrolls int
	Closed  bool

	current string
	state   int
	stalled bool
	extra   int64
}

// New returns a fake with no pages.
func New() *Fake {
	return &Fake{
		Pages:     map[string]*Page{},
		Redirects: map[string]string{},
		Typed:     map[string]string{},
	}
}

// AddPage registers url with the given renderings.
func (f *Fake) AddPage(url string, states ...string) *Page {
	p := &Page{States: states}
	f.Pages[url] = p
	return p
}

func (f *Fake) Navigate(_ context.Context, url string) error {
	f.Visits = append(f.Visits, url)
	page, ok := f.Pages[url]
	if !ok {
		return fmt.Errorf("no page scripted for %s", url)
	}

	f.current = url
	f.state = 0
	f.extra = 0
	f.stalled = page.Stalls > 0
	if f.stalled {
		page.Stalls--
	}
	return nil
}

func (f *Fake) html() string {
	page, ok := f.Pages[f.current]
	if !ok || f.stalled || len(page.States) == 0 {
		return "<html><head></head><body></body></html>"
	}
	return page.States[f.state]
}

func (f *Fake) present(selector string) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(f.html()))
	if err != nil {
		return false, err
	}
	return doc.Find(selector).Length() > 0, nil
}

func (f *Fake) WaitPresent(_ context.Context, selector string, timeout time.Duration) error {
	ok, err := f.present(selector)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w after %v: %s never appeared", browser.ErrTimeout, timeout, selector)
	}
	return nil
}

func (f *Fake) WaitAbsent(_ context.Context, selector string, timeout time.Duration) error {
	ok, err := f.present(selector)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w after %v: %s never went away", browser.ErrTimeout, timeout, selector)
	}
	return nil
}

func (f *Fake) Click(_ context.Context, selector string) error {
	ok, err := f.present(selector)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no element matches %s", browser.ErrTimeout, selector)
	}
	f.Clicks = append(f.Clicks, selector)
	if url, ok := f.Redirects[selector]; ok {
		return f.Navigate(context.Background(), url)
	}
	return nil
}

func (f *Fake) Type(_ context.Context, selector, text string) error {
	ok, err := f.present(selector)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no element matches %s", browser.ErrTimeout, selector)
	}
	f.Typed[selector] += text
	return nil
}

func (f *Fake) ScrollToBottom(_ context.Context) error {
	f.Scrolls++
	page, ok := f.Pages[f.current]
	if !ok {
		return nil
	}
	if f.state < len(page.States)-1 {
		f.state++
	}
	if page.Growing {
		f.extra += 100
	}
	return nil
}

func (f *Fake) ScrollHeight(_ context.Context) (int64, error) {
	page, ok := f.Pages[f.current]
	if ok && f.state < len(page.Heights) {
		return page.Heights[f.state] + f.extra, nil
	}
	return int64(len(f.html())) + f.extra, nil
}

func (f *Fake) HTML(_ context.Context) (string, error) {
	return f.html(), nil
}

func (f *Fake) Close() error {
	f.Closed = true
	return nil
}

var _ browser.Driver = (*Fake)(nil)
