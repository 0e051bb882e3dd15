package crawl

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pevans/substack2epub/archive"
)

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	return t
}

// PrintPosts writes the discovered posts as a table, newest first.
func PrintPosts(out io.Writer, posts []archive.PostSummary) {
	t := newTable(out)
	t.AppendHeader(table.Row{"#", "Title", "Paywalled", "URL"})
	for i, p := range posts {
		t.AppendRow(table.Row{i + 1, p.Title, p.Paywalled, p.URL})
	}
	t.AppendFooter(table.Row{"", "Total", len(posts), ""})
	t.Render()
}

// PrintReport writes the run summary followed by every post that could not
// be fetched.
func PrintReport(out io.Writer, r *Report) {
	t := newTable(out)
	t.AppendRows([]table.Row{
		{"Publication", r.BlogName},
		{"Book", r.OutputPath},
		{"Posts discovered", r.Discovered},
		{"Chapters written", r.Chapters},
		{"Posts skipped", len(r.Unfetched)},
		{"Duration", r.Duration.Round(time.Second)},
	})
	t.Render()

	if len(r.Unfetched) == 0 {
		return
	}

	u := newTable(out)
	u.AppendHeader(table.Row{"Not fetched"})
	for _, url := range r.Unfetched {
		u.AppendRow(table.Row{url})
	}
	u.Render()
}
