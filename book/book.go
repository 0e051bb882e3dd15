// Package book assembles fetched posts into an e-book document and writes
// it out as EPUB.
package book

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"github.com/pevans/substack2epub/archive"
	"github.com/pevans/substack2epub/post"
)

// NavID is the spine entry of the navigation document.
const NavID = "nav"

// Entry pairs a discovered post with its content. Content is nil when the
// post could not be fetched.
type Entry struct {
	Summary archive.PostSummary
	Content *post.Content
}

// Chapter is one post in the book.
type Chapter struct {
	Index    int
	FileName string
	Title    string
	URL      string
	Content  string // Header followed by the post body
}

// TOCEntry is one line of the table of contents.
type TOCEntry struct {
	FileName string
	Title    string
}

// Metadata is the book's descriptive metadata.
type Metadata struct {
	Identifier  string
	Description string
	// Publisher is not stored as its own field: go-epub has no publisher
	// setter. It is written as the author when Author is empty.
	Publisher string
	Author    string
}

// Document is a complete book held in memory.
type Document struct {
	Title    string
	Language string
	Metadata Metadata
	Chapters []Chapter
	TOC      []TOCEntry
	// Spine is the reading order: NavID, then chapter file names.
	Spine []string
	// Unfetched lists the URLs of posts that have no chapter.
	Unfetched []string
}

// Assemble builds a document from entries given in discovery order (newest
// first). Chapters run oldest first and are numbered from zero without
// gaps; entries without content only show up in Unfetched.
func Assemble(blogName, language string, entries []Entry) (*Document, error) {
	doc := &Document{
		Title:     blogName,
		Language:  language,
		Chapters:  []Chapter{},
		TOC:       []TOCEntry{},
		Spine:     []string{NavID},
		Unfetched: []string{},
	}

	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if entry.Content == nil {
			doc.Unfetched = append(doc.Unfetched, entry.Summary.URL)
			continue
		}

		header, err := Header(entry.Summary.URL, entry.Content)
		if err != nil {
			return nil, err
		}

		index := len(doc.Chapters)
		chapter := Chapter{
			Index:    index,
			FileName: ChapterFileName(index, entry.Content.Title),
			Title:    entry.Content.Title,
			URL:      entry.Summary.URL,
			Content:  header + entry.Content.BodyHTML,
		}

		doc.Chapters = append(doc.Chapters, chapter)
		doc.TOC = append(doc.TOC, TOCEntry{FileName: chapter.FileName, Title: chapter.Title})
		doc.Spine = append(doc.Spine, chapter.FileName)
	}

	return doc, nil
}

var headerTemplate = template.Must(template.New("header").Parse(
	`<h1>{{.Title}}</h1>
<p><time datetime="{{.Date}}"> {{.Date}} </time><span>Likes: {{.LikeCount}} </span><span> Paywalled: {{.Paywalled}}</span></p>
<a href="{{.URL}}">URL: {{.URL}}</a>
<h2>{{.Subtitle}}</h2>
`))

// Header renders the block placed above a post's body: title, date, likes,
// paywall flag, a link back to the post and the subtitle.
func Header(url string, content *post.Content) (string, error) {
	var buf bytes.Buffer
	err := headerTemplate.Execute(&buf, struct {
		*post.Content
		URL string
	}{content, url})
	if err != nil {
		return "", fmt.Errorf("failed to render chapter header: %w", err)
	}
	return buf.String(), nil
}

// ChapterFileName returns the file name of the chapter at index.
func ChapterFileName(index int, title string) string {
	return fmt.Sprintf("%d.%s.xhtml", index, SanitizeFilename(title))
}

var unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}_.\-]`)

// SanitizeFilename trims s, joins words with underscores and drops every
// character other than letters, digits, '-', '_' and '.'.
func SanitizeFilename(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "_")
	return unsafeFilenameChars.ReplaceAllString(s, "")
}
