package book

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	epub "github.com/go-shiori/go-epub"
	"github.com/google/uuid"
)

// Writer serializes a document to a file.
type Writer interface {
	Write(doc *Document, path string) error
}

// EPUBWriter writes EPUB 3 containers.
type EPUBWriter struct{}

// NewIdentifier returns a fresh book identifier.
func NewIdentifier() string {
	return "urn:uuid:" + uuid.NewString()
}

// DefaultFileStem names the book when the blog name has no usable
// characters.
const DefaultFileStem = "book"

// OutputPath returns where the book for blogName is written inside dir.
func OutputPath(dir, blogName string) string {
	stem := SanitizeFilename(blogName)
	if stem == "" {
		stem = DefaultFileStem
	}
	return filepath.Join(dir, stem+".epub")
}

// Write builds the EPUB in memory and writes it to path. Chapters are added
// in spine order; the navigation document and NCX are generated from them.
func (EPUBWriter) Write(doc *Document, path string) error {
	book, err := epub.NewEpub(doc.Title)
	if err != nil {
		return fmt.Errorf("failed to create epub: %w", err)
	}

	book.SetLang(doc.Language)
	identifier := doc.Metadata.Identifier
	if identifier == "" {
		identifier = NewIdentifier()
	}
	book.SetIdentifier(identifier)
	if doc.Metadata.Description != "" {
		book.SetDescription(doc.Metadata.Description)
	}
	author := doc.Metadata.Author
	if author == "" {
		author = doc.Metadata.Publisher
	}
	if author != "" {
		book.SetAuthor(author)
	}

	chapters := make(map[string]Chapter, len(doc.Chapters))
	for _, c := range doc.Chapters {
		chapters[c.FileName] = c
	}

	for _, name := range doc.Spine {
		if name == NavID {
			continue
		}
		c, ok := chapters[name]
		if !ok {
			return fmt.Errorf("spine entry %s has no chapter", name)
		}
		if _, err := book.AddSection(c.Content, c.Title, c.FileName, ""); err != nil {
			return fmt.Errorf("failed to add chapter %d (%s): %w", c.Index, c.Title, err)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if err := book.Write(path); err != nil {
		return fmt.Errorf("failed to write epub: %w", err)
	}

	slog.Info("wrote book", "path", path, "chapters", len(doc.Chapters))
	return nil
}
