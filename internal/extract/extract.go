// Package extract pulls text, metadata, and cover images out of PDF and
// EPUB files.
package extract

import (
	"fmt"
	"unicode/utf8"

	"github.com/vmishra/bookflix/internal/types"
)

// Page is one unit of extracted text: a PDF page or an EPUB chapter.
type Page struct {
	Text       string
	PageNumber int
	Chapter    string
}

// Result is the outcome of extracting a book file.
type Result struct {
	Title      string
	Author     string
	Pages      []Page
	CoverImage []byte
	TotalPages int
}

// File extracts the given file by type.
func File(path string, fileType types.FileType) (*Result, error) {
	switch fileType {
	case types.FileTypePDF:
		return PDF(path)
	case types.FileTypeEPUB:
		return EPUB(path)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", fileType)
	}
}

// BodyPreview joins the leading text of the first pages for book-level
// full-text indexing: up to 500 bytes per page from the first 10 pages,
// capped at limit.
func BodyPreview(pages []Page, limit int) string {
	out := ""
	for i, p := range pages {
		if i >= 10 {
			break
		}
		t := Truncate(p.Text, 500)
		if out != "" {
			out += " "
		}
		out += t
		if len(out) >= limit {
			return Truncate(out, limit)
		}
	}
	return out
}

// Truncate cuts s to at most max bytes without splitting a rune. Postgres
// rejects invalid UTF-8, so every byte-length cap on extracted text goes
// through here.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
