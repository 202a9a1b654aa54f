package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ltpdf "github.com/ledongthuc/pdf"
	pdfcpu "github.com/pdfcpu/pdfcpu/pkg/api"
)

// PDF extracts per-page text, document metadata, and a cover image from a
// PDF file.
func PDF(path string) (*Result, error) {
	f, r, err := ltpdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	result := &Result{}

	info := r.Trailer().Key("Info")
	if !info.IsNull() {
		if title := info.Key("Title"); !title.IsNull() {
			result.Title = strings.TrimSpace(title.Text())
		}
		if author := info.Key("Author"); !author.IsNull() {
			result.Author = strings.TrimSpace(author.Text())
		}
	}

	numPages := r.NumPage()
	result.TotalPages = numPages

	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single undecodable page should not fail the whole book.
			continue
		}
		result.Pages = append(result.Pages, Page{
			Text:       text,
			PageNumber: i,
		})
	}

	// pdfcpu gives a second opinion on page count and access to embedded
	// images for the cover.
	if count, err := pageCount(path); err == nil && count > 0 {
		result.TotalPages = count
	}
	result.CoverImage = firstPageImage(path)

	return result, nil
}

func pageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return pdfcpu.PageCount(f, nil)
}

// firstPageImage extracts the largest image embedded in the first pages of
// the PDF, which is usually the cover. Returns nil if none is found.
func firstPageImage(path string) []byte {
	tmpDir, err := os.MkdirTemp("", "bookflix-cover-")
	if err != nil {
		return nil
	}
	defer os.RemoveAll(tmpDir)

	if err := pdfcpu.ExtractImagesFile(path, tmpDir, []string{"1-3"}, nil); err != nil {
		return nil
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil || len(entries) == 0 {
		return nil
	}

	// Largest image wins.
	sort.Slice(entries, func(i, j int) bool {
		fi, errI := entries[i].Info()
		fj, errJ := entries[j].Info()
		if errI != nil || errJ != nil {
			return false
		}
		return fi.Size() > fj.Size()
	})

	data, err := os.ReadFile(filepath.Join(tmpDir, entries[0].Name()))
	if err != nil {
		return nil
	}
	return data
}
