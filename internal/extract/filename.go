package extract

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	parenPattern   = regexp.MustCompile(`\([^)]*\)`)
	bracketPattern = regexp.MustCompile(`\[[^\]]*\]`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// ParseFilename derives a title and optional author from a book file path
// when embedded metadata is missing. Handles "Author - Title" and
// "Title_Author" naming conventions.
func ParseFilename(path string) (title, author string) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	// Remove common noise like (z-lib.org) or [epub].
	cleaned := parenPattern.ReplaceAllString(stem, "")
	cleaned = bracketPattern.ReplaceAllString(cleaned, "")
	cleaned = strings.Trim(cleaned, " _-.")

	if idx := strings.Index(cleaned, " - "); idx >= 0 {
		return strings.TrimSpace(cleaned[idx+3:]), strings.TrimSpace(cleaned[:idx])
	}

	if idx := strings.LastIndex(cleaned, "_"); idx >= 0 {
		tail := cleaned[idx+1:]
		if len(tail) > 3 {
			title = strings.TrimSpace(strings.ReplaceAll(cleaned[:idx], "_", " "))
			author = strings.TrimSpace(strings.ReplaceAll(tail, "_", " "))
			return title, author
		}
	}

	title = strings.ReplaceAll(cleaned, "_", " ")
	title = strings.ReplaceAll(title, "-", " ")
	title = strings.TrimSpace(spacePattern.ReplaceAllString(title, " "))
	return title, ""
}

// TitleFromFilename returns only the parsed title. Used to detect whether a
// book still carries its filename-derived default title.
func TitleFromFilename(path string) string {
	title, _ := ParseFilename(path)
	return title
}
