// Package library imports book files from disk: a recursive scan of the
// books directory, content-hash deduplication, and job rows for the
// processing pipeline. The orchestrator picks imported books up from
// their pending status.
package library

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmishra/bookflix/internal/extract"
	"github.com/vmishra/bookflix/internal/store"
	"github.com/vmishra/bookflix/internal/types"
)

// Store is the persistence surface the scanner needs.
type Store interface {
	BookByFileHash(ctx context.Context, hash string) (*types.Book, error)
	CreateBook(ctx context.Context, b *types.Book) (*types.Book, error)
	AddBookFile(ctx context.Context, f *types.BookFile) (*types.BookFile, error)
	EnqueueJob(ctx context.Context, bookID int64, stage types.Stage) (*types.ProcessingJob, error)
}

// Result summarizes one scan.
type Result struct {
	Imported   int `json:"imported"`
	Skipped    int `json:"skipped"`
	Errors     int `json:"errors"`
	TotalFound int `json:"total_found"`
}

// Scanner imports books from a directory tree.
type Scanner struct {
	store     Store
	booksPath string
	logger    *slog.Logger
}

func NewScanner(st Store, booksPath string, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{store: st, booksPath: booksPath, logger: logger.With("component", "library")}
}

// fileTypeFor maps a path to a supported book format, or "".
func fileTypeFor(path string) types.FileType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return types.FileTypePDF
	case ".epub":
		return types.FileTypeEPUB
	}
	return ""
}

// HashFile computes the SHA-256 content hash that identifies a book.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Scan walks the configured books directory and imports every book file
// not already in the library. A file whose content hash matches an
// existing book is skipped regardless of its name or location.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	return s.ScanDir(ctx, s.booksPath)
}

// ScanDir scans an explicit directory instead of the configured one.
func (s *Scanner) ScanDir(ctx context.Context, dir string) (*Result, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && fileTypeFor(path) != "" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	result := &Result{TotalFound: len(paths)}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		imported, err := s.importFile(ctx, path)
		if err != nil {
			s.logger.Error("import failed", "path", path, "error", err)
			result.Errors++
			continue
		}
		if imported {
			result.Imported++
		} else {
			result.Skipped++
		}
	}

	s.logger.Info("library scan finished",
		"found", result.TotalFound, "imported", result.Imported,
		"skipped", result.Skipped, "errors", result.Errors)
	return result, nil
}

// importFile imports one file, returning false when its hash is already
// known.
func (s *Scanner) importFile(ctx context.Context, path string) (bool, error) {
	hash, err := HashFile(path)
	if err != nil {
		return false, fmt.Errorf("hash: %w", err)
	}

	_, err = s.store.BookByFileHash(ctx, hash)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("lookup hash: %w", err)
	}

	title, author := extract.ParseFilename(path)
	book, err := s.store.CreateBook(ctx, &types.Book{
		Title:            title,
		Author:           author,
		FileHash:         hash,
		ProcessingStatus: types.StatusPending,
	})
	if err != nil {
		return false, fmt.Errorf("create book: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat: %w", err)
	}
	if _, err := s.store.AddBookFile(ctx, &types.BookFile{
		BookID:   book.ID,
		FilePath: path,
		FileType: fileTypeFor(path),
		FileSize: info.Size(),
	}); err != nil {
		return false, fmt.Errorf("record file: %w", err)
	}

	for _, stage := range types.PipelineStages {
		if _, err := s.store.EnqueueJob(ctx, book.ID, stage); err != nil {
			return false, fmt.Errorf("enqueue %s: %w", stage, err)
		}
	}
	return true, nil
}
