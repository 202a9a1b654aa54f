package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vmishra/bookflix/internal/store"
	"github.com/vmishra/bookflix/internal/types"
)

type importedBook struct {
	book  *types.Book
	file  *types.BookFile
	jobs  []types.Stage
}

type fakeLibStore struct {
	byHash map[string]*types.Book
	books  []*importedBook
	nextID int64
}

func newFakeLibStore() *fakeLibStore {
	return &fakeLibStore{byHash: map[string]*types.Book{}}
}

func (f *fakeLibStore) BookByFileHash(_ context.Context, hash string) (*types.Book, error) {
	b, ok := f.byHash[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return b, nil
}

func (f *fakeLibStore) CreateBook(_ context.Context, b *types.Book) (*types.Book, error) {
	f.nextID++
	cp := *b
	cp.ID = f.nextID
	f.byHash[cp.FileHash] = &cp
	f.books = append(f.books, &importedBook{book: &cp})
	return &cp, nil
}

func (f *fakeLibStore) AddBookFile(_ context.Context, bf *types.BookFile) (*types.BookFile, error) {
	for _, ib := range f.books {
		if ib.book.ID == bf.BookID {
			ib.file = bf
		}
	}
	return bf, nil
}

func (f *fakeLibStore) EnqueueJob(_ context.Context, bookID int64, stage types.Stage) (*types.ProcessingJob, error) {
	for _, ib := range f.books {
		if ib.book.ID == bookID {
			ib.jobs = append(ib.jobs, stage)
		}
	}
	return &types.ProcessingJob{BookID: bookID, Stage: stage, Status: types.JobPending}, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestScanImportsAndDedupes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Cal Newport - Deep Work.pdf", "pdf-bytes-one")
	// Same content under a different name in a subdirectory: a duplicate.
	writeFile(t, dir, "nested/deep_work_copy.pdf", "pdf-bytes-one")
	writeFile(t, dir, "notes.txt", "ignored")

	st := newFakeLibStore()
	s := NewScanner(st, dir, nil)

	result, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if result.Imported != 1 || result.Skipped != 1 || result.Errors != 0 {
		t.Errorf("result = %+v, want imported 1, skipped 1, errors 0", result)
	}
	if result.TotalFound != 2 {
		t.Errorf("found %d files, want 2 (txt ignored)", result.TotalFound)
	}

	if len(st.books) != 1 {
		t.Fatalf("created %d books, want 1", len(st.books))
	}
	ib := st.books[0]
	if ib.book.Title != "Deep Work" || ib.book.Author != "Cal Newport" {
		t.Errorf("parsed metadata = %q by %q", ib.book.Title, ib.book.Author)
	}
	if ib.book.ProcessingStatus != types.StatusPending {
		t.Errorf("status = %q, want pending", ib.book.ProcessingStatus)
	}
	if ib.file == nil || ib.file.FileType != types.FileTypePDF || ib.file.FileSize == 0 {
		t.Errorf("file record = %+v", ib.file)
	}

	if len(ib.jobs) != len(types.PipelineStages) {
		t.Fatalf("got %d job rows, want %d", len(ib.jobs), len(types.PipelineStages))
	}
	for i, stage := range types.PipelineStages {
		if ib.jobs[i] != stage {
			t.Errorf("job %d = %q, want %q", i, ib.jobs[i], stage)
		}
	}
}

func TestScanSecondRunAllSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.epub", "epub-a")
	writeFile(t, dir, "b.pdf", "pdf-b")

	st := newFakeLibStore()
	s := NewScanner(st, dir, nil)

	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	result, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if result.Imported != 0 || result.Skipped != 2 {
		t.Errorf("second scan = %+v, want everything skipped", result)
	}
}

func TestHashFileStable(t *testing.T) {
	dir := t.TempDir()
	p1 := writeFile(t, dir, "one.pdf", "same content")
	p2 := writeFile(t, dir, "two.pdf", "same content")
	p3 := writeFile(t, dir, "three.pdf", "other content")

	h1, err := HashFile(p1)
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := HashFile(p2)
	h3, _ := HashFile(p3)
	if h1 != h2 {
		t.Error("identical content hashed differently")
	}
	if h1 == h3 {
		t.Error("different content produced the same hash")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h1))
	}
}
