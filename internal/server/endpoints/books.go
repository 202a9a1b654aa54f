package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/vmishra/bookflix/internal/api"
	"github.com/vmishra/bookflix/internal/store"
	"github.com/vmishra/bookflix/internal/svcctx"
	"github.com/vmishra/bookflix/internal/types"
)

// ListBooksResponse is the response for listing books.
type ListBooksResponse struct {
	Books []*types.Book `json:"books"`
	Count int           `json:"count"`
}

// ListBooksEndpoint handles GET /api/v1/books.
type ListBooksEndpoint struct{}

func (e *ListBooksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/books", e.handler
}

func (e *ListBooksEndpoint) RequiresInit() bool { return true }

func (e *ListBooksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	status := types.ProcessingStatus(r.URL.Query().Get("status"))
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	books, err := st.ListBooks(r.Context(), status, limit, offset)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListBooksResponse{Books: books, Count: len(books)})
}

func (e *ListBooksEndpoint) Command(getServerURL func() string) *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "books",
		Short: "List books in the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := fmt.Sprintf("/api/v1/books?limit=%d", limit)
			if status != "" {
				path += "&status=" + status
			}
			var resp ListBooksResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by processing status")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum books to return")
	return cmd
}

// GetBookEndpoint handles GET /api/v1/books/{id}.
type GetBookEndpoint struct{}

func (e *GetBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/books/{id}", e.handler
}

func (e *GetBookEndpoint) RequiresInit() bool { return true }

func (e *GetBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	book, err := svcctx.StoreFrom(r.Context()).GetBook(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (e *GetBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "book <id>",
		Short: "Get a book by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var book types.Book
			if err := client.Get(cmd.Context(), "/api/v1/books/"+args[0], &book); err != nil {
				return err
			}
			return api.Output(book)
		},
	}
}

// UpdateBookEndpoint handles PATCH /api/v1/books/{id}.
type UpdateBookEndpoint struct{}

func (e *UpdateBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PATCH", "/api/v1/books/{id}", e.handler
}

func (e *UpdateBookEndpoint) RequiresInit() bool { return true }

func (e *UpdateBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	var patch store.BookPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	book, err := svcctx.StoreFrom(r.Context()).UpdateBook(r.Context(), id, patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (e *UpdateBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	var title, author string
	cmd := &cobra.Command{
		Use:   "update-book <id>",
		Short: "Update book fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := store.BookPatch{}
			if title != "" {
				patch.Title = &title
			}
			if author != "" {
				patch.Author = &author
			}
			client := api.NewClient(getServerURL())
			var book types.Book
			if err := client.Patch(cmd.Context(), "/api/v1/books/"+args[0], patch, &book); err != nil {
				return err
			}
			return api.Output(book)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&author, "author", "", "new author")
	return cmd
}

// DeleteBookEndpoint handles DELETE /api/v1/books/{id}.
type DeleteBookEndpoint struct{}

func (e *DeleteBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/v1/books/{id}", e.handler
}

func (e *DeleteBookEndpoint) RequiresInit() bool { return true }

func (e *DeleteBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	if err := svcctx.StoreFrom(r.Context()).DeleteBook(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (e *DeleteBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-book <id>",
		Short: "Delete a book and its derived data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			return client.Delete(cmd.Context(), "/api/v1/books/"+args[0])
		},
	}
}

// BookFileEndpoint handles GET /api/v1/books/{id}/file, serving the
// original book file for in-browser reading.
type BookFileEndpoint struct{}

func (e *BookFileEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/books/{id}/file", e.handler
}

func (e *BookFileEndpoint) RequiresInit() bool { return true }

func (e *BookFileEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	file, err := svcctx.StoreFrom(r.Context()).BookFile(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if file.FileType == types.FileTypePDF {
		w.Header().Set("Content-Type", "application/pdf")
	} else {
		w.Header().Set("Content-Type", "application/epub+zip")
	}
	http.ServeFile(w, r, file.FilePath)
}

func (e *BookFileEndpoint) Command(_ func() string) *cobra.Command { return nil }

// BookCoverEndpoint handles GET /api/v1/books/{id}/cover.
type BookCoverEndpoint struct{}

func (e *BookCoverEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/books/{id}/cover", e.handler
}

func (e *BookCoverEndpoint) RequiresInit() bool { return true }

func (e *BookCoverEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	book, err := svcctx.StoreFrom(r.Context()).GetBook(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if book.CoverPath == "" {
		writeError(w, http.StatusNotFound, "book has no cover")
		return
	}
	http.ServeFile(w, r, book.CoverPath)
}

func (e *BookCoverEndpoint) Command(_ func() string) *cobra.Command { return nil }

// RecentBooksEndpoint handles GET /api/v1/books/recent.
type RecentBooksEndpoint struct{}

func (e *RecentBooksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/books/recent", e.handler
}

func (e *RecentBooksEndpoint) RequiresInit() bool { return true }

func (e *RecentBooksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	books, err := svcctx.StoreFrom(r.Context()).RecentBooks(r.Context(), queryInt(r, "limit", 10))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListBooksResponse{Books: books, Count: len(books)})
}

func (e *RecentBooksEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "recent",
		Short: "List recently added books",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListBooksResponse
			if err := client.Get(cmd.Context(), "/api/v1/books/recent", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ContinueReadingEndpoint handles GET /api/v1/books/continue-reading.
type ContinueReadingEndpoint struct{}

func (e *ContinueReadingEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/books/continue-reading", e.handler
}

func (e *ContinueReadingEndpoint) RequiresInit() bool { return true }

func (e *ContinueReadingEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	books, err := svcctx.StoreFrom(r.Context()).ContinueReading(r.Context(), queryInt(r, "limit", 10))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListBooksResponse{Books: books, Count: len(books)})
}

func (e *ContinueReadingEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "continue-reading",
		Short: "List books currently being read",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListBooksResponse
			if err := client.Get(cmd.Context(), "/api/v1/books/continue-reading", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
