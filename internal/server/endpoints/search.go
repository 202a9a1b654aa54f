package endpoints

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/vmishra/bookflix/internal/api"
	"github.com/vmishra/bookflix/internal/search"
	"github.com/vmishra/bookflix/internal/svcctx"
	"github.com/vmishra/bookflix/internal/types"
)

// SearchResponse is the hybrid search response.
type SearchResponse struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
	Count   int             `json:"count"`
}

// SearchEndpoint handles GET /api/v1/search: hybrid FTS + vector search
// across book chunks.
type SearchEndpoint struct{}

func (e *SearchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/search", e.handler
}

func (e *SearchEndpoint) RequiresInit() bool { return true }

func (e *SearchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusUnprocessableEntity, "query parameter q is required")
		return
	}
	limit := queryInt(r, "limit", 10)
	bookIDs := queryIDs(r, "book_ids")

	results, err := svcctx.SearcherFrom(r.Context()).Hybrid(r.Context(), query, limit, bookIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: query, Results: results, Count: len(results)})
}

func (e *SearchEndpoint) Command(getServerURL func() string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Hybrid search across the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := fmt.Sprintf("/api/v1/search?q=%s&limit=%d", url.QueryEscape(args[0]), limit)
			var resp SearchResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}

// SuggestResponse is the search suggestion response.
type SuggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

// SearchSuggestEndpoint handles GET /api/v1/search/suggest: title
// completions for the search box.
type SearchSuggestEndpoint struct{}

func (e *SearchSuggestEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/search/suggest", e.handler
}

func (e *SearchSuggestEndpoint) RequiresInit() bool { return true }

func (e *SearchSuggestEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusOK, SuggestResponse{Suggestions: []string{}})
		return
	}
	books, err := svcctx.StoreFrom(r.Context()).SearchBooks(r.Context(), query, queryInt(r, "limit", 5))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	suggestions := make([]string, 0, len(books))
	for _, b := range books {
		suggestions = append(suggestions, b.Title)
	}
	writeJSON(w, http.StatusOK, SuggestResponse{Suggestions: suggestions})
}

func (e *SearchSuggestEndpoint) Command(_ func() string) *cobra.Command { return nil }

// SearchBooksEndpoint handles GET /api/v1/search/books: full-text search
// over book titles, authors, and body previews.
type SearchBooksEndpoint struct{}

func (e *SearchBooksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/search/books", e.handler
}

func (e *SearchBooksEndpoint) RequiresInit() bool { return true }

func (e *SearchBooksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusUnprocessableEntity, "query parameter q is required")
		return
	}
	books, err := svcctx.StoreFrom(r.Context()).SearchBooks(r.Context(), query, queryInt(r, "limit", 20))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if books == nil {
		books = []*types.Book{}
	}
	writeJSON(w, http.StatusOK, ListBooksResponse{Books: books, Count: len(books)})
}

func (e *SearchBooksEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "search-books <query>",
		Short: "Search book titles and authors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListBooksResponse
			path := "/api/v1/search/books?q=" + url.QueryEscape(args[0])
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
