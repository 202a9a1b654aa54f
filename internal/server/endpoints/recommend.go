package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/vmishra/bookflix/internal/api"
	"github.com/vmishra/bookflix/internal/store"
	"github.com/vmishra/bookflix/internal/svcctx"
)

// RecommendationsResponse lists scored book recommendations.
type RecommendationsResponse struct {
	Recommendations []store.ScoredBook `json:"recommendations"`
	Count           int                `json:"count"`
}

// RecommendationsEndpoint handles GET /api/v1/recommendations: picks
// seeded from recent reading history.
type RecommendationsEndpoint struct{}

func (e *RecommendationsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/recommendations", e.handler
}

func (e *RecommendationsEndpoint) RequiresInit() bool { return true }

func (e *RecommendationsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	recs, err := svcctx.RecommendFrom(r.Context()).ForReader(r.Context(), queryInt(r, "limit", 5))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if recs == nil {
		recs = []store.ScoredBook{}
	}
	writeJSON(w, http.StatusOK, RecommendationsResponse{Recommendations: recs, Count: len(recs)})
}

func (e *RecommendationsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "recommendations",
		Short: "Recommend books based on reading history",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp RecommendationsResponse
			if err := client.Get(cmd.Context(), "/api/v1/recommendations", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// SimilarBooksEndpoint handles GET /api/v1/recommendations/similar/{id}.
type SimilarBooksEndpoint struct{}

func (e *SimilarBooksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/recommendations/similar/{id}", e.handler
}

func (e *SimilarBooksEndpoint) RequiresInit() bool { return true }

func (e *SimilarBooksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	recs, err := svcctx.RecommendFrom(r.Context()).Similar(r.Context(), id, queryInt(r, "limit", 5))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if recs == nil {
		recs = []store.ScoredBook{}
	}
	writeJSON(w, http.StatusOK, RecommendationsResponse{Recommendations: recs, Count: len(recs)})
}

func (e *SimilarBooksEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "similar <book-id>",
		Short: "List books similar to one book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp RecommendationsResponse
			if err := client.Get(cmd.Context(), "/api/v1/recommendations/similar/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
