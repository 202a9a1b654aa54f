package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/vmishra/bookflix/internal/api"
	"github.com/vmishra/bookflix/internal/store"
	"github.com/vmishra/bookflix/internal/svcctx"
	"github.com/vmishra/bookflix/internal/types"
)

// InsightsResponse is a list of insights.
type InsightsResponse struct {
	Insights []*types.BookInsight `json:"insights"`
	Count    int                  `json:"count"`
}

// BookInsightsEndpoint handles GET /api/v1/insights/book/{id}.
type BookInsightsEndpoint struct{}

func (e *BookInsightsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/insights/book/{id}", e.handler
}

func (e *BookInsightsEndpoint) RequiresInit() bool { return true }

func (e *BookInsightsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	insightType := types.InsightType(r.URL.Query().Get("type"))
	insights, err := svcctx.StoreFrom(r.Context()).InsightsForBook(r.Context(), id, insightType)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InsightsResponse{Insights: insights, Count: len(insights)})
}

func (e *BookInsightsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var insightType string
	cmd := &cobra.Command{
		Use:   "insights <book-id>",
		Short: "List insights for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/v1/insights/book/" + args[0]
			if insightType != "" {
				path += "?type=" + insightType
			}
			var resp InsightsResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&insightType, "type", "", "filter by insight type")
	return cmd
}

// GetInsightEndpoint handles GET /api/v1/insights/{id}.
type GetInsightEndpoint struct{}

func (e *GetInsightEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/insights/{id}", e.handler
}

func (e *GetInsightEndpoint) RequiresInit() bool { return true }

func (e *GetInsightEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid insight id")
		return
	}
	insight, err := svcctx.StoreFrom(r.Context()).GetInsight(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, insight)
}

func (e *GetInsightEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "insight <id>",
		Short: "Get one insight by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp types.BookInsight
			if err := client.Get(cmd.Context(), "/api/v1/insights/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ConnectionsResponse lists insights related to one insight.
type ConnectionsResponse struct {
	Related []store.RelatedInsight `json:"related"`
	Count   int                    `json:"count"`
}

// InsightConnectionsEndpoint handles GET /api/v1/insights/{id}/connections:
// nearest neighbours in embedding space, computed on the fly.
type InsightConnectionsEndpoint struct{}

func (e *InsightConnectionsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/insights/{id}/connections", e.handler
}

func (e *InsightConnectionsEndpoint) RequiresInit() bool { return true }

func (e *InsightConnectionsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid insight id")
		return
	}
	related, err := svcctx.StoreFrom(r.Context()).NearestInsights(r.Context(), id, queryInt(r, "limit", 10))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ConnectionsResponse{Related: related, Count: len(related)})
}

func (e *InsightConnectionsEndpoint) Command(_ func() string) *cobra.Command { return nil }

// ConceptsEndpoint handles GET /api/v1/insights/concepts: key concepts
// across the whole library.
type ConceptsEndpoint struct{}

func (e *ConceptsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/insights/concepts", e.handler
}

func (e *ConceptsEndpoint) RequiresInit() bool { return true }

func (e *ConceptsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	insights, err := svcctx.StoreFrom(r.Context()).InsightsByType(r.Context(), types.InsightKeyConcept, queryInt(r, "limit", 50))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InsightsResponse{Insights: insights, Count: len(insights)})
}

func (e *ConceptsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "concepts",
		Short: "List key concepts across the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp InsightsResponse
			if err := client.Get(cmd.Context(), "/api/v1/insights/concepts", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// FrameworksEndpoint handles GET /api/v1/insights/frameworks.
type FrameworksEndpoint struct{}

func (e *FrameworksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/insights/frameworks", e.handler
}

func (e *FrameworksEndpoint) RequiresInit() bool { return true }

func (e *FrameworksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	insights, err := svcctx.StoreFrom(r.Context()).InsightsByType(r.Context(), types.InsightFramework, queryInt(r, "limit", 50))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InsightsResponse{Insights: insights, Count: len(insights)})
}

func (e *FrameworksEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "frameworks",
		Short: "List mental models and frameworks across the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp InsightsResponse
			if err := client.Get(cmd.Context(), "/api/v1/insights/frameworks", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// RegenerateResponse reports a dispatched refinement pass.
type RegenerateResponse struct {
	BookID int64  `json:"book_id"`
	Stage  string `json:"stage"`
	Status string `json:"status"`
}

// RegenerateInsightsEndpoint handles POST /api/v1/insights/book/{id}/regenerate:
// dispatches the next refinement pass for a completed book.
type RegenerateInsightsEndpoint struct{}

func (e *RegenerateInsightsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/insights/book/{id}/regenerate", e.handler
}

func (e *RegenerateInsightsEndpoint) RequiresInit() bool { return true }

func (e *RegenerateInsightsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	st := svcctx.StoreFrom(r.Context())
	if _, err := st.GetBook(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	level, err := st.MaxRefinementLevel(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if level >= 3 {
		writeError(w, http.StatusUnprocessableEntity, "refinement limit reached")
		return
	}
	stage := types.InsightsStage(level + 1)
	if err := svcctx.PipelineFrom(r.Context()).Dispatch(r.Context(), id, stage); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, RegenerateResponse{BookID: id, Stage: string(stage), Status: "dispatched"})
}

func (e *RegenerateInsightsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate-insights <book-id>",
		Short: "Run the next insight refinement pass for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp RegenerateResponse
			path := "/api/v1/insights/book/" + args[0] + "/regenerate"
			if err := client.Post(cmd.Context(), path, nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
