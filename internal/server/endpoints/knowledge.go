package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/vmishra/bookflix/internal/api"
	"github.com/vmishra/bookflix/internal/store"
	"github.com/vmishra/bookflix/internal/svcctx"
	"github.com/vmishra/bookflix/internal/types"
)

// minMapStrength filters knowledge map edges.
const minMapStrength = 0.5

// ConnectionsListResponse lists insight connections.
type ConnectionsListResponse struct {
	Connections []*types.InsightConnection `json:"connections"`
	Count       int                        `json:"count"`
}

// KnowledgeConnectionsEndpoint handles GET /api/v1/knowledge/connections.
type KnowledgeConnectionsEndpoint struct{}

func (e *KnowledgeConnectionsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/knowledge/connections", e.handler
}

func (e *KnowledgeConnectionsEndpoint) RequiresInit() bool { return true }

func (e *KnowledgeConnectionsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	connections, err := svcctx.StoreFrom(r.Context()).ListConnections(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ConnectionsListResponse{Connections: connections, Count: len(connections)})
}

func (e *KnowledgeConnectionsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "connections",
		Short: "List insight connections, strongest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ConnectionsListResponse
			if err := client.Get(cmd.Context(), "/api/v1/knowledge/connections", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// LearningPathsResponse lists learning paths.
type LearningPathsResponse struct {
	Paths []*types.LearningPath `json:"paths"`
	Count int                   `json:"count"`
}

// ListLearningPathsEndpoint handles GET /api/v1/knowledge/learning-paths.
type ListLearningPathsEndpoint struct{}

func (e *ListLearningPathsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/knowledge/learning-paths", e.handler
}

func (e *ListLearningPathsEndpoint) RequiresInit() bool { return true }

func (e *ListLearningPathsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	paths, err := svcctx.StoreFrom(r.Context()).ListLearningPaths(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LearningPathsResponse{Paths: paths, Count: len(paths)})
}

func (e *ListLearningPathsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "learning-paths",
		Short: "List learning paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp LearningPathsResponse
			if err := client.Get(cmd.Context(), "/api/v1/knowledge/learning-paths", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// LearningPathDetail is a path plus its ordered books.
type LearningPathDetail struct {
	Path  *types.LearningPath       `json:"path"`
	Books []*types.LearningPathBook `json:"books"`
}

// GetLearningPathEndpoint handles GET /api/v1/knowledge/learning-paths/{id}.
type GetLearningPathEndpoint struct{}

func (e *GetLearningPathEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/knowledge/learning-paths/{id}", e.handler
}

func (e *GetLearningPathEndpoint) RequiresInit() bool { return true }

func (e *GetLearningPathEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path id")
		return
	}
	st := svcctx.StoreFrom(r.Context())
	path, err := st.GetLearningPath(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	books, err := st.PathBooks(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LearningPathDetail{Path: path, Books: books})
}

func (e *GetLearningPathEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "learning-path <id>",
		Short: "Get a learning path and its books",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp LearningPathDetail
			if err := client.Get(cmd.Context(), "/api/v1/knowledge/learning-paths/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// CreateLearningPathRequest creates a learning path.
type CreateLearningPathRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// CreateLearningPathEndpoint handles POST /api/v1/knowledge/learning-paths.
type CreateLearningPathEndpoint struct{}

func (e *CreateLearningPathEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/knowledge/learning-paths", e.handler
}

func (e *CreateLearningPathEndpoint) RequiresInit() bool { return true }

func (e *CreateLearningPathEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req CreateLearningPathRequest
	if err := decodeBody(r, &req); err != nil || req.Title == "" {
		writeError(w, http.StatusUnprocessableEntity, "title is required")
		return
	}
	path, err := svcctx.StoreFrom(r.Context()).CreateLearningPath(r.Context(), req.Title, req.Description)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, path)
}

func (e *CreateLearningPathEndpoint) Command(_ func() string) *cobra.Command { return nil }

// DeleteLearningPathEndpoint handles DELETE /api/v1/knowledge/learning-paths/{id}.
type DeleteLearningPathEndpoint struct{}

func (e *DeleteLearningPathEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/v1/knowledge/learning-paths/{id}", e.handler
}

func (e *DeleteLearningPathEndpoint) RequiresInit() bool { return true }

func (e *DeleteLearningPathEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path id")
		return
	}
	if err := svcctx.StoreFrom(r.Context()).DeleteLearningPath(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (e *DeleteLearningPathEndpoint) Command(_ func() string) *cobra.Command { return nil }

// MapNode is one insight on the knowledge map.
type MapNode struct {
	ID          int64             `json:"id"`
	Title       string            `json:"title"`
	InsightType types.InsightType `json:"insight_type"`
	BookID      int64             `json:"book_id"`
}

// MapEdge is one connection on the knowledge map.
type MapEdge struct {
	Source   int64   `json:"source"`
	Target   int64   `json:"target"`
	Strength float64 `json:"strength"`
}

// KnowledgeMapResponse is the strength-filtered connection graph.
type KnowledgeMapResponse struct {
	Nodes []MapNode `json:"nodes"`
	Edges []MapEdge `json:"edges"`
}

// KnowledgeMapEndpoint handles GET /api/v1/knowledge/map.
type KnowledgeMapEndpoint struct{}

func (e *KnowledgeMapEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/knowledge/map", e.handler
}

func (e *KnowledgeMapEndpoint) RequiresInit() bool { return true }

func (e *KnowledgeMapEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	connections, err := st.StrongConnections(r.Context(), minMapStrength)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	resp := KnowledgeMapResponse{Nodes: []MapNode{}, Edges: []MapEdge{}}
	seen := make(map[int64]bool)
	for _, c := range connections {
		resp.Edges = append(resp.Edges, MapEdge{
			Source:   c.InsightAID,
			Target:   c.InsightBID,
			Strength: c.Strength,
		})
		for _, id := range []int64{c.InsightAID, c.InsightBID} {
			if seen[id] {
				continue
			}
			seen[id] = true
			insight, err := st.GetInsight(r.Context(), id)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				writeStoreError(w, err)
				return
			}
			resp.Nodes = append(resp.Nodes, MapNode{
				ID:          insight.ID,
				Title:       insight.Title,
				InsightType: insight.InsightType,
				BookID:      insight.BookID,
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *KnowledgeMapEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "knowledge-map",
		Short: "Show the insight connection graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp KnowledgeMapResponse
			if err := client.Get(cmd.Context(), "/api/v1/knowledge/map", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
