package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/vmishra/bookflix/internal/api"
	"github.com/vmishra/bookflix/internal/svcctx"
	"github.com/vmishra/bookflix/internal/topics"
	"github.com/vmishra/bookflix/internal/types"
)

// TopicsResponse lists topics.
type TopicsResponse struct {
	Topics []*types.Topic `json:"topics"`
	Count  int            `json:"count"`
}

// ListTopicsEndpoint handles GET /api/v1/topics.
type ListTopicsEndpoint struct{}

func (e *ListTopicsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/topics", e.handler
}

func (e *ListTopicsEndpoint) RequiresInit() bool { return true }

func (e *ListTopicsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	list, err := svcctx.StoreFrom(r.Context()).ListTopics(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TopicsResponse{Topics: list, Count: len(list)})
}

func (e *ListTopicsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "List library topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp TopicsResponse
			if err := client.Get(cmd.Context(), "/api/v1/topics", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// TopicGraphResponse is the topic map: nodes plus weighted edges.
type TopicGraphResponse struct {
	Topics    []*types.Topic         `json:"topics"`
	Relations []*types.TopicRelation `json:"relations"`
}

// TopicGraphEndpoint handles GET /api/v1/topics/graph.
type TopicGraphEndpoint struct{}

func (e *TopicGraphEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/topics/graph", e.handler
}

func (e *TopicGraphEndpoint) RequiresInit() bool { return true }

func (e *TopicGraphEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	list, err := st.ListTopics(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	relations, err := st.TopicRelations(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TopicGraphResponse{Topics: list, Relations: relations})
}

func (e *TopicGraphEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "topic-graph",
		Short: "Show topics with their relations",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp TopicGraphResponse
			if err := client.Get(cmd.Context(), "/api/v1/topics/graph", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// TopicDetailResponse is one topic plus its books.
type TopicDetailResponse struct {
	Topic *types.Topic  `json:"topic"`
	Books []*types.Book `json:"books"`
}

// GetTopicEndpoint handles GET /api/v1/topics/{id}.
type GetTopicEndpoint struct{}

func (e *GetTopicEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/topics/{id}", e.handler
}

func (e *GetTopicEndpoint) RequiresInit() bool { return true }

func (e *GetTopicEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid topic id")
		return
	}
	st := svcctx.StoreFrom(r.Context())
	list, err := st.ListTopics(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var topic *types.Topic
	for _, t := range list {
		if t.ID == id {
			topic = t
			break
		}
	}
	if topic == nil {
		writeError(w, http.StatusNotFound, "topic not found")
		return
	}
	books, err := st.BooksForTopic(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TopicDetailResponse{Topic: topic, Books: books})
}

func (e *GetTopicEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "topic <id>",
		Short: "Get a topic and its books",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp TopicDetailResponse
			if err := client.Get(cmd.Context(), "/api/v1/topics/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// RebuildTopicsResponse reports a clustering run.
type RebuildTopicsResponse struct {
	Topics int    `json:"topics"`
	Status string `json:"status"`
}

// RebuildTopicsEndpoint handles POST /api/v1/topics/rebuild: re-clusters
// the library synchronously.
type RebuildTopicsEndpoint struct{}

func (e *RebuildTopicsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/topics/rebuild", e.handler
}

func (e *RebuildTopicsEndpoint) RequiresInit() bool { return true }

func (e *RebuildTopicsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	n, err := svcctx.TopicsFrom(r.Context()).Rebuild(r.Context())
	if err != nil {
		if errors.Is(err, topics.ErrNotEnoughBooks) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, RebuildTopicsResponse{Topics: n, Status: "completed"})
}

func (e *RebuildTopicsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "topics-rebuild",
		Short: "Re-cluster the library into topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp RebuildTopicsResponse
			if err := client.Post(cmd.Context(), "/api/v1/topics/rebuild", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
