package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/vmishra/bookflix/internal/api"
	"github.com/vmishra/bookflix/internal/svcctx"
	"github.com/vmishra/bookflix/internal/types"
)

// FeedResponse lists feed items.
type FeedResponse struct {
	Items []*types.FeedItem `json:"items"`
	Count int               `json:"count"`
}

// GetFeedEndpoint handles GET /api/v1/feed.
type GetFeedEndpoint struct{}

func (e *GetFeedEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/feed", e.handler
}

func (e *GetFeedEndpoint) RequiresInit() bool { return true }

func (e *GetFeedEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread") == "true"
	items, err := svcctx.StoreFrom(r.Context()).ListFeed(r.Context(), unreadOnly,
		queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FeedResponse{Items: items, Count: len(items)})
}

func (e *GetFeedEndpoint) Command(getServerURL func() string) *cobra.Command {
	var unread bool
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show the discovery feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/v1/feed"
			if unread {
				path += "?unread=true"
			}
			var resp FeedResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "unread items only")
	return cmd
}

// GenerateFeedResponse reports a feed generation run.
type GenerateFeedResponse struct {
	Generated int    `json:"generated"`
	Status    string `json:"status"`
}

// GenerateFeedEndpoint handles POST /api/v1/feed/generate: runs the daily
// feed generation synchronously.
type GenerateFeedEndpoint struct{}

func (e *GenerateFeedEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/feed/generate", e.handler
}

func (e *GenerateFeedEndpoint) RequiresInit() bool { return true }

func (e *GenerateFeedEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	n, err := svcctx.FeedFrom(r.Context()).GenerateDaily(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, GenerateFeedResponse{Generated: n, Status: "completed"})
}

func (e *GenerateFeedEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "feed-generate",
		Short: "Generate today's feed items now",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp GenerateFeedResponse
			if err := client.Post(cmd.Context(), "/api/v1/feed/generate", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// PatchFeedRequest toggles read/pinned flags.
type PatchFeedRequest struct {
	IsRead   *bool `json:"is_read,omitempty"`
	IsPinned *bool `json:"is_pinned,omitempty"`
}

// PatchFeedEndpoint handles PATCH /api/v1/feed/{id}.
type PatchFeedEndpoint struct{}

func (e *PatchFeedEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PATCH", "/api/v1/feed/{id}", e.handler
}

func (e *PatchFeedEndpoint) RequiresInit() bool { return true }

func (e *PatchFeedEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid feed item id")
		return
	}
	var req PatchFeedRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	st := svcctx.StoreFrom(r.Context())
	if req.IsRead != nil && *req.IsRead {
		if err := st.MarkFeedRead(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
	}
	if req.IsPinned != nil {
		if err := st.SetFeedPinned(r.Context(), id, *req.IsPinned); err != nil {
			writeStoreError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (e *PatchFeedEndpoint) Command(_ func() string) *cobra.Command { return nil }

// DeleteFeedEndpoint handles DELETE /api/v1/feed/{id}.
type DeleteFeedEndpoint struct{}

func (e *DeleteFeedEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/v1/feed/{id}", e.handler
}

func (e *DeleteFeedEndpoint) RequiresInit() bool { return true }

func (e *DeleteFeedEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid feed item id")
		return
	}
	if err := svcctx.StoreFrom(r.Context()).DeleteFeedItem(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (e *DeleteFeedEndpoint) Command(_ func() string) *cobra.Command { return nil }

// DailyDigestEndpoint handles GET /api/v1/feed/daily-digest: the most
// recent digest item.
type DailyDigestEndpoint struct{}

func (e *DailyDigestEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/feed/daily-digest", e.handler
}

func (e *DailyDigestEndpoint) RequiresInit() bool { return true }

func (e *DailyDigestEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	item, err := svcctx.StoreFrom(r.Context()).LatestFeedOfType(r.Context(), types.FeedDailyDigest)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (e *DailyDigestEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "digest",
		Short: "Show the latest daily digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp types.FeedItem
			if err := client.Get(cmd.Context(), "/api/v1/feed/daily-digest", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
