package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/vmishra/bookflix/internal/api"
	"github.com/vmishra/bookflix/internal/store"
	"github.com/vmishra/bookflix/internal/svcctx"
	"github.com/vmishra/bookflix/internal/types"
)

// GetProgressEndpoint handles GET /api/v1/reading/progress/{id}.
type GetProgressEndpoint struct{}

func (e *GetProgressEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/reading/progress/{id}", e.handler
}

func (e *GetProgressEndpoint) RequiresInit() bool { return true }

func (e *GetProgressEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	progress, err := svcctx.StoreFrom(r.Context()).GetProgress(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (e *GetProgressEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <book-id>",
		Short: "Show reading progress for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp types.ReadingProgress
			if err := client.Get(cmd.Context(), "/api/v1/reading/progress/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// PutProgressRequest updates reading position.
type PutProgressRequest struct {
	CurrentPage     int     `json:"current_page"`
	TotalPages      int     `json:"total_pages"`
	ProgressPercent float64 `json:"progress_percent"`
	EpubCFI         string  `json:"epub_cfi,omitempty"`
}

// PutProgressEndpoint handles PUT /api/v1/reading/progress/{id}.
type PutProgressEndpoint struct{}

func (e *PutProgressEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/v1/reading/progress/{id}", e.handler
}

func (e *PutProgressEndpoint) RequiresInit() bool { return true }

func (e *PutProgressEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	var req PutProgressRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	progress, err := svcctx.StoreFrom(r.Context()).UpsertProgress(r.Context(), &types.ReadingProgress{
		BookID:          id,
		CurrentPage:     req.CurrentPage,
		TotalPages:      req.TotalPages,
		ProgressPercent: req.ProgressPercent,
		EpubCFI:         req.EpubCFI,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (e *PutProgressEndpoint) Command(_ func() string) *cobra.Command { return nil }

// StartSessionEndpoint handles POST /api/v1/reading/sessions/{id}/start.
type StartSessionEndpoint struct{}

func (e *StartSessionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/reading/sessions/{id}/start", e.handler
}

func (e *StartSessionEndpoint) RequiresInit() bool { return true }

func (e *StartSessionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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
	session, err := st.StartReadingSession(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (e *StartSessionEndpoint) Command(_ func() string) *cobra.Command { return nil }

// EndSessionEndpoint handles POST /api/v1/reading/sessions/{sid}/end.
type EndSessionEndpoint struct{}

func (e *EndSessionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/reading/sessions/{sid}/end", e.handler
}

func (e *EndSessionEndpoint) RequiresInit() bool { return true }

func (e *EndSessionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	sid, err := pathID(r, "sid")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	pagesRead := queryInt(r, "pages_read", 0)
	session, err := svcctx.StoreFrom(r.Context()).EndReadingSession(r.Context(), sid, pagesRead)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (e *EndSessionEndpoint) Command(_ func() string) *cobra.Command { return nil }

// ReadingStatsEndpoint handles GET /api/v1/reading/stats.
type ReadingStatsEndpoint struct{}

func (e *ReadingStatsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/reading/stats", e.handler
}

func (e *ReadingStatsEndpoint) RequiresInit() bool { return true }

func (e *ReadingStatsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	stats, err := svcctx.StoreFrom(r.Context()).GetReadingStats(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (e *ReadingStatsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "reading-stats",
		Short: "Show reading activity stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp store.ReadingStats
			if err := client.Get(cmd.Context(), "/api/v1/reading/stats", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
