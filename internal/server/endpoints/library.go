package endpoints

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vmishra/bookflix/internal/api"
	"github.com/vmishra/bookflix/internal/library"
	"github.com/vmishra/bookflix/internal/store"
	"github.com/vmishra/bookflix/internal/svcctx"
	"github.com/vmishra/bookflix/internal/types"
)

// ScanTracker records background library scans by task id so clients can
// poll for completion.
type ScanTracker struct {
	mu    sync.RWMutex
	scans map[string]*ScanStatus
}

// ScanStatus is the state of one background scan.
type ScanStatus struct {
	TaskID string          `json:"task_id"`
	Status string          `json:"status"`
	Result *library.Result `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// NewScanTracker creates an empty tracker.
func NewScanTracker() *ScanTracker {
	return &ScanTracker{scans: make(map[string]*ScanStatus)}
}

func (t *ScanTracker) start() string {
	id := uuid.NewString()
	t.mu.Lock()
	t.scans[id] = &ScanStatus{TaskID: id, Status: "running"}
	t.mu.Unlock()
	return id
}

func (t *ScanTracker) finish(id string, result *library.Result, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.scans[id]
	if !ok {
		return
	}
	if err != nil {
		s.Status = "failed"
		s.Error = err.Error()
		return
	}
	s.Status = "completed"
	s.Result = result
}

func (t *ScanTracker) get(id string) (*ScanStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.scans[id]
	return s, ok
}

// ScanLibraryRequest optionally overrides the scanned directory.
type ScanLibraryRequest struct {
	Directory string `json:"directory"`
}

// ScanLibraryResponse is returned when a background scan starts.
type ScanLibraryResponse struct {
	TaskID    string `json:"task_id"`
	Directory string `json:"directory"`
	Message   string `json:"message"`
}

// ScanLibraryEndpoint handles POST /api/v1/library/scan. The scan runs in
// the background; poll GET /api/v1/library/scan/{task_id} for the result.
type ScanLibraryEndpoint struct {
	Tracker   *ScanTracker
	BooksPath string
}

func (e *ScanLibraryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/library/scan", e.handler
}

func (e *ScanLibraryEndpoint) RequiresInit() bool { return true }

func (e *ScanLibraryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	scanner := svcctx.LibraryFrom(r.Context())
	logger := svcctx.LoggerFrom(r.Context())

	var req ScanLibraryRequest
	_ = decodeBody(r, &req) // body is optional
	dir := req.Directory
	if dir == "" {
		dir = e.BooksPath
	}

	taskID := e.Tracker.start()

	// The request context dies with the response; the scan outlives it.
	go func() {
		result, err := scanner.ScanDir(context.WithoutCancel(r.Context()), dir)
		e.Tracker.finish(taskID, result, err)
		if err != nil && logger != nil {
			logger.Error("library scan failed", "task_id", taskID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, ScanLibraryResponse{
		TaskID:    taskID,
		Directory: dir,
		Message:   "scan started",
	})
}

func (e *ScanLibraryEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Start a background library scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ScanLibraryResponse
			if err := client.Post(cmd.Context(), "/api/v1/library/scan", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ScanStatusEndpoint handles GET /api/v1/library/scan/{task_id}.
type ScanStatusEndpoint struct {
	Tracker *ScanTracker
}

func (e *ScanStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/library/scan/{task_id}", e.handler
}

func (e *ScanStatusEndpoint) RequiresInit() bool { return true }

func (e *ScanStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	status, ok := e.Tracker.get(r.PathValue("task_id"))
	if !ok {
		writeError(w, http.StatusNotFound, "scan task not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (e *ScanStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "scan-status <task_id>",
		Short: "Check on a background library scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ScanStatus
			if err := client.Get(cmd.Context(), "/api/v1/library/scan/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ImportEndpoint handles POST /api/v1/library/import: a synchronous scan
// that returns the import summary directly.
type ImportEndpoint struct{}

func (e *ImportEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/library/import", e.handler
}

func (e *ImportEndpoint) RequiresInit() bool { return true }

func (e *ImportEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	result, err := svcctx.LibraryFrom(r.Context()).Scan(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (e *ImportEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Scan the books directory and import new files",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp library.Result
			if err := client.Post(cmd.Context(), "/api/v1/library/import", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// LibraryStatsEndpoint handles GET /api/v1/library/stats.
type LibraryStatsEndpoint struct{}

func (e *LibraryStatsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/library/stats", e.handler
}

func (e *LibraryStatsEndpoint) RequiresInit() bool { return true }

func (e *LibraryStatsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	stats, err := svcctx.StoreFrom(r.Context()).Stats(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (e *LibraryStatsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show library-wide statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp store.LibraryStats
			if err := client.Get(cmd.Context(), "/api/v1/library/stats", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ProcessingBooksEndpoint handles GET /api/v1/library/processing: books
// currently moving through the pipeline.
type ProcessingBooksEndpoint struct{}

func (e *ProcessingBooksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/library/processing", e.handler
}

func (e *ProcessingBooksEndpoint) RequiresInit() bool { return true }

func (e *ProcessingBooksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	books, err := svcctx.StoreFrom(r.Context()).BooksWithStatus(r.Context(), []types.ProcessingStatus{
		types.StatusExtracting, types.StatusChunking,
		types.StatusEmbedding, types.StatusGeneratingInsights,
	}, queryInt(r, "limit", 50))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListBooksResponse{Books: books, Count: len(books)})
}

func (e *ProcessingBooksEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "processing",
		Short: "List books currently being processed",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListBooksResponse
			if err := client.Get(cmd.Context(), "/api/v1/library/processing", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
