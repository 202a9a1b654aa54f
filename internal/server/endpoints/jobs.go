package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/vmishra/bookflix/internal/api"
	"github.com/vmishra/bookflix/internal/svcctx"
	"github.com/vmishra/bookflix/internal/types"
)

// DispatchResponse reports a dispatched pipeline run.
type DispatchResponse struct {
	BookID int64  `json:"book_id"`
	Status string `json:"status"`
}

// ProcessBookEndpoint handles POST /api/v1/books/{id}/process: kicks off
// the full pipeline starting at extraction.
type ProcessBookEndpoint struct{}

func (e *ProcessBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/books/{id}/process", e.handler
}

func (e *ProcessBookEndpoint) RequiresInit() bool { return true }

func (e *ProcessBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	if _, err := svcctx.StoreFrom(r.Context()).GetBook(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := svcctx.PipelineFrom(r.Context()).ProcessBook(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, DispatchResponse{BookID: id, Status: "dispatched"})
}

func (e *ProcessBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "process <book-id>",
		Short: "Run the processing pipeline for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp DispatchResponse
			if err := client.Post(cmd.Context(), "/api/v1/books/"+args[0]+"/process", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ResumeBookEndpoint handles POST /api/v1/books/{id}/resume: restarts a
// failed or stuck book from extraction.
type ResumeBookEndpoint struct{}

func (e *ResumeBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/books/{id}/resume", e.handler
}

func (e *ResumeBookEndpoint) RequiresInit() bool { return true }

func (e *ResumeBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	if _, err := svcctx.StoreFrom(r.Context()).GetBook(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := svcctx.PipelineFrom(r.Context()).Dispatch(r.Context(), id, types.StageExtract); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, DispatchResponse{BookID: id, Status: "dispatched"})
}

func (e *ResumeBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <book-id>",
		Short: "Resume processing for a failed book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp DispatchResponse
			if err := client.Post(cmd.Context(), "/api/v1/books/"+args[0]+"/resume", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// JobsResponse lists processing jobs.
type JobsResponse struct {
	Jobs  []*types.ProcessingJob `json:"jobs"`
	Count int                    `json:"count"`
}

// BookJobsEndpoint handles GET /api/v1/jobs/book/{id}.
type BookJobsEndpoint struct{}

func (e *BookJobsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/jobs/book/{id}", e.handler
}

func (e *BookJobsEndpoint) RequiresInit() bool { return true }

func (e *BookJobsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	jobs, err := svcctx.StoreFrom(r.Context()).JobsForBook(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JobsResponse{Jobs: jobs, Count: len(jobs)})
}

func (e *BookJobsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs <book-id>",
		Short: "List processing jobs for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp JobsResponse
			if err := client.Get(cmd.Context(), "/api/v1/jobs/book/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// FailedJobsEndpoint handles GET /api/v1/jobs/failed.
type FailedJobsEndpoint struct{}

func (e *FailedJobsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/jobs/failed", e.handler
}

func (e *FailedJobsEndpoint) RequiresInit() bool { return true }

func (e *FailedJobsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jobs, err := svcctx.StoreFrom(r.Context()).RecentFailedJobs(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JobsResponse{Jobs: jobs, Count: len(jobs)})
}

func (e *FailedJobsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "failed-jobs",
		Short: "List recently failed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp JobsResponse
			if err := client.Get(cmd.Context(), "/api/v1/jobs/failed", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// JobCountsEndpoint handles GET /api/v1/jobs/counts.
type JobCountsEndpoint struct{}

func (e *JobCountsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/jobs/counts", e.handler
}

func (e *JobCountsEndpoint) RequiresInit() bool { return true }

func (e *JobCountsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	counts, err := svcctx.StoreFrom(r.Context()).JobCountsByStatus(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (e *JobCountsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "job-counts",
		Short: "Show job counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp map[string]int
			if err := client.Get(cmd.Context(), "/api/v1/jobs/counts", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
