package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/vmishra/bookflix/internal/api"
	"github.com/vmishra/bookflix/internal/orchestrator"
	"github.com/vmishra/bookflix/internal/svcctx"
)

// OrchestratorStatusEndpoint handles GET /api/v1/orchestrator/status.
type OrchestratorStatusEndpoint struct{}

func (e *OrchestratorStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/orchestrator/status", e.handler
}

func (e *OrchestratorStatusEndpoint) RequiresInit() bool { return true }

func (e *OrchestratorStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, svcctx.OrchestratorFrom(r.Context()).Status())
}

func (e *OrchestratorStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "orchestrator",
		Short: "Show orchestrator status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp orchestrator.Status
			if err := client.Get(cmd.Context(), "/api/v1/orchestrator/status", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// SetIntensityRequest changes how aggressively the orchestrator works.
type SetIntensityRequest struct {
	Intensity string `json:"intensity"`
}

// SetIntensityEndpoint handles PUT /api/v1/orchestrator/intensity.
type SetIntensityEndpoint struct{}

func (e *SetIntensityEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/v1/orchestrator/intensity", e.handler
}

func (e *SetIntensityEndpoint) RequiresInit() bool { return true }

func (e *SetIntensityEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req SetIntensityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	intensity, err := orchestrator.ParseIntensity(req.Intensity)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	o := svcctx.OrchestratorFrom(r.Context())
	o.SetIntensity(intensity)
	writeJSON(w, http.StatusOK, o.Status())
}

func (e *SetIntensityEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "intensity <aggressive|normal|idle|paused>",
		Short: "Set orchestrator intensity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp orchestrator.Status
			if err := client.Put(cmd.Context(), "/api/v1/orchestrator/intensity", SetIntensityRequest{Intensity: args[0]}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// TickResponse reports a manually triggered orchestrator tick.
type TickResponse struct {
	Action *orchestrator.Action `json:"action,omitempty"`
	Status string               `json:"status"`
}

// TriggerTickEndpoint handles POST /api/v1/orchestrator/tick: runs one
// tick immediately instead of waiting for the schedule.
type TriggerTickEndpoint struct{}

func (e *TriggerTickEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/orchestrator/tick", e.handler
}

func (e *TriggerTickEndpoint) RequiresInit() bool { return true }

func (e *TriggerTickEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	action, err := svcctx.OrchestratorFrom(r.Context()).Tick(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := "idle"
	if action != nil {
		status = "dispatched"
	}
	writeJSON(w, http.StatusOK, TickResponse{Action: action, Status: status})
}

func (e *TriggerTickEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one orchestrator tick now",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp TickResponse
			if err := client.Post(cmd.Context(), "/api/v1/orchestrator/tick", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
