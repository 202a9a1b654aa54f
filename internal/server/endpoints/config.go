package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/vmishra/bookflix/internal/api"
	"github.com/vmishra/bookflix/internal/orchestrator"
	"github.com/vmishra/bookflix/internal/providers"
	"github.com/vmishra/bookflix/internal/svcctx"
)

// ConfigResponse is the non-secret view of the running configuration.
type ConfigResponse struct {
	DefaultModel             string `json:"default_model"`
	BooksPath                string `json:"books_path"`
	CoversPath               string `json:"covers_path"`
	EmbeddingModel           string `json:"embedding_model"`
	EmbeddingDimension       int    `json:"embedding_dimension"`
	OrchestratorIntensity    string `json:"orchestrator_intensity"`
	OrchestratorTickInterval int    `json:"orchestrator_tick_interval"`
	CORSOrigins              string `json:"cors_origins"`
}

// GetConfigEndpoint handles GET /api/v1/config. Secrets are omitted.
type GetConfigEndpoint struct{}

func (e *GetConfigEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/config", e.handler
}

func (e *GetConfigEndpoint) RequiresInit() bool { return true }

func (e *GetConfigEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	cfg := svcctx.ConfigManagerFrom(r.Context()).Get()
	resp := ConfigResponse{
		DefaultModel:             cfg.DefaultModel,
		BooksPath:                cfg.BooksPath,
		CoversPath:               cfg.CoversPath,
		EmbeddingModel:           cfg.EmbeddingModel,
		EmbeddingDimension:       cfg.EmbeddingDimension,
		OrchestratorIntensity:    string(svcctx.OrchestratorFrom(r.Context()).Intensity()),
		OrchestratorTickInterval: cfg.OrchestratorTickInterval,
		CORSOrigins:              cfg.CORSOrigins,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *GetConfigEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the running server configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ConfigResponse
			if err := client.Get(cmd.Context(), "/api/v1/config", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// PatchConfigRequest carries the runtime-mutable settings.
type PatchConfigRequest struct {
	OrchestratorIntensity *string `json:"orchestrator_intensity,omitempty"`
	DefaultModel          *string `json:"default_model,omitempty"`
}

// PatchConfigEndpoint handles PATCH /api/v1/config. Only settings that can
// take effect without a restart are accepted.
type PatchConfigEndpoint struct{}

func (e *PatchConfigEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PATCH", "/api/v1/config", e.handler
}

func (e *PatchConfigEndpoint) RequiresInit() bool { return true }

func (e *PatchConfigEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req PatchConfigRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrchestratorIntensity != nil {
		intensity, err := orchestrator.ParseIntensity(*req.OrchestratorIntensity)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		svcctx.OrchestratorFrom(r.Context()).SetIntensity(intensity)
	}
	if req.DefaultModel != nil && *req.DefaultModel != "" {
		svcctx.ModelsFrom(r.Context()).SetDefault(*req.DefaultModel)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (e *PatchConfigEndpoint) Command(getServerURL func() string) *cobra.Command {
	var intensity, model string
	cmd := &cobra.Command{
		Use:   "config-set",
		Short: "Update runtime-mutable settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := PatchConfigRequest{}
			if intensity != "" {
				req.OrchestratorIntensity = &intensity
			}
			if model != "" {
				req.DefaultModel = &model
			}
			client := api.NewClient(getServerURL())
			var resp map[string]string
			if err := client.Patch(cmd.Context(), "/api/v1/config", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&intensity, "intensity", "", "orchestrator intensity (aggressive|normal|idle|paused)")
	cmd.Flags().StringVar(&model, "model", "", "default model")
	return cmd
}

// ModelsResponse reports the model routing table.
type ModelsResponse struct {
	Default   string            `json:"default"`
	Overrides map[string]string `json:"overrides"`
}

// GetModelsEndpoint handles GET /api/v1/config/models.
type GetModelsEndpoint struct{}

func (e *GetModelsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/config/models", e.handler
}

func (e *GetModelsEndpoint) RequiresInit() bool { return true }

func (e *GetModelsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	models := svcctx.ModelsFrom(r.Context())
	writeJSON(w, http.StatusOK, ModelsResponse{
		Default:   models.Default(),
		Overrides: models.Overrides(),
	})
}

func (e *GetModelsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Show the per-task model routing table",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ModelsResponse
			if err := client.Get(cmd.Context(), "/api/v1/config/models", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// PutModelsRequest replaces the model routing table.
type PutModelsRequest struct {
	Default   string            `json:"default,omitempty"`
	Overrides map[string]string `json:"overrides,omitempty"`
}

// knownTasks are the task types accepted as override keys.
var knownTasks = map[string]bool{
	providers.TaskInsights:   true,
	providers.TaskChat:       true,
	providers.TaskFeed:       true,
	providers.TaskTopicLabel: true,
	providers.TaskQuote:      true,
}

// PutModelsEndpoint handles PUT /api/v1/config/models.
type PutModelsEndpoint struct{}

func (e *PutModelsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/v1/config/models", e.handler
}

func (e *PutModelsEndpoint) RequiresInit() bool { return true }

func (e *PutModelsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req PutModelsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for task := range req.Overrides {
		if !knownTasks[task] {
			writeError(w, http.StatusUnprocessableEntity, "unknown task type: "+task)
			return
		}
	}
	models := svcctx.ModelsFrom(r.Context())
	if req.Default != "" {
		models.SetDefault(req.Default)
	}
	for task, model := range req.Overrides {
		models.SetModel(task, model)
	}
	writeJSON(w, http.StatusOK, ModelsResponse{
		Default:   models.Default(),
		Overrides: models.Overrides(),
	})
}

func (e *PutModelsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var task, model string
	cmd := &cobra.Command{
		Use:   "set-model",
		Short: "Set the model for a task type",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := PutModelsRequest{}
			if task != "" {
				req.Overrides = map[string]string{task: model}
			} else {
				req.Default = model
			}
			client := api.NewClient(getServerURL())
			var resp ModelsResponse
			if err := client.Put(cmd.Context(), "/api/v1/config/models", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&task, "task", "", "task type (insights|chat|feed|topic_label|quote); empty sets the default")
	cmd.Flags().StringVar(&model, "model", "", "model name")
	cmd.MarkFlagRequired("model")
	return cmd
}
