package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"sitepulse/internal/engine"
	"sitepulse/internal/progress"
	"sitepulse/internal/repo"
)

// Config for the HTTP API handler. Context bounds background work such as
// webhook delivery; it defaults to context.Background.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Context  context.Context
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"bidding step 6 -> 3: backward step move not allowed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the SitePulse API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine.Config == nil {
		return nil, errors.New("engine config is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Schema/request validation errors are 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("SitePulse API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	hooks := startWebhookDispatcher(ctx, cfg.Engine, cfg.Auth.logger())
	router.Handle("/metrics", cfg.Engine.Metrics.Handler())
	registerDocs(router, basePath)
	registerHealth(group)
	registerWhoAmI(group)
	registerProjects(group, cfg.Engine, hooks)
	registerPackages(group, cfg.Engine, hooks)
	registerContracts(group, cfg.Engine, hooks)
	registerDashboards(group, cfg.Engine)
	registerOpenAPI(router, api, basePath, cfg.Auth.JWTSecret != "")

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var te *progress.TransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"phase":  te.Phase,
			"from":   te.From,
			"to":     te.To,
			"reason": te.Err.Error(),
		})
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidInput):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string, secured bool) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			if secured {
				applyAuthSecurity(oas, basePath)
			}
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>SitePulse API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerWhoAmI(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "whoami",
		Method:      http.MethodGet,
		Path:        "/whoami",
		Summary:     "Authenticated principal",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		body := map[string]any{"authenticated": false}
		if p, ok := principalFromContext(ctx); ok {
			body = map[string]any{"authenticated": true, "subject": p.Subject, "roles": p.Roles, "can_write": p.canWrite()}
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: body}, nil
	})
}

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

func registerProjects(api huma.API, e engine.Engine, hooks *webhookDispatcher) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		Description:   "Creates a project and instantiates the configured design step template.",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*projectOutput, error) {
		v, err := e.CreateProject(ctx, input.Body.options())
		if err != nil {
			return nil, handleError(err)
		}
		hooks.notify(ctx, EventRecordCreated, progress.PhaseDesign, v.Project.ID, v.Design.Record, nil)
		return &projectOutput{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects with derived design and construction progress",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		BusinessUnit string `query:"business_unit"`
		Owner        string `query:"owner"`
		Lifecycle    string `query:"lifecycle_status"`
	}) (*projectListOutput, error) {
		items, err := e.ListProjects(ctx, repo.ProjectFilters{
			BusinessUnit: input.BusinessUnit,
			Owner:        input.Owner,
			Lifecycle:    input.Lifecycle,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &projectListOutput{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*projectOutput, error) {
		v, err := e.Project(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project-progress",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/progress",
		Summary:     "Design and construction progress records",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectProgressResponse `json:"body"`
	}, error) {
		v, err := e.Project(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectProgressResponse `json:"body"`
		}{Body: ProjectProgressResponse{Design: v.Design, Construction: v.Construction}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project fields",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*projectOutput, error) {
		v, err := e.UpdateProject(ctx, input.ProjectID, input.Body.options())
		if err != nil {
			return nil, handleError(err)
		}
		hooks.notify(ctx, EventProjectUpdated, progress.PhaseDesign, v.Project.ID, v.Design.Record, nil)
		return &projectOutput{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete a project with its design steps",
		Errors:        mutationErrors,
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		if err := e.DeleteProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		hooks.notify(ctx, EventRecordDeleted, progress.PhaseDesign, input.ProjectID, progress.Record{}, nil)
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-project-lifecycle",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/lifecycle",
		Summary:     "Set the manual lifecycle flag",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string                  `path:"project_id"`
		Body      ProjectLifecycleRequest `json:"body"`
	}) (*projectOutput, error) {
		v, err := e.SetProjectLifecycle(ctx, input.ProjectID, input.Body.Status, input.Body.CancelReason)
		if err != nil {
			return nil, handleError(err)
		}
		hooks.notify(ctx, EventLifecycleChanged, progress.PhaseDesign, v.Project.ID, v.Design.Record, nil)
		return &projectOutput{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-design-step",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/design-steps/{position}",
		Summary:     "Set a design step status",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Position  int               `path:"position"`
		Body      DesignStepRequest `json:"body"`
	}) (*projectOutput, error) {
		v, err := e.SetDesignStep(ctx, input.ProjectID, input.Position, input.Body.Status, input.Body.FinishDate)
		if err != nil {
			return nil, handleError(err)
		}
		hooks.notify(ctx, EventDesignStepUpdated, progress.PhaseDesign, v.Project.ID, v.Design.Record, nil)
		return &projectOutput{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "retemplate-design",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/retemplate",
		Summary:     "Replace design steps with the configured template",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*projectOutput, error) {
		v, err := e.RetemplateDesign(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		hooks.notify(ctx, EventProjectUpdated, progress.PhaseDesign, v.Project.ID, v.Design.Record, nil)
		return &projectOutput{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-construction-progress",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/construction",
		Summary:     "Record reported construction percent",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Body      ConstructionRequest `json:"body"`
	}) (*projectOutput, error) {
		v, err := e.SetConstructionProgress(ctx, input.ProjectID, input.Body.Percent, input.Body.ActualFinish)
		if err != nil {
			return nil, handleError(err)
		}
		hooks.notify(ctx, EventProjectUpdated, progress.PhaseConstruction, v.Project.ID, v.Construction.Record, nil)
		return &projectOutput{Body: v}, nil
	})
}

func registerPackages(api huma.API, e engine.Engine, hooks *webhookDispatcher) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-package",
		Method:        http.MethodPost,
		Path:          "/packages",
		Summary:       "Create bidding package",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreatePackageRequest `json:"body"`
	}) (*packageOutput, error) {
		v, err := e.CreatePackage(ctx, engine.PackageCreateOptions{
			ID:         input.Body.ID,
			Name:       input.Body.Name,
			Owner:      input.Body.Owner,
			Budget:     input.Body.Budget,
			ProjectIDs: input.Body.ProjectIDs,
			PlanStart:  input.Body.PlanStart,
			PlanEnd:    input.Body.PlanEnd,
		})
		if err != nil {
			return nil, handleError(err)
		}
		hooks.notify(ctx, EventRecordCreated, progress.PhaseBidding, v.Package.ID, v.Progress.Record, nil)
		return &packageOutput{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-packages",
		Method:      http.MethodGet,
		Path:        "/packages",
		Summary:     "List bidding packages with derived progress",
	}, func(ctx context.Context, input *struct {
		Owner string `query:"owner"`
	}) (*packageListOutput, error) {
		items, err := e.ListPackages(ctx, input.Owner)
		if err != nil {
			return nil, handleError(err)
		}
		return &packageListOutput{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "bidding-summary",
		Method:      http.MethodGet,
		Path:        "/packages/summary",
		Summary:     "Bidding dashboard summary",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body progress.BiddingSummary `json:"body"`
	}, error) {
		s, err := e.BiddingSummary(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body progress.BiddingSummary `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-package",
		Method:      http.MethodGet,
		Path:        "/packages/{package_id}",
		Summary:     "Get bidding package",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PackageID string `path:"package_id"`
	}) (*packageOutput, error) {
		v, err := e.Package(ctx, input.PackageID)
		if err != nil {
			return nil, handleError(err)
		}
		return &packageOutput{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-package-step",
		Method:      http.MethodPost,
		Path:        "/packages/{package_id}/steps/{step}/complete",
		Summary:     "Complete a bidding step",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		PackageID string              `path:"package_id"`
		Step      int                 `path:"step"`
		Body      CompleteStepRequest `json:"body" required:"false"`
	}) (*packageOutput, error) {
		v, err := e.CompletePackageStep(ctx, input.PackageID, input.Step, input.Body.Date, input.Body.Note)
		if err != nil {
			return nil, handleError(err)
		}
		hooks.notify(ctx, EventStepCompleted, progress.PhaseBidding, v.Package.ID, v.Progress.Record, v.Transition)
		return &packageOutput{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "schedule-package-step",
		Method:      http.MethodPost,
		Path:        "/packages/{package_id}/steps/{step}/schedule",
		Summary:     "Schedule a bidding step",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		PackageID string              `path:"package_id"`
		Step      int                 `path:"step"`
		Body      ScheduleStepRequest `json:"body"`
	}) (*packageOutput, error) {
		v, err := e.SchedulePackageStep(ctx, input.PackageID, input.Step, input.Body.Date, input.Body.Time, input.Body.Note)
		if err != nil {
			return nil, handleError(err)
		}
		hooks.notify(ctx, EventStepScheduled, progress.PhaseBidding, v.Package.ID, v.Progress.Record, v.Transition)
		return &packageOutput{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-package-step",
		Method:      http.MethodPut,
		Path:        "/packages/{package_id}/current-step",
		Summary:     "Set the current bidding step",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		PackageID string          `path:"package_id"`
		Body      MoveStepRequest `json:"body"`
	}) (*packageOutput, error) {
		v, err := e.MovePackageStep(ctx, input.PackageID, input.Body.Step)
		if err != nil {
			return nil, handleError(err)
		}
		hooks.notify(ctx, EventStepMoved, progress.PhaseBidding, v.Package.ID, v.Progress.Record, v.Transition)
		return &packageOutput{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-award",
		Method:      http.MethodPut,
		Path:        "/packages/{package_id}/award",
		Summary:     "Record the bid outcome",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		PackageID string       `path:"package_id"`
		Body      AwardRequest `json:"body"`
	}) (*packageOutput, error) {
		v, err := e.RecordAward(ctx, input.PackageID, input.Body.award())
		if err != nil {
			return nil, handleError(err)
		}
		hooks.notify(ctx, EventAwardRecorded, progress.PhaseBidding, v.Package.ID, v.Progress.Record, nil)
		return &packageOutput{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-package-lifecycle",
		Method:      http.MethodPut,
		Path:        "/packages/{package_id}/lifecycle",
		Summary:     "Set the package lifecycle flag",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		PackageID string           `path:"package_id"`
		Body      LifecycleRequest `json:"body"`
	}) (*packageOutput, error) {
		v, err := e.SetPackageLifecycle(ctx, input.PackageID, input.Body.Status)
		if err != nil {
			return nil, handleError(err)
		}
		hooks.notify(ctx, EventLifecycleChanged, progress.PhaseBidding, v.Package.ID, v.Progress.Record, nil)
		return &packageOutput{Body: v}, nil
	})
}

func registerContracts(api huma.API, e engine.Engine, hooks *webhookDispatcher) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-contract",
		Method:        http.MethodPost,
		Path:          "/contracts",
		Summary:       "Create contract",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateContractRequest `json:"body"`
	}) (*contractOutput, error) {
		v, err := e.CreateContract(ctx, engine.ContractCreateOptions{
			ID:        input.Body.ID,
			Name:      input.Body.Name,
			PackageID: input.Body.PackageID,
			Owner:     input.Body.Owner,
			Value:     input.Body.Value,
			PlanStart: input.Body.PlanStart,
			PlanEnd:   input.Body.PlanEnd,
		})
		if err != nil {
			return nil, handleError(err)
		}
		hooks.notify(ctx, EventRecordCreated, progress.PhaseContract, v.Contract.ID, v.Progress.Record, nil)
		return &contractOutput{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-contracts",
		Method:      http.MethodGet,
		Path:        "/contracts",
		Summary:     "List contracts with derived progress",
	}, func(ctx context.Context, input *struct {
		PackageID string `query:"package_id"`
	}) (*contractListOutput, error) {
		items, err := e.ListContracts(ctx, input.PackageID)
		if err != nil {
			return nil, handleError(err)
		}
		return &contractListOutput{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-contract",
		Method:      http.MethodGet,
		Path:        "/contracts/{contract_id}",
		Summary:     "Get contract",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ContractID string `path:"contract_id"`
	}) (*contractOutput, error) {
		v, err := e.Contract(ctx, input.ContractID)
		if err != nil {
			return nil, handleError(err)
		}
		return &contractOutput{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-contract-step",
		Method:      http.MethodPost,
		Path:        "/contracts/{contract_id}/steps/{step}/complete",
		Summary:     "Complete a contract step",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ContractID string              `path:"contract_id"`
		Step       int                 `path:"step"`
		Body       CompleteStepRequest `json:"body" required:"false"`
	}) (*contractOutput, error) {
		v, err := e.CompleteContractStep(ctx, input.ContractID, input.Step, input.Body.Date, input.Body.Note)
		if err != nil {
			return nil, handleError(err)
		}
		hooks.notify(ctx, EventStepCompleted, progress.PhaseContract, v.Contract.ID, v.Progress.Record, v.Transition)
		return &contractOutput{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-contract-step",
		Method:      http.MethodPut,
		Path:        "/contracts/{contract_id}/current-step",
		Summary:     "Set the current contract step",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ContractID string          `path:"contract_id"`
		Body       MoveStepRequest `json:"body"`
	}) (*contractOutput, error) {
		v, err := e.MoveContractStep(ctx, input.ContractID, input.Body.Step)
		if err != nil {
			return nil, handleError(err)
		}
		hooks.notify(ctx, EventStepMoved, progress.PhaseContract, v.Contract.ID, v.Progress.Record, v.Transition)
		return &contractOutput{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-contract-lifecycle",
		Method:      http.MethodPut,
		Path:        "/contracts/{contract_id}/lifecycle",
		Summary:     "Set the contract lifecycle flag",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ContractID string           `path:"contract_id"`
		Body       LifecycleRequest `json:"body"`
	}) (*contractOutput, error) {
		v, err := e.SetContractLifecycle(ctx, input.ContractID, input.Body.Status)
		if err != nil {
			return nil, handleError(err)
		}
		hooks.notify(ctx, EventLifecycleChanged, progress.PhaseContract, v.Contract.ID, v.Progress.Record, nil)
		return &contractOutput{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-contract",
		Method:        http.MethodDelete,
		Path:          "/contracts/{contract_id}",
		Summary:       "Delete a contract",
		Errors:        mutationErrors,
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		ContractID string `path:"contract_id"`
	}) (*struct{}, error) {
		if err := e.DeleteContract(ctx, input.ContractID); err != nil {
			return nil, handleError(err)
		}
		hooks.notify(ctx, EventRecordDeleted, progress.PhaseContract, input.ContractID, progress.Record{}, nil)
		return &struct{}{}, nil
	})
}

func registerDashboards(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "rollups",
		Method:      http.MethodGet,
		Path:        "/rollups",
		Summary:     "Design revenue rollups",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body progress.Rollups `json:"body"`
	}, error) {
		ro, err := e.Rollups(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body progress.Rollups `json:"body"`
		}{Body: ro}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "timeline",
		Method:      http.MethodGet,
		Path:        "/timeline",
		Summary:     "Gantt geometry for one phase",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Phase string `query:"phase" enum:"design,bidding,contract,construction" default:"design"`
	}) (*struct {
		Body progress.Timeline `json:"body"`
	}, error) {
		tl, err := e.Timeline(ctx, input.Phase)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body progress.Timeline `json:"body"`
		}{Body: tl}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "kanban",
		Method:      http.MethodGet,
		Path:        "/kanban",
		Summary:     "Design step board",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []progress.KanbanLane `json:"body"`
	}, error) {
		lanes, err := e.Kanban(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []progress.KanbanLane `json:"body"`
		}{Body: lanes}, nil
	})
}
