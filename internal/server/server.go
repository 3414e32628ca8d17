// Package server exposes the task tracker over HTTP. Handlers are thin:
// they translate requests into engine calls and map domain errors onto a
// stable JSON error envelope.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"taskline/internal/codec"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/repo"
	"taskline/internal/strategy"
	"taskline/internal/tree"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"task 42 not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Taskline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// schema-level request errors read as bad input, not semantics
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	hcfg := huma.DefaultConfig("Taskline API", "0.1.0")
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerProjects(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerCascades(group, cfg.Engine)
	registerTree(group, cfg.Engine)
	registerTransfer(group, cfg.Engine)

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
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrCycleDetected):
		return newAPIError(http.StatusConflict, "cycle_detected", err.Error(), nil)
	case errors.Is(err, domain.ErrConflict):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidReference):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_reference", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidImport):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_import", err.Error(), nil)
	case errors.Is(err, domain.ErrValidation):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, domain.ErrCorruptHierarchy):
		return newAPIError(http.StatusInternalServerError, "corrupt_hierarchy", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func rawBodyMap(ctx context.Context) map[string]json.RawMessage {
	out := map[string]json.RawMessage{}
	_ = json.Unmarshal(bodyBytes(ctx), &out)
	return out
}

// actorFromContext attributes a mutation to the X-Actor-Id header when set.
func actorFromContext(ctx context.Context) string {
	r, _ := ctx.Value(requestKey{}).(*http.Request)
	if r == nil {
		return ""
	}
	return r.Header.Get("X-Actor-Id")
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

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		p, err := e.CreateProject(ctx, input.Body.Name, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{id}",
		Summary:     "Update project",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64                `path:"id"`
		Body UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		patch := repo.ProjectPatch{Name: input.Body.Name, Status: input.Body.Status}
		p, err := e.UpdateProject(ctx, input.ID, patch, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{id}",
		Summary:     "Delete project",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID    int64 `path:"id"`
		Force bool  `query:"force"`
	}) (*struct{}, error) {
		if err := e.DeleteProject(ctx, input.ID, input.Force, actorFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnprocessableEntity,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		opts := engine.TaskCreateOptions{
			Title:     input.Body.Title,
			ProjectID: input.Body.ProjectID,
			ParentID:  input.Body.ParentID,
			ActorID:   actorFromContext(ctx),
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		if input.Body.Status != nil {
			opts.Status = *input.Body.Status
		}
		if input.Body.Priority != nil {
			opts.Priority = *input.Body.Priority
		}
		if input.Body.DueDate != nil {
			opts.DueDate = *input.Body.DueDate
		}
		t, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status    string `query:"status"`
		Priority  string `query:"priority"`
		ProjectID int64  `query:"project_id"`
		Overdue   bool   `query:"overdue"`
		Sort      string `query:"sort" enum:"priority,due,created,score" default:"created"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{})
		if err != nil {
			return nil, handleError(err)
		}
		var filters []strategy.Filter
		if input.Status != "" {
			if !domain.ValidStatus(input.Status) {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown status "+input.Status, nil)
			}
			filters = append(filters, strategy.ByStatus(input.Status))
		}
		if input.Priority != "" {
			if !domain.ValidPriority(input.Priority) {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown priority "+input.Priority, nil)
			}
			filters = append(filters, strategy.ByPriority(input.Priority))
		}
		if input.ProjectID != 0 {
			filters = append(filters, strategy.ByProject(input.ProjectID))
		}
		now := e.Now()
		if input.Overdue {
			filters = append(filters, strategy.Overdue(now))
		}
		if len(filters) > 0 {
			tasks = strategy.Apply(tasks, strategy.And(filters...))
		}
		less, err := strategy.SortFor(input.Sort, e.Config, now)
		if err != nil {
			return nil, handleError(err)
		}
		strategy.Sort(tasks, less)
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(tasks)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64             `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		bodyMap := rawBodyMap(ctx)
		opts := engine.TaskUpdateOptions{
			ID:       input.ID,
			Title:    input.Body.Title,
			Status:   input.Body.Status,
			Priority: input.Body.Priority,
			ActorID:  actorFromContext(ctx),
		}
		if _, ok := bodyMap["description"]; ok {
			opts.Description = input.Body.Description
		}
		// null clears the reference, a value moves it
		if _, ok := bodyMap["project_id"]; ok {
			v := input.Body.ProjectID
			opts.SetProject = &v
		}
		if _, ok := bodyMap["parent_id"]; ok {
			v := input.Body.ParentID
			opts.SetParent = &v
		}
		if _, ok := bodyMap["due_date"]; ok {
			v := input.Body.DueDate
			opts.SetDueDate = &v
		}
		t, err := e.UpdateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete task",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID        int64 `path:"id"`
		Recursive bool  `query:"recursive"`
	}) (*struct {
		Body DeleteTasksResponse `json:"body"`
	}, error) {
		deleted, err := e.Delete(ctx, input.ID, input.Recursive, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeleteTasksResponse `json:"body"`
		}{Body: DeleteTasksResponse{Deleted: deleted}}, nil
	})
}

func registerCascades(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/complete",
		Summary:     "Complete task",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID        int64 `path:"id"`
		Recursive bool  `query:"recursive"`
	}) (*struct {
		Body CompleteResponse `json:"body"`
	}, error) {
		done, err := e.Complete(ctx, input.ID, input.Recursive, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompleteResponse `json:"body"`
		}{Body: CompleteResponse{Completed: done}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-progress",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/progress",
		Summary:     "Task progress",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body ProgressResponse `json:"body"`
	}, error) {
		p, err := e.Progress(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProgressResponse `json:"body"`
		}{Body: ProgressResponse{TaskID: input.ID, Progress: p}}, nil
	})
}

func registerTree(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "task-tree",
		Method:      http.MethodGet,
		Path:        "/tasks/tree",
		Summary:     "Task tree",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ProjectID int64  `query:"project_id"`
		Status    string `query:"status"`
	}) (*struct {
		Body []TreeNode `json:"body"`
	}, error) {
		var projectFilter *int64
		if input.ProjectID != 0 {
			projectFilter = &input.ProjectID
		}
		tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{ProjectID: projectFilter})
		if err != nil {
			return nil, handleError(err)
		}
		if input.Status != "" {
			if !domain.ValidStatus(input.Status) {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown status "+input.Status, nil)
			}
			tasks = strategy.Apply(tasks, strategy.ByStatus(input.Status))
		}
		nodes, err := buildTreeResponse(tasks)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TreeNode `json:"body"`
		}{Body: nodes}, nil
	})
}

func buildTreeResponse(tasks []domain.Task) ([]TreeNode, error) {
	f := tree.Build(tasks)
	var convert func(n *tree.Node) (TreeNode, error)
	convert = func(n *tree.Node) (TreeNode, error) {
		p, err := tree.Progress(n)
		if err != nil {
			return TreeNode{}, err
		}
		out := TreeNode{Task: taskResponse(n.Task), Progress: p, Children: []TreeNode{}}
		for _, c := range n.Children {
			child, err := convert(c)
			if err != nil {
				return TreeNode{}, err
			}
			out.Children = append(out.Children, child)
		}
		return out, nil
	}
	res := []TreeNode{}
	for _, r := range f.Roots {
		node, err := convert(r)
		if err != nil {
			return nil, err
		}
		res = append(res, node)
	}
	return res, nil
}

func registerTransfer(api huma.API, e engine.Engine) {
	c := codec.Codec{Engine: e}

	huma.Register(api, huma.Operation{
		OperationID: "export-workspace",
		Method:      http.MethodGet,
		Path:        "/export",
		Summary:     "Export workspace",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body codec.Document `json:"body"`
	}, error) {
		doc, err := c.Export(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body codec.Document `json:"body"`
		}{Body: *doc}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-workspace",
		Method:      http.MethodPost,
		Path:        "/import",
		Summary:     "Import workspace",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body ImportRequest `json:"body"`
	}) (*struct {
		Body ImportResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		mode, err := codec.ParseMode(input.Body.Mode)
		if err != nil {
			return nil, handleError(err)
		}
		sum, err := c.Import(ctx, &input.Body.Document, mode, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ImportResponse `json:"body"`
		}{Body: ImportResponse{Mode: string(sum.Mode), Projects: sum.Projects, Tasks: sum.Tasks}}, nil
	})
}
