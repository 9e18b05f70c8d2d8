package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/ryanhung919/x-men-sub002/internal/domain"
	"github.com/ryanhung919/x-men-sub002/internal/engine"
	"github.com/ryanhung919/x-men-sub002/internal/notify"
	"github.com/ryanhung919/x-men-sub002/internal/reminder"
	"github.com/ryanhung919/x-men-sub002/internal/repo"
)

// Config for the notification core's HTTP surface. The surrounding task
// application's own REST API lives elsewhere; this handler only covers
// notification reads, domain-event ingestion, the visibility predicate,
// and reminder sweeps.
type Config struct {
	Engine   engine.Engine
	Sweeper  reminder.Sweeper
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"task not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns the HTTP handler for the notification service.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Task Notification API", "0.1.0")
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerNotifications(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerVisibility(group, cfg.Engine)
	registerSweeps(group, cfg)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
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
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "required") || strings.Contains(lowered, "invalid") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func registerHealth(group *huma.Group) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status" example:"ok"`
		}
	}
	huma.Register(group, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Service health",
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		return out, nil
	})
}

func registerNotifications(group *huma.Group, e engine.Engine) {
	type listInput struct {
		Unread bool `query:"unread" doc:"Only unread notifications"`
	}
	type listOutput struct {
		Body struct {
			Notifications []domain.Notification `json:"notifications"`
		}
	}
	huma.Register(group, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "List my notifications",
	}, func(ctx context.Context, in *listInput) (*listOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListNotifications(ctx, actorID, in.Unread)
		if err != nil {
			return nil, handleError(err)
		}
		out := &listOutput{}
		out.Body.Notifications = items
		return out, nil
	})

	type readInput struct {
		ID string `path:"id"`
	}
	huma.Register(group, huma.Operation{
		OperationID: "mark-notification-read",
		Method:      http.MethodPost,
		Path:        "/notifications/{id}/read",
		Summary:     "Mark one notification read",
	}, func(ctx context.Context, in *readInput) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.MarkNotificationRead(ctx, actorID, in.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "mark-all-notifications-read",
		Method:      http.MethodPost,
		Path:        "/notifications/read-all",
		Summary:     "Mark all my notifications read",
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.MarkAllNotificationsRead(ctx, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

// taskUpdateBody is the wire form of a partial task update. Absent
// fields are unchanged; an empty deadline or recurrence_date string
// clears the value.
type taskUpdateBody struct {
	Title              *string  `json:"title,omitempty"`
	Status             *string  `json:"status,omitempty" enum:"To Do,In Progress,On Hold,Completed"`
	PriorityBucket     *int     `json:"priority_bucket,omitempty"`
	Description        *string  `json:"description,omitempty"`
	Notes              *string  `json:"notes,omitempty"`
	Deadline           *string  `json:"deadline,omitempty" doc:"RFC3339 timestamp, empty string clears"`
	RecurrenceInterval *string  `json:"recurrence_interval,omitempty"`
	RecurrenceDate     *string  `json:"recurrence_date,omitempty" doc:"RFC3339 timestamp, empty string clears"`
	IsArchived         *bool    `json:"is_archived,omitempty"`
	LoggedTime         *float64 `json:"logged_time,omitempty"`
}

func (b taskUpdateBody) toUpdate() (notify.TaskUpdate, error) {
	u := notify.TaskUpdate{
		Title:              b.Title,
		Status:             b.Status,
		PriorityBucket:     b.PriorityBucket,
		Description:        b.Description,
		Notes:              b.Notes,
		RecurrenceInterval: b.RecurrenceInterval,
		IsArchived:         b.IsArchived,
		LoggedTime:         b.LoggedTime,
	}
	var err error
	if u.Deadline, err = parseNullableTime(b.Deadline); err != nil {
		return u, fmt.Errorf("invalid deadline: %w", err)
	}
	if u.RecurrenceDate, err = parseNullableTime(b.RecurrenceDate); err != nil {
		return u, fmt.Errorf("invalid recurrence_date: %w", err)
	}
	return u, nil
}

func parseNullableTime(s *string) (*sql.NullTime, error) {
	if s == nil {
		return nil, nil
	}
	if *s == "" {
		return &sql.NullTime{}, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &sql.NullTime{Time: t, Valid: true}, nil
}

func registerEvents(group *huma.Group, e engine.Engine) {
	type assignmentInput struct {
		Body struct {
			TaskID     string `json:"task_id"`
			AssigneeID string `json:"assignee_id"`
		}
	}
	type assignmentOutput struct {
		Body domain.TaskAssignment
	}
	huma.Register(group, huma.Operation{
		OperationID: "create-assignment",
		Method:      http.MethodPost,
		Path:        "/events/assignments",
		Summary:     "Assign a user to a task and notify them",
	}, func(ctx context.Context, in *assignmentInput) (*assignmentOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AssignTask(ctx, in.Body.TaskID, in.Body.AssigneeID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &assignmentOutput{Body: a}, nil
	})

	type commentInput struct {
		Body struct {
			TaskID string `json:"task_id"`
			Text   string `json:"text"`
		}
	}
	type commentOutput struct {
		Body domain.Comment
	}
	huma.Register(group, huma.Operation{
		OperationID: "create-comment",
		Method:      http.MethodPost,
		Path:        "/events/comments",
		Summary:     "Comment on a task and notify its assignees",
	}, func(ctx context.Context, in *commentInput) (*commentOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AddComment(ctx, in.Body.TaskID, actorID, in.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &commentOutput{Body: c}, nil
	})

	type updateInput struct {
		ID   string `path:"id"`
		Body taskUpdateBody
	}
	type updateOutput struct {
		Body domain.Task
	}
	huma.Register(group, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/events/tasks/{id}",
		Summary:     "Apply a task update and notify its assignees",
	}, func(ctx context.Context, in *updateInput) (*updateOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := in.Body.toUpdate()
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		t, err := e.UpdateTask(ctx, in.ID, actorID, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &updateOutput{Body: t}, nil
	})
}

func registerVisibility(group *huma.Group, e engine.Engine) {
	type visibilityInput struct {
		ID string `path:"id"`
	}
	type visibilityOutput struct {
		Body struct {
			Visible bool `json:"visible"`
		}
	}
	huma.Register(group, huma.Operation{
		OperationID: "task-visibility",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/visibility",
		Summary:     "May the calling actor see this task",
	}, func(ctx context.Context, in *visibilityInput) (*visibilityOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ok, err := e.CanActorSeeTask(ctx, actorID, in.ID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &visibilityOutput{}
		out.Body.Visible = ok
		return out, nil
	})
}

func registerSweeps(group *huma.Group, cfg Config) {
	type sweepOutput struct {
		Body reminder.SweepResult
	}
	huma.Register(group, huma.Operation{
		OperationID: "run-sweep",
		Method:      http.MethodPost,
		Path:        "/sweeps",
		Summary:     "Run one reminder sweep now",
	}, func(ctx context.Context, _ *struct{}) (*sweepOutput, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		now := time.Now()
		if cfg.Engine.Now != nil {
			now = cfg.Engine.Now()
		}
		result, err := cfg.Sweeper.Run(ctx, now)
		if err != nil {
			return nil, handleError(err)
		}
		return &sweepOutput{Body: result}, nil
	})
}
