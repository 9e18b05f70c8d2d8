package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ryanhung919/x-men-sub002/internal/config"
	"github.com/ryanhung919/x-men-sub002/internal/domain"
	"github.com/ryanhung919/x-men-sub002/internal/events"
	"github.com/ryanhung919/x-men-sub002/internal/notify"
	"github.com/ryanhung919/x-men-sub002/internal/reminder"
	"github.com/ryanhung919/x-men-sub002/internal/repo"
	"github.com/ryanhung919/x-men-sub002/internal/visibility"
)

// Engine owns the write paths that generate notifications: assignment
// creation, comment creation, and task updates. Each path runs in one
// transaction together with its event-log append and its synchronous
// notification fanout, so a failed notification write fails the whole
// unit of work.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Vis    visibility.Service
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Vis:    visibility.Service{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) location() *time.Location {
	if e.Config != nil {
		return e.Config.Location()
	}
	return time.UTC
}

func (e Engine) dispatcher(tx *sql.Tx) notify.Dispatcher {
	store := repo.TxStore{Tx: tx}
	return notify.Dispatcher{
		Directory: store,
		Assignees: store,
		Sink:      store,
		Location:  e.location(),
		Now:       e.Now,
	}
}

// Sweeper builds the periodic reminder job over this engine's store.
func (e Engine) Sweeper(m reminder.Mailer) reminder.Sweeper {
	baseURL := ""
	if e.Config != nil {
		baseURL = e.Config.App.BaseURL
	}
	return reminder.Sweeper{
		Tasks:     e.Repo,
		Assignees: e.Repo,
		Directory: e.Repo,
		Mailer:    m,
		BaseURL:   baseURL,
		Location:  e.location(),
	}
}

// CanActorSeeTask answers the task-visibility predicate for an actor.
func (e Engine) CanActorSeeTask(ctx context.Context, actorID, taskID string) (bool, error) {
	return e.Vis.CanSeeTask(ctx, actorID, taskID)
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID             string
	Title          string
	Status         string
	PriorityBucket int
	CreatorID      string
	ProjectID      string
	Deadline       *time.Time
	Description    string
	Notes          string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if opts.CreatorID == "" {
		return domain.Task{}, errors.New("creator is required")
	}
	if opts.Status == "" {
		opts.Status = domain.StatusToDo
	}
	if opts.PriorityBucket == 0 {
		opts.PriorityBucket = 3
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:             id,
		Title:          opts.Title,
		Status:         opts.Status,
		PriorityBucket: opts.PriorityBucket,
		CreatorID:      opts.CreatorID,
		Deadline:       opts.Deadline,
		Description:    opts.Description,
		Notes:          opts.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if opts.ProjectID != "" {
		t.ProjectID = &opts.ProjectID
	}
	if err := e.Repo.InsertTask(ctx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

// AssignTask puts an assignee on a task and notifies them. An empty
// assignorID records a system-generated assignment.
func (e Engine) AssignTask(ctx context.Context, taskID, assigneeID, assignorID string) (domain.TaskAssignment, error) {
	if assigneeID == "" {
		return domain.TaskAssignment{}, errors.New("assignee_id required")
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.TaskAssignment{}, err
	}
	a := domain.TaskAssignment{
		TaskID:     taskID,
		AssigneeID: assigneeID,
		CreatedAt:  e.now().UTC().Format(time.RFC3339),
	}
	if assignorID != "" {
		a.AssignorID = &assignorID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertAssignmentTx(ctx, tx, a); err != nil {
		return a, fmt.Errorf("insert assignment: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "task.assigned", "task", taskID, actorOrSystem(assignorID),
		events.EventPayload{"assignee_id": assigneeID}); err != nil {
		return a, err
	}
	if err := e.dispatcher(tx).AssignmentCreated(ctx, assigneeID, assignorID, taskID, t.Title); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

// AddComment records a comment and notifies the task's other assignees.
func (e Engine) AddComment(ctx context.Context, taskID, authorID, body string) (domain.Comment, error) {
	if authorID == "" {
		return domain.Comment{}, errors.New("author_id required")
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Comment{}, err
	}
	c := domain.Comment{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertCommentTx(ctx, tx, c); err != nil {
		return c, fmt.Errorf("insert comment: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "comment.created", "task", taskID, authorID,
		events.EventPayload{"comment_id": c.ID}); err != nil {
		return c, err
	}
	if err := e.dispatcher(tx).CommentCreated(ctx, authorID, taskID, t.Title); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

// UpdateTask applies a partial update to a task and notifies the other
// assignees about what changed. An update where nothing actually
// differs writes nothing and sends nothing.
func (e Engine) UpdateTask(ctx context.Context, taskID, updaterID string, u notify.TaskUpdate) (domain.Task, error) {
	prev, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return prev, err
	}
	changes := notify.Diff(prev, u, e.location())
	if len(changes) == 0 {
		return prev, nil
	}
	next := notify.Apply(prev, u)
	next.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return prev, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTaskTx(ctx, tx, next); err != nil {
		return prev, fmt.Errorf("update task: %w", err)
	}
	fields := make([]string, len(changes))
	for i, c := range changes {
		fields[i] = c.Field
	}
	if err := e.Events.Append(ctx, tx, "task.updated", "task", taskID, actorOrSystem(updaterID),
		events.EventPayload{"fields": fields}); err != nil {
		return prev, err
	}
	if err := e.dispatcher(tx).TaskUpdated(ctx, updaterID, taskID, prev, u); err != nil {
		return prev, err
	}
	if err := tx.Commit(); err != nil {
		return prev, err
	}
	return next, nil
}

func actorOrSystem(actorID string) string {
	if actorID == "" {
		return "system"
	}
	return actorID
}
