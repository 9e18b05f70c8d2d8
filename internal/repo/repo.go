package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ryanhung919/x-men-sub002/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx so read helpers can
// serve the synchronous fanout inside an open transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// TxStore exposes the lookups and the notification insert over an open
// transaction, so the fanout triggered by a write shares its unit of
// work: a failed notification insert rolls the whole write back.
type TxStore struct {
	Tx *sql.Tx
}

func (s TxStore) LookupUser(ctx context.Context, id string) (domain.UserName, error) {
	return lookupUser(ctx, s.Tx, id)
}

func (s TxStore) ListAssignees(ctx context.Context, taskID string) ([]string, error) {
	return listAssignees(ctx, s.Tx, taskID)
}

func (s TxStore) CreateNotification(ctx context.Context, n domain.Notification) error {
	return insertNotification(ctx, s.Tx, n)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r Repo) InsertDepartment(ctx context.Context, d domain.Department) error {
	var parent any
	if d.ParentID != nil {
		parent = *d.ParentID
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO departments(id,name,parent_department_id) VALUES (?,?,?)`,
		d.ID, d.Name, parent)
	return err
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	var email, dept any
	if u.Email != nil {
		email = *u.Email
	}
	if u.DepartmentID != nil {
		dept = *u.DepartmentID
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,email,first_name,last_name,department_id,created_at) VALUES (?,?,?,?,?,?)`,
		u.ID, email, u.FirstName, u.LastName, dept, u.CreatedAt)
	return err
}

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO projects(id,name,is_archived,created_at) VALUES (?,?,?,?)`,
		p.ID, p.Name, boolToInt(p.IsArchived), p.CreatedAt)
	return err
}

func (r Repo) LinkProjectDepartment(ctx context.Context, projectID, departmentID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO project_departments(project_id,department_id) VALUES (?,?)`,
		projectID, departmentID)
	return err
}

// LookupUser resolves a user's display identity. Returns ErrNotFound on
// an unknown id.
func (r Repo) LookupUser(ctx context.Context, id string) (domain.UserName, error) {
	return lookupUser(ctx, r.DB, id)
}

func lookupUser(ctx context.Context, q querier, id string) (domain.UserName, error) {
	var n domain.UserName
	err := q.QueryRowContext(ctx, `SELECT id,first_name,last_name FROM users WHERE id=?`, id).
		Scan(&n.ID, &n.FirstName, &n.LastName)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	return n, err
}

// LookupUserEmail resolves a user's email address. Returns ErrNotFound
// when the user does not exist or has no email on file.
func (r Repo) LookupUserEmail(ctx context.Context, id string) (string, error) {
	var email sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT email FROM users WHERE id=?`, id).Scan(&email)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if !email.Valid || email.String == "" {
		return "", ErrNotFound
	}
	return email.String, nil
}

// ListAssignees returns the assignee ids currently on a task.
func (r Repo) ListAssignees(ctx context.Context, taskID string) ([]string, error) {
	return listAssignees(ctx, r.DB, taskID)
}

func listAssignees(ctx context.Context, q querier, taskID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT assignee_id FROM task_assignments WHERE task_id=? ORDER BY created_at, assignee_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const taskColumns = `id,title,status,priority_bucket,creator_id,project_id,deadline,description,notes,recurrence_interval,recurrence_date,is_archived,logged_time,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var (
		t          domain.Task
		projectID  sql.NullString
		deadline   sql.NullString
		recurDate  sql.NullString
		isArchived int
	)
	err := scan(&t.ID, &t.Title, &t.Status, &t.PriorityBucket, &t.CreatorID, &projectID,
		&deadline, &t.Description, &t.Notes, &t.RecurrenceInterval, &recurDate,
		&isArchived, &t.LoggedTime, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if projectID.Valid {
		t.ProjectID = &projectID.String
	}
	if t.Deadline, err = parseNullTime(deadline); err != nil {
		return t, fmt.Errorf("task %s deadline: %w", t.ID, err)
	}
	if t.RecurrenceDate, err = parseNullTime(recurDate); err != nil {
		return t, fmt.Errorf("task %s recurrence_date: %w", t.ID, err)
	}
	t.IsArchived = isArchived != 0
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) InsertTask(ctx context.Context, t domain.Task) error {
	var projectID any
	if t.ProjectID != nil {
		projectID = *t.ProjectID
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Status, t.PriorityBucket, t.CreatorID, projectID,
		nullTime(t.Deadline), t.Description, t.Notes, t.RecurrenceInterval, nullTime(t.RecurrenceDate),
		boolToInt(t.IsArchived), t.LoggedTime, t.CreatedAt, t.UpdatedAt)
	return err
}

// UpdateTaskTx rewrites the mutable columns of a task inside the
// caller's transaction.
func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?,status=?,priority_bucket=?,deadline=?,description=?,notes=?,recurrence_interval=?,recurrence_date=?,is_archived=?,logged_time=?,updated_at=? WHERE id=?`,
		t.Title, t.Status, t.PriorityBucket, nullTime(t.Deadline), t.Description, t.Notes,
		t.RecurrenceInterval, nullTime(t.RecurrenceDate), boolToInt(t.IsArchived), t.LoggedTime, t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertAssignmentTx records one assignee on a task.
func (r Repo) InsertAssignmentTx(ctx context.Context, tx *sql.Tx, a domain.TaskAssignment) error {
	var assignor any
	if a.AssignorID != nil {
		assignor = *a.AssignorID
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO task_assignments(task_id,assignee_id,assignor_id,created_at) VALUES (?,?,?,?)`,
		a.TaskID, a.AssigneeID, assignor, a.CreatedAt)
	return err
}

func (r Repo) InsertCommentTx(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO comments(id,task_id,author_id,body,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.TaskID, c.AuthorID, c.Body, c.CreatedAt)
	return err
}

// ListReminderCandidates enumerates tasks that could still need a
// deadline reminder: not archived, not in a terminal status, and with a
// deadline set. The proximity bucketing itself happens in the sweeper.
func (r Repo) ListReminderCandidates(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks
WHERE is_archived=0 AND status<>? AND deadline IS NOT NULL ORDER BY deadline`, domain.StatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
