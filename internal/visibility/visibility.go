package visibility

import (
	"context"
	"database/sql"

	"github.com/ryanhung919/x-men-sub002/internal/domain"
)

// Service answers whether an actor may observe a task, an assignment, a
// project, or a department. Every check is a pure read over current
// assignment and department state.
//
// Task visibility is the single ground predicate: the actor created the
// task, or the actor shares a department with at least one assignee.
// Assignment, identity, project, and department visibility all derive
// from it (or from the same base facts) instead of referencing each
// other, which is what keeps the task/assignment dependency from
// recursing.
type Service struct {
	DB *sql.DB
}

// canSeeTaskSQL is the ground predicate. An actor with no department
// has no colleagues and therefore only sees tasks they created.
const canSeeTaskSQL = `
SELECT 1 FROM tasks t
WHERE t.id=?
  AND (
    t.creator_id=?
    OR EXISTS (
      SELECT 1 FROM task_assignments ta
      JOIN users assignee ON assignee.id=ta.assignee_id
      JOIN users actor ON actor.id=?
      WHERE ta.task_id=t.id
        AND actor.department_id IS NOT NULL
        AND assignee.department_id=actor.department_id
    )
  )
LIMIT 1`

// CanSeeTask reports whether the actor may observe the task.
func (s Service) CanSeeTask(ctx context.Context, actorID, taskID string) (bool, error) {
	row := s.DB.QueryRowContext(ctx, canSeeTaskSQL, taskID, actorID, actorID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// CanSeeAssignment reports whether the actor may observe an assignment
// row: either the underlying task is visible, or the actor is the
// assignee.
func (s Service) CanSeeAssignment(ctx context.Context, actorID, taskID, assigneeID string) (bool, error) {
	if actorID == assigneeID {
		return true, nil
	}
	return s.CanSeeTask(ctx, actorID, taskID)
}

// VisibleAssignees returns the identities of every assignee on the task
// when the task is visible to the actor. Identity visibility is
// independent of the assignee's own department, so the actor can render
// "assigned to Bob" for colleagues' tasks cross-department.
func (s Service) VisibleAssignees(ctx context.Context, actorID, taskID string) ([]domain.UserName, error) {
	ok, err := s.CanSeeTask(ctx, actorID, taskID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT u.id, u.first_name, u.last_name
FROM task_assignments ta
JOIN users u ON u.id=ta.assignee_id
WHERE ta.task_id=?
ORDER BY ta.created_at, u.id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []domain.UserName
	for rows.Next() {
		var n domain.UserName
		if err := rows.Scan(&n.ID, &n.FirstName, &n.LastName); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// CanSeeProject reports whether some task assigned into the actor's
// department links to the project.
func (s Service) CanSeeProject(ctx context.Context, actorID, projectID string) (bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT 1 FROM tasks t
JOIN task_assignments ta ON ta.task_id=t.id
JOIN users assignee ON assignee.id=ta.assignee_id
JOIN users actor ON actor.id=?
WHERE t.project_id=?
  AND actor.department_id IS NOT NULL
  AND assignee.department_id=actor.department_id
LIMIT 1`, actorID, projectID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// CanSeeDepartment reports whether some task assigned into the actor's
// department links, through its project, to the department.
func (s Service) CanSeeDepartment(ctx context.Context, actorID, departmentID string) (bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT 1 FROM tasks t
JOIN task_assignments ta ON ta.task_id=t.id
JOIN users assignee ON assignee.id=ta.assignee_id
JOIN project_departments pd ON pd.project_id=t.project_id
JOIN users actor ON actor.id=?
WHERE pd.department_id=?
  AND actor.department_id IS NOT NULL
  AND assignee.department_id=actor.department_id
LIMIT 1`, actorID, departmentID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}
