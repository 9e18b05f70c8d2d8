package domain

import "time"

// Task statuses. The set is fixed; Completed is the only terminal status.
const (
	StatusToDo       = "To Do"
	StatusInProgress = "In Progress"
	StatusOnHold     = "On Hold"
	StatusCompleted  = "Completed"
)

// TerminalStatus reports whether a task in this status is finished and
// must no longer generate deadline reminders.
func TerminalStatus(status string) bool {
	return status == StatusCompleted
}

// Notification types.
const (
	NotificationTaskAssigned = "task_assigned"
	NotificationCommentAdded = "comment_added"
	NotificationTaskUpdated  = "task_updated"
)

type User struct {
	ID           string  `json:"id"`
	Email        *string `json:"email,omitempty"`
	FirstName    string  `json:"first_name"`
	LastName     string  `json:"last_name"`
	DepartmentID *string `json:"department_id,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

type Department struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ParentID *string `json:"parent_department_id,omitempty"`
}

type Project struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsArchived bool   `json:"is_archived"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Task struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Status             string     `json:"status" enum:"To Do,In Progress,On Hold,Completed"`
	PriorityBucket     int        `json:"priority_bucket"`
	CreatorID          string     `json:"creator_id"`
	ProjectID          *string    `json:"project_id,omitempty"`
	Deadline           *time.Time `json:"deadline,omitempty"`
	Description        string     `json:"description,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	RecurrenceInterval string     `json:"recurrence_interval,omitempty"`
	RecurrenceDate     *time.Time `json:"recurrence_date,omitempty"`
	IsArchived         bool       `json:"is_archived"`
	LoggedTime         float64    `json:"logged_time"`
	CreatedAt          string     `json:"created_at" format:"date-time"`
	UpdatedAt          string     `json:"updated_at" format:"date-time"`
}

// TaskAssignment links one assignee to a task. AssignorID is nil for
// system-generated assignments.
type TaskAssignment struct {
	TaskID     string  `json:"task_id"`
	AssigneeID string  `json:"assignee_id"`
	AssignorID *string `json:"assignor_id,omitempty"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type Comment struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	AuthorID  string `json:"author_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Notification is an append-only record addressed to exactly one
// recipient. It is never created for the actor who caused the event.
type Notification struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type" enum:"task_assigned,comment_added,task_updated"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// UserName is the directory answer for an identity lookup.
type UserName struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}
