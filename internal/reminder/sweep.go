package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ryanhung919/x-men-sub002/internal/domain"
	"github.com/ryanhung919/x-men-sub002/internal/repo"
)

// TaskSource enumerates the tasks a sweep should consider.
type TaskSource interface {
	ListReminderCandidates(ctx context.Context) ([]domain.Task, error)
}

// AssigneeSource lists the current assignees of a task.
type AssigneeSource interface {
	ListAssignees(ctx context.Context, taskID string) ([]string, error)
}

// Directory resolves assignee email addresses.
type Directory interface {
	LookupUserEmail(ctx context.Context, id string) (string, error)
}

// Mailer sends one reminder message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SentEmail records one attempted reminder send. A task with several
// assignees yields one entry per assignee.
type SentEmail struct {
	TaskID     string `json:"task_id"`
	AssigneeID string `json:"assignee_id"`
	Email      string `json:"email"`
	Bucket     Bucket `json:"bucket"`
}

// SendFailure records one isolated per-recipient failure. Failures
// never abort the run.
type SendFailure struct {
	TaskID     string `json:"task_id"`
	AssigneeID string `json:"assignee_id"`
	Error      string `json:"error"`
}

// SweepResult is the outcome of one reminder run. Success reflects
// whether the batch completed, not whether every individual send
// succeeded; Sent and EmailsSent count only attempted sends.
type SweepResult struct {
	Success    bool          `json:"success"`
	Sent       int           `json:"sent"`
	EmailsSent []SentEmail   `json:"emails_sent"`
	Failed     []SendFailure `json:"failed,omitempty"`
}

// Sweeper is the periodic reminder job: classify open tasks into
// deadline buckets and send one message per qualifying (task, assignee)
// pair. There is no persisted "already reminded" marker, so overlapping
// or repeated runs on the same day will send again.
type Sweeper struct {
	Tasks     TaskSource
	Assignees AssigneeSource
	Directory Directory
	Mailer    Mailer
	BaseURL   string
	Location  *time.Location
}

// Run executes one sweep. now is explicit so classification across the
// bucket boundaries stays deterministic. The returned error is non-nil
// only when the candidate enumeration itself fails; per-recipient
// problems are aggregated in the result instead.
func (s Sweeper) Run(ctx context.Context, now time.Time) (SweepResult, error) {
	result := SweepResult{EmailsSent: []SentEmail{}}
	tasks, err := s.Tasks.ListReminderCandidates(ctx)
	if err != nil {
		return result, fmt.Errorf("list reminder candidates: %w", err)
	}
	for _, t := range tasks {
		bucket, ok := Classify(t, now, s.Location)
		if !ok {
			continue
		}
		assignees, err := s.Assignees.ListAssignees(ctx, t.ID)
		if err != nil {
			result.Failed = append(result.Failed, SendFailure{TaskID: t.ID, Error: fmt.Sprintf("list assignees: %v", err)})
			continue
		}
		for _, assignee := range assignees {
			email, err := s.Directory.LookupUserEmail(ctx, assignee)
			if errors.Is(err, repo.ErrNotFound) || (err == nil && email == "") {
				continue
			}
			if err != nil {
				result.Failed = append(result.Failed, SendFailure{TaskID: t.ID, AssigneeID: assignee, Error: fmt.Sprintf("lookup email: %v", err)})
				continue
			}
			subject, body := s.compose(t, bucket)
			result.Sent++
			result.EmailsSent = append(result.EmailsSent, SentEmail{TaskID: t.ID, AssigneeID: assignee, Email: email, Bucket: bucket})
			if err := s.Mailer.Send(ctx, email, subject, body); err != nil {
				result.Failed = append(result.Failed, SendFailure{TaskID: t.ID, AssigneeID: assignee, Error: err.Error()})
			}
		}
	}
	result.Success = true
	return result, nil
}

func (s Sweeper) compose(t domain.Task, bucket Bucket) (subject, body string) {
	var phrase string
	switch bucket {
	case BucketOverdue:
		subject = fmt.Sprintf("Overdue: %s", t.Title)
		phrase = "is overdue"
	case BucketDueToday:
		subject = fmt.Sprintf("Task due today: %s", t.Title)
		phrase = "is due today"
	case BucketDueTomorrow:
		subject = fmt.Sprintf("Task due tomorrow: %s", t.Title)
		phrase = "is due tomorrow"
	}
	body = fmt.Sprintf("Task %q %s.\n\nView it here: %s/task/%s\n", t.Title, phrase, s.BaseURL, t.ID)
	return subject, body
}
