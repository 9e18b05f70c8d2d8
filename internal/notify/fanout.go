package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ryanhung919/x-men-sub002/internal/domain"
)

// FallbackName replaces the acting user's display name whenever the
// directory cannot resolve it (missing identity, system-generated
// assignment). A recipient is never shown an error because a name
// failed to render.
const FallbackName = "Someone"

// Directory resolves user identities.
type Directory interface {
	LookupUser(ctx context.Context, id string) (domain.UserName, error)
}

// AssigneeSource lists the current assignees of a task.
type AssigneeSource interface {
	ListAssignees(ctx context.Context, taskID string) ([]string, error)
}

// NotificationSink appends a notification record for one recipient.
type NotificationSink interface {
	CreateNotification(ctx context.Context, n domain.Notification) error
}

// Dispatcher reacts to the three domain events (assignment created,
// comment created, task updated) and fans each one out as individual
// notifications to the correct recipients. It runs synchronously with
// the write that caused the event: a sink failure propagates to the
// caller so the enclosing transaction can fail rather than silently
// lose notifications.
type Dispatcher struct {
	Directory Directory
	Assignees AssigneeSource
	Sink      NotificationSink
	Location  *time.Location
	Now       func() time.Time
}

func (d Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// displayName resolves an actor's name, degrading to FallbackName on an
// empty id or any directory miss.
func (d Dispatcher) displayName(ctx context.Context, id string) string {
	if id == "" {
		return FallbackName
	}
	n, err := d.Directory.LookupUser(ctx, id)
	if err != nil {
		return FallbackName
	}
	name := strings.TrimSpace(strings.TrimSpace(n.FirstName) + " " + strings.TrimSpace(n.LastName))
	if name == "" {
		return FallbackName
	}
	return name
}

func (d Dispatcher) send(ctx context.Context, userID, typ, title, message string) error {
	n := domain.Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      typ,
		CreatedAt: d.now().UTC().Format(time.RFC3339),
	}
	if err := d.Sink.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("create %s notification for %s: %w", typ, userID, err)
	}
	return nil
}

// AssignmentCreated notifies the assignee that they were put on a task.
// A self-assignment is a silent no-op and performs no identity lookup.
// An empty assignorID marks a system-generated assignment.
func (d Dispatcher) AssignmentCreated(ctx context.Context, assigneeID, assignorID, taskID, taskTitle string) error {
	if assigneeID == assignorID {
		return nil
	}
	name := d.displayName(ctx, assignorID)
	msg := fmt.Sprintf("%s assigned you to task: %q", name, taskTitle)
	return d.send(ctx, assigneeID, domain.NotificationTaskAssigned, "New Task Assignment", msg)
}

// CommentCreated notifies every assignee of the task except the
// commenter. If the assignee list cannot be read, nothing is emitted.
func (d Dispatcher) CommentCreated(ctx context.Context, commenterID, taskID, taskTitle string) error {
	assignees, err := d.Assignees.ListAssignees(ctx, taskID)
	if err != nil {
		return fmt.Errorf("list assignees of task %s: %w", taskID, err)
	}
	recipients := excluding(assignees, commenterID)
	if len(recipients) == 0 {
		return nil
	}
	name := d.displayName(ctx, commenterID)
	msg := fmt.Sprintf("%s commented on task: %q", name, taskTitle)
	for _, r := range recipients {
		if err := d.send(ctx, r, domain.NotificationCommentAdded, "New Comment", msg); err != nil {
			return err
		}
	}
	return nil
}

// TaskUpdated diffs the update against the prior snapshot and notifies
// every assignee except the updater. Exactly one changed field gets
// that field's rendered sentence; two or more get one compact message
// listing the changed field names in the order supplied. No changed
// fields means nothing is sent.
func (d Dispatcher) TaskUpdated(ctx context.Context, updaterID, taskID string, prev domain.Task, update TaskUpdate) error {
	changes := Diff(prev, update, d.Location)
	if len(changes) == 0 {
		return nil
	}
	assignees, err := d.Assignees.ListAssignees(ctx, taskID)
	if err != nil {
		return fmt.Errorf("list assignees of task %s: %w", taskID, err)
	}
	recipients := excluding(assignees, updaterID)
	if len(recipients) == 0 {
		return nil
	}
	name := d.displayName(ctx, updaterID)
	var msg string
	if len(changes) == 1 {
		msg = name + " " + changes[0].Summary
	} else {
		displays := make([]string, len(changes))
		for i, c := range changes {
			displays[i] = c.Display
		}
		msg = fmt.Sprintf("%s updated task %q: %s", name, prev.Title, strings.Join(displays, ", "))
	}
	for _, r := range recipients {
		if err := d.send(ctx, r, domain.NotificationTaskUpdated, "Task Updated", msg); err != nil {
			return err
		}
	}
	return nil
}

func excluding(ids []string, actor string) []string {
	var out []string
	for _, id := range ids {
		if id != actor {
			out = append(out, id)
		}
	}
	return out
}
