package notify

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/ryanhung919/x-men-sub002/internal/domain"
)

// dateFormat is the fixed rendering for deadline and recurrence dates.
const dateFormat = "Jan 2, 2006"

// TaskUpdate is a partial update to a task. A nil field means "not
// supplied". Deadline and RecurrenceDate use sql.NullTime so a supplied
// null (clear the value) is distinct from an absent field.
type TaskUpdate struct {
	Title              *string
	Status             *string
	PriorityBucket     *int
	Description        *string
	Notes              *string
	Deadline           *sql.NullTime
	RecurrenceInterval *string
	RecurrenceDate     *sql.NullTime
	IsArchived         *bool
	LoggedTime         *float64
}

// FieldChange is one genuinely changed field: its storage key, the
// user-facing display name, and a rendered sentence fragment describing
// the change (without the acting user's name).
type FieldChange struct {
	Field   string
	Display string
	Summary string
}

// Field keys and their user-facing display names.
var fieldDisplayNames = map[string]string{
	"title":               "title",
	"status":              "status",
	"priority_bucket":     "priority",
	"description":         "description",
	"notes":               "notes",
	"deadline":            "deadline",
	"recurrence_interval": "recurrence interval",
	"recurrence_date":     "recurrence date",
	"is_archived":         "archive status",
	"logged_time":         "logged time",
}

// Diff compares a task's previous snapshot against a partial update and
// returns the fields whose proposed value actually differs, in the
// canonical field order, each with its rendered description. Supplying
// a value equal to the current one is a no-op and produces no entry; an
// empty result means the dispatcher must send nothing.
func Diff(prev domain.Task, u TaskUpdate, loc *time.Location) []FieldChange {
	if loc == nil {
		loc = time.UTC
	}
	title := prev.Title
	var changes []FieldChange
	add := func(field, summary string) {
		changes = append(changes, FieldChange{Field: field, Display: fieldDisplayNames[field], Summary: summary})
	}

	if u.Title != nil && *u.Title != prev.Title {
		add("title", fmt.Sprintf("updated the title of task %q to %q", title, *u.Title))
	}
	if u.Status != nil && *u.Status != prev.Status {
		add("status", fmt.Sprintf("changed the status of task %q from %q to %q", title, prev.Status, *u.Status))
	}
	if u.PriorityBucket != nil && *u.PriorityBucket != prev.PriorityBucket {
		add("priority_bucket", fmt.Sprintf("changed the priority of task %q from %d to %d", title, prev.PriorityBucket, *u.PriorityBucket))
	}
	if u.Description != nil && *u.Description != prev.Description {
		add("description", fmt.Sprintf("changed the description of task %q from %s to %s",
			title, renderText(prev.Description), renderText(*u.Description)))
	}
	if u.Notes != nil && *u.Notes != prev.Notes {
		add("notes", fmt.Sprintf("changed the notes of task %q from %s to %s",
			title, renderText(prev.Notes), renderText(*u.Notes)))
	}
	if u.Deadline != nil && !sameTime(prev.Deadline, *u.Deadline) {
		add("deadline", fmt.Sprintf("changed the deadline of task %q from %s to %s",
			title, renderDate(prev.Deadline, loc), renderNullDate(*u.Deadline, loc)))
	}
	if u.RecurrenceInterval != nil && *u.RecurrenceInterval != prev.RecurrenceInterval {
		add("recurrence_interval", fmt.Sprintf("changed the recurrence interval of task %q from %s to %s",
			title, renderText(prev.RecurrenceInterval), renderText(*u.RecurrenceInterval)))
	}
	if u.RecurrenceDate != nil && !sameTime(prev.RecurrenceDate, *u.RecurrenceDate) {
		switch {
		case prev.RecurrenceDate == nil:
			add("recurrence_date", fmt.Sprintf("set the recurrence date of task %q to %s",
				title, renderNullDate(*u.RecurrenceDate, loc)))
		case !u.RecurrenceDate.Valid:
			add("recurrence_date", fmt.Sprintf("removed the recurrence date of task %q", title))
		default:
			add("recurrence_date", fmt.Sprintf("changed the recurrence date of task %q from %s to %s",
				title, renderDate(prev.RecurrenceDate, loc), renderNullDate(*u.RecurrenceDate, loc)))
		}
	}
	if u.IsArchived != nil && *u.IsArchived != prev.IsArchived {
		if *u.IsArchived {
			add("is_archived", fmt.Sprintf("archived task %q", title))
		} else {
			add("is_archived", fmt.Sprintf("unarchived task %q", title))
		}
	}
	if u.LoggedTime != nil && *u.LoggedTime != prev.LoggedTime {
		add("logged_time", fmt.Sprintf("changed the logged time of task %q from %s to %s",
			title, formatFloat(prev.LoggedTime), formatFloat(*u.LoggedTime)))
	}
	return changes
}

// Apply copies the supplied fields onto the snapshot and returns the
// resulting task. It does not touch timestamps.
func Apply(prev domain.Task, u TaskUpdate) domain.Task {
	t := prev
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.PriorityBucket != nil {
		t.PriorityBucket = *u.PriorityBucket
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Notes != nil {
		t.Notes = *u.Notes
	}
	if u.Deadline != nil {
		t.Deadline = timePtr(*u.Deadline)
	}
	if u.RecurrenceInterval != nil {
		t.RecurrenceInterval = *u.RecurrenceInterval
	}
	if u.RecurrenceDate != nil {
		t.RecurrenceDate = timePtr(*u.RecurrenceDate)
	}
	if u.IsArchived != nil {
		t.IsArchived = *u.IsArchived
	}
	if u.LoggedTime != nil {
		t.LoggedTime = *u.LoggedTime
	}
	return t
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func sameTime(prev *time.Time, next sql.NullTime) bool {
	if prev == nil {
		return !next.Valid
	}
	return next.Valid && prev.Equal(next.Time)
}

func renderText(s string) string {
	if s == "" {
		return "(empty)"
	}
	return strconv.Quote(s)
}

func renderDate(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "(none)"
	}
	return t.In(loc).Format(dateFormat)
}

func renderNullDate(nt sql.NullTime, loc *time.Location) string {
	return renderDate(timePtr(nt), loc)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
