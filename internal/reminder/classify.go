package reminder

import (
	"time"

	"github.com/ryanhung919/x-men-sub002/internal/domain"
)

// Bucket is a deadline-proximity class. Tasks outside the three buckets
// are not reminded.
type Bucket string

const (
	BucketOverdue     Bucket = "overdue"
	BucketDueToday    Bucket = "due_today"
	BucketDueTomorrow Bucket = "due_tomorrow"
)

// Classify places a task into a reminder bucket by comparing its
// deadline to now at calendar-day granularity in the reference
// timezone. The second return is false when the task does not qualify:
// archived, terminal status, no deadline, or a deadline two or more
// days out.
func Classify(t domain.Task, now time.Time, loc *time.Location) (Bucket, bool) {
	if loc == nil {
		loc = time.UTC
	}
	if t.IsArchived || domain.TerminalStatus(t.Status) || t.Deadline == nil {
		return "", false
	}
	today := dateOf(now, loc)
	deadline := dateOf(*t.Deadline, loc)
	switch days := int(deadline.Sub(today).Hours() / 24); {
	case days < 0:
		return BucketOverdue, true
	case days == 0:
		return BucketDueToday, true
	case days == 1:
		return BucketDueTomorrow, true
	default:
		return "", false
	}
}

// dateOf truncates an instant to midnight of its calendar day in loc.
func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
