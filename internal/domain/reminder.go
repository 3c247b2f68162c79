package domain

import "time"

// ReminderStatus is the lifecycle state of a one-shot reminder.
type ReminderStatus string

const (
	StatusActive    ReminderStatus = "active"
	StatusFired     ReminderStatus = "fired"
	StatusCancelled ReminderStatus = "cancelled"
	StatusFailed    ReminderStatus = "failed"
)

// ReminderKind distinguishes how the fire time was specified.
// It only affects display text.
type ReminderKind string

const (
	KindRelative ReminderKind = "relative"
	KindClock    ReminderKind = "clock"
)

// ReminderRecord is one scheduled one-shot notification. The persisted record
// is the source of truth; the registry timer is a runtime cache.
type ReminderRecord struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id"`
	Content   string         `json:"content"`
	FireAt    time.Time      `json:"fire_at"`
	CreatedAt time.Time      `json:"created_at"`
	Status    ReminderStatus `json:"status"`
	Kind      ReminderKind   `json:"kind"`
	TimeText  string         `json:"time_text,omitempty"`
}

// RetentionWindow is how long a reminder record stays in the store past its
// fire time before the expiry sweep removes it.
const RetentionWindow = time.Hour

// Expired reports whether the record is past the retention window at now.
func (r *ReminderRecord) Expired(now time.Time) bool {
	return now.Sub(r.FireAt) > RetentionWindow
}
