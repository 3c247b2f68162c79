package domain

import "time"

// RecurringToDo is a to-do item evaluated daily against a due rule rather
// than fired by a standalone timer.
type RecurringToDo struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Content    string    `json:"content"`
	HasDate    bool      `json:"has_date"`
	TargetDate time.Time `json:"target_date,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// DatedRetention bounds how long far-past dated items survive before the
// 30-day sweep prunes them. Dated items are never removed by the due check.
const DatedRetention = 30 * 24 * time.Hour

// DueOn reports whether the item should appear in the daily notification on
// the given day. An undated item is due every day; a dated item is due only
// on the calendar day immediately preceding its target date.
func (t *RecurringToDo) DueOn(day time.Time) bool {
	if !t.HasDate {
		return true
	}
	next := day.AddDate(0, 0, 1)
	y1, m1, d1 := t.TargetDate.Date()
	y2, m2, d2 := next.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// MonthlyTemplate materializes into a RecurringToDo for the current month.
type MonthlyTemplate struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Content      string    `json:"content"`
	Day          int       `json:"day,omitempty"` // 1-31, valid when HasFixedDate
	HasFixedDate bool      `json:"has_fixed_date"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
}
