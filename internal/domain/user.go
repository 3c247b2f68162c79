package domain

import (
	"sort"
	"time"
)

// DefaultTimezone is the single fixed offset the whole system runs in.
const DefaultTimezone = "Asia/Taipei"

const (
	DefaultMorningTime = "09:00"
	DefaultEveningTime = "18:00"
)

// UserProfile holds everything the store persists for one owner.
// Profiles are created lazily on first interaction.
type UserProfile struct {
	OwnerID      string             `json:"owner_id"`
	MorningTime  string             `json:"morning_time"`
	EveningTime  string             `json:"evening_time"`
	Timezone     string             `json:"timezone"`
	Todos        []*RecurringToDo   `json:"todos"`
	MonthlyTodos []*MonthlyTemplate `json:"monthly_todos"`
	Reminders    []*ReminderRecord  `json:"reminders"`
	CreatedAt    time.Time          `json:"created_at"`
}

// NewUserProfile returns a profile with all collections empty and the
// default reminder times set.
func NewUserProfile(ownerID string, now time.Time) *UserProfile {
	p := &UserProfile{OwnerID: ownerID, CreatedAt: now}
	p.FillDefaults()
	return p
}

// FillDefaults is the single versionless default-filling step applied once
// when a profile is loaded. Missing collection fields default to empty so
// business logic never has to nil-check them.
func (p *UserProfile) FillDefaults() {
	if p.MorningTime == "" {
		p.MorningTime = DefaultMorningTime
	}
	if p.EveningTime == "" {
		p.EveningTime = DefaultEveningTime
	}
	if p.Timezone == "" {
		p.Timezone = DefaultTimezone
	}
	if p.Todos == nil {
		p.Todos = []*RecurringToDo{}
	}
	if p.MonthlyTodos == nil {
		p.MonthlyTodos = []*MonthlyTemplate{}
	}
	if p.Reminders == nil {
		p.Reminders = []*ReminderRecord{}
	}
}

// ActiveReminders returns the owner's active reminders sorted by ascending
// fire time, the display order used by list and cancel.
func (p *UserProfile) ActiveReminders() []*ReminderRecord {
	out := make([]*ReminderRecord, 0, len(p.Reminders))
	for _, r := range p.Reminders {
		if r.Status == StatusActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out
}
