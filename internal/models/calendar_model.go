package models

import "time"

type CalendarStatus string

const (
	CalendarStatusDraft     CalendarStatus = "DRAFT"
	CalendarStatusScheduled CalendarStatus = "SCHEDULED"
	CalendarStatusCompleted CalendarStatus = "COMPLETED"
)

type CalendarItemStatus string

const (
	CalendarItemEdited    CalendarItemStatus = "EDITED"
	CalendarItemScheduled CalendarItemStatus = "SCHEDULED"
	CalendarItemPublished CalendarItemStatus = "PUBLISHED"
)

// rank orders item statuses so rollup can refuse to move backwards.
func (s CalendarItemStatus) rank() int {
	switch s {
	case CalendarItemScheduled:
		return 1
	case CalendarItemPublished:
		return 2
	default:
		return 0
	}
}

// Advances reports whether moving from s to next is forward progress.
func (s CalendarItemStatus) Advances(next CalendarItemStatus) bool {
	return next.rank() > s.rank()
}

type ContentCalendar struct {
	ID        string         `db:"id" json:"id"`
	BrandID   string         `db:"brand_id" json:"brand_id"`
	Name      string         `db:"name" json:"name"`
	Status    CalendarStatus `db:"status" json:"status"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

type ContentCalendarItem struct {
	ID            string             `db:"id" json:"id"`
	CalendarID    string             `db:"calendar_id" json:"calendar_id"`
	BrandID       string             `db:"brand_id" json:"brand_id"`
	Day           int                `db:"day" json:"day"`
	Topic         string             `db:"topic" json:"topic"`
	SuggestedTime string             `db:"suggested_time" json:"suggested_time"`
	Status        CalendarItemStatus `db:"status" json:"status"`
	PostGroupID   string             `db:"post_group_id" json:"post_group_id,omitempty"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updated_at"`
}
