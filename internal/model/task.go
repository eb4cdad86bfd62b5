package model

import (
	"time"
)

// TaskStatus represents the derived status of a scheduled task.
// Status is computed from dates on every read, never persisted.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusOverdue TaskStatus = "overdue"
	TaskStatusDone    TaskStatus = "done"
)

// ScheduledTask represents one occurrence of a recurring site visit,
// e.g. a pest-control treatment for a given target at a given site.
type ScheduledTask struct {
	ID         string `json:"id"`
	SiteID     string `json:"site_id"`
	AssetType  string `json:"asset_type"`
	Technician string `json:"technician,omitempty"`
	Notes      string `json:"notes,omitempty"`

	// Dates are date-only ISO strings (2006-01-02). PerformedDate is
	// empty until the visit is completed.
	ScheduledDate string `json:"scheduled_date"`
	PerformedDate string `json:"performed_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Completed reports whether the visit has been performed.
func (t *ScheduledTask) Completed() bool {
	return t.PerformedDate != ""
}
