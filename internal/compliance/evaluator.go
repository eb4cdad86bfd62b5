// Package compliance derives asset statuses from configurable
// time-based rules and turns violations into deduplicated alerts.
//
// Status is always recomputed from current dates; it is never stored.
// Every function here is pure so the sweep can re-run at any cadence
// without side effects beyond its idempotent upserts.
package compliance

import (
	"time"

	"github.com/napa14-design/infrahub/internal/datemath"
	"github.com/napa14-design/infrahub/internal/model"
)

// EvaluateAsset derives the compliance status of a dated asset under a
// rule. The critical window is checked before the warning window, so an
// asset inside both is critical only. A malformed relevant date reads
// as the far-future sentinel and can never trip a threshold.
func EvaluateAsset(today time.Time, asset model.MonitoredAsset, rule model.Rule) model.Status {
	if !rule.Enabled {
		return model.StatusNone
	}
	diff := datemath.DaysUntil(today, asset.RelevantDate)
	if diff <= rule.CriticalDays {
		return model.StatusCritical
	}
	if diff <= rule.WarningDays {
		return model.StatusWarning
	}
	return model.StatusOK
}

// EvaluateTask derives the status of a scheduled task: done once a
// performed date is set, overdue when the scheduled date has passed,
// pending otherwise.
func EvaluateTask(today time.Time, task *model.ScheduledTask) model.TaskStatus {
	if task.Completed() {
		return model.TaskStatusDone
	}
	if datemath.IsBeforeToday(today, task.ScheduledDate) {
		return model.TaskStatusOverdue
	}
	return model.TaskStatusPending
}

// SeverityFor maps a status to an alert severity tier. The second
// return is false for statuses that do not produce alerts, in which
// case no alert identity exists and nothing is touched.
func SeverityFor(status model.Status) (model.AlertSeverity, bool) {
	switch status {
	case model.StatusCritical:
		return model.AlertSeverityCritical, true
	case model.StatusWarning:
		return model.AlertSeverityWarning, true
	default:
		return "", false
	}
}
