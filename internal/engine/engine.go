// Package engine is the public surface of the compliance core: running
// sweeps, completing tasks with automatic continuation, and pure status
// evaluation for display layers.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/napa14-design/infrahub/internal/compliance"
	"github.com/napa14-design/infrahub/internal/datemath"
	"github.com/napa14-design/infrahub/internal/model"
	"github.com/napa14-design/infrahub/internal/recurrence"
	"github.com/napa14-design/infrahub/internal/rules"
)

// Store is the record-store surface the engine depends on. It embeds
// the slices the sweeper and generator consume plus the task reads and
// writes completion needs. *storage.Store satisfies it.
type Store interface {
	compliance.RecordStore
	recurrence.TaskStore
	GetTask(ctx context.Context, id string) (*model.ScheduledTask, error)
	UpdateTask(ctx context.Context, task *model.ScheduledTask) error
}

// Engine wires the record store, rule store, sweeper and recurrence
// generator behind the three operations the rest of the system calls.
type Engine struct {
	logger    *zap.Logger
	store     Store
	rules     *rules.Store
	sweeper   *compliance.Sweeper
	generator *recurrence.Generator
	clock     datemath.Clock
}

// New creates the engine. Configuration (rules, frequencies) lives in
// the injected rule store; nothing here reads process-wide state.
func New(logger *zap.Logger, store Store, ruleStore *rules.Store, notifier compliance.Notifier, clock datemath.Clock) *Engine {
	return &Engine{
		logger:    logger,
		store:     store,
		rules:     ruleStore,
		sweeper:   compliance.NewSweeper(logger, store, ruleStore, notifier, clock),
		generator: recurrence.NewGenerator(logger, store, ruleStore),
		clock:     clock,
	}
}

// RunComplianceSweep evaluates all monitored assets within the scope
// and returns the alerts created or refreshed this pass.
func (e *Engine) RunComplianceSweep(ctx context.Context, scope model.Scope) ([]model.Alert, error) {
	return e.sweeper.Run(ctx, scope)
}

// CompletionDetails carries the optional fields recorded alongside a
// completion.
type CompletionDetails struct {
	Technician string
	Notes      string
}

// CompleteTask records the performed date on a task and, on the first
// completion only, generates the next occurrence. Completing an already
// completed task updates the detail fields and returns no continuation;
// it never re-triggers recurrence.
//
// Completion and continuation are two independent writes: a failed
// continuation is returned as an error alongside the successfully
// completed task, never rolled back.
func (e *Engine) CompleteTask(ctx context.Context, taskID, performedDate string, details CompletionDetails) (*model.ScheduledTask, *model.ScheduledTask, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if task == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	if _, err := datemath.Parse(performedDate); err != nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidPerformedDate, performedDate)
	}

	alreadyDone := task.Completed()
	if !alreadyDone {
		task.PerformedDate = performedDate
	}
	if details.Technician != "" {
		task.Technician = details.Technician
	}
	if details.Notes != "" {
		task.Notes = details.Notes
	}

	if err := e.store.UpdateTask(ctx, task); err != nil {
		return nil, nil, err
	}

	if alreadyDone {
		e.logger.Info("Task already completed, skipping continuation",
			zap.String("task_id", task.ID))
		return task, nil, nil
	}

	next, err := e.generator.NextOccurrence(ctx, task)
	if err != nil {
		return task, nil, fmt.Errorf("task completed but continuation failed: %w", err)
	}
	return task, next, nil
}

// EvaluateStatus derives the compliance status of a dated asset under a
// rule. Pure; for display-layer use without mutating anything.
func (e *Engine) EvaluateStatus(asset model.MonitoredAsset, rule model.Rule) model.Status {
	return compliance.EvaluateAsset(e.clock.Today(), asset, rule)
}

// TaskView pairs a stored task with its dynamically derived status.
type TaskView struct {
	model.ScheduledTask
	Status model.TaskStatus `json:"status"`
}

// ListTasks returns tasks within the scope with status computed at read
// time, so a task crossing its scheduled date shows overdue without any
// background write.
func (e *Engine) ListTasks(ctx context.Context, scope model.Scope) ([]TaskView, error) {
	tasks, err := e.store.ListTasks(ctx, scope)
	if err != nil {
		return nil, err
	}

	today := e.clock.Today()
	views := make([]TaskView, 0, len(tasks))
	for i := range tasks {
		views = append(views, TaskView{
			ScheduledTask: tasks[i],
			Status:        compliance.EvaluateTask(today, &tasks[i]),
		})
	}
	return views, nil
}
