// Package recurrence creates the next occurrence of a periodic task
// once the current one is completed.
package recurrence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/napa14-design/infrahub/internal/datemath"
	"github.com/napa14-design/infrahub/internal/model"
	"github.com/napa14-design/infrahub/internal/rules"
	"github.com/napa14-design/infrahub/internal/storage"
)

// TaskStore is the slice of the record store the generator checks and
// inserts continuations through.
type TaskStore interface {
	HasLaterPendingTask(ctx context.Context, siteID, assetType, afterDate string) (bool, error)
	InsertTask(ctx context.Context, task *model.ScheduledTask) error
}

// Generator computes and inserts task continuations. It fires once per
// completion transition; re-saving an already completed task must not
// reach it.
type Generator struct {
	logger *zap.Logger
	store  TaskStore
	rules  *rules.Store
}

// NewGenerator creates a recurrence generator.
func NewGenerator(logger *zap.Logger, store TaskStore, ruleStore *rules.Store) *Generator {
	return &Generator{
		logger: logger.Named("recurrence"),
		store:  store,
		rules:  ruleStore,
	}
}

// NextOccurrence inserts the continuation of a just-completed task and
// returns it. The scheduled date is the performed date plus the
// resolved frequency (site override, global default, or fallback).
//
// No task is created when a pending task for the same site and asset
// type already exists after the completed one's scheduled date: manual
// entries ahead of the chain, or a completion processed twice, must not
// fork the chain. In that case (nil, nil) is returned.
//
// The insert is guarded by a unique constraint over pending tasks;
// losing that race is logged and also reported as no continuation.
func (g *Generator) NextOccurrence(ctx context.Context, completed *model.ScheduledTask) (*model.ScheduledTask, error) {
	if !completed.Completed() {
		return nil, fmt.Errorf("task %s has no performed date", completed.ID)
	}

	performed, err := datemath.Parse(completed.PerformedDate)
	if err != nil {
		return nil, fmt.Errorf("invalid performed date %q: %w", completed.PerformedDate, err)
	}

	frequencyDays := g.rules.FrequencyDays(ctx, completed.AssetType, completed.SiteID)
	nextDate := datemath.Format(datemath.AddDays(performed, frequencyDays))

	hasLater, err := g.store.HasLaterPendingTask(ctx, completed.SiteID, completed.AssetType, completed.ScheduledDate)
	if err != nil {
		return nil, err
	}
	if hasLater {
		g.logger.Info("Skipping continuation, later pending task exists",
			zap.String("site_id", completed.SiteID),
			zap.String("asset_type", completed.AssetType),
			zap.String("completed_task", completed.ID))
		return nil, nil
	}

	next := &model.ScheduledTask{
		ID:            uuid.New().String(),
		SiteID:        completed.SiteID,
		AssetType:     completed.AssetType,
		Technician:    completed.Technician,
		ScheduledDate: nextDate,
	}

	if err := g.store.InsertTask(ctx, next); err != nil {
		if errors.Is(err, storage.ErrDuplicatePendingTask) {
			g.logger.Warn("Continuation already generated concurrently",
				zap.String("site_id", completed.SiteID),
				zap.String("asset_type", completed.AssetType),
				zap.String("scheduled_date", nextDate))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to insert continuation: %w", err)
	}

	g.logger.Info("Generated next task occurrence",
		zap.String("task_id", next.ID),
		zap.String("site_id", next.SiteID),
		zap.String("asset_type", next.AssetType),
		zap.Int("frequency_days", frequencyDays),
		zap.String("scheduled_date", nextDate))

	return next, nil
}
