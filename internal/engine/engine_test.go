package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/napa14-design/infrahub/internal/datemath"
	"github.com/napa14-design/infrahub/internal/engine"
	"github.com/napa14-design/infrahub/internal/model"
	"github.com/napa14-design/infrahub/internal/rules"
	"github.com/napa14-design/infrahub/internal/storage"
	"github.com/napa14-design/infrahub/internal/testutil"
)

func newEngine(t *testing.T) (*storage.Store, *rules.Store, *engine.Engine) {
	t.Helper()

	store := testutil.OpenStore(t)
	ruleStore := testutil.OpenRuleStore(t, store)
	ctx := context.Background()

	require.NoError(t, ruleStore.ResetToDefaults(ctx, rules.Defaults{
		Rules: []model.Rule{
			{Category: model.RuleCategoryCertificate, WarningDays: 30, CriticalDays: 0, Enabled: true},
			{Category: model.RuleCategoryFilter, WarningDays: 15, CriticalDays: 3, Enabled: true},
			{Category: model.RuleCategoryReservoir, WarningDays: 15, CriticalDays: 3, Enabled: true},
		},
		Frequencies: []model.FrequencyPolicy{
			{AssetType: "Rato / Roedores", GlobalDays: 15, SiteOverrides: map[string]int{"ALD": 7}},
		},
	}))

	clock := datemath.FixedClock{Day: time.Date(2026, time.March, 10, 0, 0, 0, 0, time.Local)}
	eng := engine.New(zap.NewNop(), store, ruleStore, nil, clock)

	return store, ruleStore, eng
}

func TestCompleteTask_GeneratesContinuation(t *testing.T) {
	store, _, eng := newEngine(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTask(ctx, &model.ScheduledTask{
		ID: "t1", SiteID: "ALD", AssetType: "Rato / Roedores", ScheduledDate: "2026-03-10",
	}))

	updated, next, err := eng.CompleteTask(ctx, "t1", "2026-03-12", engine.CompletionDetails{
		Technician: "J. Costa",
		Notes:      "bait replaced",
	})
	require.NoError(t, err)
	require.Equal(t, "2026-03-12", updated.PerformedDate)
	require.Equal(t, "J. Costa", updated.Technician)

	// ALD carries a 7-day override for this target
	require.NotNil(t, next)
	require.Equal(t, "2026-03-19", next.ScheduledDate)
	require.Empty(t, next.PerformedDate)
}

func TestCompleteTask_GlobalFrequencyElsewhere(t *testing.T) {
	store, _, eng := newEngine(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTask(ctx, &model.ScheduledTask{
		ID: "t1", SiteID: "PRT", AssetType: "Rato / Roedores", ScheduledDate: "2026-03-10",
	}))

	_, next, err := eng.CompleteTask(ctx, "t1", "2026-03-12", engine.CompletionDetails{})
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, "2026-03-27", next.ScheduledDate)
}

func TestCompleteTask_Idempotent(t *testing.T) {
	store, _, eng := newEngine(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTask(ctx, &model.ScheduledTask{
		ID: "t1", SiteID: "ALD", AssetType: "Rato / Roedores", ScheduledDate: "2026-03-10",
	}))

	_, first, err := eng.CompleteTask(ctx, "t1", "2026-03-12", engine.CompletionDetails{})
	require.NoError(t, err)
	require.NotNil(t, first)

	// Re-saving the completed task must not move the performed date or
	// spawn a second continuation
	updated, second, err := eng.CompleteTask(ctx, "t1", "2026-03-20", engine.CompletionDetails{
		Notes: "extra photos attached",
	})
	require.NoError(t, err)
	require.Nil(t, second)
	require.Equal(t, "2026-03-12", updated.PerformedDate)
	require.Equal(t, "extra photos attached", updated.Notes)

	tasks, err := store.ListTasks(ctx, model.AllSites)
	require.NoError(t, err)
	require.Len(t, tasks, 2) // the original and one continuation
}

func TestCompleteTask_Errors(t *testing.T) {
	store, _, eng := newEngine(t)
	ctx := context.Background()

	_, _, err := eng.CompleteTask(ctx, "missing", "2026-03-12", engine.CompletionDetails{})
	require.ErrorIs(t, err, engine.ErrTaskNotFound)

	require.NoError(t, store.InsertTask(ctx, &model.ScheduledTask{
		ID: "t1", SiteID: "ALD", AssetType: "Baratas", ScheduledDate: "2026-03-10",
	}))
	_, _, err = eng.CompleteTask(ctx, "t1", "12/03/2026", engine.CompletionDetails{})
	require.ErrorIs(t, err, engine.ErrInvalidPerformedDate)
}

// brokenInsertStore rejects every task insert, leaving the rest of the
// store intact.
type brokenInsertStore struct {
	*storage.Store
}

func (s *brokenInsertStore) InsertTask(_ context.Context, _ *model.ScheduledTask) error {
	return errors.New("disk full")
}

func TestCompleteTask_ContinuationFailureKeepsCompletion(t *testing.T) {
	store, ruleStore, _ := newEngine(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTask(ctx, &model.ScheduledTask{
		ID: "t1", SiteID: "ALD", AssetType: "Rato / Roedores", ScheduledDate: "2026-03-10",
	}))

	clock := datemath.FixedClock{Day: time.Date(2026, time.March, 10, 0, 0, 0, 0, time.Local)}
	eng := engine.New(zap.NewNop(), &brokenInsertStore{Store: store}, ruleStore, nil, clock)

	updated, next, err := eng.CompleteTask(ctx, "t1", "2026-03-12", engine.CompletionDetails{})
	require.Error(t, err)
	require.ErrorContains(t, err, "continuation failed")
	require.Nil(t, next)

	// Completion and continuation are independent writes: the completed
	// task is returned and stays completed despite the failed insert
	require.NotNil(t, updated)
	require.Equal(t, "2026-03-12", updated.PerformedDate)

	stored, err := store.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "2026-03-12", stored.PerformedDate)
}

func TestListTasks_DynamicStatus(t *testing.T) {
	store, _, eng := newEngine(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTask(ctx, &model.ScheduledTask{
		ID: "overdue", SiteID: "ALD", AssetType: "Baratas", ScheduledDate: "2026-03-01",
	}))
	require.NoError(t, store.InsertTask(ctx, &model.ScheduledTask{
		ID: "pending", SiteID: "ALD", AssetType: "Formigas", ScheduledDate: "2026-03-20",
	}))
	require.NoError(t, store.InsertTask(ctx, &model.ScheduledTask{
		ID: "done", SiteID: "ALD", AssetType: "Rato / Roedores",
		ScheduledDate: "2026-03-01", PerformedDate: "2026-03-02",
	}))

	views, err := eng.ListTasks(ctx, model.AllSites)
	require.NoError(t, err)

	byID := make(map[string]model.TaskStatus, len(views))
	for _, v := range views {
		byID[v.ID] = v.Status
	}
	require.Equal(t, model.TaskStatusOverdue, byID["overdue"])
	require.Equal(t, model.TaskStatusPending, byID["pending"])
	require.Equal(t, model.TaskStatusDone, byID["done"])
}

func TestRunComplianceSweep_EndToEnd(t *testing.T) {
	store, _, eng := newEngine(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCertificate(ctx, model.Certificate{
		ID: "cert-1", SiteID: "ALD", Name: "Potability 2026", ExpiryDate: "2026-03-20",
	}))

	alerts, err := eng.RunComplianceSweep(ctx, model.AllSites)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "certificate-warn-cert-1", alerts[0].ID)

	// Completing a task feeds the next pass: the continuation is
	// pending, not overdue, so no new alert appears
	require.NoError(t, store.InsertTask(ctx, &model.ScheduledTask{
		ID: "t1", SiteID: "ALD", AssetType: "Rato / Roedores", ScheduledDate: "2026-03-05",
	}))
	_, next, err := eng.CompleteTask(ctx, "t1", "2026-03-08", engine.CompletionDetails{})
	require.NoError(t, err)
	require.NotNil(t, next)

	alerts, err = eng.RunComplianceSweep(ctx, model.AllSites)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
}

func TestEvaluateStatus_Pure(t *testing.T) {
	_, _, eng := newEngine(t)

	rule := model.Rule{
		Category: model.RuleCategoryCertificate, WarningDays: 30, CriticalDays: 0, Enabled: true,
	}
	asset := model.Certificate{
		ID: "cert-1", SiteID: "ALD", Name: "Potability 2026", ExpiryDate: "2026-03-20",
	}.Monitored()

	require.Equal(t, model.StatusWarning, eng.EvaluateStatus(asset, rule))

	// Repeated evaluation has no side effects on stored alerts
	require.Equal(t, model.StatusWarning, eng.EvaluateStatus(asset, rule))
}
