package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/napa14-design/infrahub/internal/datemath"
	"github.com/napa14-design/infrahub/internal/model"
	"github.com/napa14-design/infrahub/internal/rules"
	"github.com/napa14-design/infrahub/internal/storage"
	"github.com/napa14-design/infrahub/internal/testutil"
)

// recordingNotifier captures delivered alerts; optionally fails.
type recordingNotifier struct {
	delivered []model.Alert
	fail      bool
}

func (n *recordingNotifier) NotifyCritical(_ context.Context, alert *model.Alert) error {
	if n.fail {
		return errors.New("push gateway unavailable")
	}
	n.delivered = append(n.delivered, *alert)
	return nil
}

func sweepFixture(t *testing.T) (*storage.Store, *rules.Store, *recordingNotifier, *Sweeper) {
	t.Helper()

	store := testutil.OpenStore(t)
	ruleStore := testutil.OpenRuleStore(t, store)

	err := ruleStore.ResetToDefaults(context.Background(), rules.Defaults{
		Rules: []model.Rule{
			{Category: model.RuleCategoryCertificate, WarningDays: 30, CriticalDays: 0, Enabled: true},
			{Category: model.RuleCategoryFilter, WarningDays: 15, CriticalDays: 3, Enabled: true},
			{Category: model.RuleCategoryReservoir, WarningDays: 15, CriticalDays: 3, Enabled: true},
		},
	})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	clock := datemath.FixedClock{Day: time.Date(2026, time.March, 10, 0, 0, 0, 0, time.Local)}
	sweeper := NewSweeper(zap.NewNop(), store, ruleStore, notifier, clock)

	return store, ruleStore, notifier, sweeper
}

func seedAssets(t *testing.T, store *storage.Store) {
	t.Helper()
	ctx := context.Background()

	// Warning: expires in 10 days
	require.NoError(t, store.SaveCertificate(ctx, model.Certificate{
		ID: "cert-1", SiteID: "ALD", Name: "Potability 2026", ExpiryDate: "2026-03-20",
	}))
	// Critical: service was due yesterday
	require.NoError(t, store.SaveFilter(ctx, model.Filter{
		ID: "filter-1", SiteID: "ALD", Location: "Kitchen intake", NextServiceDate: "2026-03-09",
	}))
	// OK: cleaning far out
	require.NoError(t, store.SaveReservoir(ctx, model.Reservoir{
		ID: "res-1", SiteID: "PRT", Name: "Main tank", NextCleaningDate: "2026-06-01",
	}))
	// Overdue visit
	require.NoError(t, store.InsertTask(ctx, &model.ScheduledTask{
		ID: "task-1", SiteID: "ALD", AssetType: "Rato / Roedores", ScheduledDate: "2026-03-01",
	}))
}

func alertIDs(alerts []model.Alert) []string {
	ids := make([]string, 0, len(alerts))
	for _, a := range alerts {
		ids = append(ids, a.ID)
	}
	return ids
}

func TestSweeper_Run(t *testing.T) {
	store, _, notifier, sweeper := sweepFixture(t)
	seedAssets(t, store)
	ctx := context.Background()

	alerts, err := sweeper.Run(ctx, model.AllSites)
	require.NoError(t, err)

	require.ElementsMatch(t, []string{
		"certificate-warn-cert-1",
		"filter-crit-filter-1",
		"task-warn-task-1",
	}, alertIDs(alerts))

	// Only the critical alert reached the notifier
	require.Len(t, notifier.delivered, 1)
	require.Equal(t, "filter-crit-filter-1", notifier.delivered[0].ID)
}

func TestSweeper_Idempotence(t *testing.T) {
	store, _, _, sweeper := sweepFixture(t)
	seedAssets(t, store)
	ctx := context.Background()

	first, err := sweeper.Run(ctx, model.AllSites)
	require.NoError(t, err)
	countAfterFirst, err := store.CountAlerts(ctx)
	require.NoError(t, err)

	// Re-running against unchanged data refreshes the same rows
	second, err := sweeper.Run(ctx, model.AllSites)
	require.NoError(t, err)
	countAfterSecond, err := store.CountAlerts(ctx)
	require.NoError(t, err)

	require.ElementsMatch(t, alertIDs(first), alertIDs(second))
	require.Equal(t, countAfterFirst, countAfterSecond)
}

func TestSweeper_ResolvedViolationKeepsAlert(t *testing.T) {
	store, _, _, sweeper := sweepFixture(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCertificate(ctx, model.Certificate{
		ID: "cert-1", SiteID: "ALD", Name: "Potability 2026", ExpiryDate: "2026-03-20",
	}))

	_, err := sweeper.Run(ctx, model.AllSites)
	require.NoError(t, err)

	// Certificate renewed: violation resolved
	require.NoError(t, store.SaveCertificate(ctx, model.Certificate{
		ID: "cert-1", SiteID: "ALD", Name: "Potability 2026", ExpiryDate: "2027-03-20",
	}))

	alerts, err := sweeper.Run(ctx, model.AllSites)
	require.NoError(t, err)
	require.Empty(t, alerts)

	// The old alert row stays until the user marks it read
	stored, err := store.ListAlerts(ctx, model.AllSites, true)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "certificate-warn-cert-1", stored[0].ID)
}

func TestSweeper_SeverityTierTransition(t *testing.T) {
	store, _, _, sweeper := sweepFixture(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCertificate(ctx, model.Certificate{
		ID: "cert-1", SiteID: "ALD", Name: "Potability 2026", ExpiryDate: "2026-03-20",
	}))

	_, err := sweeper.Run(ctx, model.AllSites)
	require.NoError(t, err)

	// The certificate slips into the critical window
	require.NoError(t, store.SaveCertificate(ctx, model.Certificate{
		ID: "cert-1", SiteID: "ALD", Name: "Potability 2026", ExpiryDate: "2026-03-09",
	}))

	alerts, err := sweeper.Run(ctx, model.AllSites)
	require.NoError(t, err)
	require.Equal(t, []string{"certificate-crit-cert-1"}, alertIDs(alerts))

	// One alert per severity tier: the earlier warning row remains
	stored, err := store.ListAlerts(ctx, model.AllSites, false)
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func TestSweeper_Scope(t *testing.T) {
	store, _, _, sweeper := sweepFixture(t)
	seedAssets(t, store)
	ctx := context.Background()

	// PRT only holds a compliant reservoir
	alerts, err := sweeper.Run(ctx, model.Scope{SiteID: "PRT"})
	require.NoError(t, err)
	require.Empty(t, alerts)

	alerts, err = sweeper.Run(ctx, model.Scope{SiteID: "ALD"})
	require.NoError(t, err)
	require.Len(t, alerts, 3)
}

func TestSweeper_NotifierFailureIsSwallowed(t *testing.T) {
	store, _, notifier, sweeper := sweepFixture(t)
	seedAssets(t, store)
	notifier.fail = true
	ctx := context.Background()

	alerts, err := sweeper.Run(ctx, model.AllSites)
	require.NoError(t, err)
	require.Len(t, alerts, 3)

	// The alert is stored even though delivery failed
	stored, err := store.ListAlerts(ctx, model.AllSites, true)
	require.NoError(t, err)
	require.Len(t, stored, 3)
}

// flakyStore fails the upsert for one alert identity and passes the
// rest through to the real store.
type flakyStore struct {
	*storage.Store
	failID string
}

func (s *flakyStore) UpsertAlert(ctx context.Context, alert *model.Alert) error {
	if alert.ID == s.failID {
		return errors.New("write timeout")
	}
	return s.Store.UpsertAlert(ctx, alert)
}

func TestSweeper_OneWriteFailureDoesNotAbort(t *testing.T) {
	store, ruleStore, _, _ := sweepFixture(t)
	seedAssets(t, store)
	ctx := context.Background()

	flaky := &flakyStore{Store: store, failID: "certificate-warn-cert-1"}
	clock := datemath.FixedClock{Day: time.Date(2026, time.March, 10, 0, 0, 0, 0, time.Local)}
	sweeper := NewSweeper(zap.NewNop(), flaky, ruleStore, nil, clock)

	alerts, err := sweeper.Run(ctx, model.AllSites)
	require.Error(t, err)
	require.ErrorContains(t, err, "write timeout")

	// The failed certificate write did not stop the other assets
	require.ElementsMatch(t, []string{
		"filter-crit-filter-1",
		"task-warn-task-1",
	}, alertIDs(alerts))

	stored, err := store.ListAlerts(ctx, model.AllSites, false)
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func TestSweeper_MessageRefreshesAsDaysChange(t *testing.T) {
	store, _, _, sweeperDay1 := sweepFixture(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCertificate(ctx, model.Certificate{
		ID: "cert-1", SiteID: "ALD", Name: "Potability 2026", ExpiryDate: "2026-03-20",
	}))

	_, err := sweeperDay1.Run(ctx, model.AllSites)
	require.NoError(t, err)
	day1, err := store.ListAlerts(ctx, model.AllSites, false)
	require.NoError(t, err)

	// Next day the same identity is refreshed with updated text
	ruleStore := testutil.OpenRuleStore(t, store)
	clock := datemath.FixedClock{Day: time.Date(2026, time.March, 11, 0, 0, 0, 0, time.Local)}
	sweeperDay2 := NewSweeper(zap.NewNop(), store, ruleStore, nil, clock)

	_, err = sweeperDay2.Run(ctx, model.AllSites)
	require.NoError(t, err)
	day2, err := store.ListAlerts(ctx, model.AllSites, false)
	require.NoError(t, err)

	require.Len(t, day2, 1)
	require.Equal(t, day1[0].ID, day2[0].ID)
	require.NotEqual(t, day1[0].Message, day2[0].Message)
}
