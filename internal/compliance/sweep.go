package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/napa14-design/infrahub/internal/datemath"
	"github.com/napa14-design/infrahub/internal/model"
	"github.com/napa14-design/infrahub/internal/rules"
)

// RecordStore is the slice of the record store the sweep reads assets
// from and upserts alerts into.
type RecordStore interface {
	ListCertificates(ctx context.Context, scope model.Scope) ([]model.Certificate, error)
	ListFilters(ctx context.Context, scope model.Scope) ([]model.Filter, error)
	ListReservoirs(ctx context.Context, scope model.Scope) ([]model.Reservoir, error)
	ListTasks(ctx context.Context, scope model.Scope) ([]model.ScheduledTask, error)
	UpsertAlert(ctx context.Context, alert *model.Alert) error
}

// Notifier receives newly upserted critical alerts. Delivery is
// best-effort; the sweep swallows notifier errors.
type Notifier interface {
	NotifyCritical(ctx context.Context, alert *model.Alert) error
}

// Sweeper runs compliance passes over all monitored assets. A sweep is
// a sequence of pure evaluations and idempotent upserts, so concurrent
// sweeps are last-write-wins safe and running one every minute against
// unchanged data only refreshes existing alert rows.
//
// The sweep never retires an alert: once a violation has been recorded
// it stays until the user marks it read, even after the underlying
// asset returns to compliance. That keeps an audit trail of past
// violations.
type Sweeper struct {
	logger   *zap.Logger
	store    RecordStore
	rules    *rules.Store
	notifier Notifier
	clock    datemath.Clock
}

// NewSweeper creates a sweeper. A nil notifier disables push delivery.
func NewSweeper(logger *zap.Logger, store RecordStore, ruleStore *rules.Store, notifier Notifier, clock datemath.Clock) *Sweeper {
	return &Sweeper{
		logger:   logger.Named("sweep"),
		store:    store,
		rules:    ruleStore,
		notifier: notifier,
		clock:    clock,
	}
}

// Run evaluates every monitored asset within the scope and upserts an
// alert per violated threshold. It returns the alerts touched this
// pass. One failing write does not stop the pass; write failures are
// collected and returned joined after all assets have been evaluated.
func (s *Sweeper) Run(ctx context.Context, scope model.Scope) ([]model.Alert, error) {
	today := s.clock.Today()

	byCategory, err := s.rules.RulesByCategory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	var touched []model.Alert
	var errs []error

	assets, err := s.collectAssets(ctx, scope)
	if err != nil {
		return nil, err
	}

	for _, asset := range assets {
		rule, ok := byCategory[model.RuleCategory(asset.Kind)]
		if !ok {
			continue
		}
		status := EvaluateAsset(today, asset, rule)
		severity, alerting := SeverityFor(status)
		if !alerting {
			continue
		}
		alert := buildAssetAlert(today, asset, severity)
		if err := s.upsert(ctx, alert); err != nil {
			errs = append(errs, err)
			continue
		}
		touched = append(touched, *alert)
	}

	overdueAlerts, overdueErrs := s.sweepOverdueTasks(ctx, scope, today)
	touched = append(touched, overdueAlerts...)
	errs = append(errs, overdueErrs...)

	s.logger.Info("Compliance sweep finished",
		zap.String("site_id", scope.SiteID),
		zap.Int("assets", len(assets)),
		zap.Int("alerts", len(touched)),
		zap.Int("write_failures", len(errs)))

	return touched, errors.Join(errs...)
}

// collectAssets reads the three dated asset kinds into the uniform
// monitored view.
func (s *Sweeper) collectAssets(ctx context.Context, scope model.Scope) ([]model.MonitoredAsset, error) {
	var assets []model.MonitoredAsset

	certs, err := s.store.ListCertificates(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	for _, c := range certs {
		assets = append(assets, c.Monitored())
	}

	filters, err := s.store.ListFilters(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list filters: %w", err)
	}
	for _, f := range filters {
		assets = append(assets, f.Monitored())
	}

	reservoirs, err := s.store.ListReservoirs(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservoirs: %w", err)
	}
	for _, r := range reservoirs {
		assets = append(assets, r.Monitored())
	}

	return assets, nil
}

// sweepOverdueTasks upserts a warning alert for every scheduled visit
// whose date has passed without being performed.
func (s *Sweeper) sweepOverdueTasks(ctx context.Context, scope model.Scope, today time.Time) ([]model.Alert, []error) {
	tasks, err := s.store.ListTasks(ctx, scope)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to list tasks: %w", err)}
	}

	var touched []model.Alert
	var errs []error
	for i := range tasks {
		task := &tasks[i]
		if EvaluateTask(today, task) != model.TaskStatusOverdue {
			continue
		}
		alert := buildTaskAlert(today, task)
		if err := s.upsert(ctx, alert); err != nil {
			errs = append(errs, err)
			continue
		}
		touched = append(touched, *alert)
	}
	return touched, errs
}

// upsert writes the alert and fans out critical ones to the notifier.
// Notifier failures are logged and swallowed; the stored alert is the
// authoritative state regardless of delivery.
func (s *Sweeper) upsert(ctx context.Context, alert *model.Alert) error {
	if err := s.store.UpsertAlert(ctx, alert); err != nil {
		s.logger.Warn("Failed to upsert alert",
			zap.String("alert_id", alert.ID),
			zap.Error(err))
		return err
	}

	s.logger.Info("Alert upserted",
		zap.String("alert_id", alert.ID),
		zap.String("severity", string(alert.Severity)),
		zap.String("site_id", alert.SiteID))

	if alert.Severity == model.AlertSeverityCritical && s.notifier != nil {
		if err := s.notifier.NotifyCritical(ctx, alert); err != nil {
			s.logger.Warn("Failed to deliver critical alert notification",
				zap.String("alert_id", alert.ID),
				zap.Error(err))
		}
	}
	return nil
}

var kindNouns = map[model.AssetKind]struct {
	noun string
	verb string
	link string
}{
	model.AssetKindCertificate: {"Certificate", "expires", "/certificates/"},
	model.AssetKindFilter:      {"Filter", "is due for service", "/filters/"},
	model.AssetKindReservoir:   {"Reservoir", "is due for cleaning", "/reservoirs/"},
}

// buildAssetAlert renders the alert for a dated asset. The identity is
// deterministic per (kind, severity, asset), so every sweep refreshes
// the same row while the violation lasts.
func buildAssetAlert(today time.Time, asset model.MonitoredAsset, severity model.AlertSeverity) *model.Alert {
	words := kindNouns[asset.Kind]
	diff := datemath.DaysUntil(today, asset.RelevantDate)

	var message string
	switch {
	case diff < 0:
		message = fmt.Sprintf("%s %q at site %s %s %d days ago", words.noun, asset.Name, asset.SiteID, pastTense(words.verb), -diff)
	case diff == 0:
		message = fmt.Sprintf("%s %q at site %s %s today", words.noun, asset.Name, asset.SiteID, words.verb)
	default:
		message = fmt.Sprintf("%s %q at site %s %s in %d days", words.noun, asset.Name, asset.SiteID, words.verb, diff)
	}

	title := words.noun + " compliance warning"
	if severity == model.AlertSeverityCritical {
		title = words.noun + " compliance critical"
	}

	return &model.Alert{
		ID:       model.AlertIdentity(asset.Kind, severity, asset.ID),
		Kind:     asset.Kind,
		AssetID:  asset.ID,
		SiteID:   asset.SiteID,
		Severity: severity,
		Title:    title,
		Message:  message,
		Link:     words.link + asset.ID,
	}
}

// buildTaskAlert renders the warning alert for an overdue visit.
func buildTaskAlert(today time.Time, task *model.ScheduledTask) *model.Alert {
	daysLate := -datemath.DaysUntil(today, task.ScheduledDate)
	return &model.Alert{
		ID:       model.AlertIdentity(model.AssetKindTask, model.AlertSeverityWarning, task.ID),
		Kind:     model.AssetKindTask,
		AssetID:  task.ID,
		SiteID:   task.SiteID,
		Severity: model.AlertSeverityWarning,
		Title:    "Scheduled visit overdue",
		Message: fmt.Sprintf("Visit %q at site %s was scheduled for %s (%d days ago)",
			task.AssetType, task.SiteID, task.ScheduledDate, daysLate),
		Link: "/tasks/" + task.ID,
	}
}

func pastTense(verb string) string {
	switch verb {
	case "expires":
		return "expired"
	case "is due for service":
		return "was due for service"
	case "is due for cleaning":
		return "was due for cleaning"
	}
	return verb
}
