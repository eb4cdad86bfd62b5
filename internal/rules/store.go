// Package rules holds the configurable compliance thresholds and the
// recurring-task frequency policies, including the three-tier frequency
// lookup: site override, then global default, then a fixed fallback.
package rules

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/napa14-design/infrahub/internal/model"
)

// FallbackFrequencyDays is used when no frequency policy exists for an
// asset type at all. The lookup never fails; this is the floor.
const FallbackFrequencyDays = 15

// Defaults seed the store on first run and back ResetToDefaults.
type Defaults struct {
	Rules       []model.Rule
	Frequencies []model.FrequencyPolicy
}

// Store persists rules and frequency policies. It shares the sqlite
// handle of the record store.
type Store struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewStore creates the rule store, creating its tables as needed.
func NewStore(logger *zap.Logger, db *sql.DB) (*Store, error) {
	s := &Store{
		logger: logger,
		db:     db,
	}
	if err := s.initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS rules (
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL UNIQUE,
			warning_days INTEGER NOT NULL,
			critical_days INTEGER NOT NULL,
			enabled INTEGER NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS frequency_policies (
			asset_type TEXT NOT NULL,
			site_id TEXT NOT NULL DEFAULT '',
			days INTEGER NOT NULL,
			PRIMARY KEY (asset_type, site_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize rule tables: %w", err)
	}
	return nil
}

// Seed inserts the defaults if the rules table is empty. Called once at
// startup so a fresh database gets a working configuration.
func (s *Store) Seed(ctx context.Context, defaults Defaults) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rules").Scan(&count); err != nil {
		return fmt.Errorf("failed to count rules: %w", err)
	}
	if count > 0 {
		return nil
	}
	return s.ResetToDefaults(ctx, defaults)
}

// ResetToDefaults wipes all rules and frequency policies and rewrites
// the defaults.
func (s *Store) ResetToDefaults(ctx context.Context, defaults Defaults) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM rules"); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM frequency_policies"); err != nil {
		return fmt.Errorf("failed to clear frequency policies: %w", err)
	}

	for _, r := range defaults.Rules {
		id := r.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rules (id, category, warning_days, critical_days, enabled, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, string(r.Category), r.WarningDays, r.CriticalDays, r.Enabled, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to seed rule %s: %w", r.Category, err)
		}
	}

	for _, p := range defaults.Frequencies {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO frequency_policies (asset_type, site_id, days)
			VALUES (?, '', ?)`,
			p.AssetType, p.GlobalDays,
		)
		if err != nil {
			return fmt.Errorf("failed to seed frequency for %s: %w", p.AssetType, err)
		}
		for siteID, days := range p.SiteOverrides {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO frequency_policies (asset_type, site_id, days)
				VALUES (?, ?, ?)`,
				p.AssetType, siteID, days,
			)
			if err != nil {
				return fmt.Errorf("failed to seed frequency override for %s/%s: %w", p.AssetType, siteID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}

	s.logger.Info("Rule store reset to defaults",
		zap.Int("rules", len(defaults.Rules)),
		zap.Int("frequency_policies", len(defaults.Frequencies)))
	return nil
}

// Rules returns all configured rules.
func (s *Store) Rules(ctx context.Context) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, warning_days, critical_days, enabled, updated_at
		FROM rules`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var list []model.Rule
	for rows.Next() {
		var r model.Rule
		var category string
		if err := rows.Scan(&r.ID, &category, &r.WarningDays, &r.CriticalDays, &r.Enabled, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		r.Category = model.RuleCategory(category)
		list = append(list, r)
	}
	return list, rows.Err()
}

// RulesByCategory returns all rules keyed by category, the shape the
// sweep consumes.
func (s *Store) RulesByCategory(ctx context.Context) (map[model.RuleCategory]model.Rule, error) {
	list, err := s.Rules(ctx)
	if err != nil {
		return nil, err
	}
	byCategory := make(map[model.RuleCategory]model.Rule, len(list))
	for _, r := range list {
		byCategory[r.Category] = r
	}
	return byCategory, nil
}

// SaveRule upserts the rule for its category. No threshold validation
// is performed: a criticalDays above warningDays is accepted and simply
// behaves as critical-only during evaluation.
func (s *Store) SaveRule(ctx context.Context, r *model.Rule) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (id, category, warning_days, critical_days, enabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(category) DO UPDATE SET
			warning_days = excluded.warning_days,
			critical_days = excluded.critical_days,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		r.ID, string(r.Category), r.WarningDays, r.CriticalDays, r.Enabled, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return nil
}

// SetFrequency sets the interval for an asset type. An empty siteID sets
// the global default; otherwise a per-site override.
func (s *Store) SetFrequency(ctx context.Context, assetType, siteID string, days int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO frequency_policies (asset_type, site_id, days)
		VALUES (?, ?, ?)
		ON CONFLICT(asset_type, site_id) DO UPDATE SET days = excluded.days`,
		assetType, siteID, days,
	)
	if err != nil {
		return fmt.Errorf("failed to set frequency: %w", err)
	}
	return nil
}

// FrequencyDays resolves the recurrence interval for an asset type at a
// site: site override first, then the global default, then
// FallbackFrequencyDays. This lookup never fails; a query error is
// logged and the fallback returned, so task continuation always has an
// interval to work with.
func (s *Store) FrequencyDays(ctx context.Context, assetType, siteID string) int {
	var days int
	err := s.db.QueryRowContext(ctx, `
		SELECT days FROM frequency_policies
		WHERE asset_type = ? AND site_id = ?`,
		assetType, siteID).Scan(&days)
	if err == nil {
		return days
	}
	if err != sql.ErrNoRows {
		s.logger.Warn("Frequency override lookup failed, using fallback",
			zap.String("asset_type", assetType),
			zap.String("site_id", siteID),
			zap.Error(err))
		return FallbackFrequencyDays
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT days FROM frequency_policies
		WHERE asset_type = ? AND site_id = ''`,
		assetType).Scan(&days)
	if err == nil {
		return days
	}
	if err != sql.ErrNoRows {
		s.logger.Warn("Global frequency lookup failed, using fallback",
			zap.String("asset_type", assetType),
			zap.Error(err))
	}
	return FallbackFrequencyDays
}
