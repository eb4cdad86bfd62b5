package model

import "time"

// RuleCategory identifies which monitored category a rule applies to
type RuleCategory string

const (
	RuleCategoryCertificate RuleCategory = "certificate"
	RuleCategoryFilter      RuleCategory = "filter"
	RuleCategoryReservoir   RuleCategory = "reservoir"
)

// Rule defines warning/critical day thresholds for a monitored category.
// criticalDays is expected not to exceed warningDays, but writes do not
// enforce it; evaluation checks critical before warning, so an inverted
// configuration degrades to critical-only.
type Rule struct {
	ID           string       `json:"id"`
	Category     RuleCategory `json:"category"`
	WarningDays  int          `json:"warning_days"`
	CriticalDays int          `json:"critical_days"`
	Enabled      bool         `json:"enabled"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// FrequencyPolicy defines the interval in days between recurring tasks
// for one asset type. Lookup order is site override, then global days,
// then a fixed fallback when no policy exists at all.
type FrequencyPolicy struct {
	AssetType     string         `json:"asset_type"`
	GlobalDays    int            `json:"global_days"`
	SiteOverrides map[string]int `json:"site_overrides,omitempty"`
}
