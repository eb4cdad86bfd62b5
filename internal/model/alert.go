package model

import "time"

// AlertSeverity represents the severity tier of an alert
type AlertSeverity string

const (
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// Tag returns the short severity tag used inside alert identities,
// so the same asset can hold at most one active alert per tier.
func (s AlertSeverity) Tag() string {
	if s == AlertSeverityCritical {
		return "crit"
	}
	return "warn"
}

// Status represents the derived compliance status of a monitored asset
type Status string

const (
	StatusNone     Status = "none"
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Alert represents a compliance alert. Its ID is the deterministic
// identity <kind>-<severityTag>-<assetId>, so repeated sweeps upsert
// the same record instead of creating duplicates. Alerts are never
// deleted by the sweep; they stay until the user marks them read.
type Alert struct {
	ID        string        `json:"id"`
	Kind      AssetKind     `json:"kind"`
	AssetID   string        `json:"asset_id"`
	SiteID    string        `json:"site_id"`
	Severity  AlertSeverity `json:"severity"`
	Title     string        `json:"title"`
	Message   string        `json:"message"`
	Link      string        `json:"link,omitempty"`
	Read      bool          `json:"read"`
	CreatedAt time.Time     `json:"created_at"`
}

// AlertIdentity builds the deterministic alert key for an asset and tier.
func AlertIdentity(kind AssetKind, severity AlertSeverity, assetID string) string {
	return string(kind) + "-" + severity.Tag() + "-" + assetID
}
