package model

// AssetKind identifies one of the monitored asset categories
type AssetKind string

const (
	AssetKindCertificate AssetKind = "certificate"
	AssetKindFilter      AssetKind = "filter"
	AssetKindReservoir   AssetKind = "reservoir"
	AssetKindTask        AssetKind = "task"
)

// Certificate represents a water-quality certificate with an expiry date
type Certificate struct {
	ID         string `json:"id"`
	SiteID     string `json:"site_id"`
	Name       string `json:"name"`
	ExpiryDate string `json:"expiry_date"`
}

// Filter represents a filter element with a next-service date
type Filter struct {
	ID              string `json:"id"`
	SiteID          string `json:"site_id"`
	Location        string `json:"location"`
	NextServiceDate string `json:"next_service_date"`
}

// Reservoir represents a water reservoir with a next-cleaning date
type Reservoir struct {
	ID               string `json:"id"`
	SiteID           string `json:"site_id"`
	Name             string `json:"name"`
	NextCleaningDate string `json:"next_cleaning_date"`
}

// MonitoredAsset is the uniform view the compliance sweep evaluates:
// one asset of some kind with a single relevant target date.
type MonitoredAsset struct {
	Kind         AssetKind `json:"kind"`
	ID           string    `json:"id"`
	SiteID       string    `json:"site_id"`
	Name         string    `json:"name"`
	RelevantDate string    `json:"relevant_date"`
}

// Monitored returns the certificate as a monitored asset keyed on its expiry date.
func (c Certificate) Monitored() MonitoredAsset {
	return MonitoredAsset{
		Kind:         AssetKindCertificate,
		ID:           c.ID,
		SiteID:       c.SiteID,
		Name:         c.Name,
		RelevantDate: c.ExpiryDate,
	}
}

// Monitored returns the filter as a monitored asset keyed on its next service date.
func (f Filter) Monitored() MonitoredAsset {
	return MonitoredAsset{
		Kind:         AssetKindFilter,
		ID:           f.ID,
		SiteID:       f.SiteID,
		Name:         f.Location,
		RelevantDate: f.NextServiceDate,
	}
}

// Monitored returns the reservoir as a monitored asset keyed on its next cleaning date.
func (r Reservoir) Monitored() MonitoredAsset {
	return MonitoredAsset{
		Kind:         AssetKindReservoir,
		ID:           r.ID,
		SiteID:       r.SiteID,
		Name:         r.Name,
		RelevantDate: r.NextCleaningDate,
	}
}

// Scope restricts which sites a sweep or listing covers.
// The zero value covers all sites.
type Scope struct {
	SiteID string
}

// AllSites is the unrestricted scope used by admin views.
var AllSites = Scope{}

// Matches reports whether the given site falls inside the scope.
func (s Scope) Matches(siteID string) bool {
	return s.SiteID == "" || s.SiteID == siteID
}
