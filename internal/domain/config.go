package domain

import (
	"net/url"
	"time"
)

// AnalyticsConfig is the credential snapshot the ingestion client is
// configured with. Snapshots are immutable: updates replace the whole
// value, never individual fields.
type AnalyticsConfig struct {
	AppID         string
	Endpoint      string
	EnableLogging bool

	UpdatedAt time.Time
}

// IsConfigured reports whether the snapshot carries enough to reach the
// ingestion API: a non-empty app ID and an http(s) endpoint with a host.
func (c AnalyticsConfig) IsConfigured() bool {
	if c.AppID == "" || c.Endpoint == "" {
		return false
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}
