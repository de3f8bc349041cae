package api

import (
	"time"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/analytics"
)

type TrackScreenRequest struct {
	ScreenName string `json:"screen_name"`
}

type TrackLaunchRequest struct {
	AppName    string `json:"app_name,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
}

// AcceptedResponse acknowledges a tracking submission. Acceptance means
// the request was well-formed, not that the event will be delivered:
// consent and delivery outcomes stay internal.
type AcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

type ConsentRequest struct {
	State string `json:"state"`
}

type ConsentResponse struct {
	State string `json:"state"`
}

type SettingsRequest struct {
	AppID         string `json:"app_id"`
	Endpoint      string `json:"endpoint"`
	EnableLogging bool   `json:"enable_logging"`
}

// SettingsResponse is the masked admin view of the stored credentials.
type SettingsResponse struct {
	AppID         string `json:"app_id"`
	Endpoint      string `json:"endpoint"`
	EnableLogging bool   `json:"enable_logging"`
	Configured    bool   `json:"configured"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

type StatsResponse struct {
	Screen  string                  `json:"screen"`
	Window  string                  `json:"window"`
	Buckets []analytics.BucketCount `json:"buckets"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
