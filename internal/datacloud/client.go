// Package datacloud is the ingestion boundary. The rest of the service
// sees only the Client interface: a handful of fire-and-forget calls
// whose failures are handled inside the client and never reported back.
package datacloud

import (
	"context"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/domain"
)

// Client is the narrow surface the tracking layer depends on.
//
// Configure is an idempotent snapshot swap: calling it twice with the
// same credentials is indistinguishable from calling it once. Track and
// TrackAppLaunch report nothing; a submission that cannot be delivered
// is the client's problem, not the caller's. Delivery lifecycle (worker
// startup, drain on shutdown) belongs to the concrete implementation,
// not to this interface.
type Client interface {
	Configure(cfg domain.AnalyticsConfig)
	Consent() domain.ConsentState
	SetConsent(state domain.ConsentState)
	Track(ctx context.Context, ev domain.Event)
	TrackAppLaunch(ctx context.Context, appName, appVersion string)
}
