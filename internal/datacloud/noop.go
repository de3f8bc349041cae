package datacloud

import (
	"context"
	"sync"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/domain"
)

// Noop is a Client that accepts everything and delivers nothing. It
// still keeps the credential snapshot and consent state so callers see
// the same gating behavior as with the real client. Used by the
// simulator's dry-run mode.
type Noop struct {
	mu      sync.Mutex
	cfg     domain.AnalyticsConfig
	consent domain.ConsentState
}

func NewNoop() *Noop {
	return &Noop{consent: domain.ConsentUnknown}
}

func (n *Noop) Configure(cfg domain.AnalyticsConfig) {
	n.mu.Lock()
	n.cfg = cfg
	n.mu.Unlock()
}

func (n *Noop) Consent() domain.ConsentState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.consent
}

func (n *Noop) SetConsent(state domain.ConsentState) {
	n.mu.Lock()
	n.consent = state
	n.mu.Unlock()
}

func (n *Noop) Track(ctx context.Context, ev domain.Event) {}

func (n *Noop) TrackAppLaunch(ctx context.Context, appName, appVersion string) {}
