package tracking

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/datacloud"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/domain"
)

// Fallbacks when no build metadata was linked in.
const (
	defaultAppName    = "Pronto"
	defaultAppVersion = "0.0.0-dev"
)

// SettingsSource is the slice of the settings store the manager reads.
type SettingsSource interface {
	GetAnalyticsSettings(ctx context.Context) (domain.AnalyticsConfig, error)
}

// MetricsSink defines the tracking counters. All methods must be
// non-blocking and fire-and-forget.
type MetricsSink interface {
	ScreenViewTracked()
	ScreenViewSuppressed(reason string)
	AppLaunchTracked()
	ConfigureCompleted(outcome string)
}

// AppInfo describes the running service for launch events and
// configure diagnostics.
type AppInfo struct {
	Name        string
	Version     string
	Environment string
}

func (i AppInfo) withDefaults() AppInfo {
	if i.Name == "" {
		i.Name = defaultAppName
	}
	if i.Version == "" {
		i.Version = defaultAppVersion
	}
	return i
}

// Manager owns the configure path: it reads the persisted analytics
// settings and pushes snapshots into the ingestion client. It holds no
// credential state of its own, so a configure can never install values
// the store does not currently hold.
type Manager struct {
	source  SettingsSource
	client  datacloud.Client
	info    AppInfo
	log     logrus.FieldLogger
	metrics MetricsSink // optional, nil = disabled
}

func NewManager(source SettingsSource, client datacloud.Client, info AppInfo, log logrus.FieldLogger) *Manager {
	return &Manager{
		source: source,
		client: client,
		info:   info.withDefaults(),
		log:    log,
	}
}

// WithMetrics attaches a metrics sink to the manager.
func (m *Manager) WithMetrics(sink MetricsSink) *Manager {
	m.metrics = sink
	return m
}

// Configure loads the current settings snapshot and, when it is
// complete, issues exactly one configure call against the ingestion
// client. Incomplete settings are a silent no-op, not an error: the
// service runs unconfigured until an operator saves credentials.
//
// There is no change detection. Calling Configure twice with unchanged
// settings issues two identical configure calls; the client's own
// Configure is an idempotent snapshot swap, so this is harmless.
func (m *Manager) Configure(ctx context.Context) {
	snapshot, err := m.source.GetAnalyticsSettings(ctx)
	if err != nil {
		m.log.Errorf("tracking: failed to load analytics settings: %v", err)
		m.reportConfigure("error")
		return
	}

	if !snapshot.IsConfigured() {
		m.log.Debug("tracking: credentials not configured, skipping configure")
		m.reportConfigure("skipped")
		return
	}

	m.client.Configure(snapshot)

	// Credential values stay at debug so production (info) never logs them.
	m.log.Debugf("tracking: configured app_id=%s endpoint=%s", snapshot.AppID, snapshot.Endpoint)
	m.log.Infof("tracking: analytics configured, environment=%s version=%s", m.info.Environment, m.info.Version)
	m.reportConfigure("applied")
}

// Run consumes credentials-updated signals until the context is
// cancelled, re-invoking Configure for each. A single goroutine runs
// this loop, so updates apply serially in arrival order. Signals still
// buffered at shutdown are dropped: the next boot re-reads the store
// anyway.
func (m *Manager) Run(ctx context.Context, updates <-chan domain.CredentialsUpdated) {
	m.log.Info("tracking: configuration manager started")
	for {
		select {
		case <-ctx.Done():
			m.log.Info("tracking: configuration manager stopped")
			return
		case sig := <-updates:
			m.log.Debugf("tracking: credentials updated at %s, reconfiguring", sig.UpdatedAt.UTC().Format(time.RFC3339))
			m.Configure(ctx)
		}
	}
}

// TrackAppLaunch submits the launch event with the build's app name and
// version. Launch events carry no consent gate: the mobile client has
// always reported launches unconditionally, and this keeps that
// behavior observable rather than silently correcting it.
func (m *Manager) TrackAppLaunch(ctx context.Context) {
	m.TrackAppLaunchAs(ctx, "", "")
}

// TrackAppLaunchAs submits a launch event with caller-supplied app
// metadata. Empty fields fall back to the build's info.
func (m *Manager) TrackAppLaunchAs(ctx context.Context, appName, appVersion string) {
	if appName == "" {
		appName = m.info.Name
	}
	if appVersion == "" {
		appVersion = m.info.Version
	}
	m.client.TrackAppLaunch(ctx, appName, appVersion)
	if m.metrics != nil {
		m.metrics.AppLaunchTracked()
	}
}

func (m *Manager) reportConfigure(outcome string) {
	if m.metrics != nil {
		m.metrics.ConfigureCompleted(outcome)
	}
}
