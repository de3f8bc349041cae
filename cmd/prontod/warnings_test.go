package main

import (
	"strings"
	"testing"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/config"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/testutil"
)

// captureWarnings calls logConfigWarnings with the given config and
// returns the emitted entries as "LEVEL: message" lines.
func captureWarnings(t *testing.T, cfg config.Config) string {
	t.Helper()
	log, hook := testutil.TestLogger(t)
	logConfigWarnings(cfg, log)

	var lines []string
	for _, e := range hook.AllEntries() {
		lines = append(lines, strings.ToUpper(e.Level.String())+": "+e.Message)
	}
	return strings.Join(lines, "\n")
}

// fullConfig returns a configuration with every optional subsystem
// enabled. logConfigWarnings should stay silent for it.
func fullConfig() config.Config {
	return config.Config{
		Environment:             config.EnvProduction,
		AdminJWTSecret:          "secret",
		RedisAddr:               "localhost:6379",
		ClickHouseAddr:          "localhost:9000",
		MetricsEnabled:          true,
		ReconcileEnabled:        true,
		ReportEnabled:           true,
		CircuitBreakerThreshold: 5,
	}
}

func TestLogConfigWarnings_AllSubsystemsOn(t *testing.T) {
	output := captureWarnings(t, fullConfig())

	if strings.Contains(output, "WARNING") {
		t.Error("did not expect any warnings, got:", output)
	}
	if strings.Contains(output, "INFO") {
		t.Error("did not expect any INFO messages, got:", output)
	}
}

func TestLogConfigWarnings_ReconcileDisabled(t *testing.T) {
	cfg := fullConfig()
	cfg.ReconcileEnabled = false
	output := captureWarnings(t, cfg)

	if !strings.Contains(output, "WARNING: P0: RECONCILE_ENABLED=false") {
		t.Error("expected reconcile P0 warning, got:", output)
	}
}

func TestLogConfigWarnings_OpenAdminInProduction(t *testing.T) {
	cfg := fullConfig()
	cfg.AdminJWTSecret = ""
	output := captureWarnings(t, cfg)

	if !strings.Contains(output, "WARNING: P0: ADMIN_JWT_SECRET is empty in production") {
		t.Error("expected open-admin P0 warning, got:", output)
	}
}

func TestLogConfigWarnings_OpenAdminInDevelopment(t *testing.T) {
	cfg := fullConfig()
	cfg.Environment = config.EnvDevelopment
	cfg.AdminJWTSecret = ""
	output := captureWarnings(t, cfg)

	// Open admin routes are the expected local setup.
	if strings.Contains(output, "ADMIN_JWT_SECRET") {
		t.Error("did not expect open-admin warning in development, got:", output)
	}
}

func TestLogConfigWarnings_MetricsDisabled(t *testing.T) {
	cfg := fullConfig()
	cfg.MetricsEnabled = false
	output := captureWarnings(t, cfg)

	if !strings.Contains(output, "WARNING: P1: METRICS_ENABLED=false") {
		t.Error("expected metrics P1 warning, got:", output)
	}
}

func TestLogConfigWarnings_ReportWithoutRedis(t *testing.T) {
	cfg := fullConfig()
	cfg.RedisAddr = ""
	output := captureWarnings(t, cfg)

	if !strings.Contains(output, "WARNING: P1: REPORT_ENABLED=true but REDIS_ADDR is empty") {
		t.Error("expected report-without-redis P1 warning, got:", output)
	}
	if !strings.Contains(output, "INFO: REDIS_ADDR not set") {
		t.Error("expected redis INFO line, got:", output)
	}
}

func TestLogConfigWarnings_PartialSeed(t *testing.T) {
	cfg := fullConfig()
	cfg.DataCloudAppID = "pronto-app"
	output := captureWarnings(t, cfg)

	if !strings.Contains(output, "WARNING: P1: DATACLOUD_APP_ID and DATACLOUD_ENDPOINT must both be set") {
		t.Error("expected partial-seed P1 warning, got:", output)
	}

	cfg.DataCloudEndpoint = "https://ingest.example.com"
	output = captureWarnings(t, cfg)

	if strings.Contains(output, "DATACLOUD_APP_ID and DATACLOUD_ENDPOINT") {
		t.Error("did not expect partial-seed warning with both values set, got:", output)
	}
}

func TestLogConfigWarnings_WorstCase(t *testing.T) {
	// Production with everything optional left off.
	cfg := config.Config{Environment: config.EnvProduction}
	output := captureWarnings(t, cfg)

	expected := []string{
		"WARNING: P0: RECONCILE_ENABLED=false",
		"WARNING: P0: ADMIN_JWT_SECRET is empty in production",
		"WARNING: P1: METRICS_ENABLED=false",
		"INFO: REDIS_ADDR not set",
		"INFO: CLICKHOUSE_ADDR not set",
		"INFO: CIRCUIT_BREAKER_THRESHOLD=0",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}

	// The report warning needs REPORT_ENABLED, which is off here.
	if strings.Contains(output, "REPORT_ENABLED=true") {
		t.Error("did not expect report warning with report disabled, got:", output)
	}
}
