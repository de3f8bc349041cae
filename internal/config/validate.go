package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/cron"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

var logLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	// DATABASE_URL is required
	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required",
		})
	}

	// ENVIRONMENT must be "development" or "production"
	if cfg.Environment != "" && cfg.Environment != EnvDevelopment && cfg.Environment != EnvProduction {
		errs = append(errs, ValidationError{
			Field:   "ENVIRONMENT",
			Message: fmt.Sprintf("must be %q or %q, got %q", EnvDevelopment, EnvProduction, cfg.Environment),
		})
	}

	if cfg.LogLevel != "" && !logLevels[cfg.LogLevel] {
		errs = append(errs, ValidationError{
			Field:   "LOG_LEVEL",
			Message: fmt.Sprintf("unknown level %q", cfg.LogLevel),
		})
	}

	// DATACLOUD_ENDPOINT, when set, must be an http(s) URL with a host.
	// An empty value is fine: the service boots unconfigured and waits
	// for credentials via the admin API.
	if cfg.DataCloudEndpoint != "" {
		if err := validateEndpointURL(cfg.DataCloudEndpoint); err != nil {
			errs = append(errs, ValidationError{
				Field:   "DATACLOUD_ENDPOINT",
				Message: err.Error(),
			})
		}
	}

	if cfg.ReportEnabled {
		if _, err := cron.Parse(cfg.ReportSchedule, cfg.ReportTimezone); err != nil {
			errs = append(errs, ValidationError{
				Field:   "REPORT_SCHEDULE",
				Message: fmt.Sprintf("invalid schedule: %v", err),
			})
		}
	}

	for _, dur := range []struct {
		field string
		raw   string
		val   time.Duration
	}{
		{"DB_OP_TIMEOUT", cfg.DBOpTimeoutStr, cfg.DBOpTimeout},
		{"HTTP_SHUTDOWN_TIMEOUT", cfg.HTTPShutdownTimeoutStr, cfg.HTTPShutdownTimeout},
		{"DELIVERY_FLUSH_INTERVAL", cfg.DeliveryFlushIntervalStr, cfg.DeliveryFlushInterval},
		{"DELIVERY_TIMEOUT", cfg.DeliveryTimeoutStr, cfg.DeliveryTimeout},
		{"DELIVERY_DRAIN_TIMEOUT", cfg.DeliveryDrainTimeoutStr, cfg.DeliveryDrainTimeout},
		{"ANALYTICS_RETENTION", cfg.AnalyticsRetentionStr, cfg.AnalyticsRetention},
		{"RECONCILE_INTERVAL", cfg.ReconcileIntervalStr, cfg.ReconcileInterval},
		{"RECONCILE_THRESHOLD", cfg.ReconcileThresholdStr, cfg.ReconcileThreshold},
	} {
		if dur.raw == "" {
			continue
		}
		d, err := time.ParseDuration(dur.raw)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   dur.field,
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   dur.field,
				Message: "must be positive",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateEndpointURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
