package config

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds all configuration for the prontod process.
// Values are loaded from environment variables; see printUsage() for the full list.
type Config struct {
	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	HTTPAddr    string `json:"http_addr"`

	Environment string `json:"environment"`
	LogLevel    string `json:"log_level"`

	// DataCloudAppID/DataCloudEndpoint seed the settings store on first
	// boot when the analytics_settings table is empty. After that the
	// store is authoritative and these are ignored.
	DataCloudAppID         string `json:"datacloud_app_id"`
	DataCloudEndpoint      string `json:"datacloud_endpoint"`
	DataCloudEnableLogging bool   `json:"datacloud_enable_logging"`

	AdminJWTSecret string `json:"admin_jwt_secret"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	DeliveryQueueSize        int           `json:"delivery_queue_size"`
	DeliveryBatchSize        int           `json:"delivery_batch_size"`
	DeliveryFlushInterval    time.Duration `json:"-"`
	DeliveryFlushIntervalStr string        `json:"delivery_flush_interval"`
	DeliveryTimeout          time.Duration `json:"-"`
	DeliveryTimeoutStr       string        `json:"delivery_timeout"`
	DeliveryDrainTimeout     time.Duration `json:"-"`
	DeliveryDrainTimeoutStr  string        `json:"delivery_drain_timeout"`

	AnalyticsRetention    time.Duration `json:"-"`
	AnalyticsRetentionStr string        `json:"analytics_retention"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsPort    string `json:"metrics_port"`

	ReconcileEnabled     bool          `json:"reconcile_enabled"`
	ReconcileInterval    time.Duration `json:"-"`
	ReconcileIntervalStr string        `json:"reconcile_interval"`

	// ReconcileThreshold must exceed the delivery worker's maximum retry
	// window (currently 36s) so the worker and reconciler never race on
	// the same batch.
	ReconcileThreshold    time.Duration `json:"-"`
	ReconcileThresholdStr string        `json:"reconcile_threshold"`

	ReconcileBatchSize int `json:"reconcile_batch_size"`
	EventBusBufferSize int `json:"eventbus_buffer_size"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`

	ReportEnabled  bool   `json:"report_enabled"`
	ReportSchedule string `json:"report_schedule"`
	ReportTimezone string `json:"report_timezone"`

	ClickHouseAddr     string `json:"clickhouse_addr,omitempty"`
	ClickHouseDatabase string `json:"clickhouse_database,omitempty"`
	ClickHouseUser     string `json:"clickhouse_user,omitempty"`
	ClickHousePassword string `json:"clickhouse_password,omitempty"`

	// LeaderLockKey: all instances sharing the same database must use the same key.
	LeaderLockKey int64 `json:"leader_lock_key"`

	// LeaderRetryInterval determines the maximum failover gap.
	LeaderRetryInterval    time.Duration `json:"-"`
	LeaderRetryIntervalStr string        `json:"leader_retry_interval"`

	// LeaderHeartbeatInterval: pings the dedicated connection to detect local
	// connection death. Does NOT renew the advisory lock.
	LeaderHeartbeatInterval    time.Duration `json:"-"`
	LeaderHeartbeatIntervalStr string        `json:"leader_heartbeat_interval"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		HTTPAddr:                 os.Getenv("HTTP_ADDR"),
		Environment:              os.Getenv("ENVIRONMENT"),
		LogLevel:                 os.Getenv("LOG_LEVEL"),
		DataCloudAppID:           os.Getenv("DATACLOUD_APP_ID"),
		DataCloudEndpoint:        os.Getenv("DATACLOUD_ENDPOINT"),
		DataCloudEnableLogging:   os.Getenv("DATACLOUD_ENABLE_LOGGING") == "true",
		AdminJWTSecret:           os.Getenv("ADMIN_JWT_SECRET"),
		DBOpTimeoutStr:           os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:     os.Getenv("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTimeStr:     os.Getenv("DB_CONN_MAX_IDLE_TIME"),
		HTTPShutdownTimeoutStr:   os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		DeliveryFlushIntervalStr: os.Getenv("DELIVERY_FLUSH_INTERVAL"),
		DeliveryTimeoutStr:       os.Getenv("DELIVERY_TIMEOUT"),
		DeliveryDrainTimeoutStr:  os.Getenv("DELIVERY_DRAIN_TIMEOUT"),
		AnalyticsRetentionStr:    os.Getenv("ANALYTICS_RETENTION"),
		MetricsEnabled:           os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:              os.Getenv("METRICS_PATH"),
		MetricsPort:              os.Getenv("METRICS_PORT"),
		ReconcileEnabled:         os.Getenv("RECONCILE_ENABLED") == "true",
		ReconcileIntervalStr:     os.Getenv("RECONCILE_INTERVAL"),
		ReconcileThresholdStr:    os.Getenv("RECONCILE_THRESHOLD"),
		ReportEnabled:            os.Getenv("REPORT_ENABLED") == "true",
		ReportSchedule:           os.Getenv("REPORT_SCHEDULE"),
		ReportTimezone:           os.Getenv("REPORT_TIMEZONE"),
		ClickHouseAddr:           os.Getenv("CLICKHOUSE_ADDR"),
		ClickHouseDatabase:       os.Getenv("CLICKHOUSE_DATABASE"),
		ClickHouseUser:           os.Getenv("CLICKHOUSE_USER"),
		ClickHousePassword:       os.Getenv("CLICKHOUSE_PASSWORD"),
	}

	if cfg.Environment == "" {
		cfg.Environment = EnvDevelopment
	}
	if cfg.LogLevel == "" {
		if cfg.Environment == EnvProduction {
			cfg.LogLevel = "info"
		} else {
			cfg.LogLevel = "debug"
		}
	}

	if queueStr := os.Getenv("DELIVERY_QUEUE_SIZE"); queueStr != "" {
		if n, err := parseInt(queueStr); err == nil && n > 0 {
			cfg.DeliveryQueueSize = n
		} else {
			log.Printf("config: invalid DELIVERY_QUEUE_SIZE %q (must be a positive integer), using default 1000", queueStr)
		}
	}
	if cfg.DeliveryQueueSize == 0 {
		cfg.DeliveryQueueSize = 1000
	}

	if batchStr := os.Getenv("DELIVERY_BATCH_SIZE"); batchStr != "" {
		if n, err := parseInt(batchStr); err == nil && n > 0 {
			cfg.DeliveryBatchSize = n
		} else {
			log.Printf("config: invalid DELIVERY_BATCH_SIZE %q (must be a positive integer), using default 20", batchStr)
		}
	}
	if cfg.DeliveryBatchSize == 0 {
		cfg.DeliveryBatchSize = 20
	}

	if batchStr := os.Getenv("RECONCILE_BATCH_SIZE"); batchStr != "" {
		if batch, err := parseInt(batchStr); err == nil && batch > 0 {
			cfg.ReconcileBatchSize = batch
		}
	}
	if cfg.ReconcileBatchSize == 0 {
		cfg.ReconcileBatchSize = 100
	}

	if bufStr := os.Getenv("EVENTBUS_BUFFER_SIZE"); bufStr != "" {
		if n, err := parseInt(bufStr); err == nil && n > 0 {
			cfg.EventBusBufferSize = n
		} else {
			log.Printf("config: invalid EVENTBUS_BUFFER_SIZE %q (must be a positive integer), using default 100", bufStr)
		}
	}
	if cfg.EventBusBufferSize == 0 {
		cfg.EventBusBufferSize = 100
	}

	if cbThreshStr := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); cbThreshStr != "" {
		if n, err := parseInt(cbThreshStr); err == nil {
			cfg.CircuitBreakerThreshold = n
		} else {
			log.Printf("config: invalid CIRCUIT_BREAKER_THRESHOLD %q, using default 5", cbThreshStr)
		}
	}
	if cfg.CircuitBreakerThreshold == 0 && os.Getenv("CIRCUIT_BREAKER_THRESHOLD") == "" {
		cfg.CircuitBreakerThreshold = 5
	}

	cfg.CircuitBreakerCooldownStr = os.Getenv("CIRCUIT_BREAKER_COOLDOWN")
	cfg.LeaderRetryIntervalStr = os.Getenv("LEADER_RETRY_INTERVAL")
	cfg.LeaderHeartbeatIntervalStr = os.Getenv("LEADER_HEARTBEAT_INTERVAL")

	if lockKeyStr := os.Getenv("LEADER_LOCK_KEY"); lockKeyStr != "" {
		if n, err := parseInt(lockKeyStr); err == nil && n > 0 {
			cfg.LeaderLockKey = int64(n)
		} else {
			log.Printf("config: invalid LEADER_LOCK_KEY %q (must be a positive integer), using default 917354", lockKeyStr)
		}
	}
	if cfg.LeaderLockKey == 0 {
		cfg.LeaderLockKey = 917354
	}

	if maxOpenStr := os.Getenv("DB_MAX_OPEN_CONNS"); maxOpenStr != "" {
		if n, err := parseInt(maxOpenStr); err == nil && n > 0 {
			cfg.DBMaxOpenConns = n
		}
	}
	if cfg.DBMaxOpenConns == 0 {
		cfg.DBMaxOpenConns = 25
	}

	if maxIdleStr := os.Getenv("DB_MAX_IDLE_CONNS"); maxIdleStr != "" {
		if n, err := parseInt(maxIdleStr); err == nil && n > 0 {
			cfg.DBMaxIdleConns = n
		}
	}
	if cfg.DBMaxIdleConns == 0 {
		cfg.DBMaxIdleConns = 5
	}

	// Support Railway's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.DBConnMaxIdleTimeStr == "" {
		cfg.DBConnMaxIdleTimeStr = "5m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.DeliveryFlushIntervalStr == "" {
		cfg.DeliveryFlushIntervalStr = "5s"
	}
	if cfg.DeliveryTimeoutStr == "" {
		cfg.DeliveryTimeoutStr = "10s"
	}
	if cfg.DeliveryDrainTimeoutStr == "" {
		cfg.DeliveryDrainTimeoutStr = "30s"
	}
	if cfg.AnalyticsRetentionStr == "" {
		cfg.AnalyticsRetentionStr = "720h"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}
	if cfg.ReconcileIntervalStr == "" {
		cfg.ReconcileIntervalStr = "5m"
	}
	if cfg.ReconcileThresholdStr == "" {
		cfg.ReconcileThresholdStr = "2m"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "2m"
	}
	if cfg.ReportSchedule == "" {
		cfg.ReportSchedule = "0 6 * * *"
	}
	if cfg.ReportTimezone == "" {
		cfg.ReportTimezone = "UTC"
	}
	if cfg.LeaderRetryIntervalStr == "" {
		cfg.LeaderRetryIntervalStr = "5s"
	}
	if cfg.LeaderHeartbeatIntervalStr == "" {
		cfg.LeaderHeartbeatIntervalStr = "2s"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxIdleTimeStr); err == nil {
		cfg.DBConnMaxIdleTime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DeliveryFlushIntervalStr); err == nil {
		cfg.DeliveryFlushInterval = d
	}
	if d, err := time.ParseDuration(cfg.DeliveryTimeoutStr); err == nil {
		cfg.DeliveryTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DeliveryDrainTimeoutStr); err == nil {
		cfg.DeliveryDrainTimeout = d
	}
	if d, err := time.ParseDuration(cfg.AnalyticsRetentionStr); err == nil {
		cfg.AnalyticsRetention = d
	}
	if d, err := time.ParseDuration(cfg.ReconcileIntervalStr); err == nil {
		cfg.ReconcileInterval = d
	}
	if d, err := time.ParseDuration(cfg.ReconcileThresholdStr); err == nil {
		cfg.ReconcileThreshold = d
	}
	if d, err := time.ParseDuration(cfg.CircuitBreakerCooldownStr); err == nil {
		cfg.CircuitBreakerCooldown = d
	}
	if d, err := time.ParseDuration(cfg.LeaderRetryIntervalStr); err == nil {
		cfg.LeaderRetryInterval = d
	}
	if d, err := time.ParseDuration(cfg.LeaderHeartbeatIntervalStr); err == nil {
		cfg.LeaderHeartbeatInterval = d
	}

	return cfg
}

// parseInt parses a string as an integer.
func parseInt(s string) (int, error) {
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		DatabaseURL             string `json:"database_url"`
		RedisAddr               string `json:"redis_addr,omitempty"`
		HTTPAddr                string `json:"http_addr"`
		Environment             string `json:"environment"`
		LogLevel                string `json:"log_level"`
		DataCloudAppID          string `json:"datacloud_app_id"`
		DataCloudEndpoint       string `json:"datacloud_endpoint"`
		DataCloudEnableLogging  bool   `json:"datacloud_enable_logging"`
		AdminJWTSecret          string `json:"admin_jwt_secret"`
		DBOpTimeout             string `json:"db_op_timeout"`
		DBMaxOpenConns          int    `json:"db_max_open_conns"`
		DBMaxIdleConns          int    `json:"db_max_idle_conns"`
		DBConnMaxLifetime       string `json:"db_conn_max_lifetime"`
		DBConnMaxIdleTime       string `json:"db_conn_max_idle_time"`
		HTTPShutdownTimeout     string `json:"http_shutdown_timeout"`
		DeliveryQueueSize       int    `json:"delivery_queue_size"`
		DeliveryBatchSize       int    `json:"delivery_batch_size"`
		DeliveryFlushInterval   string `json:"delivery_flush_interval"`
		DeliveryTimeout         string `json:"delivery_timeout"`
		DeliveryDrainTimeout    string `json:"delivery_drain_timeout"`
		AnalyticsRetention      string `json:"analytics_retention"`
		MetricsEnabled          bool   `json:"metrics_enabled"`
		MetricsPath             string `json:"metrics_path"`
		MetricsPort             string `json:"metrics_port"`
		ReconcileEnabled        bool   `json:"reconcile_enabled"`
		ReconcileInterval       string `json:"reconcile_interval"`
		ReconcileThreshold      string `json:"reconcile_threshold"`
		ReconcileBatchSize      int    `json:"reconcile_batch_size"`
		EventBusBufferSize      int    `json:"eventbus_buffer_size"`
		CircuitBreakerThreshold int    `json:"circuit_breaker_threshold"`
		CircuitBreakerCooldown  string `json:"circuit_breaker_cooldown"`
		ReportEnabled           bool   `json:"report_enabled"`
		ReportSchedule          string `json:"report_schedule"`
		ReportTimezone          string `json:"report_timezone"`
		ClickHouseAddr          string `json:"clickhouse_addr,omitempty"`
		ClickHouseDatabase      string `json:"clickhouse_database,omitempty"`
		ClickHouseUser          string `json:"clickhouse_user,omitempty"`
		ClickHousePassword      string `json:"clickhouse_password,omitempty"`
		LeaderLockKey           int64  `json:"leader_lock_key"`
		LeaderRetryInterval     string `json:"leader_retry_interval"`
		LeaderHeartbeatInterval string `json:"leader_heartbeat_interval"`
	}{
		DatabaseURL:             maskSecret(c.DatabaseURL),
		RedisAddr:               c.RedisAddr,
		HTTPAddr:                c.HTTPAddr,
		Environment:             c.Environment,
		LogLevel:                c.LogLevel,
		DataCloudAppID:          maskSecret(c.DataCloudAppID),
		DataCloudEndpoint:       c.DataCloudEndpoint,
		DataCloudEnableLogging:  c.DataCloudEnableLogging,
		AdminJWTSecret:          maskSecret(c.AdminJWTSecret),
		DBOpTimeout:             c.DBOpTimeoutStr,
		DBMaxOpenConns:          c.DBMaxOpenConns,
		DBMaxIdleConns:          c.DBMaxIdleConns,
		DBConnMaxLifetime:       c.DBConnMaxLifetimeStr,
		DBConnMaxIdleTime:       c.DBConnMaxIdleTimeStr,
		HTTPShutdownTimeout:     c.HTTPShutdownTimeoutStr,
		DeliveryQueueSize:       c.DeliveryQueueSize,
		DeliveryBatchSize:       c.DeliveryBatchSize,
		DeliveryFlushInterval:   c.DeliveryFlushIntervalStr,
		DeliveryTimeout:         c.DeliveryTimeoutStr,
		DeliveryDrainTimeout:    c.DeliveryDrainTimeoutStr,
		AnalyticsRetention:      c.AnalyticsRetentionStr,
		MetricsEnabled:          c.MetricsEnabled,
		MetricsPath:             c.MetricsPath,
		MetricsPort:             c.MetricsPort,
		ReconcileEnabled:        c.ReconcileEnabled,
		ReconcileInterval:       c.ReconcileIntervalStr,
		ReconcileThreshold:      c.ReconcileThresholdStr,
		ReconcileBatchSize:      c.ReconcileBatchSize,
		EventBusBufferSize:      c.EventBusBufferSize,
		CircuitBreakerThreshold: c.CircuitBreakerThreshold,
		CircuitBreakerCooldown:  c.CircuitBreakerCooldownStr,
		ReportEnabled:           c.ReportEnabled,
		ReportSchedule:          c.ReportSchedule,
		ReportTimezone:          c.ReportTimezone,
		ClickHouseAddr:          c.ClickHouseAddr,
		ClickHouseDatabase:      c.ClickHouseDatabase,
		ClickHouseUser:          c.ClickHouseUser,
		ClickHousePassword:      maskSecret(c.ClickHousePassword),
		LeaderLockKey:           c.LeaderLockKey,
		LeaderRetryInterval:     c.LeaderRetryIntervalStr,
		LeaderHeartbeatInterval: c.LeaderHeartbeatIntervalStr,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
