package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/analytics"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/api"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/circuitbreaker"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/config"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/cron"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/datacloud"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/domain"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/leaderelection"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/logging"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/metrics"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/reconciler"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/report"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/store/postgres"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/tracking"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/transport/channel"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/warehouse"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	// Optional .env file for local development.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`prontod - consent-gated analytics service for the Pronto mobile apps

Usage:
  prontod <command>

Commands:
  serve      Start the API server and delivery pipeline
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL              PostgreSQL connection string (required)
  REDIS_ADDR                Redis address for view counters (optional)
  CLICKHOUSE_ADDR           ClickHouse address for the event archive (optional)
  CLICKHOUSE_DATABASE       ClickHouse database (optional)
  CLICKHOUSE_USER           ClickHouse user (optional)
  CLICKHOUSE_PASSWORD       ClickHouse password (optional)
  HTTP_ADDR                 HTTP server address (default: ":8080")
  ENVIRONMENT               "development" or "production" (default: "development")
  LOG_LEVEL                 trace, debug, info, warn or error (default depends on environment)

  DATACLOUD_APP_ID          Ingestion app ID used to seed an empty settings store (optional)
  DATACLOUD_ENDPOINT        Ingestion endpoint used to seed an empty settings store (optional)
  DATACLOUD_ENABLE_LOGGING  Seed value for verbose delivery logging (default: "false")
  ADMIN_JWT_SECRET          HS256 secret for /v1/admin routes; empty leaves them open

  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME     Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")
  DELIVERY_QUEUE_SIZE       Delivery queue capacity (default: "1000")
  DELIVERY_BATCH_SIZE       Events per ingestion request (default: "20")
  DELIVERY_FLUSH_INTERVAL   Max wait before a partial batch ships (default: "5s")
  DELIVERY_TIMEOUT          Per-request delivery timeout (default: "10s")
  DELIVERY_DRAIN_TIMEOUT    Shutdown drain timeout (default: "30s")
  ANALYTICS_RETENTION       View counter retention in Redis (default: "720h")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")
  METRICS_PORT              Metrics server port (default: "9090")

  RECONCILE_ENABLED         Enable spool replay (default: "false")
  RECONCILE_INTERVAL        How often to scan the spool (default: "5m")
  RECONCILE_THRESHOLD       Age before an undelivered batch is replayed (default: "2m")
  RECONCILE_BATCH_SIZE      Max batches per replay cycle (default: "100")

  REPORT_ENABLED            Enable the daily engagement summary (default: "false")
  REPORT_SCHEDULE           Cron schedule for the summary (default: "0 6 * * *")
  REPORT_TIMEZONE           Timezone for the schedule (default: "UTC")

  EVENTBUS_BUFFER_SIZE      Settings signal buffer size (default: "100")
  CIRCUIT_BREAKER_THRESHOLD Failures before the breaker opens, 0 disables (default: "5")
  CIRCUIT_BREAKER_COOLDOWN  Breaker cooldown before a probe request (default: "2m")
  LEADER_LOCK_KEY           Advisory lock key shared by all instances (default: "917354")
  LEADER_RETRY_INTERVAL     Follower lock retry interval (default: "5s")
  LEADER_HEARTBEAT_INTERVAL Leader connection heartbeat (default: "2s")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	log := logging.New(cfg.Environment, cfg.LogLevel)
	logConfigWarnings(cfg, log)

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Errorf("failed to open database: %v", err)
		return exitRuntimeError
	}
	defer db.Close()

	// Configure connection pool
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	log.Infof("prontod: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		log.Errorf("failed to connect to database: %v", err)
		return exitRuntimeError
	}

	probeCtx, probeCancel := context.WithTimeout(context.Background(), cfg.DBOpTimeout)
	err = probeSettingsTable(probeCtx, db)
	probeCancel()
	if err != nil {
		log.Errorf("settings schema probe failed (have migrations run?): %v", err)
		return exitRuntimeError
	}

	store := postgres.New(db)

	seedCtx, seedCancel := context.WithTimeout(context.Background(), cfg.DBOpTimeout)
	err = seedSettings(seedCtx, cfg, store, log)
	seedCancel()
	if err != nil {
		log.Errorf("failed to seed analytics settings: %v", err)
		return exitRuntimeError
	}

	// Metrics sink is always present; the noop keeps call sites
	// unconditional when metrics are disabled.
	var metricsSink metrics.Sink = metrics.NewNoopSink()
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Infof("prontod: metrics enabled (port=%s, path=%s)", cfg.MetricsPort, cfg.MetricsPath)

		// Start metrics HTTP server on separate port
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    ":" + cfg.MetricsPort,
			Handler: metricsMux,
		}
		go func() {
			log.Infof("prontod: metrics server listening on :%s", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("prontod: metrics server error: %v", err)
			}
		}()
	}

	bus := channel.NewEventBus(cfg.EventBusBufferSize, channel.WithMetrics(metricsSink))

	sender := datacloud.NewHTTPSender()

	client := datacloud.NewHTTPClient(sender, log, datacloud.ClientConfig{
		QueueSize:      cfg.DeliveryQueueSize,
		BatchSize:      cfg.DeliveryBatchSize,
		FlushInterval:  cfg.DeliveryFlushInterval,
		RequestTimeout: cfg.DeliveryTimeout,
		DrainTimeout:   cfg.DeliveryDrainTimeout,
	}).WithSpool(store)
	if cfg.CircuitBreakerThreshold > 0 {
		client = client.WithBreaker(circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown))
	}
	client = client.WithMetrics(metricsSink)

	// The store is the consent system of record; the client keeps a
	// live mirror that must be hydrated before traffic arrives.
	consentCtx, consentCancel := context.WithTimeout(context.Background(), cfg.DBOpTimeout)
	state, err := store.GetConsent(consentCtx)
	consentCancel()
	if err != nil {
		log.Errorf("failed to load consent state: %v", err)
		return exitRuntimeError
	}
	client.SetConsent(state)

	manager := tracking.NewManager(store, client, tracking.AppInfo{
		Name:        "prontod",
		Version:     version,
		Environment: cfg.Environment,
	}, log).WithMetrics(metricsSink)

	// First configure happens before any traffic is served.
	configureCtx, configureCancel := context.WithTimeout(context.Background(), cfg.DBOpTimeout)
	manager.Configure(configureCtx)
	configureCancel()

	tracker := tracking.NewTracker(client, log).
		WithSink(tracking.NewLogSink(log)).
		WithMetrics(metricsSink)

	// Wire view counters if Redis is configured
	var counter *analytics.RedisCounter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		counter = analytics.NewRedisCounter(redisClient, cfg.AnalyticsRetention)
		tracker = tracker.WithSink(tracking.NewCounterSink(counter, log))
		log.Infof("prontod: view counters enabled (redis=%s)", cfg.RedisAddr)
	}

	// Wire the event archive if ClickHouse is configured
	var archive *warehouse.Sink
	if cfg.ClickHouseAddr != "" {
		archive, err = warehouse.Open(warehouse.Config{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		}, log)
		if err != nil {
			log.Errorf("failed to open clickhouse: %v", err)
			return exitRuntimeError
		}
		tracker = tracker.WithSink(archive)
		log.Infof("prontod: event archive enabled (clickhouse=%s)", cfg.ClickHouseAddr)
	}

	apiHandler := api.NewHandler(store, tracker, manager, client, bus, log).
		WithHealthChecker(db).
		WithAuth(api.NewAuthenticator(cfg.AdminJWTSecret))
	if counter != nil {
		apiHandler = apiHandler.WithViewStats(counter).WithHealthComponent("redis", counter)
	}
	if archive != nil {
		apiHandler = apiHandler.WithHealthComponent("clickhouse", archive)
	}

	// Start HTTP server with API handler
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiHandler,
	}

	go func() {
		log.Infof("prontod: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("prontod: http server error: %v", err)
		}
	}()

	// Use separate contexts per component to enable ordered shutdown.
	managerCtx, cancelManager := context.WithCancel(context.Background())
	clientCtx, cancelClient := context.WithCancel(context.Background())

	var managerWg sync.WaitGroup
	var clientWg sync.WaitGroup
	var archiveWg sync.WaitGroup
	var electorWg sync.WaitGroup
	var cancelArchive context.CancelFunc
	var cancelElector context.CancelFunc

	managerWg.Add(1)
	go func() {
		defer managerWg.Done()
		manager.Run(managerCtx, bus.Channel())
	}()

	clientWg.Add(1)
	go func() {
		defer clientWg.Done()
		client.Run(clientCtx)
	}()

	if archive != nil {
		var archiveCtx context.Context
		archiveCtx, cancelArchive = context.WithCancel(context.Background())
		archiveWg.Add(1)
		go func() {
			defer archiveWg.Done()
			archive.Run(archiveCtx)
		}()
	}

	// Reconciler and report runner are leader duties: when several
	// instances share one database, exactly one of them runs these.
	var recon *reconciler.Reconciler
	if cfg.ReconcileEnabled {
		recon = reconciler.New(reconciler.Config{
			Interval:       cfg.ReconcileInterval,
			Threshold:      cfg.ReconcileThreshold,
			BatchSize:      cfg.ReconcileBatchSize,
			RequestTimeout: cfg.DeliveryTimeout,
		}, store, sender, log).WithMetrics(metricsSink)
		log.Infof("prontod: reconciler enabled (interval=%s, threshold=%s, batch=%d)",
			cfg.ReconcileInterval, cfg.ReconcileThreshold, cfg.ReconcileBatchSize)
	}

	var reporter *report.Runner
	if cfg.ReportEnabled && counter != nil {
		sched, err := cron.Parse(cfg.ReportSchedule, cfg.ReportTimezone)
		if err != nil {
			log.Errorf("invalid report schedule: %v", err)
			return exitInvalidConfig
		}
		reporter = report.New(report.Config{
			Schedule: cfg.ReportSchedule,
			Timezone: cfg.ReportTimezone,
		}, sched, counter, client, log).WithJanitor(store)
		log.Infof("prontod: engagement report enabled (schedule=%q, tz=%s)", cfg.ReportSchedule, cfg.ReportTimezone)
	}

	if recon != nil || reporter != nil {
		var dutyWg sync.WaitGroup
		onElected := func(leaderCtx context.Context) {
			if recon != nil {
				dutyWg.Add(1)
				go func() {
					defer dutyWg.Done()
					recon.Run(leaderCtx)
				}()
			}
			if reporter != nil {
				dutyWg.Add(1)
				go func() {
					defer dutyWg.Done()
					reporter.Run(leaderCtx)
				}()
			}
		}
		onDemoted := func() {
			dutyWg.Wait()
		}

		elector := leaderelection.New(leaderelection.Config{
			LockKey:           cfg.LeaderLockKey,
			RetryInterval:     cfg.LeaderRetryInterval,
			HeartbeatInterval: cfg.LeaderHeartbeatInterval,
			OnElected:         onElected,
			OnDemoted:         onDemoted,
		}, db, log).WithMetrics(metricsSink)

		var electorCtx context.Context
		electorCtx, cancelElector = context.WithCancel(context.Background())
		electorWg.Add(1)
		go func() {
			defer electorWg.Done()
			elector.Run(electorCtx)
		}()
	}

	log.Infof("prontod: started (http=%s, version=%s)", cfg.HTTPAddr, version)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Infof("prontod: received signal %v, shutting down", received)

	// Phase 1: Stop leader duties (no new report or replay work)
	if cancelElector != nil {
		log.Info("prontod: stopping leader duties...")
		cancelElector()
		electorWg.Wait()
		log.Info("prontod: leader duties stopped")
	}

	// Phase 2: Stop the configuration manager (no more reconfigures)
	log.Info("prontod: stopping configuration manager...")
	cancelManager()
	managerWg.Wait()
	log.Info("prontod: configuration manager stopped")

	// Phase 3: Stop the delivery client (drains the queue, spools leftovers)
	log.Info("prontod: stopping delivery client (draining queue)...")
	cancelClient()
	clientWg.Wait()
	log.Info("prontod: delivery client stopped")

	// Phase 4: Stop the event archive (flushes buffered rows)
	if cancelArchive != nil {
		log.Info("prontod: stopping event archive...")
		cancelArchive()
		archiveWg.Wait()
		if err := archive.Close(); err != nil {
			log.Errorf("prontod: event archive close error: %v", err)
		}
		log.Info("prontod: event archive stopped")
	}

	// Phase 5: Stop HTTP server with graceful shutdown
	log.Info("prontod: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Errorf("prontod: http server shutdown error: %v", err)
	}
	log.Info("prontod: http server stopped")

	// Phase 6: Stop metrics server if running (with same timeout)
	if metricsServer != nil {
		log.Info("prontod: stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Errorf("prontod: metrics server shutdown error: %v", err)
		}
		log.Info("prontod: metrics server stopped")
	}

	log.Info("prontod: stopped")
	return exitSuccess
}

// logConfigWarnings flags configuration combinations that degrade
// durability or operability. Serving continues either way.
func logConfigWarnings(cfg config.Config, log logrus.FieldLogger) {
	if !cfg.ReconcileEnabled {
		log.Warn("P0: RECONCILE_ENABLED=false; batches spooled after failed deliveries will never be replayed")
	}
	if cfg.Environment == config.EnvProduction && cfg.AdminJWTSecret == "" {
		log.Warn("P0: ADMIN_JWT_SECRET is empty in production; /v1/admin routes accept unauthenticated requests")
	}
	if !cfg.MetricsEnabled {
		log.Warn("P1: METRICS_ENABLED=false; delivery outcomes will not be exported")
	}
	if cfg.ReportEnabled && cfg.RedisAddr == "" {
		log.Warn("P1: REPORT_ENABLED=true but REDIS_ADDR is empty; the daily summary reads view counters and will not run")
	}
	if (cfg.DataCloudAppID == "") != (cfg.DataCloudEndpoint == "") {
		log.Warn("P1: DATACLOUD_APP_ID and DATACLOUD_ENDPOINT must both be set to seed settings; partial seed ignored")
	}
	if cfg.RedisAddr == "" {
		log.Info("REDIS_ADDR not set; view counters and /v1/screens/stats are disabled")
	}
	if cfg.ClickHouseAddr == "" {
		log.Info("CLICKHOUSE_ADDR not set; the event archive is disabled")
	}
	if cfg.CircuitBreakerThreshold <= 0 {
		log.Info("CIRCUIT_BREAKER_THRESHOLD=0; delivery failures will not trip the breaker")
	}
}

// probeSettingsTable checks that the settings schema exists before
// serving. The probe passes on an empty table; any error other than
// "no rows" means migrations have not run or the database is down.
func probeSettingsTable(ctx context.Context, db *sql.DB) error {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM analytics_settings LIMIT 1`).Scan(&one)
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

// seedSettings writes the DATACLOUD_* environment values into an empty
// settings store. A store that already holds a row wins over the
// environment: credentials saved through the admin API survive restarts
// with stale env vars.
func seedSettings(ctx context.Context, cfg config.Config, store *postgres.Store, log logrus.FieldLogger) error {
	if cfg.DataCloudAppID == "" || cfg.DataCloudEndpoint == "" {
		return nil
	}

	existing, err := store.GetAnalyticsSettings(ctx)
	if err != nil {
		return err
	}
	if existing.AppID != "" || existing.Endpoint != "" {
		return nil
	}

	seed := domain.AnalyticsConfig{
		AppID:         cfg.DataCloudAppID,
		Endpoint:      cfg.DataCloudEndpoint,
		EnableLogging: cfg.DataCloudEnableLogging,
		UpdatedAt:     time.Now().UTC(),
	}
	if err := store.UpsertAnalyticsSettings(ctx, seed); err != nil {
		return err
	}

	log.Infof("prontod: seeded analytics settings from environment (endpoint=%s)", cfg.DataCloudEndpoint)
	return nil
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("prontod version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
