package metrics

import (
	"log"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Tracking metrics
	screenViewsTotal prometheus.Counter
	suppressedTotal  *prometheus.CounterVec
	appLaunchesTotal prometheus.Counter
	configureTotal   *prometheus.CounterVec

	// Delivery metrics
	deliveryAttemptsTotal *prometheus.CounterVec
	deliveryOutcomesTotal *prometheus.CounterVec
	deliveryDuration      prometheus.Histogram
	retryAttemptsTotal    *prometheus.CounterVec
	queueDepth            prometheus.Gauge
	droppedTotal          *prometheus.CounterVec

	// EventBus metrics
	bufferSize       prometheus.Gauge
	bufferCapacity   prometheus.Gauge
	bufferSaturation prometheus.Gauge
	emitErrorsTotal  prometheus.Counter

	// Spool metrics
	spooledBatches     prometheus.Gauge
	replayOutcomeTotal *prometheus.CounterVec

	// Leader election metrics
	leaderStatus        prometheus.Gauge
	leaderAcquiredTotal prometheus.Counter
	leaderLostTotal     *prometheus.CounterVec
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
// Metrics that fail to register will be replaced with no-op collectors.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initTrackingMetrics(reg)
	s.initDeliveryMetrics(reg)
	s.initEventBusMetrics(reg)
	s.initSpoolMetrics(reg)
	s.initLeaderMetrics(reg)
	return s
}

func (s *PrometheusSink) initTrackingMetrics(reg prometheus.Registerer) {
	s.screenViewsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pronto_tracking_screen_views_total",
		Help: "Total number of screen view events submitted to the ingestion client.",
	})
	s.suppressedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pronto_tracking_suppressed_total",
		Help: "Total number of screen views suppressed before submission.",
	}, []string{"reason"})
	s.appLaunchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pronto_tracking_app_launches_total",
		Help: "Total number of app launch events submitted.",
	})
	s.configureTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pronto_tracking_configure_total",
		Help: "Total number of configuration passes by outcome.",
	}, []string{"outcome"})

	s.register(reg, s.screenViewsTotal, "pronto_tracking_screen_views_total")
	s.register(reg, s.suppressedTotal, "pronto_tracking_suppressed_total")
	s.register(reg, s.appLaunchesTotal, "pronto_tracking_app_launches_total")
	s.register(reg, s.configureTotal, "pronto_tracking_configure_total")
}

func (s *PrometheusSink) initDeliveryMetrics(reg prometheus.Registerer) {
	s.deliveryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pronto_delivery_attempts_total",
		Help: "Total number of ingestion POST attempts.",
	}, []string{"attempt", "status_class"})

	s.deliveryOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pronto_delivery_outcomes_total",
		Help: "Total number of final delivery outcomes per batch.",
	}, []string{"outcome"})

	s.deliveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pronto_delivery_duration_seconds",
		Help:    "Ingestion request latency in seconds (excludes backoff wait).",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.retryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pronto_delivery_retry_attempts_total",
		Help: "Total number of retry attempts (excludes first attempt).",
	}, []string{"retryable"})

	s.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pronto_delivery_queue_depth",
		Help: "Number of events waiting in the delivery queue.",
	})

	s.droppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pronto_delivery_events_dropped_total",
		Help: "Total number of events dropped before delivery.",
	}, []string{"reason"})

	s.register(reg, s.deliveryAttemptsTotal, "pronto_delivery_attempts_total")
	s.register(reg, s.deliveryOutcomesTotal, "pronto_delivery_outcomes_total")
	s.register(reg, s.deliveryDuration, "pronto_delivery_duration_seconds")
	s.register(reg, s.retryAttemptsTotal, "pronto_delivery_retry_attempts_total")
	s.register(reg, s.queueDepth, "pronto_delivery_queue_depth")
	s.register(reg, s.droppedTotal, "pronto_delivery_events_dropped_total")
}

func (s *PrometheusSink) initEventBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pronto_eventbus_buffer_size",
		Help: "Current number of events in the event bus buffer.",
	})
	s.bufferCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pronto_eventbus_buffer_capacity",
		Help: "Configured capacity of the event bus buffer.",
	})
	s.bufferSaturation = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pronto_eventbus_buffer_saturation",
		Help: "Event bus buffer fill ratio between 0 and 1.",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pronto_eventbus_emit_errors_total",
		Help: "Total number of emit errors (buffer full).",
	})

	s.register(reg, s.bufferSize, "pronto_eventbus_buffer_size")
	s.register(reg, s.bufferCapacity, "pronto_eventbus_buffer_capacity")
	s.register(reg, s.bufferSaturation, "pronto_eventbus_buffer_saturation")
	s.register(reg, s.emitErrorsTotal, "pronto_eventbus_emit_errors_total")
}

func (s *PrometheusSink) initSpoolMetrics(reg prometheus.Registerer) {
	s.spooledBatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pronto_spool_pending_batches",
		Help: "Number of undelivered batches in the spool.",
	})
	s.replayOutcomeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pronto_spool_replay_outcomes_total",
		Help: "Total number of spool replay outcomes.",
	}, []string{"outcome"})

	s.register(reg, s.spooledBatches, "pronto_spool_pending_batches")
	s.register(reg, s.replayOutcomeTotal, "pronto_spool_replay_outcomes_total")
}

func (s *PrometheusSink) initLeaderMetrics(reg prometheus.Registerer) {
	s.leaderStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pronto_leader_status",
		Help: "Whether this instance currently holds the leader lock (1) or not (0).",
	})
	s.leaderAcquiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pronto_leader_acquired_total",
		Help: "Total number of times this instance acquired the leader lock.",
	})
	s.leaderLostTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pronto_leader_lost_total",
		Help: "Total number of times this instance lost the leader lock.",
	}, []string{"reason"})

	s.register(reg, s.leaderStatus, "pronto_leader_status")
	s.register(reg, s.leaderAcquiredTotal, "pronto_leader_acquired_total")
	s.register(reg, s.leaderLostTotal, "pronto_leader_lost_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Tracking metrics implementation

func (s *PrometheusSink) ScreenViewTracked() {
	s.screenViewsTotal.Inc()
}

func (s *PrometheusSink) ScreenViewSuppressed(reason string) {
	s.suppressedTotal.WithLabelValues(reason).Inc()
}

func (s *PrometheusSink) AppLaunchTracked() {
	s.appLaunchesTotal.Inc()
}

func (s *PrometheusSink) ConfigureCompleted(outcome string) {
	s.configureTotal.WithLabelValues(outcome).Inc()
}

// Delivery metrics implementation

func (s *PrometheusSink) DeliveryAttemptCompleted(attempt int, statusClass string, duration time.Duration) {
	s.deliveryAttemptsTotal.WithLabelValues(strconv.Itoa(attempt), statusClass).Inc()
	s.deliveryDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) DeliveryOutcome(outcome string) {
	s.deliveryOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) RetryAttempt(retryable bool) {
	label := "false"
	if retryable {
		label = "true"
	}
	s.retryAttemptsTotal.WithLabelValues(label).Inc()
}

func (s *PrometheusSink) QueueDepthUpdate(depth int) {
	s.queueDepth.Set(float64(depth))
}

func (s *PrometheusSink) EventsDropped(count int, reason string) {
	s.droppedTotal.WithLabelValues(reason).Add(float64(count))
}

// EventBus metrics implementation

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) BufferCapacitySet(capacity int) {
	s.bufferCapacity.Set(float64(capacity))
}

func (s *PrometheusSink) BufferSaturationUpdate(saturation float64) {
	s.bufferSaturation.Set(saturation)
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}

// Spool metrics implementation

func (s *PrometheusSink) SpooledBatchesUpdate(count int) {
	s.spooledBatches.Set(float64(count))
}

func (s *PrometheusSink) ReplayOutcome(outcome string) {
	s.replayOutcomeTotal.WithLabelValues(outcome).Inc()
}

// Leader election metrics implementation

func (s *PrometheusSink) LeaderStatusChanged(isLeader bool) {
	if isLeader {
		s.leaderStatus.Set(1)
	} else {
		s.leaderStatus.Set(0)
	}
}

func (s *PrometheusSink) LeaderAcquired() {
	s.leaderAcquiredTotal.Inc()
}

func (s *PrometheusSink) LeaderLost(reason string) {
	s.leaderLostTotal.WithLabelValues(reason).Inc()
}
