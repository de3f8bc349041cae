package datacloud

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/domain"
)

var defaultBackoff = []time.Duration{
	0,
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
}

const maxAttempts = 4

// MaxRetryDuration returns the worst-case in-process retry window for one
// batch: the sum of all backoff delays. The spool reconciler's threshold
// must exceed this so a batch still being retried here is never replayed
// concurrently.
func MaxRetryDuration() time.Duration {
	var total time.Duration
	for _, d := range defaultBackoff {
		total += d
	}
	return total
}

// DrainTimeout is the default maximum time to flush buffered events during shutdown.
const DrainTimeout = 30 * time.Second

const spoolTimeout = 5 * time.Second

// MetricsSink defines the interface for recording delivery metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	DeliveryAttemptCompleted(attempt int, statusClass string, duration time.Duration)
	DeliveryOutcome(outcome string)
	RetryAttempt(retryable bool)
	QueueDepthUpdate(depth int)
	EventsDropped(count int, reason string)
}

// Breaker short-circuits sends to an endpoint that keeps failing.
type Breaker interface {
	Allow(endpoint string) error
	RecordSuccess(endpoint string)
	RecordFailure(endpoint string)
}

// SpoolStore journals batches that exhausted their retries.
type SpoolStore interface {
	SpoolBatch(ctx context.Context, batch domain.SpooledBatch) error
}

// ClientConfig tunes the delivery pipeline. Zero values select defaults.
type ClientConfig struct {
	QueueSize      int
	BatchSize      int
	FlushInterval  time.Duration
	RequestTimeout time.Duration
	DrainTimeout   time.Duration
}

// HTTPClient is the real ingestion client: a bounded queue in front of a
// single delivery worker that batches events and posts them with bounded
// retries. The credential snapshot and the consent state live here.
type HTTPClient struct {
	sender Sender
	log    logrus.FieldLogger

	mu  sync.RWMutex
	cfg domain.AnalyticsConfig

	consent atomic.Value // domain.ConsentState

	queue chan domain.Event

	batchSize      int
	flushInterval  time.Duration
	requestTimeout time.Duration
	drainTimeout   time.Duration
	backoff        []time.Duration

	breaker Breaker     // optional, nil = disabled
	spool   SpoolStore  // optional, nil = disabled
	metrics MetricsSink // optional, nil = disabled
}

func NewHTTPClient(sender Sender, log logrus.FieldLogger, cfg ClientConfig) *HTTPClient {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DrainTimeout
	}

	c := &HTTPClient{
		sender:         sender,
		log:            log,
		queue:          make(chan domain.Event, cfg.QueueSize),
		batchSize:      cfg.BatchSize,
		flushInterval:  cfg.FlushInterval,
		requestTimeout: cfg.RequestTimeout,
		drainTimeout:   cfg.DrainTimeout,
		backoff:        defaultBackoff,
	}
	c.consent.Store(domain.ConsentUnknown)
	return c
}

// WithBreaker attaches a circuit breaker to the delivery path.
func (c *HTTPClient) WithBreaker(b Breaker) *HTTPClient {
	c.breaker = b
	return c
}

// WithSpool attaches a journal for batches that exhaust their retries.
func (c *HTTPClient) WithSpool(s SpoolStore) *HTTPClient {
	c.spool = s
	return c
}

// WithMetrics attaches a metrics sink.
func (c *HTTPClient) WithMetrics(m MetricsSink) *HTTPClient {
	c.metrics = m
	return c
}

// Configure swaps the credential snapshot. Safe to call at any time;
// events queued before the swap are delivered with the snapshot current
// at flush time.
func (c *HTTPClient) Configure(cfg domain.AnalyticsConfig) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	c.log.Debugf("datacloud: configured app_id=%s endpoint=%s logging=%v", cfg.AppID, cfg.Endpoint, cfg.EnableLogging)
}

func (c *HTTPClient) snapshot() domain.AnalyticsConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

func (c *HTTPClient) Consent() domain.ConsentState {
	return c.consent.Load().(domain.ConsentState)
}

func (c *HTTPClient) SetConsent(state domain.ConsentState) {
	c.consent.Store(state)
}

// Track enqueues one event. It never blocks: a full queue drops the
// event, an unconfigured client drops it sooner.
func (c *HTTPClient) Track(ctx context.Context, ev domain.Event) {
	cfg := c.snapshot()
	if !cfg.IsConfigured() {
		c.log.Debugf("datacloud: dropping %s event, client not configured", ev.Name)
		if c.metrics != nil {
			c.metrics.EventsDropped(1, "not_configured")
		}
		return
	}

	select {
	case c.queue <- ev:
		if cfg.EnableLogging {
			c.log.Debugf("datacloud: queued %s attributes=%v", ev.Name, ev.Attributes)
		}
		c.reportQueueDepth()
	default:
		c.log.Warnf("datacloud: queue full, dropping %s event", ev.Name)
		if c.metrics != nil {
			c.metrics.EventsDropped(1, "queue_full")
		}
	}
}

// TrackAppLaunch submits the launch event. Unlike screen views it is not
// consent-gated by callers; launches count process starts, not behavior.
func (c *HTTPClient) TrackAppLaunch(ctx context.Context, appName, appVersion string) {
	c.Track(ctx, domain.NewAppLaunchEvent(appName, appVersion, time.Now()))
}

// Run batches queued events and delivers them until the context is
// cancelled. After cancellation, remaining events are flushed with a
// bounded drain window.
func (c *HTTPClient) Run(ctx context.Context) {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]domain.Event, 0, c.batchSize)
	for {
		select {
		case <-ctx.Done():
			c.drain(batch)
			return
		case ev := <-c.queue:
			c.reportQueueDepth()
			batch = append(batch, ev)
			if len(batch) >= c.batchSize {
				c.deliver(ctx, batch)
				batch = make([]domain.Event, 0, c.batchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				c.deliver(ctx, batch)
				batch = make([]domain.Event, 0, c.batchSize)
			}
		}
	}
}

// drain flushes the pending batch and any still-queued events after the
// shutdown signal. Uses a background context since the main context is
// already cancelled; an unreachable endpoint spools instead of blocking
// shutdown.
func (c *HTTPClient) drain(batch []domain.Event) {
	drainCtx, cancel := context.WithTimeout(context.Background(), c.drainTimeout)
	defer cancel()

	count := len(batch)
	for {
		select {
		case <-drainCtx.Done():
			if len(batch) > 0 {
				c.deliver(drainCtx, batch)
			}
			c.log.Warnf("datacloud: drain timeout, flushed %d events", count)
			return
		case ev := <-c.queue:
			batch = append(batch, ev)
			count++
			if len(batch) >= c.batchSize {
				c.deliver(drainCtx, batch)
				batch = make([]domain.Event, 0, c.batchSize)
			}
		default:
			if len(batch) > 0 {
				c.deliver(drainCtx, batch)
			}
			if count > 0 {
				c.log.Infof("datacloud: drain complete, flushed %d events", count)
			}
			return
		}
	}
}

// deliver posts one batch with bounded retries. Retryable failures that
// survive all attempts are spooled for replay; non-retryable responses
// drop the batch.
func (c *HTTPClient) deliver(ctx context.Context, events []domain.Event) {
	cfg := c.snapshot()
	if !cfg.IsConfigured() {
		c.log.Debugf("datacloud: dropping %d events, client no longer configured", len(events))
		if c.metrics != nil {
			c.metrics.EventsDropped(len(events), "not_configured")
		}
		return
	}

	url := IngestURL(cfg.Endpoint)
	records := make([]EventRecord, 0, len(events))
	for _, ev := range events {
		records = append(records, NewEventRecord(ev))
	}

	batchID := uuid.New()
	req := IngestRequest{
		URL:       url,
		AppID:     cfg.AppID,
		RequestID: batchID.String(),
		Timeout:   c.requestTimeout,
		Payload: IngestPayload{
			Events: records,
			SentAt: time.Now().UTC().Format(time.RFC3339),
		},
	}

	var lastResult IngestResult

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if c.metrics != nil {
				c.metrics.RetryAttempt(lastResult.IsRetryable())
			}

			idx := attempt - 1
			if idx >= len(c.backoff) {
				idx = len(c.backoff) - 1
			}
			backoff := c.backoff[idx]

			c.log.Debugf("datacloud: batch=%s attempt=%d backoff=%s", batchID, attempt, backoff)

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				c.spoolOrDrop(batchID, events, lastResult)
				return
			case <-timer.C:
			}
		}

		if c.breaker != nil {
			if err := c.breaker.Allow(url); err != nil {
				lastResult = IngestResult{Error: err}
				c.log.Debugf("datacloud: batch=%s attempt=%d skipped, circuit open", batchID, attempt)
				continue
			}
		}

		result := c.sender.Send(ctx, req)
		lastResult = result

		if c.metrics != nil {
			statusClass := classifyStatusForMetrics(result.StatusCode, result.Error)
			c.metrics.DeliveryAttemptCompleted(attempt, statusClass, result.Duration)
		}

		if result.IsSuccess() {
			if c.breaker != nil {
				c.breaker.RecordSuccess(url)
			}
			if cfg.EnableLogging {
				c.log.Debugf("datacloud: batch=%s delivered events=%d attempt=%d", batchID, len(events), attempt)
			}
			if c.metrics != nil {
				c.metrics.DeliveryOutcome("delivered")
			}
			return
		}

		if c.breaker != nil {
			c.breaker.RecordFailure(url)
		}

		if !result.IsRetryable() {
			c.log.Warnf("datacloud: batch=%s rejected status=%d, dropping %d events", batchID, result.StatusCode, len(events))
			if c.metrics != nil {
				c.metrics.DeliveryOutcome("dropped")
				c.metrics.EventsDropped(len(events), "rejected")
			}
			return
		}

		c.log.Debugf("datacloud: batch=%s attempt=%d failed status=%d err=%v", batchID, attempt, result.StatusCode, result.Error)
	}

	c.spoolOrDrop(batchID, events, lastResult)
}

// spoolOrDrop journals an undeliverable batch, or drops it when no spool
// is attached. Spooling uses a fresh context: by the time we get here the
// delivery context is often already cancelled.
func (c *HTTPClient) spoolOrDrop(batchID uuid.UUID, events []domain.Event, last IngestResult) {
	if c.spool == nil {
		c.log.Warnf("datacloud: batch=%s undeliverable, dropping %d events", batchID, len(events))
		if c.metrics != nil {
			c.metrics.DeliveryOutcome("dropped")
			c.metrics.EventsDropped(len(events), "undeliverable")
		}
		return
	}

	batch := domain.SpooledBatch{
		ID:         batchID,
		Events:     events,
		Attempts:   maxAttempts,
		LastStatus: last.StatusCode,
		SpooledAt:  time.Now().UTC(),
	}
	if last.Error != nil {
		batch.LastError = last.Error.Error()
	}

	spoolCtx, cancel := context.WithTimeout(context.Background(), spoolTimeout)
	defer cancel()

	if err := c.spool.SpoolBatch(spoolCtx, batch); err != nil {
		c.log.Errorf("datacloud: batch=%s spool failed, %d events lost: %v", batchID, len(events), err)
		if c.metrics != nil {
			c.metrics.DeliveryOutcome("dropped")
			c.metrics.EventsDropped(len(events), "undeliverable")
		}
		return
	}

	c.log.Infof("datacloud: batch=%s spooled events=%d status=%d", batchID, len(events), last.StatusCode)
	if c.metrics != nil {
		c.metrics.DeliveryOutcome("spooled")
	}
}

func (c *HTTPClient) reportQueueDepth() {
	if c.metrics != nil {
		c.metrics.QueueDepthUpdate(len(c.queue))
	}
}

// classifyStatusForMetrics maps an HTTP status code and error to a metrics status class.
// Uses bounded cardinality: 2xx, 4xx, 5xx, timeout, connection_error, other_error.
func classifyStatusForMetrics(statusCode int, err error) string {
	if err != nil {
		errStr := err.Error()
		// Check for timeout errors
		if containsInsensitive(errStr, "timeout") || containsInsensitive(errStr, "deadline exceeded") {
			return "timeout"
		}
		// Check for connection errors
		if containsInsensitive(errStr, "connection refused") ||
			containsInsensitive(errStr, "no such host") ||
			containsInsensitive(errStr, "network is unreachable") ||
			containsInsensitive(errStr, "dial") {
			return "connection_error"
		}
		return "other_error"
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "other_error"
	}
}

// containsInsensitive checks if substr is in s (case-insensitive).
func containsInsensitive(s, substr string) bool {
	if len(s) < len(substr) {
		return false
	}
	for i := 0; i <= len(s)-len(substr); i++ {
		match := true
		for j := 0; j < len(substr); j++ {
			c1 := s[i+j]
			c2 := substr[j]
			if c1 != c2 {
				// Convert to lowercase
				if c1 >= 'A' && c1 <= 'Z' {
					c1 += 32
				}
				if c2 >= 'A' && c2 <= 'Z' {
					c2 += 32
				}
				if c1 != c2 {
					match = false
					break
				}
			}
		}
		if match {
			return true
		}
	}
	return false
}
