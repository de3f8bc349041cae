// Package reconciler replays spooled event batches.
//
// A batch is spooled when the delivery worker exhausts its retries, or
// when shutdown drains the queue against an unreachable endpoint. The
// reconciler periodically scans the spool and re-sends old batches with
// their original batch IDs, so the ingestion backend can dedupe a batch
// that was actually received but not acknowledged.
//
// Replay honors the current consent state: opt-out purges the spool
// instead of delivering it, and unknown consent leaves it untouched.
package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/datacloud"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/domain"
)

// ErrAlreadyDelivered is returned by Store.MarkBatchDelivered when the
// batch was delivered by someone else in the meantime.
var ErrAlreadyDelivered = errors.New("batch already delivered")

// SafetyMargin tops the delivery worker's worst-case retry window up to
// a round two minutes. A batch can sit in "undelivered" while the worker
// is still retrying it in-process; the threshold keeps the reconciler
// from replaying such a batch concurrently.
const SafetyMargin = 84 * time.Second

// Store defines the spool and settings reads the reconciler needs.
// GetAnalyticsSettings and GetConsent return zero values, not errors,
// when no row exists yet.
type Store interface {
	GetAnalyticsSettings(ctx context.Context) (domain.AnalyticsConfig, error)
	GetConsent(ctx context.Context) (domain.ConsentState, error)
	GetUndeliveredBatches(ctx context.Context, olderThan time.Time, maxResults int) ([]domain.SpooledBatch, error)
	MarkBatchDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error
	RecordBatchAttempt(ctx context.Context, id uuid.UUID, statusCode int, sendError string) error
	DeleteBatch(ctx context.Context, id uuid.UUID) error
	PurgeUndelivered(ctx context.Context) (int64, error)
	CountUndelivered(ctx context.Context) (int, error)
}

// MetricsSink defines the interface for recording replay metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	ReplayOutcome(outcome string)
	SpooledBatchesUpdate(count int)
}

// Config holds reconciler configuration.
type Config struct {
	// Interval is how often the reconciler runs.
	// Default: 5 minutes.
	Interval time.Duration

	// Threshold is the age after which an undelivered batch is eligible
	// for replay. Must exceed the delivery worker's retry window.
	Threshold time.Duration

	// BatchSize is the maximum number of spooled batches per cycle.
	// Default: 100.
	BatchSize int

	// RequestTimeout bounds each replay POST. Default: 10 seconds.
	RequestTimeout time.Duration
}

// DefaultConfig returns the default reconciler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:       5 * time.Minute,
		Threshold:      datacloud.MaxRetryDuration() + SafetyMargin,
		BatchSize:      100,
		RequestTimeout: 10 * time.Second,
	}
}

// Reconciler scans the spool and replays undelivered batches.
type Reconciler struct {
	config  Config
	store   Store
	sender  datacloud.Sender
	log     logrus.FieldLogger
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time
}

// New creates a new Reconciler.
func New(config Config, store Store, sender datacloud.Sender, log logrus.FieldLogger) *Reconciler {
	return &Reconciler{
		config: config,
		store:  store,
		sender: sender,
		log:    log,
		clock:  time.Now,
	}
}

// WithMetrics attaches a metrics sink.
func (r *Reconciler) WithMetrics(m MetricsSink) *Reconciler {
	r.metrics = m
	return r
}

// Run starts the reconciliation loop. It blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.log.Infof("reconciler: started (interval=%s, threshold=%s, batch=%d)",
		r.config.Interval, r.config.Threshold, r.config.BatchSize)

	// Run immediately on startup, then on ticker
	r.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler: stopped")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

// runCycle executes one reconciliation cycle.
func (r *Reconciler) runCycle(ctx context.Context) {
	r.refreshSpoolGauge(ctx)

	settings, err := r.store.GetAnalyticsSettings(ctx)
	if err != nil {
		// DB error: log and abort cycle. Will retry next interval.
		r.log.Errorf("reconciler: failed to read settings: %v", err)
		return
	}
	if !settings.IsConfigured() {
		r.log.Debug("reconciler: skipping cycle, service not configured")
		return
	}

	consent, err := r.store.GetConsent(ctx)
	if err != nil {
		r.log.Errorf("reconciler: failed to read consent: %v", err)
		return
	}

	switch consent {
	case domain.ConsentOptOut:
		// Opt-out withdraws permission for data already captured but not
		// yet delivered: drop it rather than ship it late.
		purged, err := r.store.PurgeUndelivered(ctx)
		if err != nil {
			r.log.Errorf("reconciler: failed to purge spool after opt-out: %v", err)
			return
		}
		if purged > 0 {
			r.log.Infof("reconciler: purged %d undelivered batches after opt-out", purged)
			for i := int64(0); i < purged; i++ {
				r.reportOutcome("purged")
			}
			r.refreshSpoolGauge(ctx)
		}
		return
	case domain.ConsentOptIn:
		// Proceed with replay.
	default:
		r.log.Debug("reconciler: skipping replay, consent not granted yet")
		return
	}

	now := r.clock().UTC()
	threshold := now.Add(-r.config.Threshold)

	batches, err := r.store.GetUndeliveredBatches(ctx, threshold, r.config.BatchSize)
	if err != nil {
		r.log.Errorf("reconciler: failed to fetch spooled batches: %v", err)
		return
	}

	if len(batches) == 0 {
		// Nothing to do. Silent success.
		return
	}

	r.log.Infof("reconciler: found %d undelivered batches", len(batches))

	delivered := 0
	failed := 0

	for _, batch := range batches {
		// Check context before each send to allow graceful shutdown
		if ctx.Err() != nil {
			r.log.Infof("reconciler: cycle interrupted, processed %d/%d batches", delivered+failed, len(batches))
			return
		}
		if r.replayBatch(ctx, settings, batch, now) {
			delivered++
		} else {
			failed++
		}
	}

	r.log.Infof("reconciler: cycle complete, delivered=%d, failed=%d", delivered, failed)
	r.refreshSpoolGauge(ctx)
}

// replayBatch re-sends one spooled batch. Returns true when the batch
// left the spool (delivered, or dropped as unacceptable).
func (r *Reconciler) replayBatch(ctx context.Context, settings domain.AnalyticsConfig, batch domain.SpooledBatch, now time.Time) bool {
	records := make([]datacloud.EventRecord, 0, len(batch.Events))
	for _, ev := range batch.Events {
		records = append(records, datacloud.NewEventRecord(ev))
	}

	result := r.sender.Send(ctx, datacloud.IngestRequest{
		URL:   datacloud.IngestURL(settings.Endpoint),
		AppID: settings.AppID,
		// Original batch ID: lets the backend dedupe a batch that was
		// received but never acknowledged.
		RequestID: batch.ID.String(),
		Timeout:   r.config.RequestTimeout,
		Payload: datacloud.IngestPayload{
			Events: records,
			SentAt: now.Format(time.RFC3339),
		},
	})

	if result.IsSuccess() {
		if err := r.store.MarkBatchDelivered(ctx, batch.ID, r.clock().UTC()); err != nil {
			if errors.Is(err, ErrAlreadyDelivered) {
				r.log.Debugf("reconciler: batch=%s already delivered elsewhere", batch.ID)
			} else {
				r.log.Errorf("reconciler: batch=%s delivered but not marked: %v", batch.ID, err)
			}
		}
		r.log.Infof("reconciler: replayed batch=%s events=%d (age=%s)",
			batch.ID, len(batch.Events), now.Sub(batch.SpooledAt).Round(time.Second))
		r.reportOutcome("delivered")
		return true
	}

	if !result.IsRetryable() {
		// The endpoint refuses this batch outright; keeping it would jam
		// the spool forever.
		if err := r.store.DeleteBatch(ctx, batch.ID); err != nil {
			r.log.Errorf("reconciler: batch=%s rejected but not deleted: %v", batch.ID, err)
		}
		r.log.Warnf("reconciler: batch=%s rejected status=%d, dropped %d events",
			batch.ID, result.StatusCode, len(batch.Events))
		r.reportOutcome("dropped")
		return true
	}

	sendErr := ""
	if result.Error != nil {
		sendErr = result.Error.Error()
	}
	if err := r.store.RecordBatchAttempt(ctx, batch.ID, result.StatusCode, sendErr); err != nil {
		r.log.Errorf("reconciler: batch=%s attempt not recorded: %v", batch.ID, err)
	}
	r.log.Debugf("reconciler: batch=%s replay failed status=%d err=%v, will retry next cycle",
		batch.ID, result.StatusCode, result.Error)
	r.reportOutcome("failed")
	return false
}

func (r *Reconciler) reportOutcome(outcome string) {
	if r.metrics != nil {
		r.metrics.ReplayOutcome(outcome)
	}
}

func (r *Reconciler) refreshSpoolGauge(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	count, err := r.store.CountUndelivered(ctx)
	if err != nil {
		r.log.Debugf("reconciler: failed to count spool: %v", err)
		return
	}
	r.metrics.SpooledBatchesUpdate(count)
}
