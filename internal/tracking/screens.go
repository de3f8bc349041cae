package tracking

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/datacloud"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/domain"
)

// Tracker is the screen tracking emitter. Every outcome is terminal
// and silent: suppression and construction failures surface as debug
// logs and counters, never as errors to the caller.
type Tracker struct {
	client  datacloud.Client
	log     logrus.FieldLogger
	sinks   []EventSink
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time
}

func NewTracker(client datacloud.Client, log logrus.FieldLogger) *Tracker {
	return &Tracker{
		client: client,
		log:    log,
		clock:  time.Now,
	}
}

// WithSink registers a local sink. Sinks receive a copy of every event
// that reaches the ingestion client.
func (t *Tracker) WithSink(sink EventSink) *Tracker {
	t.sinks = append(t.sinks, sink)
	return t
}

// WithMetrics attaches a metrics sink to the tracker.
func (t *Tracker) WithMetrics(sink MetricsSink) *Tracker {
	t.metrics = sink
	return t
}

// TrackScreen records one screen appearance. At most one submission
// attempt per invocation: no retries, no queuing at this layer.
func (t *Tracker) TrackScreen(ctx context.Context, screenName string) {
	consent := t.client.Consent()
	if !consent.Granted() {
		t.log.Debugf("tracking: screen view suppressed, consent=%s", consent)
		t.reportSuppressed("consent_denied")
		return
	}

	ev, err := domain.NewScreenViewEvent(screenName, t.clock())
	if err != nil {
		t.log.Debugf("tracking: screen view construction failed: %v", err)
		t.reportSuppressed("construction_failed")
		return
	}

	t.client.Track(ctx, ev)
	if t.metrics != nil {
		t.metrics.ScreenViewTracked()
	}

	// Side copy to local sinks, independent of delivery outcome.
	for _, sink := range t.sinks {
		sink.Write(ctx, ev.Name, ev.Attributes)
	}
}

func (t *Tracker) reportSuppressed(reason string) {
	if t.metrics != nil {
		t.metrics.ScreenViewSuppressed(reason)
	}
}
