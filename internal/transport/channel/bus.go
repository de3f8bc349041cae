package channel

import (
	"context"
	"errors"
	"time"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/domain"
)

// DefaultEmitTimeout bounds how long Emit blocks when the buffer is full
// before giving up with ErrBufferFull.
const DefaultEmitTimeout = 5 * time.Second

// ErrBufferFull is returned when an emit could not be buffered within the
// emit timeout. Callers treat this as a dropped signal; consumers re-read
// authoritative state, so a lost signal delays but never corrupts.
var ErrBufferFull = errors.New("event bus buffer full")

// MetricsSink is the subset of metrics the bus reports.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	BufferSaturationUpdate(saturation float64)
	EmitError()
}

// EventBus carries settings-change notifications from writers (the admin
// API) to the configuration manager.
type EventBus struct {
	ch          chan domain.CredentialsUpdated
	emitTimeout time.Duration
	metrics     MetricsSink
}

type Option func(*EventBus)

// WithEmitTimeout overrides DefaultEmitTimeout.
func WithEmitTimeout(d time.Duration) Option {
	return func(b *EventBus) {
		b.emitTimeout = d
	}
}

// WithMetrics attaches a metrics sink. BufferCapacitySet is reported
// immediately.
func WithMetrics(m MetricsSink) Option {
	return func(b *EventBus) {
		b.metrics = m
	}
}

func NewEventBus(buffer int, opts ...Option) *EventBus {
	b := &EventBus{
		ch:          make(chan domain.CredentialsUpdated, buffer),
		emitTimeout: DefaultEmitTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics != nil {
		b.metrics.BufferCapacitySet(buffer)
	}
	return b
}

// Emit publishes an event, blocking up to the emit timeout when the
// buffer is full. A cancelled context wins over the timeout.
func (b *EventBus) Emit(ctx context.Context, event domain.CredentialsUpdated) error {
	timer := time.NewTimer(b.emitTimeout)
	defer timer.Stop()

	select {
	case b.ch <- event:
		b.reportDepth()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ErrBufferFull
	}
}

func (b *EventBus) Channel() <-chan domain.CredentialsUpdated {
	return b.ch
}

func (b *EventBus) reportDepth() {
	if b.metrics == nil {
		return
	}
	size := len(b.ch)
	b.metrics.BufferSizeUpdate(size)
	if c := cap(b.ch); c > 0 {
		b.metrics.BufferSaturationUpdate(float64(size) / float64(c))
	}
}
