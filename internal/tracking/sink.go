package tracking

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/domain"
)

// EventSink receives a local copy of every tracked event. Sinks are
// best-effort: they handle their own errors internally and never
// affect tracking.
type EventSink interface {
	Write(ctx context.Context, name string, attributes map[string]string)
}

// LogSink writes every event to the injected logger.
type LogSink struct {
	log logrus.FieldLogger
}

func NewLogSink(log logrus.FieldLogger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Write(ctx context.Context, name string, attributes map[string]string) {
	s.log.WithFields(logrus.Fields{
		"event":      name,
		"attributes": attributes,
	}).Info("event recorded")
}

// ViewCounter is the slice of the analytics counter the counter sink
// feeds.
type ViewCounter interface {
	RecordScreenView(ctx context.Context, screenName string, at time.Time) error
}

// CounterSink feeds screen views into the view counter. Events other
// than screen views pass through uncounted.
type CounterSink struct {
	counter ViewCounter
	log     logrus.FieldLogger
	clock   func() time.Time
}

func NewCounterSink(counter ViewCounter, log logrus.FieldLogger) *CounterSink {
	return &CounterSink{
		counter: counter,
		log:     log,
		clock:   time.Now,
	}
}

func (s *CounterSink) Write(ctx context.Context, name string, attributes map[string]string) {
	if name != domain.EventNameScreenView {
		return
	}
	screen := attributes[domain.AttrScreenName]
	if screen == "" {
		return
	}
	if err := s.counter.RecordScreenView(ctx, screen, s.clock()); err != nil {
		s.log.Warnf("tracking: counter sink: %v", err)
	}
}
