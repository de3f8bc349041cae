// Package report runs the daily engagement rollup: it aggregates the
// previous day's screen view counters and submits a single summary
// event through the ingestion client. The runner is started only on
// the replica holding leadership.
package report

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/datacloud"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/domain"
)

// maxCatchup bounds how many missed due times one tick may replay
// after a stall or clock jump.
const maxCatchup = 30

// ViewSource is the slice of the analytics counter the report reads.
type ViewSource interface {
	DayCounts(ctx context.Context, day time.Time) (map[string]int64, error)
}

// CronSchedule yields due times for the report.
type CronSchedule interface {
	Next(after time.Time) time.Time
}

// SpoolJanitor reaps delivered spool rows during daily housekeeping.
type SpoolJanitor interface {
	PurgeDelivered(ctx context.Context, olderThan time.Time) (int64, error)
}

// Config holds report runner configuration.
type Config struct {
	Schedule        string
	Timezone        string
	TickInterval    time.Duration
	RetainDelivered time.Duration
}

// DefaultConfig returns the default report configuration.
func DefaultConfig() Config {
	return Config{
		Schedule:        "0 6 * * *",
		Timezone:        "UTC",
		TickInterval:    30 * time.Second,
		RetainDelivered: 7 * 24 * time.Hour,
	}
}

// Runner fires the engagement summary on its cron schedule.
type Runner struct {
	config   Config
	schedule CronSchedule
	views    ViewSource
	client   datacloud.Client
	janitor  SpoolJanitor // optional, nil = disabled
	log      logrus.FieldLogger
	clock    func() time.Time
	lastTick time.Time
}

func New(config Config, schedule CronSchedule, views ViewSource, client datacloud.Client, log logrus.FieldLogger) *Runner {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultConfig().TickInterval
	}
	if config.RetainDelivered <= 0 {
		config.RetainDelivered = DefaultConfig().RetainDelivered
	}
	return &Runner{
		config:   config,
		schedule: schedule,
		views:    views,
		client:   client,
		log:      log,
		clock:    time.Now,
	}
}

// WithJanitor attaches spool housekeeping to the daily run.
func (r *Runner) WithJanitor(janitor SpoolJanitor) *Runner {
	r.janitor = janitor
	return r
}

// Run watches the schedule until the context is cancelled. Due times
// missed while the process was down are not replayed: the report
// covers a rolling window, not an exact ledger.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.TickInterval)
	defer ticker.Stop()

	r.log.Infof("report: started, schedule=%q tz=%s", r.config.Schedule, r.config.Timezone)
	r.lastTick = r.clock().UTC()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("report: stopped")
			return
		case <-ticker.C:
			r.runTick(ctx)
		}
	}
}

// runTick fires every due time between the last tick and now.
func (r *Runner) runTick(ctx context.Context) {
	now := r.clock().UTC()

	t := r.schedule.Next(r.lastTick)
	for i := 0; i < maxCatchup && !t.After(now); i++ {
		r.runReport(ctx, t.UTC())
		r.runHousekeeping(ctx, now)
		t = r.schedule.Next(t)
	}

	r.lastTick = now
}

// runReport aggregates the day before the scheduled time and submits
// one summary event. Summaries describe the device owner's behavior,
// so they ride the same consent gate as screen views.
func (r *Runner) runReport(ctx context.Context, scheduledAt time.Time) {
	consent := r.client.Consent()
	if !consent.Granted() {
		r.log.Debugf("report: skipped, consent=%s", consent)
		return
	}

	day := scheduledAt.AddDate(0, 0, -1)

	counts, err := r.views.DayCounts(ctx, day)
	if err != nil {
		r.log.Errorf("report: failed to read day counts: %v", err)
		return
	}
	if len(counts) == 0 {
		r.log.Debugf("report: no engagement recorded for %s, skipping", day.Format("2006-01-02"))
		return
	}

	ev := domain.NewEngagementSummaryEvent(day, counts, r.clock())
	r.client.Track(ctx, ev)
	r.log.Infof("report: submitted engagement summary for %s (%d screens)", day.Format("2006-01-02"), len(counts))
}

// runHousekeeping reaps delivered spool rows past retention. Runs
// regardless of the report outcome: purging stored data never needs
// consent.
func (r *Runner) runHousekeeping(ctx context.Context, now time.Time) {
	if r.janitor == nil {
		return
	}
	purged, err := r.janitor.PurgeDelivered(ctx, now.Add(-r.config.RetainDelivered))
	if err != nil {
		r.log.Errorf("report: spool housekeeping failed: %v", err)
		return
	}
	if purged > 0 {
		r.log.Infof("report: purged %d delivered spool batches", purged)
	}
}
