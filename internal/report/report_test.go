package report

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/datacloud"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/domain"
)

// mockSchedule fires at fixed times.
type mockSchedule struct {
	fireTimes []time.Time
}

func (s *mockSchedule) Next(after time.Time) time.Time {
	for _, t := range s.fireTimes {
		if t.After(after) {
			return t
		}
	}
	// Return far future if no more fire times
	return after.Add(24 * time.Hour)
}

// mockViews serves day counts keyed by ISO date.
type mockViews struct {
	mu     sync.Mutex
	counts map[string]map[string]int64
	err    error
	reads  int
}

func newMockViews() *mockViews {
	return &mockViews{counts: make(map[string]map[string]int64)}
}

func (v *mockViews) DayCounts(ctx context.Context, day time.Time) (map[string]int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reads++
	if v.err != nil {
		return nil, v.err
	}
	return v.counts[day.UTC().Format("2006-01-02")], nil
}

func (v *mockViews) setDay(day string, counts map[string]int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counts[day] = counts
}

func (v *mockViews) readCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reads
}

// mockClient records tracked events behind a fixed consent state.
type mockClient struct {
	mu      sync.Mutex
	consent domain.ConsentState
	events  []domain.Event
}

func (c *mockClient) Configure(cfg domain.AnalyticsConfig) {}

func (c *mockClient) Consent() domain.ConsentState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consent
}

func (c *mockClient) SetConsent(state domain.ConsentState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consent = state
}

func (c *mockClient) Track(ctx context.Context, ev domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *mockClient) TrackAppLaunch(ctx context.Context, appName, appVersion string) {}

func (c *mockClient) tracked() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Event, len(c.events))
	copy(out, c.events)
	return out
}

// mockJanitor records purge calls.
type mockJanitor struct {
	mu     sync.Mutex
	calls  []time.Time
	purged int64
	err    error
}

func (j *mockJanitor) PurgeDelivered(ctx context.Context, olderThan time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, olderThan)
	return j.purged, j.err
}

func (j *mockJanitor) callTimes() []time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]time.Time, len(j.calls))
	copy(out, j.calls)
	return out
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testRunner(schedule CronSchedule, views ViewSource, client datacloud.Client) *Runner {
	return New(DefaultConfig(), schedule, views, client, quietLogger())
}

// TestRunner_SubmitsSummaryAfterDueTime verifies that a tick past the
// fire time submits one summary covering the previous day.
func TestRunner_SubmitsSummaryAfterDueTime(t *testing.T) {
	fireTime := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)

	views := newMockViews()
	views.setDay("2026-08-24", map[string]int64{"Home": 12, "Checkout": 3})

	client := &mockClient{consent: domain.ConsentOptIn}
	runner := testRunner(&mockSchedule{fireTimes: []time.Time{fireTime}}, views, client)

	now := fireTime.Add(30 * time.Second)
	runner.clock = func() time.Time { return now }
	runner.lastTick = fireTime.Add(-time.Minute)

	runner.runTick(context.Background())

	events := client.tracked()
	if len(events) != 1 {
		t.Fatalf("expected 1 summary event, got %d", len(events))
	}
	ev := events[0]
	if ev.Name != domain.EventNameEngagementSummary {
		t.Errorf("expected %s event, got %s", domain.EventNameEngagementSummary, ev.Name)
	}
	if ev.Attributes["day"] != "2026-08-24" {
		t.Errorf("expected summary for 2026-08-24, got %q", ev.Attributes["day"])
	}
	if ev.Attributes["views.Home"] != "12" {
		t.Errorf("expected views.Home=12, got %q", ev.Attributes["views.Home"])
	}
	if ev.Attributes["views.Checkout"] != "3" {
		t.Errorf("expected views.Checkout=3, got %q", ev.Attributes["views.Checkout"])
	}
}

// TestRunner_NoSubmitBeforeDueTime verifies that a tick before the fire
// time submits nothing.
func TestRunner_NoSubmitBeforeDueTime(t *testing.T) {
	fireTime := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)

	views := newMockViews()
	views.setDay("2026-08-24", map[string]int64{"Home": 12})

	client := &mockClient{consent: domain.ConsentOptIn}
	runner := testRunner(&mockSchedule{fireTimes: []time.Time{fireTime}}, views, client)

	runner.clock = func() time.Time { return fireTime.Add(-time.Hour) }
	runner.lastTick = fireTime.Add(-2 * time.Hour)

	runner.runTick(context.Background())

	if got := len(client.tracked()); got != 0 {
		t.Errorf("expected no events before due time, got %d", got)
	}
}

// TestRunner_ConsentGate verifies that the summary is suppressed before
// any counter read unless the owner opted in.
func TestRunner_ConsentGate(t *testing.T) {
	fireTime := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)

	for _, state := range []domain.ConsentState{domain.ConsentUnknown, domain.ConsentOptOut} {
		t.Run(string(state), func(t *testing.T) {
			views := newMockViews()
			views.setDay("2026-08-24", map[string]int64{"Home": 12})

			client := &mockClient{consent: state}
			runner := testRunner(&mockSchedule{fireTimes: []time.Time{fireTime}}, views, client)

			runner.clock = func() time.Time { return fireTime.Add(time.Minute) }
			runner.lastTick = fireTime.Add(-time.Minute)

			runner.runTick(context.Background())

			if got := len(client.tracked()); got != 0 {
				t.Errorf("expected no events under consent=%s, got %d", state, got)
			}
			if views.readCount() != 0 {
				t.Errorf("expected no counter reads under consent=%s, got %d", state, views.readCount())
			}
		})
	}
}

// TestRunner_EmptyDaySkipped verifies that a day with no recorded views
// produces no summary event.
func TestRunner_EmptyDaySkipped(t *testing.T) {
	fireTime := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)

	views := newMockViews()

	client := &mockClient{consent: domain.ConsentOptIn}
	runner := testRunner(&mockSchedule{fireTimes: []time.Time{fireTime}}, views, client)

	runner.clock = func() time.Time { return fireTime.Add(time.Minute) }
	runner.lastTick = fireTime.Add(-time.Minute)

	runner.runTick(context.Background())

	if got := len(client.tracked()); got != 0 {
		t.Errorf("expected no events for an empty day, got %d", got)
	}
}

// TestRunner_CounterErrorSkipsRun verifies that a counter read failure
// drops the run without submitting anything.
func TestRunner_CounterErrorSkipsRun(t *testing.T) {
	fireTime := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)

	views := newMockViews()
	views.err = errors.New("redis: connection refused")

	client := &mockClient{consent: domain.ConsentOptIn}
	runner := testRunner(&mockSchedule{fireTimes: []time.Time{fireTime}}, views, client)

	runner.clock = func() time.Time { return fireTime.Add(time.Minute) }
	runner.lastTick = fireTime.Add(-time.Minute)

	runner.runTick(context.Background())

	if got := len(client.tracked()); got != 0 {
		t.Errorf("expected no events after counter failure, got %d", got)
	}
}

// TestRunner_CatchupCoversEachMissedDay verifies that a stalled runner
// replays each missed due time with its own day.
func TestRunner_CatchupCoversEachMissedDay(t *testing.T) {
	fire1 := time.Date(2026, 8, 23, 6, 0, 0, 0, time.UTC)
	fire2 := time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC)
	fire3 := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)

	views := newMockViews()
	views.setDay("2026-08-22", map[string]int64{"Home": 1})
	views.setDay("2026-08-23", map[string]int64{"Home": 2})
	views.setDay("2026-08-24", map[string]int64{"Home": 3})

	client := &mockClient{consent: domain.ConsentOptIn}
	runner := testRunner(&mockSchedule{fireTimes: []time.Time{fire1, fire2, fire3}}, views, client)

	runner.clock = func() time.Time { return fire3.Add(time.Minute) }
	runner.lastTick = fire1.Add(-time.Minute)

	runner.runTick(context.Background())

	events := client.tracked()
	if len(events) != 3 {
		t.Fatalf("expected 3 summaries after catch-up, got %d", len(events))
	}
	wantDays := []string{"2026-08-22", "2026-08-23", "2026-08-24"}
	for i, want := range wantDays {
		if events[i].Attributes["day"] != want {
			t.Errorf("summary %d: expected day %s, got %q", i, want, events[i].Attributes["day"])
		}
	}
}

// TestRunner_JanitorPurgesPastRetention verifies that housekeeping
// reaps delivered batches older than the retention window.
func TestRunner_JanitorPurgesPastRetention(t *testing.T) {
	fireTime := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)

	views := newMockViews()
	views.setDay("2026-08-24", map[string]int64{"Home": 12})

	client := &mockClient{consent: domain.ConsentOptIn}
	janitor := &mockJanitor{purged: 4}

	runner := testRunner(&mockSchedule{fireTimes: []time.Time{fireTime}}, views, client).WithJanitor(janitor)

	now := fireTime.Add(time.Minute)
	runner.clock = func() time.Time { return now }
	runner.lastTick = fireTime.Add(-time.Minute)

	runner.runTick(context.Background())

	calls := janitor.callTimes()
	if len(calls) != 1 {
		t.Fatalf("expected 1 purge call, got %d", len(calls))
	}
	want := now.Add(-DefaultConfig().RetainDelivered)
	if !calls[0].Equal(want) {
		t.Errorf("expected purge cutoff %v, got %v", want, calls[0])
	}
}

// TestRunner_JanitorRunsDespiteConsentBlock verifies that spool
// housekeeping does not depend on tracking consent.
func TestRunner_JanitorRunsDespiteConsentBlock(t *testing.T) {
	fireTime := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)

	client := &mockClient{consent: domain.ConsentOptOut}
	janitor := &mockJanitor{}

	runner := testRunner(&mockSchedule{fireTimes: []time.Time{fireTime}}, newMockViews(), client).WithJanitor(janitor)

	runner.clock = func() time.Time { return fireTime.Add(time.Minute) }
	runner.lastTick = fireTime.Add(-time.Minute)

	runner.runTick(context.Background())

	if got := len(janitor.callTimes()); got != 1 {
		t.Errorf("expected housekeeping to run regardless of consent, got %d calls", got)
	}
	if got := len(client.tracked()); got != 0 {
		t.Errorf("expected no events under opt-out, got %d", got)
	}
}

// TestDefaultConfig verifies the shipped schedule and retention.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Schedule != "0 6 * * *" {
		t.Errorf("expected daily 06:00 schedule, got %q", cfg.Schedule)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("expected UTC timezone, got %q", cfg.Timezone)
	}
	if cfg.RetainDelivered != 7*24*time.Hour {
		t.Errorf("expected 7 day retention, got %v", cfg.RetainDelivered)
	}
}

// The recording double must track the real client interface.
var _ datacloud.Client = (*mockClient)(nil)
