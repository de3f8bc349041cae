package tracking

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/datacloud"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/domain"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/testutil"
)

type sinkWrite struct {
	name       string
	attributes map[string]string
}

// mockSink records every write it receives.
type mockSink struct {
	mu     sync.Mutex
	writes []sinkWrite
}

func (s *mockSink) Write(ctx context.Context, name string, attributes map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, sinkWrite{name: name, attributes: attributes})
}

func (s *mockSink) all() []sinkWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkWrite(nil), s.writes...)
}

func optInClient() *mockClient {
	client := newMockClient()
	client.SetConsent(domain.ConsentOptIn)
	return client
}

// TestTracker_SuppressedWithoutOptIn verifies no event reaches Track
// unless consent is an explicit opt-in.
func TestTracker_SuppressedWithoutOptIn(t *testing.T) {
	tests := []struct {
		name    string
		consent domain.ConsentState
	}{
		{"unknown", domain.ConsentUnknown},
		{"opt_out", domain.ConsentOptOut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newMockClient()
			client.SetConsent(tt.consent)
			metrics := newMockTrackingMetrics()
			log, _ := testutil.TestLogger(t)

			tr := NewTracker(client, log).WithMetrics(metrics)
			tr.TrackScreen(context.Background(), "Home")

			if n := len(client.tracks()); n != 0 {
				t.Errorf("track calls = %d, want 0", n)
			}
			if metrics.suppressedCount("consent_denied") != 1 {
				t.Errorf("consent_denied suppressions = %d, want 1", metrics.suppressedCount("consent_denied"))
			}
		})
	}
}

// TestTracker_TracksWhenOptIn verifies the happy path: exactly one
// Track call with the screen view shape, and the identical pair
// forwarded to the sink.
func TestTracker_TracksWhenOptIn(t *testing.T) {
	client := optInClient()
	metrics := newMockTrackingMetrics()
	sink := &mockSink{}
	log, _ := testutil.TestLogger(t)

	tr := NewTracker(client, log).WithMetrics(metrics).WithSink(sink)
	tr.TrackScreen(context.Background(), "Home")

	tracks := client.tracks()
	if len(tracks) != 1 {
		t.Fatalf("track calls = %d, want 1", len(tracks))
	}
	ev := tracks[0]
	if ev.Name != "ScreenView" {
		t.Errorf("event name = %q, want ScreenView", ev.Name)
	}
	if got := ev.Attributes["screen_name"]; got != "Home" {
		t.Errorf("screen_name = %q, want Home", got)
	}
	if len(ev.Attributes) != 1 {
		t.Errorf("attributes = %v, want only screen_name", ev.Attributes)
	}

	writes := sink.all()
	if len(writes) != 1 {
		t.Fatalf("sink writes = %d, want 1", len(writes))
	}
	if writes[0].name != ev.Name {
		t.Errorf("sink name = %q, want %q", writes[0].name, ev.Name)
	}
	if writes[0].attributes["screen_name"] != "Home" {
		t.Errorf("sink attributes = %v, want screen_name=Home", writes[0].attributes)
	}

	if metrics.tracked != 1 {
		t.Errorf("tracked counter = %d, want 1", metrics.tracked)
	}
}

// TestTracker_ConstructionFailures verifies invalid screen names are
// suppressed before Track and never reach the sinks.
func TestTracker_ConstructionFailures(t *testing.T) {
	tests := []struct {
		name       string
		screenName string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"invalid_utf8", "menu\xff\xfe"},
		{"over_long", strings.Repeat("x", 201)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := optInClient()
			metrics := newMockTrackingMetrics()
			sink := &mockSink{}
			log, _ := testutil.TestLogger(t)

			tr := NewTracker(client, log).WithMetrics(metrics).WithSink(sink)
			tr.TrackScreen(context.Background(), tt.screenName)

			if n := len(client.tracks()); n != 0 {
				t.Errorf("track calls = %d, want 0", n)
			}
			if n := len(sink.all()); n != 0 {
				t.Errorf("sink writes = %d, want 0", n)
			}
			if metrics.suppressedCount("construction_failed") != 1 {
				t.Errorf("construction_failed suppressions = %d, want 1", metrics.suppressedCount("construction_failed"))
			}
		})
	}
}

// TestTracker_NoSinkWriteWhenSuppressed verifies suppressed events
// leave no trace in local sinks.
func TestTracker_NoSinkWriteWhenSuppressed(t *testing.T) {
	client := newMockClient()
	client.SetConsent(domain.ConsentOptOut)
	sink := &mockSink{}
	log, _ := testutil.TestLogger(t)

	tr := NewTracker(client, log).WithSink(sink)
	tr.TrackScreen(context.Background(), "Home")

	if n := len(sink.all()); n != 0 {
		t.Errorf("sink writes = %d, want 0", n)
	}
}

// TestTracker_MultipleSinksAllReceive verifies every registered sink
// gets a copy.
func TestTracker_MultipleSinksAllReceive(t *testing.T) {
	client := optInClient()
	first := &mockSink{}
	second := &mockSink{}
	log, _ := testutil.TestLogger(t)

	tr := NewTracker(client, log).WithSink(first).WithSink(second)
	tr.TrackScreen(context.Background(), "Checkout")

	if n := len(first.all()); n != 1 {
		t.Errorf("first sink writes = %d, want 1", n)
	}
	if n := len(second.all()); n != 1 {
		t.Errorf("second sink writes = %d, want 1", n)
	}
}

// TestTracker_EventTimestampFromClock verifies the event carries the
// tracker's clock time in UTC.
func TestTracker_EventTimestampFromClock(t *testing.T) {
	client := optInClient()
	log, _ := testutil.TestLogger(t)
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	tr := NewTracker(client, log)
	tr.clock = func() time.Time { return now }
	tr.TrackScreen(context.Background(), "Home")

	tracks := client.tracks()
	if len(tracks) != 1 {
		t.Fatalf("track calls = %d, want 1", len(tracks))
	}
	if !tracks[0].OccurredAt.Equal(now) {
		t.Errorf("OccurredAt = %v, want %v", tracks[0].OccurredAt, now)
	}
}

// The recording double must track the real client interface.
var _ datacloud.Client = (*mockClient)(nil)
