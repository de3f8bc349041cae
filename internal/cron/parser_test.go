package cron

import (
	"testing"
	"time"
)

// TestParse_AcceptsCrontabSyntax covers the expressions operators
// realistically put in REPORT_SCHEDULE.
func TestParse_AcceptsCrontabSyntax(t *testing.T) {
	exprs := []string{
		"0 6 * * *",   // the default: daily 06:00
		"30 4 * * *",  // daily, off the hour
		"0 6 * * 1-5", // weekdays only
		"0 */6 * * *", // every six hours
		"15 8 1 * *",  // first of the month
	}

	for _, expr := range exprs {
		if _, err := Parse(expr, "UTC"); err != nil {
			t.Errorf("Parse(%q, UTC) = %v, want nil", expr, err)
		}
	}
}

// TestParse_RejectsMalformedExpressions verifies validation catches
// the expressions config.Validate must refuse.
func TestParse_RejectsMalformedExpressions(t *testing.T) {
	exprs := []string{
		"",              // empty
		"0 6 * *",       // four fields
		"0 0 6 * * *",   // six fields (seconds not supported)
		"@daily",        // descriptors not supported
		"61 6 * * *",    // minute out of range
		"0 24 * * *",    // hour out of range
		"six am please", // nonsense
	}

	for _, expr := range exprs {
		if _, err := Parse(expr, "UTC"); err == nil {
			t.Errorf("Parse(%q, UTC) = nil, want error", expr)
		}
	}
}

func TestParse_RejectsUnknownTimezone(t *testing.T) {
	if _, err := Parse("0 6 * * *", "Mars/Olympus_Mons"); err == nil {
		t.Error("Parse with unknown timezone should fail")
	}
}

func TestParse_EmptyTimezoneIsUTC(t *testing.T) {
	sched, err := Parse("0 6 * * *", "")
	if err != nil {
		t.Fatalf("Parse with empty timezone: %v", err)
	}

	after := time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC)
	next := sched.Next(after)
	want := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", after, next, want)
	}
}

// TestSchedule_NextDailyBoundary verifies the due time rolls to the
// next day once the current day's slot has passed.
func TestSchedule_NextDailyBoundary(t *testing.T) {
	sched, err := Parse("0 6 * * *", "UTC")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	before := time.Date(2026, 8, 25, 5, 59, 0, 0, time.UTC)
	if got, want := sched.Next(before), time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("Next before the slot = %v, want %v", got, want)
	}

	at := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)
	if got, want := sched.Next(at), time.Date(2026, 8, 26, 6, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("Next at the slot = %v, want strictly-after %v", got, want)
	}
}

// TestSchedule_TimezoneAnchoring verifies "06:00" means local wall
// clock: the same expression in two zones fires at different instants.
func TestSchedule_TimezoneAnchoring(t *testing.T) {
	tokyo, err := Parse("0 6 * * *", "Asia/Tokyo")
	if err != nil {
		t.Fatalf("Parse Tokyo: %v", err)
	}
	newYork, err := Parse("0 6 * * *", "America/New_York")
	if err != nil {
		t.Fatalf("Parse New York: %v", err)
	}

	// At this instant it is already 09:00 in Tokyo, so Tokyo's 06:00
	// slot rolls to June 16 (21:00 UTC on the 15th). New York is still
	// on June 14 evening and fires June 15 06:00 EDT (10:00 UTC).
	ref := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	nextTokyo := tokyo.Next(ref)
	nextNY := newYork.Next(ref)

	if nextTokyo.Equal(nextNY) {
		t.Error("same expression in different zones should yield different instants")
	}
	if !nextNY.Before(nextTokyo) {
		t.Errorf("New York 06:00 (%v) should come before Tokyo's rolled-over 06:00 (%v)", nextNY.UTC(), nextTokyo.UTC())
	}
}

// TestSchedule_DSTSpringForward verifies a slot inside the skipped
// hour is not scheduled at a nonexistent wall time.
func TestSchedule_DSTSpringForward(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	// 2026-03-08: US clocks jump from 02:00 to 03:00; 02:30 does not
	// exist that day.
	sched, err := Parse("30 2 * * *", "America/New_York")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	before := time.Date(2026, 3, 8, 1, 0, 0, 0, loc)
	next := sched.Next(before)

	missing := time.Date(2026, 3, 8, 2, 30, 0, 0, loc)
	if next.Equal(missing) {
		t.Error("scheduled into the skipped DST hour")
	}
	if !next.After(before) {
		t.Errorf("Next(%v) = %v, want a later instant", before, next)
	}
}
