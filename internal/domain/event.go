package domain

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	EventNameScreenView        = "ScreenView"
	EventNameAppLaunch         = "AppLaunch"
	EventNameEngagementSummary = "EngagementSummary"
)

const (
	AttrScreenName = "screen_name"
	AttrAppName    = "app_name"
	AttrAppVersion = "app_version"
)

// maxScreenNameBytes bounds attribute values before they reach the
// ingestion API, which rejects oversized payloads with a 400.
const maxScreenNameBytes = 200

var (
	ErrEmptyScreenName   = errors.New("screen name is empty")
	ErrScreenNameNotUTF8 = errors.New("screen name is not valid UTF-8")
	ErrScreenNameTooLong = errors.New("screen name exceeds 200 bytes")
)

// Event is a single engagement fact bound for the ingestion API.
// Events are built once, submitted once, and never mutated.
type Event struct {
	ID         uuid.UUID
	Name       string
	Attributes map[string]string
	OccurredAt time.Time
}

// NewScreenViewEvent builds the event recorded when a screen becomes
// visible. The screen name is the only attribute.
func NewScreenViewEvent(screenName string, now time.Time) (Event, error) {
	if err := validateScreenName(screenName); err != nil {
		return Event{}, err
	}
	return Event{
		ID:         uuid.New(),
		Name:       EventNameScreenView,
		Attributes: map[string]string{AttrScreenName: screenName},
		OccurredAt: now.UTC(),
	}, nil
}

// NewAppLaunchEvent builds the event recorded once per process start.
func NewAppLaunchEvent(appName, appVersion string, now time.Time) Event {
	return Event{
		ID:   uuid.New(),
		Name: EventNameAppLaunch,
		Attributes: map[string]string{
			AttrAppName:    appName,
			AttrAppVersion: appVersion,
		},
		OccurredAt: now.UTC(),
	}
}

// NewEngagementSummaryEvent builds the daily rollup event. Counts are
// rendered as attributes keyed by screen name.
func NewEngagementSummaryEvent(day time.Time, counts map[string]int64, now time.Time) Event {
	attrs := make(map[string]string, len(counts)+1)
	attrs["day"] = day.UTC().Format("2006-01-02")
	for screen, n := range counts {
		attrs["views."+screen] = strconv.FormatInt(n, 10)
	}
	return Event{
		ID:         uuid.New(),
		Name:       EventNameEngagementSummary,
		Attributes: attrs,
		OccurredAt: now.UTC(),
	}
}

func validateScreenName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyScreenName
	}
	if !utf8.ValidString(name) {
		return ErrScreenNameNotUTF8
	}
	if len(name) > maxScreenNameBytes {
		return ErrScreenNameTooLong
	}
	return nil
}
