// Package cron validates and materializes the engagement report
// schedule. REPORT_SCHEDULE is a classic five-field crontab line
// anchored to REPORT_TIMEZONE; this wraps robfig/cron so nothing else
// in the service touches the library's types.
package cron

import (
	"fmt"
	"time"

	robfig "github.com/robfig/cron/v3"
)

// fieldSet is minute, hour, day-of-month, month, day-of-week. No
// seconds field and no @daily descriptors; the schedule is documented
// as plain crontab syntax.
const fieldSet = robfig.Minute | robfig.Hour | robfig.Dom | robfig.Month | robfig.Dow

// Schedule yields successive due times, strictly after the given
// instant, computed in the schedule's own timezone.
type Schedule interface {
	Next(after time.Time) time.Time
}

// Parse validates expression against five-field crontab syntax and
// binds it to the named timezone. The empty timezone is UTC.
func Parse(expression, timezone string) (Schedule, error) {
	spec, err := robfig.NewParser(fieldSet).Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expression, err)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}

	return &zonedSchedule{spec: spec, loc: loc}, nil
}

// zonedSchedule evaluates the cron spec in its bound location, so
// "0 6 * * *" means 06:00 wall clock in that zone, not 06:00 UTC.
type zonedSchedule struct {
	spec robfig.Schedule
	loc  *time.Location
}

func (s *zonedSchedule) Next(after time.Time) time.Time {
	return s.spec.Next(after.In(s.loc))
}
