// Package schedule resolves per-provider collection schedules: five-field
// cron expressions evaluated in a named timezone, plus a small set of named
// patterns ("monday 23:00", "daily 06:00") for common cases.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidExpression is returned when an expression or timezone cannot be
// parsed. Reported to configuration, never retried.
var ErrInvalidExpression = errors.New("invalid schedule expression")

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Schedule is a parsed, timezone-aware schedule. Pure value; safe for
// concurrent use.
type Schedule struct {
	Expression string
	Timezone   string

	spec cron.Schedule
	loc  *time.Location
}

var weekdays = map[string]int{
	"sunday":    0,
	"monday":    1,
	"tuesday":   2,
	"wednesday": 3,
	"thursday":  4,
	"friday":    5,
	"saturday":  6,
}

var (
	dailyPattern   = regexp.MustCompile(`^daily (\d{1,2}):(\d{2})$`)
	weekdayPattern = regexp.MustCompile(`^(?:every )?([a-z]+) (\d{1,2}):(\d{2})$`)
)

// translateNamed rewrites a named pattern into five-field cron syntax.
// Returns the input unchanged when it is not a named pattern.
func translateNamed(expr string) string {
	s := strings.ToLower(strings.TrimSpace(expr))

	if s == "hourly" {
		return "0 * * * *"
	}
	if m := dailyPattern.FindStringSubmatch(s); m != nil {
		return fmt.Sprintf("%s %s * * *", m[2], m[1])
	}
	if m := weekdayPattern.FindStringSubmatch(s); m != nil {
		if dow, ok := weekdays[m[1]]; ok {
			return fmt.Sprintf("%s %s * * %d", m[3], m[2], dow)
		}
	}
	return expr
}

// Parse validates and compiles an expression in the given timezone.
func Parse(expr, timezone string) (*Schedule, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidExpression, timezone)
	}

	spec, err := parser.Parse(translateNamed(expr))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expr, err)
	}

	return &Schedule{
		Expression: expr,
		Timezone:   timezone,
		spec:       spec,
		loc:        loc,
	}, nil
}

// Next returns the first fire time strictly after now, in the schedule's
// timezone.
func (s *Schedule) Next(now time.Time) time.Time {
	return s.spec.Next(now.In(s.loc))
}

// IsDue reports whether a fire time has passed since lastRun. A provider
// that has never run (zero lastRun) becomes due at its first fire time
// after registration, so callers pass the registration time instead.
func (s *Schedule) IsDue(lastRun, now time.Time) bool {
	if lastRun.IsZero() {
		return false
	}
	next := s.Next(lastRun)
	return !next.After(now.In(s.loc))
}
