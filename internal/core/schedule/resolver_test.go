package schedule

import (
	"errors"
	"testing"
	"time"
)

func mustParse(t *testing.T, expr, tz string) *Schedule {
	t.Helper()
	s, err := Parse(expr, tz)
	if err != nil {
		t.Fatalf("Parse(%q, %q) failed: %v", expr, tz, err)
	}
	return s
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name string
		expr string
		tz   string
	}{
		{"empty", "", "Europe/Amsterdam"},
		{"garbage", "not a schedule", "Europe/Amsterdam"},
		{"six fields", "0 0 23 * * 1", "Europe/Amsterdam"},
		{"bad timezone", "0 23 * * 1", "Mars/Olympus"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.expr, tc.tz)
			if !errors.Is(err, ErrInvalidExpression) {
				t.Errorf("expected ErrInvalidExpression, got %v", err)
			}
		})
	}
}

func TestNext_MondayAmsterdam(t *testing.T) {
	s := mustParse(t, "0 23 * * 1", "Europe/Amsterdam")
	ams, _ := time.LoadLocation("Europe/Amsterdam")

	// Monday 2025-03-10 23:00 local.
	fire := time.Date(2025, 3, 10, 23, 0, 0, 0, ams)

	next := s.Next(fire)
	want := time.Date(2025, 3, 17, 23, 0, 0, 0, ams)
	if !next.Equal(want) {
		t.Errorf("Next at fire time = %v, want following Monday %v", next, want)
	}

	// Just before the fire time the next run is the fire time itself.
	next = s.Next(fire.Add(-time.Minute))
	if !next.Equal(fire) {
		t.Errorf("Next before fire time = %v, want %v", next, fire)
	}
}

func TestIsDue(t *testing.T) {
	s := mustParse(t, "0 23 * * 1", "Europe/Amsterdam")
	ams, _ := time.LoadLocation("Europe/Amsterdam")

	lastRun := time.Date(2025, 3, 3, 23, 0, 0, 0, ams) // previous Monday
	fire := time.Date(2025, 3, 10, 23, 0, 0, 0, ams)

	if s.IsDue(lastRun, fire.Add(-time.Hour)) {
		t.Error("due before fire time")
	}
	if !s.IsDue(lastRun, fire) {
		t.Error("not due at fire time")
	}
	if !s.IsDue(lastRun, fire.Add(3*time.Hour)) {
		t.Error("not due after fire time")
	}
	if s.IsDue(time.Time{}, fire) {
		t.Error("zero lastRun must never be due")
	}
}

func TestIsDue_TimezoneIndependentNow(t *testing.T) {
	s := mustParse(t, "0 23 * * 1", "Europe/Amsterdam")
	ams, _ := time.LoadLocation("Europe/Amsterdam")

	lastRun := time.Date(2025, 3, 3, 23, 0, 0, 0, ams)
	// Same instant as Monday 23:00 Amsterdam, expressed in UTC.
	nowUTC := time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC)

	if !s.IsDue(lastRun, nowUTC) {
		t.Error("due-check must be instant-based, not wall-clock-based")
	}
}

func TestTranslateNamed(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"monday 23:00", "00 23 * * 1"},
		{"every monday 23:00", "00 23 * * 1"},
		{"Sunday 22:00", "00 22 * * 0"},
		{"daily 06:00", "00 06 * * *"},
		{"hourly", "0 * * * *"},
		{"0 23 * * 1", "0 23 * * 1"}, // plain cron passes through
	}

	for _, tc := range cases {
		if got := translateNamed(tc.in); got != tc.want {
			t.Errorf("translateNamed(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParse_NamedPattern(t *testing.T) {
	s := mustParse(t, "every monday 23:00", "Europe/Amsterdam")
	ams, _ := time.LoadLocation("Europe/Amsterdam")

	next := s.Next(time.Date(2025, 3, 8, 12, 0, 0, 0, ams)) // Saturday noon
	want := time.Date(2025, 3, 10, 23, 0, 0, 0, ams)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}
