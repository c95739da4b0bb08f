// Package recurrence computes execution dates for scheduled transfers.
//
// All functions are pure: they never read the wall clock, and the time of day
// and location of the base date are carried through unchanged.
package recurrence

import (
	"fmt"
	"time"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
)

// Next returns the execution date that follows base. A one-time schedule
// returns base itself. For monthly, quarterly and annual schedules the
// day-of-month is recurrenceDay (or base's day when nil), clamped to the
// length of the target month. For weekly schedules recurrenceDay, when set,
// is a weekday (0 = Sunday).
func Next(base time.Time, rt domain.RecurrenceType, recurrenceDay *int) (time.Time, error) {
	if err := Validate(rt, recurrenceDay); err != nil {
		return time.Time{}, fmt.Errorf("Next: %w", err)
	}

	switch rt {
	case domain.RecurrenceOneTime:
		return base, nil
	case domain.RecurrenceDaily:
		return base.AddDate(0, 0, 1), nil
	case domain.RecurrenceWeekly:
		if recurrenceDay == nil {
			return base.AddDate(0, 0, 7), nil
		}
		diff := daysUntilWeekday(base, time.Weekday(*recurrenceDay))
		if diff == 0 {
			diff = 7
		}
		return base.AddDate(0, 0, diff), nil
	case domain.RecurrenceMonthly:
		return addMonths(base, 1, recurrenceDay), nil
	case domain.RecurrenceQuarterly:
		return addMonths(base, 3, recurrenceDay), nil
	default:
		return addMonths(base, 12, recurrenceDay), nil
	}
}

// Seed returns the first execution date for a schedule starting at start.
// Schedules pinned to a day are aligned forward to the first matching date on
// or after start; everything else starts at start.
func Seed(start time.Time, rt domain.RecurrenceType, recurrenceDay *int) (time.Time, error) {
	if err := Validate(rt, recurrenceDay); err != nil {
		return time.Time{}, fmt.Errorf("Seed: %w", err)
	}
	if recurrenceDay == nil {
		return start, nil
	}

	switch rt {
	case domain.RecurrenceWeekly:
		return start.AddDate(0, 0, daysUntilWeekday(start, time.Weekday(*recurrenceDay))), nil
	case domain.RecurrenceMonthly, domain.RecurrenceQuarterly, domain.RecurrenceAnnually:
		candidate := addMonths(start, 0, recurrenceDay)
		if !candidate.Before(start) {
			return candidate, nil
		}
		return addMonths(start, 1, recurrenceDay), nil
	default:
		return start, nil
	}
}

// Validate checks a recurrence definition. Day-of-month schedules accept
// 1..31, weekly schedules accept 0..6; other types ignore the day.
func Validate(rt domain.RecurrenceType, recurrenceDay *int) error {
	if !rt.IsValid() {
		return fmt.Errorf("unknown type %q: %w", rt, domain.ErrInvalidRecurrence)
	}
	if recurrenceDay == nil {
		return nil
	}

	day := *recurrenceDay
	switch rt {
	case domain.RecurrenceWeekly:
		if day < 0 || day > 6 {
			return fmt.Errorf("weekday %d out of range: %w", day, domain.ErrInvalidRecurrence)
		}
	case domain.RecurrenceMonthly, domain.RecurrenceQuarterly, domain.RecurrenceAnnually:
		if day < 1 || day > 31 {
			return fmt.Errorf("day of month %d out of range: %w", day, domain.ErrInvalidRecurrence)
		}
	}
	return nil
}

func addMonths(base time.Time, months int, recurrenceDay *int) time.Time {
	y, m, d := base.Date()
	if recurrenceDay != nil {
		d = *recurrenceDay
	}

	// Day 1 never overflows, so Date only normalises the month/year here.
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, base.Location())
	d = min(d, DaysIn(first.Year(), first.Month()))

	return time.Date(first.Year(), first.Month(), d,
		base.Hour(), base.Minute(), base.Second(), base.Nanosecond(), base.Location())
}

func daysUntilWeekday(from time.Time, wd time.Weekday) int {
	return (int(wd) - int(from.Weekday()) + 7) % 7
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
