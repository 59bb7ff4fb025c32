package app

import (
	"fmt"
	"time"

	"github.com/famline/notifications/internal/digest_service/domain"
)

// ComputeNextRun returns the next delivery instant for a schedule,
// strictly after now. All wall-clock math happens in the schedule's
// timezone; the result is returned in UTC.
//
// Monthly schedules whose delivery day exceeds the target month's
// length clamp to the last day of that month, so a day-31 schedule
// fires on Feb 28 (or 29) instead of silently skipping February.
func ComputeNextRun(schedule *domain.DigestSchedule, now time.Time) (time.Time, error) {
	loc := schedule.Location()
	local := now.In(loc)
	dt := schedule.DeliveryTime

	switch schedule.Frequency {
	case domain.FrequencyDaily:
		next := atTime(local, dt, loc)
		if !next.After(local) {
			next = next.AddDate(0, 0, 1)
		}
		return next.UTC(), nil

	case domain.FrequencyWeekly:
		day := int(schedule.DeliveryDay.Int32)
		if !schedule.DeliveryDay.Valid || day < 1 || day > 7 {
			return time.Time{}, fmt.Errorf("weekly schedule requires delivery day 1-7, got %v", schedule.DeliveryDay)
		}
		next := atTime(local, dt, loc)
		daysAhead := (day - isoWeekday(local) + 7) % 7
		next = next.AddDate(0, 0, daysAhead)
		if !next.After(local) {
			next = next.AddDate(0, 0, 7)
		}
		return next.UTC(), nil

	case domain.FrequencyMonthly:
		day := int(schedule.DeliveryDay.Int32)
		if !schedule.DeliveryDay.Valid || day < 1 || day > 31 {
			return time.Time{}, fmt.Errorf("monthly schedule requires delivery day 1-31, got %v", schedule.DeliveryDay)
		}
		next := monthlyOccurrence(local.Year(), local.Month(), day, dt, loc)
		if !next.After(local) {
			year, month := local.Year(), local.Month()+1
			next = monthlyOccurrence(year, month, day, dt, loc)
		}
		return next.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("unknown frequency %q", schedule.Frequency)
}

// atTime returns the delivery time on ref's calendar day.
func atTime(ref time.Time, dt domain.DeliveryTime, loc *time.Location) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), dt.Hour, dt.Minute, dt.Second, 0, loc)
}

// isoWeekday maps Go's Sunday=0 weekday to ISO Monday=1..Sunday=7.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// monthlyOccurrence builds the delivery instant in the given month,
// clamping the day to the month's length. time.Date normalizes month
// overflow (month 13 becomes January of the next year) before clamping.
func monthlyOccurrence(year int, month time.Month, day int, dt domain.DeliveryTime, loc *time.Location) time.Time {
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	lastDay := firstOfMonth.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfMonth.Year(), firstOfMonth.Month(), day, dt.Hour, dt.Minute, dt.Second, 0, loc)
}
