package store

import "time"

// TodayMidnight is the record date for a run at now: UTC midnight minus one
// millisecond, i.e. data "as of end of" the previous day.
// A run on Apr 6 stores Apr 5 23:59:59.999 UTC.
func TodayMidnight(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Add(-time.Millisecond)
}

// YesterdayMidnight is the record date of the previous run.
func YesterdayMidnight(now time.Time) time.Time {
	return TodayMidnight(now).AddDate(0, 0, -1)
}

// MidnightOn returns the record date stored by a run on the given UTC day.
func MidnightOn(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Add(-time.Millisecond)
}

// IsFirstDayOfPeriod reports whether recordDate opens a new earnings period:
// the first day of a calendar month, or the start day of the reward period.
func IsFirstDayOfPeriod(recordDate time.Time, periodStart *time.Time) bool {
	d := recordDate.UTC()
	if d.Day() == 1 {
		return true
	}
	if periodStart != nil {
		return d.Format("2006-01-02") == periodStart.UTC().Format("2006-01-02")
	}
	return false
}

// DaysInMonth returns the number of days of t's UTC month.
func DaysInMonth(t time.Time) int {
	u := t.UTC()
	return time.Date(u.Year(), u.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
