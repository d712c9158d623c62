package schedule

import "time"

// DefaultTimezone is the reference civil timezone when none is configured.
// All due-time arithmetic happens in one fixed zone (WAT, UTC+1, no DST).
const DefaultTimezone = "Africa/Lagos"

// DefaultLocation loads DefaultTimezone, falling back to a fixed UTC+1
// zone when the tz database is unavailable.
func DefaultLocation() *time.Location {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.FixedZone("WAT", 3600)
	}
	return loc
}

// Next returns the fire time one recurrence period after prev.
//
// prev is converted into loc before the computation and the result carries
// loc. Once is the identity: callers must treat it as terminal instead of
// re-arming. An out-of-range enumeration value yields ErrInvalidRecurrence.
//
// Calendar steps that land on a day the target month doesn't have are
// clamped to the month's last valid day (Jan 31 monthly -> Feb 28/29,
// Feb 29 yearly -> Feb 28 on non-leap years).
func Next(prev time.Time, r Recurrence, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t := prev.In(loc)

	switch r {
	case Once:
		return t, nil
	case Daily:
		return t.AddDate(0, 0, 1), nil
	case Weekly:
		return t.AddDate(0, 0, 7), nil
	case Monthly:
		y, m := t.Year(), t.Month()
		if m == time.December {
			y, m = y+1, time.January
		} else {
			m++
		}
		return onDay(t, y, m), nil
	case Yearly, Birthday, Anniversary, Employment:
		return onDay(t, t.Year()+1, t.Month()), nil
	default:
		return time.Time{}, ErrInvalidRecurrence
	}
}

// onDay rebuilds t on year y / month m, keeping the day and clock but
// clamping the day to the target month's length.
func onDay(t time.Time, y int, m time.Month) time.Time {
	d := t.Day()
	if last := lastDay(y, m, t.Location()); d > last {
		d = last
	}
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// lastDay returns the number of days in the given month.
func lastDay(y int, m time.Month, loc *time.Location) int {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}
