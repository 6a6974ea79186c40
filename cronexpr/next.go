package cronexpr

import "time"

// DefaultHorizon bounds the forward search for a next firing time when
// the caller does not supply one. Expressions that never match inside
// the horizon (e.g. "0 0 30 2 *", day 30 of February) resolve to no
// next run instead of searching forever.
const DefaultHorizon = 5 * 365 * 24 * time.Hour

// Next returns the earliest time strictly after from that matches the
// expression, with seconds zeroed, in UTC. The second return value is
// false when no match exists within DefaultHorizon.
func (e *Expression) Next(from time.Time) (time.Time, bool) {
	return e.NextWithin(from, DefaultHorizon)
}

// NextWithin is Next with an explicit search horizon.
func (e *Expression) NextWithin(from time.Time, horizon time.Duration) (time.Time, bool) {
	from = from.UTC()
	limit := from.Add(horizon)

	// Start at the next whole minute strictly after from.
	t := time.Date(from.Year(), from.Month(), from.Day(), from.Hour(), from.Minute(), 0, 0, time.UTC)
	t = t.Add(time.Minute)

	for !t.After(limit) {
		if !e.months.contains(int(t.Month())) {
			// Jump to the first instant of the next month.
			t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
			continue
		}
		if !e.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
			continue
		}
		if !e.hours.contains(t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC).Add(time.Hour)
			continue
		}
		if !e.minutes.contains(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t, true
	}

	return time.Time{}, false
}

// dayMatches applies POSIX cron day semantics: when both day-of-month
// and weekday are restricted, the date matches if either does; when only
// one is restricted, that one alone governs.
func (e *Expression) dayMatches(t time.Time) bool {
	domOK := e.dom.contains(t.Day())
	dowOK := e.dow.contains(int(t.Weekday()))

	switch {
	case e.dom.restricted && e.dow.restricted:
		return domOK || dowOK
	case e.dom.restricted:
		return domOK
	case e.dow.restricted:
		return dowOK
	default:
		return true
	}
}

// ComputeNextRun parses expr and returns the next firing time strictly
// after from, or nil if the expression is malformed or never matches
// within DefaultHorizon. It never panics; a sweep over many schedules
// can skip one bad expression without aborting the rest.
func ComputeNextRun(expr string, from time.Time) *time.Time {
	parsed, err := Parse(expr)
	if err != nil {
		return nil
	}
	next, ok := parsed.Next(from)
	if !ok {
		return nil
	}
	return &next
}
