package schedule

import "time"

// IsQuiet reports whether now falls inside the quiet window [start, end].
// A nil bound means no window is configured.  When start > end the window
// wraps midnight (e.g. 22:00–08:00).  Both bounds are inclusive.  now must
// already be the user's local wall-clock time.
func IsQuiet(start, end *TimeOfDay, now TimeOfDay) bool {
	if start == nil || end == nil {
		return false
	}
	s, e, n := start.Minutes(), end.Minutes(), now.Minutes()
	if s <= e {
		return n >= s && n <= e
	}
	return n >= s || n <= e
}

// QuietAt evaluates the stored HH:mm bounds at instant t in loc.  A bound
// that fails to parse is returned as err and the window is treated as
// absent.
func QuietAt(startStr, endStr *string, t time.Time, loc *time.Location) (bool, error) {
	if startStr == nil || endStr == nil {
		return false, nil
	}
	start, err := ParseTimeOfDay(*startStr)
	if err != nil {
		return false, err
	}
	end, err := ParseTimeOfDay(*endStr)
	if err != nil {
		return false, err
	}
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return IsQuiet(&start, &end, TimeOfDay{Hour: local.Hour(), Minute: local.Minute()}), nil
}
