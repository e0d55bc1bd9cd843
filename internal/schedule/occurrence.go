package schedule

import (
	"iter"
	"slices"
	"time"
)

// Occurrence is one concrete dose instant derived from a schedule.  The
// pair (MedicineID, ScheduledAt) identifies it everywhere else; it is
// never stored on its own.
type Occurrence struct {
	MedicineID  string    `json:"medicine_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// Occurrences yields the instants of def inside [from, to] in ascending
// order.  Times of day are interpreted as wall-clock times in loc (UTC when
// nil).  The sequence is finite and may be ranged over more than once.
func Occurrences(def Definition, from, to time.Time, loc *time.Location) iter.Seq[time.Time] {
	if loc == nil {
		loc = time.UTC
	}
	return func(yield func(time.Time) bool) {
		if from.After(to) || len(def.Times) == 0 {
			return
		}
		day := dateOf(from.In(loc))
		if day.before(def.StartDate) {
			day = def.StartDate
		}
		last := dateOf(to.In(loc))
		if def.EndDate != nil && def.EndDate.before(last) {
			last = *def.EndDate
		}
		var buf []time.Time
		for ; !last.before(day); day = day.next() {
			if !def.Applies(day.weekday()) {
				continue
			}
			buf = buf[:0]
			for _, tod := range def.Times {
				at := wallClock(day, tod, loc)
				if at.Before(from) || at.After(to) {
					continue
				}
				buf = append(buf, at)
			}
			// A shifted gap time can land on or after a later time of day.
			slices.SortFunc(buf, time.Time.Compare)
			buf = slices.CompactFunc(buf, time.Time.Equal)
			for _, at := range buf {
				if !yield(at) {
					return
				}
			}
		}
	}
}

// wallClock returns tod on day in loc.  A wall time skipped by a forward
// transition is moved forward by the length of the gap, so 02:30 on a
// spring-forward night becomes 03:30.
func wallClock(day civilDate, tod TimeOfDay, loc *time.Location) time.Time {
	at := time.Date(day.Year, day.Month, day.Day, tod.Hour, tod.Minute, 0, 0, loc)
	want := time.Date(day.Year, day.Month, day.Day, tod.Hour, tod.Minute, 0, 0, time.UTC)
	got := time.Date(at.Year(), at.Month(), at.Day(), at.Hour(), at.Minute(), 0, 0, time.UTC)
	if gap := want.Sub(got); gap > 0 {
		at = at.Add(gap)
	}
	return at
}

// Generate collects Occurrences into a slice.
func Generate(def Definition, from, to time.Time, loc *time.Location) []time.Time {
	return slices.Collect(Occurrences(def, from, to, loc))
}

// GenerateAll expands several definitions and merges the results in
// ascending order.  Coincident instants from different definitions are
// kept: each one is a separately configured reminder.
func GenerateAll(defs []Definition, from, to time.Time, loc *time.Location) []Occurrence {
	var out []Occurrence
	for _, def := range defs {
		for at := range Occurrences(def, from, to, loc) {
			out = append(out, Occurrence{MedicineID: def.MedicineID, ScheduledAt: at})
		}
	}
	slices.SortStableFunc(out, func(a, b Occurrence) int { return a.ScheduledAt.Compare(b.ScheduledAt) })
	return out
}
