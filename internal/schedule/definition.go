package schedule

import (
	"fmt"
	"slices"
	"time"

	"github.com/iliyamo/dose-reminder/internal/model"
)

// Definition is a validated, normalized schedule ready for expansion.
// Times are sorted and de-duplicated; dates carry no time component.
type Definition struct {
	MedicineID string
	Times      []TimeOfDay
	StartDate  civilDate
	EndDate    *civilDate
	weekdays   [7]bool
	restricted bool
}

// civilDate is a calendar day independent of any location.
type civilDate struct {
	Year  int
	Month time.Month
	Day   int
}

func dateOf(t time.Time) civilDate {
	y, m, d := t.Date()
	return civilDate{Year: y, Month: m, Day: d}
}

// in returns midnight of the day in loc.  Normalization by time.Date makes
// overflowing days roll into the next month.
func (d civilDate) in(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d civilDate) before(o civilDate) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// next returns the following calendar day.
func (d civilDate) next() civilDate {
	return dateOf(time.Date(d.Year, d.Month, d.Day+1, 12, 0, 0, 0, time.UTC))
}

// weekday is computed at noon UTC so it never depends on a zone offset.
func (d civilDate) weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

// NewDefinition validates raw schedule fields.  startDate and endDate are
// read as calendar days; their clock components are ignored.
func NewDefinition(medicineID string, times []string, startDate time.Time, endDate *time.Time, daysOfWeek []int) (Definition, error) {
	if len(times) == 0 {
		return Definition{}, fmt.Errorf("%w: times of day must not be empty", ErrInvalidSchedule)
	}
	def := Definition{MedicineID: medicineID, StartDate: dateOf(startDate)}
	for _, raw := range times {
		t, err := ParseTimeOfDay(raw)
		if err != nil {
			return Definition{}, err
		}
		def.Times = append(def.Times, t)
	}
	slices.SortFunc(def.Times, func(a, b TimeOfDay) int { return a.Minutes() - b.Minutes() })
	def.Times = slices.Compact(def.Times)

	if endDate != nil {
		end := dateOf(*endDate)
		if end.before(def.StartDate) {
			return Definition{}, fmt.Errorf("%w: end date %s is before start date %s",
				ErrInvalidSchedule, endDate.Format(time.DateOnly), startDate.Format(time.DateOnly))
		}
		def.EndDate = &end
	}
	for _, d := range daysOfWeek {
		if d < 0 || d > 6 {
			return Definition{}, fmt.Errorf("%w: day of week %d outside 0..6", ErrInvalidSchedule, d)
		}
		def.weekdays[d] = true
		def.restricted = true
	}
	return def, nil
}

// FromModel validates a stored schedule.
func FromModel(s model.Schedule) (Definition, error) {
	return NewDefinition(s.MedicineID, s.TimesOfDay, s.StartDate, s.EndDate, s.DaysOfWeek)
}

// Applies reports whether the weekday filter admits wd.
func (d Definition) Applies(wd time.Weekday) bool {
	return !d.restricted || d.weekdays[wd]
}
