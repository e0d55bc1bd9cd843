package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidSchedule marks a malformed schedule definition: no times of
// day, an end date before the start date, a bad HH:mm string or a weekday
// outside 0..6.  Handlers translate it into a 400 response.
var ErrInvalidSchedule = errors.New("invalid schedule")

// hhmm accepts 0-23 hours with an optional leading zero and 00-59 minutes.
var hhmm = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):([0-5][0-9])$`)

// TimeOfDay is a wall-clock hour and minute with no date attached.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:mm" (e.g. "08:00", "8:05", "23:59").
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	m := hhmm.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return TimeOfDay{}, fmt.Errorf("%w: time of day %q must be HH:mm", ErrInvalidSchedule, s)
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	return TimeOfDay{Hour: h, Minute: min}, nil
}

// MustTimeOfDay is ParseTimeOfDay for literals known to be valid.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Minutes returns minutes since midnight (0..1439).
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

// String formats the time as zero-padded HH:mm.
func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }
