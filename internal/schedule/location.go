package schedule

import "time"

// Location resolves a user's IANA zone, falling back to def and then to UTC
// when either name is empty or unknown.
func Location(name, def string) *time.Location {
	for _, n := range []string{name, def} {
		if n == "" {
			continue
		}
		if loc, err := time.LoadLocation(n); err == nil {
			return loc
		}
	}
	return time.UTC
}
