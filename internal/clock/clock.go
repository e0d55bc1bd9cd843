// Package clock provides the time source used by the ledger, the dispatch
// scheduler and the planner.  Services never call time.Now directly; they
// receive a Clock so tests can pin "now" to a fixed instant.
package clock

import "time"

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock in UTC.
type Real struct{}

// Now returns time.Now in UTC.
func (Real) Now() time.Time { return time.Now().UTC() }

// Fixed always returns T.
type Fixed struct{ T time.Time }

// Now returns the pinned instant.
func (c Fixed) Now() time.Time { return c.T }

// Func adapts a function to the Clock interface.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time { return f() }
