// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock reads UTC wall time at the precision Postgres timestamptz keeps, so
// a stored timestamp compares equal to the value the caller held.
type Clock struct{}

// New returns the wall clock.
func New() Clock { return Clock{} }

// Now returns the current UTC time truncated to microseconds.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
