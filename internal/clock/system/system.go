// Package system implements the wall clock behind the crawler.Clock seam.
// Tests substitute fixed clocks; production code uses this one.
package system

import "time"

// Clock reads the system time in UTC. Job timestamps, crawl records, and
// synthesis metadata all come from here so stored times compare cleanly
// across backends.
type Clock struct{}

// New returns the process clock.
func New() *Clock {
	return &Clock{}
}

// Now reports the current UTC time.
func (*Clock) Now() time.Time {
	return time.Now().UTC()
}
