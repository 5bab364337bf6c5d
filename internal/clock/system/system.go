// Package system provides the wall clock used outside of tests.
package system

import "time"

// Clock implements relay.Clock and supervisor.Clock using time.Now.
type Clock struct {
	started time.Time
}

// New creates a new Clock and records the process start time.
func New() *Clock {
	return &Clock{started: time.Now().UTC()}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Started returns the instant New was called.
func (c *Clock) Started() time.Time {
	return c.started
}
