// Package system provides the wall clock used to stamp stored rows.
package system

import "time"

// Clock implements crawler.Clock. Timestamps are UTC so rows written by
// different hosts compare cleanly.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
