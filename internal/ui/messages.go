// Package ui provides the Bubble Tea presenter for the signage engine.
package ui

import "time"

// fadeOutMsg ends the dwell of the screen shown in sequence seq.
type fadeOutMsg struct {
	seq int
}

// fadeInMsg ends the fade-out and brings in the next screen.
type fadeInMsg struct {
	seq int
}

// ClockTick updates the time bug.
type ClockTick struct {
	Time time.Time
}

// ActionDone is sent when a manual refresh or rebuild finishes.
type ActionDone struct {
	Action  string // "refresh" or "rebuild"
	Summary string
	Err     error
}
