// Package timer provides the interruptible countdown primitive behind the
// buzz-in and answer windows. A countdown is a sleep/check loop: it suspends
// for the remaining interval, then asks a checker whether to keep going and
// for how long. Pausing is expressed through the checker rather than by
// preempting the sleep, so the minimum latency to stop a countdown is one
// wake-up. Countdowns for different rooms run on independent goroutines and
// never block one another.
package timer

import (
	"time"

	"github.com/coder/quartz"
)

// CheckFunc is invoked on each wake-up with the current time. Returning
// cont=true continues the loop, sleeping for the returned remaining
// duration. Returning cont=false stops the loop; a remaining of exactly
// zero signals natural expiry, anything else (early resolution, subject
// vanished) terminates silently.
type CheckFunc func(now time.Time) (cont bool, remaining time.Duration)

// CompleteFunc is invoked once when a countdown expires naturally
type CompleteFunc func()

// Run drives a countdown to completion. It blocks, so callers start it on
// its own goroutine. The clock is injected so tests can drive time.
func Run(clock quartz.Clock, duration time.Duration, check CheckFunc, complete CompleteFunc) {
	for {
		t := clock.NewTimer(duration)
		<-t.C

		cont, remaining := check(clock.Now())
		if !cont {
			if remaining == 0 && complete != nil {
				complete()
			}
			return
		}
		duration = remaining
	}
}

// State is the bookkeeping for one countdown: when it started, when it is
// scheduled to end, whether it is paused, and which session (if any) won the
// race it bounds. At most one of running/resolved is live at a time; once a
// winner is recorded the countdown stops ticking for the round.
type State struct {
	Start      time.Time
	End        time.Time
	PauseStart time.Time // zero while running
	Winner     string    // session id of the accepted buzz, empty if none
	Active     bool
}

// NewState creates an active countdown ending duration from now
func NewState(now time.Time, duration time.Duration) *State {
	return &State{
		Start:  now,
		End:    now.Add(duration),
		Active: true,
	}
}

// Remaining returns the time left on the countdown. While paused the
// remaining interval is frozen at its value when the pause began.
func (s *State) Remaining(now time.Time) time.Duration {
	if s.Paused() {
		return s.End.Sub(s.PauseStart)
	}
	if remaining := s.End.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// Pause freezes the countdown. Idempotent.
func (s *State) Pause(now time.Time) {
	if s.Paused() {
		return
	}
	s.PauseStart = now
}

// Resume unfreezes the countdown, pushing the deadline out by however long
// the pause lasted.
func (s *State) Resume(now time.Time) {
	if !s.Paused() {
		return
	}
	s.End = s.End.Add(now.Sub(s.PauseStart))
	s.PauseStart = time.Time{}
}

// Paused reports whether the countdown is currently frozen
func (s *State) Paused() bool {
	return !s.PauseStart.IsZero()
}

// Expired reports whether the countdown has naturally run out. A paused
// countdown never expires.
func (s *State) Expired(now time.Time) bool {
	return !s.Paused() && !now.Before(s.End)
}
