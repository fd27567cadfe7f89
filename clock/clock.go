/*
	Copyright (c) 2026 The rocketfc Authors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	clock.go: Monotonic time since boot. The flight core never reads the wall
	clock, which jumps when the board syncs its RTC.
*/

// Package clock provides the monotonic time base for the flight loop.
package clock

import (
	"sync"
	"time"

	humanize "github.com/dustin/go-humanize"
)

// Clock returns the time elapsed since an arbitrary fixed origin.
type Clock interface {
	Now() time.Duration
}

// Monotonic measures elapsed time with the runtime's monotonic reading.
type Monotonic struct {
	start time.Time
}

func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

func (m *Monotonic) Now() time.Duration {
	return time.Since(m.start)
}

// Millis returns the elapsed milliseconds, truncated to 32 bits like the
// millisecond counters in the flight log.
func (m *Monotonic) Millis() uint32 {
	return uint32(m.Now().Milliseconds())
}

// Manual is advanced explicitly. Replays and tests drive it from logged
// timestamps.
type Manual struct {
	mu  sync.Mutex
	now time.Duration
}

func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t. Moving backwards is ignored.
func (m *Manual) Set(t time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t > m.now {
		m.now = t
	}
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.now += d
	}
}

// HumanizeTime formats the distance between two clock readings, e.g.
// "3 seconds ago".
func HumanizeTime(c Clock, at time.Duration) string {
	var origin time.Time
	return humanize.RelTime(origin.Add(at), origin.Add(c.Now()), "ago", "from now")
}
