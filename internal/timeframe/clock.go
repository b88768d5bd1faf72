// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

// Package timeframe provides the process-wide logical clock driving time-bin
// bucketing and bin-change notifications.
//
// The core never reads the system clock: batch replay and live operation
// share one code path by advancing the logical clock explicitly. The live
// driver advances it from wall time; the evaluation driver advances it from
// message publication dates.
package timeframe

import (
	"errors"
	"sync"
	"time"
)

// ErrClockMovedBackwards is returned when Advance is called with a time
// before the current logical time. The ordering guarantee of the stream makes
// this a contract error.
var ErrClockMovedBackwards = errors.New("logical clock must advance monotonically")

// TimeProvider yields the current logical time.
type TimeProvider interface {
	Now() time.Time
}

// BinChangeListener is notified when an Advance call crosses a bin boundary.
// Time-based caches use this instead of polling the clock.
type BinChangeListener interface {
	BinChanged(previous, current time.Time)
}

// BinStart truncates t to the start of its bin of the given width.
func BinStart(t time.Time, width time.Duration) time.Time {
	if width <= 0 {
		return t
	}
	return t.Truncate(width)
}

// LogicalClock is an explicitly advanced, monotonic clock. The zero value is
// not usable; construct with NewLogicalClock.
type LogicalClock struct {
	mu        sync.RWMutex
	now       time.Time
	binWidth  time.Duration
	listeners []BinChangeListener
}

// NewLogicalClock creates a clock starting at the given time. binWidth
// controls when BinChangeListeners fire; zero disables notifications.
func NewLogicalClock(start time.Time, binWidth time.Duration) *LogicalClock {
	return &LogicalClock{now: start, binWidth: binWidth}
}

// Now returns the current logical time.
func (c *LogicalClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// AddListener registers a bin-change listener.
func (c *LogicalClock) AddListener(l BinChangeListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Advance moves the clock forward to t. Returns ErrClockMovedBackwards when t
// precedes the current logical time; equal times are a no-op. Listeners run
// synchronously on the advancing goroutine.
func (c *LogicalClock) Advance(t time.Time) error {
	c.mu.Lock()
	if t.Before(c.now) {
		c.mu.Unlock()
		return ErrClockMovedBackwards
	}
	previous := c.now
	c.now = t
	crossed := c.binWidth > 0 && !BinStart(previous, c.binWidth).Equal(BinStart(t, c.binWidth))
	listeners := c.listeners
	c.mu.Unlock()

	if crossed {
		for _, l := range listeners {
			l.BinChanged(previous, t)
		}
	}
	return nil
}

// FixedTime is a TimeProvider pinned to one instant, for tests.
type FixedTime time.Time

// Now returns the pinned instant.
func (f FixedTime) Now() time.Time { return time.Time(f) }
