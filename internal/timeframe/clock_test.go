// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package timeframe

import (
	"errors"
	"testing"
	"time"
)

type binRecorder struct {
	changes []time.Time
}

func (r *binRecorder) BinChanged(_, current time.Time) {
	r.changes = append(r.changes, current)
}

func TestLogicalClockAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := NewLogicalClock(start, time.Hour)

	t.Run("starts at the given time", func(t *testing.T) {
		if got := c.Now(); !got.Equal(start) {
			t.Errorf("Now = %v, want %v", got, start)
		}
	})

	t.Run("moves forward", func(t *testing.T) {
		later := start.Add(30 * time.Minute)
		if err := c.Advance(later); err != nil {
			t.Fatalf("Advance: %v", err)
		}
		if got := c.Now(); !got.Equal(later) {
			t.Errorf("Now = %v, want %v", got, later)
		}
	})

	t.Run("equal time is allowed", func(t *testing.T) {
		if err := c.Advance(c.Now()); err != nil {
			t.Errorf("Advance to same instant: %v", err)
		}
	})

	t.Run("moving backwards fails", func(t *testing.T) {
		err := c.Advance(start)
		if !errors.Is(err, ErrClockMovedBackwards) {
			t.Errorf("Advance = %v, want ErrClockMovedBackwards", err)
		}
		// The failed advance must not move the clock.
		if got := c.Now(); got.Before(start.Add(30 * time.Minute)) {
			t.Errorf("Now = %v moved backwards", got)
		}
	})
}

func TestLogicalClockZeroSeedAcceptsBacklog(t *testing.T) {
	// A zero-seeded clock must accept any real timestamp, so a replayed
	// backlog predating process start shares the live code path.
	c := NewLogicalClock(time.Time{}, time.Hour)
	past := time.Date(2009, 11, 10, 23, 0, 0, 0, time.UTC)
	if err := c.Advance(past); err != nil {
		t.Fatalf("Advance to backlog timestamp: %v", err)
	}
	if got := c.Now(); !got.Equal(past) {
		t.Errorf("Now = %v, want %v", got, past)
	}
}

func TestLogicalClockBinChange(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 15, 0, 0, time.UTC)
	c := NewLogicalClock(start, time.Hour)
	rec := &binRecorder{}
	c.AddListener(rec)

	// Within the same bin: no notification.
	if err := c.Advance(start.Add(10 * time.Minute)); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if len(rec.changes) != 0 {
		t.Fatalf("changes = %d, want 0 within the same bin", len(rec.changes))
	}

	// Crossing into the next bin notifies once with the new bin start.
	if err := c.Advance(start.Add(time.Hour)); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if len(rec.changes) != 1 {
		t.Fatalf("changes = %d, want 1", len(rec.changes))
	}
	want := start.Add(time.Hour)
	if !rec.changes[0].Equal(want) {
		t.Errorf("notified time = %v, want %v", rec.changes[0], want)
	}
}

func TestBinStart(t *testing.T) {
	tests := []struct {
		name  string
		at    time.Time
		width time.Duration
		want  time.Time
	}{
		{
			"mid hour",
			time.Date(2026, 3, 1, 12, 42, 7, 0, time.UTC),
			time.Hour,
			time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			"exact boundary",
			time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			time.Hour,
			time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			"weekly bin",
			time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC),
			7 * 24 * time.Hour,
			time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC).Truncate(7 * 24 * time.Hour),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BinStart(tt.at, tt.width); !got.Equal(tt.want) {
				t.Errorf("BinStart = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFixedTime(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var p TimeProvider = FixedTime(at)
	if !p.Now().Equal(at) {
		t.Errorf("Now = %v, want %v", p.Now(), at)
	}
}
