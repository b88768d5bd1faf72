// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package usermodel

import (
	"math"
	"testing"
	"time"

	"github.com/spektrumprojekt/spektrum-sub000/internal/models"
)

const tolerance = 1e-6

func newEntry(value string) *models.UserModelEntry {
	return &models.UserModelEntry{
		ScoredTerm: &models.ScoredTerm{
			Term: &models.Term{Category: models.TermCategoryTerm, Value: value},
		},
	}
}

func TestPlainIntegration(t *testing.T) {
	s := PlainIntegration{}
	e := newEntry("topic")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("empty entry weighs zero", func(t *testing.T) {
		if got := s.Weight(e); got != 0 {
			t.Errorf("Weight = %f, want 0", got)
		}
	})

	t.Run("first interest seeds the weight", func(t *testing.T) {
		s.Integrate(e, 0.8, now)
		if got := s.Weight(e); math.Abs(got-0.8) > tolerance {
			t.Errorf("Weight = %f, want 0.8", got)
		}
	})

	t.Run("weight converges toward later interests", func(t *testing.T) {
		s.Integrate(e, 0.2, now)
		s.Integrate(e, 0.2, now)
		s.Integrate(e, 0.2, now)
		want := (0.8 + 0.2 + 0.2 + 0.2) / 4
		if got := s.Weight(e); math.Abs(got-want) > tolerance {
			t.Errorf("Weight = %f, want %f", got, want)
		}
		if e.ScoreCount != 4 {
			t.Errorf("ScoreCount = %d, want 4", e.ScoreCount)
		}
	})
}

func TestTimeBinnedIntegrationBinIsolation(t *testing.T) {
	week := 7 * 24 * time.Hour
	s := TimeBinnedIntegration{BinWidth: week, Decay: 1}
	e := newEntry("topic")

	t0 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	s.Integrate(e, 1.0, t0)
	s.Integrate(e, 1.0, t0.Add(time.Hour))
	s.Integrate(e, 0.0, t0.Add(2*week))

	if len(e.TimeBins) != 2 {
		t.Fatalf("bins = %d, want 2", len(e.TimeBins))
	}
	first, second := e.TimeBins[0], e.TimeBins[1]
	if first.ScoreCount != 2 || math.Abs(first.ScoreSum-2.0) > tolerance {
		t.Errorf("first bin = {%f, %d}, want {2.0, 2}", first.ScoreSum, first.ScoreCount)
	}
	if second.ScoreCount != 1 || second.ScoreSum != 0 {
		t.Errorf("second bin = {%f, %d}, want {0, 1}", second.ScoreSum, second.ScoreCount)
	}
	if first.BinStart >= second.BinStart {
		t.Error("bins must stay ordered by start time")
	}
}

func TestTimeBinnedIntegrationTotalCount(t *testing.T) {
	week := 7 * 24 * time.Hour
	s := TimeBinnedIntegration{BinWidth: week, Decay: 1}
	e := newEntry("topic")
	t0 := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s.Integrate(e, 0.5, t0.Add(time.Duration(i)*week))
	}
	if got := e.TotalBinCount(); got != 5 {
		t.Errorf("TotalBinCount = %d, want 5", got)
	}
	if e.ScoreCount != 5 {
		t.Errorf("ScoreCount = %d, want 5", e.ScoreCount)
	}
}

func TestTimeBinnedIntegrationWithoutDecayMatchesPlain(t *testing.T) {
	week := 7 * 24 * time.Hour
	binned := TimeBinnedIntegration{BinWidth: week, Decay: 1}
	plain := PlainIntegration{}
	be, pe := newEntry("topic"), newEntry("topic")
	t0 := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	interests := []float64{1.0, 0.25, 0.75, 0.5}
	for i, v := range interests {
		when := t0.Add(time.Duration(i) * week)
		binned.Integrate(be, v, when)
		plain.Integrate(pe, v, when)
	}
	if got, want := binned.Weight(be), plain.Weight(pe); math.Abs(got-want) > tolerance {
		t.Errorf("binned weight = %f, plain weight = %f, want equal without decay", got, want)
	}
}

func TestTimeBinnedIntegrationDecay(t *testing.T) {
	week := 7 * 24 * time.Hour
	s := TimeBinnedIntegration{BinWidth: week, Decay: 0.5}
	e := newEntry("topic")
	t0 := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	s.Integrate(e, 1.0, t0)           // two bins old at the end: factor 0.25
	s.Integrate(e, 1.0, t0.Add(week)) // one bin old: factor 0.5
	s.Integrate(e, 0.0, t0.Add(2*week))

	want := (0.25*1.0 + 0.5*1.0 + 1.0*0.0) / (0.25 + 0.5 + 1.0)
	if got := s.Weight(e); math.Abs(got-want) > tolerance {
		t.Errorf("Weight = %f, want %f", got, want)
	}
}

func TestTimeBinnedIntegrationSparseBins(t *testing.T) {
	// A gap of several empty bins must decay by the full age, not by the
	// number of occupied bins.
	week := 7 * 24 * time.Hour
	s := TimeBinnedIntegration{BinWidth: week, Decay: 0.5}
	e := newEntry("topic")
	t0 := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	s.Integrate(e, 1.0, t0)
	s.Integrate(e, 1.0, t0.Add(3*week)) // three bins later

	want := (0.125*1.0 + 1.0*1.0) / (0.125 + 1.0)
	if got := s.Weight(e); math.Abs(got-want) > tolerance {
		t.Errorf("Weight = %f, want %f", got, want)
	}
}
