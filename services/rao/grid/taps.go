// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package grid

import (
	"fmt"
	"math"
	"sort"
)

// TapStep is one position of a phase-shifter tap changer.
type TapStep struct {
	Tap   int     `json:"tap" yaml:"tap"`
	Angle float64 `json:"angle" yaml:"angle"`
}

// TapTable maps discrete PST taps to phase-shift angles in degrees.
//
// Steps are kept sorted by tap. The zero value is an empty table.
type TapTable struct {
	steps []TapStep
}

// NewTapTable builds a table from steps given in any order.
//
// Outputs:
//
//	TapTable - Table sorted by tap.
//	error - Non-nil if steps is empty, or if a tap or an angle appears twice.
func NewTapTable(steps []TapStep) (TapTable, error) {
	if len(steps) == 0 {
		return TapTable{}, fmt.Errorf("%w: tap table has no steps", ErrInvalidNetwork)
	}
	sorted := make([]TapStep, len(steps))
	copy(sorted, steps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Tap < sorted[j].Tap })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Tap == sorted[i-1].Tap {
			return TapTable{}, fmt.Errorf("%w: duplicate tap %d", ErrInvalidNetwork, sorted[i].Tap)
		}
	}
	// Angles must be distinct for angle -> tap to invert tap -> angle.
	seen := make(map[float64]int, len(sorted))
	for _, s := range sorted {
		if prev, ok := seen[s.Angle]; ok {
			return TapTable{}, fmt.Errorf("%w: taps %d and %d share angle %g", ErrInvalidNetwork, prev, s.Tap, s.Angle)
		}
		seen[s.Angle] = s.Tap
	}
	return TapTable{steps: sorted}, nil
}

// Len returns the number of taps.
func (t TapTable) Len() int { return len(t.steps) }

// Steps returns a copy of the steps in tap order.
func (t TapTable) Steps() []TapStep {
	out := make([]TapStep, len(t.steps))
	copy(out, t.steps)
	return out
}

// MinTap returns the lowest tap. Zero for an empty table.
func (t TapTable) MinTap() int {
	if len(t.steps) == 0 {
		return 0
	}
	return t.steps[0].Tap
}

// MaxTap returns the highest tap. Zero for an empty table.
func (t TapTable) MaxTap() int {
	if len(t.steps) == 0 {
		return 0
	}
	return t.steps[len(t.steps)-1].Tap
}

// Angle converts a tap to its angle.
func (t TapTable) Angle(tap int) (float64, error) {
	i := sort.Search(len(t.steps), func(i int) bool { return t.steps[i].Tap >= tap })
	if i == len(t.steps) || t.steps[i].Tap != tap {
		return 0, fmt.Errorf("%w: tap %d outside [%d, %d]", ErrInvalidSetpoint, tap, t.MinTap(), t.MaxTap())
	}
	return t.steps[i].Angle, nil
}

// NearestTap converts an angle to the tap whose angle is closest.
//
// Description:
//
//	Scans taps in ascending order and keeps the first strictly closer
//	candidate, so on an exact tie the smallest tap wins.
func (t TapTable) NearestTap(angle float64) int {
	tap, _ := t.NearestTapWithin(angle, t.MinTap(), t.MaxTap())
	return tap
}

// NearestTapWithin is NearestTap restricted to taps in [minTap, maxTap].
//
// It returns false when no tap of the table lies in the interval.
func (t TapTable) NearestTapWithin(angle float64, minTap, maxTap int) (int, bool) {
	best, found := t.MinTap(), false
	bestDist := math.Inf(1)
	for _, s := range t.steps {
		if s.Tap < minTap || s.Tap > maxTap {
			continue
		}
		d := math.Abs(s.Angle - angle)
		if !found || d < bestDist {
			best, bestDist, found = s.Tap, d, true
		}
	}
	return best, found
}

// AngleRange returns the lowest and highest angle reachable with taps in [minTap, maxTap].
//
// Angles are not required to grow with the tap, so the whole slice is scanned.
func (t TapTable) AngleRange(minTap, maxTap int) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range t.steps {
		if s.Tap < minTap || s.Tap > maxTap {
			continue
		}
		lo = math.Min(lo, s.Angle)
		hi = math.Max(hi, s.Angle)
	}
	return lo, hi
}
