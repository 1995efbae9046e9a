// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package linear

import (
	"fmt"
	"math"
	"sort"

	"github.com/AleutianAI/AleutianRAO/services/rao/crac"
	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
)

// setpointTolerance is the smallest HVDC setpoint change considered a move.
const setpointTolerance = 1e-6

// Setpoints are range action values. PST values are angles of existing taps.
type Setpoints struct {
	Values map[string]float64
	Taps   map[string]int
}

// ReadSetpoints maps a solution back to range action setpoints.
//
// Description:
//
//	PST angles are rounded to the nearest tap allowed by the PST's ranges,
//	ties going to the smallest tap, and reported as that tap's angle. The
//	ranges are evaluated against the reference values of in. A range action
//	absent from the solution keeps its value in in.Setpoints.
func ReadSetpoints(sol *Solution, rangeActions []crac.RangeAction, in Input) (Setpoints, error) {
	out := Setpoints{Values: make(map[string]float64), Taps: make(map[string]int)}
	for _, ra := range rangeActions {
		v, ok := sol.Values[setpointVar(ra.ID())]
		if !ok {
			v = in.Setpoints[ra.ID()]
		}
		if pst, ok := ra.(*crac.PstRangeAction); ok {
			pre, initial := in.references(ra.ID())
			tap := pst.NearestAdmissibleTap(v, pre, initial)
			angle, err := pst.Taps().Angle(tap)
			if err != nil {
				return Setpoints{}, fmt.Errorf("range action %s: %w", ra.ID(), err)
			}
			out.Taps[ra.ID()] = tap
			v = angle
		}
		out.Values[ra.ID()] = v
	}
	return out, nil
}

// CurrentSetpoints reads the range action values of a variant.
func CurrentSetpoints(v *grid.Variant, rangeActions []crac.RangeAction) (Setpoints, error) {
	out := Setpoints{Values: make(map[string]float64), Taps: make(map[string]int)}
	for _, ra := range rangeActions {
		value, err := ra.CurrentValue(v)
		if err != nil {
			return Setpoints{}, err
		}
		out.Values[ra.ID()] = value
		if pst, ok := ra.(*crac.PstRangeAction); ok {
			tap, err := pst.CurrentTap(v)
			if err != nil {
				return Setpoints{}, err
			}
			out.Taps[ra.ID()] = tap
		}
	}
	return out, nil
}

// Apply writes the setpoints to a variant. PSTs go to their recorded tap.
func (s Setpoints) Apply(v *grid.Variant, rangeActions []crac.RangeAction) error {
	for _, ra := range rangeActions {
		if pst, ok := ra.(*crac.PstRangeAction); ok {
			if tap, ok := s.Taps[ra.ID()]; ok {
				if err := pst.ApplyTap(v, tap); err != nil {
					return fmt.Errorf("apply range action %s: %w", ra.ID(), err)
				}
				continue
			}
		}
		value, ok := s.Values[ra.ID()]
		if !ok {
			continue
		}
		if err := ra.Apply(v, value); err != nil {
			return fmt.Errorf("apply range action %s: %w", ra.ID(), err)
		}
	}
	return nil
}

// Equal reports whether every value matches other within tolerance.
func (s Setpoints) Equal(other map[string]float64) bool {
	if len(s.Values) != len(other) {
		return false
	}
	for id, v := range s.Values {
		o, ok := other[id]
		if !ok || math.Abs(v-o) > setpointTolerance {
			return false
		}
	}
	return true
}

// Moved returns the sorted ids of range actions whose value differs from reference
// by more than epsilon.
func (s Setpoints) Moved(reference map[string]float64, epsilon float64) []string {
	var ids []string
	for id, v := range s.Values {
		if math.Abs(v-reference[id]) > epsilon {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
