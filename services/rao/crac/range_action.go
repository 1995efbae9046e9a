// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package crac

import (
	"fmt"
	"math"

	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
)

// RangeType says what a range's bounds are relative to.
type RangeType int

const (
	// RangeAbsolute bounds are absolute values.
	RangeAbsolute RangeType = iota
	// RangeRelativeToPreviousInstant bounds are offsets from the setpoint
	// at the start of the optimised perimeter.
	RangeRelativeToPreviousInstant
	// RangeRelativeToInitialNetwork bounds are offsets from the setpoint in
	// the initial network.
	RangeRelativeToInitialNetwork
)

var rangeTypeNames = [...]string{"ABSOLUTE", "RELATIVE_TO_PREVIOUS_INSTANT", "RELATIVE_TO_INITIAL_NETWORK"}

// String returns the canonical name.
func (r RangeType) String() string {
	if r < 0 || int(r) >= len(rangeTypeNames) {
		return fmt.Sprintf("RangeType(%d)", int(r))
	}
	return rangeTypeNames[r]
}

// ParseRangeType parses a canonical name.
func ParseRangeType(s string) (RangeType, error) {
	for i, n := range rangeTypeNames {
		if n == s {
			return RangeType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown range type %q", ErrInvalidCrac, s)
}

// Range bounds a range action. PST ranges are in taps, HVDC ranges in MW.
type Range struct {
	Type RangeType
	Min  float64
	Max  float64
}

// RangeActionKind distinguishes the concrete range action types.
type RangeActionKind int

const (
	// KindPst is a phase-shifter range action, setpoint in degrees.
	KindPst RangeActionKind = iota
	// KindHvdc is an HVDC range action, setpoint in MW.
	KindHvdc
)

// String returns "PST" or "HVDC".
func (k RangeActionKind) String() string {
	if k == KindHvdc {
		return "HVDC"
	}
	return "PST"
}

// RangeAction is a continuous remedial action optimised by the linear problem.
//
// Implementations are *PstRangeAction and *HvdcRangeAction.
type RangeAction interface {
	ID() string
	Name() string
	Operator() string
	Kind() RangeActionKind
	NetworkElementID() string

	// Apply sets the action to setpoint on the variant.
	Apply(v *grid.Variant, setpoint float64) error

	// CurrentValue reads the setpoint from the variant.
	CurrentValue(v *grid.Variant) (float64, error)

	// AdmissibleRange returns the setpoint interval allowed by every range,
	// given the setpoint at the previous instant and in the initial network.
	AdmissibleRange(previous, initial float64) (min, max float64)

	// Countries returns the sorted countries the action is located in.
	Countries(net *grid.Network) []string

	isRangeAction()
}

// PstRangeAction moves a phase shifter within tap ranges.
//
// Its setpoint is the phase-shift angle in degrees. Applying an angle moves
// the PST to the nearest tap.
type PstRangeAction struct {
	id       string
	name     string
	operator string
	pst      grid.Pst
	ranges   []Range
}

// NewPstRangeAction creates a PST range action on a network phase shifter.
func NewPstRangeAction(id, name, operator string, pst grid.Pst, ranges []Range) *PstRangeAction {
	return &PstRangeAction{id: id, name: name, operator: operator, pst: pst, ranges: append([]Range(nil), ranges...)}
}

func (p *PstRangeAction) ID() string               { return p.id }
func (p *PstRangeAction) Name() string             { return p.name }
func (p *PstRangeAction) Operator() string         { return p.operator }
func (p *PstRangeAction) Kind() RangeActionKind    { return KindPst }
func (p *PstRangeAction) NetworkElementID() string { return p.pst.ID }
func (p *PstRangeAction) isRangeAction()           {}

// Taps returns the tap-to-angle table of the phase shifter.
func (p *PstRangeAction) Taps() grid.TapTable { return p.pst.Taps }

// Ranges returns a copy of the tap ranges.
func (p *PstRangeAction) Ranges() []Range { return append([]Range(nil), p.ranges...) }

// Apply moves the PST to the tap closest to angle over the whole table.
//
// Use NearestAdmissibleTap and ApplyTap when the ranges must be honoured.
func (p *PstRangeAction) Apply(v *grid.Variant, angle float64) error {
	return v.SetPstTap(p.pst.ID, p.pst.Taps.NearestTap(angle))
}

// ApplyTap moves the PST to tap.
func (p *PstRangeAction) ApplyTap(v *grid.Variant, tap int) error {
	return v.SetPstTap(p.pst.ID, tap)
}

// NearestAdmissibleTap rounds angle to the closest tap inside TapBounds.
//
// Ties go to the smallest tap. When the ranges do not overlap the PST stays
// on the tap of previous.
func (p *PstRangeAction) NearestAdmissibleTap(angle, previous, initial float64) int {
	minTap, maxTap := p.TapBounds(previous, initial)
	if tap, ok := p.pst.Taps.NearestTapWithin(angle, minTap, maxTap); ok {
		return tap
	}
	return p.pst.Taps.NearestTap(previous)
}

// CurrentTap reads the tap from the variant.
func (p *PstRangeAction) CurrentTap(v *grid.Variant) (int, error) {
	return v.PstTap(p.pst.ID)
}

// CurrentValue reads the angle of the current tap.
func (p *PstRangeAction) CurrentValue(v *grid.Variant) (float64, error) {
	tap, err := v.PstTap(p.pst.ID)
	if err != nil {
		return 0, err
	}
	return p.pst.Taps.Angle(tap)
}

// TapBounds returns the tap interval allowed by every range.
//
// Inputs:
//
//	previous, initial - Angles in degrees, converted to taps with NearestTap.
//
// Outputs:
//
//	minTap, maxTap - Intersection of the table bounds and every range.
//	                 minTap > maxTap when the ranges do not overlap.
func (p *PstRangeAction) TapBounds(previous, initial float64) (int, int) {
	minTap, maxTap := p.pst.Taps.MinTap(), p.pst.Taps.MaxTap()
	prevTap := p.pst.Taps.NearestTap(previous)
	initTap := p.pst.Taps.NearestTap(initial)
	for _, r := range p.ranges {
		lo, hi := int(math.Ceil(r.Min)), int(math.Floor(r.Max))
		switch r.Type {
		case RangeRelativeToPreviousInstant:
			lo, hi = prevTap+lo, prevTap+hi
		case RangeRelativeToInitialNetwork:
			lo, hi = initTap+lo, initTap+hi
		}
		minTap = max(minTap, lo)
		maxTap = min(maxTap, hi)
	}
	return minTap, maxTap
}

// AdmissibleRange returns the angle interval reachable within TapBounds.
//
// When the ranges do not overlap the interval collapses on previous.
func (p *PstRangeAction) AdmissibleRange(previous, initial float64) (float64, float64) {
	minTap, maxTap := p.TapBounds(previous, initial)
	if minTap > maxTap {
		return previous, previous
	}
	return p.pst.Taps.AngleRange(minTap, maxTap)
}

// Countries returns the countries of the PST branch ends.
func (p *PstRangeAction) Countries(net *grid.Network) []string {
	return elementCountries(net, []string{p.pst.ID})
}

// HvdcRangeAction moves the active power setpoint of an HVDC line.
type HvdcRangeAction struct {
	id       string
	name     string
	operator string
	line     grid.HvdcLine
	ranges   []Range
}

// NewHvdcRangeAction creates an HVDC range action on a network line.
func NewHvdcRangeAction(id, name, operator string, line grid.HvdcLine, ranges []Range) *HvdcRangeAction {
	return &HvdcRangeAction{id: id, name: name, operator: operator, line: line, ranges: append([]Range(nil), ranges...)}
}

func (h *HvdcRangeAction) ID() string               { return h.id }
func (h *HvdcRangeAction) Name() string             { return h.name }
func (h *HvdcRangeAction) Operator() string         { return h.operator }
func (h *HvdcRangeAction) Kind() RangeActionKind    { return KindHvdc }
func (h *HvdcRangeAction) NetworkElementID() string { return h.line.ID }
func (h *HvdcRangeAction) isRangeAction()           {}

// Ranges returns a copy of the MW ranges.
func (h *HvdcRangeAction) Ranges() []Range { return append([]Range(nil), h.ranges...) }

// Apply sets the HVDC setpoint.
func (h *HvdcRangeAction) Apply(v *grid.Variant, setpoint float64) error {
	return v.SetHvdcSetpoint(h.line.ID, setpoint)
}

// CurrentValue reads the HVDC setpoint.
func (h *HvdcRangeAction) CurrentValue(v *grid.Variant) (float64, error) {
	return v.HvdcSetpoint(h.line.ID)
}

// AdmissibleRange intersects every range with the line rating.
func (h *HvdcRangeAction) AdmissibleRange(previous, initial float64) (float64, float64) {
	lo, hi := math.Inf(-1), math.Inf(1)
	if h.line.MaxP > 0 {
		lo, hi = -h.line.MaxP, h.line.MaxP
	}
	for _, r := range h.ranges {
		rlo, rhi := r.Min, r.Max
		switch r.Type {
		case RangeRelativeToPreviousInstant:
			rlo, rhi = previous+rlo, previous+rhi
		case RangeRelativeToInitialNetwork:
			rlo, rhi = initial+rlo, initial+rhi
		}
		lo = math.Max(lo, rlo)
		hi = math.Min(hi, rhi)
	}
	if lo > hi {
		return previous, previous
	}
	return lo, hi
}

// Countries returns the countries of both converter stations.
func (h *HvdcRangeAction) Countries(net *grid.Network) []string {
	return elementCountries(net, []string{h.line.ID})
}
