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
)

// Threshold bounds the flow of a CNEC in a given unit. A nil bound is open.
type Threshold struct {
	Unit Unit
	Min  *float64
	Max  *float64
}

// Contingency is an outage of one or more branches.
type Contingency struct {
	ID        string
	Name      string
	BranchIDs []string
}

// FlowCnec is a critical branch monitored in the base case or after a contingency.
//
// Description:
//
//	Optimized CNECs drive the functional cost. Monitored CNECs that are not
//	optimized only contribute the MNEC virtual cost. A CNEC with a
//	LoopFlowThreshold also contributes the loop-flow virtual cost.
type FlowCnec struct {
	ID            string
	Name          string
	BranchID      string
	ContingencyID string
	Operator      string
	Thresholds    []Threshold
	Optimized     bool
	Monitored     bool

	// NominalVoltage in kV.
	NominalVoltage float64

	// IMax in A, needed by percent thresholds.
	IMax float64

	// ReliabilityMargin in MW, removed from both sides of the admissible band.
	ReliabilityMargin float64

	// LoopFlowThreshold in MW. Nil when loop flows are not limited.
	LoopFlowThreshold *float64
}

// IsBaseCase reports whether the CNEC is monitored without contingency.
func (c *FlowCnec) IsBaseCase() bool { return c.ContingencyID == "" }

// IsMnec reports whether the CNEC is only monitored.
func (c *FlowCnec) IsMnec() bool { return c.Monitored && !c.Optimized }

func (c *FlowCnec) validate() error {
	if c.ID == "" || c.BranchID == "" {
		return fmt.Errorf("%w: cnec %q needs an id and a branch", ErrInvalidCrac, c.ID)
	}
	if len(c.Thresholds) == 0 {
		return fmt.Errorf("%w: cnec %q has no threshold", ErrInvalidCrac, c.ID)
	}
	for _, th := range c.Thresholds {
		switch th.Unit {
		case UnitMegawatt:
		case UnitAmpere:
			if c.NominalVoltage <= 0 {
				return fmt.Errorf("%w: cnec %q has an ampere threshold but no nominal voltage", ErrInvalidCrac, c.ID)
			}
		case UnitPercentImax:
			if c.NominalVoltage <= 0 || c.IMax <= 0 {
				return fmt.Errorf("%w: cnec %q has a percent threshold but no Imax", ErrInvalidCrac, c.ID)
			}
		default:
			return fmt.Errorf("%w: cnec %q threshold unit %s is not a flow unit", ErrInvalidCrac, c.ID, th.Unit)
		}
		if th.Min == nil && th.Max == nil {
			return fmt.Errorf("%w: cnec %q has a threshold without bounds", ErrInvalidCrac, c.ID)
		}
	}
	return nil
}

// toMegawatt converts a threshold value to MW.
func (c *FlowCnec) toMegawatt(value float64, unit Unit) float64 {
	switch unit {
	case UnitAmpere:
		return AmpereToMegawatt(value, c.NominalVoltage)
	case UnitPercentImax:
		return AmpereToMegawatt(value/100*c.IMax, c.NominalVoltage)
	default:
		return value
	}
}

// ConvertFlow expresses a MW quantity in the requested unit.
//
// Only MW, A and percent of Imax are meaningful; any other unit returns the
// input unchanged.
func (c *FlowCnec) ConvertFlow(mw float64, unit Unit) float64 {
	switch unit {
	case UnitAmpere:
		return MegawattToAmpere(mw, c.NominalVoltage)
	case UnitPercentImax:
		return MegawattToAmpere(mw, c.NominalVoltage) / c.IMax * 100
	default:
		return mw
	}
}

// UpperBound returns the tightest maximum flow in the requested unit.
func (c *FlowCnec) UpperBound(unit Unit) (float64, bool) {
	ub, found := math.Inf(1), false
	for _, th := range c.Thresholds {
		if th.Max == nil {
			continue
		}
		ub = math.Min(ub, c.toMegawatt(*th.Max, th.Unit))
		found = true
	}
	if !found {
		return 0, false
	}
	return c.ConvertFlow(ub-c.ReliabilityMargin, unit), true
}

// LowerBound returns the tightest minimum flow in the requested unit.
func (c *FlowCnec) LowerBound(unit Unit) (float64, bool) {
	lb, found := math.Inf(-1), false
	for _, th := range c.Thresholds {
		if th.Min == nil {
			continue
		}
		lb = math.Max(lb, c.toMegawatt(*th.Min, th.Unit))
		found = true
	}
	if !found {
		return 0, false
	}
	return c.ConvertFlow(lb+c.ReliabilityMargin, unit), true
}

// Margin returns the distance to the closest bound for a flow in MW.
//
// Outputs:
//
//	float64 - Margin in unit; negative when a bound is violated, +Inf when
//	          the CNEC defines no bound.
func (c *FlowCnec) Margin(flowMW float64, unit Unit) float64 {
	m := math.Inf(1)
	if ub, ok := c.UpperBound(UnitMegawatt); ok {
		m = math.Min(m, ub-flowMW)
	}
	if lb, ok := c.LowerBound(UnitMegawatt); ok {
		m = math.Min(m, flowMW-lb)
	}
	if math.IsInf(m, 1) {
		return m
	}
	return c.ConvertFlow(m, unit)
}
