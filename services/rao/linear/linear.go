// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package linear optimises range action setpoints with a linear program.
//
// Fillers write the LP around one linearisation point: the current flows and
// sensitivities, and the range action setpoints they were computed at. The
// Engine runs the fillers in a fixed order, solves, and reads setpoints back.
// The IteratingOptimizer repeats this, recomputing sensitivities at each new
// operating point, while the objective keeps improving.
package linear

import (
	"github.com/AleutianAI/AleutianRAO/services/rao/sensitivity"
)

// Input is one linearisation point.
type Input struct {
	// Result holds flows, sensitivities and optional commercial flows at Setpoints.
	Result *sensitivity.Result

	// Setpoints are the range action values Result was computed at.
	Setpoints map[string]float64

	// PrePerimeter are the range action values before optimisation. They are
	// the reference for setpoint variation and relative-to-previous ranges.
	PrePerimeter map[string]float64

	// Initial are the range action values of the initial network.
	Initial map[string]float64
}

// references returns the pre-perimeter and initial values of a range action.
// Missing pre-perimeter values fall back to Setpoints, missing initial values
// to the pre-perimeter one.
func (in Input) references(id string) (pre, initial float64) {
	pre, ok := in.PrePerimeter[id]
	if !ok {
		pre = in.Setpoints[id]
	}
	initial, ok = in.Initial[id]
	if !ok {
		initial = pre
	}
	return pre, initial
}

// Filler adds its own variables and constraints to a Problem.
//
// Description:
//
//	Fill creates everything the filler owns. Update rewrites coefficients
//	and bounds for a new Input and must leave the problem exactly as Fill
//	would have built it from that Input. A filler only reads names created
//	by fillers that run before it.
type Filler interface {
	Name() string
	Fill(p *Problem, in Input) error
	Update(p *Problem, in Input) error
}

// Variable and constraint names.
const (
	minMarginVar = "min_margin"
)

func setpointVar(raID string) string            { return "setpoint_" + raID }
func absVariationVar(raID string) string        { return "abs_variation_" + raID }
func absVariationPosCon(raID string) string     { return "abs_variation_pos_" + raID }
func absVariationNegCon(raID string) string     { return "abs_variation_neg_" + raID }
func flowVar(cnecID string) string              { return "flow_" + cnecID }
func flowCon(cnecID string) string              { return "flow_definition_" + cnecID }
func marginUpperCon(cnecID string) string       { return "min_margin_upper_" + cnecID }
func marginLowerCon(cnecID string) string       { return "min_margin_lower_" + cnecID }
func mnecViolationVar(cnecID string) string     { return "mnec_violation_" + cnecID }
func mnecUpperCon(cnecID string) string         { return "mnec_upper_" + cnecID }
func mnecLowerCon(cnecID string) string         { return "mnec_lower_" + cnecID }
func loopFlowViolationVar(cnecID string) string { return "loop_flow_violation_" + cnecID }
func loopFlowUpperCon(cnecID string) string     { return "loop_flow_upper_" + cnecID }
func loopFlowLowerCon(cnecID string) string     { return "loop_flow_lower_" + cnecID }
