// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package objective scores sensitivity results.
//
// The overall cost of an operating point is a functional cost, the negated
// worst margin among optimized CNECs, plus named non-negative virtual costs
// penalising monitored-element and loop-flow violations. Lower is better and
// a cost at or below zero means the network is secure.
package objective

import (
	"errors"
	"fmt"
	"math"

	"github.com/AleutianAI/AleutianRAO/services/rao/crac"
	"github.com/AleutianAI/AleutianRAO/services/rao/sensitivity"
)

// ErrMissingFlow indicates a result without the flow of a scored CNEC.
var ErrMissingFlow = errors.New("missing cnec flow")

// Function evaluates results against one CRAC and one initial state.
//
// Description:
//
//	The initial result is the pre-optimisation reference. MNEC and loop-flow
//	limits are relative to it, and relative margins use its zonal PTDF sums
//	so that every leaf is scored against the same denominators.
//
// Thread Safety: Immutable after construction, safe for concurrent use.
type Function struct {
	cfg       Config
	optimized []*crac.FlowCnec
	mnecs     []*crac.FlowCnec
	loopFlows []*crac.FlowCnec
	all       []*crac.FlowCnec
	initial   *sensitivity.Result
}

// NewFunction builds the objective for a CRAC.
//
// Inputs:
//
//	cfg - Objective configuration, validated by the caller.
//	c - CRAC providing the CNEC sets.
//	initial - Result of the initial network. May be nil, in which case
//	          MNEC and loop-flow references default to zero.
func NewFunction(cfg Config, c *crac.Crac, initial *sensitivity.Result) *Function {
	f := &Function{
		cfg:       cfg,
		optimized: c.OptimizedCnecs(),
		all:       c.Cnecs(),
		initial:   initial,
	}
	if cfg.EnableMnec {
		f.mnecs = c.Mnecs()
	}
	if cfg.EnableLoopFlow {
		f.loopFlows = c.LoopFlowCnecs()
	}
	return f
}

// Config returns the configuration.
func (f *Function) Config() Config { return f.cfg }

// Initial returns the reference result, possibly nil.
func (f *Function) Initial() *sensitivity.Result { return f.initial }

// OptimizedCnecs returns the CNECs scored by the functional cost.
func (f *Function) OptimizedCnecs() []*crac.FlowCnec { return f.optimized }

// Mnecs returns the MNECs penalised by this function, empty when disabled.
func (f *Function) Mnecs() []*crac.FlowCnec { return f.mnecs }

// LoopFlowCnecs returns the CNECs with a penalised loop flow, empty when disabled.
func (f *Function) LoopFlowCnecs() []*crac.FlowCnec { return f.loopFlows }

// Request returns what the oracle must compute for this function.
func (f *Function) Request(rangeActions []crac.RangeAction) sensitivity.Request {
	return sensitivity.Request{
		Cnecs:           f.all,
		RangeActions:    rangeActions,
		CommercialFlows: len(f.loopFlows) > 0,
		PtdfSums:        f.cfg.Relative(),
	}
}

// PtdfSum returns the relative-margin denominator of a CNEC: the zonal
// PTDF sum of the reference result floored by the configured lower bound.
func (f *Function) PtdfSum(cnec *crac.FlowCnec, current *sensitivity.Result) float64 {
	sum, ok := 0.0, false
	if f.initial != nil {
		sum, ok = f.initial.PtdfZonalSum(cnec.ID)
	}
	if !ok && current != nil {
		sum, _ = current.PtdfZonalSum(cnec.ID)
	}
	return math.Max(sum, f.cfg.PtdfSumLowerBound)
}

// MnecInitialMargin returns the MW margin of an MNEC in the reference result.
func (f *Function) MnecInitialMargin(cnec *crac.FlowCnec) (float64, bool) {
	if f.initial == nil {
		return 0, false
	}
	flow, ok := f.initial.Flow(cnec.ID)
	if !ok {
		return 0, false
	}
	return cnec.Margin(flow, crac.UnitMegawatt), true
}

// LoopFlowLimit returns the absolute loop flow tolerated on a CNEC in MW.
func (f *Function) LoopFlowLimit(cnec *crac.FlowCnec) float64 {
	var initial float64
	if f.initial != nil {
		if lf, ok := f.initial.LoopFlow(cnec.ID); ok {
			initial = lf
		}
	}
	threshold := 0.0
	if cnec.LoopFlowThreshold != nil {
		threshold = *cnec.LoopFlowThreshold
	}
	return math.Max(threshold, math.Abs(initial)+f.cfg.LoopFlowAcceptableAugmentation)
}

// Evaluate scores a result.
//
// Description:
//
//	Margins are computed for every CNEC in the configured unit. The
//	functional cost is minus the smallest objective margin among optimized
//	CNECs, where relative mode divides positive margins by PtdfSum. CNECs
//	without any bound are ignored. With no scored CNEC the functional cost
//	is zero.
//
// Outputs:
//
//	*Result - The scored result.
//	error - ErrMissingFlow when an optimized, MNEC or loop-flow CNEC has no flow.
func (f *Function) Evaluate(res *sensitivity.Result) (*Result, error) {
	out := newResult()

	for _, c := range f.all {
		flow, ok := res.Flow(c.ID)
		if !ok {
			if c.Optimized {
				return nil, fmt.Errorf("%w: %s", ErrMissingFlow, c.ID)
			}
			continue
		}
		out.flows[c.ID] = flow
		out.margins[c.ID] = c.Margin(flow, f.cfg.Unit)
	}

	worst := math.Inf(1)
	for _, c := range f.optimized {
		m := out.margins[c.ID]
		if math.IsInf(m, 1) {
			continue
		}
		if f.cfg.Relative() && m > 0 {
			m /= f.PtdfSum(c, res)
		}
		out.objectiveMargins[c.ID] = m
		worst = math.Min(worst, m)
	}
	if !math.IsInf(worst, 1) {
		out.functionalCost = -worst
	}

	if f.cfg.EnableMnec {
		if err := f.evaluateMnecs(res, out); err != nil {
			return nil, err
		}
	}
	if f.cfg.EnableLoopFlow {
		if err := f.evaluateLoopFlows(res, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (f *Function) evaluateMnecs(res *sensitivity.Result, out *Result) error {
	out.virtual[MnecCostName] = 0
	for _, c := range f.mnecs {
		flow, ok := res.Flow(c.ID)
		if !ok {
			return fmt.Errorf("%w: mnec %s", ErrMissingFlow, c.ID)
		}
		current := c.Margin(flow, crac.UnitMegawatt)
		if math.IsInf(current, 1) {
			continue
		}
		initial, ok := f.MnecInitialMargin(c)
		if !ok {
			initial = current
		}
		floor := math.Min(0, initial-f.cfg.MnecAcceptableMarginDiminution)
		if excess := floor - current; excess > 0 {
			cost := excess * f.cfg.MnecViolationCost
			out.virtual[MnecCostName] += cost
			out.addCostly(MnecCostName, c.ID, cost)
		}
	}
	return nil
}

func (f *Function) evaluateLoopFlows(res *sensitivity.Result, out *Result) error {
	out.virtual[LoopFlowCostName] = 0
	for _, c := range f.loopFlows {
		lf, ok := res.LoopFlow(c.ID)
		if !ok {
			return fmt.Errorf("%w: loop flow of %s", ErrMissingFlow, c.ID)
		}
		out.loopFlows[c.ID] = lf
		if excess := math.Abs(lf) - f.LoopFlowLimit(c); excess > 0 {
			cost := excess * f.cfg.LoopFlowViolationCost
			out.virtual[LoopFlowCostName] += cost
			out.addCostly(LoopFlowCostName, c.ID, cost)
		}
	}
	return nil
}
