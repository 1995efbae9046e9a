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

	"github.com/AleutianAI/AleutianRAO/services/rao/crac"
	"github.com/AleutianAI/AleutianRAO/services/rao/objective"
)

// DefaultSensitivityThreshold drops negligible sensitivities from the LP.
const DefaultSensitivityThreshold = 1e-6

// NewFillers returns the fillers for an objective in execution order:
// core, margin, then MNEC and loop-flow when the objective penalises them.
func NewFillers(fn *objective.Function, rangeActions []crac.RangeAction, sensitivityThreshold float64) []Filler {
	cfg := fn.Config()
	cnecs := unionCnecs(fn.OptimizedCnecs(), fn.Mnecs(), fn.LoopFlowCnecs())
	fillers := []Filler{
		NewCoreFiller(rangeActions, cnecs, cfg.RangeActionPenaltyCost, sensitivityThreshold),
		NewMaxMinMarginFiller(fn),
	}
	if len(fn.Mnecs()) > 0 {
		fillers = append(fillers, NewMnecFiller(fn))
	}
	if len(fn.LoopFlowCnecs()) > 0 {
		fillers = append(fillers, NewLoopFlowFiller(fn))
	}
	return fillers
}

func unionCnecs(sets ...[]*crac.FlowCnec) []*crac.FlowCnec {
	seen := make(map[string]bool)
	var out []*crac.FlowCnec
	for _, set := range sets {
		for _, c := range set {
			if !seen[c.ID] {
				seen[c.ID] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// variable creates a variable when create is set, otherwise resets its bounds.
func variable(p *Problem, create bool, name string, lower, upper float64) error {
	if create {
		_, err := p.AddVariable(name, lower, upper)
		return err
	}
	v, ok := p.Variable(name)
	if !ok {
		return fmt.Errorf("%w: variable %s", ErrUnknownName, name)
	}
	v.Lower, v.Upper = lower, upper
	return nil
}

// constraint creates a constraint when create is set, otherwise resets its bounds.
func constraint(p *Problem, create bool, name string, lower, upper float64) error {
	if create {
		_, err := p.AddConstraint(name, lower, upper)
		return err
	}
	c, ok := p.Constraint(name)
	if !ok {
		return fmt.Errorf("%w: constraint %s", ErrUnknownName, name)
	}
	c.Lower, c.Upper = lower, upper
	return nil
}

// coefficients sets several coefficients of one constraint.
func coefficients(p *Problem, con string, values map[string]float64) error {
	for name, v := range values {
		if err := p.SetCoefficient(con, name, v); err != nil {
			return err
		}
	}
	return nil
}

// CoreFiller creates range action setpoints and linearised CNEC flows.
//
// Description:
//
//	Per range action: a setpoint variable bounded by its admissible range and
//	an absolute-variation variable, charged at the penalty cost, tied to the
//	pre-perimeter setpoint. Per CNEC: a free flow variable defined by
//	flow - sum(s * setpoint) = f0 - sum(s * setpoint0), where f0 and
//	setpoint0 are the linearisation point.
type CoreFiller struct {
	rangeActions []crac.RangeAction
	cnecs        []*crac.FlowCnec
	penaltyCost  float64
	threshold    float64
}

// NewCoreFiller creates the core filler.
func NewCoreFiller(rangeActions []crac.RangeAction, cnecs []*crac.FlowCnec, penaltyCost, sensitivityThreshold float64) *CoreFiller {
	return &CoreFiller{rangeActions: rangeActions, cnecs: cnecs, penaltyCost: penaltyCost, threshold: sensitivityThreshold}
}

// Name implements Filler.
func (f *CoreFiller) Name() string { return "core" }

// Fill implements Filler.
func (f *CoreFiller) Fill(p *Problem, in Input) error { return f.apply(p, in, true) }

// Update implements Filler.
func (f *CoreFiller) Update(p *Problem, in Input) error { return f.apply(p, in, false) }

func (f *CoreFiller) apply(p *Problem, in Input, create bool) error {
	for _, ra := range f.rangeActions {
		id := ra.ID()
		pre, initial := in.references(id)
		lo, hi := ra.AdmissibleRange(pre, initial)
		if err := variable(p, create, setpointVar(id), lo, hi); err != nil {
			return err
		}
		if err := variable(p, create, absVariationVar(id), 0, math.Inf(1)); err != nil {
			return err
		}
		if err := p.SetObjectiveCoefficient(absVariationVar(id), f.penaltyCost); err != nil {
			return err
		}
		if err := constraint(p, create, absVariationPosCon(id), pre, math.Inf(1)); err != nil {
			return err
		}
		if err := coefficients(p, absVariationPosCon(id), map[string]float64{absVariationVar(id): 1, setpointVar(id): 1}); err != nil {
			return err
		}
		if err := constraint(p, create, absVariationNegCon(id), -pre, math.Inf(1)); err != nil {
			return err
		}
		if err := coefficients(p, absVariationNegCon(id), map[string]float64{absVariationVar(id): 1, setpointVar(id): -1}); err != nil {
			return err
		}
	}

	for _, c := range f.cnecs {
		f0, ok := in.Result.Flow(c.ID)
		if !ok {
			return fmt.Errorf("no flow for cnec %s", c.ID)
		}
		if err := variable(p, create, flowVar(c.ID), math.Inf(-1), math.Inf(1)); err != nil {
			return err
		}
		if err := constraint(p, create, flowCon(c.ID), 0, 0); err != nil {
			return err
		}
		rhs := f0
		coefs := map[string]float64{flowVar(c.ID): 1}
		for _, ra := range f.rangeActions {
			s := in.Result.Sensitivity(c.ID, ra.ID())
			if math.Abs(s) < f.threshold {
				s = 0
			}
			coefs[setpointVar(ra.ID())] = -s
			rhs -= s * in.Setpoints[ra.ID()]
		}
		if err := coefficients(p, flowCon(c.ID), coefs); err != nil {
			return err
		}
		con, _ := p.Constraint(flowCon(c.ID))
		con.Lower, con.Upper = rhs, rhs
	}
	return nil
}

// MaxMinMarginFiller maximises the smallest CNEC margin.
//
// Description:
//
//	Adds a free variable M with cost -1 and, per optimized CNEC bound,
//	M <= k * (max - flow) and M <= k * (flow - min), where k converts MW to
//	the objective unit. In relative mode k is further divided by the CNEC's
//	PTDF sum, which scores negative margins relatively too; the objective
//	function still scores them absolutely.
type MaxMinMarginFiller struct {
	fn *objective.Function
}

// NewMaxMinMarginFiller creates the margin filler.
func NewMaxMinMarginFiller(fn *objective.Function) *MaxMinMarginFiller {
	return &MaxMinMarginFiller{fn: fn}
}

// Name implements Filler.
func (f *MaxMinMarginFiller) Name() string {
	if f.fn.Config().Relative() {
		return "max-min-relative-margin"
	}
	return "max-min-margin"
}

// Fill implements Filler.
func (f *MaxMinMarginFiller) Fill(p *Problem, in Input) error { return f.apply(p, in, true) }

// Update implements Filler.
func (f *MaxMinMarginFiller) Update(p *Problem, in Input) error { return f.apply(p, in, false) }

func (f *MaxMinMarginFiller) apply(p *Problem, in Input, create bool) error {
	cfg := f.fn.Config()
	constrained := false
	for _, c := range f.fn.OptimizedCnecs() {
		if _, ok := c.UpperBound(crac.UnitMegawatt); ok {
			constrained = true
		}
		if _, ok := c.LowerBound(crac.UnitMegawatt); ok {
			constrained = true
		}
	}
	lo, hi := math.Inf(-1), math.Inf(1)
	if !constrained {
		lo, hi = 0, 0
	}
	if err := variable(p, create, minMarginVar, lo, hi); err != nil {
		return err
	}
	if err := p.SetObjectiveCoefficient(minMarginVar, -1); err != nil {
		return err
	}

	for _, c := range f.fn.OptimizedCnecs() {
		k := c.ConvertFlow(1, cfg.Unit)
		if cfg.Relative() {
			k /= f.fn.PtdfSum(c, in.Result)
		}
		if ub, ok := c.UpperBound(crac.UnitMegawatt); ok {
			if err := constraint(p, create, marginUpperCon(c.ID), math.Inf(-1), k*ub); err != nil {
				return err
			}
			if err := coefficients(p, marginUpperCon(c.ID), map[string]float64{minMarginVar: 1, flowVar(c.ID): k}); err != nil {
				return err
			}
		}
		if lb, ok := c.LowerBound(crac.UnitMegawatt); ok {
			if err := constraint(p, create, marginLowerCon(c.ID), math.Inf(-1), -k*lb); err != nil {
				return err
			}
			if err := coefficients(p, marginLowerCon(c.ID), map[string]float64{minMarginVar: 1, flowVar(c.ID): -k}); err != nil {
				return err
			}
		}
	}
	return nil
}

// MnecFiller keeps monitored-only CNECs within their tolerated band.
//
// Description:
//
//	Per MNEC, a violation variable v >= 0 charged at the MNEC violation
//	cost relaxes flow - v <= max(max, f_init + d) - a and
//	flow + v >= min(min, f_init - d) + a, where d is the acceptable margin
//	diminution and a the constraint adjustment, all in MW.
type MnecFiller struct {
	fn *objective.Function
}

// NewMnecFiller creates the MNEC filler.
func NewMnecFiller(fn *objective.Function) *MnecFiller { return &MnecFiller{fn: fn} }

// Name implements Filler.
func (f *MnecFiller) Name() string { return "mnec" }

// Fill implements Filler.
func (f *MnecFiller) Fill(p *Problem, in Input) error { return f.apply(p, in, true) }

// Update implements Filler.
func (f *MnecFiller) Update(p *Problem, in Input) error { return f.apply(p, in, false) }

func (f *MnecFiller) apply(p *Problem, in Input, create bool) error {
	cfg := f.fn.Config()
	for _, c := range f.fn.Mnecs() {
		initialFlow, ok := 0.0, false
		if initial := f.fn.Initial(); initial != nil {
			initialFlow, ok = initial.Flow(c.ID)
		}
		if !ok {
			if initialFlow, ok = in.Result.Flow(c.ID); !ok {
				return fmt.Errorf("no flow for mnec %s", c.ID)
			}
		}
		v := mnecViolationVar(c.ID)
		if err := variable(p, create, v, 0, math.Inf(1)); err != nil {
			return err
		}
		if err := p.SetObjectiveCoefficient(v, cfg.MnecViolationCost); err != nil {
			return err
		}
		if ub, ok := c.UpperBound(crac.UnitMegawatt); ok {
			limit := math.Max(ub, initialFlow+cfg.MnecAcceptableMarginDiminution) - cfg.MnecConstraintAdjustment
			if err := constraint(p, create, mnecUpperCon(c.ID), math.Inf(-1), limit); err != nil {
				return err
			}
			if err := coefficients(p, mnecUpperCon(c.ID), map[string]float64{flowVar(c.ID): 1, v: -1}); err != nil {
				return err
			}
		}
		if lb, ok := c.LowerBound(crac.UnitMegawatt); ok {
			limit := math.Min(lb, initialFlow-cfg.MnecAcceptableMarginDiminution) + cfg.MnecConstraintAdjustment
			if err := constraint(p, create, mnecLowerCon(c.ID), limit, math.Inf(1)); err != nil {
				return err
			}
			if err := coefficients(p, mnecLowerCon(c.ID), map[string]float64{flowVar(c.ID): 1, v: 1}); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoopFlowFiller bounds loop flows around the current commercial flows.
//
// Description:
//
//	Per loop-flow CNEC, with U the tolerated loop flow and cf the commercial
//	flow at the linearisation point: flow - v <= U + cf and
//	flow + v >= -U + cf. With a zero violation cost there is no v and the
//	constraints are hard. Update refreshes cf.
type LoopFlowFiller struct {
	fn *objective.Function
}

// NewLoopFlowFiller creates the loop-flow filler.
func NewLoopFlowFiller(fn *objective.Function) *LoopFlowFiller { return &LoopFlowFiller{fn: fn} }

// Name implements Filler.
func (f *LoopFlowFiller) Name() string { return "loop-flow" }

// Fill implements Filler.
func (f *LoopFlowFiller) Fill(p *Problem, in Input) error { return f.apply(p, in, true) }

// Update implements Filler.
func (f *LoopFlowFiller) Update(p *Problem, in Input) error { return f.apply(p, in, false) }

func (f *LoopFlowFiller) apply(p *Problem, in Input, create bool) error {
	cost := f.fn.Config().LoopFlowViolationCost
	for _, c := range f.fn.LoopFlowCnecs() {
		cf, ok := in.Result.CommercialFlow(c.ID)
		if !ok {
			return fmt.Errorf("no commercial flow for cnec %s", c.ID)
		}
		limit := f.fn.LoopFlowLimit(c)

		upper := map[string]float64{flowVar(c.ID): 1}
		lower := map[string]float64{flowVar(c.ID): 1}
		if cost > 0 {
			v := loopFlowViolationVar(c.ID)
			if err := variable(p, create, v, 0, math.Inf(1)); err != nil {
				return err
			}
			if err := p.SetObjectiveCoefficient(v, cost); err != nil {
				return err
			}
			upper[v] = -1
			lower[v] = 1
		}
		if err := constraint(p, create, loopFlowUpperCon(c.ID), math.Inf(-1), limit+cf); err != nil {
			return err
		}
		if err := coefficients(p, loopFlowUpperCon(c.ID), upper); err != nil {
			return err
		}
		if err := constraint(p, create, loopFlowLowerCon(c.ID), -limit+cf, math.Inf(1)); err != nil {
			return err
		}
		if err := coefficients(p, loopFlowLowerCon(c.ID), lower); err != nil {
			return err
		}
	}
	return nil
}
