// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package searchtree

import (
	"math"
	"sort"
	"time"

	"github.com/AleutianAI/AleutianRAO/services/rao/crac"
	"github.com/AleutianAI/AleutianRAO/services/rao/sensitivity"
)

// SecurityStatus is SECURE when the final cost is not positive.
type SecurityStatus string

const (
	Secure   SecurityStatus = "SECURE"
	Unsecure SecurityStatus = "UNSECURE"
)

// ComputationStatus tells whether the final result relies on a degraded
// sensitivity computation.
type ComputationStatus string

const (
	ComputationDefault  ComputationStatus = "DEFAULT"
	ComputationFallback ComputationStatus = "FALLBACK"
)

// Report is the outcome of a search.
type Report struct {
	Status            SecurityStatus    `json:"status"`
	SensitivityStatus ComputationStatus `json:"sensitivity_status"`
	TerminationReason TerminationReason `json:"termination_reason"`

	// Depth is the number of combinations applied by the incumbent.
	Depth           int `json:"depth"`
	LeavesEvaluated int `json:"leaves_evaluated"`

	InitialCost           float64 `json:"initial_cost"`
	InitialFunctionalCost float64 `json:"initial_functional_cost"`
	FinalCost             float64 `json:"final_cost"`
	FinalFunctionalCost   float64 `json:"final_functional_cost"`

	VirtualCosts   map[string]float64  `json:"virtual_costs"`
	CostlyElements map[string][]string `json:"costly_elements,omitempty"`
	MostLimiting   []string            `json:"most_limiting"`

	NetworkActions []string             `json:"network_actions"`
	RangeActions   []RangeActionResult  `json:"range_actions"`
	Operators      []OperatorActivation `json:"operators"`
	Cnecs          []CnecResult         `json:"cnecs"`

	// CostHistory is the incumbent cost after the root and each selection.
	CostHistory []float64     `json:"cost_history"`
	Leaves      []LeafTrace   `json:"leaves"`
	Budget      UsageReport   `json:"budget"`
	Duration    time.Duration `json:"duration"`
}

// RangeActionResult is the optimised value of one range action.
type RangeActionResult struct {
	ID           string  `json:"id"`
	Operator     string  `json:"operator"`
	Kind         string  `json:"kind"`
	Setpoint     float64 `json:"setpoint"`
	Tap          *int    `json:"tap,omitempty"`
	PrePerimeter float64 `json:"pre_perimeter"`
	Activated    bool    `json:"activated"`
}

// OperatorActivation lists what an operator activated.
type OperatorActivation struct {
	Operator       string   `json:"operator"`
	NetworkActions []string `json:"network_actions,omitempty"`
	RangeActions   []string `json:"range_actions,omitempty"`
}

// CnecResult is the final state of one CNEC. Margin is omitted when the
// CNEC has no bound.
type CnecResult struct {
	ID            string   `json:"id"`
	BranchID      string   `json:"branch_id"`
	ContingencyID string   `json:"contingency_id,omitempty"`
	Operator      string   `json:"operator"`
	Optimized     bool     `json:"optimized"`
	Monitored     bool     `json:"monitored"`
	Flow          float64  `json:"flow"`
	Margin        *float64 `json:"margin,omitempty"`
	InitialFlow   *float64 `json:"initial_flow,omitempty"`
	InitialMargin *float64 `json:"initial_margin,omitempty"`
}

// LeafTrace summarises one leaf of the tree.
type LeafTrace struct {
	ID          string        `json:"id"`
	Parent      string        `json:"parent,omitempty"`
	Depth       int           `json:"depth"`
	Combination string        `json:"combination,omitempty"`
	Status      Status        `json:"status"`
	Cost        *float64      `json:"cost,omitempty"`
	Fallback    bool          `json:"fallback,omitempty"`
	Selected    bool          `json:"selected,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Secure reports whether the final state is secure.
func (r *Report) Secure() bool { return r.Status == Secure }

// Cnec returns the result of one CNEC.
func (r *Report) Cnec(id string) (CnecResult, bool) {
	for _, c := range r.Cnecs {
		if c.ID == id {
			return c, true
		}
	}
	return CnecResult{}, false
}

// RangeAction returns the result of one range action.
func (r *Report) RangeAction(id string) (RangeActionResult, bool) {
	for _, ra := range r.RangeActions {
		if ra.ID == id {
			return ra, true
		}
	}
	return RangeActionResult{}, false
}

type reportInput struct {
	catalog   *crac.Crac
	root      *Leaf
	incumbent *Leaf
	leaves    []*Leaf
	history   []float64
	reason    TerminationReason
	budget    *Budget
	epsilon   float64
	duration  time.Duration
}

func buildReport(in reportInput) *Report {
	final := in.incumbent
	obj := final.Objective()
	rootObj := in.root.Objective()

	r := &Report{
		Status:                Unsecure,
		SensitivityStatus:     ComputationDefault,
		TerminationReason:     in.reason,
		Depth:                 final.Depth(),
		InitialCost:           rootObj.Cost(),
		InitialFunctionalCost: rootObj.FunctionalCost(),
		FinalCost:             obj.Cost(),
		FinalFunctionalCost:   obj.FunctionalCost(),
		VirtualCosts:          obj.VirtualCosts(),
		MostLimiting:          obj.MostLimiting(5),
		NetworkActions:        final.NetworkActionIDs(),
		CostHistory:           in.history,
		Budget:                in.budget.Report(),
		Duration:              in.duration,
	}
	if r.FinalCost <= 0 {
		r.Status = Secure
	}
	if final.SensitivityStatus() == sensitivity.StatusFallback {
		r.SensitivityStatus = ComputationFallback
	}

	for _, name := range obj.VirtualCostNames() {
		if ids := obj.CostlyElements(name, 5); len(ids) > 0 {
			if r.CostlyElements == nil {
				r.CostlyElements = make(map[string][]string)
			}
			r.CostlyElements[name] = ids
		}
	}

	activatedRAs := make(map[string]struct{})
	for _, id := range final.ActivatedRangeActions(in.epsilon) {
		activatedRAs[id] = struct{}{}
	}
	for _, ra := range in.catalog.RangeActions() {
		res := RangeActionResult{
			ID:       ra.ID(),
			Operator: ra.Operator(),
			Kind:     ra.Kind().String(),
			Setpoint: final.Setpoint(ra.ID()),
		}
		if tap, ok := final.Tap(ra.ID()); ok {
			res.Tap = &tap
		}
		res.PrePerimeter = in.root.prePerimeterValue(ra.ID())
		_, res.Activated = activatedRAs[ra.ID()]
		r.RangeActions = append(r.RangeActions, res)
	}

	r.Operators = operatorActivations(final, in.catalog, activatedRAs)

	for _, c := range in.catalog.Cnecs() {
		flow, ok := obj.Flow(c.ID)
		if !ok {
			continue
		}
		res := CnecResult{
			ID:            c.ID,
			BranchID:      c.BranchID,
			ContingencyID: c.ContingencyID,
			Operator:      c.Operator,
			Optimized:     c.Optimized,
			Monitored:     c.Monitored,
			Flow:          flow,
		}
		if m, ok := obj.Margin(c.ID); ok {
			res.Margin = finite(m)
		}
		if f, ok := rootObj.Flow(c.ID); ok {
			res.InitialFlow = finite(f)
		}
		if m, ok := rootObj.Margin(c.ID); ok {
			res.InitialMargin = finite(m)
		}
		r.Cnecs = append(r.Cnecs, res)
	}

	for _, l := range in.leaves {
		st := l.Status()
		if st == StatusEvaluated || st == StatusEvaluationError {
			r.LeavesEvaluated++
		}
		trace := LeafTrace{
			ID:          l.ID(),
			Depth:       l.Depth(),
			Combination: l.CombinationKey(),
			Status:      st,
			Fallback:    l.SensitivityStatus() == sensitivity.StatusFallback,
			Selected:    isAncestor(l, final),
			Duration:    l.Duration(),
		}
		if p := l.Parent(); p != nil {
			trace.Parent = p.ID()
		}
		if st == StatusEvaluated {
			trace.Cost = finite(l.Cost())
		}
		if err := l.Err(); err != nil {
			trace.Error = err.Error()
		}
		r.Leaves = append(r.Leaves, trace)
	}
	return r
}

func operatorActivations(final *Leaf, catalog *crac.Crac, activatedRAs map[string]struct{}) []OperatorActivation {
	byOp := make(map[string]*OperatorActivation)
	get := func(op string) *OperatorActivation {
		if a, ok := byOp[op]; ok {
			return a
		}
		a := &OperatorActivation{Operator: op}
		byOp[op] = a
		return a
	}
	for _, na := range final.NetworkActions() {
		a := get(na.Operator)
		a.NetworkActions = append(a.NetworkActions, na.ID)
	}
	for _, ra := range catalog.RangeActions() {
		if _, ok := activatedRAs[ra.ID()]; ok {
			a := get(ra.Operator())
			a.RangeActions = append(a.RangeActions, ra.ID())
		}
	}
	out := make([]OperatorActivation, 0, len(byOp))
	for _, a := range byOp {
		sort.Strings(a.NetworkActions)
		sort.Strings(a.RangeActions)
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operator < out[j].Operator })
	return out
}

// isAncestor reports whether l is on the path from the root to leaf.
func isAncestor(l, leaf *Leaf) bool {
	for p := leaf; p != nil; p = p.Parent() {
		if p == l {
			return true
		}
	}
	return false
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
