// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package objective

import (
	"math"
	"sort"
)

// Result is a scored operating point. It is immutable once returned.
type Result struct {
	functionalCost   float64
	virtual          map[string]float64
	costly           map[string]map[string]float64
	flows            map[string]float64
	margins          map[string]float64
	objectiveMargins map[string]float64
	loopFlows        map[string]float64
}

func newResult() *Result {
	return &Result{
		virtual:          make(map[string]float64),
		costly:           make(map[string]map[string]float64),
		flows:            make(map[string]float64),
		margins:          make(map[string]float64),
		objectiveMargins: make(map[string]float64),
		loopFlows:        make(map[string]float64),
	}
}

func (r *Result) addCostly(name, cnecID string, cost float64) {
	if r.costly[name] == nil {
		r.costly[name] = make(map[string]float64)
	}
	r.costly[name][cnecID] += cost
}

// FunctionalCost returns minus the worst objective margin.
func (r *Result) FunctionalCost() float64 { return r.functionalCost }

// VirtualCost returns the sum of all virtual costs.
func (r *Result) VirtualCost() float64 {
	var sum float64
	for _, name := range r.VirtualCostNames() {
		sum += r.virtual[name]
	}
	return sum
}

// VirtualCostByName returns one virtual cost, zero when it is not evaluated.
func (r *Result) VirtualCostByName(name string) float64 { return r.virtual[name] }

// VirtualCosts returns a copy of the virtual costs by name.
func (r *Result) VirtualCosts() map[string]float64 {
	out := make(map[string]float64, len(r.virtual))
	for k, v := range r.virtual {
		out[k] = v
	}
	return out
}

// VirtualCostNames returns the evaluated virtual cost names, sorted.
func (r *Result) VirtualCostNames() []string {
	names := make([]string, 0, len(r.virtual))
	for name := range r.virtual {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cost returns the functional cost plus the virtual cost.
func (r *Result) Cost() float64 { return r.functionalCost + r.VirtualCost() }

// Flow returns the MW flow of a CNEC.
func (r *Result) Flow(cnecID string) (float64, bool) {
	f, ok := r.flows[cnecID]
	return f, ok
}

// Margin returns the absolute margin of a CNEC in the objective unit.
func (r *Result) Margin(cnecID string) (float64, bool) {
	m, ok := r.margins[cnecID]
	return m, ok
}

// ObjectiveMargin returns the margin of an optimized CNEC as scored,
// relative when the objective is relative.
func (r *Result) ObjectiveMargin(cnecID string) (float64, bool) {
	m, ok := r.objectiveMargins[cnecID]
	return m, ok
}

// LoopFlow returns the loop flow of a penalised CNEC.
func (r *Result) LoopFlow(cnecID string) (float64, bool) {
	lf, ok := r.loopFlows[cnecID]
	return lf, ok
}

// MostLimiting returns up to n optimized CNEC ids by objective margin
// ascending, ties by id.
func (r *Result) MostLimiting(n int) []string {
	return topN(r.objectiveMargins, n, func(a, b float64) bool { return a < b })
}

// CostlyElements returns up to n CNEC ids contributing to a virtual cost,
// most expensive first, ties by id.
func (r *Result) CostlyElements(name string, n int) []string {
	return topN(r.costly[name], n, func(a, b float64) bool { return a > b })
}

func topN(values map[string]float64, n int, before func(a, b float64) bool) []string {
	if n <= 0 || len(values) == 0 {
		return nil
	}
	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := values[ids[i]], values[ids[j]]
		if a != b && !(math.IsNaN(a) || math.IsNaN(b)) {
			return before(a, b)
		}
		return ids[i] < ids[j]
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}
