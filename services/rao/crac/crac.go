// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package crac describes the contingencies, critical elements and remedial
// actions of an optimisation case.
//
// The catalog (Crac) is immutable once built and safe for concurrent reads.
// Network actions are discrete and idempotent; range actions are continuous
// and optimised by the linear problem.
package crac

import (
	"fmt"

	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
)

// Definition is the raw input used to build a Crac.
type Definition struct {
	ID             string
	Contingencies  []Contingency
	Cnecs          []*FlowCnec
	NetworkActions []*NetworkAction
	RangeActions   []RangeAction

	// Combinations lists predefined multi-action combinations by action id.
	Combinations [][]string
}

// Crac is the catalog of an optimisation case.
type Crac struct {
	id             string
	contingencies  []Contingency
	cnecs          []*FlowCnec
	networkActions []*NetworkAction
	rangeActions   []RangeAction
	combinations   []*Combination

	contingencyIndex map[string]int
	cnecIndex        map[string]int
	networkIndex     map[string]int
	rangeIndex       map[string]int
}

// New validates a definition against the network and builds the catalog.
//
// Inputs:
//
//	def - Catalog definition.
//	net - Network every referenced element must exist in.
//
// Outputs:
//
//	*Crac - The catalog.
//	error - Wraps ErrInvalidCrac on duplicates or bad thresholds and
//	        ErrMissingElement on references to unknown network elements.
func New(def Definition, net *grid.Network) (*Crac, error) {
	c := &Crac{
		id:               def.ID,
		contingencies:    append([]Contingency(nil), def.Contingencies...),
		cnecs:            append([]*FlowCnec(nil), def.Cnecs...),
		networkActions:   append([]*NetworkAction(nil), def.NetworkActions...),
		rangeActions:     append([]RangeAction(nil), def.RangeActions...),
		contingencyIndex: make(map[string]int),
		cnecIndex:        make(map[string]int),
		networkIndex:     make(map[string]int),
		rangeIndex:       make(map[string]int),
	}

	for i, co := range c.contingencies {
		if _, dup := c.contingencyIndex[co.ID]; dup || co.ID == "" {
			return nil, fmt.Errorf("%w: contingency id %q empty or duplicated", ErrInvalidCrac, co.ID)
		}
		for _, br := range co.BranchIDs {
			if _, ok := net.Branch(br); !ok {
				return nil, fmt.Errorf("%w: network element [%s] mentioned in contingency %s", ErrMissingElement, br, co.ID)
			}
		}
		c.contingencyIndex[co.ID] = i
	}

	for i, cnec := range c.cnecs {
		if err := cnec.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.cnecIndex[cnec.ID]; dup {
			return nil, fmt.Errorf("%w: cnec id %q duplicated", ErrInvalidCrac, cnec.ID)
		}
		if _, ok := net.Branch(cnec.BranchID); !ok {
			return nil, fmt.Errorf("%w: network element [%s] mentioned in cnec %s", ErrMissingElement, cnec.BranchID, cnec.ID)
		}
		if !cnec.IsBaseCase() {
			if _, ok := c.contingencyIndex[cnec.ContingencyID]; !ok {
				return nil, fmt.Errorf("%w: cnec %q references unknown contingency %q", ErrInvalidCrac, cnec.ID, cnec.ContingencyID)
			}
		}
		c.cnecIndex[cnec.ID] = i
	}

	for i, na := range c.networkActions {
		if err := na.validate(net); err != nil {
			return nil, err
		}
		if _, dup := c.networkIndex[na.ID]; dup {
			return nil, fmt.Errorf("%w: network action id %q duplicated", ErrInvalidCrac, na.ID)
		}
		c.networkIndex[na.ID] = i
	}

	for i, ra := range c.rangeActions {
		if ra.ID() == "" {
			return nil, fmt.Errorf("%w: range action without id", ErrInvalidCrac)
		}
		if _, dup := c.rangeIndex[ra.ID()]; dup {
			return nil, fmt.Errorf("%w: range action id %q duplicated", ErrInvalidCrac, ra.ID())
		}
		if !net.HasElement(ra.NetworkElementID()) {
			return nil, fmt.Errorf("%w: network element [%s] mentioned in range action %s", ErrMissingElement, ra.NetworkElementID(), ra.ID())
		}
		c.rangeIndex[ra.ID()] = i
	}

	for _, ids := range def.Combinations {
		if len(ids) == 0 {
			continue
		}
		actions := make([]*NetworkAction, 0, len(ids))
		for _, id := range ids {
			na, ok := c.NetworkAction(id)
			if !ok {
				return nil, fmt.Errorf("%w: combination references unknown network action %q", ErrInvalidCrac, id)
			}
			actions = append(actions, na)
		}
		c.combinations = append(c.combinations, NewCombination(actions...))
	}
	return c, nil
}

// ID returns the catalog identifier.
func (c *Crac) ID() string { return c.id }

// Contingencies returns the contingencies in definition order.
func (c *Crac) Contingencies() []Contingency {
	return append([]Contingency(nil), c.contingencies...)
}

// Contingency looks up a contingency.
func (c *Crac) Contingency(id string) (Contingency, bool) {
	i, ok := c.contingencyIndex[id]
	if !ok {
		return Contingency{}, false
	}
	return c.contingencies[i], true
}

// Cnecs returns every CNEC in definition order.
func (c *Crac) Cnecs() []*FlowCnec { return append([]*FlowCnec(nil), c.cnecs...) }

// Cnec looks up a CNEC.
func (c *Crac) Cnec(id string) (*FlowCnec, bool) {
	i, ok := c.cnecIndex[id]
	if !ok {
		return nil, false
	}
	return c.cnecs[i], true
}

// OptimizedCnecs returns the CNECs that drive the functional cost.
func (c *Crac) OptimizedCnecs() []*FlowCnec {
	return c.filterCnecs(func(fc *FlowCnec) bool { return fc.Optimized })
}

// Mnecs returns the CNECs that are monitored but not optimized.
func (c *Crac) Mnecs() []*FlowCnec {
	return c.filterCnecs((*FlowCnec).IsMnec)
}

// LoopFlowCnecs returns the CNECs with a loop-flow threshold.
func (c *Crac) LoopFlowCnecs() []*FlowCnec {
	return c.filterCnecs(func(fc *FlowCnec) bool { return fc.LoopFlowThreshold != nil })
}

func (c *Crac) filterCnecs(keep func(*FlowCnec) bool) []*FlowCnec {
	var out []*FlowCnec
	for _, fc := range c.cnecs {
		if keep(fc) {
			out = append(out, fc)
		}
	}
	return out
}

// NetworkActions returns the network actions in definition order.
func (c *Crac) NetworkActions() []*NetworkAction {
	return append([]*NetworkAction(nil), c.networkActions...)
}

// NetworkAction looks up a network action.
func (c *Crac) NetworkAction(id string) (*NetworkAction, bool) {
	i, ok := c.networkIndex[id]
	if !ok {
		return nil, false
	}
	return c.networkActions[i], true
}

// RangeActions returns the range actions in definition order.
func (c *Crac) RangeActions() []RangeAction {
	return append([]RangeAction(nil), c.rangeActions...)
}

// RangeAction looks up a range action.
func (c *Crac) RangeAction(id string) (RangeAction, bool) {
	i, ok := c.rangeIndex[id]
	if !ok {
		return nil, false
	}
	return c.rangeActions[i], true
}

// PredefinedCombinations returns the multi-action combinations of the definition.
func (c *Crac) PredefinedCombinations() []*Combination {
	return append([]*Combination(nil), c.combinations...)
}

// AvailableCombinations returns one single-action combination per network
// action followed by the predefined combinations, without duplicate keys.
func (c *Crac) AvailableCombinations() []*Combination {
	seen := make(map[string]struct{})
	var out []*Combination
	add := func(comb *Combination) {
		if _, dup := seen[comb.Key()]; dup {
			return
		}
		seen[comb.Key()] = struct{}{}
		out = append(out, comb)
	}
	for _, na := range c.networkActions {
		add(NewCombination(na))
	}
	for _, comb := range c.combinations {
		add(comb)
	}
	return out
}
