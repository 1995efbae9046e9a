// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package caseio

import (
	"fmt"

	"github.com/AleutianAI/AleutianRAO/services/rao/crac"
	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
)

// Build resolves the document into a network and its catalog.
//
// Outputs:
//
//	*grid.Network - The network.
//	*crac.Crac - The catalog, bound to the network.
//	error - grid.ErrInvalidNetwork, crac.ErrInvalidCrac, crac.ErrMissingElement,
//	        crac.ErrUnknownUnit or ErrUnknownReference, naming the offending entry.
func (d *Document) Build() (*grid.Network, *crac.Crac, error) {
	net, err := d.Network.build()
	if err != nil {
		return nil, nil, fmt.Errorf("network %q: %w", d.Network.ID, err)
	}
	c, err := d.Crac.build(net)
	if err != nil {
		return nil, nil, fmt.Errorf("crac %q: %w", d.Crac.ID, err)
	}
	return net, c, nil
}

func (n *NetworkDocument) build() (*grid.Network, error) {
	def := grid.Definition{
		ID:       n.ID,
		BaseMVA:  n.BaseMVA,
		SlackBus: n.SlackBus,
	}
	for _, b := range n.Buses {
		def.Buses = append(def.Buses, grid.Bus{ID: b.ID, Country: b.Country})
	}
	for _, br := range n.Branches {
		closed := true
		if br.Closed != nil {
			closed = *br.Closed
		}
		def.Branches = append(def.Branches, grid.Branch{
			ID:             br.ID,
			From:           br.From,
			To:             br.To,
			Reactance:      br.Reactance,
			NominalVoltage: br.NominalVoltage,
			IMax:           br.IMax,
			Closed:         closed,
		})
	}
	for _, p := range n.Psts {
		taps, err := grid.NewTapTable(p.Taps)
		if err != nil {
			return nil, fmt.Errorf("pst %q: %w", p.ID, err)
		}
		def.Psts = append(def.Psts, grid.Pst{ID: p.ID, BranchID: p.Branch, Taps: taps, Tap: p.Tap})
	}
	for _, h := range n.Hvdcs {
		def.Hvdcs = append(def.Hvdcs, grid.HvdcLine{ID: h.ID, From: h.From, To: h.To, Setpoint: h.Setpoint, MaxP: h.MaxP})
	}
	for _, inj := range n.Injections {
		def.Injections = append(def.Injections, grid.Injection{ID: inj.ID, Bus: inj.Bus, Setpoint: inj.Setpoint})
	}
	for _, b := range n.Boundaries {
		def.Boundaries = append(def.Boundaries, grid.Boundary{CountryA: b.CountryA, CountryB: b.CountryB})
	}
	return grid.New(def)
}

func (c *CracDocument) build(net *grid.Network) (*crac.Crac, error) {
	def := crac.Definition{ID: c.ID, Combinations: c.Combinations}

	for _, co := range c.Contingencies {
		def.Contingencies = append(def.Contingencies, crac.Contingency{ID: co.ID, Name: co.Name, BranchIDs: co.Branches})
	}
	for _, cn := range c.Cnecs {
		cnec, err := cn.build()
		if err != nil {
			return nil, fmt.Errorf("cnec %q: %w", cn.ID, err)
		}
		def.Cnecs = append(def.Cnecs, cnec)
	}
	for _, na := range c.NetworkActions {
		action, err := na.build()
		if err != nil {
			return nil, fmt.Errorf("network action %q: %w", na.ID, err)
		}
		def.NetworkActions = append(def.NetworkActions, action)
	}
	for _, ra := range c.RangeActions {
		action, err := ra.build(net)
		if err != nil {
			return nil, fmt.Errorf("range action %q: %w", ra.ID, err)
		}
		def.RangeActions = append(def.RangeActions, action)
	}
	return crac.New(def, net)
}

func (cn *CnecDocument) build() (*crac.FlowCnec, error) {
	out := &crac.FlowCnec{
		ID:                cn.ID,
		Name:              cn.Name,
		BranchID:          cn.Branch,
		ContingencyID:     cn.Contingency,
		Operator:          cn.Operator,
		Optimized:         cn.Optimized,
		Monitored:         cn.Monitored,
		NominalVoltage:    cn.NominalVoltage,
		IMax:              cn.IMax,
		ReliabilityMargin: cn.ReliabilityMargin,
		LoopFlowThreshold: cn.LoopFlowThreshold,
	}
	for _, th := range cn.Thresholds {
		unit, err := crac.ParseUnit(th.Unit)
		if err != nil {
			return nil, err
		}
		out.Thresholds = append(out.Thresholds, crac.Threshold{Unit: unit, Min: th.Min, Max: th.Max})
	}
	return out, nil
}

func (na *NetworkActionDocument) build() (*crac.NetworkAction, error) {
	out := &crac.NetworkAction{ID: na.ID, Name: na.Name, Operator: na.Operator}
	for i, ea := range na.Actions {
		switch ea.Type {
		case "open", "close":
			t, err := crac.ParseActionType(ea.Type)
			if err != nil {
				return nil, err
			}
			out.Actions = append(out.Actions, crac.TopologicalAction{BranchID: ea.Element, Type: t})
		case "pst_setpoint":
			if ea.Tap == nil {
				return nil, fmt.Errorf("%w: action %d has no tap", ErrInvalidDocument, i)
			}
			out.Actions = append(out.Actions, crac.PstSetpoint{PstID: ea.Element, Tap: *ea.Tap})
		case "injection_setpoint":
			if ea.Setpoint == nil {
				return nil, fmt.Errorf("%w: action %d has no setpoint", ErrInvalidDocument, i)
			}
			out.Actions = append(out.Actions, crac.InjectionSetpoint{InjectionID: ea.Element, Setpoint: *ea.Setpoint})
		default:
			return nil, fmt.Errorf("%w: action %d has type %q", ErrInvalidDocument, i, ea.Type)
		}
	}
	return out, nil
}

func (ra *RangeActionDocument) build(net *grid.Network) (crac.RangeAction, error) {
	ranges := make([]crac.Range, 0, len(ra.Ranges))
	for _, r := range ra.Ranges {
		t := crac.RangeAbsolute
		if r.Type != "" {
			var err error
			if t, err = crac.ParseRangeType(r.Type); err != nil {
				return nil, err
			}
		}
		ranges = append(ranges, crac.Range{Type: t, Min: r.Min, Max: r.Max})
	}

	switch ra.Kind {
	case "pst":
		pst, ok := net.Pst(ra.Element)
		if !ok {
			return nil, fmt.Errorf("%w: pst %q", ErrUnknownReference, ra.Element)
		}
		return crac.NewPstRangeAction(ra.ID, ra.Name, ra.Operator, pst, ranges), nil
	case "hvdc":
		line, ok := net.Hvdc(ra.Element)
		if !ok {
			return nil, fmt.Errorf("%w: hvdc line %q", ErrUnknownReference, ra.Element)
		}
		return crac.NewHvdcRangeAction(ra.ID, ra.Name, ra.Operator, line, ranges), nil
	}
	return nil, fmt.Errorf("%w: range action kind %q", ErrInvalidDocument, ra.Kind)
}
