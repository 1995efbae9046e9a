// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package grid holds the transmission network model and its variant arena.
//
// A Network is the immutable topology: buses, branches, phase shifters,
// HVDC lines and injections. Everything an optimisation may change (branch
// status, PST taps, HVDC and injection setpoints) lives in a State owned by
// a variant. Variants are created by cloning and are only read or mutated
// through an exclusive Variant token obtained from the VariantManager.
package grid

import (
	"fmt"
	"sort"
)

// DefaultBaseMVA is used when a definition leaves BaseMVA at zero.
const DefaultBaseMVA = 100.0

// Bus is an electrical node. Country is empty when unknown.
type Bus struct {
	ID      string
	Country string
}

// Branch is an AC line or transformer.
type Branch struct {
	ID   string
	From string
	To   string

	// Reactance in per unit on the network base.
	Reactance float64

	// NominalVoltage in kV, used for ampere conversions.
	NominalVoltage float64

	// IMax is the permanent admissible current in A. Zero when unknown.
	IMax float64

	// Closed is the status in the initial variant.
	Closed bool
}

// Pst is a phase-shifting transformer sitting on a branch.
type Pst struct {
	ID       string
	BranchID string
	Taps     TapTable

	// Tap is the position in the initial variant.
	Tap int
}

// HvdcLine is a controllable DC link between two AC buses.
//
// A positive setpoint transfers power from From to To.
type HvdcLine struct {
	ID       string
	From     string
	To       string
	Setpoint float64
	MaxP     float64
}

// Injection is a generator or load with an active power setpoint in MW.
//
// Generation is positive, consumption negative.
type Injection struct {
	ID       string
	Bus      string
	Setpoint float64
}

// Boundary links two neighbouring countries.
type Boundary struct {
	CountryA string
	CountryB string
}

// Definition is the raw input used to build a Network.
type Definition struct {
	ID         string
	BaseMVA    float64
	SlackBus   string
	Buses      []Bus
	Branches   []Branch
	Psts       []Pst
	Hvdcs      []HvdcLine
	Injections []Injection
	Boundaries []Boundary
}

// Network is the immutable topology shared by all variants.
//
// Thread Safety: Safe for concurrent reads once built.
type Network struct {
	id         string
	baseMVA    float64
	slackBus   string
	buses      []Bus
	branches   []Branch
	psts       []Pst
	hvdcs      []HvdcLine
	injections []Injection
	boundaries []Boundary

	busIndex       map[string]int
	branchIndex    map[string]int
	pstIndex       map[string]int
	pstByBranch    map[string]string
	hvdcIndex      map[string]int
	injectionIndex map[string]int
}

// New validates a definition and builds the Network.
//
// Inputs:
//
//	def - Network definition. SlackBus defaults to the first bus.
//
// Outputs:
//
//	*Network - The network.
//	error - Non-nil (wrapping ErrInvalidNetwork) on duplicate ids or dangling references.
func New(def Definition) (*Network, error) {
	if len(def.Buses) == 0 {
		return nil, fmt.Errorf("%w: network %q has no bus", ErrInvalidNetwork, def.ID)
	}
	n := &Network{
		id:             def.ID,
		baseMVA:        def.BaseMVA,
		slackBus:       def.SlackBus,
		buses:          append([]Bus(nil), def.Buses...),
		branches:       append([]Branch(nil), def.Branches...),
		psts:           append([]Pst(nil), def.Psts...),
		hvdcs:          append([]HvdcLine(nil), def.Hvdcs...),
		injections:     append([]Injection(nil), def.Injections...),
		boundaries:     append([]Boundary(nil), def.Boundaries...),
		busIndex:       make(map[string]int, len(def.Buses)),
		branchIndex:    make(map[string]int, len(def.Branches)),
		pstIndex:       make(map[string]int, len(def.Psts)),
		pstByBranch:    make(map[string]string, len(def.Psts)),
		hvdcIndex:      make(map[string]int, len(def.Hvdcs)),
		injectionIndex: make(map[string]int, len(def.Injections)),
	}
	if n.baseMVA == 0 {
		n.baseMVA = DefaultBaseMVA
	}
	if n.slackBus == "" {
		n.slackBus = def.Buses[0].ID
	}

	for i, b := range n.buses {
		if _, dup := n.busIndex[b.ID]; dup || b.ID == "" {
			return nil, fmt.Errorf("%w: bus id %q empty or duplicated", ErrInvalidNetwork, b.ID)
		}
		n.busIndex[b.ID] = i
	}
	if _, ok := n.busIndex[n.slackBus]; !ok {
		return nil, fmt.Errorf("%w: slack bus %q not defined", ErrInvalidNetwork, n.slackBus)
	}
	for i, br := range n.branches {
		if _, dup := n.branchIndex[br.ID]; dup || br.ID == "" {
			return nil, fmt.Errorf("%w: branch id %q empty or duplicated", ErrInvalidNetwork, br.ID)
		}
		if err := n.checkBuses(br.ID, br.From, br.To); err != nil {
			return nil, err
		}
		if br.Reactance == 0 {
			return nil, fmt.Errorf("%w: branch %q has zero reactance", ErrInvalidNetwork, br.ID)
		}
		n.branchIndex[br.ID] = i
	}
	for i, p := range n.psts {
		if _, dup := n.pstIndex[p.ID]; dup || p.ID == "" {
			return nil, fmt.Errorf("%w: pst id %q empty or duplicated", ErrInvalidNetwork, p.ID)
		}
		if _, ok := n.branchIndex[p.BranchID]; !ok {
			return nil, fmt.Errorf("%w: pst %q references unknown branch %q", ErrInvalidNetwork, p.ID, p.BranchID)
		}
		if _, dup := n.pstByBranch[p.BranchID]; dup {
			return nil, fmt.Errorf("%w: branch %q carries two psts", ErrInvalidNetwork, p.BranchID)
		}
		if _, err := p.Taps.Angle(p.Tap); err != nil {
			return nil, fmt.Errorf("%w: pst %q initial tap: %v", ErrInvalidNetwork, p.ID, err)
		}
		n.pstIndex[p.ID] = i
		n.pstByBranch[p.BranchID] = p.ID
	}
	for i, h := range n.hvdcs {
		if _, dup := n.hvdcIndex[h.ID]; dup || h.ID == "" {
			return nil, fmt.Errorf("%w: hvdc id %q empty or duplicated", ErrInvalidNetwork, h.ID)
		}
		if err := n.checkBuses(h.ID, h.From, h.To); err != nil {
			return nil, err
		}
		n.hvdcIndex[h.ID] = i
	}
	for i, inj := range n.injections {
		if _, dup := n.injectionIndex[inj.ID]; dup || inj.ID == "" {
			return nil, fmt.Errorf("%w: injection id %q empty or duplicated", ErrInvalidNetwork, inj.ID)
		}
		if _, ok := n.busIndex[inj.Bus]; !ok {
			return nil, fmt.Errorf("%w: injection %q references unknown bus %q", ErrInvalidNetwork, inj.ID, inj.Bus)
		}
		n.injectionIndex[inj.ID] = i
	}
	return n, nil
}

func (n *Network) checkBuses(elementID, from, to string) error {
	if _, ok := n.busIndex[from]; !ok {
		return fmt.Errorf("%w: element %q references unknown bus %q", ErrInvalidNetwork, elementID, from)
	}
	if _, ok := n.busIndex[to]; !ok {
		return fmt.Errorf("%w: element %q references unknown bus %q", ErrInvalidNetwork, elementID, to)
	}
	if from == to {
		return fmt.Errorf("%w: element %q connects bus %q to itself", ErrInvalidNetwork, elementID, from)
	}
	return nil
}

// ID returns the network identifier.
func (n *Network) ID() string { return n.id }

// BaseMVA returns the per-unit power base.
func (n *Network) BaseMVA() float64 { return n.baseMVA }

// SlackBus returns the reference bus id.
func (n *Network) SlackBus() string { return n.slackBus }

// Buses returns the buses in definition order.
func (n *Network) Buses() []Bus { return append([]Bus(nil), n.buses...) }

// Branches returns the branches in definition order.
func (n *Network) Branches() []Branch { return append([]Branch(nil), n.branches...) }

// Psts returns the phase shifters in definition order.
func (n *Network) Psts() []Pst { return append([]Pst(nil), n.psts...) }

// Hvdcs returns the HVDC lines in definition order.
func (n *Network) Hvdcs() []HvdcLine { return append([]HvdcLine(nil), n.hvdcs...) }

// Injections returns the injections in definition order.
func (n *Network) Injections() []Injection { return append([]Injection(nil), n.injections...) }

// Boundaries returns the country boundaries.
func (n *Network) Boundaries() []Boundary { return append([]Boundary(nil), n.boundaries...) }

// BusIndex returns the position of a bus in Buses().
func (n *Network) BusIndex(id string) (int, bool) {
	i, ok := n.busIndex[id]
	return i, ok
}

// Bus looks up a bus.
func (n *Network) Bus(id string) (Bus, bool) {
	i, ok := n.busIndex[id]
	if !ok {
		return Bus{}, false
	}
	return n.buses[i], true
}

// Branch looks up a branch.
func (n *Network) Branch(id string) (Branch, bool) {
	i, ok := n.branchIndex[id]
	if !ok {
		return Branch{}, false
	}
	return n.branches[i], true
}

// Pst looks up a phase shifter.
func (n *Network) Pst(id string) (Pst, bool) {
	i, ok := n.pstIndex[id]
	if !ok {
		return Pst{}, false
	}
	return n.psts[i], true
}

// PstOnBranch returns the id of the PST carried by a branch, if any.
func (n *Network) PstOnBranch(branchID string) (string, bool) {
	id, ok := n.pstByBranch[branchID]
	return id, ok
}

// Hvdc looks up an HVDC line.
func (n *Network) Hvdc(id string) (HvdcLine, bool) {
	i, ok := n.hvdcIndex[id]
	if !ok {
		return HvdcLine{}, false
	}
	return n.hvdcs[i], true
}

// Injection looks up an injection.
func (n *Network) Injection(id string) (Injection, bool) {
	i, ok := n.injectionIndex[id]
	if !ok {
		return Injection{}, false
	}
	return n.injections[i], true
}

// HasElement reports whether any element kind uses the id.
func (n *Network) HasElement(id string) bool {
	if _, ok := n.branchIndex[id]; ok {
		return true
	}
	if _, ok := n.pstIndex[id]; ok {
		return true
	}
	if _, ok := n.hvdcIndex[id]; ok {
		return true
	}
	_, ok := n.injectionIndex[id]
	return ok
}

// ElementCountries returns the sorted countries touched by an element.
//
// Description:
//
//	Branches and HVDC lines touch the countries of both ends, PSTs those of
//	their branch, injections that of their bus. A bus without a country
//	contributes the empty string, which callers treat as an unknown location.
//
// Outputs:
//
//	[]string - Distinct countries, sorted.
//	bool - False if the id is not an element of this network.
func (n *Network) ElementCountries(id string) ([]string, bool) {
	var busIDs []string
	if br, ok := n.Branch(id); ok {
		busIDs = []string{br.From, br.To}
	} else if p, ok := n.Pst(id); ok {
		br := n.branches[n.branchIndex[p.BranchID]]
		busIDs = []string{br.From, br.To}
	} else if h, ok := n.Hvdc(id); ok {
		busIDs = []string{h.From, h.To}
	} else if inj, ok := n.Injection(id); ok {
		busIDs = []string{inj.Bus}
	} else {
		return nil, false
	}
	seen := make(map[string]struct{}, 2)
	var out []string
	for _, b := range busIDs {
		c := n.buses[n.busIndex[b]].Country
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out, true
}

// initialState returns the operating point described by the definition.
func (n *Network) initialState() State {
	s := newState()
	for _, br := range n.branches {
		s.BranchClosed[br.ID] = br.Closed
	}
	for _, p := range n.psts {
		s.PstTaps[p.ID] = p.Tap
	}
	for _, h := range n.hvdcs {
		s.HvdcSetpoints[h.ID] = h.Setpoint
	}
	for _, inj := range n.injections {
		s.Injections[inj.ID] = inj.Setpoint
	}
	return s
}
