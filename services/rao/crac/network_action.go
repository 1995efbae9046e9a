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
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
)

// ActionType is the target status of a topological action.
type ActionType int

const (
	// ActionOpen disconnects the element.
	ActionOpen ActionType = iota
	// ActionClose reconnects the element.
	ActionClose
)

// String returns "OPEN" or "CLOSE".
func (a ActionType) String() string {
	if a == ActionClose {
		return "CLOSE"
	}
	return "OPEN"
}

// ParseActionType accepts "open" and "close" in any case.
func ParseActionType(s string) (ActionType, error) {
	switch strings.ToUpper(s) {
	case "OPEN":
		return ActionOpen, nil
	case "CLOSE":
		return ActionClose, nil
	}
	return 0, fmt.Errorf("%w: unknown action type %q", ErrInvalidCrac, s)
}

// ElementaryAction is one of TopologicalAction, PstSetpoint or InjectionSetpoint.
type ElementaryAction interface {
	// NetworkElementID returns the element the action targets.
	NetworkElementID() string

	isElementaryAction()
}

// TopologicalAction opens or closes a branch.
type TopologicalAction struct {
	BranchID string
	Type     ActionType
}

// PstSetpoint moves a phase shifter to a fixed tap.
type PstSetpoint struct {
	PstID string
	Tap   int
}

// InjectionSetpoint fixes the active power of an injection.
type InjectionSetpoint struct {
	InjectionID string
	Setpoint    float64
}

// NetworkElementID returns the branch id.
func (a TopologicalAction) NetworkElementID() string { return a.BranchID }

// NetworkElementID returns the PST id.
func (a PstSetpoint) NetworkElementID() string { return a.PstID }

// NetworkElementID returns the injection id.
func (a InjectionSetpoint) NetworkElementID() string { return a.InjectionID }

func (TopologicalAction) isElementaryAction() {}
func (PstSetpoint) isElementaryAction()       {}
func (InjectionSetpoint) isElementaryAction() {}

// NetworkAction is a discrete remedial action made of elementary actions.
//
// Applying a network action is idempotent: every elementary action sets an
// absolute target rather than a delta.
type NetworkAction struct {
	ID       string
	Name     string
	Operator string
	Actions  []ElementaryAction
}

// Apply applies every elementary action to the variant, in order.
func (na *NetworkAction) Apply(v *grid.Variant) error {
	for _, ea := range na.Actions {
		var err error
		switch a := ea.(type) {
		case TopologicalAction:
			err = v.SetBranchClosed(a.BranchID, a.Type == ActionClose)
		case PstSetpoint:
			err = v.SetPstTap(a.PstID, a.Tap)
		case InjectionSetpoint:
			err = v.SetInjectionSetpoint(a.InjectionID, a.Setpoint)
		default:
			err = fmt.Errorf("unsupported elementary action %T", ea)
		}
		if err != nil {
			return fmt.Errorf("apply network action %s: %w", na.ID, err)
		}
	}
	return nil
}

// ElementIDs returns the ids of the targeted elements in action order.
func (na *NetworkAction) ElementIDs() []string {
	ids := make([]string, 0, len(na.Actions))
	for _, ea := range na.Actions {
		ids = append(ids, ea.NetworkElementID())
	}
	return ids
}

// Countries returns the sorted countries of the targeted elements.
//
// An element on a bus without country contributes "", an unknown location.
func (na *NetworkAction) Countries(net *grid.Network) []string {
	return elementCountries(net, na.ElementIDs())
}

func elementCountries(net *grid.Network, ids []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, id := range ids {
		countries, ok := net.ElementCountries(id)
		if !ok {
			countries = []string{""}
		}
		for _, c := range countries {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

func (na *NetworkAction) validate(net *grid.Network) error {
	if na.ID == "" {
		return fmt.Errorf("%w: network action without id", ErrInvalidCrac)
	}
	if len(na.Actions) == 0 {
		return fmt.Errorf("%w: network action %q has no elementary action", ErrInvalidCrac, na.ID)
	}
	for _, ea := range na.Actions {
		var ok bool
		switch a := ea.(type) {
		case TopologicalAction:
			_, ok = net.Branch(a.BranchID)
		case PstSetpoint:
			var pst grid.Pst
			if pst, ok = net.Pst(a.PstID); ok {
				if _, err := pst.Taps.Angle(a.Tap); err != nil {
					return fmt.Errorf("%w: network action %q: %v", ErrInvalidCrac, na.ID, err)
				}
			}
		case InjectionSetpoint:
			_, ok = net.Injection(a.InjectionID)
		}
		if !ok {
			return fmt.Errorf("%w: network element [%s] mentioned in network action %s",
				ErrMissingElement, ea.NetworkElementID(), na.ID)
		}
	}
	return nil
}
