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
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
)

// Combination is a set of network actions applied together by one search step.
//
// Actions keep the order they were given in; identity is the sorted set of
// action ids returned by Key.
type Combination struct {
	actions []*NetworkAction
	key     string
}

// NewCombination builds a combination. Duplicate actions are dropped.
func NewCombination(actions ...*NetworkAction) *Combination {
	seen := make(map[string]struct{}, len(actions))
	c := &Combination{}
	ids := make([]string, 0, len(actions))
	for _, na := range actions {
		if _, dup := seen[na.ID]; dup {
			continue
		}
		seen[na.ID] = struct{}{}
		c.actions = append(c.actions, na)
		ids = append(ids, na.ID)
	}
	sort.Strings(ids)
	c.key = strings.Join(ids, "+")
	return c
}

// Key identifies the underlying action set.
func (c *Combination) Key() string { return c.key }

// Actions returns the network actions in application order.
func (c *Combination) Actions() []*NetworkAction {
	return append([]*NetworkAction(nil), c.actions...)
}

// Len returns the number of actions.
func (c *Combination) Len() int { return len(c.actions) }

// Contains reports whether the combination holds the action id.
func (c *Combination) Contains(actionID string) bool {
	for _, na := range c.actions {
		if na.ID == actionID {
			return true
		}
	}
	return false
}

// Operators returns the sorted distinct operators of the actions.
func (c *Combination) Operators() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, na := range c.actions {
		if _, dup := seen[na.Operator]; dup {
			continue
		}
		seen[na.Operator] = struct{}{}
		out = append(out, na.Operator)
	}
	sort.Strings(out)
	return out
}

// String returns the key.
func (c *Combination) String() string { return c.key }

// Countries returns, per action, the countries it is located in.
func (c *Combination) Countries(net *grid.Network) [][]string {
	out := make([][]string, len(c.actions))
	for i, na := range c.actions {
		out[i] = na.Countries(net)
	}
	return out
}
