// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package grid

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

// CountryGraph is the adjacency of countries sharing a boundary.
//
// Thread Safety: Safe for concurrent reads once built.
type CountryGraph struct {
	g   *simple.UndirectedGraph
	ids map[string]int64
}

// NewCountryGraph builds the graph from boundaries. Self boundaries are ignored.
func NewCountryGraph(boundaries []Boundary) *CountryGraph {
	cg := &CountryGraph{
		g:   simple.NewUndirectedGraph(),
		ids: make(map[string]int64),
	}
	// Countries get ids in sorted order so traversal is reproducible.
	var names []string
	for _, b := range boundaries {
		names = append(names, b.CountryA, b.CountryB)
	}
	sort.Strings(names)
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := cg.ids[name]; ok {
			continue
		}
		id := int64(len(cg.ids))
		cg.ids[name] = id
		cg.g.AddNode(simple.Node(id))
	}
	for _, b := range boundaries {
		if b.CountryA == b.CountryB || b.CountryA == "" || b.CountryB == "" {
			continue
		}
		cg.g.SetEdge(simple.Edge{F: simple.Node(cg.ids[b.CountryA]), T: simple.Node(cg.ids[b.CountryB])})
	}
	return cg
}

// Countries returns the known countries, sorted.
func (c *CountryGraph) Countries() []string {
	return sortedKeys(c.ids)
}

// Distance returns the number of borders crossed between two countries.
//
// Outputs:
//
//	int - 0 for the same known country, -1 when either country is unknown
//	      or the two are not connected.
func (c *CountryGraph) Distance(a, b string) int {
	from, ok := c.ids[a]
	if !ok {
		return -1
	}
	to, ok := c.ids[b]
	if !ok {
		return -1
	}
	if from == to {
		return 0
	}
	dist := -1
	var bf traverse.BreadthFirst
	bf.Walk(c.g, simple.Node(from), func(n graph.Node, d int) bool {
		if n.ID() == to {
			dist = d
			return true
		}
		return false
	})
	return dist
}

// WithinDistance reports whether any country of from is at most maxBorders
// borders away from any country of to.
func (c *CountryGraph) WithinDistance(from, to []string, maxBorders int) bool {
	for _, a := range from {
		for _, b := range to {
			if a == b && a != "" {
				return true
			}
			if d := c.Distance(a, b); d >= 0 && d <= maxBorders {
				return true
			}
		}
	}
	return false
}
