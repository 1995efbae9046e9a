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
	"log/slog"

	"github.com/AleutianAI/AleutianRAO/services/rao/crac"
	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
)

// BloomStats counts the candidates removed by each filter of one bloom.
type BloomStats struct {
	Available  int `json:"available"`
	OnPath     int `json:"on_path"`
	Overlap    int `json:"overlap"`
	Geographic int `json:"geographic"`
	Operator   int `json:"operator"`
	Children   int `json:"children"`
}

// Bloomer generates the children of a leaf.
//
// Description:
//
//	Each available combination becomes a child unless it is already on the
//	leaf's path, shares an action with the activated set, lies too far
//	from the limiting elements, or would push the number of activated
//	operators above the limit. Children keep the order of the available
//	combinations.
//
// Thread Safety: Safe for concurrent use.
type Bloomer struct {
	catalog      *crac.Crac
	network      *grid.Network
	countries    *grid.CountryGraph
	combinations []*crac.Combination
	cfg          FilterConfig
	excluded     map[string]struct{}
	seq          *sequence
	logger       *slog.Logger
}

// newBloomer creates a bloomer over the given combinations.
//
// Inputs:
//   - c: Catalog used to locate CNECs.
//   - net: Network used to locate actions and CNECs.
//   - combinations: Candidates in preference order.
//   - cfg: Filter settings.
//   - seq: Leaf sequence shared with the driver.
//   - logger: Logger (nil for the default logger).
func newBloomer(c *crac.Crac, net *grid.Network, combinations []*crac.Combination, cfg FilterConfig, seq *sequence, logger *slog.Logger) *Bloomer {
	if logger == nil {
		logger = slog.Default()
	}
	excluded := make(map[string]struct{}, len(cfg.TsosExcludedFromLimit))
	for _, op := range cfg.TsosExcludedFromLimit {
		excluded[op] = struct{}{}
	}
	return &Bloomer{
		catalog:      c,
		network:      net,
		countries:    grid.NewCountryGraph(net.Boundaries()),
		combinations: combinations,
		cfg:          cfg,
		excluded:     excluded,
		seq:          seq,
		logger:       logger,
	}
}

// Bloom returns the children of an evaluated leaf.
func (b *Bloomer) Bloom(leaf *Leaf) ([]*Leaf, BloomStats) {
	candidates, stats := b.Candidates(leaf)
	children := make([]*Leaf, 0, len(candidates))
	for _, comb := range candidates {
		children = append(children, newChild(leaf, comb, b.seq.next()))
	}
	b.logger.Debug("leaf bloomed",
		slog.String("leaf", leaf.ID()),
		slog.Int("available", stats.Available),
		slog.Int("children", stats.Children),
		slog.Int("filtered_geographic", stats.Geographic),
		slog.Int("filtered_operator", stats.Operator))
	return children, stats
}

// Candidates applies the filters to the available combinations.
func (b *Bloomer) Candidates(leaf *Leaf) ([]*crac.Combination, BloomStats) {
	stats := BloomStats{Available: len(b.combinations)}

	limiting := b.limitingCountries(leaf)
	activated := b.countedOperators(leaf.ActivatedOperators(b.cfg.RangeActionEpsilon))

	var out []*crac.Combination
	for _, comb := range b.combinations {
		switch {
		case leaf.OnPath(comb.Key()):
			stats.OnPath++
		case b.overlaps(leaf, comb):
			stats.Overlap++
		case !b.closeEnough(comb, limiting):
			stats.Geographic++
		case !b.withinOperatorLimit(comb, activated):
			stats.Operator++
		default:
			out = append(out, comb)
		}
	}
	stats.Children = len(out)
	return out, stats
}

func (b *Bloomer) overlaps(leaf *Leaf, comb *crac.Combination) bool {
	for _, na := range comb.Actions() {
		if leaf.HasNetworkAction(na.ID) {
			return true
		}
	}
	return false
}

// limitingCountries locates the most limiting CNEC and the most costly
// elements of each virtual cost. Nil disables the geographic filter.
func (b *Bloomer) limitingCountries(leaf *Leaf) []string {
	if b.cfg.MaxBoundaries < 0 {
		return nil
	}
	obj := leaf.Objective()
	if obj == nil {
		return nil
	}
	ids := obj.MostLimiting(1)
	if b.cfg.TopNCostly > 0 {
		for _, name := range obj.VirtualCostNames() {
			ids = append(ids, obj.CostlyElements(name, b.cfg.TopNCostly)...)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, id := range ids {
		cnec, ok := b.catalog.Cnec(id)
		if !ok {
			continue
		}
		countries, _ := b.network.ElementCountries(cnec.BranchID)
		for _, c := range countries {
			if _, dup := seen[c]; dup || c == "" {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// closeEnough keeps a combination if one of its actions is located within
// MaxBoundaries borders of the limiting countries. Actions without a known
// location are always close enough.
func (b *Bloomer) closeEnough(comb *crac.Combination, limiting []string) bool {
	if len(limiting) == 0 {
		return true
	}
	for _, na := range comb.Actions() {
		countries := na.Countries(b.network)
		for _, c := range countries {
			if c == "" {
				return true
			}
		}
		if b.countries.WithinDistance(countries, limiting, b.cfg.MaxBoundaries) {
			return true
		}
	}
	return false
}

func (b *Bloomer) countedOperators(operators []string) map[string]struct{} {
	out := make(map[string]struct{}, len(operators))
	for _, op := range operators {
		if _, skip := b.excluded[op]; skip {
			continue
		}
		out[op] = struct{}{}
	}
	return out
}

// withinOperatorLimit rejects a combination that would bring the number of
// activated operators above MaxTsos.
func (b *Bloomer) withinOperatorLimit(comb *crac.Combination, activated map[string]struct{}) bool {
	if b.cfg.MaxTsos <= 0 {
		return true
	}
	n := len(activated)
	for _, op := range comb.Operators() {
		if _, skip := b.excluded[op]; skip {
			continue
		}
		if _, ok := activated[op]; !ok {
			n++
		}
	}
	return n <= b.cfg.MaxTsos
}
