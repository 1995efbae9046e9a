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
	"testing"

	"github.com/AleutianAI/AleutianRAO/services/rao/crac"
	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
	"github.com/AleutianAI/AleutianRAO/services/rao/objective"
	"github.com/AleutianAI/AleutianRAO/services/rao/raotest"
	"github.com/AleutianAI/AleutianRAO/services/rao/sensitivity"
)

func noFilters() FilterConfig {
	cfg := DefaultConfig().Filters
	cfg.MaxBoundaries = -1
	cfg.MaxTsos = 0
	return cfg
}

func keys(combs []*crac.Combination) []string {
	out := make([]string, 0, len(combs))
	for _, c := range combs {
		out = append(out, c.Key())
	}
	return out
}

func TestBloomer_RootChildren(t *testing.T) {
	cs := raotest.NewCase(t)
	b := newBloomer(cs.Crac, cs.Network, cs.Crac.AvailableCombinations(), noFilters(), &sequence{}, discardLogger())

	children, stats := b.Bloom(NewRoot(0))
	if len(children) != 2 || stats.Children != 2 || stats.Available != 2 {
		t.Fatalf("Bloom() = %d children, stats %+v", len(children), stats)
	}
	if children[0].CombinationKey() != "close-fr-nl-2" || children[1].CombinationKey() != "open-be-nl" {
		t.Errorf("children = [%s %s], want catalog order", children[0].CombinationKey(), children[1].CombinationKey())
	}
	if children[0].Seq() == children[1].Seq() {
		t.Error("children share a sequence number")
	}
	for _, c := range children {
		if c.Status() != StatusCreated || c.Depth() != 1 || c.Parent() == nil {
			t.Errorf("child %s = (%v, depth %d)", c.ID(), c.Status(), c.Depth())
		}
	}
}

func TestBloomer_PathAndOverlapFilters(t *testing.T) {
	cs := raotest.NewCase(t)
	closeNA, _ := cs.Crac.NetworkAction("close-fr-nl-2")
	openNA, _ := cs.Crac.NetworkAction("open-be-nl")
	combinations := append(cs.Crac.AvailableCombinations(), crac.NewCombination(closeNA, openNA))
	b := newBloomer(cs.Crac, cs.Network, combinations, noFilters(), &sequence{}, discardLogger())

	child := newChild(NewRoot(0), crac.NewCombination(closeNA), 1)
	got, stats := b.Candidates(child)
	if len(got) != 1 || got[0].Key() != "open-be-nl" {
		t.Fatalf("Candidates() = %v, want [open-be-nl]", keys(got))
	}
	if stats.OnPath != 1 || stats.Overlap != 1 {
		t.Errorf("stats = %+v, want one on-path and one overlapping", stats)
	}

	grandchild := newChild(child, got[0], 2)
	got, stats = b.Candidates(grandchild)
	if len(got) != 0 || stats.OnPath != 2 || stats.Overlap != 1 {
		t.Errorf("grandchild Candidates() = %v, stats %+v", keys(got), stats)
	}
}

func TestBloomer_OperatorLimit(t *testing.T) {
	cs := raotest.NewCase(t)
	closeNA, _ := cs.Crac.NetworkAction("close-fr-nl-2")
	child := newChild(NewRoot(0), crac.NewCombination(closeNA), 1)

	cfg := noFilters()
	cfg.MaxTsos = 1
	b := newBloomer(cs.Crac, cs.Network, cs.Crac.AvailableCombinations(), cfg, &sequence{}, discardLogger())
	got, stats := b.Candidates(child)
	if len(got) != 0 || stats.Operator != 1 {
		t.Errorf("MaxTsos=1: Candidates() = %v, stats %+v", keys(got), stats)
	}

	cfg.TsosExcludedFromLimit = []string{"BE"}
	b = newBloomer(cs.Crac, cs.Network, cs.Crac.AvailableCombinations(), cfg, &sequence{}, discardLogger())
	got, stats = b.Candidates(child)
	if len(got) != 1 || stats.Operator != 0 {
		t.Errorf("BE excluded: Candidates() = %v, stats %+v", keys(got), stats)
	}

	cfg.TsosExcludedFromLimit = nil
	cfg.MaxTsos = 2
	b = newBloomer(cs.Crac, cs.Network, cs.Crac.AvailableCombinations(), cfg, &sequence{}, discardLogger())
	if got, _ := b.Candidates(child); len(got) != 1 {
		t.Errorf("MaxTsos=2: Candidates() = %v, want [open-be-nl]", keys(got))
	}
}

func TestBloomer_RangeActionsCountTowardsOperatorLimit(t *testing.T) {
	cs := raotest.NewCase(t, raotest.WithPst())
	ev := newEvaluator(t, cs, cs.Oracle())
	root := evaluatedRoot(t, cs, ev)
	if ops := root.ActivatedOperators(1e-3); len(ops) != 1 || ops[0] != "FR" {
		t.Fatalf("ActivatedOperators = %v, want [FR]", ops)
	}

	cfg := noFilters()
	cfg.MaxTsos = 1
	b := newBloomer(cs.Crac, cs.Network, cs.Crac.AvailableCombinations(), cfg, &sequence{}, discardLogger())
	got, stats := b.Candidates(root)
	if len(got) != 1 || got[0].Key() != "close-fr-nl-2" || stats.Operator != 1 {
		t.Errorf("Candidates() = %v, stats %+v, want only the FR action", keys(got), stats)
	}
}

// chainCase is FR1-BE1-NL1-DE1 with the limiting CNEC on FR-BE.
func chainCase(t *testing.T) (*grid.Network, *crac.Crac) {
	t.Helper()
	net, err := grid.New(grid.Definition{
		ID:       "chain",
		BaseMVA:  100,
		SlackBus: "FR1",
		Buses: []grid.Bus{
			{ID: "FR1", Country: "FR"},
			{ID: "BE1", Country: "BE"},
			{ID: "NL1", Country: "NL"},
			{ID: "DE1", Country: "DE"},
		},
		Branches: []grid.Branch{
			{ID: "FR-BE", From: "FR1", To: "BE1", Reactance: 0.1, Closed: true},
			{ID: "FR-BE-2", From: "FR1", To: "BE1", Reactance: 0.1, Closed: false},
			{ID: "BE-NL", From: "BE1", To: "NL1", Reactance: 0.1, Closed: true},
			{ID: "NL-DE", From: "NL1", To: "DE1", Reactance: 0.1, Closed: true},
		},
		Boundaries: []grid.Boundary{
			{CountryA: "FR", CountryB: "BE"},
			{CountryA: "BE", CountryB: "NL"},
			{CountryA: "NL", CountryB: "DE"},
		},
	})
	if err != nil {
		t.Fatalf("grid.New() error = %v", err)
	}
	c, err := crac.New(crac.Definition{
		ID: "chain-crac",
		Cnecs: []*crac.FlowCnec{
			{ID: "fr-be", BranchID: "FR-BE", Operator: "FR", Optimized: true, Thresholds: raotest.Symmetric(100)},
			{ID: "nl-de", BranchID: "NL-DE", Operator: "DE", Optimized: true, Thresholds: raotest.Symmetric(1000)},
		},
		NetworkActions: []*crac.NetworkAction{
			{ID: "close-fr-be-2", Operator: "FR", Actions: []crac.ElementaryAction{
				crac.TopologicalAction{BranchID: "FR-BE-2", Type: crac.ActionClose},
			}},
			{ID: "open-nl-de", Operator: "DE", Actions: []crac.ElementaryAction{
				crac.TopologicalAction{BranchID: "NL-DE", Type: crac.ActionOpen},
			}},
		},
	}, net)
	if err != nil {
		t.Fatalf("crac.New() error = %v", err)
	}
	return net, c
}

func TestBloomer_GeographicFilter(t *testing.T) {
	net, c := chainCase(t)

	res := sensitivity.NewResult(sensitivity.StatusSuccess)
	res.SetFlow("fr-be", 150)
	res.SetFlow("nl-de", 0)
	obj, err := objective.NewFunction(objective.DefaultConfig(), c, nil).Evaluate(res)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	root := NewRoot(0)
	root.status = StatusEvaluated
	root.objective = obj

	tests := []struct {
		name          string
		maxBoundaries int
		want          []string
		filtered      int
	}{
		{name: "same country only", maxBoundaries: 0, want: []string{"close-fr-be-2"}, filtered: 1},
		{name: "one border", maxBoundaries: 1, want: []string{"close-fr-be-2", "open-nl-de"}},
		{name: "disabled", maxBoundaries: -1, want: []string{"close-fr-be-2", "open-nl-de"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := noFilters()
			cfg.MaxBoundaries = tt.maxBoundaries
			b := newBloomer(c, net, c.AvailableCombinations(), cfg, &sequence{}, discardLogger())
			got, stats := b.Candidates(root)
			gotKeys := keys(got)
			if len(gotKeys) != len(tt.want) {
				t.Fatalf("Candidates() = %v, want %v", gotKeys, tt.want)
			}
			for i := range tt.want {
				if gotKeys[i] != tt.want[i] {
					t.Errorf("Candidates()[%d] = %s, want %s", i, gotKeys[i], tt.want[i])
				}
			}
			if stats.Geographic != tt.filtered {
				t.Errorf("Geographic = %d, want %d", stats.Geographic, tt.filtered)
			}
		})
	}
}

func TestBloomer_GeographicFilterLocatesCostlyMnec(t *testing.T) {
	net, chain := chainCase(t)
	// Only an MNEC: nothing is optimized, so no CNEC is most limiting.
	c, err := crac.New(crac.Definition{
		ID: "mnec-only",
		Cnecs: []*crac.FlowCnec{
			{ID: "nl-de-mnec", BranchID: "NL-DE", Operator: "DE", Monitored: true, Thresholds: raotest.Symmetric(100)},
		},
		NetworkActions: chain.NetworkActions(),
	}, net)
	if err != nil {
		t.Fatalf("crac.New() error = %v", err)
	}

	initial := sensitivity.NewResult(sensitivity.StatusSuccess)
	initial.SetFlow("nl-de-mnec", 0)
	res := sensitivity.NewResult(sensitivity.StatusSuccess)
	res.SetFlow("nl-de-mnec", 150)
	obj, err := objective.NewFunction(objective.DefaultConfig(), c, initial).Evaluate(res)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(obj.MostLimiting(1)) != 0 || len(obj.CostlyElements(objective.MnecCostName, 1)) != 1 {
		t.Fatalf("MostLimiting = %v, costly MNECs = %v", obj.MostLimiting(1), obj.CostlyElements(objective.MnecCostName, 1))
	}
	root := NewRoot(0)
	root.status = StatusEvaluated
	root.objective = obj

	cfg := noFilters()
	cfg.MaxBoundaries = 0
	b := newBloomer(c, net, c.AvailableCombinations(), cfg, &sequence{}, discardLogger())
	got, stats := b.Candidates(root)
	if gotKeys := keys(got); len(gotKeys) != 1 || gotKeys[0] != "open-nl-de" {
		t.Errorf("Candidates() = %v, want [open-nl-de]", gotKeys)
	}
	if stats.Geographic != 1 {
		t.Errorf("Geographic = %d, want 1", stats.Geographic)
	}
}

func TestBloomer_UnevaluatedLeafSkipsGeographicFilter(t *testing.T) {
	net, c := chainCase(t)
	cfg := noFilters()
	cfg.MaxBoundaries = 0
	b := newBloomer(c, net, c.AvailableCombinations(), cfg, &sequence{}, discardLogger())
	if got, _ := b.Candidates(NewRoot(0)); len(got) != 2 {
		t.Errorf("Candidates() = %v, want both actions", keys(got))
	}
}
