// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package raotest provides small hand-checkable optimisation cases for tests.
//
// The base case is a triangle FR1-BE1-NL1 with all reactances at 0.1 p.u.
// on a 100 MVA base, 600 MW generated in FR and consumed in NL:
//
//	FR-NL carries 400 MW, FR-BE and BE-NL carry 200 MW each.
//
// The CNEC "fr-nl-base" is limited to 300 MW and is the only violation.
// Closing the open parallel line FR-NL-2 ("close-fr-nl-2") brings it to
// 240 MW; opening BE-NL ("open-be-nl") pushes it to 600 MW.
package raotest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRAO/services/rao/crac"
	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
	"github.com/AleutianAI/AleutianRAO/services/rao/sensitivity"
)

// Case bundles a network, its catalog and a variant arena.
type Case struct {
	Network  *grid.Network
	Crac     *crac.Crac
	Variants *grid.VariantManager
}

type options struct {
	pst         bool
	hvdc        bool
	loopFlow    bool
	mnec        bool
	frNlLimit   float64
	frNl3       bool
	extraCnecs  []*crac.FlowCnec
	extraAction []*crac.NetworkAction
}

// Option customises NewCase.
type Option func(*options)

// WithPst adds a PST on FR-BE (taps -10..10, one degree per tap) and its range action "pst-fr-be".
func WithPst() Option { return func(o *options) { o.pst = true } }

// WithHvdc adds an HVDC line FR1->NL1 (rating 500 MW) and its range action "hvdc-fr-nl" within +/-200 MW.
func WithHvdc() Option { return func(o *options) { o.hvdc = true } }

// WithLoopFlow gives "be-nl-base" a 100 MW loop-flow threshold.
func WithLoopFlow() Option { return func(o *options) { o.loopFlow = true } }

// WithMnec adds "fr-be-mnec", a monitored-only CNEC on FR-BE limited to 250 MW.
func WithMnec() Option { return func(o *options) { o.mnec = true } }

// WithFrNlLimit changes the limit of "fr-nl-base" (default 300 MW).
func WithFrNlLimit(mw float64) Option { return func(o *options) { o.frNlLimit = mw } }

// WithThirdFrNlLine adds "FR-NL-3", an open FR1-NL1 line with twice the
// reactance of FR-NL. No action closes it unless one is added.
func WithThirdFrNlLine() Option { return func(o *options) { o.frNl3 = true } }

// WithCnecs appends CNECs.
func WithCnecs(cnecs ...*crac.FlowCnec) Option {
	return func(o *options) { o.extraCnecs = append(o.extraCnecs, cnecs...) }
}

// WithNetworkActions appends network actions.
func WithNetworkActions(actions ...*crac.NetworkAction) Option {
	return func(o *options) { o.extraAction = append(o.extraAction, actions...) }
}

// Ptr returns a pointer to v.
func Ptr(v float64) *float64 { return &v }

// Symmetric returns a MW threshold [-limit, limit].
func Symmetric(limit float64) []crac.Threshold {
	return []crac.Threshold{{Unit: crac.UnitMegawatt, Min: Ptr(-limit), Max: Ptr(limit)}}
}

// NewCase builds the triangle case.
func NewCase(t testing.TB, opts ...Option) *Case {
	t.Helper()
	o := options{frNlLimit: 300}
	for _, opt := range opts {
		opt(&o)
	}

	def := grid.Definition{
		ID:       "triangle",
		BaseMVA:  100,
		SlackBus: "FR1",
		Buses: []grid.Bus{
			{ID: "FR1", Country: "FR"},
			{ID: "BE1", Country: "BE"},
			{ID: "NL1", Country: "NL"},
		},
		Branches: []grid.Branch{
			{ID: "FR-BE", From: "FR1", To: "BE1", Reactance: 0.1, NominalVoltage: 400, IMax: 2000, Closed: true},
			{ID: "BE-NL", From: "BE1", To: "NL1", Reactance: 0.1, NominalVoltage: 400, IMax: 2000, Closed: true},
			{ID: "FR-NL", From: "FR1", To: "NL1", Reactance: 0.1, NominalVoltage: 400, IMax: 2000, Closed: true},
			{ID: "FR-NL-2", From: "FR1", To: "NL1", Reactance: 0.1, NominalVoltage: 400, IMax: 2000, Closed: false},
		},
		Injections: []grid.Injection{
			{ID: "G-FR", Bus: "FR1", Setpoint: 600},
			{ID: "L-NL", Bus: "NL1", Setpoint: -600},
		},
		Boundaries: []grid.Boundary{
			{CountryA: "FR", CountryB: "BE"},
			{CountryA: "BE", CountryB: "NL"},
			{CountryA: "FR", CountryB: "NL"},
		},
	}
	if o.frNl3 {
		def.Branches = append(def.Branches, grid.Branch{ID: "FR-NL-3", From: "FR1", To: "NL1", Reactance: 0.2, NominalVoltage: 400, IMax: 2000, Closed: false})
	}
	if o.pst {
		steps := make([]grid.TapStep, 0, 21)
		for tap := -10; tap <= 10; tap++ {
			steps = append(steps, grid.TapStep{Tap: tap, Angle: float64(tap)})
		}
		taps, err := grid.NewTapTable(steps)
		require.NoError(t, err)
		def.Psts = append(def.Psts, grid.Pst{ID: "PST-FR-BE", BranchID: "FR-BE", Taps: taps, Tap: 0})
	}
	if o.hvdc {
		def.Hvdcs = append(def.Hvdcs, grid.HvdcLine{ID: "HVDC-FR-NL", From: "FR1", To: "NL1", MaxP: 500})
	}
	net, err := grid.New(def)
	require.NoError(t, err)

	cnecs := []*crac.FlowCnec{
		{ID: "fr-be-base", BranchID: "FR-BE", Operator: "FR", Optimized: true, NominalVoltage: 400, IMax: 2000, Thresholds: Symmetric(500)},
		{ID: "be-nl-base", BranchID: "BE-NL", Operator: "BE", Optimized: true, NominalVoltage: 400, IMax: 2000, Thresholds: Symmetric(500)},
		{ID: "fr-nl-base", BranchID: "FR-NL", Operator: "NL", Optimized: true, NominalVoltage: 400, IMax: 2000, Thresholds: Symmetric(o.frNlLimit)},
		{ID: "fr-nl-co", BranchID: "FR-NL", ContingencyID: "co-be-nl", Operator: "NL", Optimized: true, NominalVoltage: 400, IMax: 2000, Thresholds: Symmetric(700)},
	}
	if o.loopFlow {
		cnecs[1].LoopFlowThreshold = Ptr(100)
	}
	if o.mnec {
		cnecs = append(cnecs, &crac.FlowCnec{ID: "fr-be-mnec", BranchID: "FR-BE", Operator: "BE", Monitored: true, NominalVoltage: 400, Thresholds: Symmetric(250)})
	}
	cnecs = append(cnecs, o.extraCnecs...)

	actions := []*crac.NetworkAction{
		{ID: "close-fr-nl-2", Name: "close FR-NL-2", Operator: "FR", Actions: []crac.ElementaryAction{
			crac.TopologicalAction{BranchID: "FR-NL-2", Type: crac.ActionClose},
		}},
		{ID: "open-be-nl", Name: "open BE-NL", Operator: "BE", Actions: []crac.ElementaryAction{
			crac.TopologicalAction{BranchID: "BE-NL", Type: crac.ActionOpen},
		}},
	}
	actions = append(actions, o.extraAction...)

	var ranges []crac.RangeAction
	if o.pst {
		pst, _ := net.Pst("PST-FR-BE")
		ranges = append(ranges, crac.NewPstRangeAction("pst-fr-be", "PST FR-BE", "FR", pst,
			[]crac.Range{{Type: crac.RangeAbsolute, Min: -10, Max: 10}}))
	}
	if o.hvdc {
		line, _ := net.Hvdc("HVDC-FR-NL")
		ranges = append(ranges, crac.NewHvdcRangeAction("hvdc-fr-nl", "HVDC FR-NL", "NL", line,
			[]crac.Range{{Type: crac.RangeAbsolute, Min: -200, Max: 200}}))
	}

	c, err := crac.New(crac.Definition{
		ID:             "triangle-crac",
		Contingencies:  []crac.Contingency{{ID: "co-be-nl", Name: "BE-NL outage", BranchIDs: []string{"BE-NL"}}},
		Cnecs:          cnecs,
		NetworkActions: actions,
		RangeActions:   ranges,
	}, net)
	require.NoError(t, err)

	return &Case{Network: net, Crac: c, Variants: grid.NewVariantManager(net)}
}

// Oracle returns the strict DC oracle of the case.
func (c *Case) Oracle() *sensitivity.DCOracle {
	return sensitivity.NewDCOracle(c.Crac.Contingencies())
}

// Request asks for every CNEC and range action of the case.
func (c *Case) Request() sensitivity.Request {
	return sensitivity.Request{Cnecs: c.Crac.Cnecs(), RangeActions: c.Crac.RangeActions(), CommercialFlows: true, PtdfSums: true}
}

// Compute runs the oracle on a variant of the case.
func (c *Case) Compute(t testing.TB, variantID string) *sensitivity.Result {
	t.Helper()
	v, err := c.Variants.Acquire(variantID)
	require.NoError(t, err)
	defer v.Release()
	res, err := c.Oracle().Compute(context.Background(), v, c.Request())
	require.NoError(t, err)
	return res
}

// StubOracle delegates to Fn and counts calls.
type StubOracle struct {
	Fn    func(ctx context.Context, v *grid.Variant, req sensitivity.Request) (*sensitivity.Result, error)
	calls atomic.Int64
}

// Compute implements sensitivity.Oracle.
func (s *StubOracle) Compute(ctx context.Context, v *grid.Variant, req sensitivity.Request) (*sensitivity.Result, error) {
	s.calls.Add(1)
	return s.Fn(ctx, v, req)
}

// Calls returns the number of Compute calls.
func (s *StubOracle) Calls() int64 { return s.calls.Load() }

// FailingWhen wraps an oracle and fails with err whenever pred holds for the variant state.
type FailingWhen struct {
	Inner Oracle
	Pred  func(grid.State) bool
	Err   error

	mu       sync.Mutex
	failures int
}

// Oracle is a local alias to keep the fixture readable.
type Oracle = sensitivity.Oracle

// Compute implements sensitivity.Oracle.
func (f *FailingWhen) Compute(ctx context.Context, v *grid.Variant, req sensitivity.Request) (*sensitivity.Result, error) {
	state, err := v.Snapshot()
	if err != nil {
		return nil, err
	}
	if f.Pred(state) {
		f.mu.Lock()
		f.failures++
		f.mu.Unlock()
		return nil, f.Err
	}
	return f.Inner.Compute(ctx, v, req)
}

// Failures returns how many calls failed.
func (f *FailingWhen) Failures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures
}
