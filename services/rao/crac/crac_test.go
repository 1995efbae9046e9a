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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
)

func ptr(v float64) *float64 { return &v }

func testNetwork(t *testing.T) *grid.Network {
	t.Helper()
	taps, err := grid.NewTapTable([]grid.TapStep{
		{Tap: -2, Angle: 4}, {Tap: -1, Angle: 2}, {Tap: 0, Angle: 0}, {Tap: 1, Angle: -2}, {Tap: 2, Angle: -4},
	})
	require.NoError(t, err)
	net, err := grid.New(grid.Definition{
		ID:    "net",
		Buses: []grid.Bus{{ID: "FR1", Country: "FR"}, {ID: "BE1", Country: "BE"}, {ID: "NL1", Country: "NL"}},
		Branches: []grid.Branch{
			{ID: "FR-BE", From: "FR1", To: "BE1", Reactance: 0.1, NominalVoltage: 400, Closed: true},
			{ID: "BE-NL", From: "BE1", To: "NL1", Reactance: 0.1, NominalVoltage: 400, Closed: true},
			{ID: "FR-NL", From: "FR1", To: "NL1", Reactance: 0.1, NominalVoltage: 400, Closed: true},
		},
		Psts:       []grid.Pst{{ID: "PST", BranchID: "FR-BE", Taps: taps}},
		Hvdcs:      []grid.HvdcLine{{ID: "HVDC", From: "FR1", To: "NL1", MaxP: 500}},
		Injections: []grid.Injection{{ID: "G1", Bus: "FR1", Setpoint: 100}},
	})
	require.NoError(t, err)
	return net
}

func TestParseUnit(t *testing.T) {
	for in, want := range map[string]Unit{
		"MW": UnitMegawatt, "megawatt": UnitMegawatt, "A": UnitAmpere,
		"degree": UnitDegree, "PERCENT_IMAX": UnitPercentImax, "tap": UnitTap,
	} {
		got, err := ParseUnit(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseUnit("furlong")
	assert.ErrorIs(t, err, ErrUnknownUnit)

	var u Unit
	require.NoError(t, u.UnmarshalText([]byte("AMPERE")))
	assert.Equal(t, UnitAmpere, u)
}

func TestFlowCnec_Bounds(t *testing.T) {
	cnec := &FlowCnec{
		ID: "c", BranchID: "FR-BE", NominalVoltage: 400, IMax: 1000, ReliabilityMargin: 10,
		Thresholds: []Threshold{
			{Unit: UnitMegawatt, Min: ptr(-500), Max: ptr(500)},
			{Unit: UnitAmpere, Max: ptr(1000)},
			{Unit: UnitPercentImax, Max: ptr(120)},
		},
	}
	require.NoError(t, cnec.validate())

	ub, ok := cnec.UpperBound(UnitMegawatt)
	require.True(t, ok)
	assert.InDelta(t, 490, ub, 1e-9)

	lb, ok := cnec.LowerBound(UnitMegawatt)
	require.True(t, ok)
	assert.InDelta(t, -490, lb, 1e-9)

	ubA, _ := cnec.UpperBound(UnitAmpere)
	assert.InDelta(t, 490*1000/(math.Sqrt(3)*400), ubA, 1e-9)

	assert.InDelta(t, 190, cnec.Margin(300, UnitMegawatt), 1e-9)
	assert.InDelta(t, -10, cnec.Margin(-500, UnitMegawatt), 1e-9)
	assert.InDelta(t, MegawattToAmpere(190, 400), cnec.Margin(300, UnitAmpere), 1e-9)
}

func TestFlowCnec_ValidateRejectsDegreeThreshold(t *testing.T) {
	cnec := &FlowCnec{ID: "c", BranchID: "b", Thresholds: []Threshold{{Unit: UnitDegree, Max: ptr(30)}}}
	assert.ErrorIs(t, cnec.validate(), ErrInvalidCrac)
}

func TestFlowCnec_MarginWithoutBounds(t *testing.T) {
	cnec := &FlowCnec{ID: "c"}
	assert.True(t, math.IsInf(cnec.Margin(100, UnitMegawatt), 1))
}

func TestNetworkAction_ApplyIsIdempotent(t *testing.T) {
	net := testNetwork(t)
	vm := grid.NewVariantManager(net)
	na := &NetworkAction{ID: "na", Operator: "FR", Actions: []ElementaryAction{
		TopologicalAction{BranchID: "FR-NL", Type: ActionOpen},
		PstSetpoint{PstID: "PST", Tap: 2},
		InjectionSetpoint{InjectionID: "G1", Setpoint: 50},
	}}
	require.NoError(t, na.validate(net))

	v, err := vm.Acquire(grid.InitialVariantID)
	require.NoError(t, err)
	defer v.Release()

	require.NoError(t, na.Apply(v))
	once, err := v.Snapshot()
	require.NoError(t, err)
	require.NoError(t, na.Apply(v))
	twice, err := v.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.False(t, twice.BranchClosed["FR-NL"])
	assert.Equal(t, 2, twice.PstTaps["PST"])
	assert.Equal(t, 50.0, twice.Injections["G1"])
}

func TestNetworkAction_ValidateMissingElement(t *testing.T) {
	na := &NetworkAction{ID: "na", Actions: []ElementaryAction{TopologicalAction{BranchID: "ghost"}}}
	err := na.validate(testNetwork(t))
	assert.ErrorIs(t, err, ErrMissingElement)
	assert.Contains(t, err.Error(), "[ghost]")
}

func TestNetworkAction_Countries(t *testing.T) {
	na := &NetworkAction{ID: "na", Actions: []ElementaryAction{
		TopologicalAction{BranchID: "BE-NL"}, InjectionSetpoint{InjectionID: "G1"},
	}}
	assert.Equal(t, []string{"BE", "FR", "NL"}, na.Countries(testNetwork(t)))
}

func TestPstRangeAction_AdmissibleRange(t *testing.T) {
	net := testNetwork(t)
	pst, _ := net.Pst("PST")
	ra := NewPstRangeAction("pst-ra", "pst", "FR", pst, []Range{
		{Type: RangeAbsolute, Min: -2, Max: 1},
		{Type: RangeRelativeToPreviousInstant, Min: -1, Max: 1},
		{Type: RangeRelativeToInitialNetwork, Min: 0, Max: 5},
	})

	minTap, maxTap := ra.TapBounds(0, 2)
	assert.Equal(t, -1, minTap)
	assert.Equal(t, 1, maxTap)

	lo, hi := ra.AdmissibleRange(0, 2)
	assert.Equal(t, -2.0, lo)
	assert.Equal(t, 2.0, hi)

	// Disjoint ranges collapse on the previous setpoint.
	disjoint := NewPstRangeAction("d", "d", "FR", pst, []Range{{Type: RangeAbsolute, Min: 2, Max: 2}, {Type: RangeAbsolute, Min: -2, Max: -2}})
	lo, hi = disjoint.AdmissibleRange(0, 0)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 0.0, hi)
}

func TestPstRangeAction_ApplyRoundsToNearestTap(t *testing.T) {
	net := testNetwork(t)
	pst, _ := net.Pst("PST")
	ra := NewPstRangeAction("pst-ra", "pst", "FR", pst, nil)
	vm := grid.NewVariantManager(net)
	v, err := vm.Acquire(grid.InitialVariantID)
	require.NoError(t, err)
	defer v.Release()

	require.NoError(t, ra.Apply(v, -2.7))
	tap, err := ra.CurrentTap(v)
	require.NoError(t, err)
	assert.Equal(t, 1, tap)

	angle, err := ra.CurrentValue(v)
	require.NoError(t, err)
	assert.Equal(t, -2.0, angle)
	assert.Equal(t, []string{"BE", "FR"}, ra.Countries(net))
}

func TestPstRangeAction_NearestAdmissibleTap(t *testing.T) {
	net := testNetwork(t)
	pst, _ := net.Pst("PST")
	ra := NewPstRangeAction("pst-ra", "pst", "FR", pst, []Range{{Type: RangeAbsolute, Min: 0, Max: 2}})

	// 3 deg is closest to taps -2 and -1, both outside [0, 2].
	assert.Equal(t, -2, pst.Taps.NearestTap(3))
	assert.Equal(t, 0, ra.NearestAdmissibleTap(3, 0, 0))
	assert.Equal(t, 1, ra.NearestAdmissibleTap(-1.5, 0, 0))

	disjoint := NewPstRangeAction("d", "d", "FR", pst, []Range{{Type: RangeAbsolute, Min: 2, Max: 2}, {Type: RangeAbsolute, Min: -2, Max: -2}})
	assert.Equal(t, -1, disjoint.NearestAdmissibleTap(-4, 2, 0))

	vm := grid.NewVariantManager(net)
	v, err := vm.Acquire(grid.InitialVariantID)
	require.NoError(t, err)
	defer v.Release()
	require.NoError(t, ra.ApplyTap(v, 2))
	tap, err := ra.CurrentTap(v)
	require.NoError(t, err)
	assert.Equal(t, 2, tap)
}

func TestHvdcRangeAction_AdmissibleRange(t *testing.T) {
	line, _ := testNetwork(t).Hvdc("HVDC")
	ra := NewHvdcRangeAction("hvdc-ra", "hvdc", "NL", line, []Range{
		{Type: RangeAbsolute, Min: -400, Max: 400},
		{Type: RangeRelativeToPreviousInstant, Min: -100, Max: 100},
	})
	lo, hi := ra.AdmissibleRange(350, 0)
	assert.Equal(t, 250.0, lo)
	assert.Equal(t, 400.0, hi)

	unbounded := NewHvdcRangeAction("u", "u", "NL", line, nil)
	lo, hi = unbounded.AdmissibleRange(0, 0)
	assert.Equal(t, -500.0, lo)
	assert.Equal(t, 500.0, hi)
}

func TestCombination_KeyIsOrderIndependent(t *testing.T) {
	a := &NetworkAction{ID: "a", Operator: "FR"}
	b := &NetworkAction{ID: "b", Operator: "BE"}
	ab := NewCombination(a, b, a)
	ba := NewCombination(b, a)

	assert.Equal(t, ab.Key(), ba.Key())
	assert.Equal(t, "a+b", ab.Key())
	assert.Equal(t, 2, ab.Len())
	assert.Equal(t, []string{"BE", "FR"}, ab.Operators())
	assert.True(t, ab.Contains("b"))
	assert.False(t, ab.Contains("c"))
}

func TestNew_BuildsCatalog(t *testing.T) {
	net := testNetwork(t)
	pst, _ := net.Pst("PST")
	open := &NetworkAction{ID: "open", Operator: "FR", Actions: []ElementaryAction{TopologicalAction{BranchID: "FR-NL"}}}
	tap := &NetworkAction{ID: "tap", Operator: "BE", Actions: []ElementaryAction{PstSetpoint{PstID: "PST", Tap: 1}}}
	c, err := New(Definition{
		ID:            "crac",
		Contingencies: []Contingency{{ID: "co", BranchIDs: []string{"BE-NL"}}},
		Cnecs: []*FlowCnec{
			{ID: "opt", BranchID: "FR-BE", Optimized: true, Thresholds: []Threshold{{Unit: UnitMegawatt, Max: ptr(100)}}},
			{ID: "mnec", BranchID: "FR-NL", ContingencyID: "co", Monitored: true, Thresholds: []Threshold{{Unit: UnitMegawatt, Max: ptr(100)}}},
			{ID: "lf", BranchID: "BE-NL", Optimized: true, LoopFlowThreshold: ptr(50), Thresholds: []Threshold{{Unit: UnitMegawatt, Max: ptr(100)}}},
		},
		NetworkActions: []*NetworkAction{open, tap},
		RangeActions:   []RangeAction{NewPstRangeAction("pst-ra", "pst", "BE", pst, nil)},
		Combinations:   [][]string{{"tap", "open"}, {"open"}},
	}, net)
	require.NoError(t, err)

	assert.Len(t, c.OptimizedCnecs(), 2)
	require.Len(t, c.Mnecs(), 1)
	assert.Equal(t, "mnec", c.Mnecs()[0].ID)
	assert.False(t, c.Mnecs()[0].IsBaseCase())
	assert.True(t, c.OptimizedCnecs()[0].IsBaseCase())
	require.Len(t, c.LoopFlowCnecs(), 1)
	assert.Equal(t, "lf", c.LoopFlowCnecs()[0].ID)

	var keys []string
	for _, comb := range c.AvailableCombinations() {
		keys = append(keys, comb.Key())
	}
	assert.Equal(t, []string{"open", "tap", "open+tap"}, keys)

	_, ok := c.RangeAction("pst-ra")
	assert.True(t, ok)
}

func TestNew_RejectsBadReferences(t *testing.T) {
	net := testNetwork(t)
	_, err := New(Definition{Cnecs: []*FlowCnec{
		{ID: "c", BranchID: "FR-BE", ContingencyID: "ghost", Thresholds: []Threshold{{Unit: UnitMegawatt, Max: ptr(1)}}},
	}}, net)
	assert.ErrorIs(t, err, ErrInvalidCrac)

	_, err = New(Definition{Contingencies: []Contingency{{ID: "co", BranchIDs: []string{"ghost"}}}}, net)
	assert.ErrorIs(t, err, ErrMissingElement)

	_, err = New(Definition{Combinations: [][]string{{"ghost"}}}, net)
	assert.ErrorIs(t, err, ErrInvalidCrac)
}
