// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sensitivity_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRAO/services/rao/crac"
	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
	"github.com/AleutianAI/AleutianRAO/services/rao/raotest"
	"github.com/AleutianAI/AleutianRAO/services/rao/sensitivity"
)

const perDegree = 1000.0 / 3 * math.Pi / 180

func acquire(t *testing.T, c *raotest.Case, id string) *grid.Variant {
	t.Helper()
	v, err := c.Variants.Acquire(id)
	require.NoError(t, err)
	t.Cleanup(v.Release)
	return v
}

func TestDCOracle_BaseCaseFlows(t *testing.T) {
	c := raotest.NewCase(t)
	res := c.Compute(t, grid.InitialVariantID)

	assert.Equal(t, sensitivity.StatusSuccess, res.Status())
	for id, want := range map[string]float64{
		"fr-be-base": 200, "be-nl-base": 200, "fr-nl-base": 400, "fr-nl-co": 600,
	} {
		got, ok := res.Flow(id)
		require.True(t, ok, id)
		assert.InDelta(t, want, got, 1e-6, id)
	}
}

func TestDCOracle_TopologyChange(t *testing.T) {
	c := raotest.NewCase(t)
	id, err := c.Variants.Clone(grid.InitialVariantID)
	require.NoError(t, err)

	v := acquire(t, c, id)
	na, _ := c.Crac.NetworkAction("close-fr-nl-2")
	require.NoError(t, na.Apply(v))

	res, err := c.Oracle().Compute(context.Background(), v, c.Request())
	require.NoError(t, err)
	f, _ := res.Flow("fr-nl-base")
	assert.InDelta(t, 240, f, 1e-6)
	f, _ = res.Flow("fr-nl-co")
	assert.InDelta(t, 300, f, 1e-6)
}

func TestDCOracle_PstSensitivities(t *testing.T) {
	c := raotest.NewCase(t, raotest.WithPst())
	res := c.Compute(t, grid.InitialVariantID)

	assert.InDelta(t, perDegree, res.Sensitivity("fr-be-base", "pst-fr-be"), 1e-9)
	assert.InDelta(t, perDegree, res.Sensitivity("be-nl-base", "pst-fr-be"), 1e-9)
	assert.InDelta(t, -perDegree, res.Sensitivity("fr-nl-base", "pst-fr-be"), 1e-9)
	// With BE-NL outaged FR-BE is radial and the PST cannot move any flow.
	assert.InDelta(t, 0, res.Sensitivity("fr-nl-co", "pst-fr-be"), 1e-9)
}

func TestDCOracle_SensitivityMatchesFlowDelta(t *testing.T) {
	c := raotest.NewCase(t, raotest.WithPst())
	base := c.Compute(t, grid.InitialVariantID)

	id, err := c.Variants.Clone(grid.InitialVariantID)
	require.NoError(t, err)
	v := acquire(t, c, id)
	require.NoError(t, v.SetPstTap("PST-FR-BE", 10))
	moved, err := c.Oracle().Compute(context.Background(), v, c.Request())
	require.NoError(t, err)

	for _, cnec := range c.Crac.Cnecs() {
		f0, _ := base.Flow(cnec.ID)
		f1, _ := moved.Flow(cnec.ID)
		assert.InDelta(t, 10*base.Sensitivity(cnec.ID, "pst-fr-be"), f1-f0, 1e-6, cnec.ID)
	}
}

func TestDCOracle_HvdcSensitivities(t *testing.T) {
	c := raotest.NewCase(t, raotest.WithHvdc())
	res := c.Compute(t, grid.InitialVariantID)

	assert.InDelta(t, -2.0/3, res.Sensitivity("fr-nl-base", "hvdc-fr-nl"), 1e-9)
	assert.InDelta(t, -1.0/3, res.Sensitivity("fr-be-base", "hvdc-fr-nl"), 1e-9)
	assert.InDelta(t, -1.0/3, res.Sensitivity("be-nl-base", "hvdc-fr-nl"), 1e-9)
}

func TestDCOracle_ZonalQuantities(t *testing.T) {
	c := raotest.NewCase(t)
	res := c.Compute(t, grid.InitialVariantID)

	sum, ok := res.PtdfZonalSum("fr-nl-base")
	require.True(t, ok)
	assert.InDelta(t, 4.0/3, sum, 1e-9)

	// With one bus per country every flow is commercial.
	lf, ok := res.LoopFlow("fr-nl-base")
	require.True(t, ok)
	assert.InDelta(t, 0, lf, 1e-6)
}

func islandingCnec() *crac.FlowCnec {
	return &crac.FlowCnec{ID: "fr-nl-island", BranchID: "FR-NL", ContingencyID: "island-be", Optimized: true, Thresholds: raotest.Symmetric(1000)}
}

func islandingContingencies() []crac.Contingency {
	return []crac.Contingency{{ID: "island-be", BranchIDs: []string{"FR-BE", "BE-NL"}}}
}

func TestDCOracle_StrictFailsOnIsland(t *testing.T) {
	c := raotest.NewCase(t)
	v := acquire(t, c, grid.InitialVariantID)

	strict := sensitivity.NewDCOracle(islandingContingencies())
	_, err := strict.Compute(context.Background(), v, sensitivity.Request{Cnecs: []*crac.FlowCnec{islandingCnec()}})
	assert.ErrorIs(t, err, sensitivity.ErrComputationFailed)
	assert.ErrorIs(t, err, sensitivity.ErrSingularNetwork)

	relaxed := sensitivity.NewDCOracle(islandingContingencies(), sensitivity.WithRegularization(1e-3))
	res, err := relaxed.Compute(context.Background(), v, sensitivity.Request{Cnecs: []*crac.FlowCnec{islandingCnec()}})
	require.NoError(t, err)
	f, _ := res.Flow("fr-nl-island")
	assert.InDelta(t, 600, f, 0.01)
}

func TestDCOracle_UnknownContingency(t *testing.T) {
	c := raotest.NewCase(t)
	v := acquire(t, c, grid.InitialVariantID)
	_, err := sensitivity.NewDCOracle(nil).Compute(context.Background(), v, sensitivity.Request{Cnecs: []*crac.FlowCnec{islandingCnec()}})
	assert.ErrorIs(t, err, sensitivity.ErrComputationFailed)
}

func TestFallbackOracle(t *testing.T) {
	c := raotest.NewCase(t)
	v := acquire(t, c, grid.InitialVariantID)
	req := sensitivity.Request{Cnecs: []*crac.FlowCnec{islandingCnec()}}

	t.Run("primary success keeps status", func(t *testing.T) {
		o := sensitivity.WithFallback(c.Oracle(), c.Oracle(), nil)
		res, err := o.Compute(context.Background(), v, c.Request())
		require.NoError(t, err)
		assert.Equal(t, sensitivity.StatusSuccess, res.Status())
	})

	t.Run("fallback result is marked", func(t *testing.T) {
		o := sensitivity.WithFallback(
			sensitivity.NewDCOracle(islandingContingencies()),
			sensitivity.NewDCOracle(islandingContingencies(), sensitivity.WithRegularization(1e-3)),
			nil)
		res, err := o.Compute(context.Background(), v, req)
		require.NoError(t, err)
		assert.Equal(t, sensitivity.StatusFallback, res.Status())
		_, ok := res.Flow("fr-nl-island")
		assert.True(t, ok)
	})

	t.Run("both failing", func(t *testing.T) {
		boom := &raotest.StubOracle{Fn: func(context.Context, *grid.Variant, sensitivity.Request) (*sensitivity.Result, error) {
			return nil, errors.New("boom")
		}}
		o := sensitivity.WithFallback(boom, boom, nil)
		_, err := o.Compute(context.Background(), v, req)
		assert.ErrorIs(t, err, sensitivity.ErrComputationFailed)
		assert.Equal(t, int64(2), boom.Calls())
	})
}

func TestFallbackOracle_ContractErrorIsNotRetried(t *testing.T) {
	c := raotest.NewCase(t)
	v, err := c.Variants.Acquire(grid.InitialVariantID)
	require.NoError(t, err)
	v.Release()

	fallback := &raotest.StubOracle{Fn: func(context.Context, *grid.Variant, sensitivity.Request) (*sensitivity.Result, error) {
		return sensitivity.NewResult(sensitivity.StatusSuccess), nil
	}}
	o := sensitivity.WithFallback(c.Oracle(), fallback, nil)
	_, err = o.Compute(context.Background(), v, c.Request())
	assert.ErrorIs(t, err, grid.ErrVariantReleased)
	assert.Equal(t, int64(0), fallback.Calls())
}

func TestCachingOracle(t *testing.T) {
	c := raotest.NewCase(t)
	inner := &raotest.StubOracle{Fn: c.Oracle().Compute}
	cached, err := sensitivity.NewCachingOracle(inner, 16)
	require.NoError(t, err)
	defer cached.Close()

	a, err := c.Variants.Clone(grid.InitialVariantID)
	require.NoError(t, err)
	b, err := c.Variants.Clone(grid.InitialVariantID)
	require.NoError(t, err)

	va := acquire(t, c, a)
	first, err := cached.Compute(context.Background(), va, c.Request())
	require.NoError(t, err)

	vb := acquire(t, c, b)
	second, err := cached.Compute(context.Background(), vb, c.Request())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), inner.Calls())

	na, _ := c.Crac.NetworkAction("close-fr-nl-2")
	require.NoError(t, na.Apply(vb))
	third, err := cached.Compute(context.Background(), vb, c.Request())
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.Calls())
	f, _ := third.Flow("fr-nl-base")
	assert.InDelta(t, 240, f, 1e-6)
}

func TestRequestKey_IgnoresOrder(t *testing.T) {
	c := raotest.NewCase(t, raotest.WithPst(), raotest.WithHvdc())
	cnecs := c.Crac.Cnecs()
	ras := c.Crac.RangeActions()

	a := sensitivity.Request{Cnecs: cnecs, RangeActions: ras}
	b := sensitivity.Request{
		Cnecs:        []*crac.FlowCnec{cnecs[3], cnecs[1], cnecs[2], cnecs[0]},
		RangeActions: []crac.RangeAction{ras[1], ras[0]},
	}
	assert.Equal(t, a.Key(), b.Key())
	b.PtdfSums = true
	assert.NotEqual(t, a.Key(), b.Key())
}
