// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package objective_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRAO/services/rao/crac"
	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
	"github.com/AleutianAI/AleutianRAO/services/rao/objective"
	"github.com/AleutianAI/AleutianRAO/services/rao/raotest"
	"github.com/AleutianAI/AleutianRAO/services/rao/sensitivity"
)

func flows(values map[string]float64) *sensitivity.Result {
	r := sensitivity.NewResult(sensitivity.StatusSuccess)
	for id, f := range values {
		r.SetFlow(id, f)
	}
	return r
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, objective.DefaultConfig().Validate())

	cfg := objective.DefaultConfig()
	cfg.Type = "max-flow"
	assert.ErrorIs(t, cfg.Validate(), objective.ErrInvalidConfig)

	cfg = objective.DefaultConfig()
	cfg.Unit = crac.UnitDegree
	assert.ErrorIs(t, cfg.Validate(), objective.ErrInvalidConfig)

	cfg = objective.DefaultConfig()
	cfg.MnecViolationCost = -1
	assert.ErrorIs(t, cfg.Validate(), objective.ErrInvalidConfig)
}

func TestEvaluate_AbsoluteMargins(t *testing.T) {
	c := raotest.NewCase(t)
	initial := c.Compute(t, grid.InitialVariantID)
	fn := objective.NewFunction(objective.DefaultConfig(), c.Crac, initial)

	res, err := fn.Evaluate(initial)
	require.NoError(t, err)
	assert.InDelta(t, 100, res.FunctionalCost(), 1e-6)
	assert.InDelta(t, 100, res.Cost(), 1e-6)
	assert.Equal(t, []string{"fr-nl-base"}, res.MostLimiting(1))
	assert.Equal(t, []string{"fr-nl-base", "fr-nl-co", "be-nl-base", "fr-be-base"}, res.MostLimiting(10))

	m, ok := res.Margin("fr-be-base")
	require.True(t, ok)
	assert.InDelta(t, 300, m, 1e-6)
}

func TestEvaluate_AmpereUnit(t *testing.T) {
	c := raotest.NewCase(t)
	cfg := objective.DefaultConfig()
	cfg.Unit = crac.UnitAmpere
	fn := objective.NewFunction(cfg, c.Crac, nil)

	res, err := fn.Evaluate(flows(map[string]float64{
		"fr-be-base": 200, "be-nl-base": 200, "fr-nl-base": 400, "fr-nl-co": 600,
	}))
	require.NoError(t, err)
	assert.InDelta(t, crac.MegawattToAmpere(100, 400), res.FunctionalCost(), 1e-6)
}

func TestEvaluate_RelativeMargins(t *testing.T) {
	c := raotest.NewCase(t)
	initial := c.Compute(t, grid.InitialVariantID)
	cfg := objective.DefaultConfig()
	cfg.Type = objective.MaxMinRelativeMargin
	fn := objective.NewFunction(cfg, c.Crac, initial)

	// Negative margins stay absolute.
	res, err := fn.Evaluate(initial)
	require.NoError(t, err)
	assert.InDelta(t, 100, res.FunctionalCost(), 1e-6)

	// Positive margins are divided by the initial PTDF sums (4/3 on base-case
	// lines, 2 on FR-NL after the BE-NL outage).
	res, err = fn.Evaluate(flows(map[string]float64{
		"fr-be-base": 120, "be-nl-base": 120, "fr-nl-base": 240, "fr-nl-co": 300,
	}))
	require.NoError(t, err)
	assert.InDelta(t, -45, res.FunctionalCost(), 1e-6)
	om, _ := res.ObjectiveMargin("fr-nl-co")
	assert.InDelta(t, 200, om, 1e-6)
	m, _ := res.Margin("fr-nl-base")
	assert.InDelta(t, 60, m, 1e-6)
}

func TestEvaluate_PtdfSumLowerBound(t *testing.T) {
	c := raotest.NewCase(t)
	cfg := objective.DefaultConfig()
	cfg.Type = objective.MaxMinRelativeMargin
	cfg.PtdfSumLowerBound = 2
	initial := c.Compute(t, grid.InitialVariantID)
	fn := objective.NewFunction(cfg, c.Crac, initial)

	assert.InDelta(t, 2, fn.PtdfSum(mustCnec(t, c, "fr-nl-base"), nil), 1e-9)
}

func mustCnec(t *testing.T, c *raotest.Case, id string) *crac.FlowCnec {
	t.Helper()
	cnec, ok := c.Crac.Cnec(id)
	require.True(t, ok, id)
	return cnec
}

func TestEvaluate_MnecCost(t *testing.T) {
	c := raotest.NewCase(t, raotest.WithMnec())
	base := map[string]float64{"fr-be-base": 200, "be-nl-base": 200, "fr-nl-base": 250, "fr-nl-co": 600}

	tests := []struct {
		name        string
		initialFlow float64
		flow        float64
		diminution  float64
		want        float64
	}{
		{name: "within limit", initialFlow: 200, flow: 240, diminution: 50, want: 0},
		{name: "violation from a secure start", initialFlow: 200, flow: 280, diminution: 50, want: 300},
		{name: "initial violation tolerated", initialFlow: 260, flow: 280, diminution: 50, want: 0},
		{name: "initial violation worsened", initialFlow: 260, flow: 330, diminution: 50, want: 200},
		{name: "no diminution allowed", initialFlow: 260, flow: 270, diminution: 0, want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := objective.DefaultConfig()
			cfg.MnecAcceptableMarginDiminution = tt.diminution
			initial := flows(base)
			initial.SetFlow("fr-be-mnec", tt.initialFlow)
			current := flows(base)
			current.SetFlow("fr-be-mnec", tt.flow)

			res, err := objective.NewFunction(cfg, c.Crac, initial).Evaluate(current)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, res.VirtualCostByName(objective.MnecCostName), 1e-6)
			assert.InDelta(t, res.FunctionalCost()+tt.want, res.Cost(), 1e-6)
			if tt.want > 0 {
				assert.Equal(t, []string{"fr-be-mnec"}, res.CostlyElements(objective.MnecCostName, 3))
			} else {
				assert.Empty(t, res.CostlyElements(objective.MnecCostName, 3))
			}
		})
	}
}

func TestEvaluate_MnecDisabled(t *testing.T) {
	c := raotest.NewCase(t, raotest.WithMnec())
	cfg := objective.DefaultConfig()
	cfg.EnableMnec = false
	res, err := objective.NewFunction(cfg, c.Crac, nil).Evaluate(flows(map[string]float64{
		"fr-be-base": 200, "be-nl-base": 200, "fr-nl-base": 250, "fr-nl-co": 600, "fr-be-mnec": 900,
	}))
	require.NoError(t, err)
	assert.NotContains(t, res.VirtualCostNames(), objective.MnecCostName)
	assert.Zero(t, res.VirtualCost())
}

func TestEvaluate_LoopFlowCost(t *testing.T) {
	c := raotest.NewCase(t, raotest.WithLoopFlow())
	withCommercial := func(flow, commercial float64) *sensitivity.Result {
		r := flows(map[string]float64{"fr-be-base": 200, "be-nl-base": flow, "fr-nl-base": 250, "fr-nl-co": 600})
		r.SetCommercialFlow("be-nl-base", commercial)
		return r
	}
	initial := withCommercial(200, 200)

	cfg := objective.DefaultConfig()
	cfg.LoopFlowViolationCost = 2
	fn := objective.NewFunction(cfg, c.Crac, initial)
	assert.True(t, fn.Request(nil).CommercialFlows)

	res, err := fn.Evaluate(withCommercial(350, 200))
	require.NoError(t, err)
	assert.InDelta(t, 100, res.VirtualCostByName(objective.LoopFlowCostName), 1e-6)
	lf, ok := res.LoopFlow("be-nl-base")
	require.True(t, ok)
	assert.InDelta(t, 150, lf, 1e-9)
	assert.Equal(t, []string{"be-nl-base"}, res.CostlyElements(objective.LoopFlowCostName, 1))

	// The tolerated loop flow grows with the initial loop flow.
	cfg.LoopFlowAcceptableAugmentation = 10
	fn = objective.NewFunction(cfg, c.Crac, withCommercial(320, 200))
	assert.InDelta(t, 130, fn.LoopFlowLimit(mustCnec(t, c, "be-nl-base")), 1e-9)
	res, err = fn.Evaluate(withCommercial(350, 200))
	require.NoError(t, err)
	assert.InDelta(t, 40, res.VirtualCostByName(objective.LoopFlowCostName), 1e-6)

	_, err = fn.Evaluate(flows(map[string]float64{"fr-be-base": 200, "be-nl-base": 200, "fr-nl-base": 250, "fr-nl-co": 600}))
	assert.ErrorIs(t, err, objective.ErrMissingFlow)
}

func TestEvaluate_MissingOptimizedFlow(t *testing.T) {
	c := raotest.NewCase(t)
	_, err := objective.NewFunction(objective.DefaultConfig(), c.Crac, nil).Evaluate(flows(map[string]float64{"fr-be-base": 1}))
	assert.ErrorIs(t, err, objective.ErrMissingFlow)
}

func TestResult_VirtualCostNamesSorted(t *testing.T) {
	c := raotest.NewCase(t, raotest.WithMnec(), raotest.WithLoopFlow())
	initial := c.Compute(t, grid.InitialVariantID)
	initial.SetFlow("fr-be-mnec", 200)
	res, err := objective.NewFunction(objective.DefaultConfig(), c.Crac, initial).Evaluate(initial)
	require.NoError(t, err)
	assert.Equal(t, []string{objective.LoopFlowCostName, objective.MnecCostName}, res.VirtualCostNames())
	assert.Zero(t, res.VirtualCost())
}
