// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package objective

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianRAO/services/rao/crac"
)

// Type selects how margins are turned into the functional cost.
type Type string

const (
	// MaxMinMargin maximises the smallest absolute margin.
	MaxMinMargin Type = "max-min-margin"

	// MaxMinRelativeMargin maximises the smallest margin divided by the
	// zonal PTDF sum of its CNEC. Negative margins stay absolute.
	MaxMinRelativeMargin Type = "max-min-relative-margin"
)

// Virtual cost names.
const (
	MnecCostName     = "mnec-cost"
	LoopFlowCostName = "loop-flow-cost"
)

// ErrInvalidConfig indicates an objective configuration that cannot be used.
var ErrInvalidConfig = errors.New("invalid objective configuration")

// Config parameterises the objective function and the matching LP fillers.
type Config struct {
	Type Type      `yaml:"type" json:"type"`
	Unit crac.Unit `yaml:"unit" json:"unit"`

	// PtdfSumLowerBound floors the zonal PTDF sum used by relative margins.
	PtdfSumLowerBound float64 `yaml:"ptdf_sum_lower_bound" json:"ptdf_sum_lower_bound"`

	// MNEC parameters, in MW.
	EnableMnec                     bool    `yaml:"enable_mnec" json:"enable_mnec"`
	MnecAcceptableMarginDiminution float64 `yaml:"mnec_acceptable_margin_diminution" json:"mnec_acceptable_margin_diminution"`
	MnecViolationCost              float64 `yaml:"mnec_violation_cost" json:"mnec_violation_cost"`
	MnecConstraintAdjustment       float64 `yaml:"mnec_constraint_adjustment" json:"mnec_constraint_adjustment"`

	// Loop-flow parameters, in MW. A zero violation cost makes the LP
	// loop-flow constraint hard.
	EnableLoopFlow                 bool    `yaml:"enable_loop_flow" json:"enable_loop_flow"`
	LoopFlowAcceptableAugmentation float64 `yaml:"loop_flow_acceptable_augmentation" json:"loop_flow_acceptable_augmentation"`
	LoopFlowViolationCost          float64 `yaml:"loop_flow_violation_cost" json:"loop_flow_violation_cost"`

	// RangeActionPenaltyCost is charged per unit of setpoint variation in
	// the LP so that range actions are not moved without benefit.
	RangeActionPenaltyCost float64 `yaml:"range_action_penalty_cost" json:"range_action_penalty_cost"`
}

// DefaultConfig returns an absolute MW objective with MNEC and loop-flow
// costs enabled.
func DefaultConfig() Config {
	return Config{
		Type:                           MaxMinMargin,
		Unit:                           crac.UnitMegawatt,
		PtdfSumLowerBound:              0.01,
		EnableMnec:                     true,
		MnecAcceptableMarginDiminution: 50,
		MnecViolationCost:              10,
		EnableLoopFlow:                 true,
		LoopFlowViolationCost:          10,
		RangeActionPenaltyCost:         0.01,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Type {
	case MaxMinMargin, MaxMinRelativeMargin:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidConfig, c.Type)
	}
	if c.Unit != crac.UnitMegawatt && c.Unit != crac.UnitAmpere {
		return fmt.Errorf("%w: unit must be MEGAWATT or AMPERE, got %s", ErrInvalidConfig, c.Unit)
	}
	if c.Type == MaxMinRelativeMargin && c.PtdfSumLowerBound <= 0 {
		return fmt.Errorf("%w: ptdf_sum_lower_bound must be positive", ErrInvalidConfig)
	}
	for name, v := range map[string]float64{
		"mnec_acceptable_margin_diminution": c.MnecAcceptableMarginDiminution,
		"mnec_violation_cost":               c.MnecViolationCost,
		"mnec_constraint_adjustment":        c.MnecConstraintAdjustment,
		"loop_flow_acceptable_augmentation": c.LoopFlowAcceptableAugmentation,
		"loop_flow_violation_cost":          c.LoopFlowViolationCost,
		"range_action_penalty_cost":         c.RangeActionPenaltyCost,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, name)
		}
	}
	return nil
}

// Relative reports whether margins are relative.
func (c Config) Relative() bool { return c.Type == MaxMinRelativeMargin }
