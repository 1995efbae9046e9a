// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package caseio reads optimisation cases (a network and its CRAC) from
// YAML or JSON documents.
//
// Documents are plain data with validation tags. Build turns a validated
// document into the immutable grid.Network and crac.Crac the optimiser
// works on, resolving every id reference on the way.
package caseio

import (
	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
)

// Document is a complete case.
type Document struct {
	Network NetworkDocument `json:"network" yaml:"network" validate:"required"`
	Crac    CracDocument    `json:"crac" yaml:"crac" validate:"required"`
}

// NetworkDocument describes the grid. Branches are closed unless Closed is false.
type NetworkDocument struct {
	ID         string              `json:"id" yaml:"id" validate:"required"`
	BaseMVA    float64             `json:"base_mva,omitempty" yaml:"base_mva,omitempty" validate:"gte=0"`
	SlackBus   string              `json:"slack_bus,omitempty" yaml:"slack_bus,omitempty"`
	Buses      []BusDocument       `json:"buses" yaml:"buses" validate:"required,min=1,dive"`
	Branches   []BranchDocument    `json:"branches" yaml:"branches" validate:"dive"`
	Psts       []PstDocument       `json:"psts,omitempty" yaml:"psts,omitempty" validate:"dive"`
	Hvdcs      []HvdcDocument      `json:"hvdcs,omitempty" yaml:"hvdcs,omitempty" validate:"dive"`
	Injections []InjectionDocument `json:"injections,omitempty" yaml:"injections,omitempty" validate:"dive"`
	Boundaries []BoundaryDocument  `json:"boundaries,omitempty" yaml:"boundaries,omitempty" validate:"dive"`
}

type BusDocument struct {
	ID      string `json:"id" yaml:"id" validate:"required"`
	Country string `json:"country,omitempty" yaml:"country,omitempty"`
}

type BranchDocument struct {
	ID             string  `json:"id" yaml:"id" validate:"required"`
	From           string  `json:"from" yaml:"from" validate:"required"`
	To             string  `json:"to" yaml:"to" validate:"required,nefield=From"`
	Reactance      float64 `json:"reactance" yaml:"reactance" validate:"required"`
	NominalVoltage float64 `json:"nominal_voltage,omitempty" yaml:"nominal_voltage,omitempty" validate:"gte=0"`
	IMax           float64 `json:"imax,omitempty" yaml:"imax,omitempty" validate:"gte=0"`
	Closed         *bool   `json:"closed,omitempty" yaml:"closed,omitempty"`
}

type PstDocument struct {
	ID     string         `json:"id" yaml:"id" validate:"required"`
	Branch string         `json:"branch" yaml:"branch" validate:"required"`
	Tap    int            `json:"tap" yaml:"tap"`
	Taps   []grid.TapStep `json:"taps" yaml:"taps" validate:"required,min=1"`
}

type HvdcDocument struct {
	ID       string  `json:"id" yaml:"id" validate:"required"`
	From     string  `json:"from" yaml:"from" validate:"required"`
	To       string  `json:"to" yaml:"to" validate:"required,nefield=From"`
	Setpoint float64 `json:"setpoint" yaml:"setpoint"`
	MaxP     float64 `json:"max_p" yaml:"max_p" validate:"gte=0"`
}

type InjectionDocument struct {
	ID       string  `json:"id" yaml:"id" validate:"required"`
	Bus      string  `json:"bus" yaml:"bus" validate:"required"`
	Setpoint float64 `json:"setpoint" yaml:"setpoint"`
}

type BoundaryDocument struct {
	CountryA string `json:"country_a" yaml:"country_a" validate:"required"`
	CountryB string `json:"country_b" yaml:"country_b" validate:"required,nefield=CountryA"`
}

// CracDocument lists contingencies, CNECs and remedial actions.
type CracDocument struct {
	ID             string                  `json:"id" yaml:"id" validate:"required"`
	Contingencies  []ContingencyDocument   `json:"contingencies,omitempty" yaml:"contingencies,omitempty" validate:"dive"`
	Cnecs          []CnecDocument          `json:"cnecs" yaml:"cnecs" validate:"required,min=1,dive"`
	NetworkActions []NetworkActionDocument `json:"network_actions,omitempty" yaml:"network_actions,omitempty" validate:"dive"`
	RangeActions   []RangeActionDocument   `json:"range_actions,omitempty" yaml:"range_actions,omitempty" validate:"dive"`

	// Combinations lists predefined multi-action combinations by action id.
	Combinations [][]string `json:"combinations,omitempty" yaml:"combinations,omitempty" validate:"dive,min=1"`
}

type ContingencyDocument struct {
	ID       string   `json:"id" yaml:"id" validate:"required"`
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
	Branches []string `json:"branches" yaml:"branches" validate:"required,min=1,dive,required"`
}

type CnecDocument struct {
	ID                string              `json:"id" yaml:"id" validate:"required"`
	Name              string              `json:"name,omitempty" yaml:"name,omitempty"`
	Branch            string              `json:"branch" yaml:"branch" validate:"required"`
	Contingency       string              `json:"contingency,omitempty" yaml:"contingency,omitempty"`
	Operator          string              `json:"operator,omitempty" yaml:"operator,omitempty"`
	Optimized         bool                `json:"optimized" yaml:"optimized"`
	Monitored         bool                `json:"monitored" yaml:"monitored"`
	NominalVoltage    float64             `json:"nominal_voltage,omitempty" yaml:"nominal_voltage,omitempty" validate:"gte=0"`
	IMax              float64             `json:"imax,omitempty" yaml:"imax,omitempty" validate:"gte=0"`
	ReliabilityMargin float64             `json:"reliability_margin,omitempty" yaml:"reliability_margin,omitempty" validate:"gte=0"`
	LoopFlowThreshold *float64            `json:"loop_flow_threshold,omitempty" yaml:"loop_flow_threshold,omitempty" validate:"omitempty,gte=0"`
	Thresholds        []ThresholdDocument `json:"thresholds" yaml:"thresholds" validate:"required,min=1,dive"`
}

// ThresholdDocument is a flow limit. Unit accepts MW, A and % (of Imax).
type ThresholdDocument struct {
	Unit string   `json:"unit" yaml:"unit" validate:"required"`
	Min  *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max  *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

type NetworkActionDocument struct {
	ID       string                     `json:"id" yaml:"id" validate:"required"`
	Name     string                     `json:"name,omitempty" yaml:"name,omitempty"`
	Operator string                     `json:"operator,omitempty" yaml:"operator,omitempty"`
	Actions  []ElementaryActionDocument `json:"actions" yaml:"actions" validate:"required,min=1,dive"`
}

// ElementaryActionDocument is one of:
//
//	open / close         - Element is a branch.
//	pst_setpoint         - Element is a PST, Tap is required.
//	injection_setpoint   - Element is an injection, Setpoint is required.
type ElementaryActionDocument struct {
	Type     string   `json:"type" yaml:"type" validate:"required,oneof=open close pst_setpoint injection_setpoint"`
	Element  string   `json:"element" yaml:"element" validate:"required"`
	Tap      *int     `json:"tap,omitempty" yaml:"tap,omitempty" validate:"required_if=Type pst_setpoint"`
	Setpoint *float64 `json:"setpoint,omitempty" yaml:"setpoint,omitempty" validate:"required_if=Type injection_setpoint"`
}

// RangeActionDocument is a PST (ranges in taps) or HVDC (ranges in MW) range action.
type RangeActionDocument struct {
	ID       string          `json:"id" yaml:"id" validate:"required"`
	Name     string          `json:"name,omitempty" yaml:"name,omitempty"`
	Operator string          `json:"operator,omitempty" yaml:"operator,omitempty"`
	Kind     string          `json:"kind" yaml:"kind" validate:"required,oneof=pst hvdc"`
	Element  string          `json:"element" yaml:"element" validate:"required"`
	Ranges   []RangeDocument `json:"ranges" yaml:"ranges" validate:"required,min=1,dive"`
}

// RangeDocument bounds a range action. Type defaults to ABSOLUTE.
type RangeDocument struct {
	Type string  `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=ABSOLUTE RELATIVE_TO_PREVIOUS_INSTANT RELATIVE_TO_INITIAL_NETWORK"`
	Min  float64 `json:"min" yaml:"min"`
	Max  float64 `json:"max" yaml:"max" validate:"gtefield=Min"`
}
