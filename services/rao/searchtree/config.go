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
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianRAO/services/rao/linear"
	"github.com/AleutianAI/AleutianRAO/services/rao/objective"
)

// StopCriterion selects when the search may stop before running out of candidates.
type StopCriterion string

const (
	// StopMinObjective keeps searching while a child improves the cost.
	StopMinObjective StopCriterion = "min-objective"

	// StopSecure stops as soon as the incumbent is secure.
	StopSecure StopCriterion = "secure"
)

// Config contains all search-related configuration.
// This is the top-level config struct that can be loaded from files/env.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	// Search contains tree exploration settings.
	Search SearchConfig `json:"search" yaml:"search"`

	// Budget contains resource limit settings.
	Budget BudgetConfig `json:"budget" yaml:"budget"`

	// Filters contains bloomer filtering settings.
	Filters FilterConfig `json:"filters" yaml:"filters"`

	// Objective configures leaf scoring.
	Objective objective.Config `json:"objective" yaml:"objective"`

	// Linear configures the per-leaf range action optimisation.
	Linear linear.Config `json:"linear" yaml:"linear"`

	// Observability contains tracing settings.
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// SearchConfig contains tree exploration settings.
type SearchConfig struct {
	MaxDepth               int           `json:"max_depth" yaml:"max_depth"`
	LeavesInParallel       int           `json:"leaves_in_parallel" yaml:"leaves_in_parallel"`
	MinImprovement         float64       `json:"min_improvement" yaml:"min_improvement"`
	RelativeMinImprovement float64       `json:"relative_min_improvement" yaml:"relative_min_improvement"`
	StopCriterion          StopCriterion `json:"stop_criterion" yaml:"stop_criterion"`

	// PredefinedCombinations lists extra network action combinations by id.
	PredefinedCombinations [][]string `json:"predefined_combinations" yaml:"predefined_combinations"`
}

// BudgetConfig contains budget-related settings. Zero disables a limit.
type BudgetConfig struct {
	MaxLeaves int           `json:"max_leaves" yaml:"max_leaves"`
	TimeLimit time.Duration `json:"time_limit" yaml:"time_limit"`
}

// FilterConfig contains bloomer filtering settings.
type FilterConfig struct {
	// MaxBoundaries is the largest number of borders between a candidate
	// action and the limiting elements. -1 disables the filter.
	MaxBoundaries int `json:"max_boundaries" yaml:"max_boundaries"`

	// TopNCostly is the number of costly elements per virtual cost that
	// join the most limiting element in the geographic filter.
	TopNCostly int `json:"top_n_costly" yaml:"top_n_costly"`

	// MaxTsos bounds the number of activated operators. 0 disables the filter.
	MaxTsos int `json:"max_tsos" yaml:"max_tsos"`

	// TsosExcludedFromLimit are never counted against MaxTsos.
	TsosExcludedFromLimit []string `json:"tsos_excluded_from_limit" yaml:"tsos_excluded_from_limit"`

	// RangeActionEpsilon is the setpoint change above which a range action
	// activates its operator.
	RangeActionEpsilon float64 `json:"range_action_epsilon" yaml:"range_action_epsilon"`
}

// ObservabilityConfig contains observability settings.
type ObservabilityConfig struct {
	TracingEnabled bool `json:"tracing_enabled" yaml:"tracing_enabled"`
}

// DefaultConfig returns the default configuration.
//
// Outputs:
//   - Config: Default configuration with sensible values.
func DefaultConfig() Config {
	return Config{
		Search: SearchConfig{
			MaxDepth:               2,
			LeavesInParallel:       1,
			MinImprovement:         0,
			RelativeMinImprovement: 0,
			StopCriterion:          StopMinObjective,
		},
		Budget: BudgetConfig{
			MaxLeaves: 0,
			TimeLimit: 0,
		},
		Filters: FilterConfig{
			MaxBoundaries:      -1,
			TopNCostly:         1,
			MaxTsos:            0,
			RangeActionEpsilon: 1e-3,
		},
		Objective: objective.DefaultConfig(),
		Linear:    linear.DefaultConfig(),
		Observability: ObservabilityConfig{
			TracingEnabled: true,
		},
	}
}

// LoadConfig loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - configPath: Path to YAML/JSON config file (optional, can be empty).
//
// Outputs:
//   - Config: Merged configuration.
//   - error: Non-nil if the file cannot be read or parsed, or the result is invalid.
func LoadConfig(configPath string) (Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := loadConfigFile(configPath, &config); err != nil {
			return config, fmt.Errorf("load config file: %w", err)
		}
	}

	loadConfigFromEnv(&config)

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// ParseConfig decodes a YAML or JSON document on top of the defaults.
func ParseConfig(data []byte) (Config, error) {
	config := DefaultConfig()
	if err := decodeConfig(data, &config); err != nil {
		return config, err
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func loadConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return decodeConfig(data, config)
}

func decodeConfig(data []byte, config *Config) error {
	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if jsonErr := json.Unmarshal(data, config); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadConfigFromEnv(config *Config) {
	// Search
	if v := os.Getenv("RAO_MAX_DEPTH"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Search.MaxDepth = i
		}
	}
	if v := os.Getenv("RAO_LEAVES_IN_PARALLEL"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Search.LeavesInParallel = i
		}
	}
	if v := os.Getenv("RAO_MIN_IMPROVEMENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Search.MinImprovement = f
		}
	}
	if v := os.Getenv("RAO_RELATIVE_MIN_IMPROVEMENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Search.RelativeMinImprovement = f
		}
	}
	if v := os.Getenv("RAO_STOP_CRITERION"); v != "" {
		config.Search.StopCriterion = StopCriterion(v)
	}

	// Budget
	if v := os.Getenv("RAO_MAX_LEAVES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Budget.MaxLeaves = i
		}
	}
	if v := os.Getenv("RAO_TIME_LIMIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Budget.TimeLimit = d
		}
	}

	// Filters
	if v := os.Getenv("RAO_MAX_BOUNDARIES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Filters.MaxBoundaries = i
		}
	}
	if v := os.Getenv("RAO_TOP_N_COSTLY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Filters.TopNCostly = i
		}
	}
	if v := os.Getenv("RAO_MAX_TSOS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Filters.MaxTsos = i
		}
	}
	if v := os.Getenv("RAO_TSOS_EXCLUDED_FROM_LIMIT"); v != "" {
		config.Filters.TsosExcludedFromLimit = strings.Split(v, ",")
	}

	// Objective and LP
	if v := os.Getenv("RAO_OBJECTIVE_TYPE"); v != "" {
		config.Objective.Type = objective.Type(v)
	}
	if v := os.Getenv("RAO_MAX_LP_ITERATIONS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Linear.MaxIterations = i
		}
	}

	// Observability
	if v := os.Getenv("RAO_TRACING_ENABLED"); v != "" {
		config.Observability.TracingEnabled = v == "true" || v == "1"
	}
}

// Validate checks that the configuration is valid.
//
// Outputs:
//   - error: Non-nil if configuration is invalid, matching ErrInvalidConfig
//     or the nested objective and linear errors.
func (c Config) Validate() error {
	if c.Search.MaxDepth < 0 {
		return fmt.Errorf("%w: max_depth must be >= 0", ErrInvalidConfig)
	}
	if c.Search.LeavesInParallel < 1 {
		return fmt.Errorf("%w: leaves_in_parallel must be >= 1", ErrInvalidConfig)
	}
	if c.Search.MinImprovement < 0 {
		return fmt.Errorf("%w: min_improvement must be >= 0", ErrInvalidConfig)
	}
	if c.Search.RelativeMinImprovement < 0 || c.Search.RelativeMinImprovement >= 1 {
		return fmt.Errorf("%w: relative_min_improvement must be in [0, 1)", ErrInvalidConfig)
	}
	switch c.Search.StopCriterion {
	case StopMinObjective, StopSecure:
	default:
		return fmt.Errorf("%w: unknown stop_criterion %q", ErrInvalidConfig, c.Search.StopCriterion)
	}
	for i, comb := range c.Search.PredefinedCombinations {
		if len(comb) == 0 {
			return fmt.Errorf("%w: predefined combination %d is empty", ErrInvalidConfig, i)
		}
	}
	if c.Budget.MaxLeaves < 0 {
		return fmt.Errorf("%w: max_leaves must be >= 0", ErrInvalidConfig)
	}
	if c.Budget.TimeLimit < 0 {
		return fmt.Errorf("%w: time_limit must be >= 0", ErrInvalidConfig)
	}
	if c.Filters.MaxBoundaries < -1 {
		return fmt.Errorf("%w: max_boundaries must be >= -1", ErrInvalidConfig)
	}
	if c.Filters.TopNCostly < 0 {
		return fmt.Errorf("%w: top_n_costly must be >= 0", ErrInvalidConfig)
	}
	if c.Filters.MaxTsos < 0 {
		return fmt.Errorf("%w: max_tsos must be >= 0", ErrInvalidConfig)
	}
	if c.Filters.RangeActionEpsilon < 0 {
		return fmt.Errorf("%w: range_action_epsilon must be >= 0", ErrInvalidConfig)
	}
	if err := c.Objective.Validate(); err != nil {
		return err
	}
	return c.Linear.Validate()
}
