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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianRAO/services/rao/crac"
	"github.com/AleutianAI/AleutianRAO/services/rao/objective"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Search.MaxDepth != 2 {
		t.Errorf("Search.MaxDepth = %d, want 2", config.Search.MaxDepth)
	}
	if config.Search.LeavesInParallel != 1 {
		t.Errorf("Search.LeavesInParallel = %d, want 1", config.Search.LeavesInParallel)
	}
	if config.Search.StopCriterion != StopMinObjective {
		t.Errorf("Search.StopCriterion = %q, want %q", config.Search.StopCriterion, StopMinObjective)
	}
	if config.Filters.MaxBoundaries != -1 {
		t.Errorf("Filters.MaxBoundaries = %d, want -1", config.Filters.MaxBoundaries)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantError bool
	}{
		{name: "valid default config", modify: func(_ *Config) {}},
		{name: "negative max_depth", modify: func(c *Config) { c.Search.MaxDepth = -1 }, wantError: true},
		{name: "zero leaves_in_parallel", modify: func(c *Config) { c.Search.LeavesInParallel = 0 }, wantError: true},
		{name: "negative min_improvement", modify: func(c *Config) { c.Search.MinImprovement = -1 }, wantError: true},
		{name: "relative improvement of one", modify: func(c *Config) { c.Search.RelativeMinImprovement = 1 }, wantError: true},
		{name: "unknown stop criterion", modify: func(c *Config) { c.Search.StopCriterion = "never" }, wantError: true},
		{name: "empty predefined combination", modify: func(c *Config) { c.Search.PredefinedCombinations = [][]string{{}} }, wantError: true},
		{name: "negative max_leaves", modify: func(c *Config) { c.Budget.MaxLeaves = -1 }, wantError: true},
		{name: "max_boundaries below -1", modify: func(c *Config) { c.Filters.MaxBoundaries = -2 }, wantError: true},
		{name: "max_boundaries zero", modify: func(c *Config) { c.Filters.MaxBoundaries = 0 }},
		{name: "negative max_tsos", modify: func(c *Config) { c.Filters.MaxTsos = -1 }, wantError: true},
		{name: "invalid objective", modify: func(c *Config) { c.Objective.Type = "max-flow" }, wantError: true},
		{name: "invalid linear", modify: func(c *Config) { c.Linear.MaxIterations = 0 }, wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(&config)
			err := config.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestConfig_ValidateWrapsSentinel(t *testing.T) {
	config := DefaultConfig()
	config.Search.LeavesInParallel = 0
	if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
	}
	config = DefaultConfig()
	config.Objective.Type = "max-flow"
	if err := config.Validate(); !errors.Is(err, objective.ErrInvalidConfig) {
		t.Errorf("Validate() error = %v, want objective.ErrInvalidConfig", err)
	}
}

func TestLoadConfig_FromYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "search.yaml")
	yamlContent := `
search:
  max_depth: 3
  leaves_in_parallel: 4
  stop_criterion: secure
  predefined_combinations:
    - [close-fr-nl-2, open-be-nl]

budget:
  time_limit: 30s

filters:
  max_tsos: 2
  tsos_excluded_from_limit: [BE]

objective:
  type: max-min-relative-margin
  unit: A
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.Search.MaxDepth != 3 {
		t.Errorf("Search.MaxDepth = %d, want 3", config.Search.MaxDepth)
	}
	if config.Search.LeavesInParallel != 4 {
		t.Errorf("Search.LeavesInParallel = %d, want 4", config.Search.LeavesInParallel)
	}
	if config.Search.StopCriterion != StopSecure {
		t.Errorf("Search.StopCriterion = %q, want secure", config.Search.StopCriterion)
	}
	if len(config.Search.PredefinedCombinations) != 1 || len(config.Search.PredefinedCombinations[0]) != 2 {
		t.Errorf("Search.PredefinedCombinations = %v, want one pair", config.Search.PredefinedCombinations)
	}
	if config.Budget.TimeLimit != 30*time.Second {
		t.Errorf("Budget.TimeLimit = %v, want 30s", config.Budget.TimeLimit)
	}
	if config.Filters.MaxTsos != 2 {
		t.Errorf("Filters.MaxTsos = %d, want 2", config.Filters.MaxTsos)
	}
	if config.Objective.Type != objective.MaxMinRelativeMargin {
		t.Errorf("Objective.Type = %q, want relative", config.Objective.Type)
	}
	if config.Objective.Unit != crac.UnitAmpere {
		t.Errorf("Objective.Unit = %v, want ampere", config.Objective.Unit)
	}
	// Untouched sections keep their defaults.
	if config.Filters.MaxBoundaries != -1 {
		t.Errorf("Filters.MaxBoundaries = %d, want default -1", config.Filters.MaxBoundaries)
	}
	if config.Linear.MaxIterations != 10 {
		t.Errorf("Linear.MaxIterations = %d, want default 10", config.Linear.MaxIterations)
	}
}

func TestLoadConfig_FromJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "search.json")
	jsonContent := `{
  "search": {"max_depth": 5, "min_improvement": 1.5},
  "linear": {"max_iterations": 3, "rebuild_each_iteration": true}
}`
	if err := os.WriteFile(configPath, []byte(jsonContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.Search.MaxDepth != 5 {
		t.Errorf("Search.MaxDepth = %d, want 5", config.Search.MaxDepth)
	}
	if config.Search.MinImprovement != 1.5 {
		t.Errorf("Search.MinImprovement = %f, want 1.5", config.Search.MinImprovement)
	}
	if config.Linear.MaxIterations != 3 || !config.Linear.RebuildEachIteration {
		t.Errorf("Linear = %+v, want 3 iterations with rebuild", config.Linear)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "search.yaml")
	if err := os.WriteFile(configPath, []byte("search:\n  max_depth: 3\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("RAO_MAX_DEPTH", "7")
	t.Setenv("RAO_LEAVES_IN_PARALLEL", "8")
	t.Setenv("RAO_TIME_LIMIT", "2m")
	t.Setenv("RAO_MAX_BOUNDARIES", "1")
	t.Setenv("RAO_MAX_TSOS", "3")
	t.Setenv("RAO_TSOS_EXCLUDED_FROM_LIMIT", "FR,BE")
	t.Setenv("RAO_TRACING_ENABLED", "false")

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.Search.MaxDepth != 7 {
		t.Errorf("Search.MaxDepth = %d, want 7 (env wins over file)", config.Search.MaxDepth)
	}
	if config.Search.LeavesInParallel != 8 {
		t.Errorf("Search.LeavesInParallel = %d, want 8", config.Search.LeavesInParallel)
	}
	if config.Budget.TimeLimit != 2*time.Minute {
		t.Errorf("Budget.TimeLimit = %v, want 2m", config.Budget.TimeLimit)
	}
	if config.Filters.MaxBoundaries != 1 || config.Filters.MaxTsos != 3 {
		t.Errorf("Filters = %+v, want max_boundaries 1 and max_tsos 3", config.Filters)
	}
	if len(config.Filters.TsosExcludedFromLimit) != 2 {
		t.Errorf("Filters.TsosExcludedFromLimit = %v, want [FR BE]", config.Filters.TsosExcludedFromLimit)
	}
	if config.Observability.TracingEnabled {
		t.Error("Observability.TracingEnabled should be false")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfig() on a missing file should fail")
	}

	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(configPath, []byte("search:\n  leaves_in_parallel: 0\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	if _, err := LoadConfig(configPath); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("LoadConfig() error = %v, want ErrInvalidConfig", err)
	}
}

func TestParseConfig(t *testing.T) {
	config, err := ParseConfig([]byte(`{"search": {"max_depth": 1}}`))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if config.Search.MaxDepth != 1 {
		t.Errorf("Search.MaxDepth = %d, want 1", config.Search.MaxDepth)
	}
	if _, err := ParseConfig([]byte("search: [")); err == nil {
		t.Error("ParseConfig() on malformed input should fail")
	}
}
