// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rao

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRAO/services/rao/searchtree"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":12230", cfg.HTTP.Addr)
	assert.Equal(t, int64(2), cfg.Admission.MaxConcurrent)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rao.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
search:
  search:
    max_depth: 3
    leaves_in_parallel: 4
  budget:
    time_limit: 90s
http:
  addr: "127.0.0.1:9000"
admission:
  burst: 8
storage:
  in_memory: true
  path: ""
`), 0600))
	t.Setenv("RAO_MAX_CONCURRENT_RUNS", "5")

	cfg, err := LoadConfig(path, "/var/lib/rao")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Search.Search.MaxDepth)
	assert.Equal(t, 4, cfg.Search.Search.LeavesInParallel)
	assert.Equal(t, 90*time.Second, cfg.Search.Budget.TimeLimit)
	assert.Equal(t, searchtree.StopMinObjective, cfg.Search.Search.StopCriterion, "unset fields keep defaults")
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, 8, cfg.Admission.Burst)
	assert.Equal(t, int64(5), cfg.Admission.MaxConcurrent)
	assert.True(t, cfg.Storage.InMemory)
}

func TestLoadConfig_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("RAO_HTTP_ADDR", "localhost:8081")
	t.Setenv("RAO_STORE_PATH", "/tmp/rao-runs")

	cfg, err := LoadConfig("", "")
	require.NoError(t, err)
	assert.Equal(t, "localhost:8081", cfg.HTTP.Addr)
	assert.Equal(t, "/tmp/rao-runs", cfg.Storage.Path)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"no store path", func(c *Config) { c.Storage.Path = "" }, ErrInvalidServiceConfig},
		{"bad addr", func(c *Config) { c.HTTP.Addr = "nowhere" }, ErrInvalidServiceConfig},
		{"zero rate", func(c *Config) { c.Admission.RatePerSecond = 0 }, ErrInvalidServiceConfig},
		{"unknown exporter", func(c *Config) { c.Telemetry.TraceExporter = "jaeger" }, ErrInvalidServiceConfig},
		{"zero regularization", func(c *Config) { c.Sensitivity.FallbackRegularization = 0 }, ErrInvalidServiceConfig},
		{"bad search", func(c *Config) { c.Search.Search.MaxDepth = -2 }, searchtree.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("/var/lib/rao")
			cfg.Telemetry.TraceExporter = "none"
			cfg.Telemetry.MetricExporter = "prometheus"
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), "/var/lib/rao")
	assert.Error(t, err)
}
