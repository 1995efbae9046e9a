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
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/AleutianAI/AleutianRAO/services/rao/caseio"
	"github.com/AleutianAI/AleutianRAO/services/rao/searchtree"
	"github.com/AleutianAI/AleutianRAO/services/rao/storage"
	"github.com/AleutianAI/AleutianRAO/services/rao/telemetry"
)

const triangleCase = "caseio/testdata/triangle.yaml"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig("")
	cfg.Storage = storage.InMemoryConfig()
	cfg.Search.Observability.TracingEnabled = false
	cfg.Admission.RatePerSecond = 1000
	cfg.Admission.Burst = 1000
	return cfg
}

func newTestService(t *testing.T, mutate func(*Config)) *Service {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	svc, err := NewService(cfg, storage.NewResultStore(db), WithServiceLogger(quietLogger()))
	require.NoError(t, err)
	return svc
}

func loadTriangle(t *testing.T) *caseio.Document {
	t.Helper()
	doc, err := LoadCase(triangleCase)
	require.NoError(t, err)
	return doc
}

func TestService_Run_Triangle(t *testing.T) {
	svc := newTestService(t, nil)

	resp, err := svc.Run(context.Background(), RunRequest{Case: loadTriangle(t)})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, "triangle-crac", resp.CaseID)
	require.NotNil(t, resp.Report)
	assert.Equal(t, searchtree.Secure, resp.Report.Status)
	assert.Equal(t, []string{"close-fr-nl-2"}, resp.Report.NetworkActions)
	assert.Greater(t, resp.Report.InitialCost, 0.0)
	assert.Less(t, resp.Report.FinalCost, -59.0)
	assert.Equal(t, searchtree.ComputationDefault, resp.Report.SensitivityStatus)

	stored, err := svc.Get(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, resp.RunID, stored.RunID)
	assert.InDelta(t, resp.Report.FinalCost, stored.Report.FinalCost, 1e-9)
	assert.Equal(t, resp.Report.NetworkActions, stored.Report.NetworkActions)

	runs, err := svc.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, resp.RunID, runs[0].RunID)
	assert.Equal(t, searchtree.Secure, runs[0].Status)
}

func TestService_Run_ConfigOverride(t *testing.T) {
	svc := newTestService(t, nil)

	// Depth 0 keeps the root: only the PST may move.
	resp, err := svc.Run(context.Background(), RunRequest{
		Case:   loadTriangle(t),
		Config: json.RawMessage(`{"search": {"max_depth": 0}, "observability": {"tracing_enabled": false}}`),
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Report.NetworkActions)
	assert.Equal(t, searchtree.TerminationMaxDepth, resp.Report.TerminationReason)
	assert.Equal(t, searchtree.Unsecure, resp.Report.Status)
}

func TestService_Run_InvalidRequests(t *testing.T) {
	svc := newTestService(t, nil)

	tests := []struct {
		name    string
		req     func() RunRequest
		wantErr error
	}{
		{
			name:    "missing case",
			req:     func() RunRequest { return RunRequest{} },
			wantErr: ErrInvalidRequest,
		},
		{
			name: "unreadable config",
			req: func() RunRequest {
				return RunRequest{Case: loadTriangle(t), Config: json.RawMessage(`{"search":`)}
			},
			wantErr: ErrInvalidRequest,
		},
		{
			name: "invalid config",
			req: func() RunRequest {
				return RunRequest{Case: loadTriangle(t), Config: json.RawMessage(`{"search": {"max_depth": -1}}`)}
			},
			wantErr: searchtree.ErrInvalidConfig,
		},
		{
			name: "dangling branch",
			req: func() RunRequest {
				doc := loadTriangle(t)
				doc.Crac.Cnecs[0].Branch = "XX-YY"
				return RunRequest{Case: doc}
			},
			wantErr: ErrInvalidCase,
		},
		{
			name: "failed validation",
			req: func() RunRequest {
				doc := loadTriangle(t)
				doc.Crac.Cnecs[0].ID = ""
				return RunRequest{Case: doc}
			},
			wantErr: ErrInvalidCase,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Run(context.Background(), tt.req())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	runs, err := svc.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs, "failed runs are not stored")
}

func TestService_Run_RateLimited(t *testing.T) {
	svc := newTestService(t, func(c *Config) {
		c.Admission.RatePerSecond = 0.001
		c.Admission.Burst = 1
	})
	doc := loadTriangle(t)

	_, err := svc.Run(context.Background(), RunRequest{Case: doc})
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), RunRequest{Case: doc})
	assert.ErrorIs(t, err, ErrBusy)
}

func TestService_Run_ConcurrencyLimit(t *testing.T) {
	svc := newTestService(t, func(c *Config) { c.Admission.MaxConcurrent = 1 })
	require.True(t, svc.slots.TryAcquire(1))

	_, err := svc.Run(context.Background(), RunRequest{Case: loadTriangle(t)})
	assert.ErrorIs(t, err, ErrBusy)

	svc.slots.Release(1)
	_, err = svc.Run(context.Background(), RunRequest{Case: loadTriangle(t)})
	assert.NoError(t, err)
}

func TestService_RunMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())
	metrics, err := telemetry.NewRunMetrics(provider.Meter("rao"))
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Admission.RatePerSecond = 0.001
	cfg.Admission.Burst = 1
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	svc, err := NewService(cfg, storage.NewResultStore(db), WithServiceLogger(quietLogger()), WithRunMetrics(metrics))
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), RunRequest{Case: loadTriangle(t)})
	require.NoError(t, err)
	_, err = svc.Run(context.Background(), RunRequest{Case: loadTriangle(t)})
	require.ErrorIs(t, err, ErrBusy)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	sums := map[string]int64{}
	outcomes := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			data, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range data.DataPoints {
				sums[md.Name] += dp.Value
				if md.Name == "rao_runs_total" {
					outcome, _ := dp.Attributes.Value("outcome")
					outcomes[outcome.AsString()] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(1), sums["rao_runs_total"])
	assert.Equal(t, int64(1), outcomes["secure"])
	assert.Equal(t, int64(1), sums["rao_runs_rejected_total"])
	assert.Equal(t, int64(0), sums["rao_active_runs"])
}

func TestService_RunSpanScopes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	svc := newTestService(t, func(c *Config) { c.Search.Observability.TracingEnabled = true })
	_, err := svc.Run(context.Background(), RunRequest{Case: loadTriangle(t)})
	require.NoError(t, err)

	scopes := map[string]bool{}
	for _, span := range recorder.Ended() {
		name := span.InstrumentationScope().Name
		scopes[name] = true
		assert.True(t, name == "rao" || strings.HasPrefix(name, "rao."),
			"span %s has scope %q", span.Name(), name)
	}
	for _, want := range []string{"rao", "rao.searchtree", "rao.sensitivity", "rao.linear"} {
		assert.True(t, scopes[want], "no span with scope %q in %v", want, scopes)
	}
}

func TestService_GetMissing(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestNewService_Invalid(t *testing.T) {
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := storage.NewResultStore(db)

	cfg := testConfig()
	cfg.Admission.Burst = 0
	_, err = NewService(cfg, store)
	assert.ErrorIs(t, err, ErrInvalidServiceConfig)

	cfg = testConfig()
	cfg.Search.Search.LeavesInParallel = 0
	_, err = NewService(cfg, store)
	assert.ErrorIs(t, err, searchtree.ErrInvalidConfig)

	_, err = NewService(testConfig(), nil)
	assert.ErrorIs(t, err, ErrInvalidServiceConfig)
}

func TestLoadCase_Missing(t *testing.T) {
	_, err := LoadCase("testdata/missing.yaml")
	assert.ErrorIs(t, err, ErrInvalidCase)
}
