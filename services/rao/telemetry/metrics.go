// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RunMetrics are the OTel instruments of the optimisation service.
//
// Thread Safety: Safe for concurrent use.
type RunMetrics struct {
	// RunsTotal counts finished runs by outcome (secure, unsecure, failed).
	RunsTotal metric.Int64Counter

	// RunDuration records end-to-end run duration in seconds.
	RunDuration metric.Float64Histogram

	// ActiveRuns tracks runs in progress.
	ActiveRuns metric.Int64UpDownCounter

	// RejectedRuns counts runs refused by admission control.
	RejectedRuns metric.Int64Counter
}

// NewRunMetrics creates the instruments on meter.
//
// Example:
//
//	m, err := telemetry.NewRunMetrics(otel.Meter("rao"))
func NewRunMetrics(meter metric.Meter) (*RunMetrics, error) {
	m := &RunMetrics{}
	var err error

	m.RunsTotal, err = meter.Int64Counter(
		"rao_runs_total",
		metric.WithDescription("Finished optimisation runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create rao_runs_total: %w", err)
	}

	m.RunDuration, err = meter.Float64Histogram(
		"rao_run_duration_seconds",
		metric.WithDescription("End-to-end optimisation run duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300),
	)
	if err != nil {
		return nil, fmt.Errorf("create rao_run_duration_seconds: %w", err)
	}

	m.ActiveRuns, err = meter.Int64UpDownCounter(
		"rao_active_runs",
		metric.WithDescription("Optimisation runs in progress"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create rao_active_runs: %w", err)
	}

	m.RejectedRuns, err = meter.Int64Counter(
		"rao_runs_rejected_total",
		metric.WithDescription("Runs refused because the service was busy"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create rao_runs_rejected_total: %w", err)
	}

	return m, nil
}

// RunStarted increments the active runs and returns the function that
// records the outcome.
func (m *RunMetrics) RunStarted(ctx context.Context) func(outcome string) {
	start := time.Now()
	m.ActiveRuns.Add(ctx, 1)
	return func(outcome string) {
		m.ActiveRuns.Add(ctx, -1)
		attrs := metric.WithAttributes(attribute.String("outcome", outcome))
		m.RunsTotal.Add(ctx, 1, attrs)
		m.RunDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}

// RunRejected counts one refused run.
func (m *RunMetrics) RunRejected(ctx context.Context) {
	m.RejectedRuns.Add(ctx, 1)
}
