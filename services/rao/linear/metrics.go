// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package linear

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	solvesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rao",
			Subsystem: "linear",
			Name:      "solves_total",
			Help:      "LP solves by status",
		},
		[]string{"status"},
	)

	solveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rao",
			Subsystem: "linear",
			Name:      "solve_duration_seconds",
			Help:      "LP solve latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	optimizationIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rao",
			Subsystem: "linear",
			Name:      "iterations",
			Help:      "LP iterations per range action optimisation",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		},
	)
)
