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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	leavesEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rao",
			Subsystem: "search",
			Name:      "leaves_evaluated_total",
			Help:      "Leaf evaluations by final status",
		},
		[]string{"status"},
	)

	leafDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rao",
			Subsystem: "search",
			Name:      "leaf_duration_seconds",
			Help:      "Leaf evaluation latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rao",
			Subsystem: "search",
			Name:      "searches_total",
			Help:      "Completed searches by termination reason",
		},
		[]string{"reason"},
	)

	searchDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rao",
			Subsystem: "search",
			Name:      "depth",
			Help:      "Depth reached per search",
			Buckets:   prometheus.LinearBuckets(0, 1, 8),
		},
	)
)
