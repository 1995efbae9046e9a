// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sensitivity defines the sensitivity oracle and its implementations.
//
// An Oracle computes, for one network variant, the flow on every requested
// CNEC and the sensitivity of those flows to every requested range action.
// Results carry a computation status: a degraded (fallback) computation is
// always reported as such and never as a success.
package sensitivity

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianRAO/services/rao/crac"
	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
)

var (
	// ErrComputationFailed indicates the oracle could not produce a usable result.
	ErrComputationFailed = errors.New("sensitivity computation failed")

	// ErrSingularNetwork indicates the DC susceptance matrix cannot be inverted,
	// usually because a contingency islands part of the network.
	ErrSingularNetwork = errors.New("singular network matrix")
)

// Oracle computes flows and sensitivities for a network variant.
//
// Implementations must not mutate the variant and must treat returned
// results as immutable once handed out.
type Oracle interface {
	Compute(ctx context.Context, v *grid.Variant, req Request) (*Result, error)
}

// Request lists what an oracle call must compute.
type Request struct {
	Cnecs        []*crac.FlowCnec
	RangeActions []crac.RangeAction

	// CommercialFlows requests commercial flows on the CNECs, needed for loop flows.
	CommercialFlows bool

	// PtdfSums requests zonal PTDF sums, needed for relative margins.
	PtdfSums bool
}

// Key identifies the request content independently of slice order.
func (r Request) Key() string {
	cnecs := make([]string, 0, len(r.Cnecs))
	for _, c := range r.Cnecs {
		cnecs = append(cnecs, c.ID)
	}
	ras := make([]string, 0, len(r.RangeActions))
	for _, ra := range r.RangeActions {
		ras = append(ras, ra.ID())
	}
	sort.Strings(cnecs)
	sort.Strings(ras)

	var b strings.Builder
	b.WriteString(strings.Join(cnecs, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(ras, ","))
	if r.CommercialFlows {
		b.WriteString("|cf")
	}
	if r.PtdfSums {
		b.WriteString("|ptdf")
	}
	return b.String()
}
