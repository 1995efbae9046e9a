// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sensitivity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
)

// FallbackOracle retries a failed computation with a degraded oracle.
//
// Description:
//
//	The primary oracle is tried first. When it fails for any reason other
//	than cancellation or a variant contract violation, the fallback oracle
//	is used and its result is marked StatusFallback.
//
// Thread Safety: Safe for concurrent use if both oracles are.
type FallbackOracle struct {
	primary  Oracle
	fallback Oracle
	logger   *slog.Logger
}

// WithFallback wraps primary with a fallback oracle.
func WithFallback(primary, fallback Oracle, logger *slog.Logger) *FallbackOracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackOracle{primary: primary, fallback: fallback, logger: logger}
}

// Compute implements Oracle.
func (o *FallbackOracle) Compute(ctx context.Context, v *grid.Variant, req Request) (*Result, error) {
	res, err := o.primary.Compute(ctx, v, req)
	if err == nil {
		computationsTotal.WithLabelValues(res.Status().String()).Inc()
		return res, nil
	}
	if ctx.Err() != nil || isContractError(err) {
		return nil, err
	}

	o.logger.Warn("sensitivity computation failed, retrying with fallback parameters",
		slog.String("variant", v.ID()),
		slog.String("error", err.Error()))

	fb, ferr := o.fallback.Compute(ctx, v, req)
	if ferr != nil {
		computationsTotal.WithLabelValues(StatusFailure.String()).Inc()
		if isContractError(ferr) {
			return nil, ferr
		}
		return nil, fmt.Errorf("%w: primary: %v; fallback: %v", ErrComputationFailed, err, ferr)
	}
	computationsTotal.WithLabelValues(StatusFallback.String()).Inc()
	return fb.WithStatus(StatusFallback), nil
}
