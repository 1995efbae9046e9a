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
	"errors"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
)

// DefaultCacheEntries bounds the cache when no size is given.
const DefaultCacheEntries = 1024

// CachingOracle memoises results by variant state and request.
//
// Description:
//
//	Two variants with the same fingerprint (same topology and setpoints)
//	share results, so a leaf that lands on an already computed operating
//	point does not pay for a new computation.
//
// Thread Safety: Safe for concurrent use.
type CachingOracle struct {
	inner Oracle
	cache *ristretto.Cache[string, *Result]
}

// NewCachingOracle wraps inner with a cache of at most maxEntries results.
func NewCachingOracle(inner Oracle, maxEntries int64) (*CachingOracle, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, *Result]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create sensitivity cache: %w", err)
	}
	return &CachingOracle{inner: inner, cache: cache}, nil
}

// Compute implements Oracle.
func (o *CachingOracle) Compute(ctx context.Context, v *grid.Variant, req Request) (*Result, error) {
	fp, err := v.Fingerprint()
	if err != nil {
		return nil, err
	}
	key := fp + "#" + req.Key()
	if res, ok := o.cache.Get(key); ok {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		return res, nil
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()

	res, err := o.inner.Compute(ctx, v, req)
	if err != nil {
		return nil, err
	}
	o.cache.Set(key, res, 1)
	o.cache.Wait()
	return res, nil
}

// Close releases the cache.
func (o *CachingOracle) Close() {
	o.cache.Close()
}

func isContractError(err error) bool {
	return errors.Is(err, grid.ErrVariantContract)
}
