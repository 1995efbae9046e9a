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

import "errors"

var (
	// ErrRootEvaluation indicates the root leaf could not be evaluated and
	// the search cannot start.
	ErrRootEvaluation = errors.New("root leaf evaluation failed")

	// ErrLeafAlreadyEvaluated indicates Evaluate was called twice on a leaf.
	ErrLeafAlreadyEvaluated = errors.New("leaf already evaluated")

	// ErrMissingReferenceVariant indicates a root leaf was evaluated without
	// a reference variant.
	ErrMissingReferenceVariant = errors.New("root leaf requires a reference variant")

	// ErrInvalidConfig indicates an unusable search configuration.
	ErrInvalidConfig = errors.New("invalid search tree configuration")
)
