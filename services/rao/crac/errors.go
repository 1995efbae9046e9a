// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package crac

import "errors"

var (
	// ErrInvalidCrac indicates an inconsistent catalog definition.
	ErrInvalidCrac = errors.New("invalid crac")

	// ErrUnknownUnit indicates a unit name that cannot be parsed.
	ErrUnknownUnit = errors.New("unknown unit")

	// ErrMissingElement indicates a catalog entry referencing an element the network lacks.
	ErrMissingElement = errors.New("network element not defined")
)
