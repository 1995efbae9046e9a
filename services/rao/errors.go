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

import "errors"

var (
	// ErrBusy is returned when admission control refuses a run.
	ErrBusy = errors.New("rao: service busy")

	// ErrInvalidRequest indicates a run request without a case or with
	// an unreadable search configuration.
	ErrInvalidRequest = errors.New("rao: invalid request")

	// ErrInvalidCase indicates a case document that fails validation or
	// references unknown network elements.
	ErrInvalidCase = errors.New("rao: invalid case")

	// ErrInvalidServiceConfig indicates a service configuration that
	// fails validation.
	ErrInvalidServiceConfig = errors.New("rao: invalid service config")
)
