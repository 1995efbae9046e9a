// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package grid

import (
	"errors"
	"fmt"
)

// ErrVariantContract is matched by every variant-management error.
//
// These errors signal a programming mistake in the caller (a token used after
// release, an id that was never created) and are never retried.
var ErrVariantContract = errors.New("variant contract violation")

var (
	// ErrUnknownVariant indicates the variant id is not in the arena.
	ErrUnknownVariant = fmt.Errorf("%w: unknown variant", ErrVariantContract)

	// ErrVariantInUse indicates the variant is already held by another token.
	ErrVariantInUse = fmt.Errorf("%w: variant already acquired", ErrVariantContract)

	// ErrVariantReleased indicates a token was used after Release.
	ErrVariantReleased = fmt.Errorf("%w: no working variant is defined", ErrVariantContract)
)

var (
	// ErrUnknownElement indicates a network element id that the network does not define.
	ErrUnknownElement = errors.New("unknown network element")

	// ErrInvalidSetpoint indicates a setpoint outside what the element supports.
	ErrInvalidSetpoint = errors.New("invalid setpoint")

	// ErrInvalidNetwork indicates an inconsistent network definition.
	ErrInvalidNetwork = errors.New("invalid network")
)
