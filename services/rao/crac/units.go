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

import (
	"fmt"
	"math"
	"strings"
)

// Unit is a physical unit used by thresholds, ranges and objectives.
type Unit int

const (
	// UnitMegawatt is active power in MW.
	UnitMegawatt Unit = iota
	// UnitAmpere is current in A.
	UnitAmpere
	// UnitDegree is a phase-shift angle.
	UnitDegree
	// UnitPercentImax is current as a percentage of the branch Imax.
	UnitPercentImax
	// UnitTap is a discrete PST position.
	UnitTap
)

var unitNames = [...]string{"MEGAWATT", "AMPERE", "DEGREE", "PERCENT_IMAX", "TAP"}

// String returns the canonical upper-case name.
func (u Unit) String() string {
	if u < 0 || int(u) >= len(unitNames) {
		return fmt.Sprintf("Unit(%d)", int(u))
	}
	return unitNames[u]
}

// ParseUnit accepts canonical names and the usual short forms (MW, A, %).
func ParseUnit(s string) (Unit, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MEGAWATT", "MW":
		return UnitMegawatt, nil
	case "AMPERE", "A":
		return UnitAmpere, nil
	case "DEGREE", "DEG":
		return UnitDegree, nil
	case "PERCENT_IMAX", "%", "PERCENT":
		return UnitPercentImax, nil
	case "TAP":
		return UnitTap, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, s)
}

// MarshalText implements encoding.TextMarshaler.
func (u Unit) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *Unit) UnmarshalText(text []byte) error {
	parsed, err := ParseUnit(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// MegawattToAmpere converts three-phase active power to line current.
func MegawattToAmpere(mw, nominalKV float64) float64 {
	return mw * 1000 / (math.Sqrt(3) * nominalKV)
}

// AmpereToMegawatt converts line current to three-phase active power.
func AmpereToMegawatt(a, nominalKV float64) float64 {
	return a * math.Sqrt(3) * nominalKV / 1000
}
