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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateName indicates a variable or constraint name already in use.
	ErrDuplicateName = errors.New("duplicate lp name")

	// ErrUnknownName indicates a reference to a missing variable or constraint.
	ErrUnknownName = errors.New("unknown lp name")

	// ErrNotBuilt indicates an update or solve before the problem was built.
	ErrNotBuilt = errors.New("linear problem not built")

	// ErrFillerFailed indicates a filler could not fill or update the problem.
	ErrFillerFailed = errors.New("lp filler failed")

	// ErrInfeasible indicates the solver proved the problem infeasible.
	ErrInfeasible = errors.New("linear problem infeasible")

	// ErrUnbounded indicates the solver proved the problem unbounded.
	ErrUnbounded = errors.New("linear problem unbounded")

	// ErrSolver indicates any other solver failure.
	ErrSolver = errors.New("linear solver failure")
)

// OptimizationError reports a failed build, update or solve.
//
// It matches ErrFillerFailed for filler errors and ErrInfeasible,
// ErrUnbounded or ErrSolver for non-optimal solves, and also unwraps to the
// underlying cause.
type OptimizationError struct {
	Stage  string
	Filler string
	Status Status
	Err    error
}

// Error implements error.
func (e *OptimizationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "linear optimisation %s failed", e.Stage)
	if e.Filler != "" {
		fmt.Fprintf(&b, " in filler %s", e.Filler)
	}
	if e.Stage == stageSolve {
		fmt.Fprintf(&b, " with status %s", e.Status)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the matching sentinel and the cause.
func (e *OptimizationError) Unwrap() []error {
	var sentinel error
	switch {
	case e.Filler != "":
		sentinel = ErrFillerFailed
	case e.Status == StatusInfeasible:
		sentinel = ErrInfeasible
	case e.Status == StatusUnbounded:
		sentinel = ErrUnbounded
	case e.Stage == stageSolve:
		sentinel = ErrSolver
	}
	errs := make([]error, 0, 2)
	if sentinel != nil {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

const (
	stageBuild  = "build"
	stageUpdate = "update"
	stageSolve  = "solve"
)
