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
	"context"
	"log/slog"
)

// EngineState is the lifecycle state of an Engine.
type EngineState int

const (
	EngineUninitialized EngineState = iota
	EngineReady
)

// String returns the state name.
func (s EngineState) String() string {
	if s == EngineReady {
		return "READY"
	}
	return "UNINITIALIZED"
}

// Engine builds, updates and solves one LP.
//
// Description:
//
//	Build runs every filler's Fill in order on a fresh problem and moves the
//	engine to READY. Update runs every filler's Update on the existing
//	problem, or rebuilds from scratch when RebuildEachIteration is set.
//	Solve reports any non-optimal status as an *OptimizationError.
//
// Thread Safety: Not safe for concurrent use. Each leaf owns its engine.
type Engine struct {
	fillers []Filler
	solver  Solver
	rebuild bool
	logger  *slog.Logger
	state   EngineState
	problem *Problem
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSolver replaces the default simplex solver.
func WithSolver(s Solver) EngineOption {
	return func(e *Engine) { e.solver = s }
}

// WithRebuildEachIteration makes Update rebuild the problem from scratch.
func WithRebuildEachIteration(enabled bool) EngineOption {
	return func(e *Engine) { e.rebuild = enabled }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an engine running fillers in the given order.
func NewEngine(fillers []Filler, opts ...EngineOption) *Engine {
	e := &Engine{fillers: fillers}
	for _, opt := range opts {
		opt(e)
	}
	if e.solver == nil {
		e.solver = NewSimplexSolver()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// State returns the lifecycle state.
func (e *Engine) State() EngineState { return e.state }

// Problem returns the current problem, nil before Build.
func (e *Engine) Problem() *Problem { return e.problem }

// Build fills a new problem.
func (e *Engine) Build(in Input) error {
	p := NewProblem()
	for _, f := range e.fillers {
		if err := f.Fill(p, in); err != nil {
			return &OptimizationError{Stage: stageBuild, Filler: f.Name(), Err: err}
		}
	}
	e.problem = p
	e.state = EngineReady
	e.logger.Debug("linear problem built",
		slog.Int("variables", p.NumVariables()),
		slog.Int("constraints", p.NumConstraints()))
	return nil
}

// Update moves the problem to a new linearisation point.
func (e *Engine) Update(in Input) error {
	if e.state != EngineReady {
		return &OptimizationError{Stage: stageUpdate, Err: ErrNotBuilt}
	}
	if e.rebuild {
		return e.Build(in)
	}
	for _, f := range e.fillers {
		if err := f.Update(e.problem, in); err != nil {
			return &OptimizationError{Stage: stageUpdate, Filler: f.Name(), Err: err}
		}
	}
	return nil
}

// Solve solves the current problem.
//
// Outputs:
//
//	*Solution - The optimal solution.
//	error - *OptimizationError matching ErrInfeasible, ErrUnbounded or
//	        ErrSolver for non-optimal outcomes, ErrNotBuilt before Build,
//	        or the context error.
func (e *Engine) Solve(ctx context.Context) (*Solution, error) {
	if e.state != EngineReady {
		return nil, &OptimizationError{Stage: stageSolve, Status: StatusError, Err: ErrNotBuilt}
	}
	sol, err := e.solver.Solve(ctx, e.problem)
	if err != nil {
		return nil, err
	}
	if sol.Status != StatusOptimal {
		return nil, &OptimizationError{Stage: stageSolve, Status: sol.Status, Err: sol.Cause}
	}
	return sol, nil
}
