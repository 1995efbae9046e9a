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
	"errors"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const tracerName = "rao.linear"

// Status is the outcome of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusUnbounded
	StatusError
)

// String returns the upper-case status name.
func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "OPTIMAL"
	case StatusInfeasible:
		return "INFEASIBLE"
	case StatusUnbounded:
		return "UNBOUNDED"
	default:
		return "ERROR"
	}
}

// Solution is a solver answer. Values and Objective are set only when
// Status is StatusOptimal.
type Solution struct {
	Status    Status
	Values    map[string]float64
	Objective float64

	// Cause holds the solver error behind a non-optimal status.
	Cause error
}

// Solver solves a Problem.
//
// A non-optimal outcome is reported through Solution.Status; the error is
// reserved for cancellation.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (*Solution, error)
}

// DefaultSimplexTolerance is the reduced-cost tolerance of SimplexSolver.
const DefaultSimplexTolerance = 1e-10

// SimplexSolver solves problems with gonum's dense simplex.
//
// Description:
//
//	The named problem is written in general form, min c.x subject to
//	G.x <= h and A.x = b, with finite variable bounds and inequality
//	constraints as rows of G and equality constraints (Lower == Upper) as
//	rows of A. lp.Convert splits every variable into a positive and a
//	negative part, so variables are free in the standard form.
//
//	Variables that appear in no constraint and have no finite bound are
//	solved directly: zero when they have no cost, unbounded otherwise.
//
// Thread Safety: Safe for concurrent use.
type SimplexSolver struct {
	Tolerance float64
}

// NewSimplexSolver returns a solver with the default tolerance.
func NewSimplexSolver() *SimplexSolver {
	return &SimplexSolver{Tolerance: DefaultSimplexTolerance}
}

// Solve implements Solver.
func (s *SimplexSolver) Solve(ctx context.Context, p *Problem) (*Solution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "rao.linear.solve")
	defer span.End()
	span.SetAttributes(
		attribute.Int("variables", p.NumVariables()),
		attribute.Int("constraints", p.NumConstraints()),
	)
	start := time.Now()

	sol := s.solve(p)

	solveDuration.Observe(time.Since(start).Seconds())
	solvesTotal.WithLabelValues(sol.Status.String()).Inc()
	span.SetAttributes(attribute.String("status", sol.Status.String()))
	if sol.Status != StatusOptimal {
		span.SetStatus(codes.Error, sol.Status.String())
	}
	return sol, ctx.Err()
}

func (s *SimplexSolver) solve(p *Problem) *Solution {
	tol := s.Tolerance
	if tol <= 0 {
		tol = DefaultSimplexTolerance
	}

	used := make(map[string]bool)
	for _, c := range p.cons {
		if c.Lower > c.Upper {
			return &Solution{Status: StatusInfeasible, Cause: errors.New("constraint " + c.Name + " has crossed bounds")}
		}
		for name := range c.Coefficients {
			used[name] = true
		}
	}

	values := make(map[string]float64, len(p.vars))
	var columns []*Variable
	for _, v := range p.vars {
		if v.Lower > v.Upper {
			return &Solution{Status: StatusInfeasible, Cause: errors.New("variable " + v.Name + " has crossed bounds")}
		}
		finite := !math.IsInf(v.Lower, -1) || !math.IsInf(v.Upper, 1)
		if used[v.Name] || finite {
			columns = append(columns, v)
			continue
		}
		if p.objective[v.Name] != 0 {
			return &Solution{Status: StatusUnbounded, Cause: errors.New("variable " + v.Name + " is free and unconstrained")}
		}
		values[v.Name] = 0
	}

	if len(columns) > 0 {
		x, err := s.simplex(p, columns, tol)
		if err != nil {
			return &Solution{Status: statusOf(err), Cause: err}
		}
		for i, v := range columns {
			values[v.Name] = x[i]
		}
	}
	return &Solution{Status: StatusOptimal, Values: values, Objective: p.Evaluate(values)}
}

// simplex solves the problem restricted to columns and returns their values.
func (s *SimplexSolver) simplex(p *Problem, columns []*Variable, tol float64) ([]float64, error) {
	n := len(columns)
	index := make(map[string]int, n)
	c := make([]float64, n)
	for i, v := range columns {
		index[v.Name] = i
		c[i] = p.objective[v.Name]
	}

	var gRows, aRows [][]float64
	var h, b []float64
	unit := func(i int, value float64) []float64 {
		row := make([]float64, n)
		row[i] = value
		return row
	}
	for i, v := range columns {
		switch {
		case v.Lower == v.Upper:
			aRows = append(aRows, unit(i, 1))
			b = append(b, v.Lower)
		default:
			if !math.IsInf(v.Upper, 1) {
				gRows = append(gRows, unit(i, 1))
				h = append(h, v.Upper)
			}
			if !math.IsInf(v.Lower, -1) {
				gRows = append(gRows, unit(i, -1))
				h = append(h, -v.Lower)
			}
		}
	}
	for _, con := range p.cons {
		if len(con.Coefficients) == 0 {
			if con.Lower > 0 || con.Upper < 0 {
				return nil, lp.ErrInfeasible
			}
			continue
		}
		row := make([]float64, n)
		// Iterate variables in insertion order so rows are reproducible.
		for _, v := range columns {
			if a, ok := con.Coefficients[v.Name]; ok {
				row[index[v.Name]] = a
			}
		}
		switch {
		case con.Lower == con.Upper:
			aRows = append(aRows, row)
			b = append(b, con.Lower)
		default:
			if !math.IsInf(con.Upper, 1) {
				gRows = append(gRows, row)
				h = append(h, con.Upper)
			}
			if !math.IsInf(con.Lower, -1) {
				neg := make([]float64, n)
				for j, a := range row {
					neg[j] = -a
				}
				gRows = append(gRows, neg)
				h = append(h, -con.Lower)
			}
		}
	}

	cNew, aNew, bNew := lp.Convert(c, dense(gRows, n), h, dense(aRows, n), b)
	if len(bNew) == 0 {
		return nil, errors.New("no rows in standard form")
	}
	_, optX, err := lp.Simplex(cNew, aNew, bNew, tol, nil)
	if err != nil {
		return nil, err
	}
	x := make([]float64, n)
	for i := range x {
		x[i] = optX[i] - optX[n+i]
	}
	return x, nil
}

// dense returns nil for an empty row set, as lp.Convert expects.
func dense(rows [][]float64, n int) mat.Matrix {
	if len(rows) == 0 {
		return nil
	}
	data := make([]float64, 0, len(rows)*n)
	for _, r := range rows {
		data = append(data, r...)
	}
	return mat.NewDense(len(rows), n, data)
}

func statusOf(err error) Status {
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return StatusInfeasible
	case errors.Is(err, lp.ErrUnbounded):
		return StatusUnbounded
	default:
		return StatusError
	}
}
