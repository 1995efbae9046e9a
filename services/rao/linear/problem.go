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
	"fmt"
	"math"
)

// Variable is a continuous LP variable. Infinite bounds are allowed.
type Variable struct {
	Name  string
	Lower float64
	Upper float64
}

// Constraint bounds a linear combination of variables: Lower <= a.x <= Upper.
type Constraint struct {
	Name         string
	Lower        float64
	Upper        float64
	Coefficients map[string]float64
}

// Problem is a minimisation LP with named variables and constraints.
//
// Description:
//
//	Variables and constraints keep their insertion order, so converting the
//	same problem twice yields the same matrices. Names are unique; fillers
//	use them to find and update what they created.
//
// Thread Safety: Not safe for concurrent use.
type Problem struct {
	vars      []*Variable
	varIndex  map[string]int
	cons      []*Constraint
	conIndex  map[string]int
	objective map[string]float64
}

// NewProblem returns an empty problem.
func NewProblem() *Problem {
	return &Problem{
		varIndex:  make(map[string]int),
		conIndex:  make(map[string]int),
		objective: make(map[string]float64),
	}
}

// AddVariable creates a variable.
func (p *Problem) AddVariable(name string, lower, upper float64) (*Variable, error) {
	if _, ok := p.varIndex[name]; ok {
		return nil, fmt.Errorf("%w: variable %s", ErrDuplicateName, name)
	}
	v := &Variable{Name: name, Lower: lower, Upper: upper}
	p.varIndex[name] = len(p.vars)
	p.vars = append(p.vars, v)
	return v, nil
}

// AddConstraint creates a constraint without coefficients.
func (p *Problem) AddConstraint(name string, lower, upper float64) (*Constraint, error) {
	if _, ok := p.conIndex[name]; ok {
		return nil, fmt.Errorf("%w: constraint %s", ErrDuplicateName, name)
	}
	c := &Constraint{Name: name, Lower: lower, Upper: upper, Coefficients: make(map[string]float64)}
	p.conIndex[name] = len(p.cons)
	p.cons = append(p.cons, c)
	return c, nil
}

// Variable returns a variable by name.
func (p *Problem) Variable(name string) (*Variable, bool) {
	i, ok := p.varIndex[name]
	if !ok {
		return nil, false
	}
	return p.vars[i], true
}

// Constraint returns a constraint by name.
func (p *Problem) Constraint(name string) (*Constraint, bool) {
	i, ok := p.conIndex[name]
	if !ok {
		return nil, false
	}
	return p.cons[i], true
}

// SetCoefficient sets the coefficient of a variable in a constraint.
// A zero coefficient removes the variable from the constraint.
func (p *Problem) SetCoefficient(constraint, variable string, value float64) error {
	c, ok := p.Constraint(constraint)
	if !ok {
		return fmt.Errorf("%w: constraint %s", ErrUnknownName, constraint)
	}
	if _, ok := p.varIndex[variable]; !ok {
		return fmt.Errorf("%w: variable %s", ErrUnknownName, variable)
	}
	if value == 0 {
		delete(c.Coefficients, variable)
		return nil
	}
	c.Coefficients[variable] = value
	return nil
}

// SetObjectiveCoefficient sets the cost of a variable.
func (p *Problem) SetObjectiveCoefficient(variable string, value float64) error {
	if _, ok := p.varIndex[variable]; !ok {
		return fmt.Errorf("%w: variable %s", ErrUnknownName, variable)
	}
	if value == 0 {
		delete(p.objective, variable)
		return nil
	}
	p.objective[variable] = value
	return nil
}

// ObjectiveCoefficient returns the cost of a variable.
func (p *Problem) ObjectiveCoefficient(variable string) float64 { return p.objective[variable] }

// NumVariables returns the number of variables.
func (p *Problem) NumVariables() int { return len(p.vars) }

// NumConstraints returns the number of constraints.
func (p *Problem) NumConstraints() int { return len(p.cons) }

// Variables returns copies of the variables in insertion order.
func (p *Problem) Variables() []Variable {
	out := make([]Variable, len(p.vars))
	for i, v := range p.vars {
		out[i] = *v
	}
	return out
}

// Constraints returns deep copies of the constraints in insertion order.
func (p *Problem) Constraints() []Constraint {
	out := make([]Constraint, len(p.cons))
	for i, c := range p.cons {
		coefs := make(map[string]float64, len(c.Coefficients))
		for k, v := range c.Coefficients {
			coefs[k] = v
		}
		out[i] = Constraint{Name: c.Name, Lower: c.Lower, Upper: c.Upper, Coefficients: coefs}
	}
	return out
}

// Evaluate returns the objective value of an assignment.
func (p *Problem) Evaluate(values map[string]float64) float64 {
	var f float64
	for _, v := range p.vars {
		f += p.objective[v.Name] * values[v.Name]
	}
	return f
}

// Feasible reports whether an assignment satisfies every bound and
// constraint within tol.
func (p *Problem) Feasible(values map[string]float64, tol float64) bool {
	for _, v := range p.vars {
		x := values[v.Name]
		if x < v.Lower-tol || x > v.Upper+tol {
			return false
		}
	}
	for _, c := range p.cons {
		var ax float64
		for name, a := range c.Coefficients {
			ax += a * values[name]
		}
		if ax < c.Lower-tol || ax > c.Upper+tol || math.IsNaN(ax) {
			return false
		}
	}
	return true
}
