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
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianRAO/services/rao/crac"
	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
	"github.com/AleutianAI/AleutianRAO/services/rao/objective"
	"github.com/AleutianAI/AleutianRAO/services/rao/sensitivity"
)

// ErrInvalidConfig indicates an unusable optimiser configuration.
var ErrInvalidConfig = errors.New("invalid linear optimisation configuration")

// Config parameterises the iterating optimiser.
type Config struct {
	// MaxIterations bounds the LP solves per leaf.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`

	// RebuildEachIteration rebuilds the LP instead of updating it.
	RebuildEachIteration bool `yaml:"rebuild_each_iteration" json:"rebuild_each_iteration"`

	// SensitivityThreshold drops smaller sensitivities from the LP.
	SensitivityThreshold float64 `yaml:"sensitivity_threshold" json:"sensitivity_threshold"`
}

// DefaultConfig returns ten iterations with incremental updates.
func DefaultConfig() Config {
	return Config{
		MaxIterations:        10,
		SensitivityThreshold: DefaultSensitivityThreshold,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("%w: max_iterations must be at least 1", ErrInvalidConfig)
	}
	if c.SensitivityThreshold < 0 {
		return fmt.Errorf("%w: sensitivity_threshold must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Start is the operating point an optimisation begins from.
type Start struct {
	// Variant is moved to the best setpoints found.
	Variant *grid.Variant

	// Result was computed on Variant as given.
	Result *sensitivity.Result

	// Objective scores Result. Evaluated when nil.
	Objective *objective.Result

	PrePerimeter map[string]float64
	Initial      map[string]float64
}

// Outcome is the best operating point found.
type Outcome struct {
	Setpoints  Setpoints
	Result     *sensitivity.Result
	Objective  *objective.Result
	Iterations int
}

// IteratingOptimizer alternates LP solves and sensitivity computations.
//
// Description:
//
//	Each iteration solves the LP around the current linearisation point,
//	applies the rounded setpoints, recomputes flows and scores them. The
//	loop stops when setpoints no longer change, when the cost does not
//	improve, or after MaxIterations solves. The best point seen, possibly
//	the start, is kept and the variant is left at it.
//
// Thread Safety: Safe for concurrent use on distinct variants.
type IteratingOptimizer struct {
	fn           *objective.Function
	oracle       sensitivity.Oracle
	rangeActions []crac.RangeAction
	cfg          Config
	solver       Solver
	logger       *slog.Logger
}

// OptimizerOption configures an IteratingOptimizer.
type OptimizerOption func(*IteratingOptimizer)

// WithOptimizerSolver replaces the default simplex solver.
func WithOptimizerSolver(s Solver) OptimizerOption {
	return func(o *IteratingOptimizer) { o.solver = s }
}

// WithOptimizerLogger sets the logger.
func WithOptimizerLogger(logger *slog.Logger) OptimizerOption {
	return func(o *IteratingOptimizer) { o.logger = logger }
}

// NewIteratingOptimizer creates an optimiser for the given range actions.
func NewIteratingOptimizer(fn *objective.Function, oracle sensitivity.Oracle, rangeActions []crac.RangeAction, cfg Config, opts ...OptimizerOption) *IteratingOptimizer {
	o := &IteratingOptimizer{fn: fn, oracle: oracle, rangeActions: rangeActions, cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}
	if o.solver == nil {
		o.solver = NewSimplexSolver()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.cfg.MaxIterations < 1 {
		o.cfg.MaxIterations = 1
	}
	return o
}

// RangeActions returns the optimised range actions.
func (o *IteratingOptimizer) RangeActions() []crac.RangeAction { return o.rangeActions }

// Optimize runs the iterations from start.
//
// Outputs:
//
//	*Outcome - The best point found; the variant is left at its setpoints.
//	error - *OptimizationError on LP failures, the oracle or objective
//	        error otherwise.
func (o *IteratingOptimizer) Optimize(ctx context.Context, start Start) (*Outcome, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "rao.linear.optimize")
	defer span.End()

	out, err := o.optimize(ctx, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("iterations", out.Iterations))
	optimizationIterations.Observe(float64(out.Iterations))
	return out, nil
}

func (o *IteratingOptimizer) optimize(ctx context.Context, start Start) (*Outcome, error) {
	current, err := CurrentSetpoints(start.Variant, o.rangeActions)
	if err != nil {
		return nil, err
	}
	startObjective := start.Objective
	if startObjective == nil {
		if startObjective, err = o.fn.Evaluate(start.Result); err != nil {
			return nil, err
		}
	}
	best := &Outcome{Setpoints: current, Result: start.Result, Objective: startObjective}

	in := Input{Result: start.Result, Setpoints: current.Values, PrePerimeter: start.PrePerimeter, Initial: start.Initial}
	engine := NewEngine(NewFillers(o.fn, o.rangeActions, o.cfg.SensitivityThreshold),
		WithSolver(o.solver),
		WithRebuildEachIteration(o.cfg.RebuildEachIteration),
		WithLogger(o.logger))
	if err := engine.Build(in); err != nil {
		return nil, err
	}

	for best.Iterations < o.cfg.MaxIterations {
		if best.Iterations > 0 {
			if err := engine.Update(in); err != nil {
				return nil, err
			}
		}
		best.Iterations++

		sol, err := engine.Solve(ctx)
		if err != nil {
			return nil, err
		}
		next, err := ReadSetpoints(sol, o.rangeActions, in)
		if err != nil {
			return nil, err
		}
		if next.Equal(in.Setpoints) {
			break
		}
		if err := next.Apply(start.Variant, o.rangeActions); err != nil {
			return nil, err
		}
		res, err := o.oracle.Compute(ctx, start.Variant, o.fn.Request(o.rangeActions))
		if err != nil {
			return nil, err
		}
		obj, err := o.fn.Evaluate(res)
		if err != nil {
			return nil, err
		}
		o.logger.Debug("linear iteration",
			slog.String("variant", start.Variant.ID()),
			slog.Int("iteration", best.Iterations),
			slog.Float64("cost", obj.Cost()),
			slog.Float64("best_cost", best.Objective.Cost()))
		if obj.Cost() >= best.Objective.Cost() {
			break
		}
		best.Setpoints, best.Result, best.Objective = next, res, obj
		in = Input{Result: res, Setpoints: next.Values, PrePerimeter: start.PrePerimeter, Initial: start.Initial}
	}

	if err := best.Setpoints.Apply(start.Variant, o.rangeActions); err != nil {
		return nil, err
	}
	return best, nil
}
