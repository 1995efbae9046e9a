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

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianRAO/services/rao/crac"
	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
	"github.com/AleutianAI/AleutianRAO/services/rao/linear"
	"github.com/AleutianAI/AleutianRAO/services/rao/objective"
	"github.com/AleutianAI/AleutianRAO/services/rao/sensitivity"
)

// TerminationReason says why a search stopped.
type TerminationReason string

const (
	TerminationNoImprovement TerminationReason = "no-improvement"
	TerminationMaxDepth      TerminationReason = "max-depth"
	TerminationMaxOperators  TerminationReason = "max-operators"
	TerminationNoCandidates  TerminationReason = "no-candidates"
	TerminationBudget        TerminationReason = "budget-exhausted"
	TerminationSecure        TerminationReason = "secure"
	TerminationCancelled     TerminationReason = "cancelled"
)

// Driver runs the search: evaluate the root, then repeatedly bloom the
// incumbent, evaluate the children and keep the best improving one.
//
// Description:
//
//	Children of one depth are evaluated in parallel, at most
//	LeavesInParallel at a time. Once an evaluation has started it runs to
//	completion even if the budget runs out or ctx is cancelled; no new
//	evaluation starts after that. Variants of children that are not
//	selected are released as soon as the selection is made. The root and
//	the chain of selected leaves keep their variants until Release.
//
// Thread Safety: Run must not be called concurrently on one Driver.
type Driver struct {
	cfg          Config
	catalog      *crac.Crac
	variants     *grid.VariantManager
	oracle       sensitivity.Oracle
	combinations []*crac.Combination
	reference    string
	solver       linear.Solver
	logger       *slog.Logger
	tracer       *Tracer

	mu       sync.Mutex
	retained []*Leaf
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// WithSolver replaces the LP solver used at every leaf.
func WithSolver(s linear.Solver) Option {
	return func(d *Driver) { d.solver = s }
}

// WithReferenceVariant sets the variant the root is cloned from.
// Defaults to grid.InitialVariantID.
func WithReferenceVariant(id string) Option {
	return func(d *Driver) { d.reference = id }
}

// WithTracer replaces the tracer built from the observability config.
func WithTracer(t *Tracer) Option {
	return func(d *Driver) { d.tracer = t }
}

// NewDriver creates a driver.
//
// Inputs:
//   - c: Catalog of CNECs and remedial actions.
//   - variants: Arena holding the reference variant.
//   - oracle: Sensitivity oracle shared by every leaf.
//   - cfg: Search configuration.
//   - opts: Functional options.
//
// Outputs:
//   - *Driver: Ready to Run.
//   - error: ErrInvalidConfig, or a predefined combination naming an unknown action.
func NewDriver(c *crac.Crac, variants *grid.VariantManager, oracle sensitivity.Oracle, cfg Config, opts ...Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Driver{
		cfg:       cfg,
		catalog:   c,
		variants:  variants,
		oracle:    oracle,
		reference: grid.InitialVariantID,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.tracer == nil {
		d.tracer = NewTracer(d.logger, cfg.Observability)
	}

	combinations, err := resolveCombinations(c, cfg.Search.PredefinedCombinations)
	if err != nil {
		return nil, err
	}
	d.combinations = combinations
	return d, nil
}

// resolveCombinations appends the configured combinations to the catalog's.
func resolveCombinations(c *crac.Crac, predefined [][]string) ([]*crac.Combination, error) {
	out := c.AvailableCombinations()
	seen := make(map[string]struct{}, len(out))
	for _, comb := range out {
		seen[comb.Key()] = struct{}{}
	}
	for _, ids := range predefined {
		actions := make([]*crac.NetworkAction, 0, len(ids))
		for _, id := range ids {
			na, ok := c.NetworkAction(id)
			if !ok {
				return nil, fmt.Errorf("%w: predefined combination references unknown network action %q", ErrInvalidConfig, id)
			}
			actions = append(actions, na)
		}
		comb := crac.NewCombination(actions...)
		if _, dup := seen[comb.Key()]; dup {
			continue
		}
		seen[comb.Key()] = struct{}{}
		out = append(out, comb)
	}
	return out, nil
}

// Combinations returns the candidate combinations.
func (d *Driver) Combinations() []*crac.Combination {
	return append([]*crac.Combination(nil), d.combinations...)
}

// Run searches for the best combination.
//
// Outputs:
//   - *Report: The incumbent's results; the root's when nothing improved.
//   - error: ErrRootEvaluation when the reference state cannot be
//     evaluated, or a variant contract violation. Leaf failures are not
//     errors; they appear in the report.
func (d *Driver) Run(ctx context.Context) (report *Report, err error) {
	if err := d.Release(); err != nil {
		return nil, err
	}
	ctx, span := d.tracer.StartSearch(ctx, d.cfg, len(d.combinations))
	defer func() { d.tracer.EndSearch(span, report, err) }()

	start := time.Now()
	budget := NewBudget(d.cfg.Budget)
	seq := &sequence{}

	ev, err := d.prepare(ctx)
	if err != nil {
		return nil, err
	}

	root := NewRoot(seq.next())
	leaves := []*Leaf{root}
	if err := d.evaluateLeaf(ctx, ev, root, d.reference); err != nil {
		d.releaseLeaves(leaves)
		if IsFatal(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrRootEvaluation, err)
	}

	bloomer := newBloomer(d.catalog, d.variants.Network(), d.combinations, d.cfg.Filters, seq, d.logger)
	incumbent := root
	history := []float64{root.Cost()}
	var reason TerminationReason

	for reason == "" {
		if reason = d.stopReason(ctx, incumbent, budget); reason != "" {
			break
		}

		dctx, dspan := d.tracer.StartDepth(ctx, incumbent.Depth()+1, incumbent)
		children, stats := bloomer.Bloom(incumbent)
		if len(children) == 0 {
			d.tracer.EndDepth(dspan, 0, nil)
			reason = TerminationNoCandidates
			if stats.Operator > 0 {
				reason = TerminationMaxOperators
			}
			break
		}
		leaves = append(leaves, children...)

		if err := d.evaluateChildren(dctx, ev, children, budget); err != nil {
			d.tracer.EndDepth(dspan, len(children), nil)
			d.releaseLeaves(leaves)
			return nil, err
		}

		best := bestOf(children)
		if best == nil || !d.improves(best, incumbent) {
			d.tracer.EndDepth(dspan, len(children), nil)
			d.releaseLeaves(children)
			reason = TerminationNoImprovement
			if notStarted(children) {
				if r := d.interruption(ctx, budget); r != "" {
					reason = r
				}
			}
			break
		}
		d.tracer.EndDepth(dspan, len(children), best)
		d.releaseLeaves(without(children, best))
		incumbent = best
		history = append(history, best.Cost())
		d.logger.Info("incumbent improved",
			slog.String("leaf", best.ID()),
			slog.String("combination", best.CombinationKey()),
			slog.Int("depth", best.Depth()),
			slog.Float64("cost", best.Cost()))
	}

	d.mu.Lock()
	for l := incumbent; l != nil; l = l.Parent() {
		d.retained = append(d.retained, l)
	}
	d.mu.Unlock()

	searchesTotal.WithLabelValues(string(reason)).Inc()
	searchDepth.Observe(float64(incumbent.Depth()))
	report = buildReport(reportInput{
		catalog:   d.catalog,
		root:      root,
		incumbent: incumbent,
		leaves:    leaves,
		history:   history,
		reason:    reason,
		budget:    budget,
		epsilon:   d.cfg.Filters.RangeActionEpsilon,
		duration:  time.Since(start),
	})
	return report, nil
}

// prepare computes the pre-perimeter state and builds the collaborators
// every leaf shares.
func (d *Driver) prepare(ctx context.Context) (*Evaluator, error) {
	v, err := d.variants.Acquire(d.reference)
	if err != nil {
		return nil, fmt.Errorf("acquire reference variant: %w", err)
	}
	defer v.Release()

	rangeActions := d.catalog.RangeActions()
	pre, err := linear.CurrentSetpoints(v, rangeActions)
	if err != nil {
		return nil, fmt.Errorf("read pre-perimeter setpoints: %w", err)
	}
	req := objective.NewFunction(d.cfg.Objective, d.catalog, nil).Request(rangeActions)
	initial, err := d.oracle.Compute(ctx, v, req)
	if err != nil {
		if IsFatal(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: initial sensitivity computation: %w", ErrRootEvaluation, err)
	}

	fn := objective.NewFunction(d.cfg.Objective, d.catalog, initial)
	optOpts := []linear.OptimizerOption{linear.WithOptimizerLogger(d.logger)}
	if d.solver != nil {
		optOpts = append(optOpts, linear.WithOptimizerSolver(d.solver))
	}
	return &Evaluator{
		Variants:     d.variants,
		Oracle:       d.oracle,
		Objective:    fn,
		Optimizer:    linear.NewIteratingOptimizer(fn, d.oracle, rangeActions, d.cfg.Linear, optOpts...),
		PrePerimeter: pre.Values,
		Initial:      pre.Values,
	}, nil
}

// stopReason checks the conditions that end the search before an expansion.
func (d *Driver) stopReason(ctx context.Context, incumbent *Leaf, budget *Budget) TerminationReason {
	switch {
	case incumbent.Depth() >= d.cfg.Search.MaxDepth:
		return TerminationMaxDepth
	case d.cfg.Search.StopCriterion == StopSecure && incumbent.Cost() <= 0:
		return TerminationSecure
	}
	return d.interruption(ctx, budget)
}

// interruption returns the budget or cancellation reason, if any.
func (d *Driver) interruption(ctx context.Context, budget *Budget) TerminationReason {
	if ctx.Err() != nil {
		return TerminationCancelled
	}
	if budget.Exhausted() {
		d.tracer.TraceBudgetExhaustion(ctx, budget)
		return TerminationBudget
	}
	return ""
}

// evaluateChildren evaluates children in parallel.
//
// Outputs:
//   - error: Only fatal errors; leaf failures stay on the leaves.
func (d *Driver) evaluateChildren(ctx context.Context, ev *Evaluator, children []*Leaf, budget *Budget) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Search.LeavesInParallel)
	for _, child := range children {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil || !budget.TryStartLeaf() {
				return nil
			}
			defer budget.RecordLeafEvaluated()
			err := d.evaluateLeaf(context.WithoutCancel(gctx), ev, child, "")
			if err != nil && IsFatal(err) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Driver) evaluateLeaf(ctx context.Context, ev *Evaluator, leaf *Leaf, reference string) error {
	ctx, span := d.tracer.StartLeaf(ctx, leaf)
	err := leaf.Evaluate(ctx, ev, reference)
	leavesEvaluated.WithLabelValues(leaf.Status().String()).Inc()
	leafDuration.Observe(leaf.Duration().Seconds())
	d.tracer.EndLeaf(ctx, span, leaf)
	return err
}

// improves reports whether candidate beats incumbent by more than both
// the absolute and the relative minimum improvement.
func (d *Driver) improves(candidate, incumbent *Leaf) bool {
	if candidate.Status() != StatusEvaluated {
		return false
	}
	gain := incumbent.Cost() - candidate.Cost()
	if gain <= d.cfg.Search.MinImprovement {
		return false
	}
	return gain > d.cfg.Search.RelativeMinImprovement*math.Abs(incumbent.Cost())
}

// bestOf returns the best evaluated leaf, nil if none evaluated.
func bestOf(leaves []*Leaf) *Leaf {
	var best *Leaf
	for _, l := range leaves {
		if l.Status() != StatusEvaluated {
			continue
		}
		if best == nil || better(l, best) {
			best = l
		}
	}
	return best
}

func notStarted(leaves []*Leaf) bool {
	for _, l := range leaves {
		if l.Status() == StatusCreated {
			return true
		}
	}
	return false
}

func without(leaves []*Leaf, keep *Leaf) []*Leaf {
	out := make([]*Leaf, 0, len(leaves))
	for _, l := range leaves {
		if l != keep {
			out = append(out, l)
		}
	}
	return out
}

func (d *Driver) releaseLeaves(leaves []*Leaf) {
	for _, l := range leaves {
		if err := l.Release(d.variants); err != nil {
			d.logger.Warn("failed to release leaf variant",
				slog.String("leaf", l.ID()),
				slog.String("error", err.Error()))
		}
	}
}

// Release frees the variants of the leaves retained by the last Run.
func (d *Driver) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range d.retained {
		if err := l.Release(d.variants); err != nil {
			return err
		}
	}
	d.retained = nil
	return nil
}

// Incumbent returns the selected leaf of the last Run, nil before Run.
func (d *Driver) Incumbent() *Leaf {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.retained) == 0 {
		return nil
	}
	return d.retained[0]
}
