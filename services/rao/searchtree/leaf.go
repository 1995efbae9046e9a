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
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianRAO/services/rao/crac"
	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
	"github.com/AleutianAI/AleutianRAO/services/rao/linear"
	"github.com/AleutianAI/AleutianRAO/services/rao/objective"
	"github.com/AleutianAI/AleutianRAO/services/rao/sensitivity"
)

// Status is the evaluation state of a leaf.
type Status int

const (
	// StatusCreated is a leaf that has not been evaluated yet.
	StatusCreated Status = iota

	// StatusEvaluationRunning is a leaf being evaluated.
	StatusEvaluationRunning

	// StatusEvaluated is a leaf with a usable result.
	StatusEvaluated

	// StatusEvaluationError is a leaf whose evaluation failed.
	StatusEvaluationError
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusEvaluationRunning:
		return "EVALUATION_RUNNING"
	case StatusEvaluated:
		return "EVALUATED"
	case StatusEvaluationError:
		return "EVALUATION_ERROR"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the names produced by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	for _, st := range []Status{StatusCreated, StatusEvaluationRunning, StatusEvaluated, StatusEvaluationError} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown leaf status %q", text)
}

// IsFatal reports whether a leaf evaluation error is a variant contract
// violation that must abort the search.
func IsFatal(err error) bool {
	return errors.Is(err, grid.ErrVariantContract) || errors.Is(err, ErrLeafAlreadyEvaluated)
}

// Evaluator holds the collaborators shared by every leaf evaluation of a search.
type Evaluator struct {
	Variants  *grid.VariantManager
	Oracle    sensitivity.Oracle
	Objective *objective.Function
	Optimizer *linear.IteratingOptimizer

	// PrePerimeter holds the range action values of the reference variant.
	PrePerimeter map[string]float64

	// Initial holds the range action values of the initial network.
	Initial map[string]float64
}

// sequence hands out leaf creation numbers.
type sequence struct {
	n atomic.Uint64
}

func (s *sequence) next() uint64 { return s.n.Add(1) - 1 }

// Leaf is one node of the search tree: the root state plus the network
// action combinations of its path.
//
// Description:
//
//	A leaf is created with its path from the root precomputed and is
//	evaluated at most once. Evaluation clones the parent's variant (or the
//	reference variant for the root) into a variant owned by the leaf,
//	applies every combination of the path in root-to-leaf order, computes
//	sensitivities, optimises range actions and scores the result.
//
// Thread Safety: Getters are safe for concurrent use. Evaluate must be
// called by a single goroutine.
type Leaf struct {
	seq         uint64
	parent      *Leaf
	combination *crac.Combination
	path        []*crac.Combination
	pathKeys    map[string]struct{}

	mu           sync.RWMutex
	status       Status
	variantID    string
	result       *sensitivity.Result
	objective    *objective.Result
	setpoints    linear.Setpoints
	prePerimeter map[string]float64
	rangeActions []crac.RangeAction
	sensitivity  sensitivity.Status
	iterations   int
	err          error
	duration     time.Duration
}

// NewRoot creates a root leaf with no network action.
func NewRoot(seq uint64) *Leaf {
	return &Leaf{seq: seq, pathKeys: map[string]struct{}{}}
}

func newChild(parent *Leaf, comb *crac.Combination, seq uint64) *Leaf {
	path := make([]*crac.Combination, 0, len(parent.path)+1)
	path = append(path, parent.path...)
	path = append(path, comb)
	keys := make(map[string]struct{}, len(path))
	for _, c := range path {
		keys[c.Key()] = struct{}{}
	}
	return &Leaf{
		seq:         seq,
		parent:      parent,
		combination: comb,
		path:        path,
		pathKeys:    keys,
	}
}

// ID returns a stable identifier derived from the creation sequence.
func (l *Leaf) ID() string { return fmt.Sprintf("leaf-%d", l.seq) }

// Seq returns the creation sequence number.
func (l *Leaf) Seq() uint64 { return l.seq }

// Parent returns the parent leaf, nil for the root.
func (l *Leaf) Parent() *Leaf { return l.parent }

// IsRoot reports whether the leaf has no parent.
func (l *Leaf) IsRoot() bool { return l.parent == nil }

// Depth returns the number of combinations on the path.
func (l *Leaf) Depth() int { return len(l.path) }

// Combination returns the combination added by this leaf, nil for the root.
func (l *Leaf) Combination() *crac.Combination { return l.combination }

// CombinationKey returns the key of Combination, "" for the root.
func (l *Leaf) CombinationKey() string {
	if l.combination == nil {
		return ""
	}
	return l.combination.Key()
}

// Path returns the combinations from the root to this leaf.
func (l *Leaf) Path() []*crac.Combination {
	return append([]*crac.Combination(nil), l.path...)
}

// OnPath reports whether a combination with this key is on the path.
func (l *Leaf) OnPath(key string) bool {
	_, ok := l.pathKeys[key]
	return ok
}

// NetworkActions returns the activated network actions in application order.
func (l *Leaf) NetworkActions() []*crac.NetworkAction {
	var out []*crac.NetworkAction
	for _, c := range l.path {
		out = append(out, c.Actions()...)
	}
	return out
}

// NetworkActionIDs returns the sorted ids of the activated network actions.
func (l *Leaf) NetworkActionIDs() []string {
	var ids []string
	for _, na := range l.NetworkActions() {
		ids = append(ids, na.ID)
	}
	sort.Strings(ids)
	return ids
}

// HasNetworkAction reports whether the action is activated on the path.
func (l *Leaf) HasNetworkAction(id string) bool {
	for _, c := range l.path {
		if c.Contains(id) {
			return true
		}
	}
	return false
}

func (l *Leaf) numNetworkActions() int {
	n := 0
	for _, c := range l.path {
		n += c.Len()
	}
	return n
}

// Status returns the evaluation status.
func (l *Leaf) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Err returns the evaluation error, if any.
func (l *Leaf) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// VariantID returns the owned variant, "" before evaluation or after Release.
func (l *Leaf) VariantID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.variantID
}

// Duration returns how long the evaluation took.
func (l *Leaf) Duration() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.duration
}

// Iterations returns the number of LP solves of the evaluation.
func (l *Leaf) Iterations() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.iterations
}

// Objective returns the scored result, nil unless evaluated.
func (l *Leaf) Objective() *objective.Result {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.objective
}

// Result returns the sensitivity result at the optimised setpoints.
func (l *Leaf) Result() *sensitivity.Result {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.result
}

// SensitivityStatus returns StatusFallback if any computation of the
// evaluation was degraded.
func (l *Leaf) SensitivityStatus() sensitivity.Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sensitivity
}

// Cost returns the overall cost, +Inf unless evaluated.
func (l *Leaf) Cost() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.status != StatusEvaluated {
		return math.Inf(1)
	}
	return l.objective.Cost()
}

// FunctionalCost returns the functional cost, +Inf unless evaluated.
func (l *Leaf) FunctionalCost() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.status != StatusEvaluated {
		return math.Inf(1)
	}
	return l.objective.FunctionalCost()
}

// VirtualCost returns the named virtual cost, 0 unless evaluated.
func (l *Leaf) VirtualCost(name string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.status != StatusEvaluated {
		return 0
	}
	return l.objective.VirtualCostByName(name)
}

// Flow returns the flow of a CNEC in MW.
func (l *Leaf) Flow(cnecID string) (float64, bool) {
	obj := l.Objective()
	if obj == nil {
		return 0, false
	}
	return obj.Flow(cnecID)
}

// Margin returns the margin of a CNEC in the objective unit.
func (l *Leaf) Margin(cnecID string) (float64, bool) {
	obj := l.Objective()
	if obj == nil {
		return 0, false
	}
	return obj.Margin(cnecID)
}

// Setpoint returns the optimised value of a range action, falling back to
// its pre-perimeter value.
func (l *Leaf) Setpoint(rangeActionID string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if v, ok := l.setpoints.Values[rangeActionID]; ok {
		return v
	}
	return l.prePerimeter[rangeActionID]
}

func (l *Leaf) prePerimeterValue(rangeActionID string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.prePerimeter[rangeActionID]
}

// Tap returns the optimised tap of a PST range action.
func (l *Leaf) Tap(rangeActionID string) (int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tap, ok := l.setpoints.Taps[rangeActionID]
	return tap, ok
}

// ActivatedRangeActions returns the sorted ids of range actions moved by
// more than epsilon from their pre-perimeter value.
func (l *Leaf) ActivatedRangeActions(epsilon float64) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.status != StatusEvaluated {
		return nil
	}
	return l.setpoints.Moved(l.prePerimeter, epsilon)
}

// ActivatedOperators returns the sorted operators with an activated network
// action, or a range action moved by more than epsilon.
func (l *Leaf) ActivatedOperators(epsilon float64) []string {
	seen := make(map[string]struct{})
	for _, na := range l.NetworkActions() {
		seen[na.Operator] = struct{}{}
	}
	moved := l.ActivatedRangeActions(epsilon)
	l.mu.RLock()
	for _, ra := range l.rangeActions {
		for _, id := range moved {
			if ra.ID() == id {
				seen[ra.Operator()] = struct{}{}
			}
		}
	}
	l.mu.RUnlock()
	out := make([]string, 0, len(seen))
	for op := range seen {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// evaluation is what a successful or failed evaluation produced.
type evaluation struct {
	variantID   string
	result      *sensitivity.Result
	objective   *objective.Result
	setpoints   linear.Setpoints
	sensitivity sensitivity.Status
	iterations  int
}

// Evaluate computes the leaf's result.
//
// Description:
//
//	The variant is cloned from referenceVariantID when given, else from
//	the parent's variant. Failures leave the leaf in StatusEvaluationError
//	with the error kept; use IsFatal to tell contract violations apart.
//
// Inputs:
//   - ctx: Context for the oracle and the solver.
//   - ev: Shared collaborators.
//   - referenceVariantID: Variant to clone; required for the root.
//
// Outputs:
//   - error: ErrLeafAlreadyEvaluated on a second call (status unchanged),
//     otherwise the evaluation failure.
func (l *Leaf) Evaluate(ctx context.Context, ev *Evaluator, referenceVariantID string) error {
	l.mu.Lock()
	if l.status != StatusCreated {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrLeafAlreadyEvaluated, l.ID())
	}
	l.status = StatusEvaluationRunning
	l.prePerimeter = ev.PrePerimeter
	l.rangeActions = ev.Optimizer.RangeActions()
	l.mu.Unlock()

	start := time.Now()
	out, err := l.evaluate(ctx, ev, referenceVariantID)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.duration = time.Since(start)
	l.variantID = out.variantID
	if err != nil {
		l.status = StatusEvaluationError
		l.err = err
		return err
	}
	l.result = out.result
	l.objective = out.objective
	l.setpoints = out.setpoints
	l.sensitivity = out.sensitivity
	l.iterations = out.iterations
	l.status = StatusEvaluated
	return nil
}

func (l *Leaf) evaluate(ctx context.Context, ev *Evaluator, referenceVariantID string) (evaluation, error) {
	var out evaluation
	source := referenceVariantID
	if source == "" {
		if l.parent == nil {
			return out, ErrMissingReferenceVariant
		}
		if source = l.parent.VariantID(); source == "" {
			return out, fmt.Errorf("%w: parent %s has no variant", grid.ErrUnknownVariant, l.parent.ID())
		}
	}

	id, err := ev.Variants.Clone(source)
	if err != nil {
		return out, fmt.Errorf("clone variant: %w", err)
	}
	out.variantID = id

	v, err := ev.Variants.Acquire(id)
	if err != nil {
		return out, fmt.Errorf("acquire variant: %w", err)
	}
	defer v.Release()

	for _, comb := range l.path {
		for _, na := range comb.Actions() {
			if err := na.Apply(v); err != nil {
				return out, err
			}
		}
	}

	rangeActions := ev.Optimizer.RangeActions()
	res, err := ev.Oracle.Compute(ctx, v, ev.Objective.Request(rangeActions))
	if err != nil {
		return out, fmt.Errorf("sensitivity computation: %w", err)
	}
	obj, err := ev.Objective.Evaluate(res)
	if err != nil {
		return out, fmt.Errorf("objective: %w", err)
	}

	outcome, err := ev.Optimizer.Optimize(ctx, linear.Start{
		Variant:      v,
		Result:       res,
		Objective:    obj,
		PrePerimeter: ev.PrePerimeter,
		Initial:      ev.Initial,
	})
	if err != nil {
		return out, fmt.Errorf("range action optimisation: %w", err)
	}

	out.result = outcome.Result
	out.objective = outcome.Objective
	out.setpoints = outcome.Setpoints
	out.iterations = outcome.Iterations
	out.sensitivity = sensitivity.StatusSuccess
	if res.Status() == sensitivity.StatusFallback || outcome.Result.Status() == sensitivity.StatusFallback {
		out.sensitivity = sensitivity.StatusFallback
	}
	return out, nil
}

// Release removes the leaf's variant from the arena. Cached results stay
// readable. Releasing twice, or a leaf without variant, is a no-op.
func (l *Leaf) Release(variants *grid.VariantManager) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.variantID == "" {
		return nil
	}
	if err := variants.Remove(l.variantID); err != nil {
		return err
	}
	l.variantID = ""
	return nil
}

// better orders leaves by cost, then fewer network actions, then creation.
func better(a, b *Leaf) bool {
	ca, cb := a.Cost(), b.Cost()
	if ca != cb {
		return ca < cb
	}
	na, nb := a.numNetworkActions(), b.numNetworkActions()
	if na != nb {
		return na < nb
	}
	return a.seq < b.seq
}
