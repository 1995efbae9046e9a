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
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Budget exhaustion reasons.
const (
	exhaustedByTime   = "time"
	exhaustedByLeaves = "leaves"
)

// Budget tracks resource consumption during a search.
//
// A leaf counts against MaxLeaves when its evaluation starts. Once a limit is
// hit the budget stays exhausted; evaluations already started are unaffected.
//
// Thread Safety: Safe for concurrent use.
type Budget struct {
	config    BudgetConfig
	startTime time.Time

	leavesStarted   atomic.Int64
	leavesEvaluated atomic.Int64

	mu          sync.RWMutex
	exhausted   bool
	exhaustedBy string
}

// NewBudget creates a budget tracker whose clock starts now.
//
// Inputs:
//   - config: Budget configuration. Zero values disable a limit.
//
// Outputs:
//   - *Budget: Budget tracker, ready to use
func NewBudget(config BudgetConfig) *Budget {
	return &Budget{
		config:    config,
		startTime: time.Now(),
	}
}

// Config returns the budget configuration.
func (b *Budget) Config() BudgetConfig {
	return b.config
}

// TryStartLeaf reserves one leaf evaluation.
//
// Outputs:
//   - bool: False if the budget is exhausted; nothing is reserved then.
func (b *Budget) TryStartLeaf() bool {
	if b.Exhausted() {
		return false
	}
	n := b.leavesStarted.Add(1)
	if b.config.MaxLeaves > 0 && n > int64(b.config.MaxLeaves) {
		b.leavesStarted.Add(-1)
		b.markExhausted(exhaustedByLeaves)
		return false
	}
	return true
}

// RecordLeafEvaluated records a finished evaluation, successful or not.
func (b *Budget) RecordLeafEvaluated() int64 {
	return b.leavesEvaluated.Add(1)
}

// LeavesStarted returns the number of evaluations started.
func (b *Budget) LeavesStarted() int64 {
	return b.leavesStarted.Load()
}

// LeavesEvaluated returns the number of evaluations finished.
func (b *Budget) LeavesEvaluated() int64 {
	return b.leavesEvaluated.Load()
}

// Elapsed returns time elapsed since the budget was created.
func (b *Budget) Elapsed() time.Duration {
	return time.Since(b.startTime)
}

// Remaining returns the remaining budget. Disabled limits report zero.
func (b *Budget) Remaining() BudgetRemaining {
	var r BudgetRemaining
	if b.config.MaxLeaves > 0 {
		r.Leaves = b.config.MaxLeaves - int(b.LeavesStarted())
	}
	if b.config.TimeLimit > 0 {
		r.Time = b.config.TimeLimit - b.Elapsed()
	}
	return r
}

// BudgetRemaining contains remaining budget values.
type BudgetRemaining struct {
	Leaves int           `json:"leaves"`
	Time   time.Duration `json:"time"`
}

// Exhausted returns whether the budget has been exhausted.
func (b *Budget) Exhausted() bool {
	b.mu.RLock()
	if b.exhausted {
		b.mu.RUnlock()
		return true
	}
	b.mu.RUnlock()

	return b.checkLimits()
}

// ExhaustedBy returns which limit caused exhaustion (empty if not exhausted).
func (b *Budget) ExhaustedBy() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.exhaustedBy
}

// checkLimits marks the budget exhausted when a limit is reached.
func (b *Budget) checkLimits() bool {
	if b.config.TimeLimit > 0 && time.Since(b.startTime) >= b.config.TimeLimit {
		b.markExhausted(exhaustedByTime)
		return true
	}
	if b.config.MaxLeaves > 0 && b.leavesStarted.Load() >= int64(b.config.MaxLeaves) {
		b.markExhausted(exhaustedByLeaves)
		return true
	}
	return false
}

func (b *Budget) markExhausted(by string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.exhausted {
		return
	}
	b.exhausted = true
	b.exhaustedBy = by
}

// String returns a human-readable budget status.
func (b *Budget) String() string {
	exhaustedStatus := ""
	if b.Exhausted() {
		exhaustedStatus = fmt.Sprintf(" [EXHAUSTED by %s]", b.ExhaustedBy())
	}
	return fmt.Sprintf("Budget{leaves=%d/%d, time=%v/%v}%s",
		b.LeavesStarted(), b.config.MaxLeaves,
		b.Elapsed().Round(time.Millisecond), b.config.TimeLimit,
		exhaustedStatus)
}

// UsageReport returns a detailed usage report.
type UsageReport struct {
	Elapsed         time.Duration   `json:"elapsed"`
	LeavesStarted   int64           `json:"leaves_started"`
	LeavesEvaluated int64           `json:"leaves_evaluated"`
	Exhausted       bool            `json:"exhausted"`
	ExhaustedBy     string          `json:"exhausted_by,omitempty"`
	Remaining       BudgetRemaining `json:"remaining"`
}

// Report generates a usage report.
func (b *Budget) Report() UsageReport {
	return UsageReport{
		Elapsed:         b.Elapsed(),
		LeavesStarted:   b.LeavesStarted(),
		LeavesEvaluated: b.LeavesEvaluated(),
		Exhausted:       b.Exhausted(),
		ExhaustedBy:     b.ExhaustedBy(),
		Remaining:       b.Remaining(),
	}
}
