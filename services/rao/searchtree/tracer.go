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
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "rao.searchtree"

// Tracer provides OpenTelemetry tracing for search operations.
//
// Thread Safety: Safe for concurrent use.
type Tracer struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	enabled bool
}

// NewTracer creates a new tracer.
//
// Inputs:
//   - logger: Logger for structured logging (can be nil for the default logger).
//   - config: Observability configuration.
//
// Outputs:
//   - *Tracer: Tracer instance.
func NewTracer(logger *slog.Logger, config ObservabilityConfig) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracer{
		tracer:  otel.Tracer(tracerName),
		logger:  logger,
		enabled: config.TracingEnabled,
	}
}

// StartSearch starts a span for a whole search.
//
// Inputs:
//   - ctx: Parent context.
//   - cfg: Search configuration.
//   - candidates: Number of available combinations.
//
// Outputs:
//   - context.Context: Context with span.
//   - trace.Span: The created span (a no-op span if tracing is disabled).
func (t *Tracer) StartSearch(ctx context.Context, cfg Config, candidates int) (context.Context, trace.Span) {
	t.logger.InfoContext(ctx, "search started",
		slog.Int("max_depth", cfg.Search.MaxDepth),
		slog.Int("leaves_in_parallel", cfg.Search.LeavesInParallel),
		slog.Int("candidates", candidates),
	)
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "rao.search",
		trace.WithAttributes(
			attribute.Int("rao.search.max_depth", cfg.Search.MaxDepth),
			attribute.Int("rao.search.leaves_in_parallel", cfg.Search.LeavesInParallel),
			attribute.Int("rao.search.candidates", candidates),
			attribute.String("rao.search.stop_criterion", string(cfg.Search.StopCriterion)),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSearch completes the search span.
//
// Inputs:
//   - span: The span to end.
//   - report: The final report (nil on failure).
//   - err: Error if the search failed.
func (t *Tracer) EndSearch(span trace.Span, report *Report, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		t.logger.Error("search failed", slog.String("error", err.Error()))
		return
	}
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(
		attribute.String("rao.search.termination", string(report.TerminationReason)),
		attribute.Int("rao.search.depth", report.Depth),
		attribute.Int("rao.search.leaves", report.LeavesEvaluated),
		attribute.Float64("rao.search.initial_cost", report.InitialCost),
		attribute.Float64("rao.search.final_cost", report.FinalCost),
	)
	span.End()

	t.logger.Info("search complete",
		slog.String("termination", string(report.TerminationReason)),
		slog.Int("depth", report.Depth),
		slog.Int("leaves", report.LeavesEvaluated),
		slog.Float64("initial_cost", report.InitialCost),
		slog.Float64("final_cost", report.FinalCost),
		slog.String("status", string(report.Status)),
	)
}

// StartDepth starts a span for one expansion of the incumbent.
func (t *Tracer) StartDepth(ctx context.Context, depth int, incumbent *Leaf) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "rao.search.depth",
		trace.WithAttributes(
			attribute.Int("rao.search.depth", depth),
			attribute.String("rao.leaf.incumbent", incumbent.ID()),
			attribute.Float64("rao.leaf.incumbent_cost", incumbent.Cost()),
		),
	)
}

// EndDepth completes an expansion span.
func (t *Tracer) EndDepth(span trace.Span, children int, selected *Leaf) {
	span.SetAttributes(attribute.Int("rao.search.children", children))
	if selected != nil {
		span.SetAttributes(
			attribute.String("rao.search.selected", selected.ID()),
			attribute.Float64("rao.search.selected_cost", selected.Cost()),
		)
	}
	span.End()
}

// StartLeaf starts a span for a leaf evaluation.
func (t *Tracer) StartLeaf(ctx context.Context, leaf *Leaf) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "rao.leaf.evaluate",
		trace.WithAttributes(
			attribute.String("rao.leaf.id", leaf.ID()),
			attribute.Int("rao.leaf.depth", leaf.Depth()),
			attribute.String("rao.leaf.combination", leaf.CombinationKey()),
		),
	)
}

// EndLeaf completes a leaf evaluation span.
func (t *Tracer) EndLeaf(ctx context.Context, span trace.Span, leaf *Leaf) {
	logger := LoggerWithTrace(ctx, t.logger)
	if err := leaf.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		logger.Warn("leaf evaluation failed",
			slog.String("leaf", leaf.ID()),
			slog.String("combination", leaf.CombinationKey()),
			slog.String("error", err.Error()),
		)
		return
	}
	span.SetAttributes(
		attribute.String("rao.leaf.status", leaf.Status().String()),
		attribute.Float64("rao.leaf.cost", leaf.Cost()),
	)
	span.End()
	logger.Info("leaf evaluated",
		slog.String("leaf", leaf.ID()),
		slog.String("combination", leaf.CombinationKey()),
		slog.String("status", leaf.Status().String()),
		slog.Float64("cost", leaf.Cost()),
		slog.Duration("duration", leaf.Duration()),
	)
}

// TraceBudgetExhaustion records that the budget stopped the search.
func (t *Tracer) TraceBudgetExhaustion(ctx context.Context, budget *Budget) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent("budget_exhausted",
		trace.WithAttributes(
			attribute.String("reason", budget.ExhaustedBy()),
			attribute.Int64("leaves_started", budget.LeavesStarted()),
		),
	)
	t.logger.Info("search budget exhausted",
		slog.String("reason", budget.ExhaustedBy()),
		slog.Int64("leaves_started", budget.LeavesStarted()),
		slog.Duration("elapsed", budget.Elapsed()),
	)
}

// LoggerWithTrace returns a logger with trace context.
//
// Inputs:
//   - ctx: Context that may contain trace information.
//   - logger: Base logger.
//
// Outputs:
//   - *slog.Logger: Logger with trace_id and span_id if available.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}
