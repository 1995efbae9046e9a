// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rao is the remedial action optimisation service.
//
// A run takes a case document (network plus CRAC), builds the domain
// model, searches the network action tree and stores the report:
//
//	decode -> build -> oracle chain -> search -> persist
//
// The oracle chain of a run is a strict DC computation, backed by a
// regularised one on failure, behind a result cache. The package also
// exposes runs over HTTP (see RegisterRoutes).
package rao

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianRAO/services/rao/caseio"
	"github.com/AleutianAI/AleutianRAO/services/rao/crac"
	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
	"github.com/AleutianAI/AleutianRAO/services/rao/searchtree"
	"github.com/AleutianAI/AleutianRAO/services/rao/sensitivity"
	"github.com/AleutianAI/AleutianRAO/services/rao/storage"
	"github.com/AleutianAI/AleutianRAO/services/rao/telemetry"
)

// ServiceVersion is the optimisation service version.
const ServiceVersion = "0.1.0"

const tracerName = "rao"

// Service runs optimisations and keeps their reports.
//
// Thread Safety:
//
//	Service is safe for concurrent use. Each run owns its network,
//	variants and oracle chain; only the store and admission state are shared.
type Service struct {
	cfg     Config
	store   *storage.ResultStore
	limiter *rate.Limiter
	slots   *semaphore.Weighted
	metrics *telemetry.RunMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithRunMetrics replaces the instruments created on the global meter.
func WithRunMetrics(m *telemetry.RunMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a service storing reports in store.
//
// Inputs:
//
//	cfg - Service configuration. Only the search, sensitivity and
//	      admission sections are used here.
//	store - Report store. The service does not close it.
//	opts - Functional options.
//
// Outputs:
//
//	*Service - Ready to Run.
//	error - ErrInvalidServiceConfig or instrument creation failure.
func NewService(cfg Config, store *storage.ResultStore, opts ...ServiceOption) (*Service, error) {
	if err := configValidate.Struct(cfg.Sensitivity); err != nil {
		return nil, fmt.Errorf("%w: sensitivity: %v", ErrInvalidServiceConfig, err)
	}
	if err := configValidate.Struct(cfg.Admission); err != nil {
		return nil, fmt.Errorf("%w: admission: %v", ErrInvalidServiceConfig, err)
	}
	if err := cfg.Search.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: nil result store", ErrInvalidServiceConfig)
	}

	s := &Service{
		cfg:     cfg,
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(cfg.Admission.RatePerSecond), cfg.Admission.Burst),
		slots:   semaphore.NewWeighted(cfg.Admission.MaxConcurrent),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		m, err := telemetry.NewRunMetrics(otel.Meter(tracerName))
		if err != nil {
			return nil, err
		}
		s.metrics = m
	}
	return s, nil
}

// Run optimises one case and stores the report.
//
// Description:
//
//	The run is refused with ErrBusy when the rate limit has no token
//	or MaxConcurrent runs are in progress. Otherwise the case is
//	validated and built, the search runs to completion and the report
//	is stored under a fresh run id.
//
// Inputs:
//
//	ctx - Cancelling it stops the search between evaluations.
//	req - The case and an optional search configuration override.
//
// Outputs:
//
//	*RunResponse - The run id and report.
//	error - ErrBusy, ErrInvalidRequest, ErrInvalidCase,
//	        searchtree.ErrInvalidConfig, searchtree.ErrRootEvaluation,
//	        or a storage failure.
func (s *Service) Run(ctx context.Context, req RunRequest) (resp *RunResponse, err error) {
	if !s.slots.TryAcquire(1) {
		s.metrics.RunRejected(ctx)
		return nil, fmt.Errorf("%w: %d runs in progress", ErrBusy, s.cfg.Admission.MaxConcurrent)
	}
	defer s.slots.Release(1)
	if !s.limiter.Allow() {
		s.metrics.RunRejected(ctx)
		return nil, fmt.Errorf("%w: rate limit exceeded", ErrBusy)
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "rao.run")
	defer span.End()
	logger := telemetry.LoggerWithTrace(ctx, s.logger)

	finish := s.metrics.RunStarted(ctx)
	defer func() {
		switch {
		case err != nil:
			telemetry.RecordError(span, err)
			finish("failed")
		case resp.Report.Secure():
			finish("secure")
		default:
			finish("unsecure")
		}
	}()

	cfg, err := s.searchConfig(req)
	if err != nil {
		return nil, err
	}
	if req.Case == nil {
		return nil, fmt.Errorf("%w: missing case", ErrInvalidRequest)
	}
	if err := req.Case.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCase, err)
	}
	net, catalog, err := req.Case.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCase, err)
	}

	runID := uuid.NewString()
	span.SetAttributes(
		attribute.String("rao.run_id", runID),
		attribute.String("rao.case_id", catalog.ID()),
	)
	logger = logger.With(slog.String("run_id", runID), slog.String("case_id", catalog.ID()))
	logger.Info("run started",
		slog.Int("cnecs", len(catalog.Cnecs())),
		slog.Int("network_actions", len(catalog.NetworkActions())),
		slog.Int("range_actions", len(catalog.RangeActions())))

	oracle, err := s.oracleChain(catalog.Contingencies(), logger)
	if err != nil {
		return nil, err
	}
	defer oracle.Close()

	driver, err := searchtree.NewDriver(catalog, grid.NewVariantManager(net), oracle, cfg,
		searchtree.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	report, err := driver.Run(ctx)
	if rerr := driver.Release(); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		logger.Error("run failed", slog.String("error", err.Error()))
		return nil, err
	}

	rec := storage.Record{
		RunID:     runID,
		CaseID:    catalog.ID(),
		CreatedAt: s.now(),
		Report:    report,
	}
	// The search is done; keep its result even if the caller went away.
	if err := s.store.Put(context.WithoutCancel(ctx), rec); err != nil {
		return nil, fmt.Errorf("store run %s: %w", runID, err)
	}

	logger.Info("run complete",
		slog.String("status", string(report.Status)),
		slog.String("termination_reason", string(report.TerminationReason)),
		slog.Float64("final_cost", report.FinalCost),
		slog.Duration("duration", report.Duration))
	return &RunResponse{
		RunID:     rec.RunID,
		CaseID:    rec.CaseID,
		CreatedAt: rec.CreatedAt,
		Report:    report,
	}, nil
}

func (s *Service) searchConfig(req RunRequest) (searchtree.Config, error) {
	if len(req.Config) == 0 || string(req.Config) == "null" {
		return s.cfg.Search, nil
	}
	cfg, err := searchtree.ParseConfig(req.Config)
	if err != nil {
		if errors.Is(err, searchtree.ErrInvalidConfig) {
			return cfg, err
		}
		return cfg, fmt.Errorf("%w: config: %w", ErrInvalidRequest, err)
	}
	return cfg, nil
}

// oracleChain builds strict DC -> regularised DC fallback -> cache.
func (s *Service) oracleChain(contingencies []crac.Contingency, logger *slog.Logger) (*sensitivity.CachingOracle, error) {
	strict := sensitivity.NewDCOracle(contingencies, sensitivity.WithDCLogger(logger))
	relaxed := sensitivity.NewDCOracle(contingencies,
		sensitivity.WithRegularization(s.cfg.Sensitivity.FallbackRegularization),
		sensitivity.WithDCLogger(logger))
	return sensitivity.NewCachingOracle(
		sensitivity.WithFallback(strict, relaxed, logger),
		s.cfg.Sensitivity.CacheEntries)
}

// Get returns a stored run.
func (s *Service) Get(ctx context.Context, runID string) (*RunResponse, error) {
	rec, err := s.store.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &RunResponse{
		RunID:     rec.RunID,
		CaseID:    rec.CaseID,
		CreatedAt: rec.CreatedAt,
		Report:    rec.Report,
	}, nil
}

// List returns up to limit stored runs, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]storage.Summary, error) {
	return s.store.List(ctx, limit)
}

// LoadCase reads a case document from a file, for callers that do not
// go through HTTP.
func LoadCase(path string) (*caseio.Document, error) {
	doc, err := caseio.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCase, err)
	}
	return doc, nil
}
