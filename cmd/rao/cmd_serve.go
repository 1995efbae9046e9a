// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRAO/services/rao"
	"github.com/AleutianAI/AleutianRAO/services/rao/storage"
	"github.com/AleutianAI/AleutianRAO/services/rao/telemetry"
)

type serveOptions struct {
	addr       string
	configPath string
	storeDir   string
	debug      bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the optimisation HTTP API",
		Long: `Serve starts the HTTP API under /v1/rao and Prometheus metrics under /metrics.

Configuration comes from --config (YAML or JSON), overridden by RAO_HTTP_ADDR,
RAO_STORE_PATH, RAO_RATE_PER_SECOND, RAO_MAX_CONCURRENT_RUNS and the OTEL_*
exporter variables, then by the flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (default :12230)")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Service configuration file")
	cmd.Flags().StringVar(&opts.storeDir, "store", "", "Run database directory (default ~/.aleutian/rao/runs)")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable gin debug mode")
	return cmd
}

func serve(ctx context.Context, root *rootOptions, opts *serveOptions) error {
	storeDir := opts.storeDir
	if storeDir == "" {
		storeDir = defaultStoreDir()
	}
	cfg, err := rao.LoadConfig(opts.configPath, storeDir)
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.HTTP.Addr = opts.addr
	}
	if opts.storeDir != "" {
		cfg.Storage.Path = opts.storeDir
	}
	cfg.Telemetry.ServiceVersion = version
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := root.logger.Slog()
	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	storeCfg := cfg.Storage
	storeCfg.Logger = logger
	db, err := storage.Open(storeCfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := rao.NewService(cfg, storage.NewResultStore(db), rao.WithServiceLogger(logger))
	if err != nil {
		return err
	}

	if opts.debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := rao.NewRouter(rao.NewHandlers(svc), cfg.Telemetry.ServiceName)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting rao server",
			slog.String("address", cfg.HTTP.Addr),
			slog.String("store", db.Path()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down rao server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
