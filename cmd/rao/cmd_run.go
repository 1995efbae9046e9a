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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRAO/services/rao"
	"github.com/AleutianAI/AleutianRAO/services/rao/searchtree"
	"github.com/AleutianAI/AleutianRAO/services/rao/storage"
)

type runOptions struct {
	casePath   string
	configPath string
	outPath    string
	storeDir   string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Optimise one case file and print the report",
		Long: `Run loads a case document (YAML or JSON), searches for the best set of
remedial actions and writes the report as JSON to --out or stdout.

The search configuration comes from --config, overridden by RAO_* environment
variables (RAO_MAX_DEPTH, RAO_LEAVES_IN_PARALLEL, RAO_TIME_LIMIT, ...).
With --store the report is also kept in the run database used by 'rao serve'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCase(ctx, root, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.casePath, "case", "", "Case document (.yaml, .yml or .json)")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Search configuration file (YAML or JSON)")
	cmd.Flags().StringVar(&opts.outPath, "out", "", "Write the report here instead of stdout")
	cmd.Flags().StringVar(&opts.storeDir, "store", "", "Keep the report in this run database")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func runCase(ctx context.Context, root *rootOptions, opts *runOptions, stdout io.Writer) error {
	doc, err := rao.LoadCase(opts.casePath)
	if err != nil {
		return err
	}
	search, err := searchtree.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	db, err := openStore(opts.storeDir)
	if err != nil {
		return err
	}
	defer db.Close()

	cfg := rao.DefaultConfig(opts.storeDir)
	cfg.Search = search
	svc, err := rao.NewService(cfg, storage.NewResultStore(db), rao.WithServiceLogger(root.logger.Slog()))
	if err != nil {
		return err
	}

	resp, err := svc.Run(ctx, rao.RunRequest{Case: doc})
	if err != nil {
		return err
	}

	out := stdout
	if opts.outPath != "" {
		f, err := os.Create(opts.outPath)
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// openStore opens the run database in dir, or an in-memory one when dir is empty.
func openStore(dir string) (*storage.DB, error) {
	if dir == "" {
		return storage.OpenInMemory()
	}
	return storage.Open(storage.DefaultConfig(dir))
}
