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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRAO/pkg/logging"
	"github.com/AleutianAI/AleutianRAO/services/rao"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	logLevel string
	logDir   string
	logJSON  bool

	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "rao",
		Short: "Remedial action optimiser for power grid security",
		Long: `rao searches combinations of topological remedial actions and optimises
phase-shifter and HVDC setpoints so that every monitored branch stays within
its limits, or as close to them as possible.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logging.ParseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			opts.logger = logging.New(logging.Config{
				Level:   level,
				LogDir:  opts.logDir,
				Service: "rao",
				JSON:    opts.logJSON,
				Stderr:  cmd.ErrOrStderr(),
			})
			slog.SetDefault(opts.logger.Slog())
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logger == nil {
				return nil
			}
			return opts.logger.Close()
		},
	}

	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&opts.logDir, "log-dir", "", "Also write JSON logs to this directory")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Write JSON logs to stderr even on a terminal")

	root.AddCommand(newRunCmd(opts), newServeCmd(opts), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "rao %s (service %s)\n", version, rao.ServiceVersion)
			return err
		},
	}
}

// defaultStoreDir is ~/.aleutian/rao/runs, or ./rao-runs without a home.
func defaultStoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "rao-runs"
	}
	return filepath.Join(home, ".aleutian", "rao", "runs")
}
