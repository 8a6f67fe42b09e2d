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
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/icd9cms/cmd/icd9/config"
	"github.com/AleutianAI/icd9cms/cmd/icd9/internal/snapshot"
	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
	"github.com/AleutianAI/icd9cms/pkg/logging"
	"github.com/AleutianAI/icd9cms/pkg/query"
	"github.com/AleutianAI/icd9cms/pkg/telemetry"
)

// app carries the state shared by every command of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	// Global flags
	configPath string
	jsonOutput bool
	logLevel   string

	cfg               *config.ICD9Config
	logger            *logging.Logger
	telemetryShutdown func(context.Context) error

	// newMirror opens the remote snapshot mirror. Replaced in tests.
	newMirror func(ctx context.Context) (*snapshot.GCSMirror, error)
}

// execute runs the command line args and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := newApp(stdout, stderr)
	return a.run(ctx, args)
}

func newApp(stdout, stderr io.Writer) *app {
	a := &app{stdout: stdout, stderr: stderr, logger: logging.Nop()}
	a.newMirror = func(ctx context.Context) (*snapshot.GCSMirror, error) {
		return snapshot.NewGCSMirror(ctx, a.cfg.GCS, a.logger.With("component", "mirror"))
	}
	return a
}

func (a *app) run(ctx context.Context, args []string) int {
	defer a.close()

	root := a.newRootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		a.printError(err)
	}
	return exitCode(err)
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "icd9",
		Short: "Build and query the ICD-9-CM diagnosis hierarchy",
		Long: `icd9 crawls the ICD-9-CM chapter/section/category structure, enriches it
with the CMS code descriptions workbook, and stores the result as a local
snapshot that every query command reads.

Getting started:
  icd9 scrape --dataset ~/Downloads/CMS32_DESC_LONG_SHORT_DX.xlsx
  icd9 search 401.1
  icd9 tree 390-459 --depth 2
  icd9 serve`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "",
		"Config file (default $ICD9_CONFIG or ~/.icd9/icd9.yaml)")
	flags.BoolVar(&a.jsonOutput, "json", false,
		"Output as JSON for scripting")
	flags.StringVar(&a.logLevel, "log-level", "",
		"Override the configured log level: debug, info, warn, error")

	root.AddCommand(a.queryCommands()...)
	root.AddCommand(
		a.newScrapeCmd(),
		a.newServeCmd(),
		a.newSnapshotCmd(),
	)
	return root
}

// =============================================================================
// Lifecycle
// =============================================================================

// setup loads the configuration and builds the logger before any command runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	path := a.configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}
	cfg, err := config.LoadFrom(path, a.stderr)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	logCfg, err := cfg.Logging.Logger("icd9")
	if err != nil {
		return &UsageError{Err: err}
	}
	logCfg.Output = a.stderr
	a.cfg = cfg
	a.logger = logging.New(logCfg).With("command", cmd.Name())
	return nil
}

// initTelemetry installs the tracer and meter providers. Commands that do
// network or long-running work call it; plain lookups do not.
func (a *app) initTelemetry(ctx context.Context, reg prometheus.Registerer) error {
	tcfg := a.cfg.Telemetry
	tcfg.Registerer = reg
	tcfg.Writer = a.stderr
	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.telemetryShutdown = shutdown
	return nil
}

func (a *app) close() {
	if a.telemetryShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.telemetryShutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown failed", "error", err)
		}
		cancel()
	}
	_ = a.logger.Close()
}

// =============================================================================
// Shared helpers
// =============================================================================

func (a *app) openStore() (snapshot.Store, error) {
	return snapshot.Open(a.cfg.Snapshot, a.logger.With("component", "snapshot"))
}

// loadQuerier restores the local snapshot.
//
// # Outputs
//
//   - *query.Querier: Over the restored tree.
//   - error: Wraps hierarchy.ErrSnapshotUnavailable when no usable snapshot
//     exists.
func (a *app) loadQuerier(ctx context.Context) (*query.Querier, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", hierarchy.ErrSnapshotUnavailable, err)
	}
	defer store.Close()

	tree, err := hierarchy.Load(ctx, store)
	if err != nil {
		return nil, err
	}
	return query.NewQuerier(tree), nil
}

// errorResult is the --json form of a failed command.
type errorResult struct {
	APIVersion string `json:"api_version"`
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Code       string `json:"code"`
}

func (a *app) printError(err error) {
	if a.jsonOutput {
		_ = writeJSON(a.stdout, errorResult{
			APIVersion: query.APIVersion,
			Success:    false,
			Error:      err.Error(),
			Code:       errorCode(err),
		})
		return
	}

	fmt.Fprintf(a.stderr, "Error: %v\n", err)
	if errors.Is(err, snapshot.ErrNotFound) && !errors.Is(err, hierarchy.ErrSnapshotUnavailable) {
		fmt.Fprintln(a.stderr, "Run 'icd9 scrape' to build the hierarchy, or 'icd9 snapshot pull' to fetch a mirrored copy.")
	}
	var usage *UsageError
	if errors.As(err, &usage) {
		fmt.Fprintln(a.stderr, "Run 'icd9 --help' for usage.")
	}
}
