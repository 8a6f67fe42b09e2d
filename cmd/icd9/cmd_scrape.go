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

	"github.com/AleutianAI/icd9cms/cmd/icd9/internal/acquire"
	"github.com/AleutianAI/icd9cms/cmd/icd9/internal/snapshot"
	"github.com/AleutianAI/icd9cms/cmd/icd9/internal/util"
)

type scrapeOptions struct {
	dataset     string
	baseURL     string
	rps         float64
	concurrency int
	push        bool
}

// scrapeResult is the --json form of a completed scrape.
type scrapeResult struct {
	Success    bool               `json:"success"`
	RunID      string             `json:"run_id"`
	Nodes      int                `json:"nodes"`
	Leaves     int                `json:"leaves"`
	Pages      int                `json:"pages"`
	Retries    int                `json:"retries"`
	DurationMs int64              `json:"duration_ms"`
	Snapshot   *snapshot.Manifest `json:"snapshot"`
	Location   string             `json:"location"`
	Mirror     string             `json:"mirror,omitempty"`
}

func (a *app) newScrapeCmd() *cobra.Command {
	var opts scrapeOptions
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Crawl the hierarchy and save a new snapshot",
		Long: `Crawl the ICD-9-CM hierarchy site, attach the leaf codes from the CMS
descriptions workbook, verify the result, and replace the local snapshot.

The default politeness limits make a full crawl slow on purpose. Nothing is
saved unless the whole build succeeds.

Examples:
  icd9 scrape --dataset ~/Downloads/CMS32_DESC_LONG_SHORT_DX.xlsx
  icd9 scrape --push
  icd9 scrape --base-url http://mirror.local --rps 5 --concurrency 4`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if !flags.Changed("rps") {
				opts.rps = 0
			}
			if !flags.Changed("concurrency") {
				opts.concurrency = 0
			}
			return a.runScrape(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.dataset, "dataset", "",
		"CMS descriptions workbook (overrides acquire.dataset_path)")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "",
		"Hierarchy site (overrides acquire.base_url)")
	cmd.Flags().Float64Var(&opts.rps, "rps", 0,
		"Requests per second (overrides acquire.requests_per_second)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0,
		"Pages in flight (overrides acquire.max_concurrency)")
	cmd.Flags().BoolVar(&opts.push, "push", false,
		"Upload the new snapshot to the configured GCS mirror")
	return cmd
}

func (a *app) runScrape(ctx context.Context, opts scrapeOptions) error {
	cfg := a.cfg.Acquire
	if opts.dataset != "" {
		cfg.DatasetPath = opts.dataset
	}
	if opts.baseURL != "" {
		cfg.BaseURL = opts.baseURL
	}
	if opts.rps > 0 {
		cfg.RequestsPerSecond = opts.rps
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}
	if opts.concurrency > 0 {
		cfg.MaxConcurrency = opts.concurrency
	}

	// Nothing scrapes a one-shot run, so metrics go to a private registry.
	if err := a.initTelemetry(ctx, prometheus.NewRegistry()); err != nil {
		return err
	}

	builder, err := acquire.NewBuilder(cfg, nil, a.logger)
	if err != nil {
		return &UsageError{Err: err}
	}

	spinner := util.NewSpinner(util.SpinnerConfig{
		Message: "Starting acquisition",
		Writer:  a.stderr,
	})
	spinner.Start()
	defer spinner.Stop()
	builder.WithProgress(spinner.SetMessage)

	tree, result, err := builder.Build(ctx)
	if err != nil {
		spinner.StopFailure("Acquisition failed")
		if errors.Is(err, acquire.ErrNoDataset) {
			return &UsageError{Err: fmt.Errorf("%w: pass --dataset or set acquire.dataset_path", err)}
		}
		return err
	}

	spinner.SetMessage("Saving snapshot")
	store, err := a.openStore()
	if err != nil {
		spinner.StopFailure("Could not open the snapshot store")
		return err
	}
	defer store.Close()

	manifest, err := store.Save(ctx, tree.Root(), result.RunID)
	if err != nil {
		spinner.StopFailure("Could not save the snapshot")
		return fmt.Errorf("save snapshot: %w", err)
	}

	out := scrapeResult{
		Success:    true,
		RunID:      result.RunID,
		Nodes:      result.Nodes,
		Leaves:     result.Leaves,
		Pages:      result.Crawl.Pages,
		Retries:    result.Crawl.Retries,
		DurationMs: result.Duration.Milliseconds(),
		Snapshot:   manifest,
		Location:   a.cfg.Snapshot.Dir,
	}

	if opts.push {
		spinner.SetMessage("Pushing snapshot")
		location, err := a.push(ctx, store)
		if err != nil {
			spinner.StopFailure("Snapshot saved locally but the push failed")
			return err
		}
		out.Mirror = location
	}

	spinner.StopSuccess(fmt.Sprintf("Hierarchy built: %d nodes, %d leaves", result.Nodes, result.Leaves))
	return a.output(out, func(w io.Writer) { outputScrapeText(w, &out) })
}

// push uploads the snapshot in store to the mirror and returns its location.
func (a *app) push(ctx context.Context, store snapshot.Store) (string, error) {
	mirror, err := a.newMirror(ctx)
	if err != nil {
		return "", err
	}
	defer mirror.Close()

	if _, err := mirror.Push(ctx, store); err != nil {
		return "", fmt.Errorf("push snapshot: %w", err)
	}
	return mirror.Location(), nil
}

func outputScrapeText(w io.Writer, r *scrapeResult) {
	fmt.Fprintf(w, "Run:       %s\n", r.RunID)
	fmt.Fprintf(w, "Nodes:     %d (%d leaves)\n", r.Nodes, r.Leaves)
	fmt.Fprintf(w, "Pages:     %d (%d retries)\n", r.Pages, r.Retries)
	fmt.Fprintf(w, "Duration:  %s\n", (time.Duration(r.DurationMs) * time.Millisecond).String())
	fmt.Fprintf(w, "Snapshot:  %s\n", r.Location)
	if r.Mirror != "" {
		fmt.Fprintf(w, "Mirror:    %s\n", r.Mirror)
	}
}
