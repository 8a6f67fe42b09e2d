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
	"fmt"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/icd9cms/services/icd9api"
)

type serveOptions struct {
	addr string
	pull bool
}

func (a *app) newServeCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve hierarchy queries over HTTP",
		Long: `Start the HTTP query API on the local snapshot.

The server starts listening immediately and loads the snapshot in the
background; /v1/icd9/ready reports 503 until the tree is available.
Prometheus metrics are served on /metrics.

Examples:
  icd9 serve
  icd9 serve --addr 0.0.0.0:8089
  icd9 serve --pull`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "",
		"Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&opts.pull, "pull", false,
		"Refresh the local snapshot from the GCS mirror before loading")
	return cmd
}

func (a *app) runServe(ctx context.Context, opts serveOptions) error {
	cfg := a.cfg.Server
	if opts.addr != "" {
		if _, _, err := net.SplitHostPort(opts.addr); err != nil {
			return usageErrorf("invalid --addr %q: %v", opts.addr, err)
		}
		cfg.Addr = opts.addr
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := a.initTelemetry(ctx, registry); err != nil {
		return err
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if opts.pull {
		if _, err := a.pull(ctx, store); err != nil {
			a.logger.Warn("mirror pull failed, serving the local snapshot", "error", err)
		}
	}

	server := icd9api.NewServer(cfg, registry, a.logger)
	loaded := server.LoadAsync(ctx, store)

	fmt.Fprintf(a.stderr, "Serving the ICD-9 API on http://%s/v1/icd9\n", cfg.Addr)
	err = server.Run(ctx)

	// The store must outlive the background load.
	<-loaded
	return err
}
