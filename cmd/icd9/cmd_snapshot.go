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
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/icd9cms/cmd/icd9/internal/snapshot"
	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
)

// snapshotResult is the --json form of the snapshot subcommands.
type snapshotResult struct {
	Success  bool               `json:"success"`
	Action   string             `json:"action"`
	Manifest *snapshot.Manifest `json:"manifest"`
	Location string             `json:"location,omitempty"`
	Verified bool               `json:"verified,omitempty"`
}

func (a *app) newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect, verify, and transfer the local snapshot",
		Long: `Commands for the persisted hierarchy snapshot.

Subcommands:
  info     - Show the snapshot manifest
  verify   - Decode the snapshot and check its structure
  push     - Upload the snapshot to the GCS mirror
  pull     - Replace the snapshot with the GCS mirror's copy
  export   - Write the snapshot payload to a file
  import   - Replace the snapshot with a payload file`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "info",
			Short: "Show the snapshot manifest",
			Args:  usageArgs(cobra.NoArgs),
			RunE:  a.withStore("info", a.snapshotInfo),
		},
		&cobra.Command{
			Use:   "verify",
			Short: "Decode the snapshot and check its structure",
			Args:  usageArgs(cobra.NoArgs),
			RunE:  a.withStore("verify", a.snapshotVerify),
		},
		&cobra.Command{
			Use:   "push",
			Short: "Upload the snapshot to the GCS mirror",
			Args:  usageArgs(cobra.NoArgs),
			RunE: a.withStore("push", func(ctx context.Context, store snapshot.Store, _ []string) (*snapshotResult, error) {
				location, err := a.push(ctx, store)
				if err != nil {
					return nil, err
				}
				manifest, err := store.Manifest(ctx)
				if err != nil {
					return nil, err
				}
				return &snapshotResult{Manifest: manifest, Location: location}, nil
			}),
		},
		&cobra.Command{
			Use:   "pull",
			Short: "Replace the snapshot with the GCS mirror's copy",
			Args:  usageArgs(cobra.NoArgs),
			RunE: a.withStore("pull", func(ctx context.Context, store snapshot.Store, _ []string) (*snapshotResult, error) {
				return a.pull(ctx, store)
			}),
		},
		&cobra.Command{
			Use:   "export FILE",
			Short: "Write the snapshot payload to a file",
			Args:  usageArgs(cobra.ExactArgs(1)),
			RunE:  a.withStore("export", a.snapshotExport),
		},
		&cobra.Command{
			Use:   "import FILE",
			Short: "Replace the snapshot with a payload file",
			Long: `Replace the snapshot with a payload file written by 'icd9 snapshot export'.

The payload is decoded and checked before anything is replaced.`,
			Args: usageArgs(cobra.ExactArgs(1)),
			RunE: a.withStore("import", a.snapshotImport),
		},
	)
	return cmd
}

type snapshotAction func(ctx context.Context, store snapshot.Store, args []string) (*snapshotResult, error)

// withStore opens the configured store around fn and prints its result.
func (a *app) withStore(action string, fn snapshotAction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		store, err := a.openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		result, err := fn(cmd.Context(), store, args)
		if err != nil {
			return err
		}
		result.Success = true
		result.Action = action
		return a.output(result, func(w io.Writer) { outputSnapshotText(w, result) })
	}
}

// =============================================================================
// Actions
// =============================================================================

func (a *app) snapshotInfo(ctx context.Context, store snapshot.Store, _ []string) (*snapshotResult, error) {
	manifest, err := store.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	return &snapshotResult{Manifest: manifest, Location: a.cfg.Snapshot.Dir}, nil
}

func (a *app) snapshotVerify(ctx context.Context, store snapshot.Store, _ []string) (*snapshotResult, error) {
	manifest, err := store.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	tree, err := hierarchy.Load(ctx, store)
	if err != nil {
		return nil, err
	}
	if err := tree.Verify(); err != nil {
		return nil, fmt.Errorf("verify snapshot: %w", err)
	}
	if tree.Size() != manifest.NodeCount {
		return nil, fmt.Errorf("%w: manifest lists %d nodes, payload has %d",
			snapshot.ErrCorrupted, manifest.NodeCount, tree.Size())
	}
	return &snapshotResult{Manifest: manifest, Location: a.cfg.Snapshot.Dir, Verified: true}, nil
}

func (a *app) snapshotExport(ctx context.Context, store snapshot.Store, args []string) (*snapshotResult, error) {
	data, manifest, err := store.Export(ctx)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(args[0], data, 0644); err != nil {
		return nil, fmt.Errorf("write %s: %w", args[0], err)
	}
	return &snapshotResult{Manifest: manifest, Location: args[0]}, nil
}

func (a *app) snapshotImport(ctx context.Context, store snapshot.Store, args []string) (*snapshotResult, error) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args[0], err)
	}
	manifest, err := store.Import(ctx, data)
	if err != nil {
		return nil, err
	}
	return &snapshotResult{Manifest: manifest, Location: a.cfg.Snapshot.Dir}, nil
}

// pull replaces the local snapshot with the mirrored one.
func (a *app) pull(ctx context.Context, store snapshot.Store) (*snapshotResult, error) {
	mirror, err := a.newMirror(ctx)
	if err != nil {
		return nil, err
	}
	defer mirror.Close()

	manifest, err := mirror.Pull(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("pull snapshot: %w", err)
	}
	return &snapshotResult{Manifest: manifest, Location: mirror.Location()}, nil
}

func outputSnapshotText(w io.Writer, r *snapshotResult) {
	m := r.Manifest
	switch r.Action {
	case "verify":
		fmt.Fprintln(w, "Snapshot verified.")
	case "push":
		fmt.Fprintf(w, "Pushed to %s\n", r.Location)
	case "pull":
		fmt.Fprintf(w, "Pulled from %s\n", r.Location)
	case "export":
		fmt.Fprintf(w, "Exported to %s\n", r.Location)
	case "import":
		fmt.Fprintln(w, "Snapshot imported.")
	}
	if m == nil {
		return
	}
	fmt.Fprintf(w, "Run:       %s\n", m.RunID)
	fmt.Fprintf(w, "Format:    %s\n", m.FormatVersion)
	fmt.Fprintf(w, "Created:   %s\n", time.UnixMilli(m.CreatedAtMilli).UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "Nodes:     %d (%d leaves)\n", m.NodeCount, m.LeafCount)
	fmt.Fprintf(w, "Size:      %d bytes\n", m.SizeBytes)
	fmt.Fprintf(w, "Checksum:  %s\n", m.Checksum)
	if r.Action == "info" || r.Action == "verify" {
		fmt.Fprintf(w, "Location:  %s\n", r.Location)
	}
}
