// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"context"

	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
)

// FormatVersion is the snapshot payload format. Bump when Record changes.
const FormatVersion = "1.0"

// File and key names.
const (
	PayloadFileName  = "hierarchy.msgpack"
	ManifestFileName = "manifest.json"

	payloadKey  = "icd9/snapshot/payload"
	manifestKey = "icd9/snapshot/manifest"
)

// Backend names accepted by Config.Backend.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Manifest describes a stored snapshot.
type Manifest struct {
	// FormatVersion of the payload.
	FormatVersion string `json:"format_version"`

	// RunID identifies the acquisition run that produced the tree.
	RunID string `json:"run_id"`

	// CreatedAtMilli is when the payload was encoded (Unix milliseconds UTC).
	CreatedAtMilli int64 `json:"created_at"`

	// NodeCount includes the root.
	NodeCount int `json:"node_count"`

	// LeafCount is the number of leaf-flagged nodes.
	LeafCount int `json:"leaf_count"`

	// Checksum is the hex SHA256 of the encoded payload.
	Checksum string `json:"checksum"`

	// SizeBytes is the encoded payload size.
	SizeBytes int64 `json:"size_bytes"`
}

// Store saves and restores hierarchy snapshots.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists the tree under root, replacing any previous snapshot.
	// An empty runID is replaced by a generated one.
	Save(ctx context.Context, root *hierarchy.Node, runID string) (*Manifest, error)

	// Load restores the tree. Every failure wraps hierarchy.ErrSnapshotUnavailable.
	Load(ctx context.Context) (*hierarchy.Node, error)

	// Exists reports whether a snapshot has been saved.
	Exists(ctx context.Context) bool

	// Manifest returns the stored manifest without decoding the payload.
	Manifest(ctx context.Context) (*Manifest, error)

	// Export returns the verified encoded payload and its manifest.
	Export(ctx context.Context) ([]byte, *Manifest, error)

	// Import validates an encoded payload and stores it as the current snapshot.
	Import(ctx context.Context, payload []byte) (*Manifest, error)

	// Close releases backend resources.
	Close() error
}
