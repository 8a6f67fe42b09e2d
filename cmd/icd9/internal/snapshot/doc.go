// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot persists a built ICD-9-CM hierarchy and restores it.
//
// A snapshot is the tree flattened in pre-order into msgpack records, plus a
// JSON manifest carrying the format version, run ID, node count and a
// SHA256 checksum of the encoded payload.
//
// # Backends
//
//	┌──────────────┐   Save/Load   ┌──────────────────────────────────┐
//	│ hierarchy    │ ────────────▶ │ FileStore   dir/hierarchy.msgpack │
//	│ .Node (root) │               │             dir/manifest.json     │
//	└──────────────┘               ├──────────────────────────────────┤
//	                               │ BadgerStore payload + manifest    │
//	                               │             in one transaction    │
//	                               └──────────────┬───────────────────┘
//	                                  Export/Import│
//	                               ┌──────────────▼───────────────────┐
//	                               │ GCSMirror   gs://bucket/object    │
//	                               └──────────────────────────────────┘
//
// # Atomicity
//
// Load returns either a fully linked tree or an error wrapping
// hierarchy.ErrSnapshotUnavailable. Save replaces the previous snapshot
// atomically: the file store swaps a temp directory into place and the
// badger store writes both keys in one transaction.
//
// # Thread Safety
//
// Stores are safe for concurrent use.
package snapshot
