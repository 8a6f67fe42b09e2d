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
	"errors"
	"fmt"
)

// Sentinel errors for snapshot persistence.
var (
	// ErrNotFound means no snapshot has been saved yet.
	ErrNotFound = errors.New("snapshot not found")

	// ErrCorrupted means the payload decoded but does not describe a valid tree,
	// or could not be decoded at all.
	ErrCorrupted = errors.New("snapshot is corrupted")

	// ErrChecksumMismatch means the payload does not match its manifest.
	ErrChecksumMismatch = errors.New("snapshot checksum validation failed")

	// ErrVersionMismatch means the snapshot was written by an incompatible format.
	ErrVersionMismatch = errors.New("snapshot format version mismatch")

	// ErrAtomicSwapFailed means the new snapshot directory could not replace the old one.
	ErrAtomicSwapFailed = errors.New("atomic directory swap failed")

	// ErrDatabaseOpenFailed means the badger database could not be opened.
	ErrDatabaseOpenFailed = errors.New("failed to open snapshot database")

	// ErrNotRoot means Save was given a node other than the root sentinel.
	ErrNotRoot = errors.New("snapshot must start at the hierarchy root")

	// ErrUnknownBackend is returned by Open for an unrecognized backend name.
	ErrUnknownBackend = errors.New("unknown snapshot backend")

	// ErrMirrorDisabled is returned when a GCS mirror is requested but not configured.
	ErrMirrorDisabled = errors.New("gcs mirror is not enabled")
)

// StorageError wraps a backend failure with the operation that failed.
type StorageError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("snapshot %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}
