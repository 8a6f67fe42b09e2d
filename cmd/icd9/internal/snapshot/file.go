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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
	"github.com/AleutianAI/icd9cms/pkg/logging"
	"github.com/AleutianAI/icd9cms/pkg/telemetry"
)

const tracerName = "icd9.snapshot"

// FileStore keeps a snapshot as two files in a directory.
//
// # File Structure
//
//	<dir>/
//	├── manifest.json      # format version, run ID, counts, checksum
//	└── hierarchy.msgpack  # encoded Payload
//
// # Thread Safety
//
// FileStore is safe for concurrent use. Writes are serialized and replace
// the directory through an atomic rename, so readers see either the old or
// the new snapshot.
type FileStore struct {
	dir    string
	logger *logging.Logger
	mu     sync.RWMutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at dir.
//
// # Description
//
// No files are created until the first Save or Import. The parent of dir
// must be writable, since the temp directory is created next to dir to keep
// the final rename on one filesystem.
//
// # Inputs
//
//   - dir: Snapshot directory. Supports ~ expansion.
//   - logger: Optional; nil discards logs.
func NewFileStore(dir string, logger *logging.Logger) *FileStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &FileStore{dir: logging.ExpandPath(dir), logger: logger}
}

// Dir returns the snapshot directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Exists reports whether the directory holds a manifest and a payload.
func (s *FileStore) Exists(_ context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, name := range []string{ManifestFileName, PayloadFileName} {
		if info, err := os.Stat(filepath.Join(s.dir, name)); err != nil || info.IsDir() {
			return false
		}
	}
	return true
}

// Manifest reads manifest.json.
//
// # Outputs
//
//   - *Manifest: The stored manifest.
//   - error: ErrNotFound if absent, ErrCorrupted if unparsable,
//     ErrVersionMismatch for another format.
func (s *FileStore) Manifest(_ context.Context) (*Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readManifest()
}

func (s *FileStore) readManifest() (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, ManifestFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.dir)
		}
		return nil, &StorageError{Op: "read_manifest", Err: err}
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing manifest: %v", ErrCorrupted, err)
	}
	if m.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrVersionMismatch, FormatVersion, m.FormatVersion)
	}
	return &m, nil
}

// Export returns the payload bytes after checking them against the manifest.
func (s *FileStore) Export(_ context.Context) ([]byte, *Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readVerified()
}

func (s *FileStore) readVerified() ([]byte, *Manifest, error) {
	m, err := s.readManifest()
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, PayloadFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: payload missing in %s", ErrNotFound, s.dir)
		}
		return nil, nil, &StorageError{Op: "read_payload", Err: err}
	}
	if checksum(data) != m.Checksum {
		return nil, nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, PayloadFileName)
	}
	return data, m, nil
}

// Load restores the tree from disk.
//
// # Description
//
// Reads the manifest, verifies the payload checksum, decodes and relinks
// every record. The tree is returned only if all of that succeeds.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//
// # Outputs
//
//   - *hierarchy.Node: The restored root.
//   - error: Wraps hierarchy.ErrSnapshotUnavailable on any failure.
func (s *FileStore) Load(ctx context.Context) (*hierarchy.Node, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "FileStore.Load",
		trace.WithAttributes(attribute.String("snapshot.dir", s.dir)))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}

	start := time.Now()
	s.mu.RLock()
	data, m, err := s.readVerified()
	s.mu.RUnlock()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, unavailable(err)
	}

	root, err := restore(data, m)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, unavailable(err)
	}

	span.SetAttributes(attribute.Int("snapshot.nodes", m.NodeCount))
	s.logger.Debug("snapshot loaded",
		"dir", s.dir,
		"run_id", m.RunID,
		"nodes", m.NodeCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return root, nil
}

// Save encodes the tree and atomically replaces the stored snapshot.
//
// # Description
//
// Uses the temp-directory-swap pattern:
//  1. Write payload and manifest to <dir>.tmp.<nanos>
//  2. Move an existing <dir> to <dir>.backup.<nanos>
//  3. Rename the temp directory to <dir>
//  4. Remove the backup on success, restore it on failure
//
// # Inputs
//
//   - ctx: Context for cancellation. Checked before the swap.
//   - root: Root sentinel of the tree to save.
//   - runID: Acquisition run ID. Empty generates one.
//
// # Outputs
//
//   - *Manifest: Manifest of the written snapshot.
//   - error: *StorageError, ErrAtomicSwapFailed, or a context error.
func (s *FileStore) Save(ctx context.Context, root *hierarchy.Node, runID string) (*Manifest, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "FileStore.Save")
	defer span.End()

	data, m, err := prepare(root, runID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.write(ctx, data, m); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("snapshot.nodes", m.NodeCount))
	s.logger.Info("snapshot saved",
		"dir", s.dir,
		"run_id", m.RunID,
		"nodes", m.NodeCount,
		"bytes", m.SizeBytes,
	)
	return m, nil
}

// Import validates an encoded payload and stores it as the current snapshot.
func (s *FileStore) Import(ctx context.Context, payload []byte) (*Manifest, error) {
	p, err := validate(payload)
	if err != nil {
		return nil, err
	}
	m := newManifest(p, payload)
	if err := s.write(ctx, payload, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

// write performs the temp-directory swap.
func (s *FileStore) write(ctx context.Context, data []byte, m *Manifest) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.dir), 0750); err != nil {
		return &StorageError{Op: "create_parent_dir", Err: err}
	}

	tempDir := fmt.Sprintf("%s.tmp.%d", s.dir, time.Now().UnixNano())
	cleanupTemp := true
	defer func() {
		if cleanupTemp {
			_ = os.RemoveAll(tempDir)
		}
	}()

	if err := os.MkdirAll(tempDir, 0750); err != nil {
		return &StorageError{Op: "create_temp_dir", Err: err}
	}
	if err := os.WriteFile(filepath.Join(tempDir, PayloadFileName), data, 0640); err != nil {
		return &StorageError{Op: "write_payload", Err: err}
	}

	manifestData, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return &StorageError{Op: "marshal_manifest", Err: err}
	}
	if err := os.WriteFile(filepath.Join(tempDir, ManifestFileName), manifestData, 0640); err != nil {
		return &StorageError{Op: "write_manifest", Err: err}
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("save snapshot cancelled before swap: %w", ctx.Err())
	default:
	}

	backupDir := fmt.Sprintf("%s.backup.%d", s.dir, time.Now().UnixNano())
	if _, err := os.Stat(s.dir); err == nil {
		if err := os.Rename(s.dir, backupDir); err != nil {
			return fmt.Errorf("%w: backup existing: %v", ErrAtomicSwapFailed, err)
		}
		defer func() {
			if cleanupTemp {
				_ = os.Rename(backupDir, s.dir)
			} else {
				_ = os.RemoveAll(backupDir)
			}
		}()
	}

	if err := os.Rename(tempDir, s.dir); err != nil {
		return fmt.Errorf("%w: rename: %v", ErrAtomicSwapFailed, err)
	}
	cleanupTemp = false
	return nil
}
