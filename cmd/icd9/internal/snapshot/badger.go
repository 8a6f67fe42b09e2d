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
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
	"github.com/AleutianAI/icd9cms/pkg/logging"
	"github.com/AleutianAI/icd9cms/pkg/telemetry"
)

// gcDiscardRatio is the garbage fraction a value log file needs before a
// post-save GC pass rewrites it.
const gcDiscardRatio = 0.5

// BadgerConfig holds configuration for the embedded snapshot database.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// InMemoryBadgerConfig returns a configuration for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
// Badger is chatty at Info, so its Info lines are demoted to Debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// openBadger opens the database described by cfg.
func openBadger(cfg BadgerConfig) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("%w: path is required for persistent database", ErrDatabaseOpenFailed)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		path := logging.ExpandPath(cfg.Path)
		if err := os.MkdirAll(path, 0750); err != nil {
			return nil, &StorageError{Op: "create_db_dir", Err: err}
		}
		opts = badger.DefaultOptions(path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOpenFailed, err)
	}
	return db, nil
}

// BadgerStore keeps the snapshot in an embedded badger database.
//
// # Description
//
// The encoded payload and its JSON manifest live under two fixed keys and
// are always written in the same transaction, so a reader never sees a
// manifest that belongs to another payload.
//
// # Thread Safety
//
// Safe for concurrent use.
type BadgerStore struct {
	db       *badger.DB
	inMemory bool
	logger   *logging.Logger
}

var _ Store = (*BadgerStore)(nil)

// OpenBadgerStore opens a BadgerStore.
//
// # Outputs
//
//   - *BadgerStore: The store. Call Close when done.
//   - error: Wraps ErrDatabaseOpenFailed if badger cannot open the directory.
func OpenBadgerStore(cfg BadgerConfig, logger *logging.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	db, err := openBadger(cfg)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db, inMemory: cfg.InMemory, logger: logger}, nil
}

// withTxn runs fn in a read-write transaction and commits if it returns nil.
func (s *BadgerStore) withTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// withReadTxn runs fn in a read-only transaction.
func (s *BadgerStore) withReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	txn := s.db.NewTransaction(false)
	defer txn.Discard()
	return fn(txn)
}

// Exists reports whether a manifest is stored.
func (s *BadgerStore) Exists(ctx context.Context) bool {
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(manifestKey))
		return err
	})
	return err == nil
}

// Manifest returns the stored manifest.
func (s *BadgerStore) Manifest(ctx context.Context) (*Manifest, error) {
	var m *Manifest
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		m, err = readManifestTxn(txn)
		return err
	})
	return m, err
}

// Export returns the verified payload and its manifest.
func (s *BadgerStore) Export(ctx context.Context) ([]byte, *Manifest, error) {
	var (
		data []byte
		m    *Manifest
	)
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		if m, err = readManifestTxn(txn); err != nil {
			return err
		}
		item, err := txn.Get([]byte(payloadKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: payload key missing", ErrNotFound)
			}
			return &StorageError{Op: "get_payload", Err: err}
		}
		data, err = item.ValueCopy(nil)
		if err != nil {
			return &StorageError{Op: "read_payload", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if checksum(data) != m.Checksum {
		return nil, nil, ErrChecksumMismatch
	}
	return data, m, nil
}

// Load restores the tree. Every failure wraps hierarchy.ErrSnapshotUnavailable.
func (s *BadgerStore) Load(ctx context.Context) (*hierarchy.Node, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "BadgerStore.Load")
	defer span.End()

	data, m, err := s.Export(ctx)
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
	s.logger.Debug("snapshot loaded", "backend", BackendBadger, "run_id", m.RunID, "nodes", m.NodeCount)
	return root, nil
}

// Save encodes the tree and stores payload and manifest in one transaction.
func (s *BadgerStore) Save(ctx context.Context, root *hierarchy.Node, runID string) (*Manifest, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "BadgerStore.Save")
	defer span.End()

	data, m, err := prepare(root, runID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.put(ctx, data, m); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("snapshot.nodes", m.NodeCount))
	s.logger.Info("snapshot saved", "backend", BackendBadger, "run_id", m.RunID, "nodes", m.NodeCount, "bytes", m.SizeBytes)
	return m, nil
}

// Import validates an encoded payload and stores it.
func (s *BadgerStore) Import(ctx context.Context, payload []byte) (*Manifest, error) {
	p, err := validate(payload)
	if err != nil {
		return nil, err
	}
	m := newManifest(p, payload)
	if err := s.put(ctx, payload, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) put(ctx context.Context, data []byte, m *Manifest) error {
	manifestData, err := json.Marshal(m)
	if err != nil {
		return &StorageError{Op: "marshal_manifest", Err: err}
	}

	err = s.withTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set([]byte(payloadKey), data); err != nil {
			return &StorageError{Op: "set_payload", Err: err}
		}
		if err := txn.Set([]byte(manifestKey), manifestData); err != nil {
			return &StorageError{Op: "set_manifest", Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.compact()
	return nil
}

// compact reclaims value log space left by the previous snapshot.
func (s *BadgerStore) compact() {
	if s.inMemory {
		return
	}
	if err := s.db.RunValueLogGC(gcDiscardRatio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		s.logger.Warn("badger value log GC error", "error", err)
	}
}

func readManifestTxn(txn *badger.Txn) (*Manifest, error) {
	item, err := txn.Get([]byte(manifestKey))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, &StorageError{Op: "get_manifest", Err: err}
	}

	var m Manifest
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &m)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: parsing manifest: %v", ErrCorrupted, err)
	}
	if m.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrVersionMismatch, FormatVersion, m.FormatVersion)
	}
	return &m, nil
}
