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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/AleutianAI/icd9cms/pkg/logging"
	"github.com/AleutianAI/icd9cms/pkg/telemetry"
)

// GCSConfig locates the mirrored snapshot object.
type GCSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	ProjectID       string `yaml:"project_id"`
	Bucket          string `yaml:"bucket" validate:"required_if=Enabled true"`
	Object          string `yaml:"object"`
	CredentialsFile string `yaml:"credentials_file"`
}

// DefaultObjectName is used when GCSConfig.Object is empty.
const DefaultObjectName = "icd9/hierarchy.msgpack"

// Object is the subset of a cloud object the mirror needs.
type Object interface {
	// NewWriter opens a writer; metadata is attached to the object on Close.
	NewWriter(ctx context.Context, metadata map[string]string) io.WriteCloser

	// NewReader opens the object for reading. Returns ErrNotFound if absent.
	NewReader(ctx context.Context) (io.ReadCloser, error)

	// Location is a human-readable address, e.g. gs://bucket/object.
	Location() string
}

// GCSMirror copies snapshots between a local Store and a GCS object.
//
// # Thread Safety
//
// Safe for concurrent use if the Object is.
type GCSMirror struct {
	object Object
	client *storage.Client
	logger *logging.Logger
}

// NewGCSMirror creates a mirror backed by Google Cloud Storage.
//
// # Description
//
// Uses the credentials file when one is configured and application default
// credentials otherwise.
//
// # Outputs
//
//   - *GCSMirror: The mirror. Call Close when done.
//   - error: ErrMirrorDisabled if cfg.Enabled is false, or a client error.
func NewGCSMirror(ctx context.Context, cfg GCSConfig, logger *logging.Logger) (*GCSMirror, error) {
	if !cfg.Enabled {
		return nil, ErrMirrorDisabled
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket must not be empty")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		path := logging.ExpandPath(cfg.CredentialsFile)
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("service account key not found at path: %s: %w", path, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("service account key path is a directory: %s", path)
		}
		opts = append(opts, option.WithCredentialsFile(path))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	name := cfg.Object
	if name == "" {
		name = DefaultObjectName
	}
	obj := &gcsObject{
		handle: client.Bucket(cfg.Bucket).Object(name),
		bucket: cfg.Bucket,
		name:   name,
	}
	m := NewMirror(obj, logger)
	m.client = client
	return m, nil
}

// NewMirror creates a mirror over any Object.
func NewMirror(object Object, logger *logging.Logger) *GCSMirror {
	if logger == nil {
		logger = logging.Nop()
	}
	return &GCSMirror{object: object, logger: logger}
}

// Push uploads the verified payload of src.
//
// # Outputs
//
//   - *Manifest: Manifest of the uploaded snapshot.
//   - error: Local export failures, or upload failures wrapped in *StorageError.
func (m *GCSMirror) Push(ctx context.Context, src Store) (*Manifest, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "GCSMirror.Push")
	defer span.End()

	data, manifest, err := src.Export(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("export local snapshot: %w", err)
	}

	w := m.object.NewWriter(ctx, map[string]string{
		"format_version": manifest.FormatVersion,
		"run_id":         manifest.RunID,
		"checksum":       manifest.Checksum,
		"node_count":     strconv.Itoa(manifest.NodeCount),
	})
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		telemetry.RecordError(span, err)
		return nil, &StorageError{Op: "gcs_write", Err: err}
	}
	if err := w.Close(); err != nil {
		telemetry.RecordError(span, err)
		return nil, &StorageError{Op: "gcs_close", Err: err}
	}

	m.logger.Info("snapshot pushed",
		"location", m.object.Location(),
		"run_id", manifest.RunID,
		"bytes", manifest.SizeBytes,
	)
	return manifest, nil
}

// Pull downloads the mirrored payload and imports it into dst.
//
// The payload is fully validated by dst.Import before it replaces the
// local snapshot, so a corrupt remote object never clobbers a good one.
func (m *GCSMirror) Pull(ctx context.Context, dst Store) (*Manifest, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "GCSMirror.Pull")
	defer span.End()

	r, err := m.object.NewReader(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, &StorageError{Op: "gcs_read", Err: err}
	}

	manifest, err := dst.Import(ctx, data)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("import mirrored snapshot: %w", err)
	}

	m.logger.Info("snapshot pulled",
		"location", m.object.Location(),
		"run_id", manifest.RunID,
		"nodes", manifest.NodeCount,
	)
	return manifest, nil
}

// Location returns the mirrored object's address.
func (m *GCSMirror) Location() string {
	return m.object.Location()
}

// Close releases the storage client, if the mirror owns one.
func (m *GCSMirror) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

// gcsObject adapts a storage.ObjectHandle to Object.
type gcsObject struct {
	handle *storage.ObjectHandle
	bucket string
	name   string
}

func (o *gcsObject) NewWriter(ctx context.Context, metadata map[string]string) io.WriteCloser {
	w := o.handle.NewWriter(ctx)
	w.ContentType = "application/msgpack"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	w.Metadata = metadata
	return w
}

func (o *gcsObject) NewReader(ctx context.Context) (io.ReadCloser, error) {
	r, err := o.handle.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, o.Location())
		}
		return nil, &StorageError{Op: "gcs_open", Err: err}
	}
	return r, nil
}

func (o *gcsObject) Location() string {
	return fmt.Sprintf("gs://%s/%s", o.bucket, o.name)
}
