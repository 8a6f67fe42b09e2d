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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
	"github.com/AleutianAI/icd9cms/pkg/hierarchy/hierarchytest"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "snapshot"), nil)
}

func TestFileStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)
	assert.False(t, store.Exists(ctx))

	m, err := store.Save(ctx, hierarchytest.Fixture(), "run-42")
	require.NoError(t, err)
	assert.Equal(t, "run-42", m.RunID)
	assert.Equal(t, hierarchytest.NodeCount, m.NodeCount)
	assert.True(t, store.Exists(ctx))

	root, err := store.Load(ctx)
	require.NoError(t, err)
	assertSameTree(t, hierarchytest.Fixture(), root)
}

func TestFileStore_LoadThroughHierarchy(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)
	_, err := store.Save(ctx, hierarchytest.Fixture(), "")
	require.NoError(t, err)

	tree, err := hierarchy.Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, hierarchytest.NodeCount, tree.Size())

	n, ok := tree.Search("401.1")
	require.True(t, ok)
	assert.Equal(t, []string{"401", "401-405", "390-459", hierarchy.RootCode}, n.Ancestors(hierarchy.Unlimited))
}

func TestFileStore_Manifest(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	_, err := store.Manifest(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	saved, err := store.Save(ctx, hierarchytest.Fixture(), "run-1")
	require.NoError(t, err)

	read, err := store.Manifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, read)

	raw, err := os.ReadFile(filepath.Join(store.Dir(), ManifestFileName))
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "run-1", fields["run_id"])
}

func TestFileStore_Load_Missing(t *testing.T) {
	_, err := newTestFileStore(t).Load(context.Background())
	assert.ErrorIs(t, err, hierarchy.ErrSnapshotUnavailable)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_Load_Corruption(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(t *testing.T, dir string)
		wantErr error
	}{
		{
			name: "payload tampered",
			corrupt: func(t *testing.T, dir string) {
				path := filepath.Join(dir, PayloadFileName)
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				data[len(data)/2] ^= 0xff
				require.NoError(t, os.WriteFile(path, data, 0640))
			},
			wantErr: ErrChecksumMismatch,
		},
		{
			name: "payload deleted",
			corrupt: func(t *testing.T, dir string) {
				require.NoError(t, os.Remove(filepath.Join(dir, PayloadFileName)))
			},
			wantErr: ErrNotFound,
		},
		{
			name: "manifest unparsable",
			corrupt: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName), []byte("{"), 0640))
			},
			wantErr: ErrCorrupted,
		},
		{
			name: "manifest from another format",
			corrupt: func(t *testing.T, dir string) {
				path := filepath.Join(dir, ManifestFileName)
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				data = []byte(strings.Replace(string(data), FormatVersion, "9.9", 1))
				require.NoError(t, os.WriteFile(path, data, 0640))
			},
			wantErr: ErrVersionMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newTestFileStore(t)
			_, err := store.Save(ctx, hierarchytest.Fixture(), "")
			require.NoError(t, err)

			tt.corrupt(t, store.Dir())

			root, err := store.Load(ctx)
			assert.Nil(t, root)
			assert.ErrorIs(t, err, hierarchy.ErrSnapshotUnavailable)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFileStore_Save_ReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	_, err := store.Save(ctx, hierarchytest.Fixture(), "first")
	require.NoError(t, err)

	smaller := hierarchy.NewRoot()
	require.NoError(t, smaller.AddChild(hierarchy.NewLeaf("V10", "Hx of malignant neoplasm", "")))
	_, err = store.Save(ctx, smaller, "second")
	require.NoError(t, err)

	m, err := store.Manifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", m.RunID)
	assert.Equal(t, 2, m.NodeCount)

	entries, err := os.ReadDir(filepath.Dir(store.Dir()))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp and backup directories are cleaned up")
	assert.Equal(t, "snapshot", entries[0].Name())
}

func TestFileStore_Save_CancelledKeepsPrevious(t *testing.T) {
	store := newTestFileStore(t)
	_, err := store.Save(context.Background(), hierarchytest.Fixture(), "keep")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Save(ctx, hierarchy.NewRoot(), "discard")
	require.ErrorIs(t, err, context.Canceled)

	m, err := store.Manifest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "keep", m.RunID)
}

func TestFileStore_Save_RejectsSubtree(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)
	_, err := store.Save(ctx, hierarchytest.Fixture(), "keep")
	require.NoError(t, err)

	tree := hierarchytest.Tree()
	chapter, ok := tree.Search("001-139")
	require.True(t, ok)

	_, err = store.Save(ctx, chapter, "subtree")
	require.ErrorIs(t, err, ErrNotRoot)

	m, err := store.Manifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "keep", m.RunID)
	_, err = store.Load(ctx)
	assert.NoError(t, err)
}

func TestFileStore_ExportImport(t *testing.T) {
	ctx := context.Background()
	src := newTestFileStore(t)
	_, err := src.Save(ctx, hierarchytest.Fixture(), "run-x")
	require.NoError(t, err)

	data, m, err := src.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, checksum(data), m.Checksum)

	dst := newTestFileStore(t)
	imported, err := dst.Import(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, m.Checksum, imported.Checksum)
	assert.Equal(t, "run-x", imported.RunID)

	root, err := dst.Load(ctx)
	require.NoError(t, err)
	assertSameTree(t, hierarchytest.Fixture(), root)
}

func TestFileStore_Import_RejectsCorrupt(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	_, err := store.Import(ctx, []byte{0xc1})
	assert.ErrorIs(t, err, ErrCorrupted)
	assert.False(t, store.Exists(ctx))
}
