// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hierarchy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
	"github.com/AleutianAI/icd9cms/pkg/hierarchy/hierarchytest"
)

// =============================================================================
// Test Helpers
// =============================================================================

type loaderFunc func(ctx context.Context) (*hierarchy.Node, error)

func (f loaderFunc) Load(ctx context.Context) (*hierarchy.Node, error) {
	return f(ctx)
}

// =============================================================================
// Construction
// =============================================================================

func TestNewTree(t *testing.T) {
	t.Run("indexes every node", func(t *testing.T) {
		tree, err := hierarchy.NewTree(hierarchytest.Fixture())
		require.NoError(t, err)
		assert.Equal(t, hierarchytest.NodeCount, tree.Size())
		assert.Equal(t, hierarchy.RootCode, tree.Root().Code)
	})

	t.Run("nil root", func(t *testing.T) {
		_, err := hierarchy.NewTree(nil)
		assert.ErrorIs(t, err, hierarchy.ErrNilRoot)
	})

	t.Run("duplicate code", func(t *testing.T) {
		root := hierarchy.NewRoot()
		a := hierarchy.NewBranch("001-139", "a")
		b := hierarchy.NewBranch("390-459", "b")
		require.NoError(t, root.AddChild(a))
		require.NoError(t, root.AddChild(b))
		require.NoError(t, a.AddChild(hierarchy.NewLeaf("4011", "x", "")))
		require.NoError(t, b.AddChild(hierarchy.NewLeaf("401.1", "y", "")))

		_, err := hierarchy.NewTree(root)
		assert.ErrorIs(t, err, hierarchy.ErrDuplicateCode)
	})

	t.Run("empty short description", func(t *testing.T) {
		root := hierarchy.NewRoot()
		chapter := hierarchy.NewBranch("001-139", "Infectious and parasitic diseases")
		require.NoError(t, root.AddChild(chapter))
		chapter.ShortDesc = ""

		_, err := hierarchy.NewTree(root)
		assert.ErrorIs(t, err, hierarchy.ErrEmptyShortDesc)
		assert.Contains(t, err.Error(), "001-139")
	})
}

func TestNewTreeWithIndex(t *testing.T) {
	t.Run("accepts a matching index", func(t *testing.T) {
		root := hierarchytest.Fixture()
		index := hierarchy.NewIndex()
		for n := range root.All() {
			require.NoError(t, index.Register(n))
		}

		tree, err := hierarchy.NewTreeWithIndex(root, index)
		require.NoError(t, err)
		assert.Same(t, index, tree.Index())
		assert.NoError(t, tree.Verify())
	})

	t.Run("nil index is rebuilt", func(t *testing.T) {
		tree, err := hierarchy.NewTreeWithIndex(hierarchytest.Fixture(), nil)
		require.NoError(t, err)
		assert.Equal(t, hierarchytest.NodeCount, tree.Size())
	})

	t.Run("registered but unlinked node", func(t *testing.T) {
		root := hierarchytest.Fixture()
		index := hierarchy.NewIndex()
		require.NoError(t, index.RebuildFrom(root))
		require.NoError(t, index.Register(hierarchy.NewLeaf("9999", "orphan", "")))

		_, err := hierarchy.NewTreeWithIndex(root, index)
		assert.ErrorIs(t, err, hierarchy.ErrIndexMismatch)
	})

	t.Run("linked but unregistered node", func(t *testing.T) {
		root := hierarchytest.Fixture()
		index := hierarchy.NewIndex()
		require.NoError(t, index.RebuildFrom(root))
		require.NoError(t, root.AddChild(hierarchy.NewBranch("V01-V91", "Supplementary")))

		_, err := hierarchy.NewTreeWithIndex(root, index)
		assert.ErrorIs(t, err, hierarchy.ErrIndexMismatch)
	})
}

// =============================================================================
// Load
// =============================================================================

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("rebuilds index from the restored root", func(t *testing.T) {
		tree, err := hierarchy.Load(ctx, loaderFunc(func(context.Context) (*hierarchy.Node, error) {
			return hierarchytest.Fixture(), nil
		}))
		require.NoError(t, err)
		assert.Equal(t, hierarchytest.NodeCount, tree.Size())

		n, ok := tree.Search("401.1")
		require.True(t, ok)
		assert.Equal(t, "4011", n.Code)
	})

	t.Run("loader failure", func(t *testing.T) {
		_, err := hierarchy.Load(ctx, loaderFunc(func(context.Context) (*hierarchy.Node, error) {
			return nil, errors.New("disk on fire")
		}))
		assert.ErrorIs(t, err, hierarchy.ErrSnapshotUnavailable)
		assert.Contains(t, err.Error(), "disk on fire")
	})

	t.Run("loader already reports unavailable", func(t *testing.T) {
		inner := errors.Join(hierarchy.ErrSnapshotUnavailable, errors.New("missing file"))
		_, err := hierarchy.Load(ctx, loaderFunc(func(context.Context) (*hierarchy.Node, error) {
			return nil, inner
		}))
		assert.Same(t, inner, err)
	})

	t.Run("nil root", func(t *testing.T) {
		_, err := hierarchy.Load(ctx, loaderFunc(func(context.Context) (*hierarchy.Node, error) {
			return nil, nil
		}))
		assert.ErrorIs(t, err, hierarchy.ErrSnapshotUnavailable)
	})

	t.Run("nil loader", func(t *testing.T) {
		_, err := hierarchy.Load(ctx, nil)
		assert.ErrorIs(t, err, hierarchy.ErrSnapshotUnavailable)
	})

	t.Run("snapshot unavailable is not a missing code", func(t *testing.T) {
		_, err := hierarchy.Load(ctx, nil)
		assert.NotErrorIs(t, err, hierarchy.ErrNotFound)
	})
}

// =============================================================================
// Search / Lookup / Subsumes
// =============================================================================

func TestSearch(t *testing.T) {
	tree := hierarchytest.Tree()

	t.Run("dotted and plain forms agree", func(t *testing.T) {
		dotted, ok := tree.Search("401.1")
		require.True(t, ok)
		plain, ok := tree.Search("4011")
		require.True(t, ok)
		assert.Same(t, dotted, plain)
	})

	t.Run("empty code is the root", func(t *testing.T) {
		n, ok := tree.Search("")
		require.True(t, ok)
		assert.Same(t, tree.Root(), n)
	})

	t.Run("root code", func(t *testing.T) {
		n, ok := tree.Search(hierarchy.RootCode)
		require.True(t, ok)
		assert.True(t, n.IsRoot())
	})

	t.Run("range codes", func(t *testing.T) {
		n, ok := tree.Search("001-139")
		require.True(t, ok)
		assert.Equal(t, "Infectious And Parasitic Diseases", n.ShortDesc)
	})

	t.Run("unknown code", func(t *testing.T) {
		n, ok := tree.Search("9999")
		assert.False(t, ok)
		assert.Nil(t, n)
	})

	t.Run("every descendant resolves to itself", func(t *testing.T) {
		for _, code := range tree.Root().Descendants(hierarchy.Unlimited) {
			n, ok := tree.Search(code)
			require.True(t, ok, code)
			assert.Equal(t, code, n.Code)
		}
	})
}

func TestLookup(t *testing.T) {
	tree := hierarchytest.Tree()

	n, err := tree.Lookup("E000.1")
	require.NoError(t, err)
	assert.Equal(t, "E0001", n.Code)

	_, err = tree.Lookup("V99")
	require.Error(t, err)
	assert.ErrorIs(t, err, hierarchy.ErrNotFound)

	var notFound *hierarchy.CodeNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "V99", notFound.Code)
}

func TestSubsumes(t *testing.T) {
	tree := hierarchytest.Tree()

	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"chapter subsumes leaf", "390-459", "401.1", true},
		{"root subsumes everything", "", "E0000", true},
		{"code subsumes itself", "4011", "401.1", true},
		{"leaf does not subsume parent", "4011", "401", false},
		{"sibling chapters", "001-139", "4011", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tree.Subsumes(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown code", func(t *testing.T) {
		_, err := tree.Subsumes("390-459", "9999")
		assert.ErrorIs(t, err, hierarchy.ErrNotFound)
	})
}
