// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hierarchy

import (
	"context"
	"errors"
	"fmt"
)

// Loader restores a persisted tree.
//
// Implementations return an error wrapping ErrSnapshotUnavailable when the
// snapshot is missing or cannot be decoded. A partially decoded tree must
// never be returned.
type Loader interface {
	Load(ctx context.Context) (*Node, error)
}

// Tree owns a root node and the index that resolves codes within it.
//
// # Description
//
// Tree is the query entry point. It is constructed once, either from a
// freshly built root (NewTree, NewTreeWithIndex) or from a snapshot (Load),
// and passed to every query afterwards.
//
// # Thread Safety
//
// Safe for concurrent reads once constructed.
type Tree struct {
	root  *Node
	index *Index
}

// NewTree indexes root and returns a Tree.
//
// # Description
//
// Builds the index by walking the tree. Fails if two nodes share a code,
// since the index could then resolve only one of them, or if any node has
// an empty short description.
//
// # Inputs
//
//   - root: Root of a fully linked tree. Must not be nil.
//
// # Outputs
//
//   - *Tree: The tree.
//   - error: ErrNilRoot, ErrDuplicateCode, or ErrEmptyShortDesc.
func NewTree(root *Node) (*Tree, error) {
	if root == nil {
		return nil, ErrNilRoot
	}
	index := NewIndex()
	if err := index.RebuildFrom(root); err != nil {
		return nil, err
	}

	count, err := countNodes(root)
	if err != nil {
		return nil, err
	}
	if count != index.Len() {
		return nil, fmt.Errorf("%w: %d nodes but %d distinct codes", ErrDuplicateCode, count, index.Len())
	}
	return &Tree{root: root, index: index}, nil
}

// NewTreeWithIndex wraps a root and an index populated during acquisition.
//
// # Description
//
// Cross-checks the supplied index against one rebuilt purely from the
// tree structure. Any difference means a node was registered but never
// linked, or linked but never registered.
//
// # Outputs
//
//   - *Tree: The tree using the supplied index.
//   - error: ErrNilRoot, ErrDuplicateCode, ErrEmptyShortDesc, or
//     ErrIndexMismatch.
func NewTreeWithIndex(root *Node, index *Index) (*Tree, error) {
	if index == nil {
		return NewTree(root)
	}
	rebuilt, err := NewTree(root)
	if err != nil {
		return nil, err
	}
	if code, ok := index.sameAs(rebuilt.index); !ok {
		return nil, fmt.Errorf("%w: code %q", ErrIndexMismatch, code)
	}
	return &Tree{root: root, index: index}, nil
}

// Load restores a tree through loader and rebuilds its index.
//
// # Description
//
// The tree is either fully available or Load fails; no partial tree is
// exposed. Every failure is reported as ErrSnapshotUnavailable so callers
// can tell it apart from an unknown code.
//
// # Inputs
//
//   - ctx: Context for cancellation. Must not be nil.
//   - loader: Snapshot source. Must not be nil.
//
// # Outputs
//
//   - *Tree: The restored tree.
//   - error: Wraps ErrSnapshotUnavailable on any failure.
func Load(ctx context.Context, loader Loader) (*Tree, error) {
	if loader == nil {
		return nil, fmt.Errorf("%w: no snapshot loader configured", ErrSnapshotUnavailable)
	}
	root, err := loader.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrSnapshotUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}
	if root == nil {
		return nil, fmt.Errorf("%w: snapshot has no root", ErrSnapshotUnavailable)
	}

	tree, err := NewTree(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}
	return tree, nil
}

// Root returns the sentinel root.
func (t *Tree) Root() *Node {
	return t.root
}

// Index returns the code index.
func (t *Tree) Index() *Index {
	return t.index
}

// Size returns the number of nodes, root included.
func (t *Tree) Size() int {
	return t.index.Len()
}

// Search resolves a code to its node.
//
// An empty code returns the root. An unknown code returns (nil, false);
// it is an expected outcome, not an error.
func (t *Tree) Search(code string) (*Node, bool) {
	return t.index.Get(code)
}

// Lookup is Search for callers that need an error value.
//
// Returns a *CodeNotFoundError wrapping ErrNotFound for unknown codes.
func (t *Tree) Lookup(code string) (*Node, error) {
	n, ok := t.index.Get(code)
	if !ok {
		return nil, &CodeNotFoundError{Code: code}
	}
	return n, nil
}

// Subsumes reports whether code a is b itself or one of b's ancestors.
//
// # Outputs
//
//   - bool: True if a subsumes b.
//   - error: *CodeNotFoundError if either code is unknown.
func (t *Tree) Subsumes(a, b string) (bool, error) {
	na, err := t.Lookup(a)
	if err != nil {
		return false, err
	}
	nb, err := t.Lookup(b)
	if err != nil {
		return false, err
	}
	return na == nb || na.IsAncestorOf(nb), nil
}

// Verify checks that the index matches a fresh rebuild from the root.
func (t *Tree) Verify() error {
	rebuilt := NewIndex()
	if err := rebuilt.RebuildFrom(t.root); err != nil {
		return err
	}
	if code, ok := t.index.sameAs(rebuilt); !ok {
		return fmt.Errorf("%w: code %q", ErrIndexMismatch, code)
	}
	return nil
}

func countNodes(root *Node) (int, error) {
	count := 0
	for n := range root.All() {
		if n.ShortDesc == "" {
			return 0, fmt.Errorf("%w: %s", ErrEmptyShortDesc, n.Code)
		}
		count++
	}
	return count, nil
}
