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
	"slices"
	"sync"
)

// Index maps canonical codes to nodes.
//
// # Description
//
// Index is the single source of truth for code resolution. The tree
// builder registers nodes as it creates them; after a snapshot is restored
// the index is rebuilt from the tree alone with RebuildFrom.
//
// # Thread Safety
//
// Index is safe for concurrent use.
type Index struct {
	nodes map[string]*Node
	mu    sync.RWMutex
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{nodes: make(map[string]*Node)}
}

// Register inserts or overwrites the mapping node.Code -> node.
//
// # Inputs
//
//   - node: Node to register. Must not be nil.
//
// # Outputs
//
//   - error: ErrNilNode if node is nil.
//
// # Thread Safety
//
// Safe for concurrent use.
func (x *Index) Register(node *Node) error {
	if node == nil {
		return ErrNilNode
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.nodes[NormalizeCode(node.Code)] = node
	return nil
}

// RebuildFrom replaces the index contents with every node reachable from root.
//
// # Description
//
// Walks the tree in pre-order, registering root itself first. Nodes that
// were never expanded count as having zero children. Rebuilding twice from
// the same root yields the same index.
//
// # Inputs
//
//   - root: Root of the tree to index. Must not be nil.
//
// # Outputs
//
//   - error: ErrNilRoot if root is nil.
//
// # Thread Safety
//
// Safe for concurrent use. Readers observe either the old or the new contents.
func (x *Index) RebuildFrom(root *Node) error {
	if root == nil {
		return ErrNilRoot
	}
	nodes := make(map[string]*Node)
	for n := range root.All() {
		nodes[NormalizeCode(n.Code)] = n
	}

	x.mu.Lock()
	x.nodes = nodes
	x.mu.Unlock()
	return nil
}

// Get resolves a code to its node.
//
// # Description
//
// The code is normalized before lookup, so "250.01" and "25001" are
// equivalent. An empty code resolves to the root sentinel.
//
// # Inputs
//
//   - code: Code in canonical or display form, or "" for the root.
//
// # Outputs
//
//   - *Node: The node, or nil if absent.
//   - bool: False if the code is not indexed.
//
// # Thread Safety
//
// Safe for concurrent use.
func (x *Index) Get(code string) (*Node, bool) {
	key := RootCode
	if code != "" {
		key = NormalizeCode(code)
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	n, ok := x.nodes[key]
	return n, ok
}

// Len returns the number of indexed codes.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.nodes)
}

// Codes returns every indexed code in sorted order.
func (x *Index) Codes() []string {
	x.mu.RLock()
	codes := make([]string, 0, len(x.nodes))
	for code := range x.nodes {
		codes = append(codes, code)
	}
	x.mu.RUnlock()

	slices.Sort(codes)
	return codes
}

// sameAs reports whether both indexes map identical codes to identical nodes.
// The first differing code is returned for diagnostics.
func (x *Index) sameAs(other *Index) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	for code, n := range x.nodes {
		if other.nodes[code] != n {
			return code, false
		}
	}
	for code := range other.nodes {
		if _, ok := x.nodes[code]; !ok {
			return code, false
		}
	}
	return "", true
}
