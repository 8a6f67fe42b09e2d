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

import "fmt"

// Node is one element of the classification: a chapter, section, category,
// or assignable diagnosis code.
//
// # Fields
//
//   - Code: Canonical dot-free code. Unique across the tree.
//   - ShortDesc: Brief description. Always present.
//   - LongDesc: Authoritative long description. Nil for branch nodes.
//   - IsLeaf: True only for assignable diagnosis codes.
//
// # Ownership
//
// A node owns its children. The parent link is a non-owning back reference
// set by AddChild and never exposed for mutation.
//
// # Expansion
//
// A node whose children have never been populated is "not expanded". This
// is distinct from a node that was expanded and turned out to have zero
// children. Expanded reports which case applies.
type Node struct {
	Code      string
	ShortDesc string
	LongDesc  *string
	IsLeaf    bool

	parent   *Node
	children []*Node
	expanded bool
}

// NewRoot creates the sentinel root node.
//
// The root is expanded from the start; top-level chapters are attached to it
// with AddChild.
func NewRoot() *Node {
	return &Node{
		Code:      RootCode,
		ShortDesc: RootShortDesc,
		expanded:  true,
	}
}

// NewBranch creates an unexpanded, non-leaf node.
//
// Inputs:
//
//	code - Code in canonical or display form. Dots are stripped.
//	shortDesc - Brief description.
func NewBranch(code, shortDesc string) *Node {
	return &Node{
		Code:      NormalizeCode(code),
		ShortDesc: shortDesc,
	}
}

// NewLeaf creates a leaf node carrying the authoritative long description.
//
// An empty longDesc leaves LongDesc nil.
func NewLeaf(code, shortDesc, longDesc string) *Node {
	n := &Node{
		Code:      NormalizeCode(code),
		ShortDesc: shortDesc,
		IsLeaf:    true,
	}
	if longDesc != "" {
		n.LongDesc = &longDesc
	}
	return n
}

// Parent returns the containing node, or nil for the root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns the ordered children. The returned slice is shared with
// the node and must not be modified.
func (n *Node) Children() []*Node {
	return n.children
}

// Expanded reports whether the node's children have been populated.
func (n *Node) Expanded() bool {
	return n.expanded
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool {
	return n.parent == nil
}

// LongDescription returns the long description and whether one is present.
func (n *Node) LongDescription() (string, bool) {
	if n.LongDesc == nil {
		return "", false
	}
	return *n.LongDesc, true
}

// AddChild appends child to the node's children and links it back.
//
// Description:
//
//	Marks the node as expanded. A child can belong to only one parent, so
//	a child that is already linked is rejected rather than moved.
//
// Inputs:
//
//	child - Node to attach. Must not be nil, n itself, or already linked,
//	        and must carry a short description.
//
// Outputs:
//
//	error - ErrNilNode, ErrSelfLink, ErrAlreadyLinked, or ErrEmptyShortDesc.
func (n *Node) AddChild(child *Node) error {
	if child == nil {
		return ErrNilNode
	}
	if child == n {
		return ErrSelfLink
	}
	if child.parent != nil {
		return fmt.Errorf("%w: %s is a child of %s", ErrAlreadyLinked, child.Code, child.parent.Code)
	}
	if child.ShortDesc == "" {
		return fmt.Errorf("%w: %s", ErrEmptyShortDesc, child.Code)
	}
	child.parent = n
	n.children = append(n.children, child)
	n.expanded = true
	return nil
}

// Expand marks the node as expanded without adding children.
//
// Used for lowest-level categories, which are expanded with zero children
// and later receive their diagnosis codes from the dataset.
func (n *Node) Expand() {
	n.expanded = true
}

// MarkLeaf flags the node as an assignable diagnosis code.
func (n *Node) MarkLeaf() {
	n.IsLeaf = true
}

// Depth returns the number of parent links between the node and the root.
func (n *Node) Depth() int {
	depth := 0
	for p := n.parent; p != nil; p = p.parent {
		depth++
	}
	return depth
}

// String returns "code:short:long", with "<nil>" for a missing long description.
func (n *Node) String() string {
	long := "<nil>"
	if n.LongDesc != nil {
		long = *n.LongDesc
	}
	return fmt.Sprintf("%s:%s:%s", n.Code, n.ShortDesc, long)
}
