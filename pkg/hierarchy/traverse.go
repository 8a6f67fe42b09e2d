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
	"iter"
	"slices"
)

// Unlimited disables the depth bound of Ancestors and Descendants.
// Any negative depth behaves the same way.
const Unlimited = -1

// Siblings returns the other children of the node's parent.
//
// Description:
//
//	Preserves the parent's child order and excludes n itself. The root has
//	no parent and therefore no siblings: ok is false and the slice is nil.
//	A node that is an only child returns an empty, non-nil slice with ok
//	set to true.
//
// Outputs:
//
//	[]*Node - Siblings in parent order.
//	bool - False when n is the root.
func (n *Node) Siblings() ([]*Node, bool) {
	if n.parent == nil {
		return nil, false
	}
	siblings := make([]*Node, 0, len(n.parent.children))
	for _, c := range n.parent.children {
		if c != n {
			siblings = append(siblings, c)
		}
	}
	return siblings, true
}

// AltCode returns the display form of the node's code. See FormatAltCode.
func (n *Node) AltCode() string {
	return FormatAltCode(n.Code)
}

// Leaves returns a sequence of every leaf reachable from n.
//
// Description:
//
//	A leaf yields only itself. Otherwise the sequence is the concatenation,
//	in child order, of each child's leaves. A non-leaf child with no
//	children contributes nothing. The sequence is recomputed on every range
//	and can be stopped early.
//
// Outputs:
//
//	iter.Seq[*Node] - Leaves in depth-first child order.
func (n *Node) Leaves() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		stack := []*Node{n}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if cur.IsLeaf {
				if !yield(cur) {
					return
				}
				continue
			}
			for i := len(cur.children) - 1; i >= 0; i-- {
				stack = append(stack, cur.children[i])
			}
		}
	}
}

// CountLeaves returns the number of nodes Leaves would yield.
func (n *Node) CountLeaves() int {
	count := 0
	for range n.Leaves() {
		count++
	}
	return count
}

// Ancestors returns ancestor codes, nearest first.
//
// Description:
//
//	Walks parent links upward starting at the parent of n. The root's
//	sentinel code is included as the last element of an unbounded walk.
//	The walk stops after depth codes; a negative depth walks to the root
//	and a depth of 0 returns nothing.
//
// Inputs:
//
//	depth - Maximum number of codes, or Unlimited.
//
// Outputs:
//
//	[]string - Ancestor codes. Empty, never nil.
//
// Example:
//
//	// leaf is 4011 (benign essential hypertension)
//	leaf.Ancestors(1)         // ["401"]
//	leaf.Ancestors(Unlimited) // ["401", "401-405", "390-459", "n/a"]
func (n *Node) Ancestors(depth int) []string {
	ancestors := make([]string, 0)
	for p := n.parent; p != nil; p = p.parent {
		if depth >= 0 && len(ancestors) >= depth {
			break
		}
		ancestors = append(ancestors, p.Code)
	}
	return ancestors
}

// Descendants returns descendant codes in breadth-first order.
//
// Description:
//
//	All codes at distance 1 come first in child order, then all codes at
//	distance 2, and so on. The walk stops after depth levels; a negative
//	depth includes every descendant.
//
// Inputs:
//
//	depth - Maximum number of levels, or Unlimited.
//
// Outputs:
//
//	[]string - Descendant codes. Empty, never nil.
func (n *Node) Descendants(depth int) []string {
	descendants := make([]string, 0)
	level := n.children
	for d := 0; len(level) > 0; d++ {
		if depth >= 0 && d >= depth {
			break
		}
		var next []*Node
		for _, c := range level {
			descendants = append(descendants, c.Code)
			next = append(next, c.children...)
		}
		level = next
	}
	return descendants
}

// All returns a pre-order sequence of n and every node below it.
func (n *Node) All() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		stack := []*Node{n}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if !yield(cur) {
				return
			}
			for i := len(cur.children) - 1; i >= 0; i-- {
				stack = append(stack, cur.children[i])
			}
		}
	}
}

// Path returns the codes from the root down to and including n.
func (n *Node) Path() []string {
	path := n.Ancestors(Unlimited)
	slices.Reverse(path)
	return append(path, n.Code)
}

// IsAncestorOf reports whether n appears on other's parent chain.
func (n *Node) IsAncestorOf(other *Node) bool {
	if other == nil {
		return false
	}
	for p := other.parent; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}
