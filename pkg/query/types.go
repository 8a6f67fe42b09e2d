// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
)

// API version for JSON output.
const APIVersion = "1.0"

// Default limits.
const (
	DefaultMaxResults = 20000
	DefaultTreeDepth  = 2
)

// Options bounds a query.
type Options struct {
	// Depth limits traversal. Negative = unlimited, 0 = nothing.
	Depth int

	// Limit caps returned items. 0 = DefaultMaxResults.
	Limit int
}

// DefaultOptions returns an unbounded depth with the default result cap.
func DefaultOptions() Options {
	return Options{Depth: hierarchy.Unlimited, Limit: DefaultMaxResults}
}

func (o Options) limit() int {
	if o.Limit <= 0 {
		return DefaultMaxResults
	}
	return o.Limit
}

// NodeView is the serialized form of a node.
type NodeView struct {
	Code       string  `json:"code"`
	AltCode    string  `json:"alt_code"`
	ShortDesc  string  `json:"short_desc"`
	LongDesc   *string `json:"long_desc,omitempty"`
	IsLeaf     bool    `json:"is_leaf"`
	Depth      int     `json:"depth"`
	Parent     string  `json:"parent,omitempty"`
	ChildCount int     `json:"child_count"`
	Expanded   bool    `json:"expanded"`
}

// ViewOf converts a node to its view.
func ViewOf(n *hierarchy.Node) NodeView {
	v := NodeView{
		Code:       n.Code,
		AltCode:    n.AltCode(),
		ShortDesc:  n.ShortDesc,
		LongDesc:   n.LongDesc,
		IsLeaf:     n.IsLeaf,
		Depth:      n.Depth(),
		ChildCount: len(n.Children()),
		Expanded:   n.Expanded(),
	}
	if p := n.Parent(); p != nil {
		v.Parent = p.Code
	}
	return v
}

// NodeResult holds a single resolved node.
type NodeResult struct {
	APIVersion string   `json:"api_version"`
	Query      string   `json:"query"`
	Code       string   `json:"code"`
	Node       NodeView `json:"node"`

	// Path lists codes from the root to the node.
	Path []string `json:"path"`
}

// CodeListResult holds a list of codes, e.g. ancestors or descendants.
type CodeListResult struct {
	APIVersion string   `json:"api_version"`
	Query      string   `json:"query"`
	Code       string   `json:"code"`
	Depth      int      `json:"depth"`
	Codes      []string `json:"codes"`
	Count      int      `json:"count"`
	Truncated  bool     `json:"truncated,omitempty"`
}

// NodeListResult holds a list of nodes, e.g. leaves or siblings.
//
// For siblings, Parent is the shared parent's code. The root has no parent,
// so its Nodes is nil (JSON null) rather than an empty list.
type NodeListResult struct {
	APIVersion string     `json:"api_version"`
	Query      string     `json:"query"`
	Code       string     `json:"code"`
	Parent     string     `json:"parent,omitempty"`
	Nodes      []NodeView `json:"nodes"`
	Count      int        `json:"count"`
	Truncated  bool       `json:"truncated,omitempty"`
}

// NoParent reports a siblings result for the root.
func (r *NodeListResult) NoParent() bool {
	return r.Nodes == nil
}

// TreeView is a node with its nested children.
type TreeView struct {
	NodeView
	Children []*TreeView `json:"children,omitempty"`
}

// SubtreeResult holds a nested view rooted at Code.
type SubtreeResult struct {
	APIVersion string    `json:"api_version"`
	Query      string    `json:"query"`
	Code       string    `json:"code"`
	Depth      int       `json:"depth"`
	Tree       *TreeView `json:"tree"`
	Count      int       `json:"count"`
	Truncated  bool      `json:"truncated,omitempty"`
}

// SubsumesResult answers whether A is B or one of B's ancestors.
type SubsumesResult struct {
	APIVersion string `json:"api_version"`
	Query      string `json:"query"`
	A          string `json:"a"`
	B          string `json:"b"`
	Subsumes   bool   `json:"subsumes"`
}

func newCodeList(query, code string, depth int) *CodeListResult {
	return &CodeListResult{APIVersion: APIVersion, Query: query, Code: code, Depth: depth, Codes: make([]string, 0)}
}

func newNodeList(query, code string) *NodeListResult {
	return &NodeListResult{APIVersion: APIVersion, Query: query, Code: code, Nodes: make([]NodeView, 0)}
}
