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
	"context"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
	"github.com/AleutianAI/icd9cms/pkg/telemetry"
)

const tracerName = "icd9.query"

// queryCount counts queries by name and outcome. Created against the global
// meter provider, which delegates to whatever telemetry.Init installs.
var queryCount = sync.OnceValue(func() metric.Int64Counter {
	counter, err := otel.Meter(tracerName).Int64Counter("icd9.query.count",
		metric.WithDescription("Hierarchy queries by name and outcome"))
	if err != nil {
		otel.Handle(err)
		return noop.Int64Counter{}
	}
	return counter
})

func countQuery(ctx context.Context, name string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	queryCount().Add(ctx, 1, metric.WithAttributes(
		attribute.String("query", name),
		attribute.String("outcome", outcome),
	))
}

// Querier runs queries against a loaded tree.
//
// # Description
//
// Querier resolves codes through the tree's index, so dotted and undotted
// forms are equivalent and an empty code means the root. Unknown codes
// yield a *hierarchy.CodeNotFoundError.
//
// # Thread Safety
//
// Querier is safe for concurrent use.
type Querier struct {
	tree *hierarchy.Tree
}

// NewQuerier creates a Querier over tree.
func NewQuerier(tree *hierarchy.Tree) *Querier {
	return &Querier{tree: tree}
}

// Tree returns the queried tree.
func (q *Querier) Tree() *hierarchy.Tree {
	return q.tree
}

// Search resolves a single code.
//
// # Inputs
//
//   - ctx: Context for tracing. Must not be nil.
//   - code: Code in either form; "" resolves to the root.
//
// # Outputs
//
//   - *NodeResult: The node and its root-to-node path.
//   - error: *hierarchy.CodeNotFoundError for unknown codes.
func (q *Querier) Search(ctx context.Context, code string) (*NodeResult, error) {
	n, span, err := q.begin(ctx, "search", code)
	defer span.End()
	if err != nil {
		return nil, err
	}
	return &NodeResult{
		APIVersion: APIVersion,
		Query:      "search",
		Code:       code,
		Node:       ViewOf(n),
		Path:       n.Path(),
	}, nil
}

// Ancestors lists the codes above a node, nearest first, root included.
func (q *Querier) Ancestors(ctx context.Context, code string, opts Options) (*CodeListResult, error) {
	n, span, err := q.begin(ctx, "ancestors", code)
	defer span.End()
	if err != nil {
		return nil, err
	}

	result := newCodeList("ancestors", code, opts.Depth)
	result.Codes = truncate(n.Ancestors(opts.Depth), opts.limit(), &result.Truncated)
	result.Count = len(result.Codes)
	span.SetAttributes(attribute.Int("query.count", result.Count))
	return result, nil
}

// Descendants lists the codes below a node breadth-first, level by level.
func (q *Querier) Descendants(ctx context.Context, code string, opts Options) (*CodeListResult, error) {
	n, span, err := q.begin(ctx, "descendants", code)
	defer span.End()
	if err != nil {
		return nil, err
	}

	result := newCodeList("descendants", code, opts.Depth)
	result.Codes = truncate(n.Descendants(opts.Depth), opts.limit(), &result.Truncated)
	result.Count = len(result.Codes)
	span.SetAttributes(attribute.Int("query.count", result.Count))
	return result, nil
}

// Leaves lists the assignable codes below a node in child order.
// Options.Depth is ignored.
func (q *Querier) Leaves(ctx context.Context, code string, opts Options) (*NodeListResult, error) {
	n, span, err := q.begin(ctx, "leaves", code)
	defer span.End()
	if err != nil {
		return nil, err
	}

	result := newNodeList("leaves", code)
	limit := opts.limit()
	for leaf := range n.Leaves() {
		if len(result.Nodes) == limit {
			result.Truncated = true
			break
		}
		result.Nodes = append(result.Nodes, ViewOf(leaf))
	}
	result.Count = len(result.Nodes)
	span.SetAttributes(attribute.Int("query.count", result.Count))
	return result, nil
}

// Siblings lists the other children of a node's parent.
//
// The root has no parent: its result has nil Nodes and no Parent, which
// is distinct from the empty list of an only child.
func (q *Querier) Siblings(ctx context.Context, code string) (*NodeListResult, error) {
	n, span, err := q.begin(ctx, "siblings", code)
	defer span.End()
	if err != nil {
		return nil, err
	}

	result := newNodeList("siblings", code)
	siblings, ok := n.Siblings()
	if !ok {
		result.Nodes = nil
		return result, nil
	}
	result.Parent = n.Parent().Code
	for _, s := range siblings {
		result.Nodes = append(result.Nodes, ViewOf(s))
	}
	result.Count = len(result.Nodes)
	return result, nil
}

// Subtree returns a nested view of a node and its descendants.
//
// # Description
//
// Built iteratively in pre-order. Depth counts levels below the node; 0
// yields the node alone. Once Limit nodes are included the rest are left
// out and Truncated is set.
func (q *Querier) Subtree(ctx context.Context, code string, opts Options) (*SubtreeResult, error) {
	n, span, err := q.begin(ctx, "subtree", code)
	defer span.End()
	if err != nil {
		return nil, err
	}

	result := &SubtreeResult{APIVersion: APIVersion, Query: "subtree", Code: code, Depth: opts.Depth}
	limit := opts.limit()

	type frame struct {
		node  *hierarchy.Node
		view  *TreeView
		level int
	}
	result.Tree = &TreeView{NodeView: ViewOf(n)}
	result.Count = 1
	stack := []frame{{node: n, view: result.Tree}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if opts.Depth >= 0 && f.level >= opts.Depth {
			continue
		}

		children := f.node.Children()
		for _, c := range children {
			if result.Count >= limit {
				result.Truncated = true
				break
			}
			child := &TreeView{NodeView: ViewOf(c)}
			f.view.Children = append(f.view.Children, child)
			result.Count++
		}
		// Push in reverse so the first child is expanded first.
		for i := len(f.view.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: children[i], view: f.view.Children[i], level: f.level + 1})
		}
	}

	span.SetAttributes(attribute.Int("query.count", result.Count))
	return result, nil
}

// Subsumes reports whether code a is code b or one of its ancestors.
func (q *Querier) Subsumes(ctx context.Context, a, b string) (*SubsumesResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if q.tree == nil {
		return nil, ErrNoTree
	}
	_, span := telemetry.StartSpan(ctx, tracerName, "Querier.subsumes",
		trace.WithAttributes(attribute.String("query.a", a), attribute.String("query.b", b)))
	defer span.End()

	ok, err := q.tree.Subsumes(a, b)
	countQuery(ctx, "subsumes", err)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &SubsumesResult{APIVersion: APIVersion, Query: "subsumes", A: a, B: b, Subsumes: ok}, nil
}

// begin validates inputs, starts the query span and resolves code.
// The returned span is always non-nil and must be ended by the caller.
func (q *Querier) begin(ctx context.Context, name, code string) (*hierarchy.Node, trace.Span, error) {
	if ctx == nil {
		return nil, trace.SpanFromContext(context.Background()), ErrNilContext
	}
	_, span := telemetry.StartSpan(ctx, tracerName, "Querier."+name,
		trace.WithAttributes(attribute.String("query.code", code)))
	if q.tree == nil {
		return nil, span, ErrNoTree
	}

	n, err := q.tree.Lookup(code)
	countQuery(ctx, name, err)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, span, err
	}
	return n, span, nil
}

func truncate(codes []string, limit int, truncated *bool) []string {
	if len(codes) > limit {
		*truncated = true
		return codes[:limit]
	}
	return codes
}

// =============================================================================
// Parameter parsing
// =============================================================================

// ParseDepth parses a depth parameter.
//
// "", "all" and "none" mean unlimited, as does any negative number.
func ParseDepth(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "none":
		return hierarchy.Unlimited, nil
	}
	d, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, &ParamError{Name: "depth", Value: s, Err: err}
	}
	if d < 0 {
		return hierarchy.Unlimited, nil
	}
	return d, nil
}

// ParseLimit parses a limit parameter. "" yields 0, the default.
func ParseLimit(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ParamError{Name: "limit", Value: s, Err: err}
	}
	if n < 0 {
		return 0, &ParamError{Name: "limit", Value: s, Err: ErrInvalidLimit}
	}
	return n, nil
}
