// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
	"github.com/AleutianAI/icd9cms/pkg/query"
)

var (
	codeStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	leafStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	enumeratorDim = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).PaddingRight(1)
	truncatedNote = dimStyle.Render("(results truncated, use --limit to see more)")
)

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}

// output writes v as JSON when --json is set and calls text otherwise.
func (a *app) output(v any, text func(w io.Writer)) error {
	if a.jsonOutput {
		return writeJSON(a.stdout, v)
	}
	text(a.stdout)
	return nil
}

// label renders "alt-code  short description" for one node.
func label(v query.NodeView) string {
	code := codeStyle.Render(v.AltCode)
	if v.IsLeaf {
		code = leafStyle.Render(v.AltCode)
	}
	if v.ShortDesc == "" {
		return code
	}
	return code + "  " + v.ShortDesc
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// =============================================================================
// Text Renderers
// =============================================================================

func outputNodeText(w io.Writer, r *query.NodeResult) {
	n := r.Node
	fmt.Fprintln(w, label(n))
	if n.LongDesc != nil {
		fmt.Fprintf(w, "  Long:      %s\n", *n.LongDesc)
	}
	fmt.Fprintf(w, "  Leaf:      %s\n", yesNo(n.IsLeaf))
	fmt.Fprintf(w, "  Depth:     %d\n", n.Depth)
	fmt.Fprintf(w, "  Children:  %d\n", n.ChildCount)
	if !n.Expanded {
		fmt.Fprintln(w, "  Expanded:  no")
	}
	fmt.Fprintf(w, "  Path:      %s\n", strings.Join(r.Path, " > "))
}

// outputCodesText lists codes with their descriptions looked up in t.
func outputCodesText(w io.Writer, title string, r *query.CodeListResult, t *hierarchy.Tree) {
	fmt.Fprintf(w, "%s of %s:\n\n", title, r.Code)
	if r.Count == 0 {
		fmt.Fprintln(w, "  None.")
		return
	}
	for _, code := range r.Codes {
		if n, ok := t.Search(code); ok {
			fmt.Fprintf(w, "  %s\n", label(query.ViewOf(n)))
		} else {
			fmt.Fprintf(w, "  %s\n", code)
		}
	}
	fmt.Fprintf(w, "\n%d codes\n", r.Count)
	if r.Truncated {
		fmt.Fprintln(w, truncatedNote)
	}
}

func outputNodesText(w io.Writer, title string, r *query.NodeListResult) {
	fmt.Fprintf(w, "%s of %s:\n\n", title, r.Code)
	if r.NoParent() {
		fmt.Fprintln(w, "  Not applicable: the root has no parent.")
		return
	}
	if r.Count == 0 {
		fmt.Fprintln(w, "  None.")
		return
	}
	for _, v := range r.Nodes {
		fmt.Fprintf(w, "  %s\n", label(v))
	}
	fmt.Fprintf(w, "\n%d nodes\n", r.Count)
	if r.Truncated {
		fmt.Fprintln(w, truncatedNote)
	}
}

func outputSubsumesText(w io.Writer, r *query.SubsumesResult) {
	verb := "does not subsume"
	if r.Subsumes {
		verb = "subsumes"
	}
	fmt.Fprintf(w, "%s %s %s\n", r.A, verb, r.B)
}

// outputTreeText draws the subtree with box-drawing branches.
func outputTreeText(w io.Writer, r *query.SubtreeResult) {
	fmt.Fprintln(w, renderTree(r.Tree).String())
	fmt.Fprintf(w, "\n%d nodes\n", r.Count)
	if r.Truncated {
		fmt.Fprintln(w, truncatedNote)
	}
}

func renderTree(v *query.TreeView) *tree.Tree {
	t := tree.Root(treeLabel(v)).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(enumeratorDim)
	for _, child := range v.Children {
		if len(child.Children) == 0 {
			t.Child(treeLabel(child))
			continue
		}
		t.Child(renderTree(child))
	}
	return t
}

// treeLabel marks nodes whose children were cut off by the depth limit.
func treeLabel(v *query.TreeView) string {
	s := label(v.NodeView)
	if len(v.Children) == 0 && v.ChildCount > 0 {
		s += dimStyle.Render(fmt.Sprintf(" (+%d)", v.ChildCount))
	}
	return s
}
