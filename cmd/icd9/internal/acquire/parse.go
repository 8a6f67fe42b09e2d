// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package acquire

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTML markers of the upstream layout.
const (
	classDefinitionList = "definitionList"
	classIdentifier     = "identifier"
	classCategoryDesc   = "threeDigitCodeListDescription"
	altNonSpecificCode  = "Non-specific code"
)

// PageKind classifies a parsed page.
type PageKind int

const (
	// PageBranch links to further pages, one per entry.
	PageBranch PageKind = iota

	// PageLowest lists non-specific category codes and links no further.
	PageLowest
)

// String returns "branch" or "lowest".
func (k PageKind) String() string {
	if k == PageBranch {
		return "branch"
	}
	return "lowest"
}

// Entry is one code listed on a page.
type Entry struct {
	// Code as displayed, e.g. "001-139" or "250.0".
	Code string

	// ShortDesc is the trimmed description text.
	ShortDesc string

	// Href links to the entry's own page. Empty on lowest-level pages.
	Href string
}

// Page is the parsed form of one upstream page.
type Page struct {
	Kind    PageKind
	Entries []Entry
}

// ParsePage parses an upstream page.
//
// # Description
//
// If the document contains an element with class "definitionList" the page
// is a branch page: when that element is a div its first list is used,
// when it is a ul it is used directly. Each list item contributes its first
// link (code and href) and the text following it (description).
//
// Otherwise the page is a lowest-level page. Each image with alt text
// "Non-specific code" contributes the identifier and category description
// found within the image's parent element.
//
// # Inputs
//
//   - r: HTML document.
//
// # Outputs
//
//   - *Page: Parsed entries in document order.
//   - error: Non-nil only if the document cannot be tokenized.
func ParsePage(r io.Reader) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	if list := findFirst(doc, func(n *html.Node) bool { return hasClass(n, classDefinitionList) }); list != nil {
		return &Page{Kind: PageBranch, Entries: branchEntries(list)}, nil
	}
	return &Page{Kind: PageLowest, Entries: nonSpecificEntries(doc)}, nil
}

// branchEntries extracts the linked entries of a definitionList element.
func branchEntries(list *html.Node) []Entry {
	ul := list
	if list.DataAtom != atom.Ul {
		ul = findFirst(list, func(n *html.Node) bool { return n.DataAtom == atom.Ul })
		if ul == nil {
			return nil
		}
	}

	var entries []Entry
	for li := range ul.ChildNodes() {
		if li.Type != html.ElementNode || li.DataAtom != atom.Li {
			continue
		}
		link := findFirst(li, func(n *html.Node) bool { return n.DataAtom == atom.A })
		if link == nil {
			continue
		}
		code := strings.TrimSpace(textOf(link))
		if code == "" {
			continue
		}
		entries = append(entries, Entry{
			Code:      code,
			ShortDesc: textAfter(li, link),
			Href:      attr(link, "href"),
		})
	}
	return entries
}

// nonSpecificEntries extracts the categories flagged as non-specific.
func nonSpecificEntries(doc *html.Node) []Entry {
	var entries []Entry
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode || attr(n, "alt") != altNonSpecificCode || n.Parent == nil {
			continue
		}
		id := findFirst(n.Parent, func(c *html.Node) bool { return hasClass(c, classIdentifier) })
		desc := findFirst(n.Parent, func(c *html.Node) bool { return hasClass(c, classCategoryDesc) })
		if id == nil {
			continue
		}
		entry := Entry{Code: strings.TrimSpace(textOf(id))}
		if desc != nil {
			entry.ShortDesc = collapse(textOf(desc))
		}
		if entry.Code != "" {
			entries = append(entries, entry)
		}
	}
	return entries
}

// =============================================================================
// DOM helpers
// =============================================================================

// findFirst returns the first element below root, in document order,
// satisfying match. root itself is considered.
func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	if root.Type == html.ElementNode && match(root) {
		return root
	}
	for n := range root.Descendants() {
		if n.Type == html.ElementNode && match(n) {
			return n
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	return n.Type == html.ElementNode && strings.Contains(" "+attr(n, "class")+" ", " "+class+" ")
}

// textOf concatenates every text node below n.
func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for d := range n.Descendants() {
		if d.Type == html.TextNode {
			sb.WriteString(d.Data)
		}
	}
	return sb.String()
}

// textAfter returns the collapsed text of parent's children following the
// child that contains marker.
func textAfter(parent, marker *html.Node) string {
	var sb strings.Builder
	seen := false
	for c := range parent.ChildNodes() {
		if !seen {
			seen = c == marker || isAncestor(c, marker)
			continue
		}
		sb.WriteString(textOf(c))
		sb.WriteByte(' ')
	}
	return collapse(sb.String())
}

func isAncestor(a, n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == a {
			return true
		}
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
