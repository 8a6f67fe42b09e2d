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
	"strings"

	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
	"github.com/AleutianAI/icd9cms/pkg/logging"
)

// EnrichStats summarizes an enrichment pass.
type EnrichStats struct {
	// MarkedLeaves counts crawled categories flagged as assignable.
	MarkedLeaves int

	// AddedLeaves counts new leaf nodes attached below a category.
	AddedLeaves int

	// Updated counts rows whose code already existed as a leaf.
	Updated int
}

// IsCategoryCode reports whether a dataset code names a crawled category
// rather than a subdivision: three characters, or four for E codes.
func IsCategoryCode(code string) bool {
	return len(code) == 3 || (strings.HasPrefix(code, "E") && len(code) == 4)
}

// Enrich applies dataset rows to a crawled hierarchy.
//
// # Description
//
// A category code marks the existing node as a leaf and records the
// dataset's long description on it. Any other code becomes a new leaf under the
// node whose code is the row's code minus its last character; a second row
// for a code that already exists updates that node in place. Rows are
// applied in order, so a five-digit code may hang below a four-digit code
// added earlier in the same pass.
//
// A row whose category or parent is missing aborts the pass. Rows applied
// before the failure remain applied; callers discard the tree.
//
// # Inputs
//
//   - index: Index of the crawled tree. New leaves are registered in it.
//   - rows: Dataset rows.
//   - logger: Optional; nil discards logs.
//
// # Outputs
//
//   - EnrichStats: Counters for the pass.
//   - error: Wraps hierarchy.ErrInconsistentHierarchy.
func Enrich(index *hierarchy.Index, rows []Row, logger *logging.Logger) (EnrichStats, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	var stats EnrichStats

	for _, row := range rows {
		code := hierarchy.NormalizeCode(row.Code)

		if existing, ok := index.Get(code); ok && code != "" {
			if existing.IsRoot() {
				return stats, fmt.Errorf("%w: dataset code %q collides with the root", hierarchy.ErrInconsistentHierarchy, code)
			}
			describe(existing, row)
			if IsCategoryCode(code) {
				stats.MarkedLeaves++
			} else {
				stats.Updated++
			}
			continue
		}

		if IsCategoryCode(code) {
			return stats, fmt.Errorf("%w: category %q is not in the crawled hierarchy",
				hierarchy.ErrInconsistentHierarchy, code)
		}
		if len(code) < 2 {
			return stats, fmt.Errorf("%w: malformed code %q", hierarchy.ErrInconsistentHierarchy, row.Code)
		}

		parentCode := code[:len(code)-1]
		parent, ok := index.Get(parentCode)
		if !ok {
			return stats, &hierarchy.InconsistentHierarchyError{Code: code, ParentCode: parentCode}
		}

		short := row.ShortDesc
		if short == "" {
			short = row.LongDesc
		}
		leaf := hierarchy.NewLeaf(code, short, row.LongDesc)
		if err := parent.AddChild(leaf); err != nil {
			return stats, fmt.Errorf("attach %s under %s: %w", code, parentCode, err)
		}
		if err := index.Register(leaf); err != nil {
			return stats, err
		}
		stats.AddedLeaves++
		logger.Debug("created leaf node", "code", leaf.Code, "desc", leaf.ShortDesc)
	}

	logger.Info("enrichment complete",
		"marked_leaves", stats.MarkedLeaves,
		"added_leaves", stats.AddedLeaves,
		"updated", stats.Updated,
	)
	return stats, nil
}

// describe flags n as a leaf and records the dataset's long description.
// A crawled short description is kept unless the crawler only had the code.
func describe(n *hierarchy.Node, row Row) {
	n.MarkLeaf()
	if row.ShortDesc != "" && (n.ShortDesc == "" || n.ShortDesc == n.AltCode()) {
		n.ShortDesc = row.ShortDesc
	}
	if row.LongDesc != "" {
		long := row.LongDesc
		n.LongDesc = &long
	}
}
