// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package query answers hierarchy questions with JSON-ready results.
//
// It is the layer shared by the icd9 CLI and the HTTP API: both resolve a
// code, walk the tree, and print or serve the same result types, each
// stamped with APIVersion.
//
// # Supported Queries
//
//   - Search: one node with its path from the root
//   - Ancestors: nearest-first codes up to the root
//   - Descendants: breadth-first codes, level by level
//   - Leaves: assignable codes below a node
//   - Siblings: other children of the same parent
//   - Subtree: nested view for tree rendering
//   - Subsumes: whether one code is the other or one of its ancestors
//
// # Limits
//
// Depth follows hierarchy.Unlimited: any negative value walks the whole
// tree. Limit caps the number of returned items; results report Truncated
// when more were available.
package query
