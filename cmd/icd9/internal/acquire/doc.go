// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package acquire builds the ICD-9-CM hierarchy from its two upstream sources.
//
// The chapter, section and category structure is crawled from an
// icd9data.com-style site, one page per branch. Assignable diagnosis codes
// and their descriptions come from the CMS "DESC_LONG_SHORT_DX" workbook.
//
//	┌──────────────┐   pages    ┌─────────┐  branch nodes  ┌────────┐
//	│ upstream web │ ─────────▶ │ Crawler │ ─────────────▶ │        │
//	└──────────────┘            └─────────┘                │ Index  │
//	┌──────────────┐   rows     ┌─────────┐  leaf nodes    │ + root │
//	│  CMS .xlsx   │ ─────────▶ │ Enrich  │ ─────────────▶ │        │
//	└──────────────┘            └─────────┘                └────────┘
//
// Builder ties both steps together and returns a verified hierarchy.Tree
// ready to be saved as a snapshot.
//
// # Page Kinds
//
// A branch page carries an element with class "definitionList" whose list
// items link to the next level. A lowest-level page instead lists category
// codes flagged with an image whose alt text is "Non-specific code"; those
// categories become expanded branches with no children, to be filled in by
// the dataset.
//
// # Politeness
//
// Every request waits on a token-bucket limiter. The default allows one
// request every five seconds.
package acquire
