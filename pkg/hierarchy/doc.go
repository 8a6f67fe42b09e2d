// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hierarchy models the ICD-9-CM diagnosis classification as a tree.
//
// The tree has a sentinel root (code "n/a") whose children are the chapters.
// Chapters contain sections, sections contain three-digit categories, and
// categories contain the assignable diagnosis codes (leaves).
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                              Tree                                │
//	│  ┌──────────────────────┐        ┌────────────────────────────┐  │
//	│  │ root *Node           │───────▶│ Index (code -> *Node)      │  │
//	│  │  └─ children (owned) │ rebuild│  normalized keys, "" = root│  │
//	│  │      └─ parent (ref) │        └────────────────────────────┘  │
//	│  └──────────────────────┘                                        │
//	└──────────────────────────────────────────────────────────────────┘
//
// A parent owns its children. A child only observes its parent through an
// unexported back reference, so ownership always flows downward.
//
// # Codes
//
// Codes are stored without dots ("4011"). Every lookup normalizes its input,
// so "401.1" and "4011" resolve to the same node. AltCode re-inserts the dot
// for display.
//
// # Traversal
//
// Ancestors, Descendants, Leaves and Walk are iterative and use explicit
// stacks or queues, so very deep trees cannot exhaust the goroutine stack.
//
// # Thread Safety
//
// A Tree is built once and then only read. Concurrent reads are safe as long
// as no goroutine mutates nodes after the Tree is constructed.
package hierarchy
