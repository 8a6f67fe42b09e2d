// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hierarchytest provides a small, realistic ICD-9-CM tree for tests.
package hierarchytest

import "github.com/AleutianAI/icd9cms/pkg/hierarchy"

// Fixture counts.
const (
	NodeCount = 23
	LeafCount = 10
)

// Fixture builds the following tree:
//
//	n/a root
//	├── 001-139 Infectious And Parasitic Diseases
//	│   ├── 001-009 Intestinal Infectious Diseases
//	│   │   ├── 001 Cholera
//	│   │   │   ├── 0010 (leaf)
//	│   │   │   ├── 0011 (leaf)
//	│   │   │   └── 0019 (leaf)
//	│   │   └── 002 Typhoid and paratyphoid fevers
//	│   │       └── 0020 (leaf)
//	│   └── 042-042 Human Immunodeficiency Virus (HIV) Infection
//	│       └── 042 (leaf, expanded with no children)
//	├── 390-459 Diseases Of The Circulatory System
//	│   └── 401-405 Hypertensive Disease
//	│       ├── 401 Essential hypertension
//	│       │   ├── 4010 (leaf)
//	│       │   ├── 4011 (leaf)
//	│       │   └── 4019 (leaf)
//	│       └── 405 Secondary hypertension (never expanded)
//	└── E000-E999 Supplementary Classification Of External Causes
//	    └── E000-E000 External Cause Status
//	        └── E000 External cause status
//	            ├── E0000 (leaf)
//	            └── E0001 (leaf)
//
// Every call returns a fresh, unshared tree.
func Fixture() *hierarchy.Node {
	root := hierarchy.NewRoot()

	infectious := branch(root, "001-139", "Infectious And Parasitic Diseases")
	intestinal := branch(infectious, "001-009", "Intestinal Infectious Diseases")
	cholera := branch(intestinal, "001", "Cholera")
	leaf(cholera, "001.0", "Cholera d/t vib cholerae", "Cholera due to vibrio cholerae")
	leaf(cholera, "001.1", "Cholera d/t vib el tor", "Cholera due to vibrio cholerae el tor")
	leaf(cholera, "001.9", "Cholera NOS", "Cholera, unspecified")
	typhoid := branch(intestinal, "002", "Typhoid and paratyphoid fevers")
	leaf(typhoid, "002.0", "Typhoid fever", "Typhoid fever")

	hivSection := branch(infectious, "042-042", "Human Immunodeficiency Virus (HIV) Infection")
	hiv := branch(hivSection, "042", "Human immunodeficiency virus [HIV] disease")
	hiv.Expand()
	hiv.MarkLeaf()

	circulatory := branch(root, "390-459", "Diseases Of The Circulatory System")
	hypertensive := branch(circulatory, "401-405", "Hypertensive Disease")
	essential := branch(hypertensive, "401", "Essential hypertension")
	leaf(essential, "401.0", "Malignant hypertension", "Malignant essential hypertension")
	leaf(essential, "401.1", "Benign hypertension", "Benign essential hypertension")
	leaf(essential, "401.9", "Hypertension NOS", "Unspecified essential hypertension")
	secondary := hierarchy.NewBranch("405", "Secondary hypertension")
	mustAdd(hypertensive, secondary)

	external := branch(root, "E000-E999", "Supplementary Classification Of External Causes Of Injury And Poisoning")
	status := branch(external, "E000-E000", "External Cause Status")
	statusCategory := branch(status, "E000", "External cause status")
	leaf(statusCategory, "E000.0", "Civilian activity-income", "Civilian activity done for income or pay")
	leaf(statusCategory, "E000.1", "Military activity", "Military activity")

	return root
}

// Tree returns the fixture wrapped in an indexed Tree.
func Tree() *hierarchy.Tree {
	tree, err := hierarchy.NewTree(Fixture())
	if err != nil {
		panic(err)
	}
	return tree
}

func branch(parent *hierarchy.Node, code, desc string) *hierarchy.Node {
	n := hierarchy.NewBranch(code, desc)
	n.Expand()
	mustAdd(parent, n)
	return n
}

func leaf(parent *hierarchy.Node, code, short, long string) *hierarchy.Node {
	n := hierarchy.NewLeaf(code, short, long)
	mustAdd(parent, n)
	return n
}

func mustAdd(parent, child *hierarchy.Node) {
	if err := parent.AddChild(child); err != nil {
		panic(err)
	}
}
