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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFixture(t *testing.T, name string) *Page {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	require.NoError(t, err)
	defer f.Close()

	page, err := ParsePage(f)
	require.NoError(t, err)
	return page
}

func TestParsePage_DivDefinitionList(t *testing.T) {
	page := parseFixture(t, "root.htm")
	assert.Equal(t, PageBranch, page.Kind)
	assert.Equal(t, []Entry{
		{Code: "001-139", ShortDesc: "Infectious And Parasitic Diseases", Href: "/2015/Volume1/001-139/default.htm"},
		{Code: "390-459", ShortDesc: "Diseases Of The Circulatory System", Href: "/2015/Volume1/390-459/default.htm"},
	}, page.Entries)
}

func TestParsePage_UlDefinitionList(t *testing.T) {
	page := parseFixture(t, "chapter_001-139.htm")
	assert.Equal(t, PageBranch, page.Kind)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "042-042", page.Entries[1].Code)
	assert.Equal(t, "Human Immunodeficiency Virus (Hiv) Infection", page.Entries[1].ShortDesc)
}

func TestParsePage_NonSpecificCodes(t *testing.T) {
	page := parseFixture(t, "section_001-009.htm")
	assert.Equal(t, PageLowest, page.Kind)
	assert.Equal(t, []Entry{
		{Code: "001-009", ShortDesc: "Intestinal Infectious Diseases"},
		{Code: "001", ShortDesc: "Cholera"},
		{Code: "002", ShortDesc: "Typhoid and paratyphoid fevers"},
	}, page.Entries, "entries without the non-specific marker are ignored")
}

func TestParsePage_NestedIdentifier(t *testing.T) {
	page := parseFixture(t, "section_042-042.htm")
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "042", page.Entries[0].Code)
	assert.Equal(t, "Human immunodeficiency virus [HIV] disease", page.Entries[0].ShortDesc)
}

func TestParsePage_Edges(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		kind    PageKind
		entries int
	}{
		{"empty document", "", PageLowest, 0},
		{"definition list without list", `<div class="definitionList"><p>none</p></div>`, PageBranch, 0},
		{"item without link", `<ul class="definitionList"><li>plain</li></ul>`, PageBranch, 0},
		{"class among others", `<div class="wide definitionList"><ul><li><a href="/a">001-139</a> X</li></ul></div>`, PageBranch, 1},
		{"marker without identifier", `<p><img alt="Non-specific code"><span class="threeDigitCodeListDescription">x</span></p>`, PageLowest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := ParsePage(strings.NewReader(tt.html))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, page.Kind)
			assert.Len(t, page.Entries, tt.entries)
		})
	}
}

func TestPageKind_String(t *testing.T) {
	assert.Equal(t, "branch", PageBranch.String())
	assert.Equal(t, "lowest", PageLowest.String())
}
