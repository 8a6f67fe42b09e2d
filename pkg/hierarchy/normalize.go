// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hierarchy

import "strings"

// Sentinel values for the tree root.
const (
	RootCode      = "n/a"
	RootShortDesc = "root"
)

const (
	// codeSeparator is the display separator stripped from canonical codes.
	codeSeparator = "."

	// rangeMarker appears in chapter and section codes such as "001-139".
	rangeMarker = "-"

	// externalCauseMarker prefixes supplementary E codes, whose category
	// part is one character longer than numeric and V codes.
	externalCauseMarker = "E"
)

// NormalizeCode returns the canonical, dot-free form of a code.
//
// Description:
//
//	Strips every "." so display forms ("250.01") and canonical forms
//	("25001") compare equal. Normalization is idempotent.
//
// Inputs:
//
//	code - Code in canonical or display form. May be empty.
//
// Outputs:
//
//	string - The code with all dots removed.
func NormalizeCode(code string) string {
	return strings.ReplaceAll(code, codeSeparator, "")
}

// IsRangeCode reports whether code names a chapter or section range.
func IsRangeCode(code string) bool {
	return strings.Contains(code, rangeMarker)
}

// FormatAltCode returns the display form of a canonical code.
//
// Description:
//
//	Inserts a single "." after the category part of the code. Numeric and
//	V codes split after position 3, E codes after position 4. Ranges, codes
//	shorter than 4 characters, and E codes shorter than 5 characters are
//	returned unchanged.
//
// Examples:
//
//	FormatAltCode("1234")  // "123.4"
//	FormatAltCode("E1234") // "E123.4"
//	FormatAltCode("E123")  // "E123"
//	FormatAltCode("V10")   // "V10"
//
// Inputs:
//
//	code - Canonical code. Dots already present are stripped first.
//
// Outputs:
//
//	string - The display form.
func FormatAltCode(code string) string {
	code = NormalizeCode(code)
	isExternal := strings.HasPrefix(code, externalCauseMarker)

	if IsRangeCode(code) || len(code) < 4 || (isExternal && len(code) < 5) {
		return code
	}

	split := 3
	if isExternal {
		split = 4
	}
	return code[:split] + codeSeparator + code[split:]
}
