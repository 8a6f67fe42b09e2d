// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-supplied ICD-9-CM codes at the API and CLI
// boundaries, before they reach a lookup or a log line.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
)

// ErrInvalidCode is wrapped by every validation failure.
var ErrInvalidCode = errors.New("invalid ICD-9 code")

// maxCodeLength bounds input before any pattern is applied.
const maxCodeLength = 16

// Single codes: 3 to 5 digits, or V/E prefixed, with an optional decimal
// point after the category (401, 401.1, 4011, V01.0, E000.0, 250.00).
var codePattern = regexp.MustCompile(`^[VE]?[0-9]{1,5}(\.[0-9]{1,2})?$`)

// Range codes name chapters and sections (001-139, V01-V91, E000-E999).
var rangePattern = regexp.MustCompile(`^[VE]?[0-9]{1,4}-[VE]?[0-9]{1,4}$`)

// ValidateCode checks that code is syntactically an ICD-9-CM code, a range
// code, or the root.
//
// Valid codes:
//   - 401, 401.1, 4011, 250.00
//   - V01, V01.0, E000, E000.0
//   - 001-139, E000-E999
//   - n/a
//
// A valid code may still be unknown to the hierarchy.
//
// Example:
//
//	if err := validation.ValidateCode(code); err != nil {
//	    return nil, err
//	}
//	// Safe to look up and log
func ValidateCode(code string) error {
	if code == "" {
		return fmt.Errorf("%w: code cannot be empty", ErrInvalidCode)
	}
	if len(code) > maxCodeLength {
		return fmt.Errorf("%w: %d characters exceeds the %d character limit", ErrInvalidCode, len(code), maxCodeLength)
	}
	if code == hierarchy.RootCode || codePattern.MatchString(code) || rangePattern.MatchString(code) {
		return nil
	}
	return fmt.Errorf("%w: %q (expected digits with an optional V or E prefix and decimal point, or a range like 390-459)", ErrInvalidCode, code)
}

// ValidateCodes validates multiple codes.
// Returns an error listing all invalid codes if any fail validation.
func ValidateCodes(codes []string) error {
	var invalid []string
	for _, c := range codes {
		if err := ValidateCode(c); err != nil {
			invalid = append(invalid, fmt.Sprintf("%q", c))
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidCode, strings.Join(invalid, ", "))
	}
	return nil
}

// SanitizeCode trims whitespace, upper-cases V and E prefixes, and validates.
// Returns the cleaned code.
func SanitizeCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if !strings.EqualFold(code, hierarchy.RootCode) {
		code = strings.ToUpper(code)
	} else {
		code = hierarchy.RootCode
	}
	if err := ValidateCode(code); err != nil {
		return "", err
	}
	return code, nil
}
