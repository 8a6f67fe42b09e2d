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

import (
	"errors"
	"fmt"
)

// Sentinel errors for hierarchy operations.
var (
	// ErrNotFound is returned by the error-returning lookup helpers.
	// Search itself reports a missing code through its bool result.
	ErrNotFound = errors.New("code not found")

	// ErrSnapshotUnavailable means the persisted tree is missing or unreadable.
	ErrSnapshotUnavailable = errors.New("hierarchy snapshot unavailable: run 'icd9 scrape' to regenerate it")

	// ErrInconsistentHierarchy means a dataset row references a parent code
	// that the crawled hierarchy does not contain.
	ErrInconsistentHierarchy = errors.New("inconsistent hierarchy")

	// Structural errors
	ErrNilNode        = errors.New("node must not be nil")
	ErrAlreadyLinked  = errors.New("node already has a parent")
	ErrSelfLink       = errors.New("node cannot be its own child")
	ErrNilRoot        = errors.New("root must not be nil")
	ErrIndexMismatch  = errors.New("index does not match tree structure")
	ErrDuplicateCode  = errors.New("duplicate code in tree")
	ErrEmptyShortDesc = errors.New("short description must not be empty")
)

// InconsistentHierarchyError provides details about a dataset code whose
// parent is absent from the index.
type InconsistentHierarchyError struct {
	Code       string
	ParentCode string
}

// Error implements the error interface.
func (e *InconsistentHierarchyError) Error() string {
	return fmt.Sprintf("inconsistent hierarchy: code %q references unknown parent %q", e.Code, e.ParentCode)
}

// Unwrap returns the sentinel error.
func (e *InconsistentHierarchyError) Unwrap() error {
	return ErrInconsistentHierarchy
}

// CodeNotFoundError provides details about a code that is not in the tree.
type CodeNotFoundError struct {
	Code string
}

// Error implements the error interface.
func (e *CodeNotFoundError) Error() string {
	return fmt.Sprintf("code %q not found", e.Code)
}

// Unwrap returns the sentinel error.
func (e *CodeNotFoundError) Unwrap() error {
	return ErrNotFound
}
