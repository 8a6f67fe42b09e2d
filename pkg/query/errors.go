// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"errors"
	"fmt"
)

// Sentinel errors for queries.
var (
	ErrNilContext   = errors.New("ctx must not be nil")
	ErrInvalidLimit = errors.New("limit must not be negative")
	ErrNoTree       = errors.New("querier has no tree")
)

// ParamError describes a malformed query parameter.
type ParamError struct {
	Name  string
	Value string
	Err   error
}

// Error implements the error interface.
func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Name, e.Value, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParamError) Unwrap() error {
	return e.Err
}
