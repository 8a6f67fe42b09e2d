// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package icd9api

import (
	"errors"
	"net/http"

	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
	"github.com/AleutianAI/icd9cms/pkg/query"
)

// Sentinel errors for the API service.
var (
	// ErrTreeNotLoaded indicates no hierarchy has been loaded yet.
	ErrTreeNotLoaded = errors.New("hierarchy not loaded")

	// ErrMissingParam indicates a required query parameter was absent.
	ErrMissingParam = errors.New("missing required parameter")
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeNotFound       = "CODE_NOT_FOUND"
	CodeInvalidParam   = "INVALID_PARAMETER"
	CodeTreeNotLoaded  = "TREE_NOT_LOADED"
	CodeSnapshotFailed = "SNAPSHOT_UNAVAILABLE"
	CodeInternal       = "INTERNAL_ERROR"
)

// classify maps an error to an HTTP status and error code.
func classify(err error) (int, string) {
	var paramErr *query.ParamError
	switch {
	case errors.Is(err, hierarchy.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.As(err, &paramErr), errors.Is(err, ErrMissingParam):
		return http.StatusBadRequest, CodeInvalidParam
	case errors.Is(err, ErrTreeNotLoaded), errors.Is(err, query.ErrNoTree):
		return http.StatusServiceUnavailable, CodeTreeNotLoaded
	case errors.Is(err, hierarchy.ErrSnapshotUnavailable):
		return http.StatusServiceUnavailable, CodeSnapshotFailed
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
