// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/icd9cms/cmd/icd9/config"
	"github.com/AleutianAI/icd9cms/cmd/icd9/internal/snapshot"
	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
	"github.com/AleutianAI/icd9cms/pkg/query"
)

// Process exit codes.
const (
	ExitSuccess  = 0
	ExitError    = 1
	ExitBadArgs  = 2
	ExitNotFound = 3
)

// UsageError marks a failure caused by how the command was invoked:
// wrong argument count, an unknown flag, or a malformed flag value.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

func usageErrorf(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// exitCode maps a command error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var usage *UsageError
	var param *query.ParamError
	switch {
	case errors.As(err, &usage), errors.As(err, &param), errors.Is(err, config.ErrInvalidConfig):
		return ExitBadArgs
	case errors.Is(err, hierarchy.ErrNotFound):
		return ExitNotFound
	default:
		return ExitError
	}
}

// errorCode is the machine-readable code reported with --json.
func errorCode(err error) string {
	switch {
	case errors.Is(err, hierarchy.ErrNotFound):
		return "CODE_NOT_FOUND"
	case errors.Is(err, hierarchy.ErrSnapshotUnavailable), errors.Is(err, snapshot.ErrNotFound):
		return "SNAPSHOT_UNAVAILABLE"
	case errors.Is(err, snapshot.ErrMirrorDisabled):
		return "MIRROR_DISABLED"
	case exitCode(err) == ExitBadArgs:
		return "INVALID_ARGUMENT"
	default:
		return "INTERNAL_ERROR"
	}
}
