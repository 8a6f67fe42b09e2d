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
	"errors"
	"fmt"
)

// Sentinel errors for acquisition.
var (
	// ErrUnexpectedPage means the root resource is not a branch listing.
	ErrUnexpectedPage = errors.New("unexpected page layout")

	// ErrMissingColumn means the dataset lacks a required header.
	ErrMissingColumn = errors.New("dataset missing required column")

	// ErrEmptyDataset means the workbook has no sheet or no header row.
	ErrEmptyDataset = errors.New("dataset is empty")

	// ErrNoDataset means no dataset path was configured.
	ErrNoDataset = errors.New("no dataset path configured")

	// ErrInvalidConfig wraps configuration problems found by NewCrawler.
	ErrInvalidConfig = errors.New("invalid acquisition config")
)

// FetchError describes a failed page request.
type FetchError struct {
	// URL is the requested page.
	URL string

	// StatusCode is the HTTP status, or 0 if no response was received.
	StatusCode int

	// Err is the transport error, if any.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap returns the transport error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the request may succeed if repeated.
func (e *FetchError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return e.Err != nil
	case e.StatusCode == 429, e.StatusCode >= 500:
		return true
	default:
		return false
	}
}
