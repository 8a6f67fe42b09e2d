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

import "time"

// ServiceVersion is the API service version.
const ServiceVersion = "1.0.0"

// Config holds HTTP server settings.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:8089".
	Addr string `yaml:"addr" validate:"required,hostname_port"`

	// ServiceName labels server spans.
	ServiceName string `yaml:"service_name" validate:"required"`

	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

// DefaultConfig returns a loopback server with conservative timeouts.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:8089",
		ServiceName:     "icd9-api",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is returned by GET /ready.
type ReadyResponse struct {
	Ready  bool   `json:"ready"`
	Nodes  int    `json:"nodes"`
	Leaves int    `json:"leaves"`
	Error  string `json:"error,omitempty"`
}
