// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"github.com/AleutianAI/icd9cms/cmd/icd9/internal/acquire"
	"github.com/AleutianAI/icd9cms/cmd/icd9/internal/snapshot"
	"github.com/AleutianAI/icd9cms/pkg/logging"
	"github.com/AleutianAI/icd9cms/pkg/telemetry"
	"github.com/AleutianAI/icd9cms/services/icd9api"
)

type ICD9Config struct {
	// Snapshot: where the built hierarchy is persisted locally
	Snapshot snapshot.Config `yaml:"snapshot"`

	// GCS: optional remote mirror of the snapshot
	GCS snapshot.GCSConfig `yaml:"gcs"`

	// Acquire: crawl target, dataset location, and politeness limits
	Acquire acquire.Config `yaml:"acquire"`

	// Server: the HTTP query API started by `icd9 serve`
	Server icd9api.Config `yaml:"server"`

	Logging LoggingConfig `yaml:"logging"`

	Telemetry telemetry.Config `yaml:"telemetry"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=auto text json"`
	LogDir string `yaml:"log_dir"` // e.g. ~/.icd9/logs; empty disables the file sink
}

// Logger converts the section into a logging.Config for service.
func (c LoggingConfig) Logger(service string) (logging.Config, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return logging.Config{}, err
	}
	format, err := logging.ParseFormat(c.Format)
	if err != nil {
		return logging.Config{}, err
	}
	return logging.Config{
		Level:   level,
		Format:  format,
		LogDir:  c.LogDir,
		Service: service,
	}, nil
}

func DefaultConfig() ICD9Config {
	return ICD9Config{
		Snapshot: snapshot.Config{
			Backend: snapshot.BackendFile,
			Dir:     "~/.icd9/snapshot",
		},
		GCS: snapshot.GCSConfig{
			Enabled: false,
			Object:  snapshot.DefaultObjectName,
		},
		Acquire:   acquire.DefaultConfig(),
		Server:    icd9api.DefaultConfig(),
		Logging:   LoggingConfig{Level: "info", Format: "auto"},
		Telemetry: telemetry.DefaultConfig(),
	}
}
