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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment overrides, applied after the file is read.
const (
	EnvConfigPath  = "ICD9_CONFIG"
	EnvSnapshotDir = "ICD9_SNAPSHOT_DIR"
	EnvDataset     = "ICD9_DATASET"
	EnvLogLevel    = "ICD9_LOG_LEVEL"
	EnvAPIAddr     = "ICD9_API_ADDR"
)

// ErrInvalidConfig wraps validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

var (
	// Global is a singleton instance
	Global ICD9Config
	once   sync.Once

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Load ensures the config is loaded into the Global variable.
// The path comes from ICD9_CONFIG, falling back to ~/.icd9/icd9.yaml.
func Load() error {
	var err error
	once.Do(func() {
		var path string
		if path, err = DefaultPath(); err != nil {
			return
		}
		var cfg *ICD9Config
		if cfg, err = LoadFrom(path, os.Stderr); err == nil {
			Global = *cfg
		}
	})
	return err
}

// DefaultPath returns ICD9_CONFIG if set, otherwise ~/.icd9/icd9.yaml.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".icd9", "icd9.yaml"), nil
}

// LoadFrom reads, overrides, and validates the config at path.
//
// # Description
//
// A missing file is created with DefaultConfig and a notice is written to
// notice. Keys absent from the file keep their default values. Environment
// overrides are applied last, then the result is validated.
//
// # Inputs
//
//   - path: Config file path.
//   - notice: Receives the first-run message. Nil discards it.
//
// # Outputs
//
//   - *ICD9Config: The effective configuration.
//   - error: I/O, YAML, or an error wrapping ErrInvalidConfig.
func LoadFrom(path string, notice io.Writer) (*ICD9Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if notice != nil {
			fmt.Fprintf(notice, " First run detected, creating the config at %s\n", path)
		}
		if err := createDefault(path); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}

	applyEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags across every section.
func Validate(cfg ICD9Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func applyEnv(cfg *ICD9Config) {
	if v := os.Getenv(EnvSnapshotDir); v != "" {
		cfg.Snapshot.Dir = v
	}
	if v := os.Getenv(EnvDataset); v != "" {
		cfg.Acquire.DatasetPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvAPIAddr); v != "" {
		cfg.Server.Addr = v
	}
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
