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
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/icd9cms/cmd/icd9/internal/snapshot"
	"github.com/AleutianAI/icd9cms/pkg/logging"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvSnapshotDir, EnvDataset, EnvLogLevel, EnvAPIAddr} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "icd9.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestLoadFrom_CreatesDefault(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "icd9.yaml")

	var notice bytes.Buffer
	cfg, err := LoadFrom(path, &notice)
	require.NoError(t, err)

	assert.Contains(t, notice.String(), "First run detected")
	assert.FileExists(t, path)
	assert.Equal(t, DefaultConfig().Snapshot, cfg.Snapshot)
	assert.Equal(t, DefaultConfig().Acquire, cfg.Acquire)

	// The second load reads the file it wrote.
	notice.Reset()
	again, err := LoadFrom(path, &notice)
	require.NoError(t, err)
	assert.Empty(t, notice.String())
	assert.Equal(t, cfg.Server, again.Server)
}

func TestLoadFrom_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
snapshot:
  backend: badger
  dir: /var/lib/icd9
acquire:
  requests_per_second: 2
  retry_backoff: 500ms
logging:
  level: debug
`)

	cfg, err := LoadFrom(path, nil)
	require.NoError(t, err)

	assert.Equal(t, snapshot.BackendBadger, cfg.Snapshot.Backend)
	assert.Equal(t, "/var/lib/icd9", cfg.Snapshot.Dir)
	assert.Equal(t, 2.0, cfg.Acquire.RequestsPerSecond)
	assert.Equal(t, 500*time.Millisecond, cfg.Acquire.RetryBackoff)
	assert.Equal(t, DefaultConfig().Acquire.BaseURL, cfg.Acquire.BaseURL)
	assert.Equal(t, DefaultConfig().Server.Addr, cfg.Server.Addr)

	logCfg, err := cfg.Logging.Logger("icd9")
	require.NoError(t, err)
	assert.Equal(t, logging.LevelDebug, logCfg.Level)
	assert.Equal(t, "icd9", logCfg.Service)
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")
	t.Setenv(EnvSnapshotDir, "/tmp/snap")
	t.Setenv(EnvDataset, "/data/codes.xlsx")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvAPIAddr, "0.0.0.0:9000")

	cfg, err := LoadFrom(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/snap", cfg.Snapshot.Dir)
	assert.Equal(t, "/data/codes.xlsx", cfg.Acquire.DatasetPath)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
}

func TestLoadFrom_Invalid(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"unknown backend", "snapshot:\n  backend: sqlite\n"},
		{"zero rate", "acquire:\n  requests_per_second: 0\n"},
		{"gcs without bucket", "gcs:\n  enabled: true\n"},
		{"bad log level", "logging:\n  level: loud\n"},
		{"bad exporter", "telemetry:\n  trace_exporter: jaeger\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(writeConfig(t, tt.body), nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadFrom_MalformedYAML(t *testing.T) {
	clearEnv(t)

	_, err := LoadFrom(writeConfig(t, "snapshot: [unclosed"), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/icd9.yaml")
	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "/etc/icd9.yaml", path)

	t.Setenv(EnvConfigPath, "")
	path, err = DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(".icd9", "icd9.yaml"), filepath.Join(filepath.Base(filepath.Dir(path)), filepath.Base(path)))
}

func TestLoggingConfig_Logger_Invalid(t *testing.T) {
	_, err := LoggingConfig{Format: "xml"}.Logger("icd9")
	assert.ErrorIs(t, err, logging.ErrUnknownFormat)
}
