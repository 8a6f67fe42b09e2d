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
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/icd9cms/cmd/icd9/config"
	"github.com/AleutianAI/icd9cms/cmd/icd9/internal/snapshot"
	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
	"github.com/AleutianAI/icd9cms/pkg/hierarchy/hierarchytest"
	"github.com/AleutianAI/icd9cms/pkg/query"
	"github.com/AleutianAI/icd9cms/pkg/telemetry"
)

// =============================================================================
// Test Helpers
// =============================================================================

// syncBuffer is a bytes.Buffer safe for the concurrent writes made by
// loggers and the spinner.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testEnv is an isolated config file and snapshot directory.
type testEnv struct {
	configPath  string
	snapshotDir string
	cfg         config.ICD9Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	for _, key := range []string{config.EnvSnapshotDir, config.EnvDataset, config.EnvLogLevel, config.EnvAPIAddr} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	env := &testEnv{
		configPath:  filepath.Join(dir, "icd9.yaml"),
		snapshotDir: filepath.Join(dir, "snapshot"),
		cfg:         config.DefaultConfig(),
	}
	env.cfg.Snapshot.Dir = env.snapshotDir
	env.cfg.Logging.Level = "warn"
	env.cfg.Telemetry.TraceExporter = telemetry.ExporterNone
	env.cfg.Telemetry.MetricExporter = telemetry.ExporterNone
	env.write(t)
	return env
}

func (e *testEnv) write(t *testing.T) {
	t.Helper()
	data, err := yaml.Marshal(e.cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(e.configPath, data, 0644))
}

// seed saves the fixture tree as the local snapshot.
func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	store, err := snapshot.Open(e.cfg.Snapshot, nil)
	require.NoError(t, err)
	defer store.Close()
	_, err = store.Save(context.Background(), hierarchytest.Fixture(), "run-fixture")
	require.NoError(t, err)
}

type cliResult struct {
	code   int
	stdout string
	stderr string
}

func (e *testEnv) run(t *testing.T, args ...string) cliResult {
	t.Helper()
	return e.runApp(t, nil, args...)
}

// runApp runs args against a, or a fresh app when a is nil.
func (e *testEnv) runApp(t *testing.T, a *app, args ...string) cliResult {
	t.Helper()
	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	if a == nil {
		a = newApp(stdout, stderr)
	} else {
		a.stdout, a.stderr = stdout, stderr
	}
	code := a.run(context.Background(), append([]string{"--config", e.configPath}, args...))
	return cliResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func decodeJSON[T any](t *testing.T, r cliResult) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &v), r.stdout)
	return v
}

// =============================================================================
// Query Commands
// =============================================================================

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	r := env.run(t, "search", "401.1")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "401.1")
	assert.Contains(t, r.stdout, "Benign hypertension")
	assert.Contains(t, r.stdout, "Benign essential hypertension")
	assert.Contains(t, r.stdout, "n/a > 390-459 > 401-405 > 401 > 4011")
}

func TestSearch_JSON(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	r := env.run(t, "search", "4011", "--json")
	require.Equal(t, ExitSuccess, r.code, r.stderr)

	result := decodeJSON[query.NodeResult](t, r)
	assert.Equal(t, "4011", result.Node.Code)
	assert.Equal(t, "401.1", result.Node.AltCode)
	assert.True(t, result.Node.IsLeaf)
	require.NotNil(t, result.Node.LongDesc)
	assert.Equal(t, "Benign essential hypertension", *result.Node.LongDesc)
}

func TestSearch_SanitizesCode(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	r := env.run(t, "search", "e000.1", "--json")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, "E0001", decodeJSON[query.NodeResult](t, r).Node.Code)
}

func TestSearch_Root(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	r := env.run(t, "search", "--json")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	result := decodeJSON[query.NodeResult](t, r)
	assert.Equal(t, hierarchy.RootCode, result.Node.Code)
	assert.Equal(t, 3, result.Node.ChildCount)
}

func TestSearch_NotFound(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	r := env.run(t, "search", "999.9")
	assert.Equal(t, ExitNotFound, r.code)
	assert.Contains(t, r.stderr, "999.9")

	r = env.run(t, "search", "999.9", "--json")
	assert.Equal(t, ExitNotFound, r.code)
	result := decodeJSON[errorResult](t, r)
	assert.False(t, result.Success)
	assert.Equal(t, "CODE_NOT_FOUND", result.Code)
	assert.Equal(t, query.APIVersion, result.APIVersion)
}

func TestQuery_NoSnapshot(t *testing.T) {
	env := newTestEnv(t)

	r := env.run(t, "search", "401")
	assert.Equal(t, ExitError, r.code)
	assert.Contains(t, r.stderr, "icd9 scrape")

	r = env.run(t, "tree", "--json")
	assert.Equal(t, ExitError, r.code)
	assert.Equal(t, "SNAPSHOT_UNAVAILABLE", decodeJSON[errorResult](t, r).Code)
}

func TestAncestors(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	r := env.run(t, "ancestors", "401.1", "--json")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, []string{"401", "401-405", "390-459", "n/a"}, decodeJSON[query.CodeListResult](t, r).Codes)

	r = env.run(t, "ancestors", "401.1", "--depth", "1", "--json")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, []string{"401"}, decodeJSON[query.CodeListResult](t, r).Codes)

	r = env.run(t, "ancestors", "401.1")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Ancestors of 401.1")
	assert.Contains(t, r.stdout, "Hypertensive Disease")
	assert.Contains(t, r.stdout, "4 codes")
}

func TestDescendants(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	r := env.run(t, "descendants", "401-405", "--json")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	result := decodeJSON[query.CodeListResult](t, r)
	assert.Equal(t, []string{"401", "405", "4010", "4011", "4019"}, result.Codes)
	assert.False(t, result.Truncated)

	r = env.run(t, "descendants", "401-405", "--limit", "2", "--json")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	result = decodeJSON[query.CodeListResult](t, r)
	assert.Equal(t, []string{"401", "405"}, result.Codes)
	assert.True(t, result.Truncated)

	r = env.run(t, "descendants", "401-405", "--limit", "2")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "results truncated")
}

func TestLeaves(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	r := env.run(t, "leaves", "401")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Leaves of 401")
	assert.Contains(t, r.stdout, "401.0")
	assert.Contains(t, r.stdout, "401.9")
	assert.Contains(t, r.stdout, "3 nodes")
}

func TestSiblings(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	r := env.run(t, "siblings", "001.1", "--json")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	result := decodeJSON[query.NodeListResult](t, r)
	require.Len(t, result.Nodes, 2)
	assert.Equal(t, "0010", result.Nodes[0].Code)
	assert.Equal(t, "0019", result.Nodes[1].Code)

	r = env.run(t, "siblings", "E000-E000")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "None.")

	r = env.run(t, "siblings", "n/a")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "the root has no parent")
	assert.NotContains(t, r.stdout, "None.")

	r = env.run(t, "siblings", "n/a", "--json")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, `"nodes": null`)
}

func TestSubsumes(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	r := env.run(t, "subsumes", "390-459", "401.1")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, "390-459 subsumes 401.1\n", r.stdout)

	r = env.run(t, "subsumes", "401.1", "401", "--json")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.False(t, decodeJSON[query.SubsumesResult](t, r).Subsumes)

	r = env.run(t, "subsumes", "401", "999")
	assert.Equal(t, ExitNotFound, r.code)
}

func TestTree(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	r := env.run(t, "tree", "390-459")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Diseases Of The Circulatory System")
	assert.Contains(t, r.stdout, "Hypertensive Disease")
	assert.Contains(t, r.stdout, "Essential hypertension")
	assert.Contains(t, r.stdout, "(+3)")
	assert.NotContains(t, r.stdout, "401.1")
	assert.Contains(t, r.stdout, "4 nodes")

	r = env.run(t, "tree", "390-459", "--depth", "all")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "401.1")
	assert.Contains(t, r.stdout, "7 nodes")

	r = env.run(t, "tree", "--depth", "1", "--json")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	result := decodeJSON[query.SubtreeResult](t, r)
	assert.Equal(t, hierarchy.RootCode, result.Tree.Code)
	assert.Len(t, result.Tree.Children, 3)
	assert.Equal(t, 4, result.Count)
}

func TestBadArguments(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing code", []string{"ancestors"}},
		{"extra code", []string{"search", "401", "402"}},
		{"bad depth", []string{"descendants", "401", "--depth", "deep"}},
		{"negative limit", []string{"leaves", "401", "--limit", "-5"}},
		{"unknown flag", []string{"search", "401", "--bogus"}},
		{"subsumes one code", []string{"subsumes", "401"}},
		{"bad log level", []string{"search", "401", "--log-level", "loud"}},
		{"malformed code", []string{"search", "40!1"}},
		{"malformed subsumes code", []string{"subsumes", "401", "drop table"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := env.run(t, tt.args...)
			assert.Equal(t, ExitBadArgs, r.code, r.stderr)
			assert.Contains(t, r.stderr, "Error:")
		})
	}
}

func TestInvalidConfig(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.configPath, []byte("snapshot:\n  backend: mysql\n"), 0644))

	r := env.run(t, "search", "401")
	assert.Equal(t, ExitBadArgs, r.code)
	assert.Contains(t, r.stderr, "invalid configuration")
}

func TestFirstRunCreatesConfig(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, os.Remove(env.configPath))

	r := env.run(t, "search", "401")
	assert.Equal(t, ExitError, r.code, "no snapshot at the default location")
	assert.Contains(t, r.stderr, "First run detected")
	assert.FileExists(t, env.configPath)
}

func TestBadgerBackend(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Snapshot.Backend = snapshot.BackendBadger
	env.write(t)
	env.seed(t)

	r := env.run(t, "search", "E000.0", "--json")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, "E0000", decodeJSON[query.NodeResult](t, r).Node.Code)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, exitCode(nil))
	assert.Equal(t, ExitNotFound, exitCode(&hierarchy.CodeNotFoundError{Code: "x"}))
	assert.Equal(t, ExitBadArgs, exitCode(usageErrorf("bad")))
	assert.Equal(t, ExitBadArgs, exitCode(&query.ParamError{Name: "depth", Value: "x"}))
	assert.Equal(t, ExitError, exitCode(hierarchy.ErrSnapshotUnavailable))
}
