// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for the spinner goroutine and the test.
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

func boolPtr(v bool) *bool { return &v }

func TestNewSpinner_Defaults(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(SpinnerConfig{Writer: &buf})

	assert.False(t, s.IsRunning())
	assert.False(t, s.animate, "a buffer is not a terminal")
	assert.Equal(t, 100*time.Millisecond, s.config.Interval)
	assert.Equal(t, defaultFrames, s.config.Frames)
}

func TestSpinner_Plain(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(SpinnerConfig{Message: "Reading dataset", Writer: &buf})

	s.Start()
	assert.True(t, s.IsRunning())
	s.SetMessage("Crawling hierarchy")
	s.SetMessage("Crawling hierarchy")
	s.StopSuccess("Saved 23 nodes")
	assert.False(t, s.IsRunning())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Reading dataset")
	assert.Contains(t, lines[1], "Crawling hierarchy")
	assert.Contains(t, lines[2], "✓ Saved 23 nodes")
	assert.NotContains(t, buf.String(), "\033[")
}

func TestSpinner_Animated(t *testing.T) {
	buf := &syncBuffer{}
	s := NewSpinner(SpinnerConfig{
		Message:  "Crawling",
		Interval: time.Millisecond,
		Frames:   []string{"|", "/"},
		Writer:   buf,
		Animate:  boolPtr(true),
	})

	s.Start()
	s.Start()
	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "| Crawling")
	}, time.Second, time.Millisecond)

	s.StopFailure("")
	out := buf.String()
	assert.True(t, strings.HasSuffix(out, "✗ Failed\n"), out)
	assert.Contains(t, out, "\033[?25h")
}

func TestSpinner_StopIdempotent(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(SpinnerConfig{Writer: &buf, Animate: boolPtr(false)})

	s.Stop()
	s.StopSuccess("never printed")
	assert.Empty(t, buf.String())

	s.Start()
	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
}
