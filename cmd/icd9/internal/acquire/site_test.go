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
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Expected shape of the tree crawled from testdata.
const (
	siteBranches  = 5
	siteLowest    = 4
	sitePageCount = 6
)

var sitePages = map[string]string{
	"/2015/Volume1/default.htm":                 "root.htm",
	"/2015/Volume1/001-139/default.htm":         "chapter_001-139.htm",
	"/2015/Volume1/390-459/default.htm":         "chapter_390-459.htm",
	"/2015/Volume1/001-139/001-009/default.htm": "section_001-009.htm",
	"/2015/Volume1/001-139/042-042/default.htm": "section_042-042.htm",
	"/2015/Volume1/390-459/401-405/default.htm": "section_401-405.htm",
}

// testSite serves the testdata pages and records requests.
type testSite struct {
	*httptest.Server

	mu         sync.Mutex
	hits       map[string]int
	userAgents []string
	failures   map[string][]int
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	site := &testSite{hits: make(map[string]int), failures: make(map[string][]int)}
	site.Server = httptest.NewServer(http.HandlerFunc(site.serve))
	t.Cleanup(site.Close)
	return site
}

// failNext makes the next requests for path answer with the given statuses.
func (s *testSite) failNext(path string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = append(s.failures[path], statuses...)
}

func (s *testSite) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *testSite) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.userAgents = append(s.userAgents, r.UserAgent())
	var status int
	if queued := s.failures[r.URL.Path]; len(queued) > 0 {
		status, s.failures[r.URL.Path] = queued[0], queued[1:]
	}
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	name, ok := sitePages[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

// testConfig points at site with limits suited to tests.
func testConfig(site *testSite) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = site.URL
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 100
	cfg.MaxConcurrency = 4
	cfg.RetryBackoff = time.Millisecond
	cfg.RequestTimeout = 5 * time.Second
	cfg.DatasetPath = ""
	return cfg
}

func newTestCrawler(t *testing.T, site *testSite) *Crawler {
	t.Helper()
	c, err := NewCrawler(testConfig(site), site.Client(), nil)
	require.NoError(t, err)
	return c
}

// siteRows is a dataset consistent with the testdata site.
func siteRows() []Row {
	return []Row{
		{Code: "0010", ShortDesc: "Cholera d/t vib cholerae", LongDesc: "Cholera due to vibrio cholerae"},
		{Code: "0019", ShortDesc: "Cholera NOS", LongDesc: "Cholera, unspecified"},
		{Code: "0020", ShortDesc: "Typhoid fever", LongDesc: "Typhoid fever"},
		{Code: "042", ShortDesc: "Human immuno virus dis", LongDesc: "Human immunodeficiency virus [HIV] disease"},
		{Code: "4011", ShortDesc: "Benign hypertension", LongDesc: "Benign essential hypertension"},
		{Code: "4019", ShortDesc: "Hypertension NOS", LongDesc: "Unspecified essential hypertension"},
	}
}
