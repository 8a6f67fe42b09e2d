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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
	"github.com/AleutianAI/icd9cms/pkg/hierarchy/hierarchytest"
	"github.com/AleutianAI/icd9cms/pkg/query"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestServer returns a server with an isolated registry and, when
// loaded is true, the fixture tree installed.
func newTestServer(t *testing.T, loaded bool) *Server {
	t.Helper()
	s := NewServer(DefaultConfig(), prometheus.NewRegistry(), nil)
	if loaded {
		s.Handlers().SetTree(hierarchytest.Tree())
	}
	return s
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHandlers_HandleHealth(t *testing.T) {
	s := newTestServer(t, false)

	w := get(t, s, "/v1/icd9/health")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ServiceVersion, resp.Version)
}

func TestHandlers_HandleReady(t *testing.T) {
	s := newTestServer(t, false)

	w := get(t, s, "/v1/icd9/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
	assert.False(t, decode[ReadyResponse](t, w).Ready)

	s.Handlers().SetLoadError(errors.New("snapshot missing"))
	w = get(t, s, "/v1/icd9/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "snapshot missing", decode[ReadyResponse](t, w).Error)

	s.Handlers().SetTree(hierarchytest.Tree())
	w = get(t, s, "/v1/icd9/ready")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ReadyResponse](t, w)
	assert.True(t, resp.Ready)
	assert.Equal(t, hierarchytest.NodeCount, resp.Nodes)
	assert.Equal(t, hierarchytest.LeafCount, resp.Leaves)
	assert.Empty(t, resp.Error)
}

func TestHandlers_HandleReady_LeafCountFromSetTree(t *testing.T) {
	s := newTestServer(t, false)
	tree := hierarchytest.Tree()
	s.Handlers().SetTree(tree)

	secondary, ok := tree.Search("405")
	require.True(t, ok)
	secondary.MarkLeaf()

	w := get(t, s, "/v1/icd9/ready")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, hierarchytest.LeafCount, decode[ReadyResponse](t, w).Leaves)

	s.Handlers().SetTree(tree)
	w = get(t, s, "/v1/icd9/ready")
	assert.Equal(t, hierarchytest.LeafCount+1, decode[ReadyResponse](t, w).Leaves)
}

func TestHandlers_NotLoaded(t *testing.T) {
	s := newTestServer(t, false)

	w := get(t, s, "/v1/icd9/codes/401")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, CodeTreeNotLoaded, decode[ErrorResponse](t, w).Code)
}

func TestHandlers_HandleRoot(t *testing.T) {
	s := newTestServer(t, true)

	w := get(t, s, "/v1/icd9/root")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[query.NodeResult](t, w)
	assert.Equal(t, hierarchy.RootCode, resp.Node.Code)
	assert.Equal(t, 3, resp.Node.ChildCount)
}

func TestHandlers_HandleCode(t *testing.T) {
	s := newTestServer(t, true)

	for _, code := range []string{"401.1", "4011", "%20401.1"} {
		w := get(t, s, "/v1/icd9/codes/"+code)
		require.Equal(t, http.StatusOK, w.Code, code)

		resp := decode[query.NodeResult](t, w)
		assert.Equal(t, "4011", resp.Node.Code)
		assert.Equal(t, "401.1", resp.Node.AltCode)
		assert.Equal(t, []string{"n/a", "390-459", "401-405", "401", "4011"}, resp.Path)
	}
}

func TestHandlers_HandleCode_LowercasePrefix(t *testing.T) {
	s := newTestServer(t, true)

	w := get(t, s, "/v1/icd9/codes/e000.0")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "E0000", decode[query.NodeResult](t, w).Node.Code)
}

func TestHandlers_HandleCode_NotFound(t *testing.T) {
	s := newTestServer(t, true)

	w := get(t, s, "/v1/icd9/codes/999.9")
	require.Equal(t, http.StatusNotFound, w.Code)

	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, CodeNotFound, resp.Code)
	assert.Contains(t, resp.Details, "999.9")
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.NotFoundTotal.WithLabelValues("/v1/icd9/codes/:code")))
}

func TestHandlers_HandleAncestors(t *testing.T) {
	s := newTestServer(t, true)

	w := get(t, s, "/v1/icd9/codes/401.1/ancestors")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"401", "401-405", "390-459", "n/a"}, decode[query.CodeListResult](t, w).Codes)

	w = get(t, s, "/v1/icd9/codes/401.1/ancestors?depth=1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"401"}, decode[query.CodeListResult](t, w).Codes)
}

func TestHandlers_HandleDescendants(t *testing.T) {
	s := newTestServer(t, true)

	w := get(t, s, "/v1/icd9/codes/401-405/descendants?depth=all")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[query.CodeListResult](t, w)
	assert.Equal(t, []string{"401", "405", "4010", "4011", "4019"}, resp.Codes)
	assert.Equal(t, 5, resp.Count)

	w = get(t, s, "/v1/icd9/codes/401-405/descendants?limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[query.CodeListResult](t, w)
	assert.Equal(t, []string{"401", "405"}, resp.Codes)
	assert.True(t, resp.Truncated)
}

func TestHandlers_InvalidParams(t *testing.T) {
	s := newTestServer(t, true)

	for _, path := range []string{
		"/v1/icd9/codes/401/ancestors?depth=deep",
		"/v1/icd9/codes/401/descendants?limit=-1",
		"/v1/icd9/codes/401/leaves?limit=lots",
		"/v1/icd9/subsumes?a=401",
		"/v1/icd9/subsumes?a=401&b=40!",
		"/v1/icd9/codes/bad!code",
		"/v1/icd9/codes/40%201/leaves",
	} {
		w := get(t, s, path)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, CodeInvalidParam, decode[ErrorResponse](t, w).Code, path)
	}
}

func TestHandlers_HandleLeaves(t *testing.T) {
	s := newTestServer(t, true)

	w := get(t, s, "/v1/icd9/codes/001-139/leaves")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[query.NodeListResult](t, w)
	assert.Equal(t, 5, resp.Count)
	assert.False(t, resp.Truncated)

	w = get(t, s, "/v1/icd9/codes/001-139/leaves?limit=3")
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[query.NodeListResult](t, w)
	assert.Equal(t, 3, resp.Count)
	assert.True(t, resp.Truncated)
}

func TestHandlers_HandleSiblings(t *testing.T) {
	s := newTestServer(t, true)

	w := get(t, s, "/v1/icd9/codes/001.1/siblings")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[query.NodeListResult](t, w)
	require.Len(t, resp.Nodes, 2)
	assert.Equal(t, "0010", resp.Nodes[0].Code)
	assert.Equal(t, "0019", resp.Nodes[1].Code)
	assert.Equal(t, "001", resp.Parent)
}

func TestHandlers_HandleSiblings_RootVersusOnlyChild(t *testing.T) {
	s := newTestServer(t, true)

	w := get(t, s, "/v1/icd9/codes/E000-E000/siblings")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"nodes":[]`)
	assert.Equal(t, "E000-E999", decode[query.NodeListResult](t, w).Parent)

	w = get(t, s, "/v1/icd9/codes/n%2Fa/siblings")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"nodes":null`)
	resp := decode[query.NodeListResult](t, w)
	assert.True(t, resp.NoParent())
	assert.Empty(t, resp.Parent)
}

func TestHandlers_HandleTree(t *testing.T) {
	s := newTestServer(t, true)

	w := get(t, s, "/v1/icd9/codes/390-459/tree")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[query.SubtreeResult](t, w)
	assert.Equal(t, query.DefaultTreeDepth, resp.Depth)
	assert.Equal(t, 4, resp.Count)
	require.Len(t, resp.Tree.Children, 1)
	assert.Len(t, resp.Tree.Children[0].Children, 2)
	assert.Empty(t, resp.Tree.Children[0].Children[0].Children)

	w = get(t, s, "/v1/icd9/codes/390-459/tree?depth=all")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, decode[query.SubtreeResult](t, w).Count)
}

func TestHandlers_HandleSubsumes(t *testing.T) {
	s := newTestServer(t, true)

	w := get(t, s, "/v1/icd9/subsumes?a=390-459&b=401.1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[query.SubsumesResult](t, w).Subsumes)

	w = get(t, s, "/v1/icd9/subsumes?a=401.1&b=401")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[query.SubsumesResult](t, w).Subsumes)

	w = get(t, s, "/v1/icd9/subsumes?a=401&b=999")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlers_RequestID(t *testing.T) {
	s := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodGet, "/v1/icd9/codes/401", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	w = get(t, s, "/v1/icd9/codes/401")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", &hierarchy.CodeNotFoundError{Code: "x"}, http.StatusNotFound, CodeNotFound},
		{"param", &query.ParamError{Name: "depth", Value: "x", Err: errors.New("bad")}, http.StatusBadRequest, CodeInvalidParam},
		{"not loaded", ErrTreeNotLoaded, http.StatusServiceUnavailable, CodeTreeNotLoaded},
		{"snapshot", hierarchy.ErrSnapshotUnavailable, http.StatusServiceUnavailable, CodeSnapshotFailed},
		{"other", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
