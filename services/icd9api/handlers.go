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
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
	"github.com/AleutianAI/icd9cms/pkg/logging"
	"github.com/AleutianAI/icd9cms/pkg/query"
	"github.com/AleutianAI/icd9cms/pkg/validation"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	querier atomic.Pointer[query.Querier]
	leaves  atomic.Int64
	loadErr atomic.Pointer[error]
	metrics *Metrics
	logger  *logging.Logger
}

// NewHandlers creates handlers with no tree loaded.
//
// # Inputs
//
//   - metrics: Optional; nil disables not-found counting and the node gauge.
//   - logger: Optional; nil discards logs.
func NewHandlers(metrics *Metrics, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handlers{metrics: metrics, logger: logger}
}

// SetTree installs the tree served by every query endpoint and marks the
// service ready. The leaf count reported by /ready is computed here once.
func (h *Handlers) SetTree(tree *hierarchy.Tree) {
	h.leaves.Store(int64(tree.Root().CountLeaves()))
	h.querier.Store(query.NewQuerier(tree))
	h.loadErr.Store(nil)
	if h.metrics != nil {
		h.metrics.TreeNodes.Set(float64(tree.Size()))
	}
}

// SetLoadError records why loading failed. /ready reports it until a tree
// is installed.
func (h *Handlers) SetLoadError(err error) {
	h.loadErr.Store(&err)
}

// Ready reports whether a tree is installed.
func (h *Handlers) Ready() bool {
	return h.querier.Load() != nil
}

// HandleHealth handles GET /v1/icd9/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /v1/icd9/ready.
//
// Response:
//
//	200 OK: ReadyResponse (Ready=true)
//	503 Service Unavailable: ReadyResponse (Ready=false), with the load
//	    error when loading failed
func (h *Handlers) HandleReady(c *gin.Context) {
	q := h.querier.Load()
	if q == nil {
		resp := ReadyResponse{Ready: false}
		if errp := h.loadErr.Load(); errp != nil {
			resp.Error = (*errp).Error()
		}
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	tree := q.Tree()
	c.JSON(http.StatusOK, ReadyResponse{
		Ready:  true,
		Nodes:  tree.Size(),
		Leaves: int(h.leaves.Load()),
	})
}

// HandleRoot handles GET /v1/icd9/root.
func (h *Handlers) HandleRoot(c *gin.Context) {
	h.withQuerier(c, func(q *query.Querier) (any, error) {
		return q.Search(c.Request.Context(), "")
	})
}

// HandleCode handles GET /v1/icd9/codes/:code.
//
// Response:
//
//	200 OK: query.NodeResult
//	404 Not Found: CODE_NOT_FOUND
func (h *Handlers) HandleCode(c *gin.Context) {
	h.withQuerier(c, func(q *query.Querier) (any, error) {
		code, err := codeParam("code", c.Param("code"))
		if err != nil {
			return nil, err
		}
		return q.Search(c.Request.Context(), code)
	})
}

// HandleAncestors handles GET /v1/icd9/codes/:code/ancestors.
//
// Query Parameters:
//
//	depth: Levels to walk up (optional, default all)
//	limit: Maximum codes (optional)
func (h *Handlers) HandleAncestors(c *gin.Context) {
	h.withQuerier(c, func(q *query.Querier) (any, error) {
		code, err := codeParam("code", c.Param("code"))
		if err != nil {
			return nil, err
		}
		opts, err := parseOptions(c, hierarchy.Unlimited)
		if err != nil {
			return nil, err
		}
		return q.Ancestors(c.Request.Context(), code, opts)
	})
}

// HandleDescendants handles GET /v1/icd9/codes/:code/descendants.
//
// Query Parameters:
//
//	depth: Levels to walk down (optional, default all)
//	limit: Maximum codes (optional, default query.DefaultMaxResults)
func (h *Handlers) HandleDescendants(c *gin.Context) {
	h.withQuerier(c, func(q *query.Querier) (any, error) {
		code, err := codeParam("code", c.Param("code"))
		if err != nil {
			return nil, err
		}
		opts, err := parseOptions(c, hierarchy.Unlimited)
		if err != nil {
			return nil, err
		}
		return q.Descendants(c.Request.Context(), code, opts)
	})
}

// HandleLeaves handles GET /v1/icd9/codes/:code/leaves.
//
// Query Parameters:
//
//	limit: Maximum leaves (optional, default query.DefaultMaxResults)
func (h *Handlers) HandleLeaves(c *gin.Context) {
	h.withQuerier(c, func(q *query.Querier) (any, error) {
		code, err := codeParam("code", c.Param("code"))
		if err != nil {
			return nil, err
		}
		opts, err := parseOptions(c, hierarchy.Unlimited)
		if err != nil {
			return nil, err
		}
		return q.Leaves(c.Request.Context(), code, opts)
	})
}

// HandleSiblings handles GET /v1/icd9/codes/:code/siblings.
func (h *Handlers) HandleSiblings(c *gin.Context) {
	h.withQuerier(c, func(q *query.Querier) (any, error) {
		code, err := codeParam("code", c.Param("code"))
		if err != nil {
			return nil, err
		}
		return q.Siblings(c.Request.Context(), code)
	})
}

// HandleTree handles GET /v1/icd9/codes/:code/tree.
//
// Query Parameters:
//
//	depth: Levels below the node (optional, default query.DefaultTreeDepth)
//	limit: Maximum nodes (optional)
func (h *Handlers) HandleTree(c *gin.Context) {
	h.withQuerier(c, func(q *query.Querier) (any, error) {
		code, err := codeParam("code", c.Param("code"))
		if err != nil {
			return nil, err
		}
		opts, err := parseOptions(c, query.DefaultTreeDepth)
		if err != nil {
			return nil, err
		}
		return q.Subtree(c.Request.Context(), code, opts)
	})
}

// HandleSubsumes handles GET /v1/icd9/subsumes?a=&b=.
//
// Response:
//
//	200 OK: query.SubsumesResult
//	400 Bad Request: a or b missing
//	404 Not Found: either code unknown
func (h *Handlers) HandleSubsumes(c *gin.Context) {
	h.withQuerier(c, func(q *query.Querier) (any, error) {
		a, aok := c.GetQuery("a")
		b, bok := c.GetQuery("b")
		if !aok || !bok {
			return nil, fmt.Errorf("%w: both a and b are required", ErrMissingParam)
		}
		var err error
		if a, err = codeParam("a", a); err != nil {
			return nil, err
		}
		if b, err = codeParam("b", b); err != nil {
			return nil, err
		}
		return q.Subsumes(c.Request.Context(), a, b)
	})
}

// =============================================================================
// Helpers
// =============================================================================

// withQuerier runs fn against the current tree and writes its result or
// an ErrorResponse.
func (h *Handlers) withQuerier(c *gin.Context, fn func(q *query.Querier) (any, error)) {
	requestID := getOrCreateRequestID(c)

	q := h.querier.Load()
	if q == nil {
		h.fail(c, requestID, ErrTreeNotLoaded)
		return
	}

	result, err := fn(q)
	if err != nil {
		h.fail(c, requestID, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handlers) fail(c *gin.Context, requestID string, err error) {
	status, code := classify(err)
	logger := h.logger.With("request_id", requestID, "route", c.FullPath())

	switch {
	case status == http.StatusNotFound:
		if h.metrics != nil {
			h.metrics.RecordNotFound(c.FullPath())
		}
		logger.Debug("code not found", "error", err)
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "error", err)
	default:
		logger.Warn("request rejected", "error", err)
	}

	c.JSON(status, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    code,
		Details: err.Error(),
	})
}

// codeParam validates a code taken from the path or query string.
func codeParam(name, raw string) (string, error) {
	code, err := validation.SanitizeCode(raw)
	if err != nil {
		return "", &query.ParamError{Name: name, Value: raw, Err: err}
	}
	return code, nil
}

// parseOptions reads depth and limit, using defaultDepth when depth is absent.
func parseOptions(c *gin.Context, defaultDepth int) (query.Options, error) {
	opts := query.Options{Depth: defaultDepth}
	if raw, ok := c.GetQuery("depth"); ok {
		depth, err := query.ParseDepth(raw)
		if err != nil {
			return opts, err
		}
		opts.Depth = depth
	}
	limit, err := query.ParseLimit(c.Query("limit"))
	if err != nil {
		return opts, err
	}
	opts.Limit = limit
	return opts, nil
}

// getOrCreateRequestID returns the X-Request-ID header, generating one if
// absent, and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
