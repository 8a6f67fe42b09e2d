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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all /v1/icd9/* endpoints with the router group.
//
// # Inputs
//
//   - rg: Gin router group (typically /v1), with middleware already applied.
//   - handlers: The handlers instance.
//
// # Example
//
//	handlers := icd9api.NewHandlers(metrics, logger)
//	handlers.SetTree(tree)
//
//	v1 := router.Group("/v1")
//	icd9api.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	icd9 := rg.Group("/icd9")
	{
		// Health checks
		icd9.GET("/health", handlers.HandleHealth)
		icd9.GET("/ready", handlers.HandleReady)

		// Lookups
		icd9.GET("/root", handlers.HandleRoot)
		icd9.GET("/subsumes", handlers.HandleSubsumes)

		codes := icd9.Group("/codes/:code")
		{
			codes.GET("", handlers.HandleCode)
			codes.GET("/ancestors", handlers.HandleAncestors)
			codes.GET("/descendants", handlers.HandleDescendants)
			codes.GET("/leaves", handlers.HandleLeaves)
			codes.GET("/siblings", handlers.HandleSiblings)
			codes.GET("/tree", handlers.HandleTree)
		}
	}
}
