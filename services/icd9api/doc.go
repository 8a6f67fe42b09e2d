// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package icd9api serves hierarchy queries over HTTP.
//
// # Endpoints
//
//	GET /v1/icd9/health                      Liveness
//	GET /v1/icd9/ready                       503 until a tree is loaded
//	GET /v1/icd9/root                        The root sentinel
//	GET /v1/icd9/codes/:code                 Node and path
//	GET /v1/icd9/codes/:code/ancestors       ?depth=
//	GET /v1/icd9/codes/:code/descendants     ?depth=&limit=
//	GET /v1/icd9/codes/:code/leaves          ?limit=
//	GET /v1/icd9/codes/:code/siblings
//	GET /v1/icd9/codes/:code/tree            ?depth=&limit=
//	GET /v1/icd9/subsumes                    ?a=&b=
//	GET /metrics                             Prometheus exposition
//
// Codes are accepted in either form ("401.1" or "4011"). Errors are
// returned as ErrorResponse with a machine-readable Code.
//
// # Thread Safety
//
// The tree is swapped atomically; requests in flight keep the tree they
// started with.
package icd9api
