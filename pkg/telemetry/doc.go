// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry initializes OpenTelemetry tracing and metrics for the
// icd9 CLI and query service.
//
// Packages that emit spans or instruments use the otel API directly
// (otel.Tracer, otel.Meter). Until Init runs, those calls hit the global
// no-op providers, so library code and tests never need telemetry set up.
//
// # Trace Exporters
//
//   - "otlp": gRPC OTLP to OTLPEndpoint (Jaeger, Tempo, collectors)
//   - "stdout": pretty-printed spans on stdout, useful while debugging a scrape
//   - "none": keep the no-op provider
//
// # Metric Exporters
//
//   - "prometheus": registers with the Prometheus registry so otel
//     instruments appear next to the promauto metrics at /metrics
//   - "stdout": periodic dump to stdout
//   - "none": keep the no-op provider
//
// # Usage
//
//	shutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
// # Thread Safety
//
// Call Init once at startup. The helpers in tracing.go are safe for
// concurrent use.
package telemetry
