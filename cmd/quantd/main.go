// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command quantd starts the QNWIS quantitative validation engine.
//
// The engine verifies numeric claims produced by the qualitative
// analysis engine with:
//   - Distribution sampling and Monte Carlo simulation
//   - Sensitivity attribution and threshold sweeps
//   - Trend forecasts, peer benchmarks, and correlation ranking
//   - Conflict sessions that compare claims against computed results
//
// Usage:
//
//	go run ./cmd/quantd serve
//	go run ./cmd/quantd serve -port 9090 -debug
//	go run ./cmd/quantd serve -config ./quant.yaml
//
// Configuration lives at $HOME/.qnwis/quant.yaml and is created with
// defaults on first run. Environment variables override file values,
// e.g. QUANT_PORT, QUANT_MAX_SIMULATIONS, OTEL_EXPORTER_OTLP_ENDPOINT.
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8090/v1/quant/health
//
//	# Sample a distribution
//	curl -X POST http://localhost:8090/v1/quant/samples \
//	  -H "Content-Type: application/json" \
//	  -d '{"variable": {"name": "wage", "distribution": "normal", "parameters": {"mean": 4500, "std": 600}}, "n_samples": 1000}'
//
//	# Verify a claim set
//	curl -X POST http://localhost:8090/v1/quant/conflicts \
//	  -H "Content-Type: application/json" \
//	  -d '{"claims": [{"id": "c1", "kind": "benchmark", "statement": "Qatar ranks 2nd", ...}]}'
package main

import (
	"log"
)

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
