// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package quant exposes the quantitative validation engine over HTTP.
//
// # Description
//
// This package wires the stateless compute services (sampling, Monte
// Carlo simulation, sensitivity, threshold sweeps, forecasting, peer
// benchmarks, correlation ranking) and the conflict controller behind
// a Gin router. Every endpoint accepts a JSON request, echoes the
// request ID, and maps compute errors onto stable HTTP statuses and
// machine-readable codes.
//
// # Thread Safety
//
// Handlers hold only immutable service references and are safe for
// concurrent use.
package quant

// ServiceVersion is the quantitative engine service version.
const ServiceVersion = "0.1.0"

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the machine-readable error code (optional).
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Ready     bool   `json:"ready"`
	Version   string `json:"version"`
	Endpoints int    `json:"endpoints"`
}
