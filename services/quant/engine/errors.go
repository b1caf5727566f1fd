// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import "errors"

// Sentinel errors for the compute services.
//
// Every failure a compute service can produce wraps exactly one of these
// sentinels, so callers classify with errors.Is and the HTTP layer maps
// them to stable status codes. All of them are per-request and
// recoverable; nothing in this package is fatal to the host process.
var (
	// ErrInvalidRequest indicates malformed or out-of-range request
	// parameters, rejected before any computation starts.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidExpression indicates a formula that is unparseable or
	// uses tokens outside the restricted grammar.
	ErrInvalidExpression = errors.New("invalid expression")

	// ErrEvaluation indicates a runtime math fault: division by zero, a
	// domain error, or overflow during formula evaluation.
	ErrEvaluation = errors.New("evaluation error")

	// ErrSimulationDegraded indicates the fraction of dropped draws
	// exceeded the configured tolerance for a simulation run.
	ErrSimulationDegraded = errors.New("simulation degraded")

	// ErrLengthMismatch indicates series that were expected to be
	// aligned have differing lengths.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrInsufficientData indicates too few usable points remained for
	// the computation after preprocessing.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrComputeTimeout indicates a computation exceeded its deadline.
	ErrComputeTimeout = errors.New("compute timeout")
)

// Code returns the stable machine-readable code for a compute error.
//
// Used for metrics labels and API error bodies. Unrecognized errors map
// to "internal".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrInvalidExpression):
		return "invalid_expression"
	case errors.Is(err, ErrSimulationDegraded):
		return "simulation_degraded"
	case errors.Is(err, ErrEvaluation):
		return "evaluation_error"
	case errors.Is(err, ErrLengthMismatch):
		return "length_mismatch"
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, ErrComputeTimeout):
		return "compute_timeout"
	default:
		return "internal"
	}
}
