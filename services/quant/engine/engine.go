// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine holds the shared kernel of the quantitative validation
// services: the error taxonomy, the Variable model, seeded RNG plumbing,
// request validation, and the execution-strategy selector.
//
// Every compute service (sampler, montecarlo, sensitivity, threshold,
// forecast, benchmark, correlation) builds on this package. Nothing in
// here performs I/O; all types are request-scoped value objects.
//
// Thread Safety:
//
//	All exported functions are safe for concurrent use. Variable and the
//	other value types are immutable after construction.
package engine

// Strategy selects how batch numeric work is executed.
//
// The services accept either strategy behind the same interface; the
// choice comes from configuration, never from device checks inside
// business logic.
type Strategy string

const (
	// StrategyVectorized evaluates draws as column vectors partitioned
	// across a worker pool. This is the production default.
	StrategyVectorized Strategy = "vectorized"

	// StrategyScalar evaluates draws one at a time on a single
	// goroutine. Reference implementation used for verification and
	// tiny workloads.
	StrategyScalar Strategy = "scalar"
)

// String returns the strategy name.
func (s Strategy) String() string {
	return string(s)
}

// Valid reports whether the strategy is a known value.
func (s Strategy) Valid() bool {
	return s == StrategyVectorized || s == StrategyScalar
}
