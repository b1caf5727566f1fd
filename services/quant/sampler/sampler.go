// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sampler draws values for declared variables and computes
// their summary statistics.
//
// # Description
//
// The sampler is the single source of randomness for every stochastic
// component: Monte Carlo, sensitivity, and threshold sweeps all fill
// their draw matrices through DrawInto. Normal and uniform draws come
// from gonum's distuv; historical series are bootstrap-resampled with
// replacement, never interpolated or smoothed, so drawn values are
// always values that actually occurred.
//
// # Determinism
//
// All draws read from a caller-supplied *rand.Rand, typically built
// with engine.NewRand from a request seed. The same seed always
// produces the same samples.
//
// # Thread Safety
//
// The free functions are safe for concurrent use as long as each
// goroutine owns its *rand.Rand. A *rand.Rand must never be shared
// across goroutines.
package sampler

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/albarami/QNWIS-sub009/services/quant/engine"
)

// =============================================================================
// Drawing
// =============================================================================

// Draw returns n samples for the variable using the supplied generator.
//
// The variable must already be validated; Draw still guards the cases
// that would corrupt output (unknown distribution, empty historical
// series) and reports them as ErrInvalidRequest.
func Draw(v engine.Variable, n int, rng *rand.Rand) ([]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: sample count must be positive, got %d", engine.ErrInvalidRequest, n)
	}
	out := make([]float64, n)
	if err := DrawInto(out, v, rng); err != nil {
		return nil, err
	}
	return out, nil
}

// DrawInto fills dst with samples for the variable.
//
// This is the hot path for vectorized callers: allocate the draw matrix
// once and fill one column per variable.
func DrawInto(dst []float64, v engine.Variable, rng *rand.Rand) error {
	switch v.Distribution {
	case engine.DistributionNormal:
		d := distuv.Normal{Mu: v.Parameters.Mean, Sigma: v.Parameters.Std, Src: rng}
		for i := range dst {
			dst[i] = d.Rand()
		}
	case engine.DistributionUniform:
		d := distuv.Uniform{Min: v.Parameters.Min, Max: v.Parameters.Max, Src: rng}
		for i := range dst {
			dst[i] = d.Rand()
		}
	case engine.DistributionConstant:
		for i := range dst {
			dst[i] = v.Parameters.Value
		}
	case engine.DistributionHistorical:
		values := v.Parameters.Values
		if len(values) == 0 {
			return fmt.Errorf("%w: historical variable %q has no values", engine.ErrInvalidRequest, v.Name)
		}
		for i := range dst {
			dst[i] = values[rng.IntN(len(values))]
		}
	default:
		return fmt.Errorf("%w: unknown distribution %q", engine.ErrInvalidRequest, v.Distribution)
	}
	return nil
}

// =============================================================================
// Summary Statistics
// =============================================================================

// Summary holds the descriptive statistics reported for a sample set.
type Summary struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	P5   float64 `json:"p5"`
	P25  float64 `json:"p25"`
	P50  float64 `json:"p50"`
	P75  float64 `json:"p75"`
	P95  float64 `json:"p95"`
}

// Summarize computes descriptive statistics over the samples.
//
// Std is the population standard deviation (n denominator), so a
// constant sample reports exactly 0. Percentiles use linear
// interpolation between order statistics, so P5 <= P25 <= P50 <= P75
// <= P95 always holds. Empty input returns ErrInsufficientData.
func Summarize(samples []float64) (Summary, error) {
	if len(samples) == 0 {
		return Summary{}, fmt.Errorf("%w: no samples to summarize", engine.ErrInsufficientData)
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	return Summary{
		Mean: stat.Mean(samples, nil),
		Std:  stat.PopStdDev(samples, nil),
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		P5:   Quantile(sorted, 0.05),
		P25:  Quantile(sorted, 0.25),
		P50:  Quantile(sorted, 0.50),
		P75:  Quantile(sorted, 0.75),
		P95:  Quantile(sorted, 0.95),
	}, nil
}

// Quantile returns the pth quantile (p in [0,1]) of an ascending-sorted
// sample, linearly interpolating between order statistics at index
// p*(n-1). The median of an odd-length sample is its middle element.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return math.NaN()
	case n == 1 || p <= 0:
		return sorted[0]
	case p >= 1:
		return sorted[n-1]
	}
	idx := p * float64(n-1)
	lo := int(idx)
	frac := idx - float64(lo)
	if frac == 0 {
		return sorted[lo]
	}
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}
