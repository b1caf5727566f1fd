// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conflict

import (
	"fmt"
	"math"

	"github.com/albarami/QNWIS-sub009/services/quant/benchmark"
	"github.com/albarami/QNWIS-sub009/services/quant/correlation"
	"github.com/albarami/QNWIS-sub009/services/quant/engine"
	"github.com/albarami/QNWIS-sub009/services/quant/forecast"
	"github.com/albarami/QNWIS-sub009/services/quant/montecarlo"
	"github.com/albarami/QNWIS-sub009/services/quant/sensitivity"
	"github.com/albarami/QNWIS-sub009/services/quant/threshold"
)

// Tolerance configures the agreement band for numeric claims.
type Tolerance struct {
	// RelativeDeviation is the maximum |asserted - computed| / |computed|
	// still classified CONFIRM. When the computed value is zero the
	// deviation is taken absolutely. Default: 0.10.
	RelativeDeviation float64 `yaml:"relative_deviation"`
}

// DefaultTolerance returns the default agreement band.
func DefaultTolerance() Tolerance {
	return Tolerance{RelativeDeviation: 0.10}
}

// Comparator classifies computed results against claim assertions.
//
// # Description
//
//	Numeric claims (threshold, sensitivity, forecast, magnitude,
//	benchmark) confirm when the asserted point lies within the relative
//	tolerance of the computed value, or inside the computed confidence
//	interval where the service produces one (Monte Carlo's [p5, p95],
//	the forecast band of the final horizon period). An asserted
//	[low, high] range confirms when the computed value falls inside it.
//	Correlation claims are categorical: the asserted driver must be the
//	top-ranked defined driver.
//
//	The comparison targets per kind:
//
//	  threshold    breach threshold of the request's first constraint
//	  sensitivity  impact_pct of the asserted driver (default: top driver)
//	  forecast     forecast value of the final horizon period
//	  magnitude    simulated mean
//	  benchmark    computed rank
//	  correlation  name of the top-ranked defined driver
//
//	A failed computation is always CONFLICT with the unresolved marker
//	set. When asserted and computed quantities cannot be compared (a
//	sweep that never breaches, a driver absent from the ranking) the
//	verdict is CONFLICT with a nil delta and an explanatory detail.
//
// # Thread Safety
//
//	Comparator is immutable and safe for concurrent use.
type Comparator struct {
	tol Tolerance
}

// NewComparator builds a comparator, substituting the default band for
// a zero tolerance.
func NewComparator(tol Tolerance) Comparator {
	if tol.RelativeDeviation <= 0 {
		tol = DefaultTolerance()
	}
	return Comparator{tol: tol}
}

// Compare produces the verdict for one claim.
//
// evidence must be the result type of the claim kind's service; err is
// the computation failure, if any. Exactly one of them is meaningful.
func (c Comparator) Compare(cl *Claim, evidence any, err error) Verdict {
	v := Verdict{ClaimID: cl.ID, Kind: cl.Kind}

	if err != nil {
		v.Agreement = AgreementConflict
		v.Unresolved = true
		v.Error = fmt.Sprintf("%s: %v", engine.Code(err), err)
		return v
	}
	v.Evidence = evidence

	switch cl.Kind {
	case KindThreshold:
		c.compareThreshold(&v, cl, evidence)
	case KindSensitivity:
		c.compareSensitivity(&v, cl, evidence)
	case KindForecast:
		c.compareForecast(&v, cl, evidence)
	case KindMagnitude:
		c.compareMagnitude(&v, cl, evidence)
	case KindBenchmark:
		c.compareBenchmark(&v, cl, evidence)
	case KindCorrelation:
		c.compareCorrelation(&v, cl, evidence)
	default:
		c.incomparable(&v, fmt.Sprintf("unsupported claim kind %q", cl.Kind))
	}
	return v
}

func (c Comparator) compareThreshold(v *Verdict, cl *Claim, evidence any) {
	res, ok := evidence.(*threshold.Result)
	if !ok || len(res.Constraints) == 0 {
		c.incomparable(v, "no constraint results in evidence")
		return
	}
	cr := res.Constraints[0]
	if cr.Threshold == nil {
		c.incomparable(v, fmt.Sprintf("constraint %q never breaches across the sweep", cr.Name))
		return
	}
	c.classifyNumeric(v, cl.Asserted, *cr.Threshold, nil)
}

func (c Comparator) compareSensitivity(v *Verdict, cl *Claim, evidence any) {
	res, ok := evidence.(*sensitivity.Result)
	if !ok {
		c.incomparable(v, "evidence is not a sensitivity result")
		return
	}
	name := cl.Asserted.Driver
	if name == "" {
		name = res.TopDriver
	}
	for _, imp := range res.Sensitivity {
		if imp.Parameter == name {
			c.classifyNumeric(v, cl.Asserted, imp.ImpactPct, nil)
			return
		}
	}
	c.incomparable(v, fmt.Sprintf("parameter %q not among analyzed parameters", name))
}

func (c Comparator) compareForecast(v *Verdict, cl *Claim, evidence any) {
	res, ok := evidence.(*forecast.Result)
	if !ok || len(res.Forecasts) == 0 {
		c.incomparable(v, "no forecast points in evidence")
		return
	}
	last := res.Forecasts[len(res.Forecasts)-1]
	band := [2]float64{last.Lower, last.Upper}
	c.classifyNumeric(v, cl.Asserted, last.Forecast, &band)
}

func (c Comparator) compareMagnitude(v *Verdict, cl *Claim, evidence any) {
	res, ok := evidence.(*montecarlo.Result)
	if !ok {
		c.incomparable(v, "evidence is not a simulation result")
		return
	}
	band := [2]float64{res.P5, res.P95}
	c.classifyNumeric(v, cl.Asserted, res.Mean, &band)
}

func (c Comparator) compareBenchmark(v *Verdict, cl *Claim, evidence any) {
	res, ok := evidence.(*benchmark.Result)
	if !ok {
		c.incomparable(v, "evidence is not a benchmark result")
		return
	}
	if cl.Asserted.Rank == nil {
		c.incomparable(v, "claim carries no asserted rank")
		return
	}
	asserted := float64(*cl.Asserted.Rank)
	a := Asserted{Value: &asserted}
	c.classifyNumeric(v, a, float64(res.Rank), nil)
}

func (c Comparator) compareCorrelation(v *Verdict, cl *Claim, evidence any) {
	res, ok := evidence.(*correlation.Result)
	if !ok || len(res.Drivers) == 0 {
		c.incomparable(v, "no candidate drivers in evidence")
		return
	}
	top := res.Drivers[0]
	if top.Correlation == nil {
		c.incomparable(v, "no defined correlations among candidates")
		return
	}
	if top.Name == cl.Asserted.Driver {
		zero := 0.0
		v.Agreement = AgreementConfirm
		v.Delta = &zero
		v.Computed = top.Correlation
		v.Detail = fmt.Sprintf("%q is the top-ranked driver (r=%.4f)", top.Name, *top.Correlation)
		return
	}
	v.Agreement = AgreementConflict
	v.Computed = top.Correlation
	for _, d := range res.Drivers {
		if d.Name != cl.Asserted.Driver {
			continue
		}
		if d.Correlation == nil {
			v.Detail = fmt.Sprintf("asserted driver %q has undefined correlation; top driver is %q", d.Name, top.Name)
			return
		}
		delta := math.Abs(*top.Correlation) - math.Abs(*d.Correlation)
		v.Delta = &delta
		v.Detail = fmt.Sprintf("top driver is %q (|r|=%.4f), asserted %q (|r|=%.4f)",
			top.Name, math.Abs(*top.Correlation), d.Name, math.Abs(*d.Correlation))
		return
	}
	v.Detail = fmt.Sprintf("asserted driver %q not among candidate drivers; top driver is %q", cl.Asserted.Driver, top.Name)
}

// classifyNumeric fills the verdict for a point-or-range assertion
// against a computed value, optionally with a computed interval.
func (c Comparator) classifyNumeric(v *Verdict, a Asserted, computed float64, band *[2]float64) {
	v.Computed = &computed

	if a.Value == nil && !a.hasRange() {
		c.incomparable(v, "claim carries no asserted value or range")
		return
	}
	if a.Value != nil {
		val := *a.Value
		delta := math.Abs(val - computed)
		v.Delta = &delta

		if band != nil && val >= band[0] && val <= band[1] {
			v.Agreement = AgreementConfirm
			v.Detail = fmt.Sprintf("asserted %g inside computed interval [%g, %g]", val, band[0], band[1])
			return
		}
		if c.withinRelative(delta, computed) {
			v.Agreement = AgreementConfirm
			v.Detail = fmt.Sprintf("asserted %g within %.0f%% of computed %g", val, c.tol.RelativeDeviation*100, computed)
			return
		}
		v.Agreement = AgreementConflict
		v.Detail = fmt.Sprintf("asserted %g deviates from computed %g beyond %.0f%% tolerance", val, computed, c.tol.RelativeDeviation*100)
		return
	}

	low, high := *a.Low, *a.High
	if computed >= low && computed <= high {
		zero := 0.0
		v.Delta = &zero
		v.Agreement = AgreementConfirm
		v.Detail = fmt.Sprintf("computed %g inside asserted range [%g, %g]", computed, low, high)
		return
	}
	delta := low - computed
	if computed > high {
		delta = computed - high
	}
	v.Delta = &delta
	v.Agreement = AgreementConflict
	v.Detail = fmt.Sprintf("computed %g outside asserted range [%g, %g]", computed, low, high)
}

// withinRelative reports whether a deviation sits inside the tolerance
// band. A zero computed value switches to absolute deviation.
func (c Comparator) withinRelative(delta, computed float64) bool {
	base := math.Abs(computed)
	if base == 0 {
		return delta <= c.tol.RelativeDeviation
	}
	return delta/base <= c.tol.RelativeDeviation
}

// incomparable marks a conflict whose quantities cannot be compared.
func (c Comparator) incomparable(v *Verdict, detail string) {
	v.Agreement = AgreementConflict
	v.Detail = detail
}
