// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sensitivity

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/albarami/QNWIS-sub009/services/quant/engine"
)

func TestAnalyze_RankingAndMagnitude(t *testing.T) {
	svc := NewService()
	res, err := svc.Analyze(context.Background(), &Request{
		BaseCase:       map[string]float64{"wage_bill": 100, "subsidy": 10},
		OutcomeFormula: "2 * wage_bill + subsidy",
		OutcomeName:    "total_cost",
	})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}

	if res.BaseOutcome != 210 {
		t.Fatalf("base_outcome = %v, want 210", res.BaseOutcome)
	}
	if res.VaryBy != DefaultVaryBy {
		t.Errorf("vary_by = %v, want %v", res.VaryBy, DefaultVaryBy)
	}
	if res.TopDriver != "wage_bill" {
		t.Errorf("top_driver = %q, want wage_bill", res.TopDriver)
	}
	if len(res.Sensitivity) != 2 {
		t.Fatalf("len(sensitivity) = %d, want 2", len(res.Sensitivity))
	}

	first, second := res.Sensitivity[0], res.Sensitivity[1]
	if first.Parameter != "wage_bill" || first.Rank != 1 {
		t.Errorf("rank 1 = %+v, want wage_bill", first)
	}
	if second.Parameter != "subsidy" || second.Rank != 2 {
		t.Errorf("rank 2 = %+v, want subsidy", second)
	}

	// 10% on wage_bill moves the outcome by 20 of 210.
	if math.Abs(first.ImpactPct-20.0/210*100) > 1e-9 {
		t.Errorf("wage_bill impact = %v, want %v", first.ImpactPct, 20.0/210*100)
	}
	if math.Abs(second.ImpactPct-1.0/210*100) > 1e-9 {
		t.Errorf("subsidy impact = %v, want %v", second.ImpactPct, 1.0/210*100)
	}
}

func TestAnalyze_MultiplicativeImpact(t *testing.T) {
	svc := NewService()
	res, err := svc.Analyze(context.Background(), &Request{
		BaseCase:       map[string]float64{"jobs": 10_000, "rate": 0.2},
		OutcomeFormula: "jobs * rate",
	})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}

	// Both factors scale the outcome linearly: each impact is exactly
	// the 10% perturbation.
	for _, imp := range res.Sensitivity {
		if math.Abs(imp.ImpactPct-10) > 1e-9 {
			t.Errorf("%s impact = %v, want 10", imp.Parameter, imp.ImpactPct)
		}
		if imp.Direction != DirectionPositive {
			t.Errorf("%s direction = %s, want positive", imp.Parameter, imp.Direction)
		}
	}

	// Equal impacts break ties lexically.
	if res.Sensitivity[0].Parameter != "jobs" || res.Sensitivity[1].Parameter != "rate" {
		t.Errorf("tie order = [%s, %s], want [jobs, rate]",
			res.Sensitivity[0].Parameter, res.Sensitivity[1].Parameter)
	}
}

func TestAnalyze_Directions(t *testing.T) {
	svc := NewService()
	res, err := svc.Analyze(context.Background(), &Request{
		BaseCase:       map[string]float64{"x": 100, "z": 30},
		OutcomeFormula: "x - z",
	})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}

	byName := map[string]Impact{}
	for _, imp := range res.Sensitivity {
		byName[imp.Parameter] = imp
	}
	if byName["x"].Direction != DirectionPositive {
		t.Errorf("x direction = %s, want positive", byName["x"].Direction)
	}
	if byName["z"].Direction != DirectionNegative {
		t.Errorf("z direction = %s, want negative", byName["z"].Direction)
	}
}

// Direction must describe the outcome's response to a LARGER parameter
// value even when the base value is negative: the identity formula is
// positive for any base sign.
func TestAnalyze_NegativeBaseDirections(t *testing.T) {
	svc := NewService()

	for _, base := range []float64{-10, 10} {
		res, err := svc.Analyze(context.Background(), &Request{
			BaseCase:       map[string]float64{"x": base},
			OutcomeFormula: "x",
		})
		if err != nil {
			t.Fatalf("Analyze(base=%v) error: %v", base, err)
		}
		if res.Sensitivity[0].Direction != DirectionPositive {
			t.Errorf("base %v: direction = %s, want positive for the identity formula",
				base, res.Sensitivity[0].Direction)
		}
	}

	// A budget deficit and a levy, both carried as negative amounts.
	// Raising the deficit raises the shortfall, raising the levy lowers
	// it, regardless of the negative bases.
	res, err := svc.Analyze(context.Background(), &Request{
		BaseCase:       map[string]float64{"deficit": -10, "levy": -4},
		OutcomeFormula: "deficit - levy",
	})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if res.BaseOutcome != -6 {
		t.Fatalf("base_outcome = %v, want -6", res.BaseOutcome)
	}

	byName := map[string]Impact{}
	for _, imp := range res.Sensitivity {
		byName[imp.Parameter] = imp
	}
	if byName["deficit"].Direction != DirectionPositive {
		t.Errorf("deficit direction = %s, want positive", byName["deficit"].Direction)
	}
	if byName["levy"].Direction != DirectionNegative {
		t.Errorf("levy direction = %s, want negative", byName["levy"].Direction)
	}

	// Steps scale with magnitude: |Δ| of 1 and 0.4 against a base
	// outcome of -6.
	if math.Abs(byName["deficit"].ImpactPct-100.0/6) > 1e-9 {
		t.Errorf("deficit impact = %v, want %v", byName["deficit"].ImpactPct, 100.0/6)
	}
	if math.Abs(byName["levy"].ImpactPct-40.0/6) > 1e-9 {
		t.Errorf("levy impact = %v, want %v", byName["levy"].ImpactPct, 40.0/6)
	}
	if res.TopDriver != "deficit" {
		t.Errorf("top_driver = %q, want deficit", res.TopDriver)
	}
}

// When the upward perturbation saturates, the downward one decides the
// direction.
func TestAnalyze_FlatUpwardPerturbation(t *testing.T) {
	svc := NewService()
	res, err := svc.Analyze(context.Background(), &Request{
		BaseCase:       map[string]float64{"x": 5},
		OutcomeFormula: "min(x, 5)",
	})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}

	imp := res.Sensitivity[0]
	// Up: min(5.5, 5) stays 5. Down: min(4.5, 5) drops to 4.5, so the
	// outcome still moves with x.
	if imp.Direction != DirectionPositive {
		t.Errorf("direction = %s, want positive (outcome falls when x falls)", imp.Direction)
	}
	if math.Abs(imp.ImpactPct-10) > 1e-9 {
		t.Errorf("impact = %v, want 10", imp.ImpactPct)
	}
}

func TestAnalyze_ZeroBaseOutcomeFallback(t *testing.T) {
	svc := NewService()
	res, err := svc.Analyze(context.Background(), &Request{
		BaseCase:       map[string]float64{"supply": 5000, "demand": 5000},
		OutcomeFormula: "supply - demand",
	})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}

	if res.BaseOutcome != 0 {
		t.Fatalf("base_outcome = %v, want 0", res.BaseOutcome)
	}
	for _, imp := range res.Sensitivity {
		if math.IsNaN(imp.ImpactPct) || math.IsInf(imp.ImpactPct, 0) {
			t.Fatalf("%s impact not finite: %v", imp.Parameter, imp.ImpactPct)
		}
		// Absolute fallback: 10% of 5000 either way.
		if math.Abs(imp.ImpactPct-500) > 1e-9 {
			t.Errorf("%s impact = %v, want 500", imp.Parameter, imp.ImpactPct)
		}
	}
}

func TestAnalyze_UnreferencedParameter(t *testing.T) {
	svc := NewService()
	res, err := svc.Analyze(context.Background(), &Request{
		BaseCase:       map[string]float64{"active": 10, "idle": 99},
		OutcomeFormula: "active * 2",
	})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}

	if res.TopDriver != "active" {
		t.Errorf("top_driver = %q, want active", res.TopDriver)
	}
	for _, imp := range res.Sensitivity {
		if imp.Parameter == "idle" && imp.ImpactPct != 0 {
			t.Errorf("idle impact = %v, want 0", imp.ImpactPct)
		}
	}
}

func TestAnalyze_CustomVaryBy(t *testing.T) {
	svc := NewService()
	res, err := svc.Analyze(context.Background(), &Request{
		BaseCase:       map[string]float64{"x": 100},
		OutcomeFormula: "x",
		VaryBy:         0.5,
	})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if res.VaryBy != 0.5 {
		t.Errorf("vary_by = %v, want 0.5", res.VaryBy)
	}
	if math.Abs(res.Sensitivity[0].ImpactPct-50) > 1e-9 {
		t.Errorf("impact = %v, want 50", res.Sensitivity[0].ImpactPct)
	}
}

func TestAnalyze_Rejects(t *testing.T) {
	svc := NewService()

	tests := []struct {
		name string
		req  *Request
		want error
	}{
		{"nil request", nil, engine.ErrInvalidRequest},
		{"empty base case", &Request{
			BaseCase:       map[string]float64{},
			OutcomeFormula: "1",
		}, engine.ErrInvalidRequest},
		{"non-finite value", &Request{
			BaseCase:       map[string]float64{"x": math.NaN()},
			OutcomeFormula: "x",
		}, engine.ErrInvalidRequest},
		{"vary_by above 1", &Request{
			BaseCase:       map[string]float64{"x": 1},
			OutcomeFormula: "x",
			VaryBy:         1.5,
		}, engine.ErrInvalidRequest},
		{"vary_by negative", &Request{
			BaseCase:       map[string]float64{"x": 1},
			OutcomeFormula: "x",
			VaryBy:         -0.1,
		}, engine.ErrInvalidRequest},
		{"undeclared variable", &Request{
			BaseCase:       map[string]float64{"x": 1},
			OutcomeFormula: "x + ghost",
		}, engine.ErrInvalidExpression},
		{"empty formula", &Request{
			BaseCase: map[string]float64{"x": 1},
		}, engine.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Analyze(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAnalyze_PerturbationFaultSurfaces(t *testing.T) {
	svc := NewService()
	// vary_by of 1 drives the denominator to zero on the downward
	// perturbation.
	_, err := svc.Analyze(context.Background(), &Request{
		BaseCase:       map[string]float64{"x": 5, "budget": 10},
		OutcomeFormula: "budget / x",
		VaryBy:         1,
	})
	if !errors.Is(err, engine.ErrEvaluation) {
		t.Errorf("error = %v, want ErrEvaluation", err)
	}
}

func TestAnalyze_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewService()
	_, err := svc.Analyze(ctx, &Request{
		BaseCase:       map[string]float64{"x": 1},
		OutcomeFormula: "x",
	})
	if !errors.Is(err, engine.ErrComputeTimeout) {
		t.Errorf("error = %v, want ErrComputeTimeout", err)
	}
}
