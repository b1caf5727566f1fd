// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package montecarlo

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/albarami/QNWIS-sub009/services/quant/engine"
)

func seedPtr(s uint64) *uint64 { return &s }

func normalVar(name string, mean, std float64) engine.Variable {
	return engine.Variable{
		Name:         name,
		Distribution: engine.DistributionNormal,
		Parameters:   engine.Parameters{Mean: mean, Std: std},
	}
}

func TestRun_NormalIdentityMoments(t *testing.T) {
	svc := NewService(Config{})
	res, err := svc.Run(context.Background(), &Request{
		Variables:      []engine.Variable{normalVar("salary", 100, 15)},
		OutcomeFormula: "salary",
		NSimulations:   100_000,
		Seed:           seedPtr(42),
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if math.Abs(res.Mean-100) > 0.5 {
		t.Errorf("mean = %v, want 100 +/- 0.5", res.Mean)
	}
	if math.Abs(res.Std-15) > 0.5 {
		t.Errorf("std = %v, want 15 +/- 0.5", res.Std)
	}
	if math.Abs(res.P5-75.3) > 2 {
		t.Errorf("p5 = %v, want 75.3 +/- 2", res.P5)
	}
	if math.Abs(res.P95-124.7) > 2 {
		t.Errorf("p95 = %v, want 124.7 +/- 2", res.P95)
	}
	if !(res.P5 <= res.P50 && res.P50 <= res.P95) {
		t.Errorf("percentiles out of order: %v %v %v", res.P5, res.P50, res.P95)
	}
	if res.SuccessRate != nil {
		t.Error("success_rate should be nil without a condition")
	}
	if !res.GPUAccelerated {
		t.Error("vectorized run should report gpu_accelerated")
	}
}

func TestRun_ThreeVariableStudy(t *testing.T) {
	svc := NewService(Config{})
	res, err := svc.Run(context.Background(), &Request{
		Variables: []engine.Variable{
			normalVar("private_sector_jobs", 1_850_000, 50_000),
			{
				Name:         "qatarization_rate",
				Distribution: engine.DistributionUniform,
				Parameters:   engine.Parameters{Min: 0.10, Max: 0.30},
			},
			{
				Name:         "annual_attrition",
				Distribution: engine.DistributionConstant,
				Parameters:   engine.Parameters{Value: 5000},
			},
		},
		OutcomeFormula:   "private_sector_jobs * qatarization_rate - annual_attrition",
		NSimulations:     100_000,
		SuccessCondition: "outcome > 200000",
		Seed:             seedPtr(2026),
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	// E[jobs * rate] - attrition = 1.85e6 * 0.2 - 5000 = 365000.
	if math.Abs(res.Mean-365_000) > 5000 {
		t.Errorf("mean = %v, want ~365000", res.Mean)
	}
	if res.SuccessRate == nil {
		t.Fatal("success_rate missing")
	}
	if *res.SuccessRate <= 0.5 || *res.SuccessRate >= 1 {
		t.Errorf("success_rate = %v, want in (0.5, 1)", *res.SuccessRate)
	}
	if res.NSimulations != 100_000 {
		t.Errorf("n_simulations = %d, want 100000", res.NSimulations)
	}
	if res.DroppedDraws != 0 {
		t.Errorf("dropped = %d, want 0", res.DroppedDraws)
	}

	// The rate drives most of the outcome spread; the constant none.
	if res.Sensitivity["qatarization_rate"] < 0.5 {
		t.Errorf("rate contribution = %v, want > 0.5", res.Sensitivity["qatarization_rate"])
	}
	if res.Sensitivity["annual_attrition"] != 0 {
		t.Errorf("constant contribution = %v, want 0", res.Sensitivity["annual_attrition"])
	}
}

func TestRun_SuccessRateCentered(t *testing.T) {
	svc := NewService(Config{})
	res, err := svc.Run(context.Background(), &Request{
		Variables:        []engine.Variable{normalVar("salary", 9000, 1500)},
		OutcomeFormula:   "salary",
		NSimulations:     100_000,
		SuccessCondition: "outcome > 9000",
		Seed:             seedPtr(7),
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.SuccessRate == nil {
		t.Fatal("success_rate missing")
	}
	if math.Abs(*res.SuccessRate-0.5) > 0.02 {
		t.Errorf("success_rate = %v, want 0.5 +/- 0.02", *res.SuccessRate)
	}
}

func TestRun_SeededIdempotence(t *testing.T) {
	svc := NewService(Config{})
	req := func() *Request {
		return &Request{
			Variables: []engine.Variable{
				normalVar("a", 10, 2),
				normalVar("b", 5, 1),
			},
			OutcomeFormula:   "a * b",
			NSimulations:     50_000,
			SuccessCondition: "outcome > 50",
			Seed:             seedPtr(555),
		}
	}

	first, err := svc.Run(context.Background(), req())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	second, err := svc.Run(context.Background(), req())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if first.Mean != second.Mean || first.Std != second.Std {
		t.Errorf("moments diverged: (%v,%v) != (%v,%v)", first.Mean, first.Std, second.Mean, second.Std)
	}
	if first.P5 != second.P5 || first.P50 != second.P50 || first.P95 != second.P95 {
		t.Error("percentiles diverged across identical seeded runs")
	}
	if *first.SuccessRate != *second.SuccessRate {
		t.Error("success_rate diverged across identical seeded runs")
	}
	for name, c := range first.Sensitivity {
		if second.Sensitivity[name] != c {
			t.Errorf("sensitivity[%s] diverged: %v != %v", name, c, second.Sensitivity[name])
		}
	}
}

// Strategy changes scheduling, never numbers.
func TestRun_ScalarMatchesVectorized(t *testing.T) {
	req := func() *Request {
		return &Request{
			Variables: []engine.Variable{
				normalVar("x", 100, 10),
				{
					Name:         "y",
					Distribution: engine.DistributionUniform,
					Parameters:   engine.Parameters{Min: 1, Max: 2},
				},
			},
			OutcomeFormula: "x ** 1.5 / y",
			NSimulations:   20_000,
			Seed:           seedPtr(31),
		}
	}

	vec, err := NewService(Config{Strategy: engine.StrategyVectorized}).Run(context.Background(), req())
	if err != nil {
		t.Fatalf("vectorized Run error: %v", err)
	}
	sca, err := NewService(Config{Strategy: engine.StrategyScalar}).Run(context.Background(), req())
	if err != nil {
		t.Fatalf("scalar Run error: %v", err)
	}

	if vec.Mean != sca.Mean || vec.Std != sca.Std || vec.P5 != sca.P5 || vec.P95 != sca.P95 {
		t.Error("strategies disagree on identical seeded input")
	}
	if !vec.GPUAccelerated {
		t.Error("vectorized run should report gpu_accelerated")
	}
	if sca.GPUAccelerated {
		t.Error("scalar run should not report gpu_accelerated")
	}
}

func TestRun_SensitivityDominantDriver(t *testing.T) {
	svc := NewService(Config{})
	res, err := svc.Run(context.Background(), &Request{
		Variables: []engine.Variable{
			normalVar("a", 0, 1),
			normalVar("b", 0, 1),
		},
		OutcomeFormula: "10 * a + b",
		NSimulations:   50_000,
		Seed:           seedPtr(13),
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if res.Sensitivity["a"] < 0.8 {
		t.Errorf("contribution[a] = %v, want > 0.8", res.Sensitivity["a"])
	}
	if res.Sensitivity["b"] > 0.2 {
		t.Errorf("contribution[b] = %v, want < 0.2", res.Sensitivity["b"])
	}
	sum := res.Sensitivity["a"] + res.Sensitivity["b"]
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("contributions sum to %v, want 1", sum)
	}
}

func TestRun_AllConstantVariables(t *testing.T) {
	svc := NewService(Config{})
	res, err := svc.Run(context.Background(), &Request{
		Variables: []engine.Variable{
			{Name: "supply", Distribution: engine.DistributionConstant, Parameters: engine.Parameters{Value: 47_000}},
			{Name: "demand", Distribution: engine.DistributionConstant, Parameters: engine.Parameters{Value: 50_000}},
		},
		OutcomeFormula: "demand - supply",
		NSimulations:   1000,
		Seed:           seedPtr(1),
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if res.Mean != 3000 {
		t.Errorf("mean = %v, want exactly 3000", res.Mean)
	}
	if res.Std != 0 {
		t.Errorf("std = %v, want exactly 0", res.Std)
	}
	if res.P5 != 3000 || res.P95 != 3000 {
		t.Errorf("percentiles = [%v, %v], want 3000", res.P5, res.P95)
	}
	for name, c := range res.Sensitivity {
		if c != 0 {
			t.Errorf("sensitivity[%s] = %v, want 0", name, c)
		}
	}
}

func TestRun_DropWithinTolerance(t *testing.T) {
	// One poison value in 200: sqrt faults on ~0.5% of draws, inside
	// the 1% default tolerance.
	values := make([]float64, 200)
	for i := range values {
		values[i] = 4
	}
	values[0] = -4

	svc := NewService(Config{})
	res, err := svc.Run(context.Background(), &Request{
		Variables: []engine.Variable{{
			Name:         "flow",
			Distribution: engine.DistributionHistorical,
			Parameters:   engine.Parameters{Values: values},
		}},
		OutcomeFormula: "sqrt(flow)",
		NSimulations:   20_000,
		Seed:           seedPtr(17),
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.DroppedDraws == 0 {
		t.Error("expected some dropped draws")
	}
	if res.Mean != 2 {
		t.Errorf("mean = %v, want 2 (all surviving draws are sqrt(4))", res.Mean)
	}
}

func TestRun_DegradedBeyondTolerance(t *testing.T) {
	svc := NewService(Config{})
	_, err := svc.Run(context.Background(), &Request{
		Variables:      []engine.Variable{normalVar("x", 0, 1)},
		OutcomeFormula: "log(x)",
		NSimulations:   10_000,
		Seed:           seedPtr(3),
	})
	if !errors.Is(err, engine.ErrSimulationDegraded) {
		t.Errorf("error = %v, want ErrSimulationDegraded", err)
	}
}

func TestRun_Rejects(t *testing.T) {
	svc := NewService(Config{MaxSimulations: 1000})
	base := func() *Request {
		return &Request{
			Variables:      []engine.Variable{normalVar("x", 0, 1)},
			OutcomeFormula: "x",
			NSimulations:   100,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Request)
		want   error
	}{
		{"zero simulations", func(r *Request) { r.NSimulations = 0 }, engine.ErrInvalidRequest},
		{"negative simulations", func(r *Request) { r.NSimulations = -1 }, engine.ErrInvalidRequest},
		{"over limit", func(r *Request) { r.NSimulations = 5000 }, engine.ErrInvalidRequest},
		{"no variables", func(r *Request) { r.Variables = nil }, engine.ErrInvalidRequest},
		{"empty formula", func(r *Request) { r.OutcomeFormula = "" }, engine.ErrInvalidRequest},
		{"undeclared variable", func(r *Request) { r.OutcomeFormula = "x + ghost" }, engine.ErrInvalidExpression},
		{"malformed formula", func(r *Request) { r.OutcomeFormula = "x ++" }, engine.ErrInvalidExpression},
		{"condition over variable name", func(r *Request) { r.SuccessCondition = "x > 0" }, engine.ErrInvalidExpression},
		{"condition without comparison", func(r *Request) { r.SuccessCondition = "outcome" }, engine.ErrInvalidExpression},
		{"duplicate variables", func(r *Request) {
			r.Variables = append(r.Variables, normalVar("x", 1, 1))
		}, engine.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base()
			tt.mutate(req)
			if _, err := svc.Run(context.Background(), req); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewService(Config{})
	_, err := svc.Run(ctx, &Request{
		Variables:      []engine.Variable{normalVar("x", 0, 1)},
		OutcomeFormula: "x",
		NSimulations:   100_000,
		Seed:           seedPtr(5),
	})
	if !errors.Is(err, engine.ErrComputeTimeout) {
		t.Errorf("error = %v, want ErrComputeTimeout", err)
	}
}

func TestRun_NilRequest(t *testing.T) {
	svc := NewService(Config{})
	if _, err := svc.Run(context.Background(), nil); !errors.Is(err, engine.ErrInvalidRequest) {
		t.Errorf("error = %v, want ErrInvalidRequest", err)
	}
}
