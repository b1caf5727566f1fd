// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sampler

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/albarami/QNWIS-sub009/services/quant/engine"
)

func normalVar(name string, mean, std float64) engine.Variable {
	return engine.Variable{
		Name:         name,
		Distribution: engine.DistributionNormal,
		Parameters:   engine.Parameters{Mean: mean, Std: std},
	}
}

func TestDraw_NormalMoments(t *testing.T) {
	samples, err := Draw(normalVar("salary", 100, 15), 100_000, engine.NewRand(42))
	if err != nil {
		t.Fatalf("Draw error: %v", err)
	}

	s, err := Summarize(samples)
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if math.Abs(s.Mean-100) > 0.5 {
		t.Errorf("mean = %v, want 100 +/- 0.5", s.Mean)
	}
	if math.Abs(s.Std-15) > 0.5 {
		t.Errorf("std = %v, want 15 +/- 0.5", s.Std)
	}
	if math.Abs(s.P5-75.3) > 2 {
		t.Errorf("p5 = %v, want 75.3 +/- 2", s.P5)
	}
	if math.Abs(s.P95-124.7) > 2 {
		t.Errorf("p95 = %v, want 124.7 +/- 2", s.P95)
	}
}

func TestDraw_UniformMoments(t *testing.T) {
	v := engine.Variable{
		Name:         "rate",
		Distribution: engine.DistributionUniform,
		Parameters:   engine.Parameters{Min: 0, Max: 100},
	}
	samples, err := Draw(v, 100_000, engine.NewRand(7))
	if err != nil {
		t.Fatalf("Draw error: %v", err)
	}

	s, err := Summarize(samples)
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if math.Abs(s.Mean-50) > 1 {
		t.Errorf("mean = %v, want 50 +/- 1", s.Mean)
	}
	if math.Abs(s.Std-28.87) > 1 {
		t.Errorf("std = %v, want 28.87 +/- 1", s.Std)
	}
	if s.Min < 0 || s.Max >= 100 {
		t.Errorf("range [%v, %v] outside [0, 100)", s.Min, s.Max)
	}
}

func TestDraw_Constant(t *testing.T) {
	v := engine.Variable{
		Name:         "baseline",
		Distribution: engine.DistributionConstant,
		Parameters:   engine.Parameters{Value: 47_000},
	}
	samples, err := Draw(v, 1000, engine.NewRand(1))
	if err != nil {
		t.Fatalf("Draw error: %v", err)
	}
	for i, x := range samples {
		if x != 47_000 {
			t.Fatalf("samples[%d] = %v, want 47000", i, x)
		}
	}

	s, err := Summarize(samples)
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if s.Std != 0 {
		t.Errorf("std = %v, want 0", s.Std)
	}
	if s.P5 != 47_000 || s.P95 != 47_000 {
		t.Errorf("percentiles = [%v, %v], want 47000", s.P5, s.P95)
	}
}

// Bootstrap resampling only replays observed values; it never
// interpolates between them.
func TestDraw_HistoricalMembership(t *testing.T) {
	source := []float64{1.2, 3.4, 5.6, 7.8}
	v := engine.Variable{
		Name:         "gdp_growth",
		Distribution: engine.DistributionHistorical,
		Parameters:   engine.Parameters{Values: source},
	}
	samples, err := Draw(v, 10_000, engine.NewRand(99))
	if err != nil {
		t.Fatalf("Draw error: %v", err)
	}

	allowed := make(map[float64]bool, len(source))
	for _, x := range source {
		allowed[x] = true
	}
	seen := make(map[float64]bool)
	for i, x := range samples {
		if !allowed[x] {
			t.Fatalf("samples[%d] = %v not in source set", i, x)
		}
		seen[x] = true
	}
	if len(seen) != len(source) {
		t.Errorf("10k draws hit %d of %d source values", len(seen), len(source))
	}
}

func TestDraw_SeededReproducibility(t *testing.T) {
	v := normalVar("x", 0, 1)

	a, err := Draw(v, 500, engine.NewRand(1234))
	if err != nil {
		t.Fatalf("Draw error: %v", err)
	}
	b, err := Draw(v, 500, engine.NewRand(1234))
	if err != nil {
		t.Fatalf("Draw error: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed diverged at index %d: %v != %v", i, a[i], b[i])
		}
	}

	c, err := Draw(v, 500, engine.NewRand(1235))
	if err != nil {
		t.Fatalf("Draw error: %v", err)
	}
	same := 0
	for i := range a {
		if a[i] == c[i] {
			same++
		}
	}
	if same == len(a) {
		t.Error("different seeds produced identical draws")
	}
}

func TestDraw_Rejects(t *testing.T) {
	if _, err := Draw(normalVar("x", 0, 1), 0, engine.NewRand(1)); !errors.Is(err, engine.ErrInvalidRequest) {
		t.Errorf("n=0: error = %v, want ErrInvalidRequest", err)
	}
	if _, err := Draw(normalVar("x", 0, 1), -5, engine.NewRand(1)); !errors.Is(err, engine.ErrInvalidRequest) {
		t.Errorf("n<0: error = %v, want ErrInvalidRequest", err)
	}

	bad := engine.Variable{Name: "x", Distribution: "triangular"}
	if _, err := Draw(bad, 10, engine.NewRand(1)); !errors.Is(err, engine.ErrInvalidRequest) {
		t.Errorf("unknown distribution: error = %v, want ErrInvalidRequest", err)
	}

	empty := engine.Variable{Name: "x", Distribution: engine.DistributionHistorical}
	if _, err := Draw(empty, 10, engine.NewRand(1)); !errors.Is(err, engine.ErrInvalidRequest) {
		t.Errorf("empty historical: error = %v, want ErrInvalidRequest", err)
	}
}

func TestSummarize_PercentilesOrdered(t *testing.T) {
	samples, err := Draw(normalVar("x", 50, 20), 5000, engine.NewRand(3))
	if err != nil {
		t.Fatalf("Draw error: %v", err)
	}
	s, err := Summarize(samples)
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}

	order := []float64{s.Min, s.P5, s.P25, s.P50, s.P75, s.P95, s.Max}
	for i := 1; i < len(order); i++ {
		if order[i] < order[i-1] {
			t.Fatalf("percentiles out of order: %v", order)
		}
	}
}

func TestQuantile_OrderStatisticInterpolation(t *testing.T) {
	sorted := []float64{80, 85, 87, 90, 92}

	// The median of an odd-length sample is its middle element.
	if got := Quantile(sorted, 0.5); got != 87 {
		t.Errorf("median = %v, want 87", got)
	}
	if got := Quantile(sorted, 0); got != 80 {
		t.Errorf("p0 = %v, want 80", got)
	}
	if got := Quantile(sorted, 1); got != 92 {
		t.Errorf("p100 = %v, want 92", got)
	}
	// Quartiles land on exact order statistics for five points; p62.5
	// interpolates halfway between the third and fourth.
	if got := Quantile(sorted, 0.25); got != 85 {
		t.Errorf("p25 = %v, want 85", got)
	}
	if got := Quantile(sorted, 0.75); got != 90 {
		t.Errorf("p75 = %v, want 90", got)
	}
	if got := Quantile(sorted, 0.625); got != 88.5 {
		t.Errorf("p62.5 = %v, want 88.5", got)
	}

	if got := Quantile([]float64{1, 2}, 0.5); got != 1.5 {
		t.Errorf("two-point median = %v, want 1.5", got)
	}
	if got := Quantile([]float64{7}, 0.5); got != 7 {
		t.Errorf("single-point quantile = %v, want 7", got)
	}
}

func TestSummarize_Edges(t *testing.T) {
	if _, err := Summarize(nil); !errors.Is(err, engine.ErrInsufficientData) {
		t.Errorf("empty: error = %v, want ErrInsufficientData", err)
	}

	s, err := Summarize([]float64{3.5})
	if err != nil {
		t.Fatalf("single sample: %v", err)
	}
	if s.Mean != 3.5 || s.Std != 0 || s.P50 != 3.5 {
		t.Errorf("single sample summary = %+v", s)
	}
}

func TestService_Sample(t *testing.T) {
	svc := NewService(Config{})
	seed := uint64(77)

	resp, err := svc.Sample(context.Background(), &Request{
		Variable: normalVar("salary", 9000, 1500),
		NSamples: 20_000,
		Seed:     &seed,
	})
	if err != nil {
		t.Fatalf("Sample error: %v", err)
	}
	if resp.Seed != 77 {
		t.Errorf("Seed = %d, want 77", resp.Seed)
	}
	if resp.Samples != nil {
		t.Error("samples echoed without include_samples")
	}
	if math.Abs(resp.Summary.Mean-9000) > 50 {
		t.Errorf("mean = %v, want ~9000", resp.Summary.Mean)
	}
	if resp.RequestID == "" || resp.ResponseID == "" {
		t.Error("response meta not populated")
	}

	again, err := svc.Sample(context.Background(), &Request{
		Variable: normalVar("salary", 9000, 1500),
		NSamples: 20_000,
		Seed:     &seed,
	})
	if err != nil {
		t.Fatalf("Sample error: %v", err)
	}
	if again.Summary != resp.Summary {
		t.Error("same seed produced different summaries")
	}
}

func TestService_SampleIncludeSamplesCapped(t *testing.T) {
	svc := NewService(Config{MaxReturned: 100})
	resp, err := svc.Sample(context.Background(), &Request{
		Variable:       normalVar("x", 0, 1),
		NSamples:       5000,
		IncludeSamples: true,
	})
	if err != nil {
		t.Fatalf("Sample error: %v", err)
	}
	if len(resp.Samples) != 100 {
		t.Errorf("len(samples) = %d, want 100", len(resp.Samples))
	}
	if resp.NSamples != 5000 {
		t.Errorf("NSamples = %d, want 5000", resp.NSamples)
	}
}

func TestService_SampleRejects(t *testing.T) {
	svc := NewService(Config{MaxSamples: 1000})

	if _, err := svc.Sample(context.Background(), nil); !errors.Is(err, engine.ErrInvalidRequest) {
		t.Errorf("nil request: error = %v, want ErrInvalidRequest", err)
	}

	if _, err := svc.Sample(context.Background(), &Request{
		Variable: normalVar("x", 0, 1),
		NSamples: 5000,
	}); !errors.Is(err, engine.ErrInvalidRequest) {
		t.Errorf("over limit: error = %v, want ErrInvalidRequest", err)
	}

	if _, err := svc.Sample(context.Background(), &Request{
		Variable: normalVar("x", 0, -1),
		NSamples: 10,
	}); !errors.Is(err, engine.ErrInvalidRequest) {
		t.Errorf("bad std: error = %v, want ErrInvalidRequest", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Sample(ctx, &Request{
		Variable: normalVar("x", 0, 1),
		NSamples: 10,
	}); !errors.Is(err, engine.ErrComputeTimeout) {
		t.Errorf("canceled context: error = %v, want ErrComputeTimeout", err)
	}
}
