// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package montecarlo runs seeded simulation studies over declared
// variables.
//
// # Description
//
// A run samples every declared variable n_simulations times, evaluates
// the outcome formula per draw, and reports the outcome distribution
// (mean, population std, p5/p50/p95), the success-condition rate when
// one is supplied, and a per-variable sensitivity attribution from the
// Pearson correlation between each variable's draws and the outcomes.
//
// # Determinism
//
// Every variable reads its own random stream derived from the request
// seed and the variable's declaration index. Worker count and strategy
// change scheduling only; a seeded run returns identical numbers on
// any machine.
//
// # Degradation
//
// Draws whose evaluation faults (division by zero, log domain,
// overflow) are dropped. A run that loses more than the configured
// tolerance of its draws fails with ErrSimulationDegraded rather than
// reporting statistics over a biased remainder.
//
// # Thread Safety
//
// The Service is stateless; Run may be called concurrently.
package montecarlo

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/albarami/QNWIS-sub009/services/quant/engine"
	"github.com/albarami/QNWIS-sub009/services/quant/formula"
	"github.com/albarami/QNWIS-sub009/services/quant/sampler"
)

// conditionVariable is the single name a success condition may
// reference.
const conditionVariable = "outcome"

// Service runs Monte Carlo simulations.
type Service struct {
	config Config
}

// NewService builds a simulation service, filling unset fields from
// DefaultConfig.
func NewService(config Config) *Service {
	def := DefaultConfig()
	if !config.Strategy.Valid() {
		config.Strategy = def.Strategy
	}
	if config.MaxSimulations <= 0 {
		config.MaxSimulations = def.MaxSimulations
	}
	if config.DropTolerance <= 0 {
		config.DropTolerance = def.DropTolerance
	}
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	return &Service{config: config}
}

// Run executes one simulation request.
//
// The request is validated and its formulas compiled before any
// sampling happens, so malformed inputs never cost a draw.
func (s *Service) Run(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", engine.ErrInvalidRequest)
	}
	req.EnsureDefaults()
	if err := engine.ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := engine.ValidateVariables(req.Variables); err != nil {
		return nil, err
	}
	if req.NSimulations > s.config.MaxSimulations {
		return nil, fmt.Errorf("%w: n_simulations %d exceeds limit %d",
			engine.ErrInvalidRequest, req.NSimulations, s.config.MaxSimulations)
	}

	names := make([]string, len(req.Variables))
	for i, v := range req.Variables {
		names[i] = v.Name
	}
	prog, err := formula.Compile(req.OutcomeFormula, names)
	if err != nil {
		return nil, err
	}
	var cond *formula.Condition
	if req.SuccessCondition != "" {
		cond, err = formula.CompileCondition(req.SuccessCondition, []string{conditionVariable})
		if err != nil {
			return nil, err
		}
	}

	seed := engine.RandomSeed()
	if req.Seed != nil {
		seed = *req.Seed
	}
	vectorized := s.config.Strategy == engine.StrategyVectorized
	start := time.Now()

	cols, err := drawMatrix(ctx, req.Variables, req.NSimulations, seed, vectorized)
	if err != nil {
		return nil, err
	}
	eval, err := evaluate(ctx, prog, cond, cols, req.NSimulations, s.config.Workers, vectorized)
	if err != nil {
		return nil, err
	}

	ratio := float64(eval.dropped) / float64(req.NSimulations)
	if ratio > s.config.DropTolerance {
		return nil, fmt.Errorf("%w: dropped %d of %d draws (%.2f%% > %.2f%% tolerance)",
			engine.ErrSimulationDegraded, eval.dropped, req.NSimulations,
			ratio*100, s.config.DropTolerance*100)
	}

	kept := eval.compact()
	summary, err := sampler.Summarize(kept)
	if err != nil {
		return nil, err
	}

	result := &Result{
		ResponseMeta:   engine.NewResponseMeta(req.RequestID),
		Mean:           summary.Mean,
		Std:            summary.Std,
		P5:             summary.P5,
		P50:            summary.P50,
		P95:            summary.P95,
		NSimulations:   req.NSimulations,
		DroppedDraws:   eval.dropped,
		Sensitivity:    sensitivityMap(prog, cols, kept, eval, names),
		GPUAccelerated: vectorized,
		Seed:           seed,
	}
	if cond != nil {
		rate := float64(eval.successes) / float64(len(kept))
		result.SuccessRate = &rate
	}
	result.ElapsedMS = float64(time.Since(start).Microseconds()) / 1000.0
	return result, nil
}

// sensitivityMap attributes outcome variance to variables by normalized
// absolute Pearson correlation.
//
// Every declared variable appears in the map. Variables the formula
// never references contribute exactly 0, as do variables whose
// correlation is undefined (constant draws or constant outcomes). When
// no variable has a defined correlation the map is all zeros rather
// than dividing by zero.
func sensitivityMap(prog *formula.Program, cols [][]float64, kept []float64, eval *evalOutcome, names []string) map[string]float64 {
	contributions := make(map[string]float64, len(names))
	for _, name := range names {
		contributions[name] = 0
	}
	if len(kept) < 2 {
		return contributions
	}

	var (
		total float64
		buf   = make([]float64, 0, len(kept))
	)
	abs := make(map[string]float64, len(prog.Variables()))
	for _, name := range prog.Variables() {
		slot, _ := prog.Slot(name)
		buf = eval.compactColumn(cols[slot], buf)
		r := stat.Correlation(buf, kept, nil)
		if math.IsNaN(r) {
			continue
		}
		abs[name] = math.Abs(r)
		total += abs[name]
	}
	if total == 0 {
		return contributions
	}
	for name, a := range abs {
		contributions[name] = a / total
	}
	return contributions
}
