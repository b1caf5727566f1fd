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
	"runtime"

	"github.com/albarami/QNWIS-sub009/services/quant/engine"
)

// Config tunes simulation execution.
type Config struct {
	// Strategy selects batched array evaluation or the scalar
	// reference loop. Both consume identical draws for a given seed.
	Strategy engine.Strategy `yaml:"strategy"`

	// MaxSimulations caps n_simulations for a single request.
	MaxSimulations int `yaml:"max_simulations"`

	// DropTolerance is the highest tolerable fraction of draws lost to
	// evaluation faults before the run fails as degraded.
	DropTolerance float64 `yaml:"drop_tolerance"`

	// Workers bounds the evaluation worker pool. Zero means one worker
	// per available core.
	Workers int `yaml:"workers"`
}

// DefaultConfig returns the execution settings used when none are set.
func DefaultConfig() Config {
	return Config{
		Strategy:       engine.StrategyVectorized,
		MaxSimulations: 10_000_000,
		DropTolerance:  0.01,
		Workers:        runtime.GOMAXPROCS(0),
	}
}

// Request describes one simulation run.
//
// SuccessCondition, when present, is a boolean expression over the
// single name "outcome" (for example "outcome > 1000000").
type Request struct {
	engine.RequestMeta

	Variables        []engine.Variable `json:"variables" validate:"required,min=1"`
	OutcomeFormula   string            `json:"outcome_formula" validate:"required"`
	NSimulations     int               `json:"n_simulations" validate:"required,gt=0"`
	SuccessCondition string            `json:"success_condition,omitempty"`
	Seed             *uint64           `json:"seed,omitempty"`
}

// Result is the simulation outcome distribution plus attribution.
//
// SuccessRate is nil when no success condition was supplied.
// GPUAccelerated reports whether the batched vectorized path executed;
// the field name is part of the public result contract.
type Result struct {
	engine.ResponseMeta

	Mean           float64            `json:"mean"`
	Std            float64            `json:"std"`
	P5             float64            `json:"p5"`
	P50            float64            `json:"p50"`
	P95            float64            `json:"p95"`
	SuccessRate    *float64           `json:"success_rate"`
	NSimulations   int                `json:"n_simulations"`
	DroppedDraws   int                `json:"dropped_draws"`
	Sensitivity    map[string]float64 `json:"sensitivity"`
	GPUAccelerated bool               `json:"gpu_accelerated"`
	Seed           uint64             `json:"seed"`
	ElapsedMS      float64            `json:"elapsed_ms"`
}
