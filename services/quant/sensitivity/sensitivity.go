// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sensitivity ranks input parameters by one-at-a-time
// perturbation impact.
//
// Each parameter is varied by a fraction of its magnitude in both
// directions while the others stay fixed; the larger absolute change in
// the outcome, as a percentage of the base outcome, is that parameter's
// impact. A zero base outcome falls back to absolute differences so the
// ranking stays defined. Direction reports how the outcome responds to
// a larger parameter value, whatever the parameter's sign.
package sensitivity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/albarami/QNWIS-sub009/services/quant/engine"
	"github.com/albarami/QNWIS-sub009/services/quant/formula"
)

// DefaultVaryBy is the perturbation fraction used when the request
// does not set one.
const DefaultVaryBy = 0.10

// Direction labels how the outcome moves when a parameter increases.
type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
)

// Request asks for a one-at-a-time sensitivity analysis.
type Request struct {
	engine.RequestMeta

	BaseCase       map[string]float64 `json:"base_case" validate:"required,min=1"`
	OutcomeFormula string             `json:"outcome_formula" validate:"required"`
	VaryBy         float64            `json:"vary_by,omitempty" validate:"omitempty,gt=0,lte=1"`
	OutcomeName    string             `json:"outcome_name,omitempty"`
}

// Impact is one parameter's ranked perturbation result.
//
// ImpactPct is the percentage change of the outcome relative to the
// base outcome, or the absolute outcome change when the base outcome
// is zero.
type Impact struct {
	Parameter string    `json:"parameter"`
	ImpactPct float64   `json:"impact_pct"`
	Direction Direction `json:"direction"`
	Rank      int       `json:"rank"`
}

// Result is the ordered sensitivity ranking.
type Result struct {
	engine.ResponseMeta

	OutcomeName string   `json:"outcome_name,omitempty"`
	BaseOutcome float64  `json:"base_outcome"`
	VaryBy      float64  `json:"vary_by"`
	Sensitivity []Impact `json:"sensitivity"`
	TopDriver   string   `json:"top_driver"`
	ElapsedMS   float64  `json:"elapsed_ms"`
}

// Service performs sensitivity analyses.
type Service struct{}

// NewService builds a sensitivity service.
func NewService() *Service {
	return &Service{}
}

// Analyze perturbs every base-case parameter by +/- vary_by and ranks
// the impacts in descending order.
//
// Parameters are evaluated in lexical name order so slot assignment and
// tie-breaking are deterministic; JSON objects carry no reliable key
// order. Rank ties break by parameter name.
func (s *Service) Analyze(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", engine.ErrInvalidRequest)
	}
	req.EnsureDefaults()
	if err := engine.ValidateStruct(req); err != nil {
		return nil, err
	}
	for name, v := range req.BaseCase {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: base_case[%s] is not finite", engine.ErrInvalidRequest, name)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrComputeTimeout, err)
	}

	varyBy := req.VaryBy
	if varyBy == 0 {
		varyBy = DefaultVaryBy
	}

	names := make([]string, 0, len(req.BaseCase))
	for name := range req.BaseCase {
		names = append(names, name)
	}
	sort.Strings(names)

	prog, err := formula.Compile(req.OutcomeFormula, names)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	env := make([]float64, prog.Slots())
	for _, name := range names {
		slot, _ := prog.Slot(name)
		env[slot] = req.BaseCase[name]
	}
	baseOutcome, err := prog.EvalEnv(env)
	if err != nil {
		return nil, err
	}

	impacts := make([]Impact, 0, len(names))
	for _, name := range names {
		slot, _ := prog.Slot(name)
		base := req.BaseCase[name]

		// The step is vary_by times the parameter's magnitude, so "up"
		// always means a larger value even for negative parameters.
		step := math.Abs(base) * varyBy
		env[slot] = base + step
		upOutcome, err := prog.EvalEnv(env)
		if err != nil {
			return nil, err
		}
		env[slot] = base - step
		downOutcome, err := prog.EvalEnv(env)
		if err != nil {
			return nil, err
		}
		env[slot] = base

		impact := math.Max(math.Abs(upOutcome-baseOutcome), math.Abs(downOutcome-baseOutcome))
		if baseOutcome != 0 {
			impact = impact / math.Abs(baseOutcome) * 100
		}
		// Classify from the upward perturbation; when that leaves the
		// outcome flat, the downward one decides. Flat both ways stays
		// negative.
		direction := DirectionNegative
		switch {
		case upOutcome > baseOutcome:
			direction = DirectionPositive
		case upOutcome == baseOutcome && downOutcome < baseOutcome:
			direction = DirectionPositive
		}
		impacts = append(impacts, Impact{
			Parameter: name,
			ImpactPct: impact,
			Direction: direction,
		})
	}

	sort.SliceStable(impacts, func(i, j int) bool {
		if impacts[i].ImpactPct != impacts[j].ImpactPct {
			return impacts[i].ImpactPct > impacts[j].ImpactPct
		}
		return impacts[i].Parameter < impacts[j].Parameter
	})
	for i := range impacts {
		impacts[i].Rank = i + 1
	}

	return &Result{
		ResponseMeta: engine.NewResponseMeta(req.RequestID),
		OutcomeName:  req.OutcomeName,
		BaseOutcome:  baseOutcome,
		VaryBy:       varyBy,
		Sensitivity:  impacts,
		TopDriver:    impacts[0].Parameter,
		ElapsedMS:    float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}
