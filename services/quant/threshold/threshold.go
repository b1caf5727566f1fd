// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package threshold finds the first point in a swept range where a
// breach condition becomes true.
//
// A sweep walks the variable range in equal increments, inclusive of
// both ends, substituting each value plus the fixed context into every
// constraint's condition. Constraints are independent: one breaching
// never short-circuits the others.
package threshold

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/albarami/QNWIS-sub009/services/quant/engine"
	"github.com/albarami/QNWIS-sub009/services/quant/formula"
)

// Config bounds a threshold request.
type Config struct {
	// MaxSteps caps the sweep resolution of a single request.
	MaxSteps int `yaml:"max_steps"`

	// MaxConstraints caps how many constraints one request may carry.
	MaxConstraints int `yaml:"max_constraints"`
}

// DefaultConfig returns the sweep limits used when none are set.
func DefaultConfig() Config {
	return Config{
		MaxSteps:       100_000,
		MaxConstraints: 100,
	}
}

// Constraint is one breach condition over the swept variable and the
// request context.
type Constraint struct {
	Name        string `json:"name" validate:"required"`
	Condition   string `json:"condition" validate:"required"`
	Description string `json:"description,omitempty"`
}

// Request describes one sweep.
type Request struct {
	engine.RequestMeta

	VariableName  string             `json:"variable_name" validate:"required"`
	VariableRange [2]float64         `json:"variable_range"`
	Steps         int                `json:"steps" validate:"required,gte=2"`
	Constraints   []Constraint       `json:"constraints" validate:"required,min=1,dive"`
	Context       map[string]float64 `json:"context,omitempty"`
}

// ConstraintResult reports where one constraint first breached.
//
// Threshold is nil when the condition never became true across the
// sweep; SafeRange is then the full variable range. A breach at the
// very first step collapses SafeRange to [low, low].
type ConstraintResult struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Threshold   *float64   `json:"threshold"`
	Breached    bool       `json:"breached"`
	SafeRange   [2]float64 `json:"safe_range"`
}

// Result is the per-constraint sweep outcome.
type Result struct {
	engine.ResponseMeta

	VariableName string             `json:"variable_name"`
	Steps        int                `json:"steps"`
	Constraints  []ConstraintResult `json:"constraints"`
	ElapsedMS    float64            `json:"elapsed_ms"`
}

// Service performs threshold sweeps.
type Service struct {
	config Config
}

// NewService builds a threshold service, filling zero limits from
// DefaultConfig.
func NewService(config Config) *Service {
	def := DefaultConfig()
	if config.MaxSteps <= 0 {
		config.MaxSteps = def.MaxSteps
	}
	if config.MaxConstraints <= 0 {
		config.MaxConstraints = def.MaxConstraints
	}
	return &Service{config: config}
}

// Sweep evaluates every constraint across the variable range.
//
// Step values are low + (high-low)*i/(steps-1) for i in [0, steps),
// evaluated in increasing order; the threshold is the first value where
// the condition holds. A math fault while evaluating any step fails the
// request rather than guessing at the breach point.
func (s *Service) Sweep(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", engine.ErrInvalidRequest)
	}
	req.EnsureDefaults()
	if err := engine.ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := s.validateSweep(req); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(req.Context)+1)
	for name := range req.Context {
		names = append(names, name)
	}
	sort.Strings(names)
	names = append(names, req.VariableName)

	conditions := make([]*formula.Condition, len(req.Constraints))
	for i, c := range req.Constraints {
		cond, err := formula.CompileCondition(c.Condition, names)
		if err != nil {
			return nil, fmt.Errorf("constraint %q: %w", c.Name, err)
		}
		conditions[i] = cond
	}

	start := time.Now()
	low, high := req.VariableRange[0], req.VariableRange[1]
	values := make([]float64, req.Steps)
	for i := range values {
		values[i] = low + (high-low)*float64(i)/float64(req.Steps-1)
	}

	results := make([]ConstraintResult, len(req.Constraints))
	for i, cond := range conditions {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", engine.ErrComputeTimeout, err)
		}

		env := make([]float64, cond.Slots())
		for name, v := range req.Context {
			slot, _ := cond.Slot(name)
			env[slot] = v
		}
		varSlot, _ := cond.Slot(req.VariableName)

		res := ConstraintResult{
			Name:        req.Constraints[i].Name,
			Description: req.Constraints[i].Description,
			SafeRange:   [2]float64{low, high},
		}
		for step, v := range values {
			env[varSlot] = v
			breached, err := cond.EvalEnv(env)
			if err != nil {
				return nil, fmt.Errorf("constraint %q at %s=%v: %w",
					req.Constraints[i].Name, req.VariableName, v, err)
			}
			if breached {
				threshold := v
				res.Threshold = &threshold
				res.Breached = true
				if step == 0 {
					res.SafeRange = [2]float64{low, low}
				} else {
					res.SafeRange = [2]float64{low, values[step-1]}
				}
				break
			}
		}
		results[i] = res
	}

	return &Result{
		ResponseMeta: engine.NewResponseMeta(req.RequestID),
		VariableName: req.VariableName,
		Steps:        req.Steps,
		Constraints:  results,
		ElapsedMS:    float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}

func (s *Service) validateSweep(req *Request) error {
	if !engine.ValidName(req.VariableName) {
		return fmt.Errorf("%w: variable_name %q is not a valid identifier",
			engine.ErrInvalidRequest, req.VariableName)
	}
	low, high := req.VariableRange[0], req.VariableRange[1]
	if math.IsNaN(low) || math.IsInf(low, 0) || math.IsNaN(high) || math.IsInf(high, 0) {
		return fmt.Errorf("%w: variable_range must be finite", engine.ErrInvalidRequest)
	}
	if low >= high {
		return fmt.Errorf("%w: variable_range low %v must be below high %v",
			engine.ErrInvalidRequest, low, high)
	}
	if req.Steps > s.config.MaxSteps {
		return fmt.Errorf("%w: steps %d exceeds limit %d",
			engine.ErrInvalidRequest, req.Steps, s.config.MaxSteps)
	}
	if len(req.Constraints) > s.config.MaxConstraints {
		return fmt.Errorf("%w: %d constraints exceeds limit %d",
			engine.ErrInvalidRequest, len(req.Constraints), s.config.MaxConstraints)
	}
	for name, v := range req.Context {
		if !engine.ValidName(name) {
			return fmt.Errorf("%w: context key %q is not a valid identifier",
				engine.ErrInvalidRequest, name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: context[%s] is not finite", engine.ErrInvalidRequest, name)
		}
	}
	return nil
}
