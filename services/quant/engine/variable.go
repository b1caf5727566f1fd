// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"fmt"
	"math"
	"regexp"
)

// Distribution identifies how a Variable's values are generated.
type Distribution string

const (
	// DistributionNormal draws from a Gaussian with mean/std parameters.
	DistributionNormal Distribution = "normal"

	// DistributionUniform draws uniformly from [min, max).
	DistributionUniform Distribution = "uniform"

	// DistributionConstant repeats a single value.
	DistributionConstant Distribution = "constant"

	// DistributionHistorical bootstrap-resamples an empirical value set.
	DistributionHistorical Distribution = "historical"
)

// String returns the distribution name.
func (d Distribution) String() string {
	return string(d)
}

// Valid reports whether the distribution is a known value.
func (d Distribution) Valid() bool {
	switch d {
	case DistributionNormal, DistributionUniform, DistributionConstant, DistributionHistorical:
		return true
	default:
		return false
	}
}

// Parameters carries the distribution-specific parameters of a Variable.
//
// Which fields are meaningful depends on the distribution: normal reads
// Mean/Std, uniform reads Min/Max, constant reads Value, historical reads
// Values. Validate enforces the match.
type Parameters struct {
	Mean   float64   `json:"mean,omitempty" yaml:"mean,omitempty"`
	Std    float64   `json:"std,omitempty" yaml:"std,omitempty"`
	Min    float64   `json:"min,omitempty" yaml:"min,omitempty"`
	Max    float64   `json:"max,omitempty" yaml:"max,omitempty"`
	Value  float64   `json:"value,omitempty" yaml:"value,omitempty"`
	Values []float64 `json:"values,omitempty" yaml:"values,omitempty"`
}

// Variable is one named input to a simulation or sweep.
//
// Variables are request-scoped and immutable; names must be unique within
// a request and identifier-shaped so formulas can reference them.
type Variable struct {
	Name         string       `json:"name" yaml:"name" validate:"required"`
	Distribution Distribution `json:"distribution" yaml:"distribution" validate:"required"`
	Parameters   Parameters   `json:"parameters" yaml:"parameters"`
}

// variableNamePattern matches the identifiers the formula grammar accepts.
var variableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidName reports whether a string is usable as a variable name.
func ValidName(name string) bool {
	return variableNamePattern.MatchString(name)
}

// Validate checks the variable's parameters against its distribution.
//
// Returns an error wrapping ErrInvalidRequest when the name is not
// identifier-shaped, the distribution is unknown, or the parameters do
// not match the distribution (normal needs std > 0, uniform needs
// min < max, historical needs at least one value, and every numeric
// parameter must be finite).
func (v Variable) Validate() error {
	if !ValidName(v.Name) {
		return fmt.Errorf("%w: variable name %q is not a valid identifier", ErrInvalidRequest, v.Name)
	}
	if !v.Distribution.Valid() {
		return fmt.Errorf("%w: variable %q has unknown distribution %q", ErrInvalidRequest, v.Name, v.Distribution)
	}

	switch v.Distribution {
	case DistributionNormal:
		if !isFinite(v.Parameters.Mean) || !isFinite(v.Parameters.Std) {
			return fmt.Errorf("%w: variable %q normal parameters must be finite", ErrInvalidRequest, v.Name)
		}
		if v.Parameters.Std <= 0 {
			return fmt.Errorf("%w: variable %q requires std > 0, got %v", ErrInvalidRequest, v.Name, v.Parameters.Std)
		}
	case DistributionUniform:
		if !isFinite(v.Parameters.Min) || !isFinite(v.Parameters.Max) {
			return fmt.Errorf("%w: variable %q uniform parameters must be finite", ErrInvalidRequest, v.Name)
		}
		if v.Parameters.Min >= v.Parameters.Max {
			return fmt.Errorf("%w: variable %q requires min < max, got [%v, %v]",
				ErrInvalidRequest, v.Name, v.Parameters.Min, v.Parameters.Max)
		}
	case DistributionConstant:
		if !isFinite(v.Parameters.Value) {
			return fmt.Errorf("%w: variable %q constant value must be finite", ErrInvalidRequest, v.Name)
		}
	case DistributionHistorical:
		if len(v.Parameters.Values) == 0 {
			return fmt.Errorf("%w: variable %q requires a non-empty historical value set", ErrInvalidRequest, v.Name)
		}
		for i, val := range v.Parameters.Values {
			if !isFinite(val) {
				return fmt.Errorf("%w: variable %q historical value at index %d is not finite", ErrInvalidRequest, v.Name, i)
			}
		}
	}
	return nil
}

// ValidateVariables checks a variable set for per-variable validity and
// name uniqueness.
func ValidateVariables(vars []Variable) error {
	seen := make(map[string]struct{}, len(vars))
	for _, v := range vars {
		if err := v.Validate(); err != nil {
			return err
		}
		if _, dup := seen[v.Name]; dup {
			return fmt.Errorf("%w: duplicate variable name %q", ErrInvalidRequest, v.Name)
		}
		seen[v.Name] = struct{}{}
	}
	return nil
}

// isFinite reports whether f is neither NaN nor infinite.
func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
