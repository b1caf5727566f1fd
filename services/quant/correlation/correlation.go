// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package correlation ranks candidate driver series by their Pearson
// correlation against a target series.
//
// A constant series has no defined correlation; it is reported as a
// null value, never NaN, and ranks below every defined driver.
package correlation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/albarami/QNWIS-sub009/services/quant/engine"
)

// Direction labels the sign of a defined correlation.
type Direction string

const (
	DirectionPositive  Direction = "positive"
	DirectionNegative  Direction = "negative"
	DirectionUndefined Direction = "undefined"
)

// Request asks which series move with the target.
//
// Target names one key of Data; every other key is a candidate driver.
// All series must be pre-aligned to the same length.
type Request struct {
	engine.RequestMeta

	Target string               `json:"target" validate:"required"`
	Data   map[string][]float64 `json:"data" validate:"required,min=2"`
}

// Driver is one candidate series' correlation with the target.
//
// Correlation is nil when undefined (either side constant).
type Driver struct {
	Name        string    `json:"name"`
	Correlation *float64  `json:"correlation"`
	Direction   Direction `json:"direction"`
	Rank        int       `json:"rank"`
}

// Result lists drivers by descending absolute correlation.
type Result struct {
	engine.ResponseMeta

	Target    string   `json:"target"`
	NPoints   int      `json:"n_points"`
	Drivers   []Driver `json:"drivers"`
	ElapsedMS float64  `json:"elapsed_ms"`
}

// Service computes correlation rankings.
type Service struct{}

// NewService builds a correlation service.
func NewService() *Service {
	return &Service{}
}

// Rank correlates every non-target series against the target.
//
// Drivers sort by descending absolute correlation, ties by name;
// undefined correlations sort after all defined ones. Series length
// disagreement is ErrLengthMismatch; series shorter than 2 points are
// ErrInsufficientData.
func (s *Service) Rank(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", engine.ErrInvalidRequest)
	}
	req.EnsureDefaults()
	if err := engine.ValidateStruct(req); err != nil {
		return nil, err
	}

	target, ok := req.Data[req.Target]
	if !ok {
		return nil, fmt.Errorf("%w: target %q not found in data", engine.ErrInvalidRequest, req.Target)
	}
	if len(target) < 2 {
		return nil, fmt.Errorf("%w: target %q has %d points, need at least 2",
			engine.ErrInsufficientData, req.Target, len(target))
	}
	for name, series := range req.Data {
		if len(series) != len(target) {
			return nil, fmt.Errorf("%w: series %q has %d points, target has %d",
				engine.ErrLengthMismatch, name, len(series), len(target))
		}
		for i, v := range series {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: data[%s][%d] is not finite", engine.ErrInvalidRequest, name, i)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrComputeTimeout, err)
	}

	start := time.Now()
	drivers := make([]Driver, 0, len(req.Data)-1)
	for name, series := range req.Data {
		if name == req.Target {
			continue
		}
		d := Driver{Name: name, Direction: DirectionUndefined}
		if r := stat.Correlation(series, target, nil); !math.IsNaN(r) {
			r = math.Max(-1, math.Min(1, r))
			d.Correlation = &r
			if r >= 0 {
				d.Direction = DirectionPositive
			} else {
				d.Direction = DirectionNegative
			}
		}
		drivers = append(drivers, d)
	}

	sort.SliceStable(drivers, func(i, j int) bool {
		di, dj := drivers[i], drivers[j]
		switch {
		case di.Correlation == nil && dj.Correlation == nil:
			return di.Name < dj.Name
		case di.Correlation == nil:
			return false
		case dj.Correlation == nil:
			return true
		}
		ai, aj := math.Abs(*di.Correlation), math.Abs(*dj.Correlation)
		if ai != aj {
			return ai > aj
		}
		return di.Name < dj.Name
	})
	for i := range drivers {
		drivers[i].Rank = i + 1
	}

	return &Result{
		ResponseMeta: engine.NewResponseMeta(req.RequestID),
		Target:       req.Target,
		NPoints:      len(target),
		Drivers:      drivers,
		ElapsedMS:    float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}
