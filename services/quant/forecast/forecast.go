// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package forecast extrapolates a linear trend over a dated series.
//
// # Description
//
// Input dates need not land exactly on period boundaries: the series is
// regularized by nearest-period bucketing against the earliest date,
// averaging values that fall into the same bucket. A linear trend is
// fit over the bucket indices and extrapolated `horizon` periods, with
// confidence bands of +/-1.96 residual standard deviations widening
// with the square root of the step index. A one-step holdout backtest
// is reported alongside as a fit-quality indicator.
//
// # Limitations
//
// The model is a straight line. Seasonality, structural breaks, and
// anything beyond a first-order trend land in the residual band, which
// is exactly what the confidence interval is for.
package forecast

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/albarami/QNWIS-sub009/services/quant/engine"
)

// trendThreshold classifies a fit as a trend only when the projected
// change over the series span exceeds this fraction of the mean
// magnitude.
const trendThreshold = 0.01

// confidenceZ is the 95% two-sided normal quantile for the bands.
const confidenceZ = 1.96

// Service fits and extrapolates series trends.
type Service struct {
	config Config
}

// NewService builds a forecast service, filling zero limits from
// DefaultConfig.
func NewService(config Config) *Service {
	def := DefaultConfig()
	if config.MaxHorizon <= 0 {
		config.MaxHorizon = def.MaxHorizon
	}
	if config.MaxPoints <= 0 {
		config.MaxPoints = def.MaxPoints
	}
	return &Service{config: config}
}

// Forecast regularizes the series, fits the trend, and projects it.
//
// Fewer than 3 usable points after bucketing is ErrInsufficientData:
// a line through two points has no residual to band with.
func (s *Service) Forecast(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", engine.ErrInvalidRequest)
	}
	req.EnsureDefaults()
	if err := engine.ValidateStruct(req); err != nil {
		return nil, err
	}
	if !req.Frequency.Valid() {
		return nil, fmt.Errorf("%w: unknown frequency %q", engine.ErrInvalidRequest, req.Frequency)
	}
	if req.Horizon > s.config.MaxHorizon {
		return nil, fmt.Errorf("%w: horizon %d exceeds limit %d",
			engine.ErrInvalidRequest, req.Horizon, s.config.MaxHorizon)
	}
	if len(req.TimeSeries) > s.config.MaxPoints {
		return nil, fmt.Errorf("%w: %d points exceeds limit %d",
			engine.ErrInvalidRequest, len(req.TimeSeries), s.config.MaxPoints)
	}
	for i, p := range req.TimeSeries {
		if p.Date.IsZero() {
			return nil, fmt.Errorf("%w: time_series[%d] has no date", engine.ErrInvalidRequest, i)
		}
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return nil, fmt.Errorf("%w: time_series[%d] value is not finite", engine.ErrInvalidRequest, i)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrComputeTimeout, err)
	}

	start := time.Now()
	reg := regularize(req.TimeSeries, req.Frequency)
	if len(reg.xs) < 3 {
		return nil, fmt.Errorf("%w: %d usable points after regularization, need at least 3",
			engine.ErrInsufficientData, len(reg.xs))
	}

	alpha, beta := stat.LinearRegression(reg.xs, reg.ys, nil, false)
	residStd := residualStd(reg.xs, reg.ys, alpha, beta)

	lastIdx := reg.xs[len(reg.xs)-1]
	period := req.Frequency.periodMonths()
	forecasts := make([]ForecastPoint, req.Horizon)
	for k := 1; k <= req.Horizon; k++ {
		x := lastIdx + float64(k)
		point := alpha + beta*x
		band := confidenceZ * residStd * math.Sqrt(float64(k))
		forecasts[k-1] = ForecastPoint{
			Date:     Date{reg.anchor.AddDate(0, int(x)*period, 0)},
			Forecast: point,
			Lower:    point - band,
			Upper:    point + band,
		}
	}

	return &Result{
		ResponseMeta:   engine.NewResponseMeta(req.RequestID),
		Trend:          classifyTrend(beta, reg.xs, reg.ys),
		DataPointsUsed: len(reg.xs),
		Forecasts:      forecasts,
		Backtest:       backtest(reg.xs, reg.ys),
		ElapsedMS:      float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}

// regularized is a series coerced onto the frequency's period grid.
type regularized struct {
	anchor time.Time
	xs     []float64 // bucket indices, ascending
	ys     []float64 // per-bucket mean values
}

// regularize sorts the series and buckets each observation into its
// nearest period relative to the earliest date. Values sharing a bucket
// are averaged. Gaps stay gaps; nothing is interpolated.
func regularize(points []TimeSeriesPoint, freq Frequency) regularized {
	sorted := make([]TimeSeriesPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date.Time)
	})

	anchor := sorted[0].Date.Time
	period := float64(freq.periodMonths())

	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, p := range sorted {
		idx := int(math.Round(monthsBetween(anchor, p.Date.Time) / period))
		sums[idx] += p.Value
		counts[idx]++
	}

	indices := make([]int, 0, len(sums))
	for idx := range sums {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	reg := regularized{
		anchor: anchor,
		xs:     make([]float64, len(indices)),
		ys:     make([]float64, len(indices)),
	}
	for i, idx := range indices {
		reg.xs[i] = float64(idx)
		reg.ys[i] = sums[idx] / float64(counts[idx])
	}
	return reg
}

// monthsBetween measures b - a in months, counting day offsets as
// fractions of a 30-day month. Only used for nearest-period rounding.
func monthsBetween(a, b time.Time) float64 {
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	return float64(months) + float64(b.Day()-a.Day())/30.0
}

// classifyTrend labels the slope, treating total fitted change below
// trendThreshold of the mean magnitude as noise. The change is measured
// over the observed period span, which for sparse history exceeds the
// bucket count.
func classifyTrend(slope float64, xs, ys []float64) Trend {
	span := math.Abs(slope) * (xs[len(xs)-1] - xs[0])
	meanMag := math.Abs(stat.Mean(ys, nil))
	if span <= trendThreshold*meanMag {
		return TrendStable
	}
	if slope > 0 {
		return TrendIncreasing
	}
	return TrendDecreasing
}

// residualStd is the population standard deviation of the fit
// residuals.
func residualStd(xs, ys []float64, alpha, beta float64) float64 {
	var ss float64
	for i := range xs {
		r := ys[i] - (alpha + beta*xs[i])
		ss += r * r
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// backtest refits without the last bucket and predicts it.
func backtest(xs, ys []float64) *Backtest {
	n := len(xs)
	alpha, beta := stat.LinearRegression(xs[:n-1], ys[:n-1], nil, false)
	predicted := alpha + beta*xs[n-1]
	actual := ys[n-1]

	bt := &Backtest{
		Predicted: predicted,
		Actual:    actual,
		AbsError:  math.Abs(predicted - actual),
	}
	if actual != 0 {
		pct := bt.AbsError / math.Abs(actual) * 100
		bt.PctError = &pct
	}
	return bt
}
