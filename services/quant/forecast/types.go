// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package forecast

import (
	"fmt"
	"strings"
	"time"

	"github.com/albarami/QNWIS-sub009/services/quant/engine"
)

// Frequency is the reporting period of a time series.
type Frequency string

const (
	FrequencyAnnual    Frequency = "annual"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyMonthly   Frequency = "monthly"
)

// Valid reports whether the frequency is a known period.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyAnnual, FrequencyQuarterly, FrequencyMonthly:
		return true
	}
	return false
}

// periodMonths is the bucket width in months.
func (f Frequency) periodMonths() int {
	switch f {
	case FrequencyAnnual:
		return 12
	case FrequencyQuarterly:
		return 3
	default:
		return 1
	}
}

// Trend classifies the fitted direction of a series.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// dateLayout is the wire format for series dates.
const dateLayout = "2006-01-02"

// Date is a calendar date carried as "YYYY-MM-DD" on the wire.
// RFC 3339 timestamps are accepted on input and truncated to the day.
type Date struct {
	time.Time
}

// NewDate builds a Date at midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return fmt.Errorf("%w: empty date", engine.ErrInvalidRequest)
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("%w: date %q is not YYYY-MM-DD", engine.ErrInvalidRequest, s)
	}
	d.Time = t.UTC().Truncate(24 * time.Hour)
	return nil
}

// TimeSeriesPoint is one dated observation.
type TimeSeriesPoint struct {
	Date  Date    `json:"date"`
	Value float64 `json:"value"`
}

// Config bounds a forecast request.
type Config struct {
	// MaxHorizon caps how many periods ahead one request may ask for.
	MaxHorizon int `yaml:"max_horizon"`

	// MaxPoints caps the input series length.
	MaxPoints int `yaml:"max_points"`
}

// DefaultConfig returns the forecast limits used when none are set.
func DefaultConfig() Config {
	return Config{
		MaxHorizon: 120,
		MaxPoints:  100_000,
	}
}

// Request asks for a trend extrapolation of a dated series.
type Request struct {
	engine.RequestMeta

	TimeSeries []TimeSeriesPoint `json:"time_series" validate:"required,min=1"`
	Horizon    int               `json:"horizon" validate:"required,gt=0"`
	Frequency  Frequency         `json:"frequency" validate:"required"`
}

// ForecastPoint is one projected period.
type ForecastPoint struct {
	Date     Date    `json:"date"`
	Forecast float64 `json:"forecast"`
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`
}

// Backtest reports the one-step holdout check: the model refit without
// the last observation, predicting it.
//
// PctError is nil when the held-out actual is zero.
type Backtest struct {
	Predicted float64  `json:"predicted"`
	Actual    float64  `json:"actual"`
	AbsError  float64  `json:"abs_error"`
	PctError  *float64 `json:"pct_error"`
}

// Result is the fitted trend and the projected horizon.
type Result struct {
	engine.ResponseMeta

	Trend          Trend           `json:"trend"`
	DataPointsUsed int             `json:"data_points_used"`
	Forecasts      []ForecastPoint `json:"forecasts"`
	Backtest       *Backtest       `json:"backtest,omitempty"`
	ElapsedMS      float64         `json:"elapsed_ms"`
}
