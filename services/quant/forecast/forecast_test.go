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
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/albarami/QNWIS-sub009/services/quant/engine"
)

func monthlySeries(start Date, values ...float64) []TimeSeriesPoint {
	points := make([]TimeSeriesPoint, len(values))
	for i, v := range values {
		points[i] = TimeSeriesPoint{
			Date:  Date{start.AddDate(0, i, 0)},
			Value: v,
		}
	}
	return points
}

func TestForecast_IncreasingLinearSeries(t *testing.T) {
	svc := NewService(Config{})
	res, err := svc.Forecast(context.Background(), &Request{
		TimeSeries: monthlySeries(NewDate(2024, 1, 1), 100, 110, 120, 130, 140),
		Horizon:    3,
		Frequency:  FrequencyMonthly,
	})
	if err != nil {
		t.Fatalf("Forecast error: %v", err)
	}

	if res.Trend != TrendIncreasing {
		t.Errorf("trend = %s, want increasing", res.Trend)
	}
	if res.DataPointsUsed != 5 {
		t.Errorf("data_points_used = %d, want 5", res.DataPointsUsed)
	}
	if len(res.Forecasts) != 3 {
		t.Fatalf("len(forecasts) = %d, want horizon 3", len(res.Forecasts))
	}

	// A perfectly linear series extrapolates exactly, with zero-width
	// bands.
	want := []float64{150, 160, 170}
	wantDates := []string{"2024-06-01", "2024-07-01", "2024-08-01"}
	for i, f := range res.Forecasts {
		if f.Forecast != want[i] {
			t.Errorf("forecasts[%d] = %v, want %v", i, f.Forecast, want[i])
		}
		if f.Lower != f.Forecast || f.Upper != f.Forecast {
			t.Errorf("forecasts[%d] bands [%v, %v], want collapsed on %v", i, f.Lower, f.Upper, f.Forecast)
		}
		if got := f.Date.Format("2006-01-02"); got != wantDates[i] {
			t.Errorf("forecasts[%d].date = %s, want %s", i, got, wantDates[i])
		}
	}

	if res.Backtest == nil {
		t.Fatal("backtest missing")
	}
	if res.Backtest.AbsError != 0 {
		t.Errorf("backtest abs_error = %v, want 0 for a perfect line", res.Backtest.AbsError)
	}
}

func TestForecast_DecreasingSeries(t *testing.T) {
	svc := NewService(Config{})
	res, err := svc.Forecast(context.Background(), &Request{
		TimeSeries: monthlySeries(NewDate(2023, 6, 1), 500, 480, 465, 440, 425, 410),
		Horizon:    2,
		Frequency:  FrequencyMonthly,
	})
	if err != nil {
		t.Fatalf("Forecast error: %v", err)
	}
	if res.Trend != TrendDecreasing {
		t.Errorf("trend = %s, want decreasing", res.Trend)
	}
	if res.Forecasts[0].Forecast <= res.Forecasts[1].Forecast {
		t.Error("decreasing trend should keep falling over the horizon")
	}
}

func TestForecast_StableSeries(t *testing.T) {
	svc := NewService(Config{})
	res, err := svc.Forecast(context.Background(), &Request{
		TimeSeries: monthlySeries(NewDate(2024, 1, 1), 100, 100.02, 99.98, 100.01, 99.99),
		Horizon:    1,
		Frequency:  FrequencyMonthly,
	})
	if err != nil {
		t.Fatalf("Forecast error: %v", err)
	}
	if res.Trend != TrendStable {
		t.Errorf("trend = %s, want stable (change below 1%% of mean)", res.Trend)
	}
}

// A slow drift over a long sparse history is a real trend: the change
// is judged over the observed period span, not the observation count.
func TestForecast_SparseHistoryTrendUsesDateSpan(t *testing.T) {
	svc := NewService(Config{})
	res, err := svc.Forecast(context.Background(), &Request{
		TimeSeries: []TimeSeriesPoint{
			{Date: NewDate(2020, 1, 1), Value: 100},
			{Date: NewDate(2020, 2, 1), Value: 100.05},
			{Date: NewDate(2022, 7, 1), Value: 101.5},
		},
		Horizon:   1,
		Frequency: FrequencyMonthly,
	})
	if err != nil {
		t.Fatalf("Forecast error: %v", err)
	}

	// The points sit on a 0.05/month line across 30 months: 1.5 total
	// change against a mean near 100.5, well past the 1% noise floor
	// that only three observations would not clear.
	if res.Trend != TrendIncreasing {
		t.Errorf("trend = %s, want increasing over the 30-month span", res.Trend)
	}
	if res.DataPointsUsed != 3 {
		t.Errorf("data_points_used = %d, want 3", res.DataPointsUsed)
	}
	if math.Abs(res.Forecasts[0].Forecast-101.55) > 1e-9 {
		t.Errorf("forecast = %v, want 101.55 (one month past the last bucket)", res.Forecasts[0].Forecast)
	}
}

func TestForecast_BandsWidenWithHorizon(t *testing.T) {
	svc := NewService(Config{})
	res, err := svc.Forecast(context.Background(), &Request{
		TimeSeries: monthlySeries(NewDate(2024, 1, 1), 100, 112, 118, 131, 139),
		Horizon:    4,
		Frequency:  FrequencyMonthly,
	})
	if err != nil {
		t.Fatalf("Forecast error: %v", err)
	}

	width := func(p ForecastPoint) float64 { return p.Upper - p.Lower }
	w1 := width(res.Forecasts[0])
	if w1 <= 0 {
		t.Fatal("noisy series should have a positive band width")
	}
	// Band width scales with sqrt(step index).
	for k := 2; k <= 4; k++ {
		want := w1 * math.Sqrt(float64(k))
		if math.Abs(width(res.Forecasts[k-1])-want) > 1e-9 {
			t.Errorf("width[%d] = %v, want %v", k, width(res.Forecasts[k-1]), want)
		}
	}
	for _, f := range res.Forecasts {
		if !(f.Lower <= f.Forecast && f.Forecast <= f.Upper) {
			t.Errorf("band [%v, %v] does not contain forecast %v", f.Lower, f.Upper, f.Forecast)
		}
	}
}

// Out-of-order and irregular dates are bucketed to the nearest period
// and averaged within a bucket.
func TestForecast_RegularizesIrregularDates(t *testing.T) {
	svc := NewService(Config{})
	res, err := svc.Forecast(context.Background(), &Request{
		TimeSeries: []TimeSeriesPoint{
			{Date: NewDate(2024, 3, 1), Value: 40},
			{Date: NewDate(2024, 1, 1), Value: 10},
			{Date: NewDate(2024, 2, 2), Value: 30},
			{Date: NewDate(2024, 1, 10), Value: 20},
		},
		Horizon:   1,
		Frequency: FrequencyMonthly,
	})
	if err != nil {
		t.Fatalf("Forecast error: %v", err)
	}

	// Jan 1 and Jan 10 share the first bucket (mean 15); Feb and Mar
	// land on their own. Fit over (0,15),(1,30),(2,40): slope 12.5,
	// intercept 95/6, so the next period is 95/6 + 12.5*3 = 160/3.
	if res.DataPointsUsed != 3 {
		t.Errorf("data_points_used = %d, want 3", res.DataPointsUsed)
	}
	wantNext := 160.0 / 3
	if math.Abs(res.Forecasts[0].Forecast-wantNext) > 1e-9 {
		t.Errorf("forecast = %v, want %v", res.Forecasts[0].Forecast, wantNext)
	}
}

func TestForecast_AnnualDates(t *testing.T) {
	points := make([]TimeSeriesPoint, 5)
	for i := range points {
		points[i] = TimeSeriesPoint{Date: NewDate(2020+i, 1, 1), Value: float64(1000 + 50*i)}
	}

	svc := NewService(Config{})
	res, err := svc.Forecast(context.Background(), &Request{
		TimeSeries: points,
		Horizon:    2,
		Frequency:  FrequencyAnnual,
	})
	if err != nil {
		t.Fatalf("Forecast error: %v", err)
	}
	if got := res.Forecasts[0].Date.Format("2006-01-02"); got != "2025-01-01" {
		t.Errorf("first forecast date = %s, want 2025-01-01", got)
	}
	if got := res.Forecasts[1].Date.Format("2006-01-02"); got != "2026-01-01" {
		t.Errorf("second forecast date = %s, want 2026-01-01", got)
	}
}

func TestForecast_InsufficientData(t *testing.T) {
	svc := NewService(Config{})

	_, err := svc.Forecast(context.Background(), &Request{
		TimeSeries: monthlySeries(NewDate(2024, 1, 1), 1, 2),
		Horizon:    1,
		Frequency:  FrequencyMonthly,
	})
	if !errors.Is(err, engine.ErrInsufficientData) {
		t.Errorf("two points: error = %v, want ErrInsufficientData", err)
	}

	// Five observations collapsing into one bucket are one point.
	sameDay := []TimeSeriesPoint{
		{Date: NewDate(2024, 1, 1), Value: 1},
		{Date: NewDate(2024, 1, 2), Value: 2},
		{Date: NewDate(2024, 1, 3), Value: 3},
		{Date: NewDate(2024, 1, 4), Value: 4},
		{Date: NewDate(2024, 1, 5), Value: 5},
	}
	_, err = svc.Forecast(context.Background(), &Request{
		TimeSeries: sameDay,
		Horizon:    1,
		Frequency:  FrequencyAnnual,
	})
	if !errors.Is(err, engine.ErrInsufficientData) {
		t.Errorf("one bucket: error = %v, want ErrInsufficientData", err)
	}
}

func TestForecast_BacktestOnNoisySeries(t *testing.T) {
	svc := NewService(Config{})
	res, err := svc.Forecast(context.Background(), &Request{
		TimeSeries: monthlySeries(NewDate(2024, 1, 1), 10, 21, 29, 42, 70),
		Horizon:    1,
		Frequency:  FrequencyMonthly,
	})
	if err != nil {
		t.Fatalf("Forecast error: %v", err)
	}

	bt := res.Backtest
	if bt == nil {
		t.Fatal("backtest missing")
	}
	if bt.Actual != 70 {
		t.Errorf("backtest actual = %v, want the held-out 70", bt.Actual)
	}
	// Fit over the first four points: slope 10.4, intercept 9.9.
	if math.Abs(bt.Predicted-51.5) > 1e-9 {
		t.Errorf("backtest predicted = %v, want 51.5", bt.Predicted)
	}
	if bt.PctError == nil {
		t.Fatal("pct_error missing for nonzero actual")
	}
}

func TestForecast_Rejects(t *testing.T) {
	svc := NewService(Config{MaxHorizon: 12})
	base := func() *Request {
		return &Request{
			TimeSeries: monthlySeries(NewDate(2024, 1, 1), 1, 2, 3, 4),
			Horizon:    2,
			Frequency:  FrequencyMonthly,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"zero horizon", func(r *Request) { r.Horizon = 0 }},
		{"negative horizon", func(r *Request) { r.Horizon = -1 }},
		{"horizon over limit", func(r *Request) { r.Horizon = 100 }},
		{"unknown frequency", func(r *Request) { r.Frequency = "weekly" }},
		{"empty series", func(r *Request) { r.TimeSeries = nil }},
		{"missing date", func(r *Request) { r.TimeSeries[1].Date = Date{} }},
		{"non-finite value", func(r *Request) { r.TimeSeries[2].Value = math.NaN() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base()
			tt.mutate(req)
			if _, err := svc.Forecast(context.Background(), req); !errors.Is(err, engine.ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestForecast_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewService(Config{})
	_, err := svc.Forecast(ctx, &Request{
		TimeSeries: monthlySeries(NewDate(2024, 1, 1), 1, 2, 3),
		Horizon:    1,
		Frequency:  FrequencyMonthly,
	})
	if !errors.Is(err, engine.ErrComputeTimeout) {
		t.Errorf("error = %v, want ErrComputeTimeout", err)
	}
}

func TestDate_JSON(t *testing.T) {
	var p TimeSeriesPoint
	if err := json.Unmarshal([]byte(`{"date":"2024-03-15","value":42}`), &p); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if !p.Date.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v, want 2024-03-15", p.Date)
	}

	out, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	if string(out) != `{"date":"2024-03-15","value":42}` {
		t.Errorf("marshal = %s", out)
	}

	var rfc TimeSeriesPoint
	if err := json.Unmarshal([]byte(`{"date":"2024-03-15T10:30:00Z","value":1}`), &rfc); err != nil {
		t.Fatalf("RFC3339 unmarshal error: %v", err)
	}
	if rfc.Date.Day() != 15 {
		t.Errorf("RFC3339 date day = %d, want 15", rfc.Date.Day())
	}

	if err := json.Unmarshal([]byte(`{"date":"15/03/2024","value":1}`), &p); err == nil {
		t.Error("expected error for non-ISO date")
	}
}
