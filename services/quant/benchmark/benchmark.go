// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package benchmark ranks a subject value against a named peer set.
//
// Ranking is descending by value with 1 as the best. The subject ranks
// ahead of peers it ties with; tied peers order among themselves by
// name. The percentile is the share of peers at or below the subject.
package benchmark

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/albarami/QNWIS-sub009/services/quant/engine"
	"github.com/albarami/QNWIS-sub009/services/quant/sampler"
)

// defaultSubjectName labels the subject row of the leaderboard when
// the request does not name it.
const defaultSubjectName = "subject"

// Request compares one value against a peer set.
type Request struct {
	engine.RequestMeta

	MetricName   string             `json:"metric_name" validate:"required"`
	SubjectName  string             `json:"subject_name,omitempty"`
	SubjectValue float64            `json:"subject_value"`
	Peers        map[string]float64 `json:"peers" validate:"required,min=1"`
}

// Entry is one leaderboard row.
type Entry struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Rank    int     `json:"rank"`
	Subject bool    `json:"subject,omitempty"`
}

// Result reports the subject's standing.
type Result struct {
	engine.ResponseMeta

	MetricName  string  `json:"metric_name"`
	Rank        int     `json:"rank"`
	Percentile  float64 `json:"percentile"`
	GapToBest   float64 `json:"gap_to_best"`
	GapToMedian float64 `json:"gap_to_median"`
	Leaderboard []Entry `json:"leaderboard"`
	ElapsedMS   float64 `json:"elapsed_ms"`
}

// Service performs benchmark rankings.
type Service struct{}

// NewService builds a benchmark service.
func NewService() *Service {
	return &Service{}
}

// Rank places the subject among its peers.
//
// Rank is 1 plus the count of peers strictly above the subject.
// GapToBest and GapToMedian are subject minus best peer and subject
// minus the peer median (linear interpolation), so trailing gaps are
// negative.
func (s *Service) Rank(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", engine.ErrInvalidRequest)
	}
	req.EnsureDefaults()
	if err := engine.ValidateStruct(req); err != nil {
		return nil, err
	}
	if math.IsNaN(req.SubjectValue) || math.IsInf(req.SubjectValue, 0) {
		return nil, fmt.Errorf("%w: subject_value is not finite", engine.ErrInvalidRequest)
	}
	for name, v := range req.Peers {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: peers[%s] is not finite", engine.ErrInvalidRequest, name)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrComputeTimeout, err)
	}

	start := time.Now()
	subjectName := req.SubjectName
	if subjectName == "" {
		subjectName = defaultSubjectName
	}

	board := make([]Entry, 0, len(req.Peers)+1)
	board = append(board, Entry{Name: subjectName, Value: req.SubjectValue, Subject: true})
	values := make([]float64, 0, len(req.Peers))
	var above, atOrBelow int
	for name, v := range req.Peers {
		board = append(board, Entry{Name: name, Value: v})
		values = append(values, v)
		if v > req.SubjectValue {
			above++
		} else {
			atOrBelow++
		}
	}

	// Descending by value; the subject wins ties against peers; tied
	// peers order by name.
	sort.SliceStable(board, func(i, j int) bool {
		if board[i].Value != board[j].Value {
			return board[i].Value > board[j].Value
		}
		if board[i].Subject != board[j].Subject {
			return board[i].Subject
		}
		return board[i].Name < board[j].Name
	})
	for i := range board {
		board[i].Rank = i + 1
	}

	sort.Float64s(values)
	best := values[len(values)-1]
	median := sampler.Quantile(values, 0.5)

	return &Result{
		ResponseMeta: engine.NewResponseMeta(req.RequestID),
		MetricName:   req.MetricName,
		Rank:         1 + above,
		Percentile:   float64(atOrBelow) / float64(len(req.Peers)) * 100,
		GapToBest:    req.SubjectValue - best,
		GapToMedian:  req.SubjectValue - median,
		Leaderboard:  board,
		ElapsedMS:    float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}
