// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sampler

import (
	"context"
	"fmt"
	"time"

	"github.com/albarami/QNWIS-sub009/services/quant/engine"
)

// Config bounds a sampling request.
type Config struct {
	// MaxSamples caps the draw count of a single request.
	MaxSamples int `yaml:"max_samples"`

	// MaxReturned caps how many raw samples a response may echo back;
	// summaries are always computed over the full draw.
	MaxReturned int `yaml:"max_returned"`
}

// DefaultConfig returns the sampling limits used when none are set.
func DefaultConfig() Config {
	return Config{
		MaxSamples:  1_000_000,
		MaxReturned: 10_000,
	}
}

// Request asks for samples of a single variable.
type Request struct {
	engine.RequestMeta

	Variable       engine.Variable `json:"variable"`
	NSamples       int             `json:"n_samples" validate:"required,gt=0"`
	Seed           *uint64         `json:"seed,omitempty"`
	IncludeSamples bool            `json:"include_samples,omitempty"`
}

// Response carries the summary statistics and the resolved seed so a
// client can reproduce the draw.
type Response struct {
	engine.ResponseMeta

	Variable  string    `json:"variable"`
	NSamples  int       `json:"n_samples"`
	Seed      uint64    `json:"seed"`
	Summary   Summary   `json:"summary"`
	Samples   []float64 `json:"samples,omitempty"`
	ElapsedMS float64   `json:"elapsed_ms"`
}

// Service exposes sampling as a stateless operation.
type Service struct {
	config Config
}

// NewService builds a sampling service, filling zero limits from
// DefaultConfig.
func NewService(config Config) *Service {
	def := DefaultConfig()
	if config.MaxSamples <= 0 {
		config.MaxSamples = def.MaxSamples
	}
	if config.MaxReturned <= 0 {
		config.MaxReturned = def.MaxReturned
	}
	return &Service{config: config}
}

// Sample validates the request, draws, and summarizes.
//
// The request seed is honored when present; otherwise a fresh seed is
// generated. Either way the response reports the seed that was used.
func (s *Service) Sample(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", engine.ErrInvalidRequest)
	}
	req.EnsureDefaults()
	if err := engine.ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := req.Variable.Validate(); err != nil {
		return nil, err
	}
	if req.NSamples > s.config.MaxSamples {
		return nil, fmt.Errorf("%w: n_samples %d exceeds limit %d",
			engine.ErrInvalidRequest, req.NSamples, s.config.MaxSamples)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrComputeTimeout, err)
	}

	start := time.Now()
	seed := engine.RandomSeed()
	if req.Seed != nil {
		seed = *req.Seed
	}

	samples, err := Draw(req.Variable, req.NSamples, engine.NewRand(seed))
	if err != nil {
		return nil, err
	}
	summary, err := Summarize(samples)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		ResponseMeta: engine.NewResponseMeta(req.RequestID),
		Variable:     req.Variable.Name,
		NSamples:     req.NSamples,
		Seed:         seed,
		Summary:      summary,
		ElapsedMS:    float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if req.IncludeSamples {
		n := len(samples)
		if n > s.config.MaxReturned {
			n = s.config.MaxReturned
		}
		resp.Samples = samples[:n]
	}
	return resp, nil
}
