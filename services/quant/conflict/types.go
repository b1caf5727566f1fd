// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conflict verifies qualitative claims against the compute
// services and classifies the disagreement.
//
// The qualitative engine submits structured Claims, each carrying the
// request payload for the compute service its kind implies. A session
// walks an explicit state machine: claims are dispatched concurrently,
// every computed result is compared against the asserted value, and
// any conflict triggers at most one bounded re-argument round before
// the verdicts are surfaced as-is. The controller never fabricates a
// resolution; a claim whose computation failed is reported as a
// conflict with an unresolved marker, never dropped.
//
// Thread Safety:
//
//	All exported types in this package are safe for concurrent use.
//	Sessions are protected by internal synchronization; the controller
//	itself holds no mutable state across Run calls.
package conflict

import (
	"fmt"
	"math"

	"github.com/albarami/QNWIS-sub009/services/quant/benchmark"
	"github.com/albarami/QNWIS-sub009/services/quant/correlation"
	"github.com/albarami/QNWIS-sub009/services/quant/engine"
	"github.com/albarami/QNWIS-sub009/services/quant/forecast"
	"github.com/albarami/QNWIS-sub009/services/quant/montecarlo"
	"github.com/albarami/QNWIS-sub009/services/quant/sensitivity"
	"github.com/albarami/QNWIS-sub009/services/quant/threshold"
	"github.com/google/uuid"
)

// ClaimKind selects the compute service a claim is verified against.
type ClaimKind string

const (
	// KindThreshold asserts where a constraint starts to breach.
	KindThreshold ClaimKind = "threshold"

	// KindSensitivity asserts how strongly a parameter drives the outcome.
	KindSensitivity ClaimKind = "sensitivity"

	// KindForecast asserts a future value of a series.
	KindForecast ClaimKind = "forecast"

	// KindMagnitude asserts the expected magnitude of a simulated outcome.
	KindMagnitude ClaimKind = "magnitude"

	// KindBenchmark asserts a rank within a peer cohort.
	KindBenchmark ClaimKind = "benchmark"

	// KindCorrelation asserts which series is the strongest driver.
	KindCorrelation ClaimKind = "correlation"
)

// String returns the string representation of the kind.
func (k ClaimKind) String() string {
	return string(k)
}

// Valid reports whether the kind is one of the supported claim kinds.
func (k ClaimKind) Valid() bool {
	switch k {
	case KindThreshold, KindSensitivity, KindForecast,
		KindMagnitude, KindBenchmark, KindCorrelation:
		return true
	default:
		return false
	}
}

// AllClaimKinds returns every supported claim kind.
func AllClaimKinds() []ClaimKind {
	return []ClaimKind{
		KindThreshold,
		KindSensitivity,
		KindForecast,
		KindMagnitude,
		KindBenchmark,
		KindCorrelation,
	}
}

// Asserted is the quantitative content of a claim.
//
// Which fields are meaningful depends on the claim kind. Numeric kinds
// carry either a point Value or a [Low, High] range; benchmark claims
// carry a Rank; sensitivity and correlation claims name a Driver
// (for sensitivity the driver is optional and defaults to the computed
// top driver). Value takes precedence when both a point and a range
// are present.
type Asserted struct {
	Value  *float64 `json:"value,omitempty"`
	Low    *float64 `json:"low,omitempty"`
	High   *float64 `json:"high,omitempty"`
	Rank   *int     `json:"rank,omitempty"`
	Driver string   `json:"driver,omitempty"`
}

// hasRange reports whether a usable [Low, High] interval is present.
func (a Asserted) hasRange() bool {
	return a.Low != nil && a.High != nil
}

// Claim is one structured quantitative assertion from the qualitative
// engine, together with the compute request that checks it.
//
// Exactly one payload field must be set, and it must match Kind.
// Statement carries the original prose assertion for audit trails; the
// controller never parses it.
type Claim struct {
	ID        string    `json:"id,omitempty"`
	Kind      ClaimKind `json:"kind"`
	Statement string    `json:"statement,omitempty"`
	Asserted  Asserted  `json:"asserted"`

	Threshold   *threshold.Request   `json:"threshold,omitempty"`
	Sensitivity *sensitivity.Request `json:"sensitivity,omitempty"`
	Forecast    *forecast.Request    `json:"forecast,omitempty"`
	Magnitude   *montecarlo.Request  `json:"magnitude,omitempty"`
	Benchmark   *benchmark.Request   `json:"benchmark,omitempty"`
	Correlation *correlation.Request `json:"correlation,omitempty"`
}

// EnsureDefaults assigns a claim ID when the qualitative engine did
// not provide one.
func (c *Claim) EnsureDefaults() {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
}

// Validate checks the claim envelope: kind, payload shape, and the
// asserted fields the kind requires.
//
// Payload semantics (variable definitions, formulas, series) are
// validated by the target compute service at dispatch time; a payload
// the service rejects becomes an unresolved conflict verdict for that
// claim, not a request-level failure.
func (c *Claim) Validate() error {
	if !c.Kind.Valid() {
		return fmt.Errorf("%w: unknown claim kind %q", engine.ErrInvalidRequest, string(c.Kind))
	}

	set := 0
	for _, present := range []bool{
		c.Threshold != nil,
		c.Sensitivity != nil,
		c.Forecast != nil,
		c.Magnitude != nil,
		c.Benchmark != nil,
		c.Correlation != nil,
	} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: claim must carry exactly one payload, got %d", engine.ErrInvalidRequest, set)
	}
	if c.payload() == nil {
		return fmt.Errorf("%w: claim payload does not match kind %q", engine.ErrInvalidRequest, c.Kind)
	}

	switch c.Kind {
	case KindBenchmark:
		if c.Asserted.Rank == nil {
			return fmt.Errorf("%w: benchmark claim requires an asserted rank", engine.ErrInvalidRequest)
		}
		if *c.Asserted.Rank < 1 {
			return fmt.Errorf("%w: asserted rank must be >= 1, got %d", engine.ErrInvalidRequest, *c.Asserted.Rank)
		}
	case KindCorrelation:
		if c.Asserted.Driver == "" {
			return fmt.Errorf("%w: correlation claim requires an asserted driver", engine.ErrInvalidRequest)
		}
	default:
		if c.Asserted.Value == nil && !c.Asserted.hasRange() {
			return fmt.Errorf("%w: %s claim requires an asserted value or [low, high] range", engine.ErrInvalidRequest, c.Kind)
		}
		for name, f := range map[string]*float64{
			"value": c.Asserted.Value,
			"low":   c.Asserted.Low,
			"high":  c.Asserted.High,
		} {
			if f != nil && (math.IsNaN(*f) || math.IsInf(*f, 0)) {
				return fmt.Errorf("%w: asserted %s must be finite", engine.ErrInvalidRequest, name)
			}
		}
		if c.Asserted.hasRange() && *c.Asserted.Low > *c.Asserted.High {
			return fmt.Errorf("%w: asserted range low %v exceeds high %v", engine.ErrInvalidRequest, *c.Asserted.Low, *c.Asserted.High)
		}
	}
	return nil
}

// payload returns the payload matching Kind, or nil when the claim
// carries a payload for a different kind.
func (c *Claim) payload() any {
	switch c.Kind {
	case KindThreshold:
		if c.Threshold != nil {
			return c.Threshold
		}
	case KindSensitivity:
		if c.Sensitivity != nil {
			return c.Sensitivity
		}
	case KindForecast:
		if c.Forecast != nil {
			return c.Forecast
		}
	case KindMagnitude:
		if c.Magnitude != nil {
			return c.Magnitude
		}
	case KindBenchmark:
		if c.Benchmark != nil {
			return c.Benchmark
		}
	case KindCorrelation:
		if c.Correlation != nil {
			return c.Correlation
		}
	}
	return nil
}

// Agreement classifies one claim against its computed result.
type Agreement string

const (
	// AgreementConfirm means the computed result supports the claim.
	AgreementConfirm Agreement = "CONFIRM"

	// AgreementConflict means the computed result contradicts the
	// claim, or the computation failed and nothing supports it.
	AgreementConflict Agreement = "CONFLICT"
)

// Verdict is the per-claim outcome of a conflict session.
//
// Delta is the numeric disagreement magnitude; it is nil when the
// asserted and computed quantities are not directly comparable (a
// sweep that never breaches, a driver absent from the computed
// ranking, a failed computation). Computed echoes the value the
// assertion was compared against. Unresolved marks a claim whose
// computation failed; its Error carries the typed compute error.
type Verdict struct {
	ClaimID    string    `json:"claim_id"`
	Kind       ClaimKind `json:"kind"`
	Agreement  Agreement `json:"agreement"`
	Delta      *float64  `json:"delta,omitempty"`
	Computed   *float64  `json:"computed,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Unresolved bool      `json:"unresolved,omitempty"`
	Error      string    `json:"error,omitempty"`
	Revised    bool      `json:"revised,omitempty"`
	Evidence   any       `json:"evidence,omitempty"`
}

// Request runs one conflict session over a claim set.
type Request struct {
	engine.RequestMeta

	Claims []Claim `json:"claims" validate:"required,min=1"`
}

// Result is the final state of a conflict session.
//
// Verdicts are ordered like the request's claims. Rounds is 1 for a
// session that never escalated or whose escalation produced no usable
// revision, 2 when a re-argument round recomputed revised claims.
type Result struct {
	engine.ResponseMeta

	SessionID   string            `json:"session_id"`
	State       SessionState      `json:"state"`
	Verdicts    []Verdict         `json:"verdicts"`
	Escalated   bool              `json:"escalated"`
	Rounds      int               `json:"rounds"`
	Transitions []TransitionEntry `json:"transitions,omitempty"`
	ElapsedMS   float64           `json:"elapsed_ms"`
}

// Confirmed reports whether every verdict agrees with its claim.
func (r *Result) Confirmed() bool {
	for _, v := range r.Verdicts {
		if v.Agreement != AgreementConfirm {
			return false
		}
	}
	return true
}
