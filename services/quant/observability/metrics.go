// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics for the quantitative engine.
//
// # Description
//
// This package implements Prometheus metrics for monitoring the compute
// services. Metrics include:
//   - Request counters (by endpoint, status, error code)
//   - Compute latency histograms
//   - Simulation volume (draws executed, draws dropped)
//   - Active computation gauges
//   - Conflict session outcomes and per-claim verdicts
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "qnwis"

// Subsystem for compute metrics
const computeSubsystem = "quant"

// ComputeMetrics holds all Prometheus metrics for the compute services.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring compute
// volume, latency, and failure modes. Initialize once at startup via
// InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type ComputeMetrics struct {
	// RequestsTotal counts compute requests by endpoint and status.
	// Labels: endpoint (simulations, forecasts, ...), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// ErrorsTotal counts failures by endpoint and error code.
	// Labels: endpoint, error_code (invalid_request, compute_timeout, etc.)
	ErrorsTotal *prometheus.CounterVec

	// ComputeDurationSeconds measures per-request compute latency.
	// Labels: endpoint, status (success, error)
	ComputeDurationSeconds *prometheus.HistogramVec

	// ActiveComputations tracks requests currently being computed.
	// Labels: endpoint
	ActiveComputations *prometheus.GaugeVec

	// SimulationDrawsTotal counts Monte Carlo draws executed.
	SimulationDrawsTotal prometheus.Counter

	// SimulationDroppedTotal counts draws dropped for math faults.
	SimulationDroppedTotal prometheus.Counter

	// ConflictSessionsTotal counts conflict sessions by final outcome.
	// Labels: outcome (confirmed, escalated, error)
	ConflictSessionsTotal *prometheus.CounterVec

	// ConflictVerdictsTotal counts per-claim verdicts.
	// Labels: kind (threshold, magnitude, ...), agreement (CONFIRM, CONFLICT)
	ConflictVerdictsTotal *prometheus.CounterVec

	// RebuttalRoundsTotal counts re-argument rounds sent to the
	// qualitative engine.
	RebuttalRoundsTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of ComputeMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *ComputeMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once
// at application startup, after the Prometheus registry is available.
//
// # Outputs
//
//   - *ComputeMetrics: The initialized metrics instance.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *ComputeMetrics {
	DefaultMetrics = &ComputeMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: computeSubsystem,
				Name:      "requests_total",
				Help:      "Total number of compute requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: computeSubsystem,
				Name:      "errors_total",
				Help:      "Total compute failures by endpoint and error code",
			},
			[]string{"endpoint", "error_code"},
		),

		ComputeDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: computeSubsystem,
				Name:      "compute_duration_seconds",
				Help:      "Per-request compute latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"endpoint", "status"},
		),

		ActiveComputations: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: computeSubsystem,
				Name:      "active_computations",
				Help:      "Number of requests currently being computed",
			},
			[]string{"endpoint"},
		),

		SimulationDrawsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: computeSubsystem,
				Name:      "simulation_draws_total",
				Help:      "Total Monte Carlo draws executed",
			},
		),

		SimulationDroppedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: computeSubsystem,
				Name:      "simulation_dropped_total",
				Help:      "Total Monte Carlo draws dropped for math faults",
			},
		),

		ConflictSessionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: computeSubsystem,
				Name:      "conflict_sessions_total",
				Help:      "Total conflict sessions by final outcome",
			},
			[]string{"outcome"},
		),

		ConflictVerdictsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: computeSubsystem,
				Name:      "conflict_verdicts_total",
				Help:      "Total per-claim verdicts by kind and agreement",
			},
			[]string{"kind", "agreement"},
		),

		RebuttalRoundsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: computeSubsystem,
				Name:      "rebuttal_rounds_total",
				Help:      "Total re-argument rounds sent to the qualitative engine",
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
//
// Values mirror the stable machine-readable codes of the compute
// errors so dashboards and API error bodies agree.
type ErrorCode string

const (
	// ErrorCodeInvalidRequest indicates request validation failure.
	ErrorCodeInvalidRequest ErrorCode = "invalid_request"

	// ErrorCodeInvalidExpression indicates a rejected formula.
	ErrorCodeInvalidExpression ErrorCode = "invalid_expression"

	// ErrorCodeEvaluation indicates a runtime math fault.
	ErrorCodeEvaluation ErrorCode = "evaluation_error"

	// ErrorCodeSimulationDegraded indicates excessive dropped draws.
	ErrorCodeSimulationDegraded ErrorCode = "simulation_degraded"

	// ErrorCodeLengthMismatch indicates misaligned series.
	ErrorCodeLengthMismatch ErrorCode = "length_mismatch"

	// ErrorCodeInsufficientData indicates too few usable points.
	ErrorCodeInsufficientData ErrorCode = "insufficient_data"

	// ErrorCodeTimeout indicates a computation exceeded its deadline.
	ErrorCodeTimeout ErrorCode = "compute_timeout"

	// ErrorCodeInternal indicates an unclassified server error.
	ErrorCodeInternal ErrorCode = "internal"
)

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint represents a compute endpoint for metrics labeling.
type Endpoint string

const (
	// EndpointSimulations is the Monte Carlo endpoint.
	EndpointSimulations Endpoint = "simulations"

	// EndpointSensitivity is the sensitivity analysis endpoint.
	EndpointSensitivity Endpoint = "sensitivity"

	// EndpointThresholds is the threshold sweep endpoint.
	EndpointThresholds Endpoint = "thresholds"

	// EndpointForecasts is the trend forecast endpoint.
	EndpointForecasts Endpoint = "forecasts"

	// EndpointBenchmarks is the peer benchmark endpoint.
	EndpointBenchmarks Endpoint = "benchmarks"

	// EndpointCorrelations is the correlation ranking endpoint.
	EndpointCorrelations Endpoint = "correlations"

	// EndpointSamples is the distribution sampler endpoint.
	EndpointSamples Endpoint = "samples"

	// EndpointConflicts is the conflict session endpoint.
	EndpointConflicts Endpoint = "conflicts"
)

// =============================================================================
// Conflict Outcomes
// =============================================================================

// ConflictOutcome labels how a conflict session ended.
type ConflictOutcome string

const (
	// OutcomeConfirmed means every claim was confirmed.
	OutcomeConfirmed ConflictOutcome = "confirmed"

	// OutcomeEscalated means at least one conflict was surfaced.
	OutcomeEscalated ConflictOutcome = "escalated"

	// OutcomeError means the session failed unrecoverably.
	OutcomeError ConflictOutcome = "error"
)

// =============================================================================
// Helper Methods
// =============================================================================

// All helper methods are no-ops on a nil receiver, so code paths that
// run before InitMetrics (or in tests without a registry) need no guard.

// RecordRequest records a completed compute request.
func (m *ComputeMetrics) RecordRequest(endpoint Endpoint, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
}

// RecordError records a compute failure.
func (m *ComputeMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// RecordDuration records a request's compute latency.
func (m *ComputeMetrics) RecordDuration(endpoint Endpoint, seconds float64, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.ComputeDurationSeconds.WithLabelValues(string(endpoint), status).Observe(seconds)
}

// ComputationStarted increments the active computations gauge.
func (m *ComputeMetrics) ComputationStarted(endpoint Endpoint) {
	if m == nil {
		return
	}
	m.ActiveComputations.WithLabelValues(string(endpoint)).Inc()
}

// ComputationEnded decrements the active computations gauge.
func (m *ComputeMetrics) ComputationEnded(endpoint Endpoint) {
	if m == nil {
		return
	}
	m.ActiveComputations.WithLabelValues(string(endpoint)).Dec()
}

// RecordSimulation records one simulation run's draw volume.
func (m *ComputeMetrics) RecordSimulation(draws, dropped int) {
	if m == nil {
		return
	}
	m.SimulationDrawsTotal.Add(float64(draws))
	m.SimulationDroppedTotal.Add(float64(dropped))
}

// RecordConflictSession records a conflict session's final outcome.
func (m *ComputeMetrics) RecordConflictSession(outcome ConflictOutcome) {
	if m == nil {
		return
	}
	m.ConflictSessionsTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordVerdict records one per-claim verdict.
func (m *ComputeMetrics) RecordVerdict(kind, agreement string) {
	if m == nil {
		return
	}
	m.ConflictVerdictsTotal.WithLabelValues(kind, agreement).Inc()
}

// RecordRebuttal increments the re-argument round counter.
func (m *ComputeMetrics) RecordRebuttal() {
	if m == nil {
		return
	}
	m.RebuttalRoundsTotal.Inc()
}
