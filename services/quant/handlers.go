// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package quant

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/albarami/QNWIS-sub009/services/quant/benchmark"
	"github.com/albarami/QNWIS-sub009/services/quant/conflict"
	"github.com/albarami/QNWIS-sub009/services/quant/correlation"
	"github.com/albarami/QNWIS-sub009/services/quant/engine"
	"github.com/albarami/QNWIS-sub009/services/quant/forecast"
	"github.com/albarami/QNWIS-sub009/services/quant/montecarlo"
	"github.com/albarami/QNWIS-sub009/services/quant/observability"
	"github.com/albarami/QNWIS-sub009/services/quant/sampler"
	"github.com/albarami/QNWIS-sub009/services/quant/sensitivity"
	"github.com/albarami/QNWIS-sub009/services/quant/threshold"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Services bundles the compute services behind the HTTP surface.
type Services struct {
	Sampler     *sampler.Service
	MonteCarlo  *montecarlo.Service
	Sensitivity *sensitivity.Service
	Threshold   *threshold.Service
	Forecast    *forecast.Service
	Benchmark   *benchmark.Service
	Correlation *correlation.Service
	Conflicts   *conflict.Controller
}

// DefaultServices wires every compute service with its default
// configuration. The conflict controller runs without a rebuttal
// exchange, so conflicts are surfaced without a re-argument round.
func DefaultServices() Services {
	return Services{
		Sampler:     sampler.NewService(sampler.DefaultConfig()),
		MonteCarlo:  montecarlo.NewService(montecarlo.DefaultConfig()),
		Sensitivity: sensitivity.NewService(),
		Threshold:   threshold.NewService(threshold.DefaultConfig()),
		Forecast:    forecast.NewService(forecast.DefaultConfig()),
		Benchmark:   benchmark.NewService(),
		Correlation: correlation.NewService(),
		Conflicts:   conflict.NewController(conflict.DefaultServices(), nil, conflict.DefaultConfig()),
	}
}

// Handlers contains the HTTP handlers for the quantitative engine.
type Handlers struct {
	services Services
	metrics  *observability.ComputeMetrics
}

// NewHandlers creates handlers for the given services. Metrics default
// to the observability singleton; a nil singleton disables recording.
func NewHandlers(services Services) *Handlers {
	return &Handlers{
		services: services,
		metrics:  observability.DefaultMetrics,
	}
}

// WithMetrics sets the metrics sink for these handlers.
func (h *Handlers) WithMetrics(m *observability.ComputeMetrics) *Handlers {
	h.metrics = m
	return h
}

// statusFor maps a compute error onto an HTTP status code.
//
// Validation failures are client errors. Runtime math faults are
// unprocessable: the request was well formed but no result exists for
// it. Deadline overruns surface as gateway timeouts.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidRequest),
		errors.Is(err, engine.ErrInvalidExpression),
		errors.Is(err, engine.ErrLengthMismatch),
		errors.Is(err, engine.ErrInsufficientData):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrEvaluation),
		errors.Is(err, engine.ErrSimulationDegraded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrComputeTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// getOrCreateRequestID returns the X-Request-ID header, generating one
// when absent, and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// rejectBind writes the standard response for an unparseable body.
func (h *Handlers) rejectBind(c *gin.Context, logger *slog.Logger, endpoint observability.Endpoint, err error) {
	logger.Warn("Invalid request body", "error", err)
	h.metrics.RecordRequest(endpoint, false)
	h.metrics.RecordError(endpoint, observability.ErrorCodeInvalidRequest)
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request body",
		Code:    string(observability.ErrorCodeInvalidRequest),
		Details: err.Error(),
	})
}

// fail maps a compute error onto its HTTP status, records metrics, and
// writes the standard error body.
func (h *Handlers) fail(c *gin.Context, logger *slog.Logger, endpoint observability.Endpoint, start time.Time, err error) {
	code := engine.Code(err)
	logger.Error("Compute failed", "error", err, "code", code)

	h.metrics.RecordDuration(endpoint, time.Since(start).Seconds(), false)
	h.metrics.RecordRequest(endpoint, false)
	h.metrics.RecordError(endpoint, observability.ErrorCode(code))

	c.JSON(statusFor(err), ErrorResponse{Error: err.Error(), Code: code})
}

// succeed records the success metrics for a completed request.
func (h *Handlers) succeed(endpoint observability.Endpoint, start time.Time) {
	h.metrics.RecordDuration(endpoint, time.Since(start).Seconds(), true)
	h.metrics.RecordRequest(endpoint, true)
}

// HandleSample handles POST /v1/quant/samples.
//
// # Description
//
// Draws from a single variable's distribution and returns summary
// statistics plus the resolved seed. Raw samples are echoed back only
// when the request asks for them.
//
// # Response
//
//	200 OK: sampler.Response
//	400 Bad Request: Validation error
//	422 Unprocessable Entity: Degenerate distribution parameters
func (h *Handlers) HandleSample(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSample")
	endpoint := observability.EndpointSamples

	var req sampler.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rejectBind(c, logger, endpoint, err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = requestID
	}

	h.metrics.ComputationStarted(endpoint)
	defer h.metrics.ComputationEnded(endpoint)

	start := time.Now()
	resp, err := h.services.Sampler.Sample(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, logger, endpoint, start, err)
		return
	}

	h.succeed(endpoint, start)
	c.JSON(http.StatusOK, resp)
}

// HandleSimulation handles POST /v1/quant/simulations.
//
// # Description
//
// Runs a Monte Carlo simulation over the requested variables and
// outcome formula. Returns the outcome distribution, optional success
// rate, and per-variable sensitivity attribution.
//
// # Response
//
//	200 OK: montecarlo.Result
//	400 Bad Request: Validation or expression error
//	422 Unprocessable Entity: Simulation degraded beyond tolerance
//	504 Gateway Timeout: Deadline exceeded mid-run
func (h *Handlers) HandleSimulation(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSimulation")
	endpoint := observability.EndpointSimulations

	var req montecarlo.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rejectBind(c, logger, endpoint, err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = requestID
	}

	logger.Info("Running simulation",
		"n_simulations", req.NSimulations,
		"variables", len(req.Variables))

	h.metrics.ComputationStarted(endpoint)
	defer h.metrics.ComputationEnded(endpoint)

	start := time.Now()
	result, err := h.services.MonteCarlo.Run(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, logger, endpoint, start, err)
		return
	}

	h.succeed(endpoint, start)
	h.metrics.RecordSimulation(result.NSimulations, result.DroppedDraws)
	c.JSON(http.StatusOK, result)
}

// HandleSensitivity handles POST /v1/quant/sensitivity.
func (h *Handlers) HandleSensitivity(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSensitivity")
	endpoint := observability.EndpointSensitivity

	var req sensitivity.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rejectBind(c, logger, endpoint, err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = requestID
	}

	h.metrics.ComputationStarted(endpoint)
	defer h.metrics.ComputationEnded(endpoint)

	start := time.Now()
	result, err := h.services.Sensitivity.Analyze(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, logger, endpoint, start, err)
		return
	}

	h.succeed(endpoint, start)
	c.JSON(http.StatusOK, result)
}

// HandleThreshold handles POST /v1/quant/thresholds.
func (h *Handlers) HandleThreshold(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleThreshold")
	endpoint := observability.EndpointThresholds

	var req threshold.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rejectBind(c, logger, endpoint, err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = requestID
	}

	h.metrics.ComputationStarted(endpoint)
	defer h.metrics.ComputationEnded(endpoint)

	start := time.Now()
	result, err := h.services.Threshold.Sweep(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, logger, endpoint, start, err)
		return
	}

	h.succeed(endpoint, start)
	c.JSON(http.StatusOK, result)
}

// HandleForecast handles POST /v1/quant/forecasts.
func (h *Handlers) HandleForecast(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleForecast")
	endpoint := observability.EndpointForecasts

	var req forecast.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rejectBind(c, logger, endpoint, err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = requestID
	}

	h.metrics.ComputationStarted(endpoint)
	defer h.metrics.ComputationEnded(endpoint)

	start := time.Now()
	result, err := h.services.Forecast.Forecast(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, logger, endpoint, start, err)
		return
	}

	h.succeed(endpoint, start)
	c.JSON(http.StatusOK, result)
}

// HandleBenchmark handles POST /v1/quant/benchmarks.
func (h *Handlers) HandleBenchmark(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleBenchmark")
	endpoint := observability.EndpointBenchmarks

	var req benchmark.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rejectBind(c, logger, endpoint, err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = requestID
	}

	h.metrics.ComputationStarted(endpoint)
	defer h.metrics.ComputationEnded(endpoint)

	start := time.Now()
	result, err := h.services.Benchmark.Rank(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, logger, endpoint, start, err)
		return
	}

	h.succeed(endpoint, start)
	c.JSON(http.StatusOK, result)
}

// HandleCorrelation handles POST /v1/quant/correlations.
func (h *Handlers) HandleCorrelation(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCorrelation")
	endpoint := observability.EndpointCorrelations

	var req correlation.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rejectBind(c, logger, endpoint, err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = requestID
	}

	h.metrics.ComputationStarted(endpoint)
	defer h.metrics.ComputationEnded(endpoint)

	start := time.Now()
	result, err := h.services.Correlation.Rank(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, logger, endpoint, start, err)
		return
	}

	h.succeed(endpoint, start)
	c.JSON(http.StatusOK, result)
}

// HandleConflict handles POST /v1/quant/conflicts.
//
// # Description
//
// Runs a full conflict session: computes evidence for every submitted
// claim, compares it against the asserted values, and escalates
// disagreements through at most one re-argument round. The response
// carries per-claim verdicts and the session's state history.
//
// # Response
//
//	200 OK: conflict.Result (verdicts may still contain conflicts)
//	400 Bad Request: Malformed claim set
//	504 Gateway Timeout: Session canceled before completion
func (h *Handlers) HandleConflict(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleConflict")
	endpoint := observability.EndpointConflicts

	var req conflict.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rejectBind(c, logger, endpoint, err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = requestID
	}

	logger.Info("Running conflict session", "claims", len(req.Claims))

	h.metrics.ComputationStarted(endpoint)
	defer h.metrics.ComputationEnded(endpoint)

	start := time.Now()
	result, err := h.services.Conflicts.Run(c.Request.Context(), &req)
	if err != nil {
		h.metrics.RecordConflictSession(observability.OutcomeError)
		h.fail(c, logger, endpoint, start, err)
		return
	}

	for _, v := range result.Verdicts {
		h.metrics.RecordVerdict(v.Kind.String(), string(v.Agreement))
	}
	if result.Rounds > 1 {
		h.metrics.RecordRebuttal()
	}
	outcome := observability.OutcomeConfirmed
	if !result.Confirmed() {
		outcome = observability.OutcomeEscalated
	}
	h.metrics.RecordConflictSession(outcome)

	h.succeed(endpoint, start)
	c.JSON(http.StatusOK, result)
}

// HandleHealth handles GET /v1/quant/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /v1/quant/ready.
//
// The engine is stateless and holds no warm caches, so readiness
// equals liveness.
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, ReadyResponse{
		Ready:     true,
		Version:   ServiceVersion,
		Endpoints: 8,
	})
}
