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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers all quantitative engine routes with the
// router.
//
// # Description
//
// Registers all /v1/quant/* endpoints with the given Gin router group.
// The router group should already have any required middleware applied.
//
// # Inputs
//
//   - rg: Gin router group (typically /v1)
//   - handlers: The handlers instance
//
// # Compute Endpoints
//
//	POST /v1/quant/samples - Draw and summarize one distribution
//	POST /v1/quant/simulations - Run a Monte Carlo simulation
//	POST /v1/quant/sensitivity - One-at-a-time sensitivity analysis
//	POST /v1/quant/thresholds - Sweep a parameter against constraints
//	POST /v1/quant/forecasts - Trend forecast with confidence bands
//	POST /v1/quant/benchmarks - Rank a subject against its peers
//	POST /v1/quant/correlations - Rank candidate outcome drivers
//	POST /v1/quant/conflicts - Verify qualitative claims
//
// # Health Endpoints
//
//	GET /v1/quant/health - Health check
//	GET /v1/quant/ready - Readiness check
//
// # Example
//
//	handlers := quant.NewHandlers(quant.DefaultServices())
//
//	v1 := router.Group("/v1")
//	quant.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	q := rg.Group("/quant")
	{
		// Single-variable sampling
		q.POST("/samples", handlers.HandleSample)

		// Simulation and attribution
		q.POST("/simulations", handlers.HandleSimulation)
		q.POST("/sensitivity", handlers.HandleSensitivity)

		// Sweeps and projections
		q.POST("/thresholds", handlers.HandleThreshold)
		q.POST("/forecasts", handlers.HandleForecast)

		// Comparative statistics
		q.POST("/benchmarks", handlers.HandleBenchmark)
		q.POST("/correlations", handlers.HandleCorrelation)

		// Claim verification
		q.POST("/conflicts", handlers.HandleConflict)

		// Health checks
		q.GET("/health", handlers.HandleHealth)
		q.GET("/ready", handlers.HandleReady)
	}
}

// RegisterMetricsRoute exposes the Prometheus scrape endpoint on the
// root router. The default registry carries everything InitMetrics
// registered.
func RegisterMetricsRoute(router *gin.Engine) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
