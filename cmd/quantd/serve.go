// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/albarami/QNWIS-sub009/cmd/quantd/config"
	"github.com/albarami/QNWIS-sub009/pkg/logging"
	"github.com/albarami/QNWIS-sub009/services/quant"
	"github.com/albarami/QNWIS-sub009/services/quant/benchmark"
	"github.com/albarami/QNWIS-sub009/services/quant/conflict"
	"github.com/albarami/QNWIS-sub009/services/quant/correlation"
	"github.com/albarami/QNWIS-sub009/services/quant/forecast"
	"github.com/albarami/QNWIS-sub009/services/quant/montecarlo"
	"github.com/albarami/QNWIS-sub009/services/quant/observability"
	"github.com/albarami/QNWIS-sub009/services/quant/sampler"
	"github.com/albarami/QNWIS-sub009/services/quant/sensitivity"
	"github.com/albarami/QNWIS-sub009/services/quant/threshold"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

// runServe boots the quant engine HTTP server.
//
// # Description
//
//	Loads the configuration, wires logging, tracing, and metrics,
//	builds the compute services, and serves the /v1/quant API until
//	SIGINT or SIGTERM.
func runServe(cmd *cobra.Command, args []string) error {
	if err := config.Load(configPath); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := config.Global
	if portFlag > 0 {
		cfg.Server.Port = portFlag
	}
	if debugFlag {
		cfg.Server.Mode = "debug"
	}
	debug := cfg.Server.Mode == "debug"

	appLogger := setupLogging(cfg.Server, debug)

	cleanup, err := initTracer(cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to setup the OTLP tracer: %w", err)
	}

	observability.InitMetrics()

	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if debug {
		router.Use(gin.Logger())
	}
	router.Use(otelgin.Middleware("quant-engine"))

	handlers := quant.NewHandlers(buildServices(cfg))
	v1 := router.Group("/v1")
	quant.RegisterRoutes(v1, handlers)
	quant.RegisterMetricsRoute(router)

	printBanner(cfg.Server.Port)

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down quant engine server")
		cleanup(context.Background())
		if err := appLogger.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", err)
		}
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	slog.Info("Starting quant engine server", slog.String("address", addr))
	if err := router.Run(addr); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// setupLogging installs the process-wide logger. Console output is
// colorized on a terminal and plain otherwise; LogDir adds a JSON
// file destination for log shipping.
func setupLogging(cfg config.ServerConfig, debug bool) *logging.Logger {
	level := logging.ParseLevel(cfg.LogLevel)
	if debug {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   level,
		Service: "quantd",
		LogDir:  cfg.LogDir,
		JSON:    cfg.LogJSON,
	})
	slog.SetDefault(logger.Slog())
	return logger
}

// initTracer configures OTLP trace export over gRPC. An empty endpoint
// disables export and returns a no-op cleanup.
func initTracer(otelEndpoint string) (func(context.Context), error) {
	if otelEndpoint == "" {
		slog.Info("OTLP endpoint not configured, trace export disabled")
		return func(context.Context) {}, nil
	}
	ctx := context.Background()

	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("quant-engine")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// buildServices constructs every compute service from the loaded
// configuration. The conflict controller shares the same service
// instances the HTTP endpoints expose; all of them are stateless.
func buildServices(cfg config.QuantConfig) quant.Services {
	samplerSvc := sampler.NewService(cfg.Compute.Sampler)
	monteCarloSvc := montecarlo.NewService(cfg.Compute.MonteCarlo)
	sensitivitySvc := sensitivity.NewService()
	thresholdSvc := threshold.NewService(cfg.Compute.Threshold)
	forecastSvc := forecast.NewService(cfg.Compute.Forecast)
	benchmarkSvc := benchmark.NewService()
	correlationSvc := correlation.NewService()

	var exchange conflict.Exchange
	if cfg.Conflict.QualitativeURL != "" {
		exchange = conflict.NewHTTPExchange(
			cfg.Conflict.QualitativeURL,
			cfg.Conflict.Controller.RebuttalTimeout,
			cfg.Conflict.RebuttalPath,
		)
		slog.Info("Rebuttal exchange enabled",
			slog.String("qualitative_url", cfg.Conflict.QualitativeURL))
	} else {
		slog.Info("Rebuttal exchange disabled, conflicts escalate without a re-argument round")
	}

	controller := conflict.NewController(conflict.Services{
		Threshold:   thresholdSvc,
		Sensitivity: sensitivitySvc,
		Forecast:    forecastSvc,
		MonteCarlo:  monteCarloSvc,
		Benchmark:   benchmarkSvc,
		Correlation: correlationSvc,
	}, exchange, cfg.Conflict.Controller)

	return quant.Services{
		Sampler:     samplerSvc,
		MonteCarlo:  monteCarloSvc,
		Sensitivity: sensitivitySvc,
		Threshold:   thresholdSvc,
		Forecast:    forecastSvc,
		Benchmark:   benchmarkSvc,
		Correlation: correlationSvc,
		Conflicts:   controller,
	}
}

func printBanner(port int) {
	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                        QNWIS QUANT ENGINE                         ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Stateless numeric verification for policy intelligence claims.   ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/quant/health                  │  ║
║  │                                                             │  ║
║  │ # Run a simulation                                          │  ║
║  │ curl -X POST http://localhost:%d/v1/quant/simulations \   │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"variables": [...], "outcome_formula": "x * y"}'     │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Compute: /samples, /simulations, /sensitivity                ║
║  ├── Sweeps:  /thresholds, /forecasts                             ║
║  ├── Compare: /benchmarks, /correlations                          ║
║  └── Verify:  /conflicts                                          ║
║                                                                   ║
║  Metrics on /metrics. Press Ctrl+C to stop.                       ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, port, port)
}
