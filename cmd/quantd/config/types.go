// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"github.com/albarami/QNWIS-sub009/services/quant/conflict"
	"github.com/albarami/QNWIS-sub009/services/quant/forecast"
	"github.com/albarami/QNWIS-sub009/services/quant/montecarlo"
	"github.com/albarami/QNWIS-sub009/services/quant/sampler"
	"github.com/albarami/QNWIS-sub009/services/quant/threshold"
)

type QuantConfig struct {
	// Server: HTTP listener settings
	Server ServerConfig `yaml:"server"`

	// Compute: per-service limits for the stateless compute endpoints
	Compute ComputeConfig `yaml:"compute"`

	// Conflict: verification session tuning and the qualitative engine's
	// rebuttal endpoint
	Conflict ConflictConfig `yaml:"conflict"`

	// Telemetry: OTLP trace export
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Port int    `yaml:"port"` // e.g. 8090
	Mode string `yaml:"mode"` // "release" or "debug"

	LogLevel string `yaml:"log_level"`          // "debug", "info", "warn", "error"
	LogDir   string `yaml:"log_dir,omitempty"`  // enables JSON file logging when set
	LogJSON  bool   `yaml:"log_json,omitempty"` // force JSON on the console
}

// ComputeConfig groups the tunable services. Sensitivity, benchmark,
// and correlation take no limits and are omitted.
type ComputeConfig struct {
	Sampler    sampler.Config    `yaml:"sampler"`
	MonteCarlo montecarlo.Config `yaml:"monte_carlo"`
	Threshold  threshold.Config  `yaml:"threshold"`
	Forecast   forecast.Config   `yaml:"forecast"`
}

type ConflictConfig struct {
	Controller conflict.Config `yaml:"controller"`

	// QualitativeURL is the base URL of the qualitative engine. Empty
	// disables the rebuttal exchange and conflicts escalate without a
	// re-argument round.
	QualitativeURL string `yaml:"qualitative_url,omitempty"`

	// RebuttalPath overrides the exchange's default rebuttal endpoint path.
	RebuttalPath string `yaml:"rebuttal_path,omitempty"`
}

type TelemetryConfig struct {
	// OTLPEndpoint is the OTLP gRPC collector address, e.g.
	// "otel-collector:4317". Empty disables trace export.
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
}

// DefaultConfig returns the configuration written on first run. Compute
// limits come from each service's own defaults.
func DefaultConfig() QuantConfig {
	return QuantConfig{
		Server: ServerConfig{
			Port:     8090,
			Mode:     "release",
			LogLevel: "info",
		},
		Compute: ComputeConfig{
			Sampler:    sampler.DefaultConfig(),
			MonteCarlo: montecarlo.DefaultConfig(),
			Threshold:  threshold.DefaultConfig(),
			Forecast:   forecast.DefaultConfig(),
		},
		Conflict: ConflictConfig{
			Controller: conflict.DefaultConfig(),
		},
		Telemetry: TelemetryConfig{},
	}
}
