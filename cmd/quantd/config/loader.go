// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the quantd daemon configuration.
//
// # Description
//
//	Configuration is a single YAML file, by default
//	$HOME/.qnwis/quant.yaml, created with defaults on first run.
//	Environment variables override file values after parsing, so a
//	containerized deployment can run without a mounted config at all.
//
// # Thread Safety
//
//	Load is safe to call from multiple goroutines; the file is read
//	once. Global must be treated as read-only after Load returns.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global QuantConfig
	once   sync.Once
)

// Load ensures the config is loaded into the Global variable. An empty
// path selects the default location under the user's home directory.
func Load(path string) error {
	var err error
	once.Do(func() {
		err = loadInternal(path)
	})
	return err
}

func loadInternal(path string) error {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not find the user's home directory: %w", err)
		}
		path = filepath.Join(home, ".qnwis", "quant.yaml")
	}
	// create it if it doesn't exist
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("First run detected, creating the config at %s\n", path)
		if err := createDefault(path); err != nil {
			return err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read the config file: %w", err)
	}
	Global = DefaultConfig()
	if err = yaml.Unmarshal(data, &Global); err != nil {
		return fmt.Errorf("failed to parse the config into the Global singleton: %w", err)
	}
	loadFromEnv(&Global)
	return nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	defaultCfg := DefaultConfig()
	data, err := yaml.Marshal(defaultCfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// loadFromEnv applies environment overrides on top of the file values.
// Malformed values are ignored and the file value stands.
func loadFromEnv(cfg *QuantConfig) {
	if v := os.Getenv("QUANT_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = i
		}
	}
	if v := os.Getenv("QUANT_GIN_MODE"); v != "" {
		cfg.Server.Mode = v
	}
	if v := os.Getenv("QUANT_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("QUANT_LOG_DIR"); v != "" {
		cfg.Server.LogDir = v
	}
	if v := os.Getenv("QUANT_MAX_SIMULATIONS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Compute.MonteCarlo.MaxSimulations = i
		}
	}
	if v := os.Getenv("QUANT_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Compute.MonteCarlo.Workers = i
		}
	}
	if v := os.Getenv("QUANT_CLAIM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Conflict.Controller.ClaimTimeout = d
		}
	}
	if v := os.Getenv("QUANT_REBUTTAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Conflict.Controller.RebuttalTimeout = d
		}
	}
	if v := os.Getenv("QUANT_QUALITATIVE_URL"); v != "" {
		cfg.Conflict.QualitativeURL = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
}
