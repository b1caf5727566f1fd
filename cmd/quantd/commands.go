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
	"fmt"

	"github.com/albarami/QNWIS-sub009/services/quant"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	portFlag   int
	debugFlag  bool

	rootCmd = &cobra.Command{
		Use:   "quantd",
		Short: "The QNWIS quantitative validation engine daemon",
		Long: `Quantd serves the stateless compute endpoints that verify numeric
				claims made by the qualitative engine: distribution sampling,
				Monte Carlo simulation, sensitivity attribution, threshold
				sweeps, trend forecasts, peer benchmarks, correlation ranking,
				and full conflict verification sessions.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the quantitative compute API server",
		RunE:  runServe, // Defined in serve.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the quantd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("quantd " + quant.ServiceVersion)
		},
	}
)

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "",
		"Path to quant.yaml (default $HOME/.qnwis/quant.yaml)")
	serveCmd.Flags().IntVar(&portFlag, "port", 0,
		"Override the configured listen port")
	serveCmd.Flags().BoolVar(&debugFlag, "debug", false,
		"Enable debug logging and Gin debug mode")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
