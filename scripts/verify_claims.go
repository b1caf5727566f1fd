// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build ignore

// Dev script to exercise the full conflict verification pipeline.
// Run with: go run scripts/verify_claims.go
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/albarami/QNWIS-sub009/services/quant/benchmark"
	"github.com/albarami/QNWIS-sub009/services/quant/conflict"
	"github.com/albarami/QNWIS-sub009/services/quant/threshold"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ctl := conflict.NewController(conflict.DefaultServices(), nil, conflict.DefaultConfig())

	rank := 2
	nearThreshold := 0.69
	farThreshold := 0.3

	req := &conflict.Request{Claims: []conflict.Claim{
		{
			ID: "demo-benchmark", Kind: conflict.KindBenchmark,
			Statement: "Qatar ranks second on labor force participation",
			Asserted:  conflict.Asserted{Rank: &rank},
			Benchmark: &benchmark.Request{
				MetricName:   "participation",
				SubjectName:  "qatar",
				SubjectValue: 92,
				Peers:        map[string]float64{"saudi": 95, "uae": 90, "kuwait": 85},
			},
		},
		{
			ID: "demo-threshold-near", Kind: conflict.KindThreshold,
			Statement: "The budget holds until the quota passes 0.7",
			Asserted:  conflict.Asserted{Value: &nearThreshold},
			Threshold: &threshold.Request{
				VariableName:  "quota",
				VariableRange: [2]float64{0, 1},
				Steps:         11,
				Constraints: []threshold.Constraint{
					{Name: "budget", Condition: "quota * 1000 > 600"},
				},
			},
		},
		{
			ID: "demo-threshold-far", Kind: conflict.KindThreshold,
			Statement: "The quota can fall to 0.3 before the budget breaks",
			Asserted:  conflict.Asserted{Value: &farThreshold},
			Threshold: &threshold.Request{
				VariableName:  "quota",
				VariableRange: [2]float64{0, 1},
				Steps:         11,
				Constraints: []threshold.Constraint{
					{Name: "budget", Condition: "quota * 1000 > 600"},
				},
			},
		},
	}}

	res, err := ctl.Run(ctx, req)
	if err != nil {
		log.Fatalf("session failed: %v", err)
	}

	fmt.Printf("session %s: state=%s escalated=%v rounds=%d elapsed=%.1fms\n",
		res.SessionID, res.State, res.Escalated, res.Rounds, res.ElapsedMS)
	for _, v := range res.Verdicts {
		computed := "n/a"
		if v.Computed != nil {
			computed = fmt.Sprintf("%g", *v.Computed)
		}
		fmt.Printf("  %-20s %-12s %-8s computed=%-8s %s\n",
			v.ClaimID, v.Kind, v.Agreement, computed, v.Detail)
	}
	for _, tr := range res.Transitions {
		fmt.Printf("  transition %s -> %s\n", tr.From, tr.To)
	}
}
