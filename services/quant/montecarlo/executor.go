// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package montecarlo

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/albarami/QNWIS-sub009/services/quant/engine"
	"github.com/albarami/QNWIS-sub009/services/quant/formula"
	"github.com/albarami/QNWIS-sub009/services/quant/sampler"
)

// ctxCheckInterval is how many rows an evaluation loop processes
// between context checks.
const ctxCheckInterval = 1024

// drawMatrix fills one column of n draws per declared variable.
//
// Column i reads its own stream derived from the base seed, so the
// draws depend only on the seed and the declaration order, never on
// worker count or scheduling. Columns fill concurrently when parallel
// is set; the output is identical either way.
func drawMatrix(ctx context.Context, variables []engine.Variable, n int, baseSeed uint64, parallel bool) ([][]float64, error) {
	cols := make([][]float64, len(variables))
	for i := range cols {
		cols[i] = make([]float64, n)
	}

	fill := func(i int) error {
		rng := engine.NewRand(engine.DeriveSeed(baseSeed, uint64(i)))
		return sampler.DrawInto(cols[i], variables[i], rng)
	}

	if parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i := range variables {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return fmt.Errorf("%w: %v", engine.ErrComputeTimeout, err)
				}
				return fill(i)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return cols, nil
	}

	for i := range variables {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", engine.ErrComputeTimeout, err)
		}
		if err := fill(i); err != nil {
			return nil, err
		}
	}
	return cols, nil
}

// evalOutcome holds the per-row evaluation output. Dropped rows have
// keep[i] == false; their outcome slot is meaningless.
type evalOutcome struct {
	outcomes  []float64
	keep      []bool
	dropped   int
	successes int
}

// evaluate runs the outcome formula (and optional success condition)
// over every row of the draw matrix.
//
// Math faults (ErrEvaluation) in either expression drop the row; any
// other error aborts the run. The vectorized strategy partitions rows
// across the worker pool; the scalar strategy is the single-threaded
// reference loop. Both produce identical outputs for identical input.
func evaluate(ctx context.Context, prog *formula.Program, cond *formula.Condition, cols [][]float64, n, workers int, vectorized bool) (*evalOutcome, error) {
	out := &evalOutcome{
		outcomes: make([]float64, n),
		keep:     make([]bool, n),
	}

	refSlots := make([]int, 0, len(prog.Variables()))
	for _, name := range prog.Variables() {
		slot, _ := prog.Slot(name)
		refSlots = append(refSlots, slot)
	}

	// evalRange evaluates rows [start, end) and reports drops and
	// condition successes for that range. Each call owns its scratch
	// environments, so disjoint ranges may run concurrently.
	evalRange := func(ctx context.Context, start, end int) (dropped, successes int, err error) {
		env := make([]float64, prog.Slots())
		condEnv := make([]float64, 1)
		for i := start; i < end; i++ {
			if i%ctxCheckInterval == 0 {
				if cerr := ctx.Err(); cerr != nil {
					return dropped, successes, fmt.Errorf("%w: %v", engine.ErrComputeTimeout, cerr)
				}
			}
			for _, s := range refSlots {
				env[s] = cols[s][i]
			}
			v, eerr := prog.EvalEnv(env)
			if eerr != nil {
				if errors.Is(eerr, engine.ErrEvaluation) {
					dropped++
					continue
				}
				return dropped, successes, eerr
			}
			if cond != nil {
				condEnv[0] = v
				ok, cerr := cond.EvalEnv(condEnv)
				if cerr != nil {
					if errors.Is(cerr, engine.ErrEvaluation) {
						dropped++
						continue
					}
					return dropped, successes, cerr
				}
				if ok {
					successes++
				}
			}
			out.outcomes[i] = v
			out.keep[i] = true
		}
		return dropped, successes, nil
	}

	if !vectorized || workers <= 1 || n < ctxCheckInterval {
		dropped, successes, err := evalRange(ctx, 0, n)
		if err != nil {
			return nil, err
		}
		out.dropped = dropped
		out.successes = successes
		return out, nil
	}

	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers
	droppedBy := make([]int, workers)
	successesBy := make([]int, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > n {
			end = n
		}
		if start >= end {
			break
		}
		g.Go(func() error {
			d, s, err := evalRange(gctx, start, end)
			droppedBy[w] = d
			successesBy[w] = s
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for w := 0; w < workers; w++ {
		out.dropped += droppedBy[w]
		out.successes += successesBy[w]
	}
	return out, nil
}

// compact returns the surviving outcomes as a dense slice.
func (e *evalOutcome) compact() []float64 {
	kept := make([]float64, 0, len(e.outcomes)-e.dropped)
	for i, v := range e.outcomes {
		if e.keep[i] {
			kept = append(kept, v)
		}
	}
	return kept
}

// compactColumn densifies one draw column under the same survival mask
// as the outcomes, reusing buf when it has capacity.
func (e *evalOutcome) compactColumn(col []float64, buf []float64) []float64 {
	buf = buf[:0]
	for i, v := range col {
		if e.keep[i] {
			buf = append(buf, v)
		}
	}
	return buf
}
