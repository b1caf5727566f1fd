// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conflict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/albarami/QNWIS-sub009/services/quant/benchmark"
	"github.com/albarami/QNWIS-sub009/services/quant/correlation"
	"github.com/albarami/QNWIS-sub009/services/quant/engine"
	"github.com/albarami/QNWIS-sub009/services/quant/forecast"
	"github.com/albarami/QNWIS-sub009/services/quant/montecarlo"
	"github.com/albarami/QNWIS-sub009/services/quant/sensitivity"
	"github.com/albarami/QNWIS-sub009/services/quant/threshold"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("quant.conflict")

// ThresholdService runs threshold sweeps.
type ThresholdService interface {
	Sweep(ctx context.Context, req *threshold.Request) (*threshold.Result, error)
}

// SensitivityService runs one-at-a-time sensitivity analyses.
type SensitivityService interface {
	Analyze(ctx context.Context, req *sensitivity.Request) (*sensitivity.Result, error)
}

// ForecastService runs trend extrapolations.
type ForecastService interface {
	Forecast(ctx context.Context, req *forecast.Request) (*forecast.Result, error)
}

// MonteCarloService runs simulations.
type MonteCarloService interface {
	Run(ctx context.Context, req *montecarlo.Request) (*montecarlo.Result, error)
}

// BenchmarkService ranks a subject against peers.
type BenchmarkService interface {
	Rank(ctx context.Context, req *benchmark.Request) (*benchmark.Result, error)
}

// CorrelationService ranks candidate drivers of a target series.
type CorrelationService interface {
	Rank(ctx context.Context, req *correlation.Request) (*correlation.Result, error)
}

// Services bundles the compute services claims are dispatched to.
//
// A nil entry turns claims of that kind into unresolved conflicts
// rather than failing the session.
type Services struct {
	Threshold   ThresholdService
	Sensitivity SensitivityService
	Forecast    ForecastService
	MonteCarlo  MonteCarloService
	Benchmark   BenchmarkService
	Correlation CorrelationService
}

// DefaultServices wires every claim kind to its in-process service
// with default limits.
func DefaultServices() Services {
	return Services{
		Threshold:   threshold.NewService(threshold.DefaultConfig()),
		Sensitivity: sensitivity.NewService(),
		Forecast:    forecast.NewService(forecast.DefaultConfig()),
		MonteCarlo:  montecarlo.NewService(montecarlo.DefaultConfig()),
		Benchmark:   benchmark.NewService(),
		Correlation: correlation.NewService(),
	}
}

// Config holds the controller's tunable parameters.
type Config struct {
	// ClaimTimeout bounds each claim's computation. A claim that
	// exceeds it becomes ComputeTimeout for that claim only.
	// Default: 30s
	ClaimTimeout time.Duration `yaml:"claim_timeout"`

	// RebuttalTimeout is the hard ceiling on one re-argument round
	// with the qualitative engine.
	// Default: 60s
	RebuttalTimeout time.Duration `yaml:"rebuttal_timeout"`

	// MaxParallel caps concurrently computing claims.
	// Default: number of CPUs
	MaxParallel int `yaml:"max_parallel"`

	// Tolerance is the agreement band for numeric claims.
	Tolerance Tolerance `yaml:"tolerance"`
}

// DefaultConfig returns the controller settings used when none are set.
func DefaultConfig() Config {
	return Config{
		ClaimTimeout:    30 * time.Second,
		RebuttalTimeout: 60 * time.Second,
		MaxParallel:     runtime.GOMAXPROCS(0),
		Tolerance:       DefaultTolerance(),
	}
}

// Controller runs conflict sessions over claim sets.
//
// # Description
//
//	Run walks one session through the state machine: validate the
//	claim set, dispatch every claim concurrently to its compute
//	service, compare results against assertions, and on any conflict
//	run at most one bounded re-argument round through the exchange
//	before surfacing the verdicts as-is.
//
// # Limitations
//
//	The re-debate budget is fixed at one round. The controller trusts
//	the compute services to bound their own work; its claim timeout is
//	the only backstop.
//
// # Thread Safety
//
//	Controller is immutable after creation and safe for concurrent
//	use. Each Run call owns its session.
type Controller struct {
	config   Config
	services Services
	exchange Exchange
	machine  *StateMachine
	cmp      Comparator
}

// NewController builds a controller, filling unset config fields from
// DefaultConfig.
//
// exchange may be nil; escalations then surface conflicts without a
// re-argument round.
func NewController(services Services, exchange Exchange, config Config) *Controller {
	def := DefaultConfig()
	if config.ClaimTimeout <= 0 {
		config.ClaimTimeout = def.ClaimTimeout
	}
	if config.RebuttalTimeout <= 0 {
		config.RebuttalTimeout = def.RebuttalTimeout
	}
	if config.MaxParallel <= 0 {
		config.MaxParallel = def.MaxParallel
	}
	return &Controller{
		config:   config,
		services: services,
		exchange: exchange,
		machine:  NewStateMachine(),
		cmp:      NewComparator(config.Tolerance),
	}
}

// outcome carries one claim's computation result across the
// COMPUTING/COMPARING boundary.
type outcome struct {
	evidence any
	err      error
}

// Run executes one conflict session.
//
// Inputs:
//
//	ctx - Cancels the whole session; per-claim deadlines are layered
//	      on top of it
//	req - The claim set to verify
//
// Outputs:
//
//	*Result - Final per-claim verdicts and the session trail
//	error - ErrInvalidRequest for envelope failures, ErrComputeTimeout
//	        when the session context is canceled
func (ctl *Controller) Run(ctx context.Context, req *Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "ConflictController.Run")
	defer span.End()
	start := time.Now()

	if req == nil {
		return nil, fmt.Errorf("%w: nil request", engine.ErrInvalidRequest)
	}
	req.EnsureDefaults()
	if err := engine.ValidateStruct(req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	seen := make(map[string]struct{}, len(req.Claims))
	for i := range req.Claims {
		cl := &req.Claims[i]
		cl.EnsureDefaults()
		if err := cl.Validate(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("claim %d (%s): %w", i, cl.ID, err)
		}
		if _, dup := seen[cl.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate claim id %q", engine.ErrInvalidRequest, cl.ID)
		}
		seen[cl.ID] = struct{}{}
	}
	span.SetAttributes(
		attribute.String("conflict.session_id", req.RequestID),
		attribute.Int("conflict.claims", len(req.Claims)),
	)

	// Revisions replace claims locally; the caller's slice stays as
	// submitted.
	claims := make([]Claim, len(req.Claims))
	copy(claims, req.Claims)

	session := NewSession(req.RequestID)
	slog.Info("Conflict session started",
		"session_id", session.ID(), "claims", len(claims))

	if err := ctl.transition(session, StateComputing); err != nil {
		return ctl.fail(span, session, err)
	}
	outcomes, err := ctl.computeAll(ctx, claims)
	if err != nil {
		return ctl.fail(span, session, err)
	}

	if err := ctl.transition(session, StateComparing); err != nil {
		return ctl.fail(span, session, err)
	}
	verdicts := make([]Verdict, len(claims))
	for i := range claims {
		verdicts[i] = ctl.cmp.Compare(&claims[i], outcomes[i].evidence, outcomes[i].err)
	}

	escalated := false
	rounds := 1
	conflictIdx := conflicting(verdicts)

	if len(conflictIdx) > 0 {
		escalated = true
		if err := ctl.transition(session, StateEscalated); err != nil {
			return ctl.fail(span, session, err)
		}
		slog.Info("Conflict session escalated",
			"session_id", session.ID(), "conflicts", len(conflictIdx))

		revised := ctl.rebut(ctx, session, claims, verdicts, conflictIdx)
		if len(revised) > 0 {
			rounds = 2
			var revisedIdx []int
			for _, i := range conflictIdx {
				if rc, ok := revised[claims[i].ID]; ok {
					claims[i] = rc
					revisedIdx = append(revisedIdx, i)
				}
			}

			if err := ctl.transition(session, StateComputing); err != nil {
				return ctl.fail(span, session, err)
			}
			reOutcomes, err := ctl.computeSubset(ctx, claims, revisedIdx)
			if err != nil {
				return ctl.fail(span, session, err)
			}
			if err := ctl.transition(session, StateComparing); err != nil {
				return ctl.fail(span, session, err)
			}
			for _, i := range revisedIdx {
				v := ctl.cmp.Compare(&claims[i], reOutcomes[i].evidence, reOutcomes[i].err)
				v.Revised = true
				verdicts[i] = v
			}
			conflictIdx = conflicting(verdicts)
		}
	}

	// Close out: all-confirm goes through CONFIRMED; remaining
	// conflicts after the single re-debate round are surfaced as-is
	// through ESCALATED.
	if len(conflictIdx) == 0 {
		if err := ctl.transition(session, StateConfirmed); err != nil {
			return ctl.fail(span, session, err)
		}
	} else if session.GetState() != StateEscalated {
		if err := ctl.transition(session, StateEscalated); err != nil {
			return ctl.fail(span, session, err)
		}
		slog.Info("Conflicts remain after re-debate",
			"session_id", session.ID(), "conflicts", len(conflictIdx))
	}
	if err := ctl.transition(session, StateDone); err != nil {
		return ctl.fail(span, session, err)
	}

	span.SetAttributes(
		attribute.Bool("conflict.escalated", escalated),
		attribute.Int("conflict.rounds", rounds),
		attribute.Int("conflict.unconfirmed", len(conflictIdx)),
	)
	slog.Info("Conflict session done",
		"session_id", session.ID(), "escalated", escalated,
		"rounds", rounds, "conflicts", len(conflictIdx))

	return &Result{
		ResponseMeta: engine.NewResponseMeta(req.RequestID),
		SessionID:    session.ID(),
		State:        session.GetState(),
		Verdicts:     verdicts,
		Escalated:    escalated,
		Rounds:       rounds,
		Transitions:  session.Transitions(),
		ElapsedMS:    float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}

// computeAll dispatches every claim.
func (ctl *Controller) computeAll(ctx context.Context, claims []Claim) ([]outcome, error) {
	idx := make([]int, len(claims))
	for i := range idx {
		idx[i] = i
	}
	return ctl.computeSubset(ctx, claims, idx)
}

// computeSubset dispatches the claims at the given indices
// concurrently. Per-claim failures land in the outcomes; the only
// returned error is cancellation of the session context.
func (ctl *Controller) computeSubset(ctx context.Context, claims []Claim, idx []int) ([]outcome, error) {
	outcomes := make([]outcome, len(claims))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ctl.config.MaxParallel)
	for _, i := range idx {
		g.Go(func() error {
			outcomes[i] = ctl.dispatch(gctx, &claims[i])
			return nil
		})
	}
	// Workers never return errors; claim failures live in outcomes.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: conflict session canceled: %v", engine.ErrComputeTimeout, err)
	}
	return outcomes, nil
}

// dispatch runs one claim against its compute service under the
// per-claim deadline.
func (ctl *Controller) dispatch(ctx context.Context, cl *Claim) outcome {
	cctx, cancel := context.WithTimeout(ctx, ctl.config.ClaimTimeout)
	defer cancel()
	start := time.Now()

	var evidence any
	var err error
	switch cl.Kind {
	case KindThreshold:
		if ctl.services.Threshold == nil {
			err = errNoService(cl.Kind)
			break
		}
		evidence, err = ctl.services.Threshold.Sweep(cctx, cl.Threshold)
	case KindSensitivity:
		if ctl.services.Sensitivity == nil {
			err = errNoService(cl.Kind)
			break
		}
		evidence, err = ctl.services.Sensitivity.Analyze(cctx, cl.Sensitivity)
	case KindForecast:
		if ctl.services.Forecast == nil {
			err = errNoService(cl.Kind)
			break
		}
		evidence, err = ctl.services.Forecast.Forecast(cctx, cl.Forecast)
	case KindMagnitude:
		if ctl.services.MonteCarlo == nil {
			err = errNoService(cl.Kind)
			break
		}
		evidence, err = ctl.services.MonteCarlo.Run(cctx, cl.Magnitude)
	case KindBenchmark:
		if ctl.services.Benchmark == nil {
			err = errNoService(cl.Kind)
			break
		}
		evidence, err = ctl.services.Benchmark.Rank(cctx, cl.Benchmark)
	case KindCorrelation:
		if ctl.services.Correlation == nil {
			err = errNoService(cl.Kind)
			break
		}
		evidence, err = ctl.services.Correlation.Rank(cctx, cl.Correlation)
	default:
		err = fmt.Errorf("%w: unknown claim kind %q", engine.ErrInvalidRequest, string(cl.Kind))
	}

	if err != nil {
		// Drop typed nils so verdicts never carry dead evidence.
		evidence = nil
		if cctx.Err() != nil && !errors.Is(err, engine.ErrComputeTimeout) {
			err = fmt.Errorf("%w: claim %s exceeded %s: %v",
				engine.ErrComputeTimeout, cl.ID, ctl.config.ClaimTimeout, err)
		}
	}

	slog.Debug("Claim computed",
		"claim_id", cl.ID, "kind", cl.Kind.String(),
		"duration_ms", time.Since(start).Milliseconds(), "failed", err != nil)
	return outcome{evidence: evidence, err: err}
}

// rebut runs the single re-argument round. It returns the usable
// revised claims keyed by claim ID; nil means the verdicts stand.
func (ctl *Controller) rebut(ctx context.Context, session *Session, claims []Claim, verdicts []Verdict, conflictIdx []int) map[string]Claim {
	if ctl.exchange == nil {
		slog.Warn("No qualitative exchange configured, surfacing conflicts as-is",
			"session_id", session.ID())
		return nil
	}

	esc := &Escalation{
		SessionID: session.ID(),
		Round:     1,
		Conflicts: make([]Verdict, 0, len(conflictIdx)),
		Claims:    make([]Claim, 0, len(conflictIdx)),
	}
	allowed := make(map[string]bool, len(conflictIdx))
	for _, i := range conflictIdx {
		esc.Conflicts = append(esc.Conflicts, verdicts[i])
		esc.Claims = append(esc.Claims, claims[i])
		allowed[claims[i].ID] = true
	}

	rctx, cancel := context.WithTimeout(ctx, ctl.config.RebuttalTimeout)
	defer cancel()
	revised, err := ctl.exchange.Rebut(rctx, esc)
	if err != nil {
		slog.Warn("Re-argument round failed, surfacing conflicts as-is",
			"session_id", session.ID(), "error", err)
		return nil
	}

	out := make(map[string]Claim, len(revised))
	for _, rc := range revised {
		if !allowed[rc.ID] {
			slog.Warn("Ignoring revised claim for unknown or unconflicted id",
				"session_id", session.ID(), "claim_id", rc.ID)
			continue
		}
		if err := rc.Validate(); err != nil {
			slog.Warn("Ignoring invalid revised claim",
				"session_id", session.ID(), "claim_id", rc.ID, "error", err)
			continue
		}
		out[rc.ID] = rc
	}
	if len(out) == 0 {
		slog.Info("Qualitative engine stands by its claims",
			"session_id", session.ID())
	}
	return out
}

// transition moves the session and logs the step.
func (ctl *Controller) transition(session *Session, to SessionState) error {
	from := session.GetState()
	if err := ctl.machine.Transition(session, to); err != nil {
		return err
	}
	slog.Debug("Conflict session transition",
		"session_id", session.ID(), "from", from.String(), "to", to.String(),
		"reason", ctl.machine.TransitionReason(from, to))
	return nil
}

// fail moves the session to ERROR and propagates the cause.
func (ctl *Controller) fail(span trace.Span, session *Session, err error) (*Result, error) {
	if ctl.machine.CanTransition(session.GetState(), StateError) {
		_ = ctl.machine.Transition(session, StateError)
	}
	span.SetStatus(codes.Error, err.Error())
	slog.Error("Conflict session failed", "session_id", session.ID(), "error", err)
	return nil, err
}

// conflicting returns the indices of unconfirmed verdicts.
func conflicting(verdicts []Verdict) []int {
	var idx []int
	for i, v := range verdicts {
		if v.Agreement == AgreementConflict {
			idx = append(idx, i)
		}
	}
	return idx
}

func errNoService(kind ClaimKind) error {
	return fmt.Errorf("no %s service configured", kind)
}
