// Package monitor runs the agent's control loop: on each tick it sweeps
// expired blocks, gathers fresh risk samples, fuses them per subject and
// hands them to the decision engine.
package monitor

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelops/sentinel/internal/audit"
	"github.com/sentinelops/sentinel/internal/detector"
	"github.com/sentinelops/sentinel/internal/enforce"
	"github.com/sentinelops/sentinel/internal/ledger"
	"github.com/sentinelops/sentinel/internal/metrics"
	"github.com/sentinelops/sentinel/internal/response"
	"github.com/sentinelops/sentinel/internal/risk"
)

// State is the scheduler's lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

// String returns the lower-case label for the state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Config holds scheduler timing knobs.
type Config struct {
	Interval        time.Duration
	EnforceTimeout  time.Duration
	NeutralBehavior float64
	StatsEveryTicks int
}

// Scheduler owns the polling loop. It is the only writer to the ledger's
// expiry path; decisions go through the engine, which serializes its own
// ledger mutations.
type Scheduler struct {
	cfg       Config
	collector *detector.Collector
	engine    *response.Engine
	ledger    *ledger.Ledger
	enforcer  enforce.Adapter
	log       audit.Log
	counters  *audit.Counters
	weights   risk.Weights
	clock     ledger.Clock
	logger    *zap.Logger

	state atomic.Int32
	ticks atomic.Int64
}

// New creates a Scheduler. clock may be nil, in which case time.Now is used.
func New(
	cfg Config,
	collector *detector.Collector,
	engine *response.Engine,
	l *ledger.Ledger,
	enforcer enforce.Adapter,
	log audit.Log,
	counters *audit.Counters,
	weights risk.Weights,
	clock ledger.Clock,
	logger *zap.Logger,
) *Scheduler {
	if cfg.Interval == 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.EnforceTimeout == 0 {
		cfg.EnforceTimeout = 10 * time.Second
	}
	if cfg.StatsEveryTicks == 0 {
		cfg.StatsEveryTicks = 10
	}
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{
		cfg:       cfg,
		collector: collector,
		engine:    engine,
		ledger:    l,
		enforcer:  enforcer,
		log:       log,
		counters:  counters,
		weights:   weights,
		clock:     clock,
		logger:    logger,
	}
}

// State returns the scheduler's current lifecycle phase.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Run executes the polling loop until ctx is cancelled. Cancellation is
// observed between ticks; an in-flight tick always finishes.
func (s *Scheduler) Run(ctx context.Context) {
	s.state.Store(int32(StateRunning))
	s.logger.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Float64("neutral_behavior", s.cfg.NeutralBehavior),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.state.Store(int32(StateShuttingDown))
			s.logger.Info("scheduler shutting down")
			s.state.Store(int32(StateStopped))
			return
		default:
		}

		s.Tick(ctx)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			s.state.Store(int32(StateShuttingDown))
			s.logger.Info("scheduler shutting down")
			s.state.Store(int32(StateStopped))
			return
		}
	}
}

// Tick runs one monitoring cycle: expiry sweep first, then evaluation, so a
// just-expired subject is eligible for a fresh block in the same cycle.
func (s *Scheduler) Tick(ctx context.Context) {
	start := s.clock()
	n := s.ticks.Add(1)
	s.counters.IncTicks()
	s.logger.Debug("tick started", zap.Int64("tick", n))

	s.sweepExpired(ctx)

	readings := s.collector.Collect(ctx, s.counters.IncDetectorFailures)
	for _, r := range readings {
		behavior := r.Behavior
		if !r.BehaviorOK {
			behavior = s.cfg.NeutralBehavior
		}
		fused := risk.Fuse(r.Subject, r.Network, behavior, s.weights, s.clock())

		action, err := s.engine.Decide(ctx, fused)
		if err != nil {
			s.logger.Error("audit append failed",
				zap.String("subject", r.Subject),
				zap.Error(err),
			)
			continue
		}
		s.logger.Debug("subject evaluated",
			zap.String("subject", r.Subject),
			zap.Float64("final_score", fused.FinalScore),
			zap.String("action", string(action)),
		)
	}

	metrics.SetActiveBlocks(len(s.ledger.Active()))
	metrics.ObserveTick(s.clock().Sub(start).Seconds())

	if n%int64(s.cfg.StatsEveryTicks) == 0 {
		snap := s.counters.Snapshot(s.clock())
		s.logger.Info("agent statistics",
			zap.Int64("ticks", snap.TotalTicks),
			zap.Int64("blocks", snap.TotalBlocks),
			zap.Int64("unblocks", snap.TotalUnblocks),
			zap.Int64("alerts", snap.TotalAlerts),
			zap.Int64("rate_limits", snap.TotalRateLimits),
			zap.Int("currently_blocked", len(s.ledger.Active())),
		)
	}
}

// sweepExpired removes every due block and reverses it at the boundary.
// An Unblock failure leaves the record logically released; the discrepancy
// is surfaced through counters and the audit trail, not retried.
func (s *Scheduler) sweepExpired(ctx context.Context) {
	due := s.ledger.ExpireDue(s.clock())
	for _, rec := range due {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.EnforceTimeout)
		err := s.enforcer.Unblock(callCtx, rec.Subject)
		cancel()

		if err != nil {
			metrics.RecordEnforcementFailure("unblock")
			s.counters.IncUnblockFailures()
			s.logger.Error("enforcement unblock failed, record released anyway",
				zap.String("subject", rec.Subject),
				zap.String("rule_handle", rec.RuleHandle),
				zap.Error(err),
			)
		} else {
			s.logger.Info("block expired",
				zap.String("subject", rec.Subject),
				zap.Duration("held_for", rec.ExpiresAt.Sub(rec.BlockedAt)),
			)
		}
		s.counters.IncUnblocks()

		audRec := audit.Record{
			Subject:    rec.Subject,
			FinalScore: rec.RiskAtBlock,
			Action:     "UNBLOCK",
		}
		if err != nil {
			audRec.Error = err.Error()
		}
		if _, aerr := s.log.Append(ctx, audRec); aerr != nil {
			s.logger.Error("audit append failed", zap.String("subject", rec.Subject), zap.Error(aerr))
			continue
		}
		metrics.RecordAuditAppend()
	}
}
