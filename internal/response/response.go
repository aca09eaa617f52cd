// Package response maps a fused risk level onto a concrete mitigation action,
// consulting and updating the block ledger. The engine itself is stateless;
// everything it needs arrives as dependencies.
package response

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelops/sentinel/internal/audit"
	"github.com/sentinelops/sentinel/internal/enforce"
	"github.com/sentinelops/sentinel/internal/ledger"
	"github.com/sentinelops/sentinel/internal/metrics"
	"github.com/sentinelops/sentinel/internal/notify"
	"github.com/sentinelops/sentinel/internal/risk"
)

// Action is the mitigation the engine decided on.
type Action string

const (
	ActionLog        Action = "LOG"
	ActionAlert      Action = "ALERT"
	ActionRateLimit  Action = "RATE_LIMIT"
	ActionBlock      Action = "BLOCK"
	ActionSuppressed Action = "SUPPRESSED"
	ActionRelease    Action = "RELEASE"
)

// Engine decides and executes the response to one fused risk result.
type Engine struct {
	ledger       *ledger.Ledger
	enforcement  enforce.Adapter
	notifier     notify.Notifier
	log          audit.Log
	counters     *audit.Counters
	blockTimeout time.Duration
	logger       *zap.Logger
}

// New creates an Engine. blockTimeout is the fixed lifetime of new blocks.
func New(
	l *ledger.Ledger,
	adapter enforce.Adapter,
	notifier notify.Notifier,
	log audit.Log,
	counters *audit.Counters,
	blockTimeout time.Duration,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		ledger:       l,
		enforcement:  adapter,
		notifier:     notifier,
		log:          log,
		counters:     counters,
		blockTimeout: blockTimeout,
		logger:       logger,
	}
}

// Decide runs the response algorithm for one subject's fused risk.
// Every call produces exactly one audit record; the returned error is only
// ever an audit-append failure, since all decision-path errors are contained
// and annotated on the record instead.
func (e *Engine) Decide(ctx context.Context, fused risk.Fused) (Action, error) {
	action, decisionErr := e.act(ctx, fused)

	rec := audit.Record{
		Timestamp:     fused.ComputedAt,
		Subject:       fused.Subject,
		NetworkScore:  fused.NetworkScore,
		BehaviorScore: fused.BehaviorScore,
		FinalScore:    fused.FinalScore,
		Level:         fused.Level,
		Action:        string(action),
	}
	if decisionErr != nil {
		rec.Error = decisionErr.Error()
	}
	if _, err := e.log.Append(ctx, rec); err != nil {
		return action, err
	}
	metrics.RecordAuditAppend()
	metrics.RecordDecision(string(action))
	return action, nil
}

// act executes the level-to-action mapping and returns the action taken plus
// any contained error for audit annotation.
func (e *Engine) act(ctx context.Context, fused risk.Fused) (Action, error) {
	// An active block suppresses re-evaluation until expiry.
	if e.ledger.IsActive(fused.Subject) {
		e.counters.IncSuppressed()
		return ActionSuppressed, nil
	}

	switch fused.Level {
	case risk.LevelBlock:
		return e.block(ctx, fused)

	case risk.LevelRateLimit:
		e.counters.IncRateLimits()
		err := e.sendNotification(ctx, fused, ActionRateLimit)
		return ActionRateLimit, err

	case risk.LevelAlert:
		e.counters.IncAlerts()
		err := e.sendNotification(ctx, fused, ActionAlert)
		return ActionAlert, err

	default:
		e.logger.Info("low risk logged",
			zap.String("subject", fused.Subject),
			zap.Float64("final_score", fused.FinalScore),
			zap.Float64("network_score", fused.NetworkScore),
			zap.Float64("behavior_score", fused.BehaviorScore),
		)
		return ActionLog, nil
	}
}

// block creates the ledger record first, then enforces. A failed enforcement
// call rolls the record back and downgrades to ALERT so the ledger never
// holds a block with no real effect.
func (e *Engine) block(ctx context.Context, fused risk.Fused) (Action, error) {
	rec, err := e.ledger.Create(fused.Subject, fused.FinalScore, e.blockTimeout)
	if err != nil {
		if errors.Is(err, ledger.ErrAlreadyActive) {
			// Race with a concurrent evaluation; benign.
			e.counters.IncSuppressed()
			return ActionSuppressed, nil
		}
		return ActionAlert, err
	}

	handle, err := e.enforcement.Block(ctx, fused.Subject)
	if err != nil {
		e.ledger.Remove(fused.Subject)
		metrics.RecordEnforcementFailure("block")
		e.logger.Error("enforcement block failed, downgrading to alert",
			zap.String("subject", fused.Subject),
			zap.Error(err),
		)
		e.counters.IncAlerts()
		if nerr := e.sendNotification(ctx, fused, ActionAlert); nerr != nil {
			return ActionAlert, errors.Join(err, nerr)
		}
		return ActionAlert, err
	}

	e.ledger.SetRuleHandle(fused.Subject, handle)
	e.counters.IncBlocks()
	metrics.SetActiveBlocks(len(e.ledger.Active()))
	e.logger.Warn("subject blocked",
		zap.String("subject", fused.Subject),
		zap.Float64("risk", fused.FinalScore),
		zap.String("rule_handle", handle),
		zap.Time("expires_at", rec.ExpiresAt),
	)

	// Notification failures never undo a successful block.
	nerr := e.sendNotification(ctx, fused, ActionBlock)
	return ActionBlock, nerr
}

// Release removes a subject's block immediately, ahead of its expiry.
// The ledger entry is removed even when the enforcement call fails; the
// discrepancy is logged, counted and annotated on the audit record.
func (e *Engine) Release(ctx context.Context, subject string) (ledger.BlockRecord, error) {
	rec, err := e.ledger.Release(subject)
	if err != nil {
		return ledger.BlockRecord{}, err
	}

	var unblockErr error
	if unblockErr = e.enforcement.Unblock(ctx, subject); unblockErr != nil {
		metrics.RecordEnforcementFailure("unblock")
		e.counters.IncUnblockFailures()
		e.logger.Error("enforcement unblock failed on manual release",
			zap.String("subject", subject),
			zap.Error(unblockErr),
		)
	}
	e.counters.IncUnblocks()
	metrics.SetActiveBlocks(len(e.ledger.Active()))

	audRec := audit.Record{
		Subject:    subject,
		FinalScore: rec.RiskAtBlock,
		Action:     string(ActionRelease),
	}
	if unblockErr != nil {
		audRec.Error = unblockErr.Error()
	}
	if _, err := e.log.Append(ctx, audRec); err != nil {
		return rec, err
	}
	metrics.RecordAuditAppend()
	return rec, nil
}

// sendNotification delivers the event and contains any failure: logged,
// counted, and returned only for audit annotation.
func (e *Engine) sendNotification(ctx context.Context, fused risk.Fused, action Action) error {
	ev := notify.Event{
		Subject:       fused.Subject,
		NetworkScore:  fused.NetworkScore,
		BehaviorScore: fused.BehaviorScore,
		FinalScore:    fused.FinalScore,
		Level:         fused.Level,
		Action:        string(action),
		At:            fused.ComputedAt,
	}
	if err := e.notifier.Notify(ctx, ev); err != nil {
		metrics.RecordNotifierFailure()
		e.logger.Warn("notification failed",
			zap.String("subject", fused.Subject),
			zap.String("action", string(action)),
			zap.Error(err),
		)
		return err
	}
	return nil
}
