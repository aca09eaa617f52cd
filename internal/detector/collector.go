package detector

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelops/sentinel/internal/metrics"
)

// errNoBehaviorDetector marks the absence of a configured behavior provider.
var errNoBehaviorDetector = errors.New("no behavior detector configured")

// Reading is one subject's samples for a single tick. BehaviorOK is false
// when the behavior detector had nothing for the subject; the scheduler
// substitutes the configured neutral score.
type Reading struct {
	Subject    string
	Network    float64
	Behavior   float64
	BehaviorOK bool
}

// Collector gathers readings from both detectors with bounded per-call
// timeouts and bounded concurrency. A failing call yields no reading (or no
// behavior component) for that subject only; the rest of the tick proceeds.
type Collector struct {
	network     NetworkProvider
	behavior    BehaviorProvider
	callTimeout time.Duration
	maxParallel int
	logger      *zap.Logger
}

// NewCollector creates a Collector. callTimeout bounds each provider call
// (zero means 5s); concurrency is capped at 10 subjects in flight.
func NewCollector(network NetworkProvider, behavior BehaviorProvider, callTimeout time.Duration, logger *zap.Logger) *Collector {
	if callTimeout == 0 {
		callTimeout = 5 * time.Second
	}
	return &Collector{
		network:     network,
		behavior:    behavior,
		callTimeout: callTimeout,
		maxParallel: 10,
		logger:      logger,
	}
}

// Collect returns one Reading per subject that produced a network sample
// this tick. onFailure, if non-nil, is invoked once per failed detector call.
func (c *Collector) Collect(ctx context.Context, onFailure func()) []Reading {
	subjCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	subjects, err := c.network.Subjects(subjCtx)
	cancel()
	if err != nil {
		c.logger.Warn("network detector: list subjects", zap.Error(err))
		metrics.RecordDetectorFailure("network")
		if onFailure != nil {
			onFailure()
		}
		return nil
	}

	sem := make(chan struct{}, c.maxParallel)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var readings []Reading

	for _, subject := range subjects {
		wg.Add(1)
		go func(subject string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			reading, ok := c.collectOne(ctx, subject, onFailure)
			if !ok {
				return
			}
			mu.Lock()
			readings = append(readings, reading)
			mu.Unlock()
		}(subject)
	}
	wg.Wait()

	return readings
}

// collectOne fetches the two scores for one subject in parallel.
func (c *Collector) collectOne(ctx context.Context, subject string, onFailure func()) (Reading, bool) {
	var wg sync.WaitGroup
	var netScore, behScore float64
	var netErr, behErr error

	behErr = errNoBehaviorDetector

	wg.Add(1)
	go func() {
		defer wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
		netScore, netErr = c.network.Sample(callCtx, subject)
	}()
	if c.behavior != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
			defer cancel()
			behScore, behErr = c.behavior.Sample(callCtx, subject)
		}()
	}
	wg.Wait()

	if netErr != nil {
		// No network sample means the subject is skipped this tick.
		c.logger.Warn("network detector: sample failed",
			zap.String("subject", subject),
			zap.Error(netErr),
		)
		metrics.RecordDetectorFailure("network")
		if onFailure != nil {
			onFailure()
		}
		return Reading{}, false
	}

	reading := Reading{Subject: subject, Network: netScore}
	switch {
	case behErr == errNoBehaviorDetector:
		// Not configured; the scheduler substitutes the neutral score.
	case behErr != nil:
		c.logger.Debug("behavior detector: no sample, using neutral",
			zap.String("subject", subject),
			zap.Error(behErr),
		)
		metrics.RecordDetectorFailure("behavior")
	default:
		reading.Behavior = behScore
		reading.BehaviorOK = true
	}
	return reading, true
}
