// Package detector defines the surfaces through which the agent consumes
// risk signals, and the collector that gathers them in parallel each tick.
//
// Detector internals (traffic metrics, log parsing, model scoring) live
// behind these interfaces; the agent only ever sees subjects and scores.
package detector

import "context"

// NetworkProvider scores subjects from network traffic signals. It also
// enumerates the subjects it currently has signal for; that enumeration
// drives the per-tick subject set.
type NetworkProvider interface {
	Subjects(ctx context.Context) ([]string, error)
	Sample(ctx context.Context, subject string) (float64, error)
}

// BehaviorProvider scores subjects from behavioral/audit-log signals.
// A subject unknown to the provider should return an error; the scheduler
// substitutes the configured neutral score.
type BehaviorProvider interface {
	Sample(ctx context.Context, subject string) (float64, error)
}
