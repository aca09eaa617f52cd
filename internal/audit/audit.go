// Package audit keeps the append-only record of every decision and ledger
// transition the agent makes, plus the running operational counters.
//
// Records are hash-chained from a well-known genesis entry so the trail can
// be verified after the fact. Two implementations of the Log interface are
// provided:
//   - MemoryLog: in-process, for development and tests.
//   - PostgresLog: durable, for production inspection.
package audit

import "context"

// Log is the append-only decision trail.
type Log interface {
	// Append chains a new record onto the log. Index, PrevHash and Hash are
	// assigned by the implementation; the caller fills the decision fields.
	Append(ctx context.Context, rec Record) (*Record, error)

	// Tail returns up to limit of the most recent records, oldest first.
	Tail(ctx context.Context, limit int) ([]Record, error)

	// Len returns the number of records, genesis included.
	Len(ctx context.Context) (int, error)

	// Verify walks the chain and checks hash consistency.
	Verify(ctx context.Context) error

	// Root returns the hash of the most recent record.
	Root(ctx context.Context) (string, error)
}
