// Package enforce defines the adapter through which blocks are installed at
// the real network boundary, plus the bundled implementations: an HTTP client
// for a firewall controller and a zap-backed noop for development.
package enforce

import "context"

// Adapter executes and reverses subject blocks against the network boundary.
// The decision engine never issues a second Block for an already-blocked
// subject, so implementations need not deduplicate.
type Adapter interface {
	// Block installs a deny rule for the subject and returns an opaque
	// rule handle used to reverse it.
	Block(ctx context.Context, subject string) (handle string, err error)

	// Unblock removes the subject's deny rule.
	Unblock(ctx context.Context, subject string) error
}
