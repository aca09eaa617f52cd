package enforce

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NoopAdapter logs block and unblock calls instead of touching a firewall.
// Use in development or dry-run deployments.
type NoopAdapter struct {
	logger *zap.Logger
}

// NewNoopAdapter creates a NoopAdapter backed by the given logger.
func NewNoopAdapter(logger *zap.Logger) *NoopAdapter {
	return &NoopAdapter{logger: logger}
}

// Block logs the call and returns a generated handle.
func (n *NoopAdapter) Block(_ context.Context, subject string) (string, error) {
	handle := "noop-" + uuid.NewString()
	n.logger.Info("block (noop, not enforced)",
		zap.String("subject", subject),
		zap.String("handle", handle),
	)
	return handle, nil
}

// Unblock logs the call and returns nil.
func (n *NoopAdapter) Unblock(_ context.Context, subject string) error {
	n.logger.Info("unblock (noop, not enforced)", zap.String("subject", subject))
	return nil
}
