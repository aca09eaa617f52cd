package notify

import (
	"context"

	"go.uber.org/zap"
)

// ConsoleNotifier writes events to the structured log. It is always wired in,
// so every notification is visible even when email and webhooks are off.
type ConsoleNotifier struct {
	logger *zap.Logger
}

// NewConsoleNotifier creates a ConsoleNotifier backed by the given logger.
func NewConsoleNotifier(logger *zap.Logger) *ConsoleNotifier {
	return &ConsoleNotifier{logger: logger}
}

// Notify logs the event at warn level and returns nil.
func (c *ConsoleNotifier) Notify(_ context.Context, ev Event) error {
	c.logger.Warn("security alert",
		zap.String("subject", ev.Subject),
		zap.String("level", ev.Level.String()),
		zap.String("action", ev.Action),
		zap.Float64("final_score", ev.FinalScore),
		zap.Float64("network_score", ev.NetworkScore),
		zap.Float64("behavior_score", ev.BehaviorScore),
	)
	return nil
}
