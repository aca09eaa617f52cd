// Package notify delivers operator notifications for decisions the agent
// takes. Delivery failures are always non-fatal to the control loop.
package notify

import (
	"context"
	"time"

	"github.com/sentinelops/sentinel/internal/risk"
)

// Event carries everything an operator needs to understand one decision.
type Event struct {
	Subject       string     `json:"subject"`
	NetworkScore  float64    `json:"network_score"`
	BehaviorScore float64    `json:"behavior_score"`
	FinalScore    float64    `json:"final_score"`
	Level         risk.Level `json:"level"`
	Action        string     `json:"action"`
	At            time.Time  `json:"at"`
}

// Notifier delivers an event over one channel (console, email, webhook).
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}
