// Package risk combines independently produced risk scores for a monitored
// subject into a single fused score and a discrete response level.
// Fusion is a pure function: the same inputs always produce the same output,
// and nothing is cached across polling cycles.
package risk

import (
	"fmt"
	"time"
)

// Level is the discrete threat category derived from a fused score.
type Level int

const (
	// LevelLog: passive logging only.
	LevelLog Level = iota
	// LevelAlert: notify operators.
	LevelAlert
	// LevelRateLimit: notify with a rate-limit marker; repeats while the
	// condition persists.
	LevelRateLimit
	// LevelBlock: install a temporary network-level block.
	LevelBlock
)

// String returns the canonical upper-case label for the level.
func (l Level) String() string {
	switch l {
	case LevelBlock:
		return "BLOCK"
	case LevelRateLimit:
		return "RATE_LIMIT"
	case LevelAlert:
		return "ALERT"
	default:
		return "LOG"
	}
}

// MarshalJSON serializes the level as its label, not the underlying int.
func (l Level) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// UnmarshalJSON parses a level label produced by MarshalJSON.
func (l *Level) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"BLOCK"`:
		*l = LevelBlock
	case `"RATE_LIMIT"`:
		*l = LevelRateLimit
	case `"ALERT"`:
		*l = LevelAlert
	case `"LOG"`:
		*l = LevelLog
	default:
		return fmt.Errorf("unknown risk level %s", data)
	}
	return nil
}

// Sample is one raw risk reading from a detector. Samples are ephemeral and
// never retained past the tick that produced them.
type Sample struct {
	Subject   string    `json:"subject"`
	Source    string    `json:"source"` // "network" or "behavior"
	Score     float64   `json:"score"`
	SampledAt time.Time `json:"sampled_at"`
}

// Fused is the result of combining a subject's network and behavior scores.
type Fused struct {
	Subject       string    `json:"subject"`
	NetworkScore  float64   `json:"network_score"`
	BehaviorScore float64   `json:"behavior_score"`
	FinalScore    float64   `json:"final_score"`
	Level         Level     `json:"level"`
	ComputedAt    time.Time `json:"computed_at"`
}

// Weights holds the fusion weight and the level thresholds.
type Weights struct {
	// Alpha is the relative trust given to the network score; the behavior
	// score receives 1-Alpha.
	Alpha float64

	// Thresholds are the lower bounds of ALERT, RATE_LIMIT and BLOCK, in
	// ascending order. A final score equal to a threshold belongs to the
	// higher bracket.
	Medium   float64
	High     float64
	Critical float64
}

// DefaultWeights mirrors the stock configuration: α=0.6 with the 0.4/0.6/0.8
// threshold ladder.
func DefaultWeights() Weights {
	return Weights{Alpha: 0.6, Medium: 0.4, High: 0.6, Critical: 0.8}
}

// Fuse combines a network and behavior score into a Fused result.
// Out-of-range inputs are clamped to [0,1] rather than rejected so that a
// misbehaving detector cannot crash the control loop.
func Fuse(subject string, network, behavior float64, w Weights, now time.Time) Fused {
	network = clamp(network)
	behavior = clamp(behavior)

	final := clamp(w.Alpha*network + (1-w.Alpha)*behavior)

	return Fused{
		Subject:       subject,
		NetworkScore:  network,
		BehaviorScore: behavior,
		FinalScore:    final,
		Level:         w.LevelFor(final),
		ComputedAt:    now,
	}
}

// LevelFor maps a fused score to its level. The mapping is total and
// monotonic: a higher score never produces a lower level.
func (w Weights) LevelFor(score float64) Level {
	switch {
	case score >= w.Critical:
		return LevelBlock
	case score >= w.High:
		return LevelRateLimit
	case score >= w.Medium:
		return LevelAlert
	default:
		return LevelLog
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
