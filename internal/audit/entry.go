package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sentinelops/sentinel/internal/risk"
)

// GenesisHash is the well-known hash of the genesis record. Every chain
// starts from this constant, so any tampering after the fact is detectable
// via Verify.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Record is one structured audit entry: exactly one is written per
// tick-subject decision, and one per ledger transition outside the decision
// path (expiry sweep, manual release).
type Record struct {
	Index         int        `json:"index"`
	Timestamp     time.Time  `json:"timestamp"`
	Subject       string     `json:"subject"`
	NetworkScore  float64    `json:"network_score"`
	BehaviorScore float64    `json:"behavior_score"`
	FinalScore    float64    `json:"final_score"`
	Level         risk.Level `json:"level"`
	Action        string     `json:"action"`
	Error         string     `json:"error,omitempty"`
	PrevHash      string     `json:"prev_hash"`
	Hash          string     `json:"hash"`
}

// hashRecord computes a deterministic SHA-256 hash over a record's fields.
// Never called on the genesis record (index 0).
func hashRecord(r *Record) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%.6f|%.6f|%.6f|%s|%s|%s|%s",
		r.Index, r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.Subject, r.NetworkScore, r.BehaviorScore, r.FinalScore,
		r.Level, r.Action, r.Error, r.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}
