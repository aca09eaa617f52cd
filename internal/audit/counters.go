package audit

import (
	"sync"
	"time"
)

// Counters tracks running operational totals for the agent. All methods are
// safe for concurrent use, though in practice only the scheduler and the
// admin API touch them.
type Counters struct {
	mu               sync.Mutex
	blocks           int64
	unblocks         int64
	alerts           int64
	rateLimits       int64
	suppressed       int64
	ticks            int64
	detectorFailures int64
	unblockFailures  int64
	startedAt        time.Time
}

// NewCounters creates zeroed counters with uptime measured from now.
func NewCounters(now time.Time) *Counters {
	return &Counters{startedAt: now}
}

func (c *Counters) IncBlocks()           { c.inc(&c.blocks) }
func (c *Counters) IncUnblocks()         { c.inc(&c.unblocks) }
func (c *Counters) IncAlerts()           { c.inc(&c.alerts) }
func (c *Counters) IncRateLimits()       { c.inc(&c.rateLimits) }
func (c *Counters) IncSuppressed()       { c.inc(&c.suppressed) }
func (c *Counters) IncTicks()            { c.inc(&c.ticks) }
func (c *Counters) IncDetectorFailures() { c.inc(&c.detectorFailures) }
func (c *Counters) IncUnblockFailures()  { c.inc(&c.unblockFailures) }

func (c *Counters) inc(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// Snapshot is a point-in-time copy of the counters for the status API.
type Snapshot struct {
	UptimeSeconds    float64 `json:"uptime_seconds"`
	TotalBlocks      int64   `json:"total_blocks"`
	TotalUnblocks    int64   `json:"total_unblocks"`
	TotalAlerts      int64   `json:"total_alerts"`
	TotalRateLimits  int64   `json:"total_rate_limits"`
	TotalSuppressed  int64   `json:"total_suppressed"`
	TotalTicks       int64   `json:"total_ticks"`
	DetectorFailures int64   `json:"detector_failures"`
	UnblockFailures  int64   `json:"unblock_failures"`
}

// Snapshot returns the current totals with uptime relative to now.
func (c *Counters) Snapshot(now time.Time) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		UptimeSeconds:    now.Sub(c.startedAt).Seconds(),
		TotalBlocks:      c.blocks,
		TotalUnblocks:    c.unblocks,
		TotalAlerts:      c.alerts,
		TotalRateLimits:  c.rateLimits,
		TotalSuppressed:  c.suppressed,
		TotalTicks:       c.ticks,
		DetectorFailures: c.detectorFailures,
		UnblockFailures:  c.unblockFailures,
	}
}
