package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/sentinelops/sentinel/internal/audit"
	"github.com/sentinelops/sentinel/internal/risk"
)

var ctx = context.Background()

func TestNewMemoryLog_genesis(t *testing.T) {
	l := audit.NewMemoryLog()

	n, err := l.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 genesis record, got %d", n)
	}

	root, err := l.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if root != audit.GenesisHash {
		t.Errorf("root = %q, want GenesisHash", root)
	}
}

func TestAppend_chainsCorrectly(t *testing.T) {
	l := audit.NewMemoryLog()

	r1, err := l.Append(ctx, audit.Record{
		Subject:      "10.0.0.7",
		NetworkScore: 1.0, BehaviorScore: 0.85, FinalScore: 0.94,
		Level: risk.LevelBlock, Action: "BLOCK",
	})
	if err != nil {
		t.Fatal(err)
	}
	if r1.PrevHash != audit.GenesisHash {
		t.Errorf("first record prev_hash = %q, want GenesisHash", r1.PrevHash)
	}

	r2, err := l.Append(ctx, audit.Record{
		Subject:      "10.0.0.7",
		NetworkScore: 1.0, BehaviorScore: 0.85, FinalScore: 0.94,
		Level: risk.LevelBlock, Action: "SUPPRESSED",
	})
	if err != nil {
		t.Fatal(err)
	}
	if r2.PrevHash != r1.Hash {
		t.Errorf("chain broken: r2.PrevHash=%q, want r1.Hash=%q", r2.PrevHash, r1.Hash)
	}

	if err := l.Verify(ctx); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestTail(t *testing.T) {
	l := audit.NewMemoryLog()
	for i := 0; i < 5; i++ {
		if _, err := l.Append(ctx, audit.Record{Subject: "10.0.0.7", Action: "LOG"}); err != nil {
			t.Fatal(err)
		}
	}

	tail, err := l.Tail(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 3 {
		t.Fatalf("tail length = %d, want 3", len(tail))
	}
	if tail[0].Index != 3 || tail[2].Index != 5 {
		t.Errorf("tail indexes = %d..%d, want 3..5 oldest first", tail[0].Index, tail[2].Index)
	}

	all, err := l.Tail(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 6 { // genesis + 5
		t.Errorf("full tail length = %d, want 6", len(all))
	}
}

func TestCounters_snapshot(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	c := audit.NewCounters(t0)

	c.IncBlocks()
	c.IncBlocks()
	c.IncUnblocks()
	c.IncAlerts()
	c.IncRateLimits()
	c.IncTicks()

	snap := c.Snapshot(t0.Add(90 * time.Second))
	if snap.TotalBlocks != 2 || snap.TotalUnblocks != 1 || snap.TotalAlerts != 1 ||
		snap.TotalRateLimits != 1 || snap.TotalTicks != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.UptimeSeconds != 90 {
		t.Errorf("uptime = %v, want 90s", snap.UptimeSeconds)
	}
}
