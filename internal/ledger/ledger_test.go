package ledger_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sentinelops/sentinel/internal/ledger"
)

// fakeClock is a settable clock for deterministic expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestCreate_thenIsActive(t *testing.T) {
	clk := newFakeClock(t0)
	l := ledger.New(clk.Now)

	rec, err := l.Create("10.0.0.7", 0.94, 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.ExpiresAt.Equal(t0.Add(10 * time.Minute)) {
		t.Errorf("expiry = %v, want blocked_at + 10m", rec.ExpiresAt)
	}
	if !l.IsActive("10.0.0.7") {
		t.Error("expected subject to be active after Create")
	}
	if l.IsActive("10.0.0.8") {
		t.Error("unrelated subject reported active")
	}
}

func TestCreate_duplicateFails(t *testing.T) {
	clk := newFakeClock(t0)
	l := ledger.New(clk.Now)

	if _, err := l.Create("10.0.0.7", 0.94, 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	_, err := l.Create("10.0.0.7", 0.99, 10*time.Minute)
	if !errors.Is(err, ledger.ErrAlreadyActive) {
		t.Errorf("err = %v, want ErrAlreadyActive", err)
	}
	if n := l.Len(); n != 1 {
		t.Errorf("len = %d, want 1", n)
	}
}

func TestExpireDue_returnsAndRemovesOnlyDue(t *testing.T) {
	clk := newFakeClock(t0)
	l := ledger.New(clk.Now)

	if _, err := l.Create("10.0.0.7", 0.94, 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	clk.Advance(5 * time.Minute)
	if _, err := l.Create("10.0.0.8", 0.88, 10*time.Minute); err != nil {
		t.Fatal(err)
	}

	// Before either expiry: nothing due.
	if due := l.ExpireDue(clk.Now()); len(due) != 0 {
		t.Fatalf("expected nothing due, got %v", due)
	}

	// At exactly T+10m the first record is due (expires_at <= now).
	clk.Advance(5 * time.Minute)
	due := l.ExpireDue(clk.Now())
	if len(due) != 1 || due[0].Subject != "10.0.0.7" {
		t.Fatalf("due = %v, want only 10.0.0.7", due)
	}
	if l.IsActive("10.0.0.7") {
		t.Error("expired subject still active")
	}
	if !l.IsActive("10.0.0.8") {
		t.Error("unexpired subject was swept")
	}

	// A second sweep at the same instant returns nothing.
	if due := l.ExpireDue(clk.Now()); len(due) != 0 {
		t.Errorf("second sweep returned %v, want empty", due)
	}
}

func TestCreate_afterExpiryMakesFreshRecord(t *testing.T) {
	clk := newFakeClock(t0)
	l := ledger.New(clk.Now)

	if _, err := l.Create("10.0.0.7", 0.94, 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	clk.Advance(11 * time.Minute)
	l.ExpireDue(clk.Now())

	rec, err := l.Create("10.0.0.7", 0.91, 10*time.Minute)
	if err != nil {
		t.Fatalf("fresh block after expiry: %v", err)
	}
	if !rec.BlockedAt.Equal(clk.Now()) {
		t.Errorf("new record blocked_at = %v, want %v", rec.BlockedAt, clk.Now())
	}
}

func TestRelease(t *testing.T) {
	clk := newFakeClock(t0)
	l := ledger.New(clk.Now)

	if _, err := l.Release("10.0.0.7"); !errors.Is(err, ledger.ErrNotActive) {
		t.Errorf("release of unknown subject: err = %v, want ErrNotActive", err)
	}

	if _, err := l.Create("10.0.0.7", 0.94, 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	rec, err := l.Release("10.0.0.7")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Subject != "10.0.0.7" {
		t.Errorf("released subject = %q", rec.Subject)
	}
	if l.IsActive("10.0.0.7") {
		t.Error("subject still active after release")
	}
}

func TestSetRuleHandle(t *testing.T) {
	clk := newFakeClock(t0)
	l := ledger.New(clk.Now)

	if _, err := l.Create("10.0.0.7", 0.94, 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	l.SetRuleHandle("10.0.0.7", "fw-rule-42")

	active := l.Active()
	if len(active) != 1 || active[0].RuleHandle != "fw-rule-42" {
		t.Errorf("active = %+v, want rule handle fw-rule-42", active)
	}

	// Setting a handle on a rolled-back record is a no-op.
	l.Remove("10.0.0.7")
	l.SetRuleHandle("10.0.0.7", "fw-rule-43")
	if n := l.Len(); n != 0 {
		t.Errorf("len = %d after remove, want 0", n)
	}
}

func TestLedger_concurrentCreates(t *testing.T) {
	clk := newFakeClock(t0)
	l := ledger.New(clk.Now)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Create("10.0.0.7", 0.9, 10*time.Minute); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("%d concurrent creates succeeded, want exactly 1", created)
	}
	if n := l.Len(); n != 1 {
		t.Errorf("len = %d, want 1", n)
	}
}
