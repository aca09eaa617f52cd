// Package ledger tracks currently-active network blocks per subject.
//
// The ledger is the single owner of block state: duplicate-block prevention,
// timeout-based expiry and manual release all go through it, and every
// mutation is serialized behind one mutex. Exactly one BlockRecord may be
// active per subject at any instant.
package ledger

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrAlreadyActive is returned by Create when the subject already has an
	// active block. Callers treat it as a benign race outcome, not a failure.
	ErrAlreadyActive = errors.New("block already active for subject")

	// ErrNotActive is returned by Release when the subject has no active block.
	ErrNotActive = errors.New("no active block for subject")
)

// BlockRecord describes one active mitigation.
type BlockRecord struct {
	Subject     string    `json:"subject"`
	BlockedAt   time.Time `json:"blocked_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	RiskAtBlock float64   `json:"risk_at_block"`

	// RuleHandle is the opaque reference returned by the enforcement
	// adapter, used to reverse the block precisely.
	RuleHandle string `json:"rule_handle"`
}

// Clock abstracts time.Now so expiry can be tested without wall-clock sleeps.
type Clock func() time.Time

// Ledger is an in-memory, mutex-serialized block ledger. State does not
// survive a process restart.
type Ledger struct {
	mu      sync.Mutex
	records map[string]BlockRecord
	clock   Clock
}

// New creates an empty Ledger. clock may be nil, in which case time.Now is used.
func New(clock Clock) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{
		records: make(map[string]BlockRecord),
		clock:   clock,
	}
}

// IsActive reports whether the subject has a block whose expiry is still in
// the future.
func (l *Ledger) IsActive(subject string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[subject]
	return ok && l.clock().Before(rec.ExpiresAt)
}

// Create inserts a new block record with expiry fixed at now+timeout.
// It fails with ErrAlreadyActive if the subject already has an active record;
// a record past its expiry that has not yet been swept does not count.
func (l *Ledger) Create(subject string, riskAtBlock float64, timeout time.Duration) (BlockRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if rec, ok := l.records[subject]; ok && now.Before(rec.ExpiresAt) {
		return BlockRecord{}, ErrAlreadyActive
	}

	rec := BlockRecord{
		Subject:     subject,
		BlockedAt:   now,
		ExpiresAt:   now.Add(timeout),
		RiskAtBlock: riskAtBlock,
	}
	l.records[subject] = rec
	return rec, nil
}

// SetRuleHandle stores the enforcement rule handle on an existing record.
// Missing records are ignored; the record may have been rolled back already.
func (l *Ledger) SetRuleHandle(subject, handle string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[subject]; ok {
		rec.RuleHandle = handle
		l.records[subject] = rec
	}
}

// Remove deletes a record unconditionally. It exists for the rollback path
// after a failed enforcement call; normal removal goes through ExpireDue or
// Release.
func (l *Ledger) Remove(subject string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, subject)
}

// ExpireDue removes and returns every record whose expiry is at or before
// now. This is the only time-based removal path.
func (l *Ledger) ExpireDue(now time.Time) []BlockRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var due []BlockRecord
	for subject, rec := range l.records {
		if !rec.ExpiresAt.After(now) {
			due = append(due, rec)
			delete(l.records, subject)
		}
	}
	return due
}

// Release removes a subject's block immediately, regardless of expiry.
// It fails with ErrNotActive if no record exists.
func (l *Ledger) Release(subject string) (BlockRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[subject]
	if !ok {
		return BlockRecord{}, ErrNotActive
	}
	delete(l.records, subject)
	return rec, nil
}

// Active returns a snapshot of all records that have not yet expired,
// for inspection by the admin API.
func (l *Ledger) Active() []BlockRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	out := make([]BlockRecord, 0, len(l.records))
	for _, rec := range l.records {
		if now.Before(rec.ExpiresAt) {
			out = append(out, rec)
		}
	}
	return out
}

// Len returns the number of tracked records, expired-but-unswept included.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
