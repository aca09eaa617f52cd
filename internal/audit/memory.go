package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLog is an in-memory, thread-safe Log implementation.
type MemoryLog struct {
	mu      sync.RWMutex
	records []*Record
}

// NewMemoryLog creates a MemoryLog initialised with the canonical genesis
// record at index 0.
func NewMemoryLog() *MemoryLog {
	l := &MemoryLog{}
	genesis := &Record{
		Index:     0,
		Timestamp: time.Now().UTC(),
		Action:    "genesis",
		PrevHash:  GenesisHash,
		Hash:      GenesisHash, // genesis hash is the well-known constant, not computed
	}
	l.records = append(l.records, genesis)
	return l
}

// Append implements Log.
func (l *MemoryLog) Append(_ context.Context, rec Record) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.records[len(l.records)-1]
	rec.Index = len(l.records)
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.PrevHash = prev.Hash
	rec.Hash = hashRecord(&rec)

	l.records = append(l.records, &rec)
	return &rec, nil
}

// Tail implements Log.
func (l *MemoryLog) Tail(_ context.Context, limit int) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := len(l.records) - limit
	if limit <= 0 || start < 0 {
		start = 0
	}
	out := make([]Record, 0, len(l.records)-start)
	for _, r := range l.records[start:] {
		out = append(out, *r)
	}
	return out, nil
}

// Len implements Log.
func (l *MemoryLog) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records), nil
}

// Verify implements Log. It walks the chain and checks that all hashes are
// consistent. The genesis record is validated against GenesisHash.
func (l *MemoryLog) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i, curr := range l.records {
		if i == 0 {
			if curr.Hash != GenesisHash {
				return fmt.Errorf("genesis record has wrong hash: got %q", curr.Hash)
			}
			continue
		}
		prev := l.records[i-1]
		if curr.PrevHash != prev.Hash {
			return fmt.Errorf("hash chain broken at index %d", curr.Index)
		}
		if curr.Hash != hashRecord(curr) {
			return fmt.Errorf("record %d has invalid hash", curr.Index)
		}
	}
	return nil
}

// Root implements Log.
func (l *MemoryLog) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.records[len(l.records)-1].Hash, nil
}
