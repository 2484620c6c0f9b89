package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"neunovapdf-backend/internal/domain/ports/adapter"
	"neunovapdf-backend/internal/infra/metrics"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

var _ adapter.QuotaTracker = (*MemoryTracker)(nil)

type record struct {
	count   int
	resetAt time.Time
}

// MemoryTracker is a process-local fixed-window counter. Memory is bounded
// by capacity: when full, the least recently used key is dropped, which
// resets that client's count. Expired records are dropped lazily on access
// and in bulk by Sweep.
type MemoryTracker struct {
	mu      sync.Mutex
	records *simplelru.LRU[string, *record]
	window  time.Duration
	now     func() time.Time
}

func NewMemoryTracker(window time.Duration, capacity int) (*MemoryTracker, error) {
	t := &MemoryTracker{window: window, now: time.Now}
	lru, err := simplelru.NewLRU[string, *record](capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("quota tracker: %w", err)
	}
	t.records = lru
	return t, nil
}

// Admit starts a new window when none exists or the old one has expired,
// then admits and increments while count < ceiling.
func (t *MemoryTracker) Admit(_ context.Context, key string, ceiling int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	rec, ok := t.records.Get(key)
	if !ok || !rec.resetAt.After(now) {
		rec = &record{resetAt: now.Add(t.window)}
		if evicted := t.records.Add(key, rec); evicted {
			metrics.AddQuotaEvictions("capacity", 1)
		}
		metrics.SetQuotaKeys(t.records.Len())
	}
	if rec.count >= ceiling {
		return false, nil
	}
	rec.count++
	return true, nil
}

// Sweep drops every expired record and returns how many were dropped.
func (t *MemoryTracker) Sweep(context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for _, k := range t.records.Keys() {
		rec, ok := t.records.Peek(k)
		if ok && !rec.resetAt.After(now) {
			t.records.Remove(k)
			removed++
		}
	}
	metrics.AddQuotaEvictions("expired", removed)
	metrics.SetQuotaKeys(t.records.Len())
	return removed, nil
}

// Len reports the number of tracked keys.
func (t *MemoryTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.records.Len()
}
