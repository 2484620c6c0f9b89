package adapter

import "context"

// QuotaTracker enforces a per-key request ceiling over a fixed window.
// Admit must check and increment atomically for concurrent callers
// sharing a key. A rejected call does not change the count.
type QuotaTracker interface {
	Admit(ctx context.Context, key string, ceiling int) (bool, error)
}
