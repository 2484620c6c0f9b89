package redis

import (
	"context"
	"fmt"
	"time"

	"neunovapdf-backend/internal/domain/ports/adapter"

	"github.com/go-redis/redis/v8"
)

var _ adapter.QuotaTracker = (*QuotaTracker)(nil)

// QuotaTracker shares fixed-window counters between processes. Each key
// carries its own TTL, so Redis evicts idle clients without a sweeper.
type QuotaTracker struct {
	client *Client
	prefix string
	window time.Duration
}

func NewQuotaTracker(client *Client, window time.Duration) *QuotaTracker {
	return &QuotaTracker{client: client, prefix: "quota:", window: window}
}

// Check-and-increment in one script so concurrent requests for a key
// cannot over-admit. A rejected call leaves the counter untouched.
var luaAdmit = redis.NewScript(`
local c = tonumber(redis.call("GET", KEYS[1]) or "0")
if c >= tonumber(ARGV[1]) then
	return 0
end
c = redis.call("INCR", KEYS[1])
if c == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 1`)

func (q *QuotaTracker) Admit(ctx context.Context, key string, ceiling int) (bool, error) {
	res, err := luaAdmit.Run(ctx, q.client.cli, []string{q.prefix + key}, ceiling, q.window.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("quota admit: %w", err)
	}
	return res == 1, nil
}
