package engine

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/mailblast/internal/pkg/logger"
)

// throttle caps a campaign's send rate with a Redis token bucket so the limit
// holds across all of the campaign's workers (and across replicas sharing the
// Redis). A nil client or zero rate disables it.
type throttle struct {
	rdb  *redis.Client
	key  string
	rate int
}

func newThrottle(rdb *redis.Client, campaignID string, ratePerMinute int) *throttle {
	return &throttle{rdb: rdb, key: "throttle:campaign:" + campaignID, rate: ratePerMinute}
}

var throttleScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local now = tonumber(ARGV[2])

	local bucket = redis.call('get', key)
	if not bucket then
		bucket = '{"tokens":' .. rate .. ',"last":' .. now .. '}'
	end

	local data = cjson.decode(bucket)
	local elapsed = now - data.last
	local tokens = math.min(rate, data.tokens + elapsed * (rate / 60))

	if tokens >= 1 then
		tokens = tokens - 1
		redis.call('setex', key, 120, cjson.encode({tokens=tokens, last=now}))
		return 1
	else
		return 0
	end
`)

// wait blocks until a send token is available or ctx is cancelled. Redis
// errors fail open: throttling is a courtesy, not a correctness guarantee.
func (t *throttle) wait(ctx context.Context) error {
	if t == nil || t.rdb == nil || t.rate <= 0 {
		return nil
	}

	for {
		allowed, err := throttleScript.Run(ctx, t.rdb, []string{t.key}, t.rate, time.Now().Unix()).Int()
		if err != nil {
			logger.Warn("throttle check failed, sending unthrottled", "error", err)
			return nil
		}
		if allowed == 1 {
			return nil
		}

		retryIn := time.Duration(60000/t.rate) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryIn):
		}
	}
}
