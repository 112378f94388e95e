package occupancy

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// applyScript adjusts a counter atomically, clamping at zero. Returns the new
// value and a flag indicating whether the delta was clamped.
var applyScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local next = current + tonumber(ARGV[1])
local clamped = 0
if next < 0 then
    next = 0
    clamped = 1
end
redis.call('SET', KEYS[1], next)
return {next, clamped}
`)

// RedisTracker persists counters in Redis so they survive restarts and are
// shared across server instances.
type RedisTracker struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisTracker wraps the given client.
func NewRedisTracker(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisTracker {
	if keyPrefix == "" {
		keyPrefix = "occupancy"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisTracker{client: client, keyPrefix: keyPrefix, logger: logger}
}

func (t *RedisTracker) key(targetID string) string {
	return fmt.Sprintf("%s:%s", t.keyPrefix, targetID)
}

// Get returns the current count for the target.
func (t *RedisTracker) Get(ctx context.Context, targetID string) (int, error) {
	val, err := t.client.Get(ctx, t.key(targetID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

// Apply atomically adjusts the count, clamping at zero.
func (t *RedisTracker) Apply(ctx context.Context, targetID string, delta int) (int, error) {
	res, err := applyScript.Run(ctx, t.client, []string{t.key(targetID)}, delta).Int64Slice()
	if err != nil {
		return 0, err
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("unexpected script reply length %d", len(res))
	}
	if res[1] == 1 {
		t.logger.Warn("occupancy underflow clamped",
			zap.String("target_id", targetID),
			zap.Int("delta", delta))
	}
	return int(res[0]), nil
}
