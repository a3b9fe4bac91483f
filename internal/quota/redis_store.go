package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// recordTTL keeps redis keys past the date rollover so late recording for a
// finished day still lands, then lets them expire on their own.
const recordTTL = 48 * time.Hour

// Seed-if-absent followed by the full check-free increment and blocked-flag
// recompute, in one script so the whole sequence is atomic on the server.
var incrScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('HSET', KEYS[1],
    'tier', ARGV[5], 'l1', 0, 'l2', 0, 'tokens', 0, 'cost', 0,
    'lim_l1', ARGV[6], 'lim_l2', ARGV[7], 'lim_tokens', ARGV[8], 'lim_cost', ARGV[9],
    'reset_at', ARGV[10])
end
local l1 = redis.call('HINCRBY', KEYS[1], 'l1', ARGV[1])
local l2 = redis.call('HINCRBY', KEYS[1], 'l2', ARGV[2])
local tok = redis.call('HINCRBY', KEYS[1], 'tokens', ARGV[3])
local cost = redis.call('HINCRBY', KEYS[1], 'cost', ARGV[4])
local lim_l1 = tonumber(redis.call('HGET', KEYS[1], 'lim_l1'))
local lim_l2 = tonumber(redis.call('HGET', KEYS[1], 'lim_l2'))
local lim_cost = tonumber(redis.call('HGET', KEYS[1], 'lim_cost'))
local blocked = 0
local reason = ''
if lim_cost > 0 and cost >= lim_cost then
  blocked = 1
  reason = 'daily_cost_limit'
elseif lim_l1 > 0 and l1 >= lim_l1 and lim_l2 > 0 and l2 >= lim_l2 then
  blocked = 1
  reason = 'request_limits'
end
redis.call('HSET', KEYS[1], 'blocked', blocked, 'blocked_reason', reason)
redis.call('EXPIRE', KEYS[1], ARGV[11])
return {l1, l2, tok, cost, blocked, reason}
`)

var seedScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('HSET', KEYS[1],
    'tier', ARGV[1], 'l1', 0, 'l2', 0, 'tokens', 0, 'cost', 0,
    'lim_l1', ARGV[2], 'lim_l2', ARGV[3], 'lim_tokens', ARGV[4], 'lim_cost', ARGV[5],
    'reset_at', ARGV[6], 'blocked', 0, 'blocked_reason', '')
  redis.call('EXPIRE', KEYS[1], ARGV[7])
end
return redis.call('HMGET', KEYS[1],
  'tier', 'l1', 'l2', 'tokens', 'cost',
  'lim_l1', 'lim_l2', 'lim_tokens', 'lim_cost',
  'blocked', 'blocked_reason', 'reset_at')
`)

// RedisStore keeps day records in redis hashes, with creation, increment,
// and blocked-flag recompute combined into single server-side scripts. Use
// it when multiple router processes share one budget.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(userID, day string) string {
	return fmt.Sprintf("modelgate:usage:%s:%s", userID, day)
}

// GetOrCreate implements Store.
func (s *RedisStore) GetOrCreate(ctx context.Context, seed DayRecord) (DayRecord, error) {
	if s == nil || s.client == nil {
		return DayRecord{}, errors.New("quota: nil redis store")
	}

	reply, errRun := seedScript.Run(ctx, s.client,
		[]string{redisKey(seed.UserID, seed.Day)},
		seed.Tier,
		seed.Limits.Level1, seed.Limits.Level2, seed.Limits.Tokens, seed.Limits.CostMicros,
		seed.ResetAt.UTC().Unix(),
		int(recordTTL.Seconds()),
	).Result()
	if errRun != nil {
		return DayRecord{}, fmt.Errorf("quota: redis seed: %w", errRun)
	}

	fields, ok := reply.([]interface{})
	if !ok || len(fields) < 12 {
		return DayRecord{}, errors.New("quota: unexpected redis reply shape")
	}

	rec := DayRecord{UserID: seed.UserID, Day: seed.Day}
	rec.Tier = replyString(fields[0])
	rec.Level1Count = replyInt(fields[1])
	rec.Level2Count = replyInt(fields[2])
	rec.Tokens = replyInt(fields[3])
	rec.CostMicros = replyInt(fields[4])
	rec.Limits = Limits{
		Level1:     replyInt(fields[5]),
		Level2:     replyInt(fields[6]),
		Tokens:     replyInt(fields[7]),
		CostMicros: replyInt(fields[8]),
	}
	rec.Blocked = replyInt(fields[9]) == 1
	rec.BlockedReason = replyString(fields[10])
	if unix := replyInt(fields[11]); unix > 0 {
		rec.ResetAt = time.Unix(unix, 0).UTC()
	} else {
		rec.ResetAt = seed.ResetAt
	}
	return rec, nil
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, seed DayRecord, delta Delta) (DayRecord, error) {
	if s == nil || s.client == nil {
		return DayRecord{}, errors.New("quota: nil redis store")
	}

	reply, errRun := incrScript.Run(ctx, s.client,
		[]string{redisKey(seed.UserID, seed.Day)},
		delta.Level1, delta.Level2, delta.Tokens, delta.CostMicros,
		seed.Tier,
		seed.Limits.Level1, seed.Limits.Level2, seed.Limits.Tokens, seed.Limits.CostMicros,
		seed.ResetAt.UTC().Unix(),
		int(recordTTL.Seconds()),
	).Result()
	if errRun != nil {
		return DayRecord{}, fmt.Errorf("quota: redis increment: %w", errRun)
	}

	values, ok := reply.([]interface{})
	if !ok || len(values) < 6 {
		return DayRecord{}, errors.New("quota: unexpected redis reply shape")
	}

	rec := seed
	rec.Level1Count = replyInt(values[0])
	rec.Level2Count = replyInt(values[1])
	rec.Tokens = replyInt(values[2])
	rec.CostMicros = replyInt(values[3])
	rec.Blocked = replyInt(values[4]) == 1
	rec.BlockedReason = replyString(values[5])
	return rec, nil
}

// PurgeBefore implements Store. Redis keys carry their own TTL, so there is
// nothing to scan; expiry handles cleanup.
func (s *RedisStore) PurgeBefore(_ context.Context, _ string) error { return nil }

func replyInt(v interface{}) int64 {
	switch typed := v.(type) {
	case int64:
		return typed
	case string:
		var n int64
		_, _ = fmt.Sscanf(typed, "%d", &n)
		return n
	default:
		return 0
	}
}

func replyString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

var _ Store = (*RedisStore)(nil)
