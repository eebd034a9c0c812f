package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/beaconcrm/automation/pkg/models"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "automation:rate:"

// admitScript prunes the window, checks both limits and records the admission
// in a single atomic evaluation, so two engine nodes racing for the last slot
// cannot both be admitted.
var admitScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])

local day_count = redis.call('ZCARD', KEYS[1])
local hour_count = redis.call('ZCOUNT', KEYS[1], ARGV[2], '+inf')

local max_hour = tonumber(ARGV[3])
local max_day = tonumber(ARGV[4])

if max_hour > 0 and hour_count >= max_hour then
	return 0
end

if max_day > 0 and day_count >= max_day then
	return 0
end

redis.call('ZADD', KEYS[1], ARGV[5], ARGV[6])
redis.call('PEXPIRE', KEYS[1], ARGV[7])

return 1
`)

// RedisGovernor keeps the sliding windows in a Redis sorted set per workflow,
// scored by admission time, so rate admission is shared across engine nodes.
type RedisGovernor struct {
	client redis.Scripter
	now    func() time.Time
}

func NewRedisGovernor(client redis.UniversalClient) *RedisGovernor {
	return &RedisGovernor{
		client: client,
		now:    time.Now,
	}
}

// NewRedisGovernorFromURL connects to Redis using a redis:// URL.
func NewRedisGovernorFromURL(ctx context.Context, redisURL string) (*RedisGovernor, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedisGovernor(client), nil
}

func (g *RedisGovernor) Admit(ctx context.Context, workflowID string, limits models.RateLimits) (bool, error) {
	key := redisKeyPrefix + workflowID
	now := g.now()

	dayCutoff := strconv.FormatInt(now.Add(-dayWindow).UnixNano(), 10)
	hourCutoff := strconv.FormatInt(now.Add(-hourWindow).UnixNano(), 10)

	admitted, err := admitScript.Run(ctx, g.client, []string{key},
		"("+dayCutoff,
		"("+hourCutoff,
		limits.MaxPerHour,
		limits.MaxPerDay,
		now.UnixNano(),
		uuid.New().String(),
		dayWindow.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to admit workflow %s: %w", workflowID, err)
	}

	return admitted == 1, nil
}
