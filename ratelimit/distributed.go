package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/connector"
	"github.com/ceyewan/nsid/metrics"
	"github.com/ceyewan/nsid/xerrors"
)

// tokenBucketScript 以"下一次可放行时间"表示桶状态的令牌桶
//
// KEYS[1] 桶的 key
// ARGV[1] rate，ARGV[2] burst，ARGV[3] 当前时间（秒，浮点），ARGV[4] 本次消耗的令牌数
// 返回 {allowed(0/1), remaining}
var tokenBucketScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local interval = 1 / rate
local fill_time = burst * interval

local next_free = tonumber(redis.call("GET", KEYS[1]))
if next_free == nil or next_free < now then
  next_free = now
end

local updated = next_free + requested * interval
local horizon = now + fill_time

if updated <= horizon then
  redis.call("SET", KEYS[1], tostring(updated), "EX", math.ceil(fill_time * 2))
  return {1, math.floor((horizon - updated) / interval)}
end
return {0, math.floor((horizon - next_free) / interval)}
`)

type distributedLimiter struct {
	client  *redis.Client
	prefix  string
	logger  clog.Logger
	metrics *limiterMetrics
}

func newDistributed(cfg *Config, redisConn connector.RedisConnector, logger clog.Logger, meter metrics.Meter) *distributedLimiter {
	return &distributedLimiter{
		client:  redisConn.GetClient(),
		prefix:  cfg.Prefix,
		logger:  logger,
		metrics: newLimiterMetrics(meter, ModeDistributed),
	}
}

func (l *distributedLimiter) Allow(ctx context.Context, key string, limit Limit) (bool, error) {
	return l.AllowN(ctx, key, limit, 1)
}

func (l *distributedLimiter) AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error) {
	if key == "" {
		return false, ErrKeyEmpty
	}
	if !limit.valid() || n <= 0 {
		return false, ErrInvalidLimit
	}
	if l.client == nil {
		return false, ErrConnectorNil
	}

	now := float64(time.Now().UnixNano()) / 1e9
	res, err := tokenBucketScript.Run(ctx, l.client, []string{l.prefix + key}, limit.Rate, limit.Burst, now, n).Int64Slice()
	if err == nil && len(res) != 2 {
		err = xerrors.New("unexpected script result")
	}
	if err != nil {
		l.metrics.record(ctx, false, err)
		l.logger.Error("failed to run rate limit script", clog.String("key", key), clog.Error(err))
		return false, xerrors.Wrap(err, "ratelimit: run script")
	}

	allowed := res[0] == 1
	l.metrics.record(ctx, allowed, nil)
	if !allowed {
		l.logger.Debug("rate limit exceeded",
			clog.String("key", key),
			clog.Int64("remaining", res[1]),
			clog.Float64("rate", limit.Rate),
			clog.Int("burst", limit.Burst),
			clog.Int("requested", n))
	}
	return allowed, nil
}

func (l *distributedLimiter) Close() error {
	return nil
}
