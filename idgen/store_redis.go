package idgen

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/nsid/clog"
)

// reserveScript 在服务端一步完成上限检查与 INCRBY
//
// KEYS[1] 计数器键；ARGV[1] size；ARGV[2] 为 max_value-size；ARGV[3] 为 "1" 时检查上限。
// Lua 数字是 double，超过 2^53 会丢精度，所以上限比较按十进制字符串进行：
// cur > max_value-size 即越界。返回 {ok, 增加前的值}，值以字符串返回以保留 int64
// 精度。INCRBY 自身溢出 int64 时 Redis 拒绝写入，同样视为越界。
var reserveScript = redis.NewScript(`
local function gt(a, b)
	if #a ~= #b then
		return #a > #b
	end
	return a > b
end
local cur = redis.call('GET', KEYS[1])
if not cur then
	cur = '0'
end
if not string.match(cur, '^-?%d+$') then
	return redis.error_reply('ERR counter value is not an integer')
end
if ARGV[3] == '1' and string.sub(cur, 1, 1) ~= '-' and gt(cur, ARGV[2]) then
	return {0, cur}
end
local ok = pcall(redis.call, 'INCRBY', KEYS[1], ARGV[1])
if not ok then
	return {0, cur}
end
return {1, cur}
`)

type redisStore struct {
	client    *redis.Client
	keyPrefix string
	maxValue  int64
	logger    clog.Logger
}

// NewRedisStore 基于 Redis 字符串键的计数器，键为 "<key_prefix>:<namespace>"
func NewRedisStore(client *redis.Client, cfg *StoreConfig, opts ...Option) (Store, error) {
	if client == nil {
		return nil, ErrConnectorNil
	}
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	if err := c.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	return &redisStore{
		client:    client,
		keyPrefix: c.KeyPrefix,
		maxValue:  c.MaxValue,
		logger:    o.logger.WithNamespace("redis"),
	}, nil
}

func (s *redisStore) key(namespace string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, namespace)
}

func (s *redisStore) Reserve(ctx context.Context, namespace string, size int64) (int64, error) {
	if err := checkReserveArgs(namespace, size); err != nil {
		return 0, err
	}

	limited := "0"
	if s.maxValue < math.MaxInt64 {
		if size > s.maxValue {
			return 0, counterOverflow(namespace, 0, size)
		}
		limited = "1"
	}

	key := s.key(namespace)
	threshold := strconv.FormatInt(s.maxValue-size, 10)
	reply, err := reserveScript.Run(ctx, s.client, []string{key}, size, threshold, limited).Slice()
	if err != nil {
		return 0, storeUnavailable(err, "redis reserve %s", key)
	}
	if len(reply) != 2 {
		return 0, storeUnavailable(errors.New("unexpected script reply"), "redis reserve %s", key)
	}

	ok, _ := reply[0].(int64)
	raw, _ := reply[1].(string)
	start, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, storeUnavailable(err, "redis reserve %s", key)
	}
	if ok != 1 {
		return 0, counterOverflow(namespace, start, size)
	}

	s.logger.DebugContext(ctx, "block reserved",
		clog.String("key", key),
		clog.Int64("start", start),
		clog.Int64("size", size))
	return start, nil
}

func (s *redisStore) Provision(ctx context.Context, namespace string) (bool, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return false, err
	}
	key := s.key(namespace)
	created, err := s.client.SetNX(ctx, key, 0, 0).Result()
	if err != nil {
		return false, storeUnavailable(err, "redis provision %s", key)
	}
	return created, nil
}

func (s *redisStore) Peek(ctx context.Context, namespace string) (int64, bool, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return 0, false, err
	}
	key := s.key(namespace)
	next, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storeUnavailable(err, "redis peek %s", key)
	}
	return next, true, nil
}
