// Package ratelimit 实现外部数据源配额闸门：分钟窗与日窗的双窗口令牌桶。
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wyfcoding/papertrading/internal/marketdata/domain"
)

// 双窗口消费脚本。令牌按经过的墙钟时间线性回填、封顶于容量，
// 检查与扣减在 Redis 服务端单次执行，跨进程无读写竞态窗口。
// 仅当两个窗口都满足时才同时扣减，否则都不扣减。
var consumeScript = redis.NewScript(`
local function refill(key, cap, period, now)
  local data = redis.call('HMGET', key, 'tokens', 'ts')
  local tokens = tonumber(data[1])
  local ts = tonumber(data[2])
  if tokens == nil or ts == nil then
    return cap, now
  end
  local elapsed = now - ts
  if elapsed <= 0 then
    return tokens, ts
  end
  tokens = tokens + elapsed * cap / period
  if tokens > cap then
    tokens = cap
  end
  return tokens, now
end

local now = tonumber(ARGV[1])
local mcap = tonumber(ARGV[2])
local mperiod = tonumber(ARGV[3])
local dcap = tonumber(ARGV[4])
local dperiod = tonumber(ARGV[5])
local cost = tonumber(ARGV[6])

local mtokens, mts = refill(KEYS[1], mcap, mperiod, now)
local dtokens, dts = refill(KEYS[2], dcap, dperiod, now)

local allowed = 0
if cost > 0 and mtokens >= cost and dtokens >= cost then
  allowed = 1
  mtokens = mtokens - cost
  dtokens = dtokens - cost
end

redis.call('HSET', KEYS[1], 'tokens', mtokens, 'ts', mts)
redis.call('PEXPIRE', KEYS[1], mperiod * 2)
redis.call('HSET', KEYS[2], 'tokens', dtokens, 'ts', dts)
redis.call('PEXPIRE', KEYS[2], dperiod * 2)

return {allowed, tostring(mtokens), tostring(dtokens)}
`)

// RedisRateLimiter 基于 Redis 的共享配额闸门。
// 状态存放在共享存储中，多 worker、多进程共用同一份配额。
type RedisRateLimiter struct {
	client    redis.UniversalClient
	keyPrefix string
	perMinute int
	perDay    int
}

// NewRedisRateLimiter 创建 Redis 配额闸门。
func NewRedisRateLimiter(client redis.UniversalClient, perMinute, perDay int) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:    client,
		keyPrefix: "marketdata:quota:",
		perMinute: perMinute,
		perDay:    perDay,
	}
}

// TryConsume 原子地尝试从两个窗口各扣减 cost 个令牌。
func (r *RedisRateLimiter) TryConsume(ctx context.Context, cost int) (bool, error) {
	allowed, _, _, err := r.run(ctx, cost)
	return allowed, err
}

// Remaining 返回两个窗口的剩余令牌快照。cost=0 时脚本只回填不扣减。
func (r *RedisRateLimiter) Remaining(ctx context.Context) (domain.QuotaRemaining, error) {
	_, minute, day, err := r.run(ctx, 0)
	if err != nil {
		return domain.QuotaRemaining{}, err
	}
	return domain.QuotaRemaining{Minute: minute, Day: day}, nil
}

func (r *RedisRateLimiter) run(ctx context.Context, cost int) (bool, float64, float64, error) {
	keys := []string{r.keyPrefix + "minute", r.keyPrefix + "day"}
	args := []any{
		time.Now().UnixMilli(),
		r.perMinute, time.Minute.Milliseconds(),
		r.perDay, (24 * time.Hour).Milliseconds(),
		cost,
	}
	res, err := consumeScript.Run(ctx, r.client, keys, args...).Slice()
	if err != nil {
		return false, 0, 0, fmt.Errorf("quota script failed: %w", err)
	}
	if len(res) != 3 {
		return false, 0, 0, fmt.Errorf("quota script returned %d values", len(res))
	}
	allowed, _ := res[0].(int64)
	minute, err := parseScriptFloat(res[1])
	if err != nil {
		return false, 0, 0, err
	}
	day, err := parseScriptFloat(res[2])
	if err != nil {
		return false, 0, 0, err
	}
	return allowed == 1, minute, day, nil
}

func parseScriptFloat(v any) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("quota script returned non-string token count %T", v)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("quota script returned bad token count %q: %w", s, err)
	}
	return f, nil
}
