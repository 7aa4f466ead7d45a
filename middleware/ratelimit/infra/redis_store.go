package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"admission-gateway/middleware/ratelimit/domain"
)

// fixedWindowScript faz check-and-consume atômico: o Redis executa scripts de
// forma serial, então duas requisições na borda da janela não abrem duas janelas.
//
// KEYS[1] = chave do balde, ARGV[1] = max, ARGV[2] = janela em ms.
// Retorna {count, pttl, allowed}.
var fixedWindowScript = redis.NewScript(`
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
local ttl = redis.call('PTTL', KEYS[1])
if count == 0 or ttl < 0 then
  redis.call('SET', KEYS[1], 1, 'PX', window)
  return {1, window, 1}
end
if count >= max then
  return {count, ttl, 0}
end
count = redis.call('INCR', KEYS[1])
return {count, ttl, 1}
`)

// RedisStore compartilha as janelas fixas entre várias instâncias do gateway.
// A expiração fica a cargo do TTL do Redis.
type RedisStore struct {
	rdb    redis.Scripter
	prefix string
}

type RedisStoreOption func(*RedisStore)

func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func NewRedisStore(rdb redis.Scripter, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: "ratelimit"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckAndConsume implementa domain.AdmissionStore.
func (s *RedisStore) CheckAndConsume(ctx context.Context, key domain.Key, rule domain.Rule, now time.Time) (domain.Decision, error) {
	windowMS := rule.Window.Milliseconds()
	if windowMS < 1 {
		windowMS = 1
	}

	redisKey := s.prefix + ":" + string(key)
	res, err := fixedWindowScript.Run(ctx, s.rdb, []string{redisKey}, rule.MaxRequests, windowMS).Int64Slice()
	if err != nil {
		return domain.Decision{}, fmt.Errorf("fixed window script for key %s: %w", redisKey, err)
	}
	if len(res) != 3 {
		return domain.Decision{}, fmt.Errorf("fixed window script for key %s: unexpected reply %v", redisKey, res)
	}

	count, ttlMS, allowed := int(res[0]), res[1], res[2] == 1
	dec := domain.Decision{
		Allowed: allowed,
		Limit:   rule.MaxRequests,
		ResetAt: now.Add(time.Duration(ttlMS) * time.Millisecond),
	}
	if allowed {
		dec.Remaining = rule.MaxRequests - count
	}
	return dec, nil
}

// Sweep implementa domain.AdmissionStore. As chaves expiram sozinhas no Redis.
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}
