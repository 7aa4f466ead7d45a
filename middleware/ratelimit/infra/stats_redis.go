package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"admission-gateway/middleware/ratelimit/domain"
)

const (
	StatsBucketMinute = "minute"
	StatsBucketNone   = "none"
)

// RedisStatsStore grava contadores em hashes com os campos
// allowed / denied / failed_open:
//
//	<prefix>:total                  cumulativo, sem TTL
//	<prefix>:route:<rótulo>         cumulativo, sem TTL
//	<prefix>:minute:<YYYYMMDDhhmm>  série por minuto, com TTL
//	<prefix>:key:<chave>            opcional, com TTL
type RedisStatsStore struct {
	rdb       redis.Cmdable
	prefix    string
	ttl       time.Duration
	bucket    string
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithStatsTTL vale para as chaves por minuto e por chave.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsBucket aceita StatsBucketMinute (padrão) ou StatsBucketNone.
func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: StatsBucketMinute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record implementa domain.StatsStore numa única ida ao Redis.
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := outcomeField(ev)

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

		if route := strings.TrimSpace(ev.Route); route != "" {
			pipe.HIncrBy(ctx, s.routeKey(route), field, 1)
		}
		if s.bucket == StatsBucketMinute {
			s.incrExpiring(ctx, pipe, s.minuteKey(at), field)
		}
		if k := strings.TrimSpace(string(ev.Key)); s.trackKeys && k != "" {
			s.incrExpiring(ctx, pipe, s.prefix+":key:"+k, field)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record stats: %w", err)
	}
	return nil
}

func (s *RedisStatsStore) incrExpiring(ctx context.Context, pipe redis.Pipeliner, key, field string) {
	pipe.HIncrBy(ctx, key, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

func (s *RedisStatsStore) routeKey(route string) string { return s.prefix + ":route:" + route }

func (s *RedisStatsStore) minuteKey(at time.Time) string {
	return s.prefix + ":minute:" + at.UTC().Format("200601021504")
}

// Total lê os contadores cumulativos.
func (s *RedisStatsStore) Total(ctx context.Context) (Counters, error) {
	return s.read(ctx, s.prefix+":total")
}

// Route lê os contadores cumulativos de um rótulo de regra.
func (s *RedisStatsStore) Route(ctx context.Context, route string) (Counters, error) {
	return s.read(ctx, s.routeKey(route))
}

// Minute lê o balde do minuto de at (zerado se já expirou).
func (s *RedisStatsStore) Minute(ctx context.Context, at time.Time) (Counters, error) {
	return s.read(ctx, s.minuteKey(at))
}

func (s *RedisStatsStore) read(ctx context.Context, key string) (Counters, error) {
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return Counters{}, fmt.Errorf("read stats %s: %w", key, err)
	}

	var c Counters
	for f, v := range fields {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Counters{}, fmt.Errorf("read stats %s: field %s: %w", key, f, err)
		}
		c.inc(f, n)
	}
	return c, nil
}
