// Package config carrega a configuração do gateway a partir do ambiente,
// com um .env opcional.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/domain"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	ListenAddr    string
	UpstreamURL   *url.URL
	LogLevel      slog.Level
	CanonicalHost string

	Rate        RateConfig
	Stats       StatsConfig
	Redis       RedisConfig
	Concurrency ConcurrencyConfig
}

type RateConfig struct {
	Enabled     bool
	Backend     string
	Policy      ratelimit.Policy
	SweepEvery  time.Duration
	MaxEntries  int
	RedisPrefix string
}

type StatsConfig struct {
	Enabled   bool
	Backend   string
	Prefix    string
	TTL       time.Duration
	Bucket    string
	TrackKeys bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ConcurrencyConfig struct {
	Max     int
	Timeout time.Duration
}

// UsesRedis informa se algum componente precisa de um cliente Redis.
func (c Config) UsesRedis() bool {
	return (c.Rate.Enabled && c.Rate.Backend == BackendRedis) ||
		(c.Stats.Enabled && c.Stats.Backend == BackendRedis)
}

// ValidationError descreve uma variável com valor inválido.
type ValidationError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config %s=%q: %s", e.Key, e.Value, e.Reason)
}

// Load lê .env (se existir) e o ambiente. Valores inválidos viram erro:
// nada é trocado silenciosamente pelo padrão.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return FromEnv()
}

// loadDotEnv ignora apenas arquivo ausente; .env malformado é erro.
func loadDotEnv(filename string) error {
	err := godotenv.Load(filename)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return &ValidationError{Key: filename, Reason: err.Error()}
}

// FromEnv é Load sem o .env.
func FromEnv() (Config, error) {
	e := &env{}
	cfg := Config{}

	cfg.ListenAddr = e.str("LISTEN_ADDR", ":8080")
	cfg.UpstreamURL = e.upstream("UPSTREAM_URL")
	cfg.LogLevel = e.level("LOG_LEVEL", slog.LevelInfo)
	cfg.CanonicalHost = e.str("CANONICAL_HOST", "")

	policy := ratelimit.DefaultPolicy()
	policy.APIPrefix = e.str("RATE_API_PREFIX", policy.APIPrefix)
	policy.Default = e.rule("RATE_DEFAULT", policy.Default)
	policy.Routes = e.routes("RATE_ROUTES", policy.Routes)
	policy.Exempt = e.list("RATE_EXEMPT", policy.Exempt)
	policy.IdentifierHeaders = e.list("RATE_IDENTIFIER_HEADERS", policy.IdentifierHeaders)

	cfg.Rate = RateConfig{
		Enabled:     e.boolean("RATE_ENABLED", true),
		Backend:     e.oneOf("RATE_BACKEND", BackendMemory, BackendMemory, BackendRedis),
		Policy:      policy,
		SweepEvery:  e.duration("RATE_SWEEP_EVERY", time.Minute),
		MaxEntries:  e.integer("RATE_MAX_ENTRIES", 100_000),
		RedisPrefix: e.str("RATE_REDIS_PREFIX", "ratelimit"),
	}
	if cfg.Rate.MaxEntries <= 0 {
		e.fail("RATE_MAX_ENTRIES", strconv.Itoa(cfg.Rate.MaxEntries), "must be > 0")
	}
	if cfg.Rate.SweepEvery < 0 {
		e.fail("RATE_SWEEP_EVERY", cfg.Rate.SweepEvery.String(), "must be >= 0")
	}
	if err := policy.Validate(); err != nil {
		e.fail("RATE_ROUTES", "", err.Error())
	}

	cfg.Stats = StatsConfig{
		Enabled:   e.boolean("RATE_STATS_ENABLED", false),
		Backend:   e.oneOf("RATE_STATS_BACKEND", BackendMemory, BackendMemory, BackendRedis),
		Prefix:    e.str("RATE_STATS_PREFIX", "ratelimit:stats"),
		TTL:       e.duration("RATE_STATS_TTL", 24*time.Hour),
		Bucket:    e.oneOf("RATE_STATS_BUCKET", "minute", "minute", "none"),
		TrackKeys: e.boolean("RATE_STATS_TRACK_KEYS", false),
	}

	cfg.Redis = RedisConfig{
		Addr:     e.str("REDIS_ADDR", ""),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       e.integer("REDIS_DB", 0),
	}
	if cfg.UsesRedis() && cfg.Redis.Addr == "" {
		e.fail("REDIS_ADDR", "", "required when a redis backend is selected")
	}

	cfg.Concurrency = ConcurrencyConfig{
		Max:     e.integer("CONCURRENCY_MAX", 100),
		Timeout: e.duration("CONCURRENCY_TIMEOUT", 0),
	}
	if cfg.Concurrency.Max < 0 {
		e.fail("CONCURRENCY_MAX", strconv.Itoa(cfg.Concurrency.Max), "must be >= 0")
	}

	if err := errors.Join(e.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// env acumula erros para que todas as variáveis inválidas apareçam de uma vez.
type env struct {
	errs []error
}

func (e *env) fail(key, value, reason string) {
	e.errs = append(e.errs, &ValidationError{Key: key, Value: value, Reason: reason})
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, "not an integer")
		return def
	}
	return i
}

func (e *env) boolean(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, "not a boolean")
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, "not a duration")
		return def
	}
	return d
}

func (e *env) oneOf(key, def string, allowed ...string) string {
	v := strings.ToLower(e.str(key, def))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	e.fail(key, v, "must be one of "+strings.Join(allowed, ", "))
	return def
}

func (e *env) list(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (e *env) level(key string, def slog.Level) slog.Level {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		e.fail(key, v, "unknown log level")
		return def
	}
	return l
}

func (e *env) upstream(key string) *url.URL {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		e.fail(key, "", "required")
		return nil
	}
	u, err := url.Parse(v)
	if err != nil || u.Scheme == "" || u.Host == "" {
		e.fail(key, v, "must be an absolute URL")
		return nil
	}
	return u
}

func (e *env) rule(key string, def domain.Rule) domain.Rule {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	r, err := ParseRule(v)
	if err != nil {
		e.fail(key, v, err.Error())
		return def
	}
	return r
}

func (e *env) routes(key string, def []ratelimit.Route) []ratelimit.Route {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	routes, err := ParseRoutes(v)
	if err != nil {
		e.fail(key, v, err.Error())
		return def
	}
	return routes
}

// ParseRule lê "max:janela", ex: "30:60s".
func ParseRule(s string) (domain.Rule, error) {
	maxStr, windowStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return domain.Rule{}, fmt.Errorf("expected max:window, got %q", s)
	}
	maxRequests, err := strconv.Atoi(strings.TrimSpace(maxStr))
	if err != nil {
		return domain.Rule{}, fmt.Errorf("invalid max %q: %w", maxStr, err)
	}
	window, err := time.ParseDuration(strings.TrimSpace(windowStr))
	if err != nil {
		return domain.Rule{}, fmt.Errorf("invalid window %q: %w", windowStr, err)
	}
	r := domain.Rule{MaxRequests: maxRequests, Window: window}
	if !r.Valid() {
		return domain.Rule{}, fmt.Errorf("%w: max=%d window=%s", domain.ErrInvalidRule, maxRequests, window)
	}
	return r, nil
}

// ParseRoutes lê "prefixo:max:janela" separados por vírgula.
// Ex: "/api/checkout:10:60s,/api/ai-search:25:60s". Vazio = sem regras.
func ParseRoutes(s string) ([]ratelimit.Route, error) {
	var routes []ratelimit.Route
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		// o prefixo vem antes dos dois últimos ":"
		windowIdx := strings.LastIndex(item, ":")
		if windowIdx <= 0 {
			return nil, fmt.Errorf("expected prefix:max:window, got %q", item)
		}
		maxIdx := strings.LastIndex(item[:windowIdx], ":")
		if maxIdx <= 0 {
			return nil, fmt.Errorf("expected prefix:max:window, got %q", item)
		}
		rule, err := ParseRule(item[maxIdx+1:])
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", item[:maxIdx], err)
		}
		prefix := strings.TrimSpace(item[:maxIdx])
		if !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("route prefix %q must start with /", prefix)
		}
		routes = append(routes, ratelimit.Route{Prefix: prefix, Rule: rule})
	}
	return routes, nil
}
