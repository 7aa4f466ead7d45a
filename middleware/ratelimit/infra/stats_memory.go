package infra

import (
	"context"
	"maps"
	"sync"

	"admission-gateway/middleware/ratelimit/domain"
)

// Counters agrega decisões por desfecho.
type Counters struct {
	Allowed    int64 `json:"allowed"`
	Denied     int64 `json:"denied"`
	FailedOpen int64 `json:"failedOpen"`
}

// outcomeField é o nome do desfecho, igual ao campo usado nos hashes do Redis.
func outcomeField(ev domain.StatsEvent) string {
	switch {
	case ev.FailedOpen:
		return "failed_open"
	case ev.Allowed:
		return "allowed"
	default:
		return "denied"
	}
}

func (c *Counters) inc(field string, n int64) {
	switch field {
	case "allowed":
		c.Allowed += n
	case "denied":
		c.Denied += n
	case "failed_open":
		c.FailedOpen += n
	}
}

// Requests soma todos os desfechos.
func (c Counters) Requests() int64 { return c.Allowed + c.Denied + c.FailedOpen }

// MemoryStatsStore guarda contadores no processo. Sem expiração: com
// WithTrackKeys(true) cresce com o número de identificadores.
type MemoryStatsStore struct {
	mu        sync.Mutex
	trackKeys bool

	total   Counters
	byRoute map[string]Counters
	byKey   map[string]Counters
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute: map[string]Counters{},
		byKey:   map[string]Counters{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record implementa domain.StatsStore.
func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	field := outcomeField(ev)
	route := ev.Route
	if route == "" {
		route = ev.Method + " " + ev.Path
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.inc(field, 1)
	bump(s.byRoute, route, field)
	if s.trackKeys {
		bump(s.byKey, string(ev.Key), field)
	}
	return nil
}

func bump(m map[string]Counters, k, field string) {
	c := m[k]
	c.inc(field, 1)
	m[k] = c
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// ByRoute devolve uma cópia, indexada pelo rótulo da regra.
func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byRoute)
}

// ByKey devolve uma cópia; vazio sem WithTrackKeys(true).
func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byKey)
}
