package infra

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"

	"admission-gateway/middleware/ratelimit/domain"
)

// DefaultMaxEntries limita quantos identificadores distintos ficam em memória.
const DefaultMaxEntries = 100_000

// MemoryStore é a loja de janela fixa em memória do processo.
//
// Um único mutex protege o LRU inteiro: CheckAndConsume é O(1) e não faz I/O,
// então a ordem de admissão por chave é a ordem de chegada no lock.
// Não há persistência: reiniciar o processo zera todas as janelas.
type MemoryStore struct {
	mu      sync.Mutex
	records *simplelru.LRU

	maxEntries int
	sweepEvery time.Duration
	now        func() time.Time

	logger       *slog.Logger
	onEvict      func()
	onSweep      func(removed int)
	onSweepError func(err error)
}

type memoryRecord struct {
	count   int
	resetAt time.Time
}

type MemoryStoreOption func(*MemoryStore)

// WithMaxEntries define o tamanho do LRU. Valores <= 0 mantêm o padrão.
func WithMaxEntries(n int) MemoryStoreOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithSweepEvery define o intervalo do janitor. <= 0 desliga o janitor.
func WithSweepEvery(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.sweepEvery = d }
}

// WithClock troca o relógio usado pelo janitor.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithEvictHook é chamado quando o LRU descarta um identificador ainda vivo.
func WithEvictHook(fn func()) MemoryStoreOption {
	return func(s *MemoryStore) { s.onEvict = fn }
}

// WithSweepHook é chamado depois de cada passada do janitor.
func WithSweepHook(fn func(removed int)) MemoryStoreOption {
	return func(s *MemoryStore) { s.onSweep = fn }
}

// WithSweepErrorHook é chamado quando uma passada do janitor falha (erro ou panic).
// A falha só é registrada: as decisões seguem pela expiração preguiçosa.
func WithSweepErrorHook(fn func(err error)) MemoryStoreOption {
	return func(s *MemoryStore) { s.onSweepError = fn }
}

// WithLogger define o logger do janitor (padrão slog.Default()).
func WithLogger(l *slog.Logger) MemoryStoreOption {
	return func(s *MemoryStore) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) (*MemoryStore, error) {
	s := &MemoryStore{
		maxEntries: DefaultMaxEntries,
		sweepEvery: time.Minute,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	lru, err := simplelru.NewLRU(s.maxEntries, nil)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	s.records = lru
	return s, nil
}

func (s *MemoryStore) SweepEvery() time.Duration { return s.sweepEvery }

// CheckAndConsume implementa domain.AdmissionStore.
func (s *MemoryStore) CheckAndConsume(_ context.Context, key domain.Key, rule domain.Rule, now time.Time) (domain.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.records.Get(key); ok {
		rec := v.(*memoryRecord)
		if rec.resetAt.After(now) {
			if rec.count >= rule.MaxRequests {
				return domain.Decision{Allowed: false, Limit: rule.MaxRequests, Remaining: 0, ResetAt: rec.resetAt}, nil
			}
			rec.count++
			return domain.Decision{
				Allowed:   true,
				Limit:     rule.MaxRequests,
				Remaining: rule.MaxRequests - rec.count,
				ResetAt:   rec.resetAt,
			}, nil
		}
	}

	// chave nova ou janela expirada: começa uma janela nova
	rec := &memoryRecord{count: 1, resetAt: now.Add(rule.Window)}
	if evicted := s.records.Add(key, rec); evicted && s.onEvict != nil {
		s.onEvict()
	}
	return domain.Decision{
		Allowed:   true,
		Limit:     rule.MaxRequests,
		Remaining: rule.MaxRequests - 1,
		ResetAt:   rec.resetAt,
	}, nil
}

// Sweep implementa domain.AdmissionStore.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, k := range s.records.Keys() {
		v, ok := s.records.Peek(k)
		if !ok {
			continue
		}
		if v.(*memoryRecord).resetAt.Before(now) {
			s.records.Remove(k)
			removed++
		}
	}
	return removed, nil
}

// Len retorna o número de registros (vivos ou ainda não varridos).
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records.Len()
}

// StartJanitor inicia uma goroutine que remove janelas expiradas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryStore) StartJanitor(ctx context.Context) {
	if s.sweepEvery <= 0 {
		return
	}

	t := time.NewTicker(s.sweepEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.sweepOnce(ctx)
			}
		}
	}()
}

// sweepOnce nunca derruba o janitor: erro e panic viram log e a próxima
// passada acontece normalmente.
func (s *MemoryStore) sweepOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.sweepFailed(fmt.Errorf("sweep panic: %v", r))
		}
	}()

	removed, err := s.Sweep(ctx, s.now())
	if err != nil {
		s.sweepFailed(fmt.Errorf("sweep: %w", err))
		return
	}
	if s.onSweep != nil {
		s.onSweep(removed)
	}
}

func (s *MemoryStore) sweepFailed(err error) {
	s.logger.Error("rate limit sweep failed", "error", err)
	if s.onSweepError != nil {
		s.onSweepError(err)
	}
}
