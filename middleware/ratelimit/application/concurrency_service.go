package application

import (
	"context"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService decide se uma requisição admitida ganha vaga no upstream.
type ConcurrencyService struct {
	Pool domain.SlotPool
	// AcquireTimeout <= 0 espera enquanto o ctx da requisição viver.
	AcquireTimeout time.Duration
}

// Acquire devolve domain.ErrNoSlot (com release no-op) quando a espera acaba
// sem vaga. Sem Pool, tudo passa.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	noop := func() {}
	if s.Pool == nil {
		return noop, nil
	}

	waitCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	if release, ok := s.Pool.Acquire(waitCtx); ok {
		return release, nil
	}
	return noop, domain.ErrNoSlot
}
