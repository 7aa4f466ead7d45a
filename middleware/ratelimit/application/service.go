package application

import (
	"context"
	"fmt"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Falhas da loja (erro ou panic) viram admissão com FailedOpen=true e o erro é
// devolvido para quem chamou registrar em log.
type Service struct {
	Store domain.AdmissionStore
	Now   func() time.Time
}

func (s Service) Decide(ctx context.Context, key domain.Key, rule domain.Rule) (dec domain.Decision, err error) {
	if s.Store == nil {
		return domain.Decision{Allowed: true}, nil
	}
	if !rule.Valid() {
		return failOpen(), fmt.Errorf("%w: max=%d window=%s", domain.ErrInvalidRule, rule.MaxRequests, rule.Window)
	}

	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	defer func() {
		if r := recover(); r != nil {
			dec = failOpen()
			err = fmt.Errorf("%w: panic: %v", domain.ErrStoreFailure, r)
		}
	}()

	dec, err = s.Store.CheckAndConsume(ctx, key, rule, now)
	if err != nil {
		return failOpen(), fmt.Errorf("%w: %w", domain.ErrStoreFailure, err)
	}
	if !dec.Allowed {
		dec.Remaining = 0
		dec.RetryAfter = dec.ResetAt.Sub(now)
	}
	return dec, nil
}

func failOpen() domain.Decision {
	return domain.Decision{Allowed: true, FailedOpen: true}
}
