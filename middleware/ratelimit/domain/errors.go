package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimitExceeded é o único erro de domínio da camada de admissão.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrStoreFailure marca falhas internas da loja; o gate admite a requisição.
	ErrStoreFailure = errors.New("admission store failure")

	// ErrInvalidRule é retornado quando a regra resolvida não tem valores positivos.
	ErrInvalidRule = errors.New("invalid rate limit rule")

	// ErrNoSlot indica que não havia vaga de concorrência dentro do prazo.
	ErrNoSlot = errors.New("no concurrency slot available")
)

// RateLimitExceededError carrega o limite violado e quanto esperar.
type RateLimitExceededError struct {
	Limit             int
	RetryAfterSeconds int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: limit %d, retry after %ds", e.Limit, e.RetryAfterSeconds)
}

func (e *RateLimitExceededError) Unwrap() error { return ErrRateLimitExceeded }

// IsRateLimitExceeded reconhece tanto o sentinel quanto o erro tipado.
func IsRateLimitExceeded(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}
