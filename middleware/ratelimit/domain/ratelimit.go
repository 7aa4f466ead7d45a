package domain

// Camada de domínio do rate limit (janela fixa por identificador).
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

// Key identifica um balde de contagem (ex: "api/checkout:1.2.3.4").
type Key string

// Rule é o par (maxRequests, windowDuration) aplicado a um balde.
type Rule struct {
	MaxRequests int
	Window      time.Duration
}

// Valid informa se a regra pode ser usada em uma decisão.
func (r Rule) Valid() bool {
	return r.MaxRequests > 0 && r.Window > 0
}

// Decision é o resultado de CheckAndConsume.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt é o instante em que a janela atual expira e a contagem zera.
	ResetAt time.Time
	// RetryAfter só é preenchido quando a requisição foi rejeitada.
	RetryAfter time.Duration
	// FailedOpen indica que a loja falhou e a requisição foi admitida sem contagem.
	FailedOpen bool
}

// RetryAfterSeconds arredonda RetryAfter para cima, com mínimo de 1 segundo.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 1
	}
	secs := int(d.RetryAfter / time.Second)
	if d.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// Err retorna nil para decisões admitidas e um *RateLimitExceededError caso contrário.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &RateLimitExceededError{Limit: d.Limit, RetryAfterSeconds: d.RetryAfterSeconds()}
}

// AdmissionStore é dona do mapa identificador -> registro da janela.
//
// CheckAndConsume deve ser atômico por chave: duas requisições na borda da
// janela não podem ser admitidas ambas como "primeira da nova janela".
// Requisições rejeitadas não consomem quota.
type AdmissionStore interface {
	CheckAndConsume(ctx context.Context, key Key, rule Rule, now time.Time) (Decision, error)
	// Sweep remove registros cuja janela expirou antes de now e retorna
	// quantos foram removidos. É apenas limpeza: a expiração também é
	// verificada de forma preguiçosa em CheckAndConsume.
	Sweep(ctx context.Context, now time.Time) (int, error)
}
