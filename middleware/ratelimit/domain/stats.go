package domain

import (
	"context"
	"time"
)

// StatsEvent representa uma decisão do gate para uma requisição não isenta.
//
// Route é o rótulo da regra aplicada (prefixo ou "default"), não o path bruto,
// para manter a cardinalidade controlada em Redis/Prometheus.
type StatsEvent struct {
	Key        Key
	Route      string
	Allowed    bool
	FailedOpen bool

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// O middleware trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
