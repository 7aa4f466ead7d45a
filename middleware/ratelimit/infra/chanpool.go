package infra

import (
	"context"
	"sync"
)

// ChanPool é um semáforo sobre channel bufferizado.
type ChanPool struct {
	slots chan struct{}
}

// NewChanPool cria um pool com capacity vagas (mínimo 1).
func NewChanPool(capacity int) *ChanPool {
	if capacity < 1 {
		capacity = 1
	}
	return &ChanPool{slots: make(chan struct{}, capacity)}
}

func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	// vaga livre ganha de um ctx já cancelado
	select {
	case p.slots <- struct{}{}:
		return p.release(), true
	default:
	}

	select {
	case p.slots <- struct{}{}:
		return p.release(), true
	case <-ctx.Done():
		return nil, false
	}
}

// release protege contra chamada dupla, que liberaria a vaga de outro.
func (p *ChanPool) release() func() {
	var once sync.Once
	return func() { once.Do(func() { <-p.slots }) }
}

func (p *ChanPool) InUse() int { return len(p.slots) }

func (p *ChanPool) Capacity() int { return cap(p.slots) }
