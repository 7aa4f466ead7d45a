package domain

import "context"

// SlotPool limita quantas requisições admitidas ficam em voo no upstream ao
// mesmo tempo. É independente da janela fixa: uma requisição pode ter quota e
// ainda assim esperar por vaga.
type SlotPool interface {
	// Acquire devolve release (chamar uma única vez) ou ok=false quando ctx
	// termina antes de abrir uma vaga.
	Acquire(ctx context.Context) (release func(), ok bool)
	InUse() int
	Capacity() int
}
