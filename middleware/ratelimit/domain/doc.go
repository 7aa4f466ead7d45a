// Package domain define contratos e tipos de domínio da camada de admissão:
// regras de janela fixa, decisões, lojas de contadores, estatísticas e
// concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas, para que
// a loja em memória possa ser trocada por uma distribuída (Redis) sem mudar o
// contrato do gate.
package domain
