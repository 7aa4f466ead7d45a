// Package application orquestra as decisões de admissão sobre os contratos de
// domain, sem net/http.
//
// Service.Decide consulta a loja e admite a requisição quando ela falha;
// ConcurrencyService.Acquire reserva uma vaga de upstream.
package application
