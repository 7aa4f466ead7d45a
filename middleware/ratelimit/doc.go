// Package ratelimit fornece adapters HTTP (net/http) para a camada de admissão:
// rate limit de janela fixa por identificador, limite de concorrência e
// redirecionamento para o host canônico.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny com fail-open, acquire/timeout) sem net/http
//   - infra: implementações concretas (janela fixa em memória/Redis, semáforo, estatísticas)
//   - ratelimit (este pacote): Policy (identificador + regra por rota), middlewares HTTP,
//     tradução para status/headers e métricas Prometheus
//
// Fluxo no gateway:
//
//  1. Path isento (webhook de pagamento, fora de /api/) passa direto, sem headers
//  2. Policy resolve (identificador, max, janela) a partir dos headers de proxy e do prefixo
//  3. application decide; erro interno da loja admite a requisição e gera log
//  4. Rejeitada: 429 + JSON {error, message, retryAfter} + X-RateLimit-* + Retry-After
//  5. Admitida: X-RateLimit-Limit/Remaining/Reset e o próximo handler (ex: reverse proxy)
//
// O limite por identificador vale por rota: a chave do balde é
// "<rótulo da rota>:<identificador>" (Resolution.Key). Com a tabela padrão um
// mesmo IP pode somar até 10 (checkout) + 25 (ai-search) + 30 (demais /api/)
// admissões por minuto; esgotar checkout não consome a quota de busca.
//
// O path é normalizado (".", "..", "//") antes da isenção e da escolha da
// rota, do mesmo jeito que o upstream vai interpretá-lo.
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como RATE_ROUTES, RATE_DEFAULT, RATE_BACKEND e CONCURRENCY_MAX.
package ratelimit
