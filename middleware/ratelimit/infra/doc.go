// Package infra implementa os contratos de domain.
//
//   - MemoryStore: janela fixa por chave, em memória, com teto LRU e janitor
//   - RedisStore: a mesma janela compartilhada entre réplicas (script Lua)
//   - MemoryStatsStore / RedisStatsStore: contadores de decisões
//   - ChanPool: vagas de concorrência
package infra
