// Package chain wraps the Solana JSON-RPC API with the small surface the
// agent's actions need, and keeps one client per cluster.
package chain
