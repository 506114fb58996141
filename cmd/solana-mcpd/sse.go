package main

import (
	"context"
	"errors"

	"SolanaMCP-Agent/internal/api"
	"SolanaMCP-Agent/internal/config"
	"SolanaMCP-Agent/internal/custody"
	"SolanaMCP-Agent/internal/session"
)

// runSSE 启动 HTTP 服务，每个 GET /sse 连接一个托管钱包会话。
func runSSE(ctx context.Context, cfg *config.Config, deps *dependencies) error {
	server := api.NewServer(cfg.Address(), session.NewRegistry(), deps.chains, deps.catalog,
		api.WithCustodyOptions(
			custody.WithBaseURL(cfg.Custody.BaseURL),
			custody.WithTimeout(cfg.Custody.Timeout),
		),
		api.WithHistory(deps.history),
		api.WithEvents(deps.events),
		api.WithAlerts(deps.alerts),
		api.WithMarket(deps.prices, deps.swapper),
		api.WithAPIKeys(deps.apiKeys),
		api.WithActionTimeout(cfg.Actions.Timeout),
		api.WithKeepAlive(cfg.Server.KeepAlive),
		api.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		api.WithServerInfo("solana-mcp", version),
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
