package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"golang.org/x/term"

	"SolanaMCP-Agent/internal/agent"
	"SolanaMCP-Agent/internal/config"
	"SolanaMCP-Agent/internal/events"
	"SolanaMCP-Agent/internal/mcp"
	"SolanaMCP-Agent/internal/observability/metrics"
	"SolanaMCP-Agent/internal/session"
	"SolanaMCP-Agent/internal/transport"
	"SolanaMCP-Agent/internal/wallet"
	"SolanaMCP-Agent/pkg/logger"
)

// runStdio 以本地密钥钱包服务唯一的隐式会话，直到输入结束。
func runStdio(ctx context.Context, cfg *config.Config, deps *dependencies) error {
	log := logger.ForSession(logger.Named("stdio"), transport.StdioSessionID)
	network := cfg.Network()
	client := deps.chains.For(string(network))

	keypair, err := wallet.NewKeypairWallet(cfg.SolanaPrivateKey, client)
	if err != nil {
		return err
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		log.Warn("stdin is a terminal; expecting newline-delimited JSON-RPC messages")
	}
	if cfg.Server.MetricsAddr != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddr); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	t := transport.NewStdio(os.Stdin, os.Stdout)
	ag := agent.New(keypair, client, deps.catalog,
		agent.WithSessionID(t.SessionID()),
		agent.WithNetwork(network),
		agent.WithRecorder(deps.history),
		agent.WithEvents(deps.events),
		agent.WithAlerts(deps.alerts),
		agent.WithPriceSource(deps.prices),
		agent.WithSwapper(deps.swapper),
		agent.WithAPIKeys(deps.apiKeys),
		agent.WithActionTimeout(cfg.Actions.Timeout),
		agent.WithLogger(log),
	)
	server := mcp.NewServer(ag, mcp.WithServerInfo("solana-mcp", version), mcp.WithLogger(log))
	server.Bind(ctx, t)

	sess := session.New(t)
	sess.OnClose(func() {
		metrics.SetActiveSessions(0)
		_ = deps.events.Publish(context.Background(), events.New(events.TypeSessionClosed, t.SessionID(), nil))
	})
	if err := sess.Activate(); err != nil {
		return err
	}
	metrics.SetActiveSessions(1)
	_ = deps.events.Publish(ctx, events.New(events.TypeSessionOpened, t.SessionID(), map[string]string{
		"wallet":  keypair.PublicKey().String(),
		"network": string(network),
	}))
	log.Info("serving on stdio",
		slog.String("wallet", keypair.PublicKey().String()),
		slog.String("network", string(network)),
		slog.Int("actions", deps.catalog.Len()))

	serveErr := t.Serve(ctx)
	server.Wait()
	sess.Close()
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return nil
}
