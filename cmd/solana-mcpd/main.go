package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"SolanaMCP-Agent/internal/config"
	xerrors "SolanaMCP-Agent/internal/errors"
	"SolanaMCP-Agent/pkg/logger"
)

// version 在构建时通过 -ldflags 注入。
var version = "dev"

// main 是 solana-mcpd 的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		if xerrors.Is(err, xerrors.CodeConfiguration) {
			fmt.Fprintln(os.Stderr, xerrors.PublicMessage(err))
		} else {
			fmt.Fprintf(os.Stderr, "solana-mcpd: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:         cfg.Log.Level,
		Format:        cfg.Log.Format,
		OutputPaths:   []string{cfg.Log.Output},
		ReserveStdout: cfg.Mode() == config.ModeStdio,
		Audit: logger.AuditConfig{
			Enabled: cfg.Log.AuditPath != "",
			Path:    cfg.Log.AuditPath,
		},
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	deps, err := buildDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	switch cfg.Mode() {
	case config.ModeStdio:
		return runStdio(ctx, cfg, deps)
	default:
		return runSSE(ctx, cfg, deps)
	}
}
