package config

import (
	"os"
	"testing"
	"time"

	xerrors "SolanaMCP-Agent/internal/errors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TRANSPORT", "PORT", "SOLANA_PRIVATE_KEY", "RPC_URL",
		"HISTORY_DRIVER", "CACHE_DRIVER", "EVENTS_DRIVER", "MYSQL_DSN", "REDIS_ADDR", "AMQP_URL",
		"CUSTODY_TIMEOUT", "RPC_URL_DEVNET", "SOLANA_NETWORK", "ACTION_TIMEOUT", "SSE_KEEPALIVE", "METRICS_ADDR", "ALERT_WEBHOOK_URL",
	} {
		// 先用 Setenv 登记恢复，再删除，保证 default 标签生效。
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func TestLoadResolvesMode(t *testing.T) {
	cases := []struct {
		name      string
		transport string
		port      string
		want      TransportMode
	}{
		{name: "no port means stdio", want: ModeStdio},
		{name: "port means sse", port: "3000", want: ModeSSE},
		{name: "explicit stdio wins over port", transport: "stdio", port: "3000", want: ModeStdio},
		{name: "explicit sse", transport: "SSE", want: ModeSSE},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("TRANSPORT", tc.transport)
			t.Setenv("PORT", tc.port)
			cfg, err := Load()
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if cfg.Mode() != tc.want {
				t.Fatalf("unexpected mode: got %s want %s", cfg.Mode(), tc.want)
			}
		})
	}
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSPORT", "websocket")
	if _, err := Load(); !xerrors.Is(err, xerrors.CodeConfiguration) {
		t.Fatalf("expected CONFIGURATION_ERROR, got %v", err)
	}
}

func TestValidateListsMissingVariables(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	err = cfg.Validate()
	if !xerrors.Is(err, xerrors.CodeConfiguration) {
		t.Fatalf("expected CONFIGURATION_ERROR, got %v", err)
	}
	want := "Missing required environment variables: SOLANA_PRIVATE_KEY, RPC_URL"
	if xerrors.PublicMessage(err) != want {
		t.Fatalf("unexpected message: got %q want %q", xerrors.PublicMessage(err), want)
	}
}

func TestValidateSSEDoesNotNeedPrivateKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("RPC_URL", "https://api.devnet.solana.com")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Address() != "0.0.0.0:8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestValidateDriverDependencies(t *testing.T) {
	clearEnv(t)
	t.Setenv("SOLANA_PRIVATE_KEY", "key")
	t.Setenv("RPC_URL", "https://rpc")
	t.Setenv("HISTORY_DRIVER", "mysql")
	t.Setenv("CACHE_DRIVER", "redis")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := "Missing required environment variables: MYSQL_DSN, REDIS_ADDR"
	if got := xerrors.PublicMessage(cfg.Validate()); got != want {
		t.Fatalf("unexpected message: got %q want %q", got, want)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CUSTODY_TIMEOUT", "5s")
	t.Setenv("RPC_URL_DEVNET", "https://devnet")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Custody.Timeout != 5*time.Second {
		t.Fatalf("unexpected custody timeout %s", cfg.Custody.Timeout)
	}
	if cfg.Custody.BaseURL != "https://api.privy.io" {
		t.Fatalf("unexpected custody base url %q", cfg.Custody.BaseURL)
	}
	if cfg.History.Driver != "memory" || cfg.Cache.Driver != "memory" || cfg.Events.Driver != "log" {
		t.Fatalf("unexpected driver defaults: %+v %+v %+v", cfg.History, cfg.Cache, cfg.Events)
	}
	overrides := cfg.Chain.Overrides()
	if len(overrides) != 1 || overrides["devnet"] != "https://devnet" {
		t.Fatalf("unexpected overrides %v", overrides)
	}
	if cfg.Network() != "mainnet" || cfg.Actions.Timeout != 2*time.Minute || cfg.Server.KeepAlive != 15*time.Second {
		t.Fatalf("unexpected defaults: network=%s action=%s keepalive=%s",
			cfg.Network(), cfg.Actions.Timeout, cfg.Server.KeepAlive)
	}
}

func TestValidateRejectsUnknownNetwork(t *testing.T) {
	clearEnv(t)
	t.Setenv("SOLANA_PRIVATE_KEY", "key")
	t.Setenv("RPC_URL", "https://rpc")
	t.Setenv("SOLANA_NETWORK", "Devnet")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); !xerrors.Is(err, xerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
