package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"SolanaMCP-Agent/sdk/go/solanamcp"
)

func main() {
	baseURL := os.Getenv("SOLANA_MCP_URL")
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}
	client := solanamcp.NewClient(baseURL, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	err := client.Connect(ctx, solanamcp.Credentials{
		WalletID:         os.Getenv("PRIVY_WALLET_ID"),
		AppID:            os.Getenv("PRIVY_APP_ID"),
		AppSecret:        os.Getenv("PRIVY_APP_SECRET"),
		AuthorizationKey: os.Getenv("PRIVY_AUTHORIZATION_KEY"),
		WalletAddress:    os.Getenv("WALLET_ADDRESS"),
		Network:          "devnet",
	})
	if err != nil {
		panic(err)
	}
	defer client.Close()
	fmt.Printf("connected with session %s\n", client.SessionID())

	info, err := client.Initialize(ctx, "solanamcp-example", "0.1.0")
	if err != nil {
		panic(err)
	}
	fmt.Printf("server %s %s (protocol %s)\n", info.ServerInfo.Name, info.ServerInfo.Version, info.ProtocolVersion)

	tools, err := client.ListTools(ctx)
	if err != nil {
		panic(err)
	}
	for _, tool := range tools {
		fmt.Printf("tool %s\n", tool.Name)
	}

	result, err := client.CallTool(ctx, "BALANCE", map[string]any{})
	if err != nil {
		panic(err)
	}
	if result.IsError {
		fmt.Printf("balance failed: %s\n", result.Text())
		return
	}
	fmt.Printf("balance: %s SOL\n", result.Text())
}
