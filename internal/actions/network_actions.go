package actions

import (
	"context"
	"encoding/json"
	"errors"

	"SolanaMCP-Agent/internal/chain"
	xerrors "SolanaMCP-Agent/internal/errors"
)

// NetworkBundle 返回集群状态类工具。
func NetworkBundle() Bundle {
	return Bundle{
		Name: "network",
		Actions: []Action{
			{
				Name:         "GET_TPS",
				Description:  "Get the current transactions per second of the cluster.",
				Capabilities: []Capability{CapabilityRead},
				Handler:      getTPS,
			},
			{
				Name:         "GET_ASSET",
				Description:  "Get a summary of an on-chain account such as a token mint or NFT.",
				InputSchema:  json.RawMessage(`{"type":"object","properties":{"assetId":{"type":"string"}},"required":["assetId"]}`),
				Capabilities: []Capability{CapabilityRead},
				Handler:      getAsset,
			},
		},
	}
}

func getTPS(ctx context.Context, env Env, _ json.RawMessage) (any, error) {
	tps, err := env.Chain().TPS(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tps": tps, "network": string(env.Network())}, nil
}

func getAsset(ctx context.Context, env Env, input json.RawMessage) (any, error) {
	var args struct {
		AssetID string `json:"assetId"`
	}
	if err := decodeInput(input, &args); err != nil {
		return nil, err
	}
	if err := required("assetId", args.AssetID); err != nil {
		return nil, err
	}
	key, err := parseKey("assetId", args.AssetID)
	if err != nil {
		return nil, err
	}
	info, err := env.Chain().AccountInfo(ctx, key)
	if errors.Is(err, chain.ErrAccountNotFound) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "asset "+key.String()+" does not exist")
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"address":    info.Address.String(),
		"owner":      info.Owner.String(),
		"lamports":   info.Lamports,
		"sol":        chain.FormatSOL(info.Lamports),
		"executable": info.Executable,
		"data_len":   info.DataLen,
	}, nil
}
