package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	"SolanaMCP-Agent/internal/chain"
	"SolanaMCP-Agent/internal/credentials"
	xerrors "SolanaMCP-Agent/internal/errors"
)

// AirdropLamports 是 REQUEST_FUNDS 单次申请的数量。
const AirdropLamports = 5 * chain.LamportsPerSOL

// WalletBundle 返回钱包相关工具。
func WalletBundle() Bundle {
	return Bundle{
		Name: "wallet",
		Actions: []Action{
			{
				Name:        "WALLET_ADDRESS",
				Description: "Get the public address of the session wallet.",
				Handler:     walletAddress,
			},
			{
				Name:         "BALANCE",
				Description:  "Get the SOL balance of the session wallet, or its balance of an SPL token when tokenAddress is given.",
				InputSchema:  json.RawMessage(`{"type":"object","properties":{"tokenAddress":{"type":"string","description":"SPL token mint address"}}}`),
				Capabilities: []Capability{CapabilityRead},
				Handler:      balance,
			},
			{
				Name:         "TOKEN_BALANCES",
				Description:  "List the SOL balance and every SPL token balance of a wallet.",
				InputSchema:  json.RawMessage(`{"type":"object","properties":{"walletAddress":{"type":"string","description":"defaults to the session wallet"}}}`),
				Capabilities: []Capability{CapabilityRead},
				Handler:      tokenBalances,
			},
			{
				Name:         "TRANSFER",
				Description:  "Transfer SOL, or an SPL token when mint is given, from the session wallet.",
				InputSchema:  json.RawMessage(`{"type":"object","properties":{"to":{"type":"string"},"amount":{"type":"number"},"mint":{"type":"string"}},"required":["to","amount"]}`),
				Capabilities: []Capability{CapabilityRead, CapabilitySign},
				Handler:      transfer,
			},
			{
				Name:         "REQUEST_FUNDS",
				Description:  "Request 5 SOL from the cluster faucet. Unavailable on mainnet.",
				Capabilities: []Capability{CapabilityRead},
				Handler:      requestFunds,
			},
			{
				Name:         "SIGN_MESSAGE",
				Description:  "Sign a UTF-8 message with the session wallet.",
				InputSchema:  json.RawMessage(`{"type":"object","properties":{"message":{"type":"string"}},"required":["message"]}`),
				Capabilities: []Capability{CapabilitySign},
				Handler:      signMessage,
			},
		},
	}
}

func walletAddress(_ context.Context, env Env, _ json.RawMessage) (any, error) {
	return map[string]string{"address": env.Wallet().PublicKey().String()}, nil
}

func balance(ctx context.Context, env Env, input json.RawMessage) (any, error) {
	var args struct {
		TokenAddress string `json:"tokenAddress"`
	}
	if err := decodeInput(input, &args); err != nil {
		return nil, err
	}
	owner := env.Wallet().PublicKey()
	if args.TokenAddress == "" {
		lamports, err := env.Chain().Balance(ctx, owner)
		if err != nil {
			return nil, err
		}
		return map[string]any{"balance": chain.FormatSOL(lamports), "unit": "SOL"}, nil
	}

	mint, err := parseKey("tokenAddress", args.TokenAddress)
	if err != nil {
		return nil, err
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("derive token account: %w", err)
	}
	bal, err := env.Chain().TokenAccountBalance(ctx, ata)
	if errors.Is(err, chain.ErrAccountNotFound) {
		return map[string]any{"balance": "0", "token": mint.String()}, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"balance": bal.UIAmount, "token": mint.String()}, nil
}

func tokenBalances(ctx context.Context, env Env, input json.RawMessage) (any, error) {
	var args struct {
		WalletAddress string `json:"walletAddress"`
	}
	if err := decodeInput(input, &args); err != nil {
		return nil, err
	}
	owner := env.Wallet().PublicKey()
	if args.WalletAddress != "" {
		key, err := parseKey("walletAddress", args.WalletAddress)
		if err != nil {
			return nil, err
		}
		owner = key
	}
	lamports, err := env.Chain().Balance(ctx, owner)
	if err != nil {
		return nil, err
	}
	tokens, err := env.Chain().TokenBalances(ctx, owner)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		tokens = []chain.TokenBalance{}
	}
	return map[string]any{
		"wallet": owner.String(),
		"sol":    chain.FormatSOL(lamports),
		"tokens": tokens,
	}, nil
}

func transfer(ctx context.Context, env Env, input json.RawMessage) (any, error) {
	var args struct {
		To     string  `json:"to"`
		Amount float64 `json:"amount"`
		Mint   string  `json:"mint"`
	}
	if err := decodeInput(input, &args); err != nil {
		return nil, err
	}
	if err := required("to", args.To); err != nil {
		return nil, err
	}
	to, err := parseKey("to", args.To)
	if err != nil {
		return nil, err
	}
	if args.Amount <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "amount must be positive")
	}
	from := env.Wallet().PublicKey()

	var instructions []solana.Instruction
	if args.Mint == "" {
		lamports, err := chain.ParseSOL(args.Amount)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid amount")
		}
		instructions = append(instructions, system.NewTransferInstruction(lamports, from, to).Build())
	} else {
		mint, err := parseKey("mint", args.Mint)
		if err != nil {
			return nil, err
		}
		splInstructions, err := splTransfer(ctx, env, from, to, mint, args.Amount)
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, splInstructions...)
	}

	signature, err := submit(ctx, env, instructions)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"signature": signature.String(),
		"from":      from.String(),
		"to":        to.String(),
		"amount":    args.Amount,
	}
	if args.Mint != "" {
		out["mint"] = args.Mint
	}
	return out, nil
}

// splTransfer 构造代币转账指令，接收方关联账户不存在时先创建。
func splTransfer(ctx context.Context, env Env, from, to, mint solana.PublicKey, amount float64) ([]solana.Instruction, error) {
	source, _, err := solana.FindAssociatedTokenAddress(from, mint)
	if err != nil {
		return nil, fmt.Errorf("derive source token account: %w", err)
	}
	destination, _, err := solana.FindAssociatedTokenAddress(to, mint)
	if err != nil {
		return nil, fmt.Errorf("derive destination token account: %w", err)
	}
	held, err := env.Chain().TokenAccountBalance(ctx, source)
	if errors.Is(err, chain.ErrAccountNotFound) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "wallet holds no account for mint "+mint.String())
	}
	if err != nil {
		return nil, err
	}
	raw, err := toBaseUnits(amount, held.Decimals)
	if err != nil {
		return nil, err
	}
	if available, perr := strconv.ParseUint(held.Amount, 10, 64); perr == nil && available < raw {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "insufficient token balance")
	}

	var instructions []solana.Instruction
	if _, err := env.Chain().AccountInfo(ctx, destination); err != nil {
		if !errors.Is(err, chain.ErrAccountNotFound) {
			return nil, err
		}
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(from, to, mint).Build())
	}
	instructions = append(instructions, token.NewTransferCheckedInstruction(
		raw, held.Decimals, source, mint, destination, from, nil,
	).Build())
	return instructions, nil
}

func requestFunds(ctx context.Context, env Env, _ json.RawMessage) (any, error) {
	if env.Network() == credentials.NetworkMainnet {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "airdrops are not available on mainnet")
	}
	owner := env.Wallet().PublicKey()
	signature, err := env.Chain().RequestAirdrop(ctx, owner, AirdropLamports)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"signature": signature.String(),
		"amount":    chain.FormatSOL(AirdropLamports),
		"network":   string(env.Network()),
	}, nil
}

func signMessage(ctx context.Context, env Env, input json.RawMessage) (any, error) {
	var args struct {
		Message string `json:"message"`
	}
	if err := decodeInput(input, &args); err != nil {
		return nil, err
	}
	if err := required("message", args.Message); err != nil {
		return nil, err
	}
	signature, err := env.Wallet().SignMessage(ctx, []byte(args.Message))
	if err != nil {
		return nil, err
	}
	var sig solana.Signature
	copy(sig[:], signature)
	return map[string]string{
		"signature": sig.String(),
		"signer":    env.Wallet().PublicKey().String(),
	}, nil
}

// submit 以会话钱包为付款人组装交易，签名并广播。
func submit(ctx context.Context, env Env, instructions []solana.Instruction) (solana.Signature, error) {
	blockhash, err := env.Chain().LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(env.Wallet().PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}
	return env.Wallet().SignAndSendTransaction(ctx, tx)
}

func parseKey(field, value string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid "+field)
	}
	return key, nil
}

// toBaseUnits 按精度把界面数量换算为最小单位。
func toBaseUnits(amount float64, decimals uint8) (uint64, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "amount must be positive")
	}
	scaled := math.Round(amount * math.Pow10(int(decimals)))
	if scaled >= math.MaxUint64 {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "amount is too large")
	}
	if scaled < 1 {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "amount is below the token precision")
	}
	return uint64(scaled), nil
}
