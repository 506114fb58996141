package chain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL uint64 = 1_000_000_000

// ErrAccountNotFound is returned when an account does not exist on chain.
var ErrAccountNotFound = errors.New("account not found")

// TokenBalance describes one SPL token account held by an owner.
type TokenBalance struct {
	Account  solana.PublicKey `json:"account"`
	Mint     solana.PublicKey `json:"mint"`
	Amount   string           `json:"amount"`
	Decimals uint8            `json:"decimals"`
	UIAmount string           `json:"ui_amount"`
}

// AccountInfo is a summarized view of an on-chain account.
type AccountInfo struct {
	Address    solana.PublicKey `json:"address"`
	Owner      solana.PublicKey `json:"owner"`
	Lamports   uint64           `json:"lamports"`
	Executable bool             `json:"executable"`
	Data       []byte           `json:"-"`
	DataLen    int              `json:"data_len"`
}

// Client defines the chain operations used by actions and wallets.
type Client interface {
	Balance(ctx context.Context, owner solana.PublicKey) (uint64, error)
	TokenBalances(ctx context.Context, owner solana.PublicKey) ([]TokenBalance, error)
	TokenAccountBalance(ctx context.Context, account solana.PublicKey) (TokenBalance, error)
	TPS(ctx context.Context) (float64, error)
	RequestAirdrop(ctx context.Context, owner solana.PublicKey, lamports uint64) (solana.Signature, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	AccountInfo(ctx context.Context, account solana.PublicKey) (*AccountInfo, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	Close() error
}

// RPCClient implements Client on top of solana-go's rpc package.
type RPCClient struct {
	name       string
	endpoint   string
	rpc        *rpc.Client
	commitment rpc.CommitmentType
}

// Config describes a single RPC endpoint.
type Config struct {
	Name       string
	RPCURL     string
	Commitment rpc.CommitmentType
}

// NewRPCClient creates a client for the given endpoint. No request is made.
func NewRPCClient(cfg Config) (*RPCClient, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("rpc url is required")
	}
	commitment := cfg.Commitment
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &RPCClient{
		name:       cfg.Name,
		endpoint:   cfg.RPCURL,
		rpc:        rpc.New(cfg.RPCURL),
		commitment: commitment,
	}, nil
}

// Name returns the configured cluster name.
func (c *RPCClient) Name() string { return c.name }

// Endpoint returns the RPC URL.
func (c *RPCClient) Endpoint() string { return c.endpoint }

// Balance returns the SOL balance of owner in lamports.
func (c *RPCClient) Balance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	out, err := c.rpc.GetBalance(ctx, owner, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return out.Value, nil
}

// TokenBalances lists every SPL token account owned by owner, sorted by mint.
func (c *RPCClient) TokenBalances(ctx context.Context, owner solana.PublicKey) ([]TokenBalance, error) {
	programID := token.ProgramID
	out, err := c.rpc.GetTokenAccountsByOwner(ctx, owner,
		&rpc.GetTokenAccountsConfig{ProgramId: &programID},
		&rpc.GetTokenAccountsOpts{Commitment: c.commitment, Encoding: solana.EncodingBase64},
	)
	if err != nil {
		return nil, fmt.Errorf("get token accounts: %w", err)
	}

	balances := make([]TokenBalance, 0, len(out.Value))
	for _, acc := range out.Value {
		if acc == nil || acc.Account.Data == nil {
			continue
		}
		var decoded token.Account
		if err := bin.NewBinDecoder(acc.Account.Data.GetBinary()).Decode(&decoded); err != nil {
			return nil, fmt.Errorf("decode token account %s: %w", acc.Pubkey, err)
		}
		balance, err := c.TokenAccountBalance(ctx, acc.Pubkey)
		if err != nil {
			return nil, err
		}
		balance.Mint = decoded.Mint
		balances = append(balances, balance)
	}
	sort.Slice(balances, func(i, j int) bool {
		return balances[i].Mint.String() < balances[j].Mint.String()
	})
	return balances, nil
}

// TokenAccountBalance returns the amount held by a single token account.
func (c *RPCClient) TokenAccountBalance(ctx context.Context, account solana.PublicKey) (TokenBalance, error) {
	out, err := c.rpc.GetTokenAccountBalance(ctx, account, c.commitment)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return TokenBalance{}, ErrAccountNotFound
		}
		return TokenBalance{}, fmt.Errorf("get token account balance: %w", err)
	}
	if out.Value == nil {
		return TokenBalance{Account: account, Amount: "0"}, nil
	}
	return TokenBalance{
		Account:  account,
		Amount:   out.Value.Amount,
		Decimals: out.Value.Decimals,
		UIAmount: out.Value.UiAmountString,
	}, nil
}

// TPS averages transactions per second over the most recent performance samples.
func (c *RPCClient) TPS(ctx context.Context) (float64, error) {
	limit := uint(1)
	samples, err := c.rpc.GetRecentPerformanceSamples(ctx, &limit)
	if err != nil {
		return 0, fmt.Errorf("get performance samples: %w", err)
	}
	var txs, secs uint64
	for _, sample := range samples {
		if sample == nil {
			continue
		}
		txs += sample.NumTransactions
		secs += uint64(sample.SamplePeriodSecs)
	}
	if secs == 0 {
		return 0, errors.New("no performance samples available")
	}
	return math.Round(float64(txs)/float64(secs)*100) / 100, nil
}

// RequestAirdrop asks the cluster faucet for lamports. Mainnet rejects it.
func (c *RPCClient) RequestAirdrop(ctx context.Context, owner solana.PublicKey, lamports uint64) (solana.Signature, error) {
	sig, err := c.rpc.RequestAirdrop(ctx, owner, lamports, c.commitment)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("request airdrop: %w", err)
	}
	return sig, nil
}

// LatestBlockhash returns the latest finalized blockhash.
func (c *RPCClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	if out.Value == nil {
		return solana.Hash{}, errors.New("get latest blockhash: empty response")
	}
	return out.Value.Blockhash, nil
}

// AccountInfo fetches an account; ErrAccountNotFound is returned for missing accounts.
func (c *RPCClient) AccountInfo(ctx context.Context, account solana.PublicKey) (*AccountInfo, error) {
	out, err := c.rpc.GetAccountInfo(ctx, account)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account info: %w", err)
	}
	if out == nil || out.Value == nil {
		return nil, ErrAccountNotFound
	}
	info := &AccountInfo{
		Address:    account,
		Owner:      out.Value.Owner,
		Lamports:   out.Value.Lamports,
		Executable: out.Value.Executable,
	}
	if out.Value.Data != nil {
		info.Data = out.Value.Data.GetBinary()
		info.DataLen = len(info.Data)
	}
	return info, nil
}

// SendTransaction submits a signed transaction with preflight checks.
func (c *RPCClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

// Close releases the underlying HTTP transport.
func (c *RPCClient) Close() error {
	if c == nil || c.rpc == nil {
		return nil
	}
	return c.rpc.Close()
}

// FormatSOL renders lamports as a decimal SOL amount.
func FormatSOL(lamports uint64) string {
	whole := lamports / LamportsPerSOL
	frac := lamports % LamportsPerSOL
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	s := fmt.Sprintf("%d.%09d", whole, frac)
	for s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	return s
}

// ParseSOL converts a decimal SOL amount into lamports.
func ParseSOL(amount float64) (uint64, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("amount must be positive, got %v", amount)
	}
	lamports := math.Round(amount * float64(LamportsPerSOL))
	if lamports > math.MaxUint64 {
		return 0, fmt.Errorf("amount too large: %v", amount)
	}
	return uint64(lamports), nil
}
