package actions

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"SolanaMCP-Agent/internal/cache"
	"SolanaMCP-Agent/internal/chain"
	xerrors "SolanaMCP-Agent/internal/errors"
)

const (
	// NativeMint 是 Jupiter 用来表示 SOL 的包装代币地址。
	NativeMint = "So11111111111111111111111111111111111111112"
	// DefaultJupiterBaseURL 是免密钥的 Jupiter 接口地址。
	DefaultJupiterBaseURL = "https://lite-api.jup.ag"
	// DefaultSlippageBps 是 TRADE 未指定滑点时的默认值。
	DefaultSlippageBps = 300

	jupiterAPIKeyHeader = "x-api-key"
	maxMarketResponse   = 4 << 20
)

// PriceSource 返回代币的美元价格。
type PriceSource interface {
	Price(ctx context.Context, mint string) (float64, error)
}

// SwapRequest 描述一次兑换报价请求，Amount 为输入代币的最小单位数量。
type SwapRequest struct {
	InputMint     string
	OutputMint    string
	Amount        uint64
	SlippageBps   int
	UserPublicKey solana.PublicKey
}

// Swapper 为兑换请求构造待签名交易。
type Swapper interface {
	Swap(ctx context.Context, req SwapRequest) (*solana.Transaction, error)
}

// MarketBundle 返回行情与兑换工具。
func MarketBundle() Bundle {
	return Bundle{
		Name: "market",
		Actions: []Action{
			{
				Name:         "GET_PRICE",
				Description:  "Get the USD price of a token by mint address.",
				InputSchema:  json.RawMessage(`{"type":"object","properties":{"tokenId":{"type":"string","description":"token mint address"}},"required":["tokenId"]}`),
				Capabilities: []Capability{CapabilityExternal},
				Handler:      getPrice,
			},
			{
				Name:         "TRADE",
				Description:  "Swap tokens through Jupiter using the session wallet.",
				InputSchema:  json.RawMessage(`{"type":"object","properties":{"outputMint":{"type":"string"},"inputAmount":{"type":"number"},"inputMint":{"type":"string","description":"defaults to SOL"},"slippageBps":{"type":"integer"}},"required":["outputMint","inputAmount"]}`),
				Capabilities: []Capability{CapabilityRead, CapabilitySign, CapabilityExternal},
				Handler:      trade,
			},
		},
	}
}

func getPrice(ctx context.Context, env Env, input json.RawMessage) (any, error) {
	var args struct {
		TokenID string `json:"tokenId"`
	}
	if err := decodeInput(input, &args); err != nil {
		return nil, err
	}
	if err := required("tokenId", args.TokenID); err != nil {
		return nil, err
	}
	prices := env.Prices()
	if prices == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "price source is not configured")
	}
	price, err := prices.Price(ctx, args.TokenID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tokenId": args.TokenID, "price": price, "currency": "USD"}, nil
}

func trade(ctx context.Context, env Env, input json.RawMessage) (any, error) {
	var args struct {
		OutputMint  string  `json:"outputMint"`
		InputAmount float64 `json:"inputAmount"`
		InputMint   string  `json:"inputMint"`
		SlippageBps int     `json:"slippageBps"`
	}
	if err := decodeInput(input, &args); err != nil {
		return nil, err
	}
	if err := required("outputMint", args.OutputMint); err != nil {
		return nil, err
	}
	if args.InputMint == "" {
		args.InputMint = NativeMint
	}
	if args.SlippageBps <= 0 {
		args.SlippageBps = DefaultSlippageBps
	}
	if _, err := parseKey("outputMint", args.OutputMint); err != nil {
		return nil, err
	}
	swapper := env.Swapper()
	if swapper == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "swap provider is not configured")
	}

	owner := env.Wallet().PublicKey()
	decimals, err := inputDecimals(ctx, env, owner, args.InputMint)
	if err != nil {
		return nil, err
	}
	amount, err := toBaseUnits(args.InputAmount, decimals)
	if err != nil {
		return nil, err
	}
	tx, err := swapper.Swap(ctx, SwapRequest{
		InputMint:     args.InputMint,
		OutputMint:    args.OutputMint,
		Amount:        amount,
		SlippageBps:   args.SlippageBps,
		UserPublicKey: owner,
	})
	if err != nil {
		return nil, err
	}
	signature, err := env.Wallet().SignAndSendTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"signature":   signature.String(),
		"inputMint":   args.InputMint,
		"outputMint":  args.OutputMint,
		"inputAmount": args.InputAmount,
	}, nil
}

func inputDecimals(ctx context.Context, env Env, owner solana.PublicKey, mint string) (uint8, error) {
	if mint == NativeMint {
		return 9, nil
	}
	key, err := parseKey("inputMint", mint)
	if err != nil {
		return 0, err
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, key)
	if err != nil {
		return 0, fmt.Errorf("derive token account: %w", err)
	}
	held, err := env.Chain().TokenAccountBalance(ctx, ata)
	if errors.Is(err, chain.ErrAccountNotFound) {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "wallet holds no account for mint "+mint)
	}
	if err != nil {
		return 0, err
	}
	return held.Decimals, nil
}

// JupiterClient 通过 Jupiter HTTP 接口查询价格并构造兑换交易。
type JupiterClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// JupiterOption 定义 JupiterClient 的可选配置。
type JupiterOption func(*JupiterClient)

// WithJupiterBaseURL 覆盖接口地址。
func WithJupiterBaseURL(baseURL string) JupiterOption {
	return func(c *JupiterClient) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithJupiterAPIKey 设置付费接口密钥。
func WithJupiterAPIKey(key string) JupiterOption {
	return func(c *JupiterClient) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithJupiterHTTPClient 使用自定义 HTTP 客户端。
func WithJupiterHTTPClient(httpClient *http.Client) JupiterOption {
	return func(c *JupiterClient) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewJupiterClient 创建客户端。
func NewJupiterClient(opts ...JupiterOption) *JupiterClient {
	c := &JupiterClient{
		baseURL:    DefaultJupiterBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Price 查询单个代币的美元价格。
func (c *JupiterClient) Price(ctx context.Context, mint string) (float64, error) {
	endpoint := c.baseURL + "/price/v3?ids=" + url.QueryEscape(mint)
	var out map[string]struct {
		USDPrice float64 `json:"usdPrice"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return 0, err
	}
	entry, ok := out[mint]
	if !ok {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "no price available for "+mint)
	}
	return entry.USDPrice, nil
}

// Swap 先获取报价，再请求对应的兑换交易。
func (c *JupiterClient) Swap(ctx context.Context, req SwapRequest) (*solana.Transaction, error) {
	query := url.Values{}
	query.Set("inputMint", req.InputMint)
	query.Set("outputMint", req.OutputMint)
	query.Set("amount", strconv.FormatUint(req.Amount, 10))
	query.Set("slippageBps", strconv.Itoa(req.SlippageBps))

	var quote json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/swap/v1/quote?"+query.Encode(), nil, &quote); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{
		"quoteResponse":    quote,
		"userPublicKey":    req.UserPublicKey.String(),
		"wrapAndUnwrapSol": true,
	})
	if err != nil {
		return nil, fmt.Errorf("encode swap request: %w", err)
	}
	var swap struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/swap/v1/swap", body, &swap); err != nil {
		return nil, err
	}
	if swap.SwapTransaction == "" {
		return nil, errors.New("jupiter swap response missing transaction")
	}
	raw, err := base64.StdEncoding.DecodeString(swap.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("decode swap transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("parse swap transaction: %w", err)
	}
	return tx, nil
}

func (c *JupiterClient) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build jupiter request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(jupiterAPIKeyHeader, c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("jupiter request failed: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxMarketResponse))
	if err != nil {
		return fmt.Errorf("read jupiter response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("jupiter returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode jupiter response: %w", err)
	}
	return nil
}

// CachedPrices 在 PriceSource 前加一层缓存。缓存故障时直接回源。
type CachedPrices struct {
	source PriceSource
	cache  cache.Cache
	ttl    time.Duration
}

// NewCachedPrices 包装价格源，ttl 非正数时不缓存。
func NewCachedPrices(source PriceSource, c cache.Cache, ttl time.Duration) *CachedPrices {
	return &CachedPrices{source: source, cache: c, ttl: ttl}
}

// Price 优先返回缓存中的价格。
func (p *CachedPrices) Price(ctx context.Context, mint string) (float64, error) {
	key := "price:" + mint
	if p.cache != nil && p.ttl > 0 {
		if cached, ok, err := p.cache.Get(ctx, key); err == nil && ok {
			if price, perr := strconv.ParseFloat(cached, 64); perr == nil {
				return price, nil
			}
		}
	}
	price, err := p.source.Price(ctx, mint)
	if err != nil {
		return 0, err
	}
	if p.cache != nil && p.ttl > 0 {
		_ = p.cache.Set(ctx, key, strconv.FormatFloat(price, 'f', -1, 64), p.ttl)
	}
	return price, nil
}
