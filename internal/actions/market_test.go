package actions

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"SolanaMCP-Agent/internal/cache"
	xerrors "SolanaMCP-Agent/internal/errors"
)

const usdcMint = "EPjFWdd5AufqSSqeM2qFWHbdCeyUjXQNfGWWkQUHMa1v"

func TestJupiterPrice(t *testing.T) {
	t.Parallel()
	var gotKey atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/price/v3" || r.URL.Query().Get("ids") != usdcMint {
			http.NotFound(w, r)
			return
		}
		gotKey.Store(r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(`{"` + usdcMint + `":{"usdPrice":0.9998,"decimals":6}}`))
	}))
	defer server.Close()

	client := NewJupiterClient(WithJupiterBaseURL(server.URL), WithJupiterAPIKey("secret"))
	price, err := client.Price(context.Background(), usdcMint)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price != 0.9998 {
		t.Fatalf("unexpected price %v", price)
	}
	if gotKey.Load() != "secret" {
		t.Fatalf("expected api key header, got %v", gotKey.Load())
	}

	if _, err := client.Price(context.Background(), NativeMint); err == nil {
		t.Fatal("expected error for unknown mint")
	}
}

func TestJupiterPriceWithoutEntry(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := NewJupiterClient(WithJupiterBaseURL(server.URL)).Price(context.Background(), usdcMint)
	if !xerrors.Is(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

type countingPrices struct {
	calls atomic.Int32
	price float64
}

func (p *countingPrices) Price(context.Context, string) (float64, error) {
	p.calls.Add(1)
	return p.price, nil
}

func TestCachedPrices(t *testing.T) {
	t.Parallel()
	source := &countingPrices{price: 148.25}
	prices := NewCachedPrices(source, cache.NewMemoryCache(), time.Minute)

	for i := 0; i < 3; i++ {
		price, err := prices.Price(context.Background(), NativeMint)
		if err != nil {
			t.Fatalf("price: %v", err)
		}
		if price != 148.25 {
			t.Fatalf("unexpected price %v", price)
		}
	}
	if source.calls.Load() != 1 {
		t.Fatalf("expected a single upstream call, got %d", source.calls.Load())
	}

	uncached := NewCachedPrices(source, cache.NewMemoryCache(), 0)
	_, _ = uncached.Price(context.Background(), NativeMint)
	_, _ = uncached.Price(context.Background(), NativeMint)
	if source.calls.Load() != 3 {
		t.Fatalf("expected zero ttl to bypass the cache, got %d calls", source.calls.Load())
	}
}

func TestGetPriceRequiresSource(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	_, err := getPrice(context.Background(), env, json.RawMessage(`{"tokenId":"`+usdcMint+`"}`))
	if !xerrors.Is(err, xerrors.CodeInitializationFailure) {
		t.Fatalf("expected initialization failure, got %v", err)
	}

	env.prices = &countingPrices{price: 1}
	out, err := getPrice(context.Background(), env, json.RawMessage(`{"tokenId":"`+usdcMint+`"}`))
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if out.(map[string]any)["price"] != 1.0 {
		t.Fatalf("unexpected result %v", out)
	}
}

func TestTradeThroughJupiter(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	owner := env.wallet.PublicKey()

	swapTx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1, owner, owner).Build()},
		solana.Hash{7},
		solana.TransactionPayer(owner),
	)
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}
	raw, err := swapTx.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal tx: %v", err)
	}

	var quoteAmount, swapUser atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/swap/v1/quote":
			amount := r.URL.Query().Get("amount")
			quoteAmount.Store(amount)
			_, _ = w.Write([]byte(`{"inAmount":"` + amount + `","outAmount":"42"}`))
		case "/swap/v1/swap":
			var body struct {
				QuoteResponse map[string]string `json:"quoteResponse"`
				UserPublicKey string            `json:"userPublicKey"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.QuoteResponse["outAmount"] != "42" {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			swapUser.Store(body.UserPublicKey)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"swapTransaction": base64.StdEncoding.EncodeToString(raw),
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()
	env.swapper = NewJupiterClient(WithJupiterBaseURL(server.URL))

	input := `{"outputMint":"` + usdcMint + `","inputAmount":0.5}`
	if _, err := trade(context.Background(), env, json.RawMessage(input)); err != nil {
		t.Fatalf("trade: %v", err)
	}
	if quoteAmount.Load() != "500000000" {
		t.Fatalf("expected lamport amount in quote, got %v", quoteAmount.Load())
	}
	if swapUser.Load() != owner.String() {
		t.Fatalf("unexpected swap user %v", swapUser.Load())
	}
	if len(env.wallet.sent) != 1 || env.wallet.sent[0].Message.RecentBlockhash != (solana.Hash{7}) {
		t.Fatal("expected the swap transaction to be signed and sent")
	}
}

func TestTradeWithoutSwapper(t *testing.T) {
	t.Parallel()
	_, err := trade(context.Background(), newEnv(t), json.RawMessage(`{"outputMint":"`+usdcMint+`","inputAmount":1}`))
	if !xerrors.Is(err, xerrors.CodeInitializationFailure) {
		t.Fatalf("expected initialization failure, got %v", err)
	}
}
