package actions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"

	"SolanaMCP-Agent/internal/chain"
	"SolanaMCP-Agent/internal/credentials"
	"SolanaMCP-Agent/internal/wallet"
)

type fakeWallet struct {
	mu      sync.Mutex
	key     solana.PrivateKey
	sent    []*solana.Transaction
	sendErr error
}

func newFakeWallet(t *testing.T) *fakeWallet {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &fakeWallet{key: key}
}

func (w *fakeWallet) Kind() wallet.Kind { return wallet.KindKeypair }

func (w *fakeWallet) PublicKey() solana.PublicKey { return w.key.PublicKey() }

func (w *fakeWallet) SignTransaction(_ context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	return tx, nil
}

func (w *fakeWallet) SignAllTransactions(_ context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error) {
	return txs, nil
}

func (w *fakeWallet) SendTransaction(ctx context.Context, tx *solana.Transaction) (string, error) {
	sig, err := w.SignAndSendTransaction(ctx, tx)
	return sig.String(), err
}

func (w *fakeWallet) SignAndSendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sendErr != nil {
		return solana.Signature{}, w.sendErr
	}
	w.sent = append(w.sent, tx)
	var sig solana.Signature
	sig[0] = byte(len(w.sent))
	return sig, nil
}

func (w *fakeWallet) SignMessage(_ context.Context, message []byte) ([]byte, error) {
	sig, err := w.key.Sign(message)
	if err != nil {
		return nil, err
	}
	return sig[:], nil
}

type fakeChain struct {
	lamports map[solana.PublicKey]uint64
	tokens   map[solana.PublicKey]chain.TokenBalance
	accounts map[solana.PublicKey]*chain.AccountInfo
	airdrops int
	tps      float64
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		lamports: map[solana.PublicKey]uint64{},
		tokens:   map[solana.PublicKey]chain.TokenBalance{},
		accounts: map[solana.PublicKey]*chain.AccountInfo{},
	}
}

func (c *fakeChain) Balance(_ context.Context, owner solana.PublicKey) (uint64, error) {
	return c.lamports[owner], nil
}

func (c *fakeChain) TokenBalances(context.Context, solana.PublicKey) ([]chain.TokenBalance, error) {
	var out []chain.TokenBalance
	for _, balance := range c.tokens {
		out = append(out, balance)
	}
	return out, nil
}

func (c *fakeChain) TokenAccountBalance(_ context.Context, account solana.PublicKey) (chain.TokenBalance, error) {
	balance, ok := c.tokens[account]
	if !ok {
		return chain.TokenBalance{}, chain.ErrAccountNotFound
	}
	return balance, nil
}

func (c *fakeChain) TPS(context.Context) (float64, error) { return c.tps, nil }

func (c *fakeChain) RequestAirdrop(context.Context, solana.PublicKey, uint64) (solana.Signature, error) {
	c.airdrops++
	return solana.Signature{9}, nil
}

func (c *fakeChain) LatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{1}, nil
}

func (c *fakeChain) AccountInfo(_ context.Context, account solana.PublicKey) (*chain.AccountInfo, error) {
	info, ok := c.accounts[account]
	if !ok {
		return nil, chain.ErrAccountNotFound
	}
	return info, nil
}

func (c *fakeChain) SendTransaction(context.Context, *solana.Transaction) (solana.Signature, error) {
	return solana.Signature{}, errors.New("not used")
}

func (c *fakeChain) Close() error { return nil }

type fakeEnv struct {
	wallet  *fakeWallet
	chain   *fakeChain
	network credentials.Network
	prices  PriceSource
	swapper Swapper
}

func (e *fakeEnv) Wallet() wallet.Wallet        { return e.wallet }
func (e *fakeEnv) Chain() chain.Client          { return e.chain }
func (e *fakeEnv) Network() credentials.Network { return e.network }
func (e *fakeEnv) Prices() PriceSource          { return e.prices }
func (e *fakeEnv) Swapper() Swapper             { return e.swapper }

func newEnv(t *testing.T) *fakeEnv {
	t.Helper()
	return &fakeEnv{wallet: newFakeWallet(t), chain: newFakeChain(), network: credentials.NetworkDevnet}
}

func programOf(tx *solana.Transaction, i int) solana.PublicKey {
	return tx.Message.AccountKeys[tx.Message.Instructions[i].ProgramIDIndex]
}
