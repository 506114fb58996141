package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"SolanaMCP-Agent/internal/credentials"
	xerrors "SolanaMCP-Agent/internal/errors"
)

type fakeSigner struct {
	key       solana.PrivateKey
	calls     int
	failOn    int
	skipSign  bool
	hash      string
	lastCAIP2 string
	signature json.RawMessage
}

func (f *fakeSigner) SignTransaction(_ context.Context, walletID string, raw []byte) ([]byte, error) {
	f.calls++
	if f.failOn > 0 && f.calls == f.failOn {
		return nil, errors.New("backend unavailable")
	}
	if f.skipSign {
		return raw, nil
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, err
	}
	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, err
	}
	sig, err := f.key.Sign(message)
	if err != nil {
		return nil, err
	}
	tx.Signatures[0] = sig
	return tx.MarshalBinary()
}

func (f *fakeSigner) SignAndSendTransaction(_ context.Context, walletID, caip2 string, raw []byte) (string, error) {
	f.calls++
	f.lastCAIP2 = caip2
	return f.hash, nil
}

func (f *fakeSigner) SignMessage(_ context.Context, walletID string, message []byte) (json.RawMessage, error) {
	f.calls++
	return f.signature, nil
}

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func newTransfer(t *testing.T, from solana.PublicKey) *solana.Transaction {
	t.Helper()
	to := newKey(t).PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1000, from, to).Build()},
		solana.Hash{},
		solana.TransactionPayer(from),
	)
	if err != nil {
		t.Fatalf("build transaction: %v", err)
	}
	return tx
}

func newCustody(t *testing.T, network credentials.Network, signer *fakeSigner) *CustodyWallet {
	t.Helper()
	w, err := NewCustodyWallet(credentials.Bundle{
		WalletID:      "wallet-1",
		WalletAddress: signer.key.PublicKey(),
		Network:       network,
	}, signer)
	if err != nil {
		t.Fatalf("new custody wallet: %v", err)
	}
	return w
}

func TestChainIDTable(t *testing.T) {
	cases := map[credentials.Network]string{
		credentials.NetworkMainnet: "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp",
		credentials.NetworkDevnet:  "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1",
		credentials.NetworkTestnet: "solana:4uhcVJyU9pJkvQyS88uRDiswHXSCkY3z",
	}
	for network, want := range cases {
		signer := &fakeSigner{key: newKey(t)}
		w := newCustody(t, network, signer)
		if w.ChainID() != want {
			t.Fatalf("%s: got %q want %q", network, w.ChainID(), want)
		}
		if !w.PublicKey().Equals(signer.key.PublicKey()) {
			t.Fatalf("%s: public key does not match the declared address", network)
		}
		if w.Kind() != KindCustody {
			t.Fatalf("unexpected kind %q", w.Kind())
		}
	}
}

func TestNewCustodyWalletRejectsNoWallet(t *testing.T) {
	signer := &fakeSigner{key: newKey(t)}
	_, err := NewCustodyWallet(credentials.Bundle{WalletID: "none", WalletAddress: signer.key.PublicKey()}, signer)
	if !xerrors.Is(err, xerrors.CodeNoWallet) {
		t.Fatalf("expected NO_WALLET, got %v", err)
	}
}

func TestCustodySignTransaction(t *testing.T) {
	signer := &fakeSigner{key: newKey(t)}
	w := newCustody(t, credentials.NetworkDevnet, signer)

	signed, err := w.SignTransaction(context.Background(), newTransfer(t, signer.key.PublicKey()))
	if err != nil {
		t.Fatalf("sign transaction: %v", err)
	}
	if len(signed.Signatures) == 0 || signed.Signatures[0] == (solana.Signature{}) {
		t.Fatalf("expected a populated signature")
	}
}

func TestCustodySignTransactionRejectsUnsignedResult(t *testing.T) {
	signer := &fakeSigner{key: newKey(t), skipSign: true}
	w := newCustody(t, credentials.NetworkMainnet, signer)

	_, err := w.SignTransaction(context.Background(), newTransfer(t, signer.key.PublicKey()))
	if !xerrors.Is(err, xerrors.CodeSigningFailure) {
		t.Fatalf("expected SIGNING_FAILURE, got %v", err)
	}
}

func TestCustodySignAllAbortsOnFirstFailure(t *testing.T) {
	signer := &fakeSigner{key: newKey(t), failOn: 2}
	w := newCustody(t, credentials.NetworkMainnet, signer)
	from := signer.key.PublicKey()
	txs := []*solana.Transaction{newTransfer(t, from), newTransfer(t, from), newTransfer(t, from)}

	out, err := w.SignAllTransactions(context.Background(), txs)
	if !xerrors.Is(err, xerrors.CodeSigningFailure) {
		t.Fatalf("expected SIGNING_FAILURE, got %v", err)
	}
	if out != nil {
		t.Fatalf("expected no partial result, got %d transactions", len(out))
	}
	if signer.calls != 2 {
		t.Fatalf("expected the third transaction to be skipped, got %d calls", signer.calls)
	}
}

func TestCustodySignAllPreservesOrder(t *testing.T) {
	signer := &fakeSigner{key: newKey(t)}
	w := newCustody(t, credentials.NetworkMainnet, signer)
	from := signer.key.PublicKey()
	txs := []*solana.Transaction{newTransfer(t, from), newTransfer(t, from)}

	out, err := w.SignAllTransactions(context.Background(), txs)
	if err != nil {
		t.Fatalf("sign all: %v", err)
	}
	if len(out) != len(txs) {
		t.Fatalf("expected %d transactions, got %d", len(txs), len(out))
	}
	for i := range txs {
		if !out[i].Message.AccountKeys[1].Equals(txs[i].Message.AccountKeys[1]) {
			t.Fatalf("transaction %d out of order", i)
		}
	}
}

func TestCustodySendTransactionUsesChainID(t *testing.T) {
	expected := solana.Signature{1, 2, 3}
	signer := &fakeSigner{key: newKey(t), hash: expected.String()}
	w := newCustody(t, credentials.NetworkTestnet, signer)
	tx := newTransfer(t, signer.key.PublicKey())

	hash, err := w.SendTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("send transaction: %v", err)
	}
	if hash != expected.String() {
		t.Fatalf("unexpected hash %q", hash)
	}
	if signer.lastCAIP2 != ChainID(credentials.NetworkTestnet) {
		t.Fatalf("unexpected chain id %q", signer.lastCAIP2)
	}

	sig, err := w.SignAndSendTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("sign and send: %v", err)
	}
	if sig != expected {
		t.Fatalf("unexpected signature %s", sig)
	}
}

func TestCustodySignAndSendRejectsMalformedHash(t *testing.T) {
	signer := &fakeSigner{key: newKey(t), hash: "not a signature"}
	w := newCustody(t, credentials.NetworkMainnet, signer)

	_, err := w.SignAndSendTransaction(context.Background(), newTransfer(t, signer.key.PublicKey()))
	if !xerrors.Is(err, xerrors.CodeSigningFailure) {
		t.Fatalf("expected SIGNING_FAILURE, got %v", err)
	}
}

func TestCustodySignMessageNormalizesShapes(t *testing.T) {
	want := []byte{1, 2, 3}
	shapes := map[string]string{
		"base64":  `"AQID"`,
		"buffer":  `{"type":"Buffer","data":[1,2,3]}`,
		"array":   `[1,2,3]`,
		"trimmed": ` [1, 2, 3] `,
	}
	for name, raw := range shapes {
		signer := &fakeSigner{key: newKey(t), signature: json.RawMessage(raw)}
		w := newCustody(t, credentials.NetworkMainnet, signer)
		got, err := w.SignMessage(context.Background(), []byte("hello"))
		if err != nil {
			t.Fatalf("%s: sign message: %v", name, err)
		}
		if string(got) != string(want) {
			t.Fatalf("%s: got %v want %v", name, got, want)
		}
	}
}

func TestNormalizeSignatureRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`true`, `[256]`, `{"type":"Buffer"}`, `"@@"`, ``} {
		if _, err := NormalizeSignature(json.RawMessage(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

type fakeSubmitter struct {
	submitted *solana.Transaction
}

func (f *fakeSubmitter) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.submitted = tx
	return tx.Signatures[0], nil
}

func TestKeypairWallet(t *testing.T) {
	key := newKey(t)
	submitter := &fakeSubmitter{}
	w, err := NewKeypairWallet(key.String(), submitter)
	if err != nil {
		t.Fatalf("new keypair wallet: %v", err)
	}
	if w.Kind() != KindKeypair || !w.PublicKey().Equals(key.PublicKey()) {
		t.Fatalf("unexpected wallet identity")
	}

	msg := []byte("hello")
	sig, err := w.SignMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("sign message: %v", err)
	}
	pub := key.PublicKey()
	if !ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig) {
		t.Fatalf("signature does not verify")
	}

	hash, err := w.SendTransaction(context.Background(), newTransfer(t, pub))
	if err != nil {
		t.Fatalf("send transaction: %v", err)
	}
	if submitter.submitted == nil || hash != submitter.submitted.Signatures[0].String() {
		t.Fatalf("transaction was not submitted as signed")
	}
}

func TestNewKeypairWalletRejectsBadKey(t *testing.T) {
	_, err := NewKeypairWallet("not-a-key", nil)
	if !xerrors.Is(err, xerrors.CodeConfiguration) {
		t.Fatalf("expected CONFIGURATION_ERROR, got %v", err)
	}
}
