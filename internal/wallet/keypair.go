package wallet

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	xerrors "SolanaMCP-Agent/internal/errors"
)

// Submitter 负责把已签名交易提交到链上。
type Submitter interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// KeypairWallet 使用进程内的私钥签名，仅用于 stdio 模式。
type KeypairWallet struct {
	key       solana.PrivateKey
	submitter Submitter
}

// NewKeypairWallet 从 base58 私钥构造钱包。
func NewKeypairWallet(secret string, submitter Submitter) (*KeypairWallet, error) {
	key, err := solana.PrivateKeyFromBase58(secret)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "invalid SOLANA_PRIVATE_KEY")
	}
	if len(key) != 64 {
		return nil, xerrors.New(xerrors.CodeConfiguration, "invalid SOLANA_PRIVATE_KEY: expected 64 bytes")
	}
	return &KeypairWallet{key: key, submitter: submitter}, nil
}

// Kind 实现 Wallet。
func (w *KeypairWallet) Kind() Kind { return KindKeypair }

// PublicKey 返回私钥对应的地址。
func (w *KeypairWallet) PublicKey() solana.PublicKey { return w.key.PublicKey() }

// SignTransaction 在本地签名交易。
func (w *KeypairWallet) SignTransaction(_ context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	if tx == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "transaction is required")
	}
	owner := w.key.PublicKey()
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if owner.Equals(key) {
			return &w.key
		}
		return nil
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSigningFailure, err, "sign transaction")
	}
	return tx, nil
}

// SignAllTransactions 逐个签名，任何一笔失败都会中止整批。
func (w *KeypairWallet) SignAllTransactions(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error) {
	return signAll(ctx, w, txs)
}

// SendTransaction 签名后通过 RPC 提交，返回交易哈希。
func (w *KeypairWallet) SendTransaction(ctx context.Context, tx *solana.Transaction) (string, error) {
	sig, err := w.SignAndSendTransaction(ctx, tx)
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}

// SignAndSendTransaction 签名后通过 RPC 提交。
func (w *KeypairWallet) SignAndSendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if w.submitter == nil {
		return solana.Signature{}, xerrors.New(xerrors.CodeInitializationFailure, "no RPC submitter configured")
	}
	signed, err := w.SignTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}
	sig, err := w.submitter.SendTransaction(ctx, signed)
	if err != nil {
		return solana.Signature{}, xerrors.Wrap(xerrors.CodeSigningFailure, err, "submit transaction")
	}
	return sig, nil
}

// SignMessage 使用 ed25519 签名任意消息。
func (w *KeypairWallet) SignMessage(_ context.Context, message []byte) ([]byte, error) {
	sig, err := w.key.Sign(message)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	return sig[:], nil
}
