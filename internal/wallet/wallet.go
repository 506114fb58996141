package wallet

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"SolanaMCP-Agent/internal/credentials"
)

// Kind 标识 Wallet 的具体实现。
type Kind string

const (
	KindCustody Kind = "custody"
	KindKeypair Kind = "keypair"
)

// Wallet 是工具层可见的固定签名能力集合。
type Wallet interface {
	Kind() Kind
	PublicKey() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
	SignAllTransactions(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (string, error)
	SignAndSendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
}

var chainIDs = map[credentials.Network]string{
	credentials.NetworkMainnet: "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp",
	credentials.NetworkDevnet:  "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1",
	credentials.NetworkTestnet: "solana:4uhcVJyU9pJkvQyS88uRDiswHXSCkY3z",
}

// ChainID 返回集群对应的 CAIP-2 标识，未知集群返回空字符串。
func ChainID(network credentials.Network) string {
	return chainIDs[network]
}

// signAll 依次签名，保持顺序，遇到第一个失败立即中止。
func signAll(ctx context.Context, w Wallet, txs []*solana.Transaction) ([]*solana.Transaction, error) {
	signed := make([]*solana.Transaction, 0, len(txs))
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := w.SignTransaction(ctx, tx)
		if err != nil {
			return nil, err
		}
		signed = append(signed, out)
	}
	return signed, nil
}

// signerIndex 返回公钥在交易签名者列表中的位置。
func signerIndex(tx *solana.Transaction, key solana.PublicKey) int {
	required := int(tx.Message.Header.NumRequiredSignatures)
	for i, account := range tx.Message.AccountKeys {
		if i >= required {
			break
		}
		if account.Equals(key) {
			return i
		}
	}
	return -1
}
