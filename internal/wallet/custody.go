package wallet

import (
	"context"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"SolanaMCP-Agent/internal/credentials"
	"SolanaMCP-Agent/internal/custody"
	xerrors "SolanaMCP-Agent/internal/errors"
)

// CustodyWallet 把签名请求转发给远程托管服务，本地不持有私钥。
type CustodyWallet struct {
	publicKey solana.PublicKey
	walletID  string
	chainID   string
	signer    custody.Signer
}

// NewCustodyWallet 使用会话凭证与托管客户端构造钱包，链标识在构造时一次性确定。
func NewCustodyWallet(bundle credentials.Bundle, signer custody.Signer) (*CustodyWallet, error) {
	if credentials.IsNoWallet(bundle.WalletID) {
		return nil, credentials.NoWalletError()
	}
	if signer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "custody signer is required")
	}
	if bundle.WalletAddress.IsZero() {
		return nil, xerrors.New(xerrors.CodeValidation, "wallet address is required")
	}
	network := bundle.Network
	if network == "" {
		network = credentials.DefaultNetwork
	}
	chainID := ChainID(network)
	if chainID == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "unsupported network: "+string(network))
	}
	return &CustodyWallet{
		publicKey: bundle.WalletAddress,
		walletID:  bundle.WalletID,
		chainID:   chainID,
		signer:    signer,
	}, nil
}

// Kind 实现 Wallet。
func (w *CustodyWallet) Kind() Kind { return KindCustody }

// PublicKey 返回会话声明的钱包地址。
func (w *CustodyWallet) PublicKey() solana.PublicKey { return w.publicKey }

// ChainID 返回会话绑定的 CAIP-2 标识。
func (w *CustodyWallet) ChainID() string { return w.chainID }

// SignTransaction 请求托管服务签名并解析返回的交易。
func (w *CustodyWallet) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	raw, err := encodeTransaction(tx)
	if err != nil {
		return nil, err
	}
	signedRaw, err := w.signer.SignTransaction(ctx, w.walletID, raw)
	if err != nil {
		return nil, signingFailure(err, "sign transaction")
	}
	signed, err := solana.TransactionFromDecoder(bin.NewBinDecoder(signedRaw))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSigningFailure, err, "custody returned an undecodable transaction")
	}
	if !w.hasSignature(signed) {
		return nil, xerrors.New(xerrors.CodeSigningFailure, "custody returned a transaction without the wallet signature")
	}
	return signed, nil
}

// SignAllTransactions 逐个签名，任何一笔失败都会中止整批。
func (w *CustodyWallet) SignAllTransactions(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error) {
	return signAll(ctx, w, txs)
}

// SendTransaction 由托管服务签名并广播，返回交易哈希。
func (w *CustodyWallet) SendTransaction(ctx context.Context, tx *solana.Transaction) (string, error) {
	raw, err := encodeTransaction(tx)
	if err != nil {
		return "", err
	}
	hash, err := w.signer.SignAndSendTransaction(ctx, w.walletID, w.chainID, raw)
	if err != nil {
		return "", signingFailure(err, "sign and send transaction")
	}
	return hash, nil
}

// SignAndSendTransaction 与 SendTransaction 调用相同，但返回解析后的交易签名。
func (w *CustodyWallet) SignAndSendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	hash, err := w.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}
	sig, err := solana.SignatureFromBase58(hash)
	if err != nil {
		return solana.Signature{}, xerrors.Wrap(xerrors.CodeSigningFailure, err, "custody returned a malformed transaction hash")
	}
	return sig, nil
}

// SignMessage 请求托管服务签名任意消息，返回值总是字节切片。
func (w *CustodyWallet) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	raw, err := w.signer.SignMessage(ctx, w.walletID, message)
	if err != nil {
		return nil, signingFailure(err, "sign message")
	}
	sig, err := NormalizeSignature(raw)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSigningFailure, err, "custody returned a malformed signature")
	}
	return sig, nil
}

func (w *CustodyWallet) hasSignature(tx *solana.Transaction) bool {
	idx := signerIndex(tx, w.publicKey)
	if idx < 0 || idx >= len(tx.Signatures) {
		return false
	}
	return tx.Signatures[idx] != (solana.Signature{})
}

// encodeTransaction 序列化交易，未签名时补齐零值签名占位。
func encodeTransaction(tx *solana.Transaction) ([]byte, error) {
	if tx == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "transaction is required")
	}
	clone := *tx
	required := int(clone.Message.Header.NumRequiredSignatures)
	if len(clone.Signatures) < required {
		sigs := make([]solana.Signature, required)
		copy(sigs, clone.Signatures)
		clone.Signatures = sigs
	}
	raw, err := clone.MarshalBinary()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode transaction")
	}
	return raw, nil
}

// signingFailure 保留托管客户端已有的错误码，其余错误统一归为签名失败。
func signingFailure(err error, action string) error {
	if _, ok := xerrors.From(err); ok {
		return err
	}
	return xerrors.Wrap(xerrors.CodeSigningFailure, err, action+" failed")
}
