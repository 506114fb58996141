package credentials

import (
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"

	xerrors "SolanaMCP-Agent/internal/errors"
)

// 连接建立时读取的请求头。
const (
	HeaderWalletID         = "X-Privy-Wallet-Id"
	HeaderAppID            = "X-Privy-App-Id"
	HeaderAppSecret        = "X-Privy-App-Secret"
	HeaderAuthorizationKey = "X-Privy-Authorization-Private-Key"
	HeaderWalletAddress    = "X-Wallet-Address"
	HeaderNetwork          = "X-Network"
)

// NoWalletSentinel 是上游客户端在用户没有托管钱包时填写的占位值。
const NoWalletSentinel = "none"

// Network 表示 Solana 集群名称。
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkDevnet  Network = "devnet"
	NetworkTestnet Network = "testnet"
)

// DefaultNetwork 在请求未携带 X-Network 时使用。
const DefaultNetwork = NetworkMainnet

// ParseNetwork 严格匹配三个集群名称，区分大小写。
func ParseNetwork(raw string) (Network, bool) {
	switch Network(raw) {
	case NetworkMainnet, NetworkDevnet, NetworkTestnet:
		return Network(raw), true
	default:
		return "", false
	}
}

// Bundle 是一次连接提供的全部托管凭证。
type Bundle struct {
	WalletID         string
	AppID            string
	AppSecret        string
	AuthorizationKey string
	WalletAddress    solana.PublicKey
	Network          Network
}

// IsNoWallet 判断钱包标识是否为“无钱包”占位值。
func IsNoWallet(walletID string) bool {
	id := strings.TrimSpace(walletID)
	if id == "" {
		return true
	}
	return id == NoWalletSentinel || strings.HasPrefix(id, NoWalletSentinel+",")
}

// NoWalletError 返回用户未开通托管钱包时的错误。
func NoWalletError() error {
	return xerrors.New(xerrors.CodeNoWallet, "user has no privy wallet")
}

// Extract 按固定顺序校验请求头并构造凭证，只做纯计算不访问网络。
func Extract(header http.Header) (Bundle, error) {
	var bundle Bundle

	walletID := header.Get(HeaderWalletID)
	if IsNoWallet(walletID) {
		return Bundle{}, NoWalletError()
	}
	bundle.WalletID = strings.TrimSpace(walletID)
	if !validWalletID(bundle.WalletID) {
		return Bundle{}, xerrors.New(xerrors.CodeValidation,
			"invalid "+HeaderWalletID+" header: unexpected characters in wallet id",
			xerrors.WithMetadata("header", HeaderWalletID))
	}

	required := []struct {
		name   string
		target *string
	}{
		{HeaderAppID, &bundle.AppID},
		{HeaderAppSecret, &bundle.AppSecret},
		{HeaderAuthorizationKey, &bundle.AuthorizationKey},
	}
	for _, item := range required {
		value := strings.TrimSpace(header.Get(item.name))
		if value == "" {
			return Bundle{}, missingHeader(item.name)
		}
		*item.target = value
	}

	address := strings.TrimSpace(header.Get(HeaderWalletAddress))
	if address == "" {
		return Bundle{}, missingHeader(HeaderWalletAddress)
	}
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return Bundle{}, xerrors.Wrap(xerrors.CodeValidation, err,
			"invalid "+HeaderWalletAddress+" header: not a base58 public key",
			xerrors.WithMetadata("header", HeaderWalletAddress))
	}
	bundle.WalletAddress = pubkey

	bundle.Network = DefaultNetwork
	if raw := header.Get(HeaderNetwork); raw != "" {
		network, ok := ParseNetwork(raw)
		if !ok {
			return Bundle{}, xerrors.New(xerrors.CodeValidation,
				"invalid "+HeaderNetwork+" header: must be mainnet, devnet or testnet",
				xerrors.WithMetadata("header", HeaderNetwork))
		}
		bundle.Network = network
	}
	return bundle, nil
}

// validWalletID 只接受可安全放入 URL 路径段的标识。
func validWalletID(id string) bool {
	if strings.Contains(id, "..") {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}

func missingHeader(name string) error {
	return xerrors.New(xerrors.CodeValidation, "missing required header: "+name,
		xerrors.WithMetadata("header", name))
}
