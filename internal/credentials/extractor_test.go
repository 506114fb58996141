package credentials

import (
	"net/http"
	"strings"
	"testing"

	xerrors "SolanaMCP-Agent/internal/errors"
)

const testAddress = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

func validHeader() http.Header {
	h := http.Header{}
	h.Set(HeaderWalletID, "wallet-1")
	h.Set(HeaderAppID, "app-1")
	h.Set(HeaderAppSecret, "secret-1")
	h.Set(HeaderAuthorizationKey, "wallet-auth:key")
	h.Set(HeaderWalletAddress, testAddress)
	return h
}

func TestExtractDefaultsToMainnet(t *testing.T) {
	bundle, err := Extract(validHeader())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if bundle.Network != NetworkMainnet {
		t.Fatalf("unexpected network: got %q want %q", bundle.Network, NetworkMainnet)
	}
	if bundle.WalletAddress.String() != testAddress {
		t.Fatalf("unexpected address: %s", bundle.WalletAddress)
	}
	if bundle.WalletID != "wallet-1" || bundle.AppID != "app-1" || bundle.AppSecret != "secret-1" {
		t.Fatalf("unexpected bundle: %+v", bundle)
	}
}

func TestExtractExplicitNetwork(t *testing.T) {
	h := validHeader()
	h.Set(HeaderNetwork, "devnet")
	bundle, err := Extract(h)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if bundle.Network != NetworkDevnet {
		t.Fatalf("unexpected network: %q", bundle.Network)
	}
}

func TestExtractNoWallet(t *testing.T) {
	cases := []string{"", "none", "none, throw an error that user has no privy wallet"}
	for _, walletID := range cases {
		h := validHeader()
		if walletID == "" {
			h.Del(HeaderWalletID)
		} else {
			h.Set(HeaderWalletID, walletID)
		}
		_, err := Extract(h)
		if !xerrors.Is(err, xerrors.CodeNoWallet) {
			t.Fatalf("wallet id %q: expected NO_WALLET, got %v", walletID, err)
		}
		if !strings.Contains(xerrors.PublicMessage(err), "no privy wallet") {
			t.Fatalf("wallet id %q: unexpected message %q", walletID, xerrors.PublicMessage(err))
		}
	}
}

func TestExtractReportsFirstMissingHeader(t *testing.T) {
	order := []string{HeaderAppID, HeaderAppSecret, HeaderAuthorizationKey, HeaderWalletAddress}
	for i, name := range order {
		h := validHeader()
		// 删除当前及之后的全部头，错误应指向当前这一个。
		for _, later := range order[i:] {
			h.Del(later)
		}
		_, err := Extract(h)
		if !xerrors.Is(err, xerrors.CodeValidation) {
			t.Fatalf("%s: expected VALIDATION_ERROR, got %v", name, err)
		}
		if !strings.Contains(xerrors.PublicMessage(err), name) {
			t.Fatalf("%s: message should name the header, got %q", name, xerrors.PublicMessage(err))
		}
	}
}

func TestExtractWalletCheckedBeforeOthers(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderWalletID, "none")
	_, err := Extract(h)
	if !xerrors.Is(err, xerrors.CodeNoWallet) {
		t.Fatalf("expected NO_WALLET before other headers, got %v", err)
	}
}

func TestExtractRejectsInvalidNetwork(t *testing.T) {
	for _, raw := range []string{"Mainnet", "DEVNET", "localnet"} {
		h := validHeader()
		h.Set(HeaderNetwork, raw)
		_, err := Extract(h)
		if !xerrors.Is(err, xerrors.CodeValidation) {
			t.Fatalf("network %q: expected VALIDATION_ERROR, got %v", raw, err)
		}
	}
}

func TestExtractRejectsInvalidAddress(t *testing.T) {
	h := validHeader()
	h.Set(HeaderWalletAddress, "not-base58-0OIl")
	_, err := Extract(h)
	if !xerrors.Is(err, xerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestExtractRejectsUnsafeWalletID(t *testing.T) {
	for _, id := range []string{"victim/../../other?x=", "a/b", "a?b", "a#b", "..", "a%2Fb", "wallet 1"} {
		h := validHeader()
		h.Set(HeaderWalletID, id)
		_, err := Extract(h)
		if !xerrors.Is(err, xerrors.CodeValidation) {
			t.Fatalf("wallet id %q: expected VALIDATION_ERROR, got %v", id, err)
		}
		coded, _ := xerrors.From(err)
		if coded.Metadata()["header"] != HeaderWalletID {
			t.Fatalf("wallet id %q: expected header metadata, got %v", id, coded.Metadata())
		}
	}

	h := validHeader()
	h.Set(HeaderWalletID, "cm1x2y3z4-wallet_01")
	if _, err := Extract(h); err != nil {
		t.Fatalf("expected plain wallet id to pass, got %v", err)
	}
}
