package actions

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"SolanaMCP-Agent/internal/chain"
	xerrors "SolanaMCP-Agent/internal/errors"
)

var (
	// NameServiceProgramID 是 SPL Name Service 程序地址。
	NameServiceProgramID = solana.MustPublicKeyFromBase58("namesLPneVptA9Z5rqUDD9tMTWEJwofgaYwp8cawRkX")
	// SolTLDAuthority 是 .sol 顶级域的父账户。
	SolTLDAuthority = solana.MustPublicKeyFromBase58("58PwtjSDuFHuUkYjH9BYnnQKHfwo9reZhC2zMJv9JPkx")
)

const (
	hashPrefix = "SPL Name Service"
	// 名称账户头部依次为 parent、owner、class，各 32 字节。
	nameHeaderLen = 96
)

// NamesBundle 返回域名解析工具。
func NamesBundle() Bundle {
	return Bundle{
		Name: "names",
		Actions: []Action{
			{
				Name:         "RESOLVE_DOMAIN",
				Description:  "Resolve a .sol domain to the wallet address that owns it.",
				InputSchema:  json.RawMessage(`{"type":"object","properties":{"domain":{"type":"string"}},"required":["domain"]}`),
				Capabilities: []Capability{CapabilityRead},
				Handler:      resolveDomain,
			},
		},
	}
}

func resolveDomain(ctx context.Context, env Env, input json.RawMessage) (any, error) {
	var args struct {
		Domain string `json:"domain"`
	}
	if err := decodeInput(input, &args); err != nil {
		return nil, err
	}
	if err := required("domain", args.Domain); err != nil {
		return nil, err
	}
	label, err := domainLabel(args.Domain)
	if err != nil {
		return nil, err
	}
	account, err := DomainAccount(label)
	if err != nil {
		return nil, err
	}
	info, err := env.Chain().AccountInfo(ctx, account)
	if errors.Is(err, chain.ErrAccountNotFound) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "domain "+label+".sol is not registered")
	}
	if err != nil {
		return nil, err
	}
	if len(info.Data) < nameHeaderLen {
		return nil, fmt.Errorf("name account %s is malformed", account)
	}
	owner := solana.PublicKeyFromBytes(info.Data[32:64])
	return map[string]string{
		"domain": label + ".sol",
		"owner":  owner.String(),
	}, nil
}

// domainLabel 去掉 .sol 后缀，子域名不在支持范围内。
func domainLabel(domain string) (string, error) {
	label := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".sol")
	if label == "" || strings.Contains(label, ".") {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "unsupported domain "+domain)
	}
	return label, nil
}

// DomainAccount 推导 .sol 二级域名对应的名称账户地址。
func DomainAccount(label string) (solana.PublicKey, error) {
	hashed := sha256.Sum256([]byte(hashPrefix + label))
	var class [32]byte
	account, _, err := solana.FindProgramAddress(
		[][]byte{hashed[:], class[:], SolTLDAuthority[:]},
		NameServiceProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive name account: %w", err)
	}
	return account, nil
}
