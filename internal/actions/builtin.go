package actions

import (
	"fmt"
	"sort"

	xerrors "SolanaMCP-Agent/internal/errors"
)

// unsupported 中的工具名保留在目录命名空间内，但本服务不提供实现。
var unsupported = map[string]struct{}{
	"DEPLOY_TOKEN": {},
	"MINT_NFT":     {},
}

// DefaultBundles 按固定顺序返回内置能力包。
func DefaultBundles() []Bundle {
	return []Bundle{WalletBundle(), NetworkBundle(), MarketBundle(), NamesBundle()}
}

// DefaultCatalog 组合全部内置能力包。
func DefaultCatalog() (*Catalog, error) {
	return Compose(DefaultBundles()...)
}

// BuiltinBundle 按名称返回内置能力包。
func BuiltinBundle(name string) (Bundle, bool) {
	for _, bundle := range DefaultBundles() {
		if bundle.Name == name {
			return bundle, true
		}
	}
	return Bundle{}, false
}

// BuiltinAction 按规范名称返回内置工具。
func BuiltinAction(name string) (Action, error) {
	if _, ok := unsupported[name]; ok {
		return Action{}, xerrors.New(xerrors.CodeConfiguration,
			fmt.Sprintf("action %s is not supported by this server", name))
	}
	for _, bundle := range DefaultBundles() {
		for _, action := range bundle.Actions {
			if action.Name == name {
				return action, nil
			}
		}
	}
	return Action{}, xerrors.New(xerrors.CodeConfiguration, fmt.Sprintf("unknown action %s", name))
}

// BuiltinNames 返回全部内置工具名，按字母序排列。
func BuiltinNames() []string {
	var names []string
	for _, bundle := range DefaultBundles() {
		for _, action := range bundle.Actions {
			names = append(names, action.Name)
		}
	}
	sort.Strings(names)
	return names
}
