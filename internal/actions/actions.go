package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"SolanaMCP-Agent/internal/chain"
	"SolanaMCP-Agent/internal/credentials"
	xerrors "SolanaMCP-Agent/internal/errors"
	"SolanaMCP-Agent/internal/wallet"
)

// Capability 描述工具运行时需要的权限。
type Capability string

const (
	// CapabilityRead 只读链上数据。
	CapabilityRead Capability = "chain.read"
	// CapabilitySign 需要钱包签名。
	CapabilitySign Capability = "wallet.sign"
	// CapabilityExternal 访问链以外的第三方接口。
	CapabilityExternal Capability = "external.http"
)

// Env 是工具执行时可见的会话能力。
type Env interface {
	Wallet() wallet.Wallet
	Chain() chain.Client
	Network() credentials.Network
	Prices() PriceSource
	Swapper() Swapper
}

// Handler 执行一次工具调用，返回值会被序列化为 JSON 文本。
type Handler func(ctx context.Context, env Env, input json.RawMessage) (any, error)

// Action 是目录中的一个工具。
type Action struct {
	Name         string
	Description  string
	InputSchema  json.RawMessage
	Capabilities []Capability
	Handler      Handler
}

// Bundle 是一组相关工具。
type Bundle struct {
	Name    string
	Actions []Action
}

// Catalog 是组合完成的只读工具目录。
type Catalog struct {
	order   []string
	actions map[string]Action
}

// Compose 依参数顺序合并能力包，工具名冲突时返回 INVALID_ARGUMENT。
func Compose(bundles ...Bundle) (*Catalog, error) {
	c := &Catalog{actions: make(map[string]Action)}
	owners := make(map[string]string)
	for _, bundle := range bundles {
		for _, action := range bundle.Actions {
			name := strings.TrimSpace(action.Name)
			if name == "" {
				return nil, xerrors.New(xerrors.CodeInvalidArgument,
					fmt.Sprintf("bundle %s contains an action without a name", bundle.Name))
			}
			if action.Handler == nil {
				return nil, xerrors.New(xerrors.CodeInvalidArgument,
					fmt.Sprintf("action %s has no handler", name))
			}
			if owner, exists := owners[name]; exists {
				return nil, xerrors.New(xerrors.CodeInvalidArgument,
					fmt.Sprintf("action %s is defined by both %s and %s", name, owner, bundle.Name))
			}
			if len(action.InputSchema) == 0 {
				action.InputSchema = emptySchema
			}
			action.Name = name
			owners[name] = bundle.Name
			c.actions[name] = action
			c.order = append(c.order, name)
		}
	}
	return c, nil
}

// Lookup 按名称查找工具。
func (c *Catalog) Lookup(name string) (Action, bool) {
	if c == nil {
		return Action{}, false
	}
	action, ok := c.actions[name]
	return action, ok
}

// List 按组合顺序返回全部工具。
func (c *Catalog) List() []Action {
	if c == nil {
		return nil
	}
	out := make([]Action, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.actions[name])
	}
	return out
}

// Len 返回工具数量。
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// Policy 限制目录中允许出现的能力。
type Policy struct {
	AllowedCapabilities []Capability `yaml:"allowedCapabilities"`
	DeniedCapabilities  []Capability `yaml:"deniedCapabilities"`
}

// Permits 判断工具声明的能力是否被策略允许。
func (p Policy) Permits(action Action) error {
	for _, capability := range action.Capabilities {
		if slices.Contains(p.DeniedCapabilities, capability) {
			return fmt.Errorf("capability %s is explicitly denied", capability)
		}
	}
	if len(p.AllowedCapabilities) == 0 {
		return nil
	}
	for _, capability := range action.Capabilities {
		if !slices.Contains(p.AllowedCapabilities, capability) {
			return fmt.Errorf("capability %s not permitted", capability)
		}
	}
	return nil
}

// Restrict 返回只包含策略允许工具的新目录，顺序不变。
func (c *Catalog) Restrict(policy Policy) *Catalog {
	out := &Catalog{actions: make(map[string]Action)}
	for _, action := range c.List() {
		if policy.Permits(action) != nil {
			continue
		}
		out.actions[action.Name] = action
		out.order = append(out.order, action.Name)
	}
	return out
}

var emptySchema = json.RawMessage(`{"type":"object","properties":{}}`)

// decodeInput 将工具参数解析到 out，空参数视为零值。
func decodeInput(input json.RawMessage, out any) error {
	trimmed := strings.TrimSpace(string(input))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(trimmed), out); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid tool arguments")
	}
	return nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, field+" is required")
	}
	return nil
}
