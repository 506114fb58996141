package actions

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	xerrors "SolanaMCP-Agent/internal/errors"
)

// FileConfig 是 ACTIONS_FILE 指向的 YAML 目录文件。
//
//	bundles:
//	  - name: wallet
//	  - name: trading
//	    actions:
//	      - action: GET_PRICE
//	        name: price
//	policy:
//	  deniedCapabilities: [wallet.sign]
type FileConfig struct {
	Bundles []BundleConfig `yaml:"bundles"`
	Policy  Policy         `yaml:"policy"`
}

// BundleConfig 描述一个能力包。未列出 actions 时按名称引用内置能力包。
type BundleConfig struct {
	Name    string         `yaml:"name"`
	Actions []ActionConfig `yaml:"actions"`
}

// ActionConfig 选择一个内置工具，可重命名或替换描述。
type ActionConfig struct {
	Action      string `yaml:"action"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// LoadFile 读取并解析目录文件。
func LoadFile(path string) (FileConfig, error) {
	var cfg FileConfig
	if path == "" {
		return cfg, xerrors.New(xerrors.CodeConfiguration, "actions file path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, xerrors.Wrap(xerrors.CodeConfiguration, err, "read actions file")
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, xerrors.Wrap(xerrors.CodeConfiguration, err, "unmarshal actions file")
	}
	return cfg, nil
}

// Resolve 将文件配置解析为能力包，未配置任何包时使用内置默认值。
func (c FileConfig) Resolve() ([]Bundle, error) {
	if len(c.Bundles) == 0 {
		return DefaultBundles(), nil
	}
	bundles := make([]Bundle, 0, len(c.Bundles))
	for _, bc := range c.Bundles {
		name := strings.TrimSpace(bc.Name)
		if name == "" {
			return nil, xerrors.New(xerrors.CodeConfiguration, "bundle name cannot be empty")
		}
		if len(bc.Actions) == 0 {
			builtin, ok := BuiltinBundle(name)
			if !ok {
				return nil, xerrors.New(xerrors.CodeConfiguration,
					fmt.Sprintf("bundle %s lists no actions and is not a builtin bundle", name))
			}
			bundles = append(bundles, builtin)
			continue
		}
		bundle := Bundle{Name: name}
		for _, ac := range bc.Actions {
			action, err := BuiltinAction(strings.TrimSpace(ac.Action))
			if err != nil {
				return nil, err
			}
			if ac.Name != "" {
				action.Name = ac.Name
			}
			if ac.Description != "" {
				action.Description = ac.Description
			}
			bundle.Actions = append(bundle.Actions, action)
		}
		bundles = append(bundles, bundle)
	}
	return bundles, nil
}

// LoadCatalog 构建进程使用的目录。path 为空时返回默认目录。
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog()
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	bundles, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	catalog, err := Compose(bundles...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "compose actions catalog")
	}
	return catalog.Restrict(cfg.Policy), nil
}
