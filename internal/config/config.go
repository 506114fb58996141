package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"SolanaMCP-Agent/internal/credentials"
	xerrors "SolanaMCP-Agent/internal/errors"
)

// TransportMode 决定进程对外暴露的传输方式。
type TransportMode string

const (
	// ModeStdio 使用标准输入输出，整个进程只有一个隐式会话。
	ModeStdio TransportMode = "stdio"
	// ModeSSE 使用 HTTP 事件流，每个连接一个会话。
	ModeSSE TransportMode = "sse"
)

// Config 描述了进程启动阶段从环境变量加载的全部配置。
type Config struct {
	Transport        string `envconfig:"TRANSPORT"`
	Port             string `envconfig:"PORT"`
	SolanaPrivateKey string `envconfig:"SOLANA_PRIVATE_KEY"`
	RPCURL           string `envconfig:"RPC_URL"`

	// 各分组单独解析，避免 envconfig 给嵌套字段加前缀。
	Server  ServerConfig  `ignored:"true"`
	Chain   ChainConfig   `ignored:"true"`
	Custody CustodyConfig `ignored:"true"`
	Log     LogConfig     `ignored:"true"`
	Actions ActionsConfig `ignored:"true"`
	History HistoryConfig `ignored:"true"`
	Cache   CacheConfig   `ignored:"true"`
	Events  EventsConfig  `ignored:"true"`
	Alerts  AlertsConfig  `ignored:"true"`
	APIKeys APIKeys       `ignored:"true"`

	mode TransportMode
}

// ServerConfig 控制 HTTP 服务的监听参数。
type ServerConfig struct {
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
	KeepAlive       time.Duration `envconfig:"SSE_KEEPALIVE" default:"15s"`
	// MetricsAddr 仅在 stdio 模式下生效，SSE 模式直接挂在主服务的 /metrics。
	MetricsAddr string `envconfig:"METRICS_ADDR"`
}

// ChainConfig 允许为单个集群指定独立的 RPC 地址，未设置时使用 RPC_URL。
// Network 是 stdio 模式下本地钱包所在的集群。
type ChainConfig struct {
	Network       string `envconfig:"SOLANA_NETWORK" default:"mainnet"`
	MainnetRPCURL string `envconfig:"RPC_URL_MAINNET"`
	DevnetRPCURL  string `envconfig:"RPC_URL_DEVNET"`
	TestnetRPCURL string `envconfig:"RPC_URL_TESTNET"`
}

// Overrides 以集群名称为键返回非空的 RPC 地址。
func (c ChainConfig) Overrides() map[string]string {
	out := make(map[string]string)
	for name, url := range map[string]string{
		"mainnet": c.MainnetRPCURL,
		"devnet":  c.DevnetRPCURL,
		"testnet": c.TestnetRPCURL,
	} {
		if strings.TrimSpace(url) != "" {
			out[name] = url
		}
	}
	return out
}

// CustodyConfig 描述远程托管签名服务的访问参数。
// 托管调用不做自动重试，超时时间可配置。
type CustodyConfig struct {
	BaseURL string        `envconfig:"CUSTODY_BASE_URL" default:"https://api.privy.io"`
	Timeout time.Duration `envconfig:"CUSTODY_TIMEOUT" default:"30s"`
}

// LogConfig 对应 pkg/logger 的配置。
type LogConfig struct {
	Level     string `envconfig:"LOG_LEVEL" default:"info"`
	Format    string `envconfig:"LOG_FORMAT" default:"json"`
	Output    string `envconfig:"LOG_OUTPUT" default:"stderr"`
	AuditPath string `envconfig:"AUDIT_LOG_PATH"`
}

// ActionsConfig 指向可选的工具目录 YAML 文件。
type ActionsConfig struct {
	File    string        `envconfig:"ACTIONS_FILE"`
	Timeout time.Duration `envconfig:"ACTION_TIMEOUT" default:"2m"`
}

// HistoryConfig 控制执行记录的存储后端。
type HistoryConfig struct {
	Driver   string `envconfig:"HISTORY_DRIVER" default:"memory"`
	DSN      string `envconfig:"MYSQL_DSN"`
	Capacity int    `envconfig:"HISTORY_CAPACITY" default:"512"`
}

// CacheConfig 控制价格缓存后端。
type CacheConfig struct {
	Driver    string        `envconfig:"CACHE_DRIVER" default:"memory"`
	RedisAddr string        `envconfig:"REDIS_ADDR"`
	RedisPass string        `envconfig:"REDIS_PASSWORD"`
	RedisDB   int           `envconfig:"REDIS_DB" default:"0"`
	PriceTTL  time.Duration `envconfig:"PRICE_TTL" default:"30s"`
}

// EventsConfig 控制生命周期事件的投递方式。
type EventsConfig struct {
	Driver   string `envconfig:"EVENTS_DRIVER" default:"log"`
	AMQPURL  string `envconfig:"AMQP_URL"`
	Exchange string `envconfig:"AMQP_EXCHANGE" default:"solana-mcp.events"`
}

// AlertsConfig 控制工具失败告警的推送地址，为空时只写日志。
type AlertsConfig struct {
	WebhookURL string `envconfig:"ALERT_WEBHOOK_URL"`
}

// APIKeys 是透传给工具目录的第三方密钥，本进程不解析其内容。
type APIKeys struct {
	OpenAI  string `envconfig:"OPENAI_API_KEY"`
	Jupiter string `envconfig:"JUPITER_API_KEY"`
}

// Load 从环境变量解析配置并确定传输模式，但不做必填校验。
func Load() (*Config, error) {
	var cfg Config
	sections := []any{
		&cfg,
		&cfg.Server,
		&cfg.Chain,
		&cfg.Custody,
		&cfg.Log,
		&cfg.Actions,
		&cfg.History,
		&cfg.Cache,
		&cfg.Events,
		&cfg.Alerts,
		&cfg.APIKeys,
	}
	for _, section := range sections {
		if err := envconfig.Process("", section); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "failed to process config")
		}
	}
	mode, err := resolveMode(cfg.Transport, cfg.Port)
	if err != nil {
		return nil, err
	}
	cfg.mode = mode
	return &cfg, nil
}

// resolveMode 将显式的 TRANSPORT 与历史上的 PORT 约定统一成一个值。
func resolveMode(transport, port string) (TransportMode, error) {
	switch TransportMode(strings.ToLower(strings.TrimSpace(transport))) {
	case ModeStdio:
		return ModeStdio, nil
	case ModeSSE:
		return ModeSSE, nil
	case "":
		if strings.TrimSpace(port) != "" {
			return ModeSSE, nil
		}
		return ModeStdio, nil
	default:
		return "", xerrors.New(xerrors.CodeConfiguration,
			fmt.Sprintf("unsupported transport %q: use stdio or sse", transport))
	}
}

// Mode 返回启动时确定的传输模式。
func (c *Config) Mode() TransportMode {
	return c.mode
}

// Address 返回 HTTP 模式下的监听地址。
func (c *Config) Address() string {
	port := c.Port
	if port == "" {
		port = "3000"
	}
	return c.Server.Host + ":" + port
}

// requiredVar 是一个必填环境变量及其当前值。
type requiredVar struct {
	name  string
	value string
}

// Validate 检查必填环境变量，缺失时返回 CONFIGURATION_ERROR。
func (c *Config) Validate() error {
	var required []requiredVar
	if c.mode == ModeStdio {
		required = append(required, requiredVar{name: "SOLANA_PRIVATE_KEY", value: c.SolanaPrivateKey})
	}
	required = append(required, requiredVar{name: "RPC_URL", value: c.RPCURL})

	switch c.History.Driver {
	case "mysql":
		required = append(required, requiredVar{name: "MYSQL_DSN", value: c.History.DSN})
	}
	switch c.Cache.Driver {
	case "redis":
		required = append(required, requiredVar{name: "REDIS_ADDR", value: c.Cache.RedisAddr})
	}
	switch c.Events.Driver {
	case "rabbitmq":
		required = append(required, requiredVar{name: "AMQP_URL", value: c.Events.AMQPURL})
	}

	var missing []string
	for _, item := range required {
		if strings.TrimSpace(item.value) == "" {
			missing = append(missing, item.name)
		}
	}
	if len(missing) > 0 {
		return xerrors.New(xerrors.CodeConfiguration,
			"Missing required environment variables: "+strings.Join(missing, ", "))
	}
	if _, ok := credentials.ParseNetwork(c.Chain.Network); !ok {
		return xerrors.New(xerrors.CodeConfiguration,
			fmt.Sprintf("unsupported SOLANA_NETWORK %q: use mainnet, devnet or testnet", c.Chain.Network))
	}
	return nil
}

// Network 返回 stdio 模式下本地钱包所在的集群。
func (c *Config) Network() credentials.Network {
	network, ok := credentials.ParseNetwork(c.Chain.Network)
	if !ok {
		return credentials.DefaultNetwork
	}
	return network
}
