package agent

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"strconv"
	"time"

	"SolanaMCP-Agent/internal/actions"
	"SolanaMCP-Agent/internal/chain"
	"SolanaMCP-Agent/internal/credentials"
	xerrors "SolanaMCP-Agent/internal/errors"
	"SolanaMCP-Agent/internal/events"
	"SolanaMCP-Agent/internal/history"
	"SolanaMCP-Agent/internal/observability/alerting"
	"SolanaMCP-Agent/internal/observability/metrics"
	"SolanaMCP-Agent/internal/wallet"
	"SolanaMCP-Agent/pkg/logger"
)

// Agent 是交给命令分发器的会话能力对象，实现 actions.Env。
type Agent struct {
	wallet    wallet.Wallet
	chain     chain.Client
	catalog   *actions.Catalog
	network   credentials.Network
	sessionID string
	prices    actions.PriceSource
	swapper   actions.Swapper
	recorder  history.Store
	events    events.Publisher
	alerts    alerting.Dispatcher
	apiKeys   map[string]string
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// WithNetwork 设置会话所在集群。
func WithNetwork(network credentials.Network) Option {
	return func(a *Agent) {
		if network != "" {
			a.network = network
		}
	}
}

// WithSessionID 设置写入执行记录与事件的会话标识。
func WithSessionID(id string) Option {
	return func(a *Agent) {
		a.sessionID = id
	}
}

// WithPriceSource 配置 GET_PRICE 使用的价格源。
func WithPriceSource(source actions.PriceSource) Option {
	return func(a *Agent) {
		a.prices = source
	}
}

// WithSwapper 配置 TRADE 使用的兑换服务。
func WithSwapper(swapper actions.Swapper) Option {
	return func(a *Agent) {
		a.swapper = swapper
	}
}

// WithRecorder 配置执行记录存储。
func WithRecorder(store history.Store) Option {
	return func(a *Agent) {
		a.recorder = store
	}
}

// WithEvents 配置事件发布器。
func WithEvents(publisher events.Publisher) Option {
	return func(a *Agent) {
		if publisher != nil {
			a.events = publisher
		}
	}
}

// WithAlerts 配置告警分发器，仅对需要告警的错误码生效。
func WithAlerts(dispatcher alerting.Dispatcher) Option {
	return func(a *Agent) {
		a.alerts = dispatcher
	}
}

// WithAPIKeys 设置透传给工具的第三方密钥。
func WithAPIKeys(keys map[string]string) Option {
	return func(a *Agent) {
		a.apiKeys = make(map[string]string, len(keys))
		for name, value := range keys {
			if value != "" {
				a.apiKeys[name] = value
			}
		}
	}
}

// WithActionTimeout 限制单次工具执行的时长，非正数表示不限制。
func WithActionTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		a.timeout = timeout
	}
}

// WithLogger 覆盖默认日志实例。
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// New 创建一个 Agent。
func New(w wallet.Wallet, c chain.Client, catalog *actions.Catalog, opts ...Option) *Agent {
	ag := &Agent{
		wallet:  w,
		chain:   c,
		catalog: catalog,
		network: credentials.DefaultNetwork,
		events:  events.Discard{},
		apiKeys: map[string]string{},
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	if ag.logger == nil {
		ag.logger = logger.ForSession(logger.Named("agent"), ag.sessionID)
	}
	return ag
}

// Wallet 返回会话钱包。
func (a *Agent) Wallet() wallet.Wallet { return a.wallet }

// Chain 返回会话集群的链客户端。
func (a *Agent) Chain() chain.Client { return a.chain }

// Network 返回会话集群。
func (a *Agent) Network() credentials.Network { return a.network }

// Prices 返回价格源，可能为 nil。
func (a *Agent) Prices() actions.PriceSource { return a.prices }

// Swapper 返回兑换服务，可能为 nil。
func (a *Agent) Swapper() actions.Swapper { return a.swapper }

// Catalog 返回工具目录。
func (a *Agent) Catalog() *actions.Catalog { return a.catalog }

// SessionID 返回会话标识。
func (a *Agent) SessionID() string { return a.sessionID }

// APIKey 返回透传的第三方密钥，未配置时为空。
func (a *Agent) APIKey(name string) string { return a.apiKeys[name] }

// Execute 按名称执行工具。
func (a *Agent) Execute(ctx context.Context, name string, input json.RawMessage) (any, error) {
	// 验证必要的组件是否已配置。
	if a.wallet == nil || a.chain == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "agent has no wallet or chain client")
	}
	action, ok := a.catalog.Lookup(name)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "unknown action "+name)
	}

	runCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	started := a.now()
	result, err := action.Handler(runCtx, a, input)
	if err != nil && stdErrors.Is(runCtx.Err(), context.DeadlineExceeded) && !xerrors.Is(err, xerrors.CodeTimeout) {
		err = xerrors.Wrap(xerrors.CodeTimeout, err, "action "+name+" timed out")
	}
	a.record(ctx, name, started, err)
	return result, err
}

// record 写入执行记录并发布事件，失败只记日志，不影响工具结果。
func (a *Agent) record(ctx context.Context, name string, started time.Time, execErr error) {
	status := history.StatusSucceeded
	elapsed := a.now().Sub(started)
	rec := &history.Record{
		SessionID:  a.sessionID,
		Wallet:     a.wallet.PublicKey().String(),
		Action:     name,
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  started.Unix(),
	}
	if execErr != nil {
		status = history.StatusFailed
		rec.ErrorCode = string(xerrors.CodeOf(execErr))
		rec.Error = xerrors.PublicMessage(execErr)
	}
	rec.Status = status
	metrics.ObserveToolCall(name, string(status), elapsed)

	if execErr != nil {
		a.logger.Warn("action failed", slog.String("action", name), slog.Any("error", execErr))
	} else {
		a.logger.Info("action executed", slog.String("action", name), slog.Int64("duration_ms", rec.DurationMS))
	}

	// 落库与事件不随调用方取消。
	bg := context.WithoutCancel(ctx)
	if a.recorder != nil {
		if err := a.recorder.Save(bg, rec); err != nil {
			a.logger.Error("save execution record", slog.String("action", name), slog.Any("error", err))
		}
	}
	attrs := map[string]string{
		"action":      name,
		"status":      string(status),
		"wallet":      rec.Wallet,
		"duration_ms": strconv.FormatInt(rec.DurationMS, 10),
	}
	if rec.ErrorCode != "" {
		attrs["error_code"] = rec.ErrorCode
	}
	if err := a.events.Publish(bg, events.New(events.TypeActionExecuted, a.sessionID, attrs)); err != nil {
		a.logger.Error("publish action event", slog.String("action", name), slog.Any("error", err))
	}
	if a.alerts == nil {
		return
	}
	if event, ok := alerting.FromError(execErr, a.sessionID, name, rec.Wallet, started); ok {
		if err := a.alerts.Notify(bg, event); err != nil {
			a.logger.Error("dispatch alert", slog.String("action", name), slog.Any("error", err))
		}
	}
}
