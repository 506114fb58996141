package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"SolanaMCP-Agent/internal/actions"
	"SolanaMCP-Agent/internal/chain"
	"SolanaMCP-Agent/internal/credentials"
	"SolanaMCP-Agent/internal/custody"
	xerrors "SolanaMCP-Agent/internal/errors"
	"SolanaMCP-Agent/internal/events"
	"SolanaMCP-Agent/internal/history"
	"SolanaMCP-Agent/internal/observability/alerting"
	"SolanaMCP-Agent/internal/observability/metrics"
	"SolanaMCP-Agent/internal/session"
	"SolanaMCP-Agent/pkg/logger"
)

const (
	// SSEPath 是建立事件流的路径。
	SSEPath = "/sse"
	// MessagesPath 是客户端回传消息的路径。
	MessagesPath = "/messages"
	// HistoryPath 返回最近的工具执行记录。
	HistoryPath = "/history"

	defaultHistoryLimit = 20
	maxHistoryLimit     = 200

	maxMessageBytes = 4 << 20
)

// SignerFactory 根据会话凭证创建托管签名客户端。
type SignerFactory func(bundle credentials.Bundle) (custody.Signer, error)

// Server 是 SSE 模式下的 HTTP 服务。
type Server struct {
	addr     string
	sessions *session.Registry
	chains   *chain.Registry
	catalog  *actions.Catalog

	newSigner       SignerFactory
	history         history.Store
	events          events.Publisher
	alerts          alerting.Dispatcher
	prices          actions.PriceSource
	swapper         actions.Swapper
	apiKeys         map[string]string
	actionTimeout   time.Duration
	keepAlive       time.Duration
	shutdownTimeout time.Duration
	name            string
	version         string
	logger          *slog.Logger
}

// Option 定义 Server 的可选配置。
type Option func(*Server)

// WithCustodyOptions 使用默认工厂创建托管客户端，并附加客户端选项。
func WithCustodyOptions(opts ...custody.Option) Option {
	return func(s *Server) {
		s.newSigner = func(bundle credentials.Bundle) (custody.Signer, error) {
			return custody.NewClient(custody.Credentials{
				AppID:            bundle.AppID,
				AppSecret:        bundle.AppSecret,
				AuthorizationKey: bundle.AuthorizationKey,
			}, opts...)
		}
	}
}

// WithSignerFactory 替换托管客户端工厂。
func WithSignerFactory(factory SignerFactory) Option {
	return func(s *Server) {
		if factory != nil {
			s.newSigner = factory
		}
	}
}

// WithHistory 配置执行记录存储。
func WithHistory(store history.Store) Option {
	return func(s *Server) { s.history = store }
}

// WithEvents 配置事件发布器。
func WithEvents(publisher events.Publisher) Option {
	return func(s *Server) {
		if publisher != nil {
			s.events = publisher
		}
	}
}

// WithAlerts 配置工具失败告警。
func WithAlerts(dispatcher alerting.Dispatcher) Option {
	return func(s *Server) { s.alerts = dispatcher }
}

// WithMarket 配置价格源与兑换服务。
func WithMarket(prices actions.PriceSource, swapper actions.Swapper) Option {
	return func(s *Server) {
		s.prices = prices
		s.swapper = swapper
	}
}

// WithAPIKeys 设置透传给工具的第三方密钥。
func WithAPIKeys(keys map[string]string) Option {
	return func(s *Server) { s.apiKeys = keys }
}

// WithActionTimeout 限制单次工具执行时长。
func WithActionTimeout(timeout time.Duration) Option {
	return func(s *Server) { s.actionTimeout = timeout }
}

// WithKeepAlive 设置事件流保活间隔。
func WithKeepAlive(interval time.Duration) Option {
	return func(s *Server) { s.keepAlive = interval }
}

// WithShutdownTimeout 设置优雅关闭的最长等待时间。
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.shutdownTimeout = timeout
		}
	}
}

// WithServerInfo 设置 MCP initialize 返回的名称与版本。
func WithServerInfo(name, version string) Option {
	return func(s *Server) {
		s.name = name
		s.version = version
	}
}

// WithLogger 覆盖默认日志实例。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, sessions *session.Registry, chains *chain.Registry, catalog *actions.Catalog, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		sessions:        sessions,
		chains:          chains,
		catalog:         catalog,
		events:          events.Discard{},
		keepAlive:       15 * time.Second,
		shutdownTimeout: 5 * time.Second,
		logger:          logger.Named("api"),
	}
	WithCustodyOptions()(s)
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.sessions == nil {
		s.sessions = session.NewRegistry()
	}
	return s
}

// Handler 返回完整的路由，ctx 取消后新请求会被拒绝。
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(SSEPath, instrument("sse", http.HandlerFunc(s.handleSSE)))
	mux.Handle(MessagesPath, instrument("messages", http.HandlerFunc(s.handleMessages)))
	mux.Handle(HistoryPath, instrument("history", http.HandlerFunc(s.handleHistory)))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	return withContext(ctx, mux)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 5 * time.Second,
		// 请求上下文派生自 ctx，关闭时事件流随之结束。
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", s.addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Sessions 返回会话注册表。
func (s *Server) Sessions() *session.Registry { return s.sessions }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	// 会话标识即投递凭据，这里只暴露数量。
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
		"clusters": s.chains.Clusters(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxHistoryLimit)
		}
	}

	if s.history == nil {
		err := xerrors.New(xerrors.CodeInitializationFailure, "execution history is not configured")
		writeError(w, xerrors.HTTPStatusOf(err), xerrors.PublicMessage(err))
		return
	}
	records, err := s.history.ListLatest(r.Context(), limit)
	if err != nil {
		s.logger.Error("list execution records", slog.Any("error", err))
		err = xerrors.Wrap(xerrors.CodeStorageFailure, err, "list execution records")
		writeError(w, xerrors.HTTPStatusOf(err), "internal server error")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
