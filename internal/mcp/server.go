package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"SolanaMCP-Agent/internal/actions"
	xerrors "SolanaMCP-Agent/internal/errors"
	"SolanaMCP-Agent/internal/transport"
	"SolanaMCP-Agent/pkg/logger"
)

// ProtocolVersion 是客户端未声明或声明了未知版本时返回的 MCP 协议版本。
const ProtocolVersion = mcplib.LATEST_PROTOCOL_VERSION

var emptySchema = json.RawMessage(`{"type":"object"}`)

// Executor 是 Server 依赖的工具执行能力，由 agent.Agent 实现。
type Executor interface {
	Catalog() *actions.Catalog
	Execute(ctx context.Context, name string, input json.RawMessage) (any, error)
}

// Server 处理单个会话的 MCP 请求，协议层由 mcp-go 的 MCPServer 完成。
type Server struct {
	exec    Executor
	core    *server.MCPServer
	name    string
	version string
	logger  *slog.Logger
	order   map[string]int
	wg      sync.WaitGroup
}

// Option 定义 Server 的可选配置。
type Option func(*Server)

// WithServerInfo 设置 initialize 返回的服务端信息。
func WithServerInfo(name, version string) Option {
	return func(s *Server) {
		if name != "" {
			s.name = name
		}
		if version != "" {
			s.version = version
		}
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

// NewServer 创建绑定到 exec 的服务端，并把目录中的每个工具注册到 MCPServer。
func NewServer(exec Executor, opts ...Option) *Server {
	s := &Server{
		exec:    exec,
		name:    "solana-mcp",
		version: "dev",
		logger:  logger.Named("mcp"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	hooks := &server.Hooks{}
	hooks.AddOnError(func(_ context.Context, id any, method mcplib.MCPMethod, _ any, err error) {
		s.logger.Debug("mcp request failed", slog.Any("id", id), slog.String("method", string(method)), slog.Any("error", err))
	})
	s.core = server.NewMCPServer(s.name, s.version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithToolFilter(s.catalogOrder),
	)

	list := exec.Catalog().List()
	s.order = make(map[string]int, len(list))
	for i, action := range list {
		s.order[action.Name] = i
		schema := action.InputSchema
		if len(schema) == 0 {
			schema = emptySchema
		}
		s.core.AddTool(mcplib.NewToolWithRawSchema(action.Name, action.Description, schema), s.toolHandler(action.Name))
	}
	return s
}

// Bind 把服务端挂到传输上。每条消息异步处理；处理使用脱离取消的 ctx，
// 连接关闭不会中断进行中的调用，调用只受托管与工具超时约束。
func (s *Server) Bind(ctx context.Context, t transport.Transport) {
	ctx = context.WithoutCancel(ctx)
	t.SetHandler(func(_ context.Context, payload []byte) {
		msg := append([]byte(nil), payload...)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			reply := s.Handle(ctx, msg)
			if reply == nil {
				return
			}
			if err := t.Send(ctx, reply); err != nil {
				s.logger.Warn("send response", slog.String("session_id", t.SessionID()), slog.Any("error", err))
			}
		}()
	})
}

// Wait 阻塞直到所有已接收的消息处理完毕。
func (s *Server) Wait() {
	s.wg.Wait()
}

// Handle 处理一条原始消息，返回需要回写的响应；纯通知返回 nil。
// 批量请求逐条交给 MCPServer，响应按请求顺序汇总。
func (s *Server) Handle(ctx context.Context, payload []byte) any {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return s.handleBatch(ctx, trimmed)
	}
	if reply := s.core.HandleMessage(ctx, trimmed); reply != nil {
		return reply
	}
	return nil
}

func (s *Server) handleBatch(ctx context.Context, payload []byte) any {
	var batch []json.RawMessage
	if err := json.Unmarshal(payload, &batch); err != nil {
		return mcplib.NewJSONRPCError(mcplib.NewRequestId(nil), mcplib.PARSE_ERROR, "Parse error", nil)
	}
	if len(batch) == 0 {
		return mcplib.NewJSONRPCError(mcplib.NewRequestId(nil), mcplib.INVALID_REQUEST, "Invalid Request", nil)
	}
	responses := make([]mcplib.JSONRPCMessage, 0, len(batch))
	for _, raw := range batch {
		if reply := s.core.HandleMessage(ctx, raw); reply != nil {
			responses = append(responses, reply)
		}
	}
	if len(responses) == 0 {
		return nil
	}
	return responses
}

func (s *Server) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		input, err := rawArguments(req.GetRawArguments())
		if err != nil {
			return mcplib.NewToolResultError("invalid arguments: " + err.Error()), nil
		}
		out, err := s.exec.Execute(ctx, name, input)
		if err != nil {
			return mcplib.NewToolResultError(xerrors.PublicMessage(err)), nil
		}
		text, err := encodeResult(out)
		if err != nil {
			return nil, err
		}
		return mcplib.NewToolResultText(text), nil
	}
}

// catalogOrder 恢复目录顺序，MCPServer 默认按名称排序。
func (s *Server) catalogOrder(_ context.Context, tools []mcplib.Tool) []mcplib.Tool {
	ordered := make([]mcplib.Tool, len(tools))
	copy(ordered, tools)
	slices.SortStableFunc(ordered, func(a, b mcplib.Tool) int {
		return s.order[a.Name] - s.order[b.Name]
	})
	return ordered
}

func rawArguments(args any) (json.RawMessage, error) {
	switch v := args.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return encoded, nil
	}
}

func encodeResult(out any) (string, error) {
	if text, ok := out.(string); ok {
		return text, nil
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(encoded), nil
}
