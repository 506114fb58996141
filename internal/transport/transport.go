package transport

import (
	"context"
	"errors"
)

// Handler 处理一条入站的 JSON-RPC 消息。
type Handler func(ctx context.Context, payload []byte)

// Transport 是会话与客户端之间的双向消息通道。
type Transport interface {
	// SessionID 返回传输创建时分配的会话标识。
	SessionID() string
	// Send 向客户端推送一条消息，关闭后的发送会被丢弃。
	Send(ctx context.Context, message any) error
	// Deliver 把客户端发来的消息交给已绑定的处理函数。
	Deliver(ctx context.Context, payload []byte) error
	// SetHandler 绑定入站消息处理函数。
	SetHandler(handler Handler)
	// Close 关闭传输，可重复调用。
	Close() error
	// Done 在传输关闭后返回的通道被关闭。
	Done() <-chan struct{}
}

var (
	// ErrClosed 表示传输已关闭。
	ErrClosed = errors.New("transport closed")
	// ErrNoHandler 表示尚未绑定处理函数。
	ErrNoHandler = errors.New("transport has no message handler")
)
