package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultKeepAlive 是 SSE 连接保活注释的发送间隔。
const DefaultKeepAlive = 15 * time.Second

// SSETransport 通过 text/event-stream 推送服务端消息，入站消息由 POST 请求送达。
type SSETransport struct {
	id        string
	endpoint  string
	keepAlive time.Duration

	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
	handler Handler

	done      chan struct{}
	closeOnce sync.Once
}

// SSEOption 定义 SSETransport 的可选配置。
type SSEOption func(*SSETransport)

// WithKeepAlive 设置保活间隔，非正数表示关闭保活。
func WithKeepAlive(interval time.Duration) SSEOption {
	return func(t *SSETransport) {
		t.keepAlive = interval
	}
}

// WithSessionID 使用指定的会话标识，主要用于测试。
func WithSessionID(id string) SSEOption {
	return func(t *SSETransport) {
		if id != "" {
			t.id = id
		}
	}
}

// NewSSE 为一次 GET 请求创建传输。messagePath 是客户端回传消息的路径。
func NewSSE(w http.ResponseWriter, messagePath string, opts ...SSEOption) (*SSETransport, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}
	t := &SSETransport{
		id:        uuid.NewString(),
		keepAlive: DefaultKeepAlive,
		w:         w,
		flusher:   flusher,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	t.endpoint = fmt.Sprintf("%s?sessionId=%s", messagePath, t.id)
	return t, nil
}

// SessionID 实现 Transport。
func (t *SSETransport) SessionID() string { return t.id }

// Endpoint 返回客户端应当 POST 的地址。
func (t *SSETransport) Endpoint() string { return t.endpoint }

// Start 写入响应头与 endpoint 事件。
func (t *SSETransport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	header := t.w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	t.w.WriteHeader(http.StatusOK)
	return t.writeEvent("endpoint", []byte(t.endpoint))
}

// Serve 阻塞直到请求上下文结束或传输被关闭，期间定时发送保活注释。
func (t *SSETransport) Serve(ctx context.Context) {
	var tick <-chan time.Time
	if t.keepAlive > 0 {
		ticker := time.NewTicker(t.keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case <-tick:
			t.mu.Lock()
			if !t.closed {
				_, err := fmt.Fprint(t.w, ": ping\n\n")
				if err == nil {
					t.flusher.Flush()
				}
			}
			t.mu.Unlock()
		}
	}
}

// Send 以 message 事件推送一条 JSON 消息。
func (t *SSETransport) Send(_ context.Context, message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	return t.writeEvent("message", payload)
}

// Deliver 实现 Transport。
func (t *SSETransport) Deliver(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	closed, handler := t.closed, t.handler
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if handler == nil {
		return ErrNoHandler
	}
	handler(ctx, payload)
	return nil
}

// SetHandler 实现 Transport。
func (t *SSETransport) SetHandler(handler Handler) {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
}

// Close 标记传输关闭，此后不会再写响应体。
func (t *SSETransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

// Done 实现 Transport。
func (t *SSETransport) Done() <-chan struct{} { return t.done }

func (t *SSETransport) writeEvent(event string, data []byte) error {
	if _, err := fmt.Fprintf(t.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("write %s event: %w", event, err)
	}
	t.flusher.Flush()
	return nil
}
