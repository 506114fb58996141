package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// StdioSessionID 是 stdio 模式下唯一会话的标识。
const StdioSessionID = "stdio"

// StdioTransport 以换行分隔的 JSON 在标准输入输出上收发消息。
type StdioTransport struct {
	in  io.Reader
	out io.Writer

	mu      sync.Mutex
	closed  bool
	handler Handler

	done      chan struct{}
	closeOnce sync.Once
}

// NewStdio 创建 stdio 传输。
func NewStdio(in io.Reader, out io.Writer) *StdioTransport {
	return &StdioTransport{in: in, out: out, done: make(chan struct{})}
}

// SessionID 实现 Transport。
func (t *StdioTransport) SessionID() string { return StdioSessionID }

// Serve 读取输入直到 EOF 或上下文取消，每一行交给处理函数。
// Serve 返回后传输仍可发送，调用方在处理完成后负责 Close。
func (t *StdioTransport) Serve(ctx context.Context) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(t.in)
		for {
			line, err := reader.ReadBytes('\n')
			if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				select {
				case lines <- trimmed:
				case <-t.done:
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr <- err
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return fmt.Errorf("read stdin: %w", err)
				default:
					return nil
				}
			}
			if err := t.Deliver(ctx, line); err != nil {
				return err
			}
		}
	}
}

// Send 写出一行 JSON。
func (t *StdioTransport) Send(_ context.Context, message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	if _, err := t.out.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write stdout: %w", err)
	}
	return nil
}

// Deliver 实现 Transport。
func (t *StdioTransport) Deliver(ctx context.Context, payload []byte) error {
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
func (t *StdioTransport) SetHandler(handler Handler) {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
}

// Close 实现 Transport。
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

// Done 实现 Transport。
func (t *StdioTransport) Done() <-chan struct{} { return t.done }
