package session

import (
	"fmt"
	"sync"
	"time"

	xerrors "SolanaMCP-Agent/internal/errors"
	"SolanaMCP-Agent/internal/transport"
)

// State 表示会话所处的生命周期阶段。
type State int

const (
	StateCreated State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session 绑定一个传输及其关闭时需要执行的清理动作。
//
// 状态只能 Created → Active → Closed，或在建立失败时 Created → Closed。
type Session struct {
	id        string
	transport transport.Transport
	openedAt  time.Time

	mu       sync.Mutex
	state    State
	cleanups []func()
}

// New 以传输的会话标识创建处于 Created 状态的会话。
func New(t transport.Transport) *Session {
	return &Session{
		id:        t.SessionID(),
		transport: t,
		openedAt:  time.Now(),
		state:     StateCreated,
	}
}

// ID 返回会话标识。
func (s *Session) ID() string { return s.id }

// Transport 返回会话的传输。
func (s *Session) Transport() transport.Transport { return s.transport }

// OpenedAt 返回会话创建时间。
func (s *Session) OpenedAt() time.Time { return s.openedAt }

// State 返回当前状态。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnClose 注册关闭时的清理动作，按注册的逆序执行。
// 会话已关闭时立即执行。
func (s *Session) OnClose(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		fn()
		return
	}
	s.cleanups = append(s.cleanups, fn)
	s.mu.Unlock()
}

// Activate 将会话从 Created 切换到 Active。
func (s *Session) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCreated {
		return xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("cannot activate session in state %s", s.state))
	}
	s.state = StateActive
	return nil
}

// Close 关闭传输并执行清理动作，多次调用只生效一次。
// 返回值表示本次调用是否真正执行了关闭。
func (s *Session) Close() bool {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return false
	}
	s.state = StateClosed
	cleanups := s.cleanups
	s.cleanups = nil
	s.mu.Unlock()

	_ = s.transport.Close()
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	return true
}
