package session

import (
	"sync"

	xerrors "SolanaMCP-Agent/internal/errors"
	"SolanaMCP-Agent/internal/transport"
)

// Registry 保存会话标识到传输的映射，所有操作并发安全。
type Registry struct {
	mu         sync.RWMutex
	transports map[string]transport.Transport
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{transports: make(map[string]transport.Transport)}
}

// Add 注册会话，标识已存在时返回 DUPLICATE_SESSION。
func (r *Registry) Add(id string, t transport.Transport) error {
	if id == "" || t == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "session id and transport are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transports[id]; exists {
		return xerrors.New(xerrors.CodeDuplicateSession, "session already registered: "+id,
			xerrors.WithMetadata("session_id", id))
	}
	r.transports[id] = t
	return nil
}

// Remove 注销会话，标识不存在时不做任何事。
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.transports, id)
	r.mu.Unlock()
}

// Lookup 查找会话对应的传输，不存在时返回 SESSION_NOT_FOUND。
func (r *Registry) Lookup(id string) (transport.Transport, error) {
	r.mu.RLock()
	t, ok := r.transports[id]
	r.mu.RUnlock()
	if !ok {
		return nil, xerrors.New(xerrors.CodeSessionNotFound, "No transport found for sessionId",
			xerrors.WithMetadata("session_id", id))
	}
	return t, nil
}

// Len 返回当前活跃会话数量。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.transports)
}
