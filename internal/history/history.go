package history

import (
	"context"
	"sync"
)

// Status 表示一次工具调用的结果。
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Record 是一次工具调用的落库结构。
type Record struct {
	ID         int64  `json:"id"`
	SessionID  string `json:"session_id"`
	Wallet     string `json:"wallet"`
	Action     string `json:"action"`
	Status     Status `json:"status"`
	ErrorCode  string `json:"error_code,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	CreatedAt  int64  `json:"created_at"`
}

// Store 抽象执行记录的持久化接口。
type Store interface {
	Save(ctx context.Context, record *Record) error
	ListLatest(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// DefaultCapacity 是内存存储默认保留的记录数。
const DefaultCapacity = 512

// MemoryStore 在内存中保留最近的若干条记录，按时间倒序返回。
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	nextID   int64
	records  []Record
}

// NewMemoryStore 创建内存存储，capacity 非正数时使用默认值。
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{capacity: capacity}
}

// Save 写入一条记录并分配 ID。
func (m *MemoryStore) Save(_ context.Context, record *Record) error {
	if record == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	record.ID = m.nextID
	m.records = append([]Record{*record}, m.records...)
	if len(m.records) > m.capacity {
		m.records = m.records[:m.capacity]
	}
	return nil
}

// ListLatest 返回最近的记录，limit 非正数时返回全部。
func (m *MemoryStore) ListLatest(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	results := make([]Record, limit)
	copy(results, m.records[:limit])
	return results, nil
}

// Close 实现 Store。
func (m *MemoryStore) Close() error { return nil }
