// Package events 发布会话与工具调用的生命周期事件。
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Type 表示事件类型。
type Type string

const (
	TypeSessionOpened  Type = "session.opened"
	TypeSessionClosed  Type = "session.closed"
	TypeActionExecuted Type = "action.executed"
)

// Event 是对外发布的事件载荷。
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	SessionID  string            `json:"session_id"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt int64             `json:"occurred_at"`
}

// New 创建带唯一标识与时间戳的事件。
func New(typ Type, sessionID string, attrs map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		SessionID:  sessionID,
		Attributes: attrs,
		OccurredAt: time.Now().UnixMilli(),
	}
}

// Publisher 负责投递事件。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// LogPublisher 把事件写入审计日志。
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher 创建日志发布器。
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish 实现 Publisher。
func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	attrs := []slog.Attr{
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
		slog.String("session_id", event.SessionID),
	}
	for k, v := range event.Attributes {
		attrs = append(attrs, slog.String(k, v))
	}
	p.logger.LogAttrs(ctx, slog.LevelInfo, "lifecycle event", attrs...)
	return nil
}

// Close 实现 Publisher。
func (p *LogPublisher) Close() error { return nil }

// Discard 丢弃所有事件。
type Discard struct{}

// Publish 实现 Publisher。
func (Discard) Publish(context.Context, Event) error { return nil }

// Close 实现 Publisher。
func (Discard) Close() error { return nil }
