package mysql

import (
	"context"
	"database/sql"
	"fmt"

	xerrors "SolanaMCP-Agent/internal/errors"
	"SolanaMCP-Agent/internal/history"
)

const insertExecutionSQL = `INSERT INTO action_executions
    (session_id, wallet, action, status, error_code, error_message, duration_ms, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

const listExecutionsSQL = `SELECT id, session_id, wallet, action, status, error_code, error_message, duration_ms, created_at
    FROM action_executions ORDER BY created_at DESC, id DESC LIMIT ?`

// HistoryStore 使用 MySQL 持久化工具执行记录。
type HistoryStore struct {
	db *sql.DB
}

var _ history.Store = (*HistoryStore)(nil)

// NewHistoryStore 建立连接池并执行迁移。
func NewHistoryStore(ctx context.Context, cfg Config) (*HistoryStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "open history database")
	}
	store := &HistoryStore{db: db}
	if err := store.runMigrations(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "migrate history database")
	}
	return store, nil
}

// Save 写入一条执行记录。
func (s *HistoryStore) Save(ctx context.Context, record *history.Record) error {
	if record == nil {
		return nil
	}
	result, err := s.db.ExecContext(ctx, insertExecutionSQL,
		record.SessionID,
		record.Wallet,
		record.Action,
		string(record.Status),
		record.ErrorCode,
		record.Error,
		record.DurationMS,
		record.CreatedAt,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入执行记录失败")
	}
	if id, err := result.LastInsertId(); err == nil {
		record.ID = id
	}
	return nil
}

// ListLatest 查询最近的若干条执行记录。
func (s *HistoryStore) ListLatest(ctx context.Context, limit int) ([]history.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, listExecutionsSQL, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询执行记录失败")
	}
	defer rows.Close()

	var records []history.Record
	for rows.Next() {
		var record history.Record
		var status string
		if err := rows.Scan(&record.ID, &record.SessionID, &record.Wallet, &record.Action, &status,
			&record.ErrorCode, &record.Error, &record.DurationMS, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析执行记录失败: %w", err)
		}
		record.Status = history.Status(status)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历执行记录失败: %w", err)
	}
	return records, nil
}

// Close 关闭底层数据库连接。
func (s *HistoryStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
