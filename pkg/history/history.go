// WargaBot - Citizen services assistant for chat channels
// License: MIT
//
// Copyright (c) 2026 WargaBot contributors

// Package history stores prior conversation turns per session.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role      Role
	Content   string
	CreatedAt time.Time
}

// Service fetches turns oldest first and appends new ones.
type Service interface {
	Fetch(ctx context.Context, sessionKey string, limit int) ([]Message, error)
	Append(ctx context.Context, sessionKey string, msgs ...Message) error
}

var ssq = sq.StatementBuilder.PlaceholderFormat(sq.Question)

type SQLiteService struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteService(db *sql.DB) *SQLiteService {
	return &SQLiteService{db: db, now: time.Now}
}

func (s *SQLiteService) Fetch(ctx context.Context, sessionKey string, limit int) ([]Message, error) {
	qb := ssq.Select("role", "content", "created_at_ms").
		From("history").
		Where(sq.Eq{"session_key": sessionKey}).
		OrderBy("id DESC")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building history query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Message
	for rows.Next() {
		var (
			m    Message
			role string
			ms   int64
		)
		if err := rows.Scan(&role, &m.Content, &ms); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.UnixMilli(ms)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteService) Append(ctx context.Context, sessionKey string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ib := ssq.Insert("history").Columns("session_key", "role", "content", "created_at_ms")
	for _, m := range msgs {
		at := m.CreatedAt
		if at.IsZero() {
			at = s.now()
		}
		ib = ib.Values(sessionKey, string(m.Role), m.Content, at.UnixMilli())
	}
	query, args, err := ib.ToSql()
	if err != nil {
		return fmt.Errorf("building history insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting history: %w", err)
	}
	return nil
}

var _ Service = (*SQLiteService)(nil)
