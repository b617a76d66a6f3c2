// Package profiles remembers what a citizen has told us about themselves
// (name, phone) across conversations.
package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

type Profile struct {
	SessionKey string
	Name       string
	Phone      string
	UpdatedAt  time.Time
}

type Store interface {
	// Get returns the zero Profile, without error, for an unknown session.
	Get(ctx context.Context, sessionKey string) (Profile, error)
	SaveName(ctx context.Context, sessionKey, name string) error
	SavePhone(ctx context.Context, sessionKey, phone string) error
}

var ssq = sq.StatementBuilder.PlaceholderFormat(sq.Question)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func (s *SQLiteStore) Get(ctx context.Context, sessionKey string) (Profile, error) {
	query, args, err := ssq.Select("name", "phone", "updated_at_ms").
		From("profiles").
		Where(sq.Eq{"session_key": sessionKey}).
		ToSql()
	if err != nil {
		return Profile{}, fmt.Errorf("building profile query: %w", err)
	}
	p := Profile{SessionKey: sessionKey}
	var ms int64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&p.Name, &p.Phone, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("querying profile: %w", err)
	}
	p.UpdatedAt = time.UnixMilli(ms)
	return p, nil
}

func (s *SQLiteStore) SaveName(ctx context.Context, sessionKey, name string) error {
	return s.upsert(ctx, sessionKey, "name", name)
}

func (s *SQLiteStore) SavePhone(ctx context.Context, sessionKey, phone string) error {
	return s.upsert(ctx, sessionKey, "phone", phone)
}

func (s *SQLiteStore) upsert(ctx context.Context, sessionKey, column, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("empty %s", column)
	}
	ms := s.now().UnixMilli()
	query, args, err := ssq.Insert("profiles").
		Columns("session_key", column, "updated_at_ms").
		Values(sessionKey, value, ms).
		Suffix(fmt.Sprintf("ON CONFLICT(session_key) DO UPDATE SET %s = excluded.%s, updated_at_ms = excluded.updated_at_ms", column, column)).
		ToSql()
	if err != nil {
		return fmt.Errorf("building profile upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("saving profile %s: %w", column, err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
