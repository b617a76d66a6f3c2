package cases

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/dotsetgreg/wargabot/pkg/intent"
	"github.com/dotsetgreg/wargabot/pkg/logger"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// ssq builds SQLite statements with ? placeholders.
var ssq = sq.StatementBuilder.PlaceholderFormat(sq.Question)

var caseColumns = []string{
	"tracking_code", "case_type", "user_key", "category", "service_slug",
	"description", "address", "status", "reason", "reporter_name",
	"reporter_phone", "photos_json", "created_at_ms", "updated_at_ms",
}

// SQLiteService is the built-in Service backed by the local database.
type SQLiteService struct {
	db  *sql.DB
	now func() time.Time
}

type Option func(*SQLiteService)

func WithClock(now func() time.Time) Option {
	return func(s *SQLiteService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSQLiteService(db *sql.DB, opts ...Option) *SQLiteService {
	s := &SQLiteService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQLiteService) CreateComplaint(ctx context.Context, in ComplaintInput) (Case, error) {
	if strings.TrimSpace(in.Category) == "" {
		return Case{}, errors.New("complaint category is required")
	}
	return s.create(ctx, Case{
		Type:          intent.CaseComplaint,
		UserKey:       in.UserKey,
		Category:      in.Category,
		Description:   in.Description,
		Address:       in.Address,
		ReporterName:  in.ReporterName,
		ReporterPhone: in.ReporterPhone,
		Photos:        in.Photos,
	})
}

func (s *SQLiteService) CreateServiceRequest(ctx context.Context, in ServiceRequestInput) (Case, error) {
	if strings.TrimSpace(in.ServiceSlug) == "" {
		return Case{}, errors.New("service slug is required")
	}
	return s.create(ctx, Case{
		Type:         intent.CaseServiceRequest,
		UserKey:      in.UserKey,
		ServiceSlug:  in.ServiceSlug,
		Description:  in.Description,
		ReporterName: in.ReporterName,
	})
}

// create allocates the next daily sequence number and inserts c in one
// transaction.
func (s *SQLiteService) create(ctx context.Context, c Case) (Case, error) {
	now := s.now()
	c.Status = StatusOpen
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Photos == nil {
		c.Photos = []string{}
	}
	photos, err := json.Marshal(c.Photos)
	if err != nil {
		return Case{}, fmt.Errorf("encode photos: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Case{}, unavailable("begin create", err)
	}
	defer func() { _ = tx.Rollback() }()

	seqQuery, seqArgs, err := ssq.Insert("case_sequences").
		Columns("case_type", "day", "seq").
		Values(string(c.Type), now.Format("20060102"), 1).
		Suffix("ON CONFLICT(case_type, day) DO UPDATE SET seq = seq + 1 RETURNING seq").
		ToSql()
	if err != nil {
		return Case{}, fmt.Errorf("building sequence query: %w", err)
	}
	var seq int
	if err := tx.QueryRowContext(ctx, seqQuery, seqArgs...).Scan(&seq); err != nil {
		return Case{}, unavailable("next sequence", err)
	}
	c.TrackingCode = intent.FormatTrackingCode(c.Type, now, seq)

	query, args, err := ssq.Insert("cases").
		Columns(caseColumns...).
		Values(
			c.TrackingCode, string(c.Type), c.UserKey, c.Category, c.ServiceSlug,
			c.Description, c.Address, string(c.Status), c.Reason, c.ReporterName,
			c.ReporterPhone, string(photos), now.UnixMilli(), now.UnixMilli(),
		).
		ToSql()
	if err != nil {
		return Case{}, fmt.Errorf("building insert query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return Case{}, unavailable("insert case", err)
	}
	if err := tx.Commit(); err != nil {
		return Case{}, unavailable("commit create", err)
	}

	logger.InfoCF("cases", "Case created", map[string]interface{}{
		"tracking_code": c.TrackingCode,
		"type":          string(c.Type),
		"user_key":      c.UserKey,
	})
	return c, nil
}

func (s *SQLiteService) Status(ctx context.Context, userKey, code string) (Case, error) {
	return s.owned(ctx, userKey, code)
}

// Update appends description to the case's description.
func (s *SQLiteService) Update(ctx context.Context, userKey, code, description string) (Case, error) {
	c, err := s.owned(ctx, userKey, code)
	if err != nil {
		return Case{}, err
	}
	if c.Status.Locked() {
		return c, fmt.Errorf("%s: %w", c.TrackingCode, ErrLocked)
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return c, nil
	}
	if c.Description != "" {
		c.Description += "\n"
	}
	c.Description += description
	c.UpdatedAt = s.now()

	if err := s.exec(ctx, "update case", ssq.Update("cases").
		Set("description", c.Description).
		Set("updated_at_ms", c.UpdatedAt.UnixMilli()).
		Where(sq.Eq{"tracking_code": c.TrackingCode})); err != nil {
		return Case{}, err
	}
	return c, nil
}

func (s *SQLiteService) Cancel(ctx context.Context, userKey, code, reason string) (Case, error) {
	c, err := s.owned(ctx, userKey, code)
	if err != nil {
		return Case{}, err
	}
	if c.Status.Locked() {
		return c, fmt.Errorf("%s: %w", c.TrackingCode, ErrLocked)
	}
	c.Status = StatusCancelled
	c.Reason = strings.TrimSpace(reason)
	c.UpdatedAt = s.now()

	if err := s.exec(ctx, "cancel case", ssq.Update("cases").
		Set("status", string(c.Status)).
		Set("reason", c.Reason).
		Set("updated_at_ms", c.UpdatedAt.UnixMilli()).
		Where(sq.Eq{"tracking_code": c.TrackingCode})); err != nil {
		return Case{}, err
	}
	logger.InfoCF("cases", "Case cancelled", map[string]interface{}{
		"tracking_code": c.TrackingCode,
		"user_key":      userKey,
	})
	return c, nil
}

// SetStatus moves a case to status without an ownership check. It is the
// operator path used by the CLI.
func (s *SQLiteService) SetStatus(ctx context.Context, code string, status Status) error {
	res, err := s.execResult(ctx, "set status", ssq.Update("cases").
		Set("status", string(status)).
		Set("updated_at_ms", s.now().UnixMilli()).
		Where(sq.Eq{"tracking_code": intent.NormalizeTrackingCode(code)}))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", code, ErrNotFound)
	}
	return nil
}

func (s *SQLiteService) ListByUser(ctx context.Context, userKey string, limit int) ([]Case, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query, args, err := ssq.Select(caseColumns...).
		From("cases").
		Where(sq.Eq{"user_key": userKey}).
		OrderBy("created_at_ms DESC", "tracking_code DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list cases", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, unavailable("scan case", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate cases", err)
	}
	return out, nil
}

func (s *SQLiteService) owned(ctx context.Context, userKey, code string) (Case, error) {
	code = intent.NormalizeTrackingCode(code)
	query, args, err := ssq.Select(caseColumns...).
		From("cases").
		Where(sq.Eq{"tracking_code": code}).
		ToSql()
	if err != nil {
		return Case{}, fmt.Errorf("building select query: %w", err)
	}

	c, err := scanCase(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Case{}, fmt.Errorf("%s: %w", code, ErrNotFound)
	}
	if err != nil {
		return Case{}, unavailable("get case", err)
	}
	if c.UserKey != userKey {
		return Case{}, fmt.Errorf("%s: %w", code, ErrNotOwner)
	}
	return c, nil
}

func (s *SQLiteService) exec(ctx context.Context, op string, b sq.UpdateBuilder) error {
	_, err := s.execResult(ctx, op, b)
	return err
}

func (s *SQLiteService) execResult(ctx context.Context, op string, b sq.UpdateBuilder) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building %s query: %w", op, err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	return res, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (Case, error) {
	var (
		c                  Case
		caseType, status   string
		photos             string
		createdMS, updated int64
	)
	if err := row.Scan(
		&c.TrackingCode, &caseType, &c.UserKey, &c.Category, &c.ServiceSlug,
		&c.Description, &c.Address, &status, &c.Reason, &c.ReporterName,
		&c.ReporterPhone, &photos, &createdMS, &updated,
	); err != nil {
		return Case{}, err
	}
	c.Type = intent.CaseType(caseType)
	c.Status = Status(status)
	if photos != "" {
		if err := json.Unmarshal([]byte(photos), &c.Photos); err != nil {
			logger.WarnCF("cases", "Discarding unreadable photo list", map[string]interface{}{
				"tracking_code": c.TrackingCode,
				"error":         err.Error(),
			})
		}
	}
	c.CreatedAt = time.UnixMilli(createdMS)
	c.UpdatedAt = time.UnixMilli(updated)
	return c, nil
}

var _ Service = (*SQLiteService)(nil)
