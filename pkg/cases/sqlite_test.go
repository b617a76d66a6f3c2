package cases

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/wargabot/pkg/intent"
	"github.com/dotsetgreg/wargabot/pkg/store"
)

var testDay = time.Date(2025, 12, 1, 9, 0, 0, 0, time.Local)

func newTestService(t *testing.T) *SQLiteService {
	t.Helper()
	db, err := store.OpenAndMigrate(filepath.Join(t.TempDir(), "cases.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteService(db, WithClock(func() time.Time { return testDay }))
}

func TestCreateAssignsDailySequence(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c1, err := svc.CreateComplaint(ctx, ComplaintInput{UserKey: "web:1", Category: "lampu_jalan", Address: "Jl. Merdeka No 5"})
	require.NoError(t, err)
	assert.Equal(t, "LAP-20251201-001", c1.TrackingCode)
	assert.Equal(t, StatusOpen, c1.Status)

	c2, err := svc.CreateComplaint(ctx, ComplaintInput{UserKey: "web:2", Category: "sampah"})
	require.NoError(t, err)
	assert.Equal(t, "LAP-20251201-002", c2.TrackingCode)

	r1, err := svc.CreateServiceRequest(ctx, ServiceRequestInput{UserKey: "web:1", ServiceSlug: "ktp"})
	require.NoError(t, err)
	assert.Equal(t, "LAY-20251201-001", r1.TrackingCode, "service requests have their own sequence")
	assert.Equal(t, intent.CaseServiceRequest, r1.Type)
}

func TestCreateValidatesInput(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.CreateComplaint(context.Background(), ComplaintInput{UserKey: "web:1"})
	assert.Error(t, err)
	_, err = svc.CreateServiceRequest(context.Background(), ServiceRequestInput{UserKey: "web:1"})
	assert.Error(t, err)
}

func TestStatusChecksOwnership(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateComplaint(ctx, ComplaintInput{
		UserKey:  "web:1",
		Category: "jalan_rusak",
		Photos:   []string{"https://img/1.jpg"},
	})
	require.NoError(t, err)

	got, err := svc.Status(ctx, "web:1", "lap-20251201-001")
	require.NoError(t, err)
	assert.Equal(t, c.TrackingCode, got.TrackingCode)
	assert.Equal(t, []string{"https://img/1.jpg"}, got.Photos)
	assert.Equal(t, testDay.UnixMilli(), got.CreatedAt.UnixMilli())

	_, err = svc.Status(ctx, "web:2", c.TrackingCode)
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, KindNotOwner, Kind(err))

	_, err = svc.Status(ctx, "web:1", "LAP-20251201-999")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindNotFound, Kind(err))
}

func TestUpdateAndCancel(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateComplaint(ctx, ComplaintInput{UserKey: "web:1", Category: "sampah", Description: "sampah menumpuk"})
	require.NoError(t, err)

	upd, err := svc.Update(ctx, "web:1", c.TrackingCode, "sudah tiga hari")
	require.NoError(t, err)
	assert.Equal(t, "sampah menumpuk\nsudah tiga hari", upd.Description)

	cancelled, err := svc.Cancel(ctx, "web:1", c.TrackingCode, "sudah diangkut")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, "sudah diangkut", cancelled.Reason)

	_, err = svc.Cancel(ctx, "web:1", c.TrackingCode, "")
	assert.ErrorIs(t, err, ErrLocked)
	_, err = svc.Update(ctx, "web:1", c.TrackingCode, "lagi")
	assert.Equal(t, KindLocked, Kind(err))
}

func TestSetStatusLocks(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateServiceRequest(ctx, ServiceRequestInput{UserKey: "web:1", ServiceSlug: "kk"})
	require.NoError(t, err)
	require.NoError(t, svc.SetStatus(ctx, c.TrackingCode, StatusDone))

	_, err = svc.Cancel(ctx, "web:1", c.TrackingCode, "")
	assert.ErrorIs(t, err, ErrLocked)

	assert.ErrorIs(t, svc.SetStatus(ctx, "LAY-20251201-404", StatusDone), ErrNotFound)
}

func TestListByUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.CreateComplaint(ctx, ComplaintInput{UserKey: "web:1", Category: "sampah"})
		require.NoError(t, err)
	}
	_, err := svc.CreateComplaint(ctx, ComplaintInput{UserKey: "web:2", Category: "sampah"})
	require.NoError(t, err)

	list, err := svc.ListByUser(ctx, "web:1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "LAP-20251201-003", list[0].TrackingCode, "newest first")

	none, err := svc.ListByUser(ctx, "web:9", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStatusQueryFailureIsUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT (.+) FROM cases WHERE tracking_code = ?").
		WithArgs("LAP-20251201-001").
		WillReturnError(errors.New("disk I/O error"))

	_, err = NewSQLiteService(db).Status(context.Background(), "web:1", "LAP-20251201-001")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, KindUnavailable, Kind(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusNoRowsIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT (.+) FROM cases").WillReturnError(sql.ErrNoRows)

	_, err = NewSQLiteService(db).Status(context.Background(), "web:1", "LAP-20251201-001")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO case_sequences").
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(7))
	mock.ExpectExec("INSERT INTO cases").WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	svc := NewSQLiteService(db, WithClock(func() time.Time { return testDay }))
	_, err = svc.CreateComplaint(context.Background(), ComplaintInput{UserKey: "web:1", Category: "sampah"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows(caseColumns).AddRow(
		"LAP-20251201-001", "complaint", "web:1", "sampah", "", "numpuk", "", "in_progress", "", "", "", `["a.jpg"]`,
		testDay.UnixMilli(), testDay.UnixMilli(),
	)
	mock.ExpectQuery("SELECT (.+) FROM cases WHERE user_key = ?").WithArgs("web:1").WillReturnRows(rows)

	list, err := NewSQLiteService(db).ListByUser(context.Background(), "web:1", 5)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, StatusInProgress, list[0].Status)
	assert.Equal(t, "Sedang diproses", list[0].Status.Label())
	assert.Equal(t, []string{"a.jpg"}, list[0].Photos)
}

func TestKind(t *testing.T) {
	assert.Equal(t, ErrorKind(""), Kind(nil))
	assert.Equal(t, KindUnavailable, Kind(errors.New("boom")))
	assert.True(t, StatusRejected.Locked())
	assert.False(t, StatusInProgress.Locked())
}
