package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/wargabot/pkg/store"
)

func newSQLite(t *testing.T) *SQLiteService {
	t.Helper()
	db, err := store.OpenAndMigrate(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteService(db)
}

func TestSQLiteFetchOldestFirst(t *testing.T) {
	svc := newSQLite(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Append(ctx, "web:1",
			Message{Role: RoleUser, Content: fmt.Sprintf("q%d", i)},
			Message{Role: RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		))
	}
	require.NoError(t, svc.Append(ctx, "web:2", Message{Role: RoleUser, Content: "other"}))

	msgs, err := svc.Fetch(ctx, "web:1", 4)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "q3", msgs[0].Content)
	assert.Equal(t, "a4", msgs[3].Content)
	assert.Equal(t, RoleAssistant, msgs[3].Role)

	all, err := svc.Fetch(ctx, "web:1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 10)
}

func TestSQLiteFetchError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT role, content, created_at_ms FROM history").WillReturnError(errors.New("locked"))
	_, err = NewSQLiteService(db).Fetch(context.Background(), "web:1", 5)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type countingService struct {
	Service
	fetches int
	fail    error
}

func (c *countingService) Fetch(ctx context.Context, key string, limit int) ([]Message, error) {
	c.fetches++
	return c.Service.Fetch(ctx, key, limit)
}

func (c *countingService) Append(ctx context.Context, key string, msgs ...Message) error {
	if c.fail != nil {
		return c.fail
	}
	return c.Service.Append(ctx, key, msgs...)
}

func TestCachedServesRepeatFetches(t *testing.T) {
	backend := &countingService{Service: newSQLite(t)}
	now := time.Unix(1_700_000_000, 0)
	c := NewCached(backend, CachedOptions{Window: 6, Now: func() time.Time { return now }})
	ctx := context.Background()

	require.NoError(t, c.Append(ctx, "web:1", Message{Role: RoleUser, Content: "halo"}))

	_, err := c.Fetch(ctx, "web:1", 6)
	require.NoError(t, err)
	_, err = c.Fetch(ctx, "web:1", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.fetches)

	require.NoError(t, c.Append(ctx, "web:1", Message{Role: RoleAssistant, Content: "halo juga"}))
	msgs, err := c.Fetch(ctx, "web:1", 6)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "halo juga", msgs[1].Content)
	assert.Equal(t, 1, backend.fetches, "append refreshes the warm entry")

	now = now.Add(DefaultCacheTTL + time.Second)
	_, err = c.Fetch(ctx, "web:1", 6)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.fetches, "expired entry reloads")

	_, err = c.Fetch(ctx, "web:1", 100)
	require.NoError(t, err)
	assert.Equal(t, 3, backend.fetches, "limits past the window bypass the cache")
}

func TestCachedWindowTrims(t *testing.T) {
	c := NewCached(newSQLite(t), CachedOptions{Window: 2})
	ctx := context.Background()
	require.NoError(t, c.Append(ctx, "web:1", Message{Content: "1"}, Message{Content: "2"}))
	_, err := c.Fetch(ctx, "web:1", 2)
	require.NoError(t, err)

	require.NoError(t, c.Append(ctx, "web:1", Message{Content: "3"}))
	msgs, err := c.Fetch(ctx, "web:1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "2", msgs[0].Content)
	assert.Equal(t, "3", msgs[1].Content)
}

func TestCachedAppendFailureInvalidates(t *testing.T) {
	backend := &countingService{Service: newSQLite(t)}
	c := NewCached(backend, CachedOptions{Window: 4})
	ctx := context.Background()

	require.NoError(t, c.Append(ctx, "web:1", Message{Content: "cached"}))
	_, err := c.Fetch(ctx, "web:1", 4)
	require.NoError(t, err)
	backend.fail = errors.New("disk full")
	assert.Error(t, c.Append(ctx, "web:1", Message{Content: "lost"}))

	_, err = c.Fetch(ctx, "web:1", 4)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.fetches)
	assert.Equal(t, "history", c.Instance().Name())
}
