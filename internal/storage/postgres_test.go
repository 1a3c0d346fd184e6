package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgfilter/internal/domain"
)

func newMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostgresWithDB(db), mock
}

func TestSave(t *testing.T) {
	p, mock := newMock(t)
	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	ev := domain.VerdictEvent{RequestID: "r1", SessionID: "tab-1", URL: "http://img/a", Blocked: true, CreatedAt: at}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO verdicts")).
		WithArgs("r1", "tab-1", "http://img/a", true, "", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, p.Save(context.Background(), ev))
}

func TestFindBySession(t *testing.T) {
	p, mock := newMock(t)
	at := time.Now()

	rows := sqlmock.NewRows([]string{"request_id", "session_id", "url", "blocked", "error", "created_at"}).
		AddRow("r1", "tab-1", "http://img/a", false, "", at).
		AddRow("r2", "tab-1", "http://img/b", false, "request cancelled", at)
	mock.ExpectQuery(regexp.QuoteMeta("FROM verdicts WHERE session_id = $1")).
		WithArgs("tab-1").
		WillReturnRows(rows)

	got, err := p.FindBySession(context.Background(), "tab-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.SessionID("tab-1"), got[0].SessionID)
	assert.Equal(t, "request cancelled", got[1].Error)
}

func TestFindAllAndStats(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT $1 OFFSET $2")).
		WithArgs(10, 20).
		WillReturnRows(sqlmock.NewRows([]string{"request_id", "session_id", "url", "blocked", "error", "created_at"}))
	got, err := p.FindAll(context.Background(), 10, 20)
	require.NoError(t, err)
	assert.Empty(t, got)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WillReturnRows(sqlmock.NewRows([]string{"total", "blocked", "failed"}).AddRow(12, 4, 1))
	stats, err := p.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 12, Blocked: 4, Failed: 1}, stats)
}

func TestMigrate(t *testing.T) {
	p, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS verdicts")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, p.Migrate(context.Background()))
}
