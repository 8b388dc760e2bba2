package session

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// flexibleSQLMatcher builds a whitespace-insensitive regex for a query.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

type argMatcher func(any) bool

func (f argMatcher) Match(v any) bool { return f(v) }

var anyArg = argMatcher(func(any) bool { return true })

func newMockStore(t *testing.T, logger *zap.Logger) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mock.ExpectPing()
	store, err := NewPostgresStore(context.Background(), mock, logger)
	require.NoError(t, err)
	return store, mock
}

func TestNewPostgresStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pingErr := errors.New("database unavailable")
	mock.ExpectPing().WillReturnError(pingErr)

	_, err = NewPostgresStore(context.Background(), mock, zap.NewNop())
	assert.ErrorIs(t, err, pingErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreMigrate(t *testing.T) {
	store, mock := newMockStore(t, zap.NewNop())
	mock.ExpectExec(flexibleSQLMatcher(Schema)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreCreate(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("inserts session and actions in one transaction", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		store, mock := newMockStore(t, zap.New(core))

		s := newTestSession("s1", created)
		s.Actions = []ActionRecord{{ID: "r1", Timestamp: created}}
		s.Actions[0].Action.Type = "click"

		mock.ExpectBegin()
		mock.ExpectExec(flexibleSQLMatcher(sqlInsertSession)).
			WithArgs("s1", s.Goal, "", "PLANNING", 0, DefaultMaxIterations, anyArg, anyArg, "", created, created, anyArg).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		batch := mock.ExpectBatch()
		batch.ExpectExec(flexibleSQLMatcher(sqlUpsertAction)).
			WithArgs("r1", "s1", 0, anyArg, anyArg, created).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()
		mock.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, store.Create(ctx, s))
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.Zero(t, logs.Len(), "closed-transaction rollback must not be logged")
	})

	t.Run("conflict maps to ErrSessionExists", func(t *testing.T) {
		store, mock := newMockStore(t, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectExec(flexibleSQLMatcher(sqlInsertSession)).
			WithArgs(anyArg, anyArg, anyArg, anyArg, anyArg, anyArg, anyArg, anyArg, anyArg, anyArg, anyArg, anyArg).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectRollback()

		assert.ErrorIs(t, store.Create(ctx, newTestSession("s1", created)), ErrSessionExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		store, mock := newMockStore(t, zap.NewNop())
		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		err := store.Create(ctx, newTestSession("s1", created))
		assert.ErrorContains(t, err, "failed to begin transaction")
	})
}

func TestPostgresStoreUpdate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("missing row maps to ErrSessionNotFound", func(t *testing.T) {
		store, mock := newMockStore(t, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectExec(flexibleSQLMatcher(sqlUpdateSession)).
			WithArgs("gone", anyArg, anyArg, anyArg, anyArg, anyArg, anyArg, anyArg, anyArg).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		assert.ErrorIs(t, store.Update(ctx, newTestSession("gone", now)), ErrSessionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("batch failure rolls back", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		store, mock := newMockStore(t, zap.New(core))

		s := newTestSession("s1", now)
		s.Status = StatusExecuting
		s.Actions = []ActionRecord{{ID: "r1", Timestamp: now}}

		mock.ExpectBegin()
		mock.ExpectExec(flexibleSQLMatcher(sqlUpdateSession)).
			WithArgs("s1", "EXECUTING", 0, DefaultMaxIterations, anyArg, anyArg, "", now, anyArg).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		batch := mock.ExpectBatch()
		batch.ExpectExec(flexibleSQLMatcher(sqlUpsertAction)).
			WithArgs(anyArg, anyArg, anyArg, anyArg, anyArg, anyArg).
			WillReturnError(errors.New("constraint violation"))
		mock.ExpectRollback()

		err := store.Update(ctx, s)
		assert.ErrorContains(t, err, "failed to upsert action r1")
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.Zero(t, logs.Len())
	})
}

func TestPostgresStoreGet(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	completed := created.Add(time.Minute)

	t.Run("loads session with actions", func(t *testing.T) {
		store, mock := newMockStore(t, zap.NewNop())

		sessionCols := []string{"id", "goal", "url", "status", "iteration", "max_iterations", "dom", "analysis", "completion_message", "created_at", "updated_at", "completed_at"}
		mock.ExpectQuery(flexibleSQLMatcher(sqlSelectSession)).
			WithArgs("s1").
			WillReturnRows(pgxmock.NewRows(sessionCols).AddRow(
				"s1", "Click the login button", "https://x.test", "COMPLETED", 1, 20,
				[]byte(`{"url":"https://x.test","title":"Home","elements":[]}`),
				[]byte(`{"understanding":"login page","confidence":0.9}`),
				"done", created, completed, &completed,
			))

		actionCols := []string{"id", "action", "result", "created_at"}
		mock.ExpectQuery(flexibleSQLMatcher(sqlSelectActions)).
			WithArgs("s1").
			WillReturnRows(pgxmock.NewRows(actionCols).
				AddRow("r1", []byte(`{"type":"click","target_uid":"b1","custom":7}`), []byte(`{"success":true}`), created).
				AddRow("r2", []byte(`{"type":"scroll"}`), []byte(nil), created))

		s, err := store.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, s.Status)
		require.NotNil(t, s.DOM)
		assert.Equal(t, "Home", s.DOM.Title)
		require.NotNil(t, s.Analysis)
		assert.Equal(t, "login page", s.Analysis.Understanding)
		require.NotNil(t, s.CompletedAt)
		assert.True(t, s.CompletedAt.Equal(completed))

		require.Len(t, s.Actions, 2)
		assert.Equal(t, "b1", s.Actions[0].Action.TargetUID)
		assert.Contains(t, s.Actions[0].Action.Extra, "custom")
		assert.True(t, s.Actions[0].Result.Succeeded())
		assert.Nil(t, s.Actions[1].Result)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows maps to ErrSessionNotFound", func(t *testing.T) {
		store, mock := newMockStore(t, zap.NewNop())
		mock.ExpectQuery(flexibleSQLMatcher(sqlSelectSession)).
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestPostgresStoreDelete(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t, zap.NewNop())

	mock.ExpectExec(flexibleSQLMatcher(sqlDeleteSession)).WithArgs("s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(flexibleSQLMatcher(sqlDeleteSession)).WithArgs("s2").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(flexibleSQLMatcher(sqlDeleteOlder)).WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	require.NoError(t, store.Delete(ctx, "s1"))
	assert.ErrorIs(t, store.Delete(ctx, "s2"), ErrSessionNotFound)

	n, err := store.DeleteOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, store.Close())
}
