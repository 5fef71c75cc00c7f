package sqlutil

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type txQueries struct {
	tx *sql.Tx
}

func newTxQueries(tx *sql.Tx) *txQueries { return &txQueries{tx: tx} }

func TestRun_Commits(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO presence_log").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = Run(context.Background(), db, newTxQueries, func(q *txQueries) error {
		_, err := q.tx.ExecContext(context.Background(), "INSERT INTO presence_log DEFAULT VALUES")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_RollsBackOnError(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = Run(context.Background(), db, newTxQueries, func(*txQueries) error { return boom })
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_RollsBackOnPanic(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = Run(context.Background(), db, newTxQueries, func(*txQueries) error { panic("kaboom") })
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_BeginError(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(errors.New("no connection"))

	called := false
	err = Run(context.Background(), db, newTxQueries, func(*txQueries) error {
		called = true
		return nil
	})
	assert.EqualError(t, err, "no connection")
	assert.False(t, called)
}

func TestNullConverters(t *testing.T) {
	t.Parallel()

	s := "ana"
	assert.Equal(t, "ana", FromSqlString(ToSqlString(&s), "x"))
	assert.Equal(t, "x", FromSqlString(ToSqlString(nil), "x"))

	now := time.Date(2026, 5, 2, 18, 4, 5, 0, time.UTC)
	assert.Equal(t, &now, FromSqlTime(ToSqlTime(&now)))
	assert.Nil(t, FromSqlTime(ToSqlTime(nil)))

	raw := json.RawMessage(`{"staffId":"1"}`)
	assert.Equal(t, raw, FromNullRawMessage(ToNullRawMessage(raw)))
	assert.False(t, ToNullRawMessage(nil).Valid)
	assert.False(t, ToNullRawMessage(json.RawMessage("null")).Valid)
	assert.Nil(t, FromNullRawMessage(ToNullRawMessage(nil)))
}
