package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medora/medora/pkg/apierr"
	"github.com/medora/medora/pkg/config"
	"github.com/medora/medora/pkg/observability"
)

func TestWithTx(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM role_permissions").WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		err = WithTx(context.Background(), db, func(tx *sql.Tx) error {
			_, err := tx.Exec("DELETE FROM role_permissions WHERE role_id = $1", "r")
			return err
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err = WithTx(context.Background(), db, func(tx *sql.Tx) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back and re-panics", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.Panics(t, func() {
			_ = WithTx(context.Background(), db, func(tx *sql.Tx) error { panic("bad") })
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin().WillReturnError(errors.New("no connection"))

		err = WithTx(context.Background(), db, func(tx *sql.Tx) error { return nil })
		assert.ErrorContains(t, err, "failed to begin transaction")
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantIs  error
		wantMsg string
	}{
		{
			name:   "unique violation",
			err:    &pq.Error{Code: "23505", Detail: `Key (email)=(a@b.c) already exists.`},
			wantIs: apierr.ErrConflict,
		},
		{
			name:    "foreign key violation",
			err:     fmt.Errorf("failed to insert role permissions: %w", &pq.Error{Code: "23503", Detail: `Key (permission_key)=(nope) is not present in table "permissions".`}),
			wantIs:  apierr.ErrBadRequest,
			wantMsg: "nope",
		},
		{
			name:   "check violation",
			err:    &pq.Error{Code: "23514", Message: "price_cents must be positive"},
			wantIs: apierr.ErrBadRequest,
		},
		{
			name:   "invalid text representation",
			err:    &pq.Error{Code: "22P02", Message: "invalid input syntax for type uuid"},
			wantIs: apierr.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.ErrorIs(t, got, tt.wantIs)
			if tt.wantMsg != "" {
				assert.Contains(t, got.Error(), tt.wantMsg)
			}
		})
	}

	t.Run("passthrough", func(t *testing.T) {
		assert.Nil(t, Classify(nil))
		plain := errors.New("connection refused")
		assert.Same(t, plain, Classify(plain))

		deadlock := &pq.Error{Code: "40P01"}
		assert.Equal(t, http.StatusInternalServerError, apierr.Status(Classify(deadlock)))
	})
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	migrations := []Migration{
		{Version: 1, Description: "first", SQL: "CREATE TABLE a (id INT)"},
		{Version: 2, Description: "second", SQL: "CREATE TABLE b (id INT)"},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs(2, "second").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	logger := observability.NewLogger(observability.InfoLevel, io.Discard)
	require.NoError(t, Migrate(context.Background(), db, migrations, logger))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE a").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	logger := observability.NewLogger(observability.InfoLevel, io.Discard)
	err = Migrate(context.Background(), db, []Migration{{Version: 1, Description: "first", SQL: "CREATE TABLE a (id INT)"}}, logger)
	assert.ErrorContains(t, err, "failed to execute migration 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchema_VersionsAscendAndUnique(t *testing.T) {
	seen := map[int]bool{}
	prev := 0
	for _, m := range Schema() {
		assert.False(t, seen[m.Version], "duplicate version %d", m.Version)
		assert.Greater(t, m.Version, prev)
		assert.NotEmpty(t, m.SQL)
		seen[m.Version] = true
		prev = m.Version
	}
}

func TestOpenRedis(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		client, err := OpenRedis(context.Background(), config.RedisConfig{})
		assert.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("connects", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := OpenRedis(context.Background(), config.RedisConfig{Addr: mr.Addr(), PoolSize: 2})
		require.NoError(t, err)
		defer client.Close()
		assert.NoError(t, client.Ping(context.Background()).Err())
	})

	t.Run("unreachable", func(t *testing.T) {
		_, err := OpenRedis(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1"})
		assert.ErrorContains(t, err, "failed to connect to redis")
	})
}

func TestSchema_EmailUniqueIsCaseInsensitive(t *testing.T) {
	var found bool
	for _, m := range Schema() {
		if strings.Contains(m.SQL, "ON accounts (lower(email))") {
			found = true
			assert.Contains(t, m.SQL, "CREATE UNIQUE INDEX")
			assert.Contains(t, m.SQL, "DROP CONSTRAINT IF EXISTS accounts_email_key")
		}
	}
	assert.True(t, found, "no case-insensitive email index in schema")
}
