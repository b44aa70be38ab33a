package admin

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_FindByUsername(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	rows := sqlmock.NewRows([]string{"id", "username", "password", "branch", "is_first_login", "password_changed_at"}).
		AddRow(int64(7), "cse_admin", "Welcome1", "CSE", true, nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE UPPER(username) = UPPER($1)")).
		WithArgs("CSE_ADMIN").
		WillReturnRows(rows)

	acct, err := repo.FindByUsername(context.Background(), "CSE_ADMIN")
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, int64(7), acct.ID)
	assert.Equal(t, StateFirstLogin, acct.State())
	assert.Nil(t, acct.PasswordChangedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_FindByUsernameMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM admin_users").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password", "branch", "is_first_login", "password_changed_at"}))

	acct, err := NewRepository(db).FindByUsername(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, acct)
}

func TestRepository_CompleteRotation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := NewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET password = $3, is_first_login = FALSE")).
		WithArgs(int64(7), "Welcome1", "$2a$12$hash", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.CompleteRotation(context.Background(), 7, "Welcome1", "$2a$12$hash", at)
	require.NoError(t, err)
	assert.True(t, ok)

	// the stored credential changed underneath us
	mock.ExpectExec("UPDATE admin_users").
		WithArgs(int64(7), "Welcome1", "$2a$12$hash", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.CompleteRotation(context.Background(), 7, "Welcome1", "$2a$12$hash", at)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}
