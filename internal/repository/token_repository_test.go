package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenRepo(t *testing.T) (sqlmock.Sqlmock, *TokenRepo) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return mock, NewTokenRepo(db)
}

func TestTokenValidateRefresh(t *testing.T) {
	mock, repo := newTokenRepo(t)
	now := time.Date(2026, 10, 31, 20, 0, 0, 0, time.UTC)
	q := regexp.QuoteMeta("SELECT user_id FROM refresh_tokens")

	mock.ExpectQuery(q).WithArgs("h1", now).WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(7))
	id, err := repo.ValidateRefresh(context.Background(), "h1", now)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), id)

	mock.ExpectQuery(q).WithArgs("gone", now).WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	_, err = repo.ValidateRefresh(context.Background(), "gone", now)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenRevokeIsSingleUse(t *testing.T) {
	mock, repo := newTokenRepo(t)
	q := regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE token_hash=? AND revoked_at IS NULL")

	mock.ExpectExec(q).WithArgs("h1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.RevokeByHash(context.Background(), "h1"))

	mock.ExpectExec(q).WithArgs("h1").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.RevokeByHash(context.Background(), "h1"), ErrTokenInvalid)
}

func TestTokenPurgeExpired(t *testing.T) {
	mock, repo := newTokenRepo(t)
	cutoff := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE expires_at < ? OR revoked_at < ?")).
		WithArgs(cutoff, cutoff).WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.PurgeExpired(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
