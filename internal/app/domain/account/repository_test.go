package account

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pinpoint/internal/app/models"
)

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresRepository(mock, zap.NewNop()), mock
}

func accountRow(id string) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "email", "name", "profile_photo", "password_hash", "token", "points", "created_at",
	}).AddRow(id, "a@b.com", "Test User", "", "hash", "token-1", int64(7), time.Now())
}

func TestPostgresGetByEmail(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE email`).
		WithArgs("a@b.com").
		WillReturnRows(accountRow("id-1"))

	acct, err := repo.GetByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "id-1", acct.ID)
	assert.Equal(t, int64(7), acct.Points)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetByEmailNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE email`).
		WithArgs("missing@b.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "missing@b.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresExistsIDToken(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("id-1", "token-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsIDToken(context.Background(), "id-1", "token-1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEmailExists(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("a@b.com").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := repo.EmailExists(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateToken(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE accounts SET token`).
		WithArgs("token-2", "id-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.UpdateToken(context.Background(), "id-1", "token-2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateTokenUnknownAccount(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE accounts SET token`).
		WithArgs("token-2", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateToken(context.Background(), "missing", "token-2")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAdjustPoints(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE accounts SET points = points`).
		WithArgs(int64(5), "id-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.AdjustPoints(context.Background(), "id-1", 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}
