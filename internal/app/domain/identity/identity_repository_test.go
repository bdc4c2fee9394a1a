package identity

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FACorreiaa/go-loanhub/internal/app/models"
)

var accountRowColumns = []string{
	"id", "email", "password_hash", "display_name", "photo_url",
	"email_verified", "provider_subject", "created_at", "last_login_at",
}

func newMockRepo(t *testing.T) (*PostgresRepo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresRepo(mock, zap.NewNop()), mock
}

func TestPostgresRepoCreateAccount(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("inserts a normalized email", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("INSERT INTO accounts").
			WithArgs("ada@example.com", "hash").
			WillReturnRows(pgxmock.NewRows(accountRowColumns).
				AddRow("7f1c", "ada@example.com", "hash", "", "", false, "", now, now))

		acct, err := repo.CreateAccount(ctx, " Ada@Example.com ", "hash")
		require.NoError(t, err)
		assert.Equal(t, "7f1c", acct.ID)
		assert.Equal(t, now, acct.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps unique violations to conflict", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("INSERT INTO accounts").
			WithArgs("ada@example.com", "hash").
			WillReturnError(&pgconn.PgError{Code: "23505"})

		_, err := repo.CreateAccount(ctx, "ada@example.com", "hash")
		assert.ErrorIs(t, err, models.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepoAccountByEmail(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT .* FROM accounts WHERE email = \\$1").
			WithArgs("ada@example.com").
			WillReturnRows(pgxmock.NewRows(accountRowColumns).
				AddRow("7f1c", "ada@example.com", "hash", "Ada", "", true, "", now, now))

		acct, err := repo.AccountByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, "Ada", acct.DisplayName)
		assert.True(t, acct.Identity().EmailVerified)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT .* FROM accounts").
			WithArgs("nobody@example.com").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.AccountByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestPostgresRepoUpdateProfile(t *testing.T) {
	ctx := context.Background()
	name := "Ada"

	t.Run("updates only provided fields", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec("UPDATE accounts SET display_name = \\$1 WHERE id = \\$2").
			WithArgs("Ada", "7f1c").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.UpdateProfile(ctx, "7f1c", models.ProfileUpdate{DisplayName: &name}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no fields is a no-op", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		require.NoError(t, repo.UpdateProfile(ctx, "7f1c", models.ProfileUpdate{}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown account", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec("UPDATE accounts").
			WithArgs("Ada", "missing").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.UpdateProfile(ctx, "missing", models.ProfileUpdate{DisplayName: &name})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestPostgresRepoUpsertFederated(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("INSERT INTO accounts .* ON CONFLICT \\(email\\) DO UPDATE").
		WithArgs("grace@example.com", "Grace", "", true, "google|1").
		WillReturnRows(pgxmock.NewRows(accountRowColumns).
			AddRow("9a2b", "grace@example.com", "", "Grace", "", true, "google|1", now, now))

	acct, err := repo.UpsertFederated(ctx, FederatedProfile{
		Subject: "google|1", Email: "Grace@example.com", Name: "Grace", EmailVerified: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "9a2b", acct.ID)
	assert.Empty(t, acct.PasswordHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepoTouchLogin(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("UPDATE accounts SET last_login_at = now\\(\\) WHERE id = \\$1 RETURNING last_login_at").
		WithArgs("7f1c").
		WillReturnRows(pgxmock.NewRows([]string{"last_login_at"}).AddRow(now))

	at, err := repo.TouchLogin(ctx, "7f1c")
	require.NoError(t, err)
	assert.Equal(t, now, at)
	assert.NoError(t, mock.ExpectationsWereMet())
}
