package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaelevate/portal-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func userColumnNames() []string {
	return strings.Split(userColumns, ", ")
}

func addUser(rows *sqlmock.Rows, id, email, username string, role models.UserRole, blocked bool) *sqlmock.Rows {
	now := time.Now()
	hash := "$2a$10$hash"
	return rows.AddRow(id, email, username, "Name", hash, string(role), blocked, true,
		nil, nil, nil, nil, nil, "", "", "", "", "", "", "credentials", nil, now, now)
}

func TestFindByEmailLowercases(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	rows := addUser(sqlmock.NewRows(userColumnNames()), "u1", "student@pharma.in", "student", models.RoleStudent, false)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("student@pharma.in").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "  Student@Pharma.IN ")
	require.NoError(t, err)
	assert.Equal(t, "student", user.Username)
	assert.True(t, user.HasPassword())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDPassesThroughNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	err := repo.Create(context.Background(), &models.User{Email: "a@b.c", Username: "abc", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, "users_email_key", UniqueConstraint(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAuthState(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET name = ?, username = ?, password_hash = ?, is_verified = ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateAuthState(context.Background(), &models.User{ID: "u1", Username: "abc"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	listRows := addUser(sqlmock.NewRows(userColumnNames()), "1", "a@example.com", "aaa", models.RoleAdmin, false)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE 1=1 AND role = $1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs(models.RoleAdmin).
		WillReturnRows(listRows)

	countRows := sqlmock.NewRows([]string{"count"}).AddRow(1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE 1=1 AND role = $1")).WillReturnRows(countRows)

	role := models.RoleAdmin
	users, total, err := repo.List(context.Background(), models.UserFilter{Role: &role, SortBy: "password_hash; DROP"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenLifecycle(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE")).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.CreateRefreshToken(context.Background(), &models.RefreshToken{UserID: "u1", TokenHash: "digest", ExpiresAt: time.Now()}))
	require.NoError(t, repo.RevokeUserRefreshTokens(context.Background(), "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinAdminTxCommits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users WHERE role = 'admin' AND is_blocked = FALSE ORDER BY id FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a1").AddRow("a2"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1 FOR UPDATE")).
		WithArgs("a2").
		WillReturnRows(addUser(sqlmock.NewRows(userColumnNames()), "a2", "two@pharma.in", "two", models.RoleAdmin, false))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role = $2, is_blocked = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("a2", models.RoleStudent, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.WithinAdminTx(context.Background(), func(tx UserTx) error {
		count, err := tx.LockActiveAdmins(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		target, err := tx.FindByIDForUpdate(context.Background(), "a2")
		require.NoError(t, err)
		return tx.UpdateRoleAndBlock(context.Background(), target.ID, models.RoleStudent, false)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinAdminTxRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("guard rejected")
	err := repo.WithinAdminTx(context.Background(), func(tx UserTx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
