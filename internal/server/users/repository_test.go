package users

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/server/models"
)

// newRepoWithMock builds a repository over a mock connection using the
// postgres placeholder format, so these tests cover the query shapes the
// sqlite integration tests never exercise.
func newRepoWithMock(t *testing.T) (*Repository, sqlmock.Sqlmock, *sqlx.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	dbx := sqlx.NewDb(db, "sqlmock")
	return New(dbx, sq.StatementBuilder.PlaceholderFormat(sq.Dollar)), mock, dbx
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+users\s*\(account,\s*password_hash,\s*salt,\s*token_version,\s*status,\s*registered_at\)\s*VALUES\s*\(\$1,\$2,\$3,\$4,\$5,\$6\)\s*RETURNING\s+id\s*$`

	rows := sqlmock.NewRows([]string{"id"}).AddRow(int64(42))
	mock.ExpectQuery(q).
		WithArgs("alice", "hash", "salt", int64(1), models.UserStatusActive, int64(1700000000000)).
		WillReturnRows(rows)

	u := &models.User{
		Account:      "alice",
		PasswordHash: "hash",
		Salt:         "salt",
		TokenVersion: 1,
		Status:       models.UserStatusActive,
		RegisteredAt: 1700000000000,
	}
	got, err := repo.Create(context.Background(), u)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != 42 {
		t.Fatalf("unexpected user: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).WillReturnError(errors.New("boom"))

	_, err := repo.Create(context.Background(), &models.User{Account: "alice"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestGetByAccount_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+\*\s+FROM\s+users\s+WHERE\s+account\s*=\s*\$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByAccount(context.Background(), "ghost")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestGetByID_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"id", "account", "password_hash", "salt", "token_version", "status",
		"registered_at", "last_login_at", "last_login_ip", "password_changed_at",
	}).AddRow(int64(7), "bob", "h", "s", int64(2), models.UserStatusActive,
		int64(1700000000000), nil, nil, nil)

	mock.ExpectQuery(`SELECT\s+\*\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	u, err := repo.GetByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if u.Account != "bob" || u.TokenVersion != 2 {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestBumpTokenVersion(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+users\s+SET\s+token_version\s*=\s*token_version\s*\+\s*1\s+WHERE\s+id\s*=\s*\$1\s+RETURNING\s+token_version\s*$`
	mock.ExpectQuery(q).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"token_version"}).AddRow(int64(3)))

	v, err := repo.BumpTokenVersion(context.Background(), 7)
	if err != nil {
		t.Fatalf("BumpTokenVersion error: %v", err)
	}
	if v != 3 {
		t.Fatalf("want version 3, got %d", v)
	}
}

func TestTouchLogin(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+users\s+SET\s+last_login_at\s*=\s*\$1,\s*last_login_ip\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$3`).
		WithArgs(int64(1700000000000), "10.0.0.1", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.TouchLogin(context.Background(), 7, "10.0.0.1", 1700000000000); err != nil {
		t.Fatalf("TouchLogin error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdatePassword(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+users\s+SET\s+password_hash\s*=\s*\$1,\s*salt\s*=\s*\$2,\s*password_changed_at\s*=\s*\$3\s+WHERE\s+id\s*=\s*\$4`).
		WithArgs("newhash", "newsalt", int64(1700000000000), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdatePassword(context.Background(), 7, "newhash", "newsalt", 1700000000000); err != nil {
		t.Fatalf("UpdatePassword error: %v", err)
	}
}
