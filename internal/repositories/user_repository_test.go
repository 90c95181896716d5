package repositories

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/enesyuzak/locat-web-tracker/internal/models"
)

var userRowColumns = []string{"id", "username", "email", "display_name", "password_hash", "role", "notifications_enabled", "auto_refresh", "created_at"}

func newUserMock(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserRepository(db), mock
}

func TestGetByUsername(t *testing.T) {
	repo, mock := newUserMock(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE LOWER(username) = LOWER($1)")).
		WithArgs("Alice").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("id-1", "alice", "a@example.com", "Alice A", "hash", models.RoleAdmin, true, false, created))

	u, err := repo.GetByUsername(context.Background(), "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "id-1" || u.Role != models.RoleAdmin || u.AutoRefresh || !u.NotificationsEnabled {
		t.Errorf("unexpected user %+v", u)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newUserMock(t)
	mock.ExpectQuery("WHERE id = ").WithArgs("nope").WillReturnRows(sqlmock.NewRows(userRowColumns))

	if _, err := repo.GetByID(context.Background(), "nope"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestDisplayName(t *testing.T) {
	repo, mock := newUserMock(t)
	mock.ExpectQuery("COALESCE").WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Alice A"))
	mock.ExpectQuery("COALESCE").WithArgs("id-2").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	name, err := repo.DisplayName(context.Background(), "id-1")
	if err != nil || name != "Alice A" {
		t.Fatalf("got %q, %v", name, err)
	}
	if _, err := repo.DisplayName(context.Background(), "id-2"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCreate(t *testing.T) {
	repo, mock := newUserMock(t)
	created := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "bob", "bob@example.com", "", "hash", models.RoleViewer).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	u := &models.User{Username: "bob", Email: "bob@example.com", PasswordHash: "hash", Role: models.RoleViewer}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	if u.ID == "" {
		t.Error("expected generated id")
	}
	if !u.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v", u.CreatedAt)
	}
}

func TestUpdateProfile(t *testing.T) {
	repo, mock := newUserMock(t)
	name := " newname "
	auto := false

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET username = $1, auto_refresh = $2 WHERE id = $3")).
		WithArgs("newname", false, "id-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateProfile(context.Background(), "id-1", models.ProfileUpdate{Username: &name, AutoRefresh: &auto}); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateProfile_NothingToDo(t *testing.T) {
	repo, mock := newUserMock(t)
	if err := repo.UpdateProfile(context.Background(), "id-1", models.ProfileUpdate{}); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateProfile_UsernameTaken(t *testing.T) {
	repo, mock := newUserMock(t)
	name := "taken"
	mock.ExpectExec("UPDATE users").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.UpdateProfile(context.Background(), "id-1", models.ProfileUpdate{Username: &name})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestUpdatePassword_UnknownUser(t *testing.T) {
	repo, mock := newUserMock(t)
	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs("hash", "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpdatePassword(context.Background(), "ghost", "hash"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestList(t *testing.T) {
	repo, mock := newUserMock(t)
	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users ORDER BY created_at DESC")).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("id-2", "device7", "", "", "", models.RoleTracked, true, true, created).
			AddRow("id-1", "alice", "a@x.io", "Alice", "h", models.RoleAdmin, true, false, created.Add(-time.Hour)))

	users, err := repo.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0].Username != "device7" || users[1].Role != models.RoleAdmin {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestUpdateRoleAndDelete(t *testing.T) {
	repo, mock := newUserMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role = $1 WHERE id = $2")).
		WithArgs(models.RoleViewer, "id-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = $1")).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpdateRole(context.Background(), "id-1", models.RoleViewer); err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
