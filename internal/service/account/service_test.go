package account

import (
	"context"
	"database/sql"
	"testing"

	"mindvault/internal/config"
	"mindvault/internal/models"
	"mindvault/internal/storage"
)

func TestRegisterAndLogin(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	svc := NewService(db)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.ID == 0 || user.RoleName != models.DefaultRoleName {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.PasswordHash == "secret" {
		t.Fatalf("password stored in plaintext")
	}

	back, err := svc.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if back.ID != user.ID {
		t.Fatalf("login returned wrong user: %+v", back)
	}

	if _, err := svc.Login(ctx, "alice", "wrong"); err == nil || err.Error() != "invalid credentials" {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	svc := NewService(db)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "bob", "secret"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.Register(ctx, "bob", "other")
	if err == nil || err.Error() != "username already taken" {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestRegisterSurfacesStorageFailures(t *testing.T) {
	db := openTestDB(t)

	svc := NewService(db)
	db.Close()

	_, err := svc.Register(context.Background(), "carol", "secret")
	if err == nil {
		t.Fatalf("expected an error on a closed database")
	}
	if err.Error() == "username already taken" {
		t.Fatalf("storage failure misreported as duplicate username")
	}
}

func TestDeleteRemovesUser(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	svc := NewService(db)
	ctx := context.Background()

	user, err := svc.Register(ctx, "dave", "secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.Delete(ctx, user.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, user.ID); err != sql.ErrNoRows {
		t.Fatalf("expected ErrNoRows for missing user, got %v", err)
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}
