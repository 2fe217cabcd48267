package auth

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"mindvault/internal/config"
	"mindvault/internal/storage"
)

func TestIssueAndValidateToken(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	svc := NewService(db, nil, time.Hour)
	userID := insertTestUser(t, db, "alice")
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, userID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	got, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if got != userID {
		t.Fatalf("expected user %d, got %d", userID, got)
	}

	if _, err := svc.ValidateToken(ctx, "bogus"); err == nil {
		t.Fatalf("expected error for unknown token")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	svc := NewService(db, nil, time.Hour)
	userID := insertTestUser(t, db, "bob")
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, userID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	past := time.Now().UTC().Add(-time.Minute)
	if _, err := db.Exec(`UPDATE user_tokens SET expires_at = ? WHERE token = ?`, past, token); err != nil {
		t.Fatalf("expire token: %v", err)
	}

	if _, err := svc.ValidateToken(ctx, token); err == nil {
		t.Fatalf("expected error for expired token")
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM user_tokens WHERE token = ?`, token).Scan(&count); err != nil {
		t.Fatalf("count tokens: %v", err)
	}
	if count != 0 {
		t.Fatalf("expired token not pruned")
	}
}

func TestRevokeUserTokens(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	svc := NewService(db, nil, time.Hour)
	userID := insertTestUser(t, db, "carol")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.IssueToken(ctx, userID); err != nil {
			t.Fatalf("issue token %d: %v", i, err)
		}
	}
	if err := svc.RevokeUserTokens(ctx, userID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM user_tokens WHERE user_id = ?`, userID).Scan(&count); err != nil {
		t.Fatalf("count tokens: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected all tokens revoked, %d remain", count)
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

func insertTestUser(t *testing.T, db *sql.DB, username string) int64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, '', ?)`,
		username, time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	return id
}
