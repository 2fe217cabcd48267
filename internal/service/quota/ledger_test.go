package quota

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"mindvault/internal/config"
	"mindvault/internal/models"
	"mindvault/internal/storage"
)

func TestAllowedCountsAgainstRoleLimit(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	ledger := NewLedger(db)
	userID := insertTestUser(t, db, "alice")
	setRoleLimits(t, db, "default", 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := ledger.Allowed(ctx, userID)
		if err != nil {
			t.Fatalf("allowed: %v", err)
		}
		if !ok {
			t.Fatalf("expected message %d to be allowed", i+1)
		}
		if err := ledger.Increment(ctx, userID); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	ok, err := ledger.Allowed(ctx, userID)
	if err != nil {
		t.Fatalf("allowed at limit: %v", err)
	}
	if ok {
		t.Fatalf("expected quota to be exhausted after 3 messages")
	}
}

func TestIncrementRollsOverOnNewDay(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	ledger := NewLedger(db)
	userID := insertTestUser(t, db, "bob")
	setRoleLimits(t, db, "default", 5)
	ctx := context.Background()

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format(models.QuotaDateLayout)
	if _, err := db.Exec(
		`UPDATE users SET messages_sent_today = 5, last_message_date = ? WHERE id = ?`,
		yesterday, userID,
	); err != nil {
		t.Fatalf("backdate quota: %v", err)
	}

	ok, err := ledger.Allowed(ctx, userID)
	if err != nil {
		t.Fatalf("allowed: %v", err)
	}
	if !ok {
		t.Fatalf("expected stale counter to be treated as zero")
	}

	if err := ledger.Increment(ctx, userID); err != nil {
		t.Fatalf("increment: %v", err)
	}
	var count int
	var date string
	if err := db.QueryRow(
		`SELECT messages_sent_today, last_message_date FROM users WHERE id = ?`, userID,
	).Scan(&count, &date); err != nil {
		t.Fatalf("query quota: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected counter reset to 1, got %d", count)
	}
	if want := time.Now().UTC().Format(models.QuotaDateLayout); date != want {
		t.Fatalf("expected date %s, got %s", want, date)
	}
}

func TestZeroLimitMeansUnlimited(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	ledger := NewLedger(db)
	userID := insertTestUser(t, db, "carol")
	setRoleLimits(t, db, "default", 0)
	ctx := context.Background()

	if _, err := db.Exec(
		`UPDATE users SET messages_sent_today = 9999, last_message_date = ? WHERE id = ?`,
		time.Now().UTC().Format(models.QuotaDateLayout), userID,
	); err != nil {
		t.Fatalf("set counter: %v", err)
	}
	ok, err := ledger.Allowed(ctx, userID)
	if err != nil {
		t.Fatalf("allowed: %v", err)
	}
	if !ok {
		t.Fatalf("expected zero limit to mean unlimited")
	}
}

func TestRoleForLoadsLimitBundle(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	ledger := NewLedger(db)
	userID := insertTestUser(t, db, "dave")

	role, err := ledger.RoleFor(context.Background(), userID)
	if err != nil {
		t.Fatalf("role for: %v", err)
	}
	if role.Name != models.DefaultRoleName {
		t.Fatalf("expected default role, got %q", role.Name)
	}
	if role.MaxActiveSessions <= 0 || role.DailyMessageLimit <= 0 {
		t.Fatalf("expected seeded limits, got %+v", role)
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

func setRoleLimits(t *testing.T, db *sql.DB, role string, dailyLimit int) {
	t.Helper()
	if _, err := db.Exec(
		`UPDATE roles SET daily_message_limit = ? WHERE name = ?`, dailyLimit, role,
	); err != nil {
		t.Fatalf("set role limits: %v", err)
	}
}
