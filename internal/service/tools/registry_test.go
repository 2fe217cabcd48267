package tools

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"mindvault/internal/config"
	"mindvault/internal/models"
	"mindvault/internal/service/profile"
	"mindvault/internal/storage"
)

func TestExecuteWritesProfileRecord(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	registry := NewRegistry(profile.NewService(db))
	userID := insertTestUser(t, db, "alice")
	ctx := context.Background()

	res := registry.Execute(ctx, userID, "update_financial_info", map[string]interface{}{
		"savings":        1000.0,
		"risk_tolerance": "low",
	})
	if res.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", res)
	}

	var savings float64
	if err := db.QueryRow(
		`SELECT savings FROM financial_infos WHERE user_id = ?`, userID,
	).Scan(&savings); err != nil {
		t.Fatalf("query savings: %v", err)
	}
	if savings != 1000.0 {
		t.Fatalf("expected savings 1000, got %v", savings)
	}
}

func TestExecuteTwiceIsIdempotentPerField(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	registry := NewRegistry(profile.NewService(db))
	userID := insertTestUser(t, db, "bob")
	ctx := context.Background()

	args := map[string]interface{}{"height_cm": 180.0}
	first := registry.Execute(ctx, userID, "update_health_record", args)
	second := registry.Execute(ctx, userID, "update_health_record", args)
	if first.Status != StatusSuccess || second.Status != StatusSuccess {
		t.Fatalf("expected both calls to succeed: %+v / %+v", first, second)
	}

	var count int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM health_records WHERE user_id = ?`, userID,
	).Scan(&count); err != nil {
		t.Fatalf("count records: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single record row, got %d", count)
	}
}

func TestExecuteUnknownToolHasNoSideEffects(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	registry := NewRegistry(profile.NewService(db))
	userID := insertTestUser(t, db, "carol")

	res := registry.Execute(context.Background(), userID, "drop_all_tables", map[string]interface{}{
		"x": 1,
	})
	if res.Status != StatusError {
		t.Fatalf("expected error result, got %+v", res)
	}
	if res.Message != "tool not defined" {
		t.Fatalf("unexpected message %q", res.Message)
	}
}

func TestExecuteReportsValidationErrors(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	registry := NewRegistry(profile.NewService(db))
	userID := insertTestUser(t, db, "dave")

	res := registry.Execute(context.Background(), userID, "update_health_record", map[string]interface{}{
		"blood_type": "purple",
		"shoe_size":  44,
	})
	if res.Status != StatusError {
		t.Fatalf("expected error result, got %+v", res)
	}
	if _, ok := res.Errors["blood_type"]; !ok {
		t.Fatalf("expected blood_type error, got %+v", res.Errors)
	}
	if _, ok := res.Errors["shoe_size"]; !ok {
		t.Fatalf("expected unknown field error, got %+v", res.Errors)
	}

	var count int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM health_records WHERE user_id = ?`, userID,
	).Scan(&count); err != nil {
		t.Fatalf("count records: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected call still wrote a record")
	}
}

func TestExecuteCreateGoalRequiresTitle(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	registry := NewRegistry(profile.NewService(db))
	userID := insertTestUser(t, db, "erin")
	ctx := context.Background()

	res := registry.Execute(ctx, userID, "create_goal", map[string]interface{}{
		"description": "no title",
	})
	if res.Status != StatusError {
		t.Fatalf("expected error for missing title, got %+v", res)
	}

	res = registry.Execute(ctx, userID, "create_goal", map[string]interface{}{
		"title":    "save money",
		"category": "financial",
	})
	if res.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", res)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM goals WHERE user_id = ?`, userID).Scan(&count); err != nil {
		t.Fatalf("count goals: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one goal, got %d", count)
	}
}

func TestSchemasCoverEveryTool(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	registry := NewRegistry(profile.NewService(db))
	want := len(models.ProfileRecords) + 1
	if got := len(registry.Schemas()); got != want {
		t.Fatalf("expected %d schemas, got %d", want, got)
	}
	if got := len(registry.Infos()); got != want {
		t.Fatalf("expected %d tool infos, got %d", want, got)
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
