package chat

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"mindvault/internal/config"
	"mindvault/internal/models"
	"mindvault/internal/storage"
)

func TestCreateAndFindSession(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	store := NewStore(db)
	userID := insertTestUser(t, db, "alice")
	ctx := context.Background()

	session, err := store.CreateSession(ctx, userID, "ext-1", "New Conversation", nil, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Token == "" {
		t.Fatalf("expected a session token")
	}

	found, err := store.FindByToken(ctx, userID, session.Token)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if found == nil || found.ExternalID != "ext-1" {
		t.Fatalf("unexpected session: %+v", found)
	}

	other := insertTestUser(t, db, "mallory")
	stolen, err := store.FindByToken(ctx, other, session.Token)
	if err != nil {
		t.Fatalf("find as other user: %v", err)
	}
	if stolen != nil {
		t.Fatalf("session visible to wrong user")
	}
}

func TestFindByTokenDeactivatesExpiredSession(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	store := NewStore(db)
	userID := insertTestUser(t, db, "bob")
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	session, err := store.CreateSession(ctx, userID, "ext-2", "New Conversation", &past, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	found, err := store.FindByToken(ctx, userID, session.Token)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if found != nil {
		t.Fatalf("expired session should be a miss")
	}
	var active int
	if err := db.QueryRow(
		`SELECT active FROM chat_sessions WHERE token = ?`, session.Token,
	).Scan(&active); err != nil {
		t.Fatalf("query active: %v", err)
	}
	if active != 0 {
		t.Fatalf("expired session still active")
	}
}

func TestActiveSessionsSweepsExpired(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	store := NewStore(db)
	userID := insertTestUser(t, db, "carol")
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)
	if _, err := store.CreateSession(ctx, userID, "old", "New Conversation", &past, nil); err != nil {
		t.Fatalf("create expired session: %v", err)
	}
	fresh, err := store.CreateSession(ctx, userID, "fresh", "New Conversation", &future, nil)
	if err != nil {
		t.Fatalf("create fresh session: %v", err)
	}

	sessions, err := store.ActiveSessions(ctx, userID)
	if err != nil {
		t.Fatalf("active sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Token != fresh.Token {
		t.Fatalf("expected only the fresh session, got %+v", sessions)
	}
}

func TestAppendTurnsKeepsOrderAndContent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	store := NewStore(db)
	userID := insertTestUser(t, db, "dave")
	ctx := context.Background()

	session, err := store.CreateSession(ctx, userID, "ext-3", "New Conversation", nil, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	now := time.Now().UTC()
	userText := "سلام، حال شما چطور است؟"
	aiText := "خوبم، ممنون!"
	turns := []models.Turn{
		models.UserTurn(userText, now),
		models.AssistantTurn(aiText, nil, now),
	}
	if err := store.AppendTurns(ctx, session.Token, turns); err != nil {
		t.Fatalf("append turns: %v", err)
	}

	got, err := store.Transcript(ctx, session.Token)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(got))
	}
	if got[0].Role != models.TurnUser || got[0].Content == nil || *got[0].Content != userText {
		t.Fatalf("user turn mangled: %+v", got[0])
	}
	if got[1].Role != models.TurnAssistant || got[1].Content == nil || *got[1].Content != aiText {
		t.Fatalf("assistant turn mangled: %+v", got[1])
	}

	count, err := store.CountUserTurns(ctx, session.Token)
	if err != nil {
		t.Fatalf("count user turns: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 user turn, got %d", count)
	}
}

func TestTranscriptRoundTripsToolTurns(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	store := NewStore(db)
	userID := insertTestUser(t, db, "erin")
	ctx := context.Background()

	session, err := store.CreateSession(ctx, userID, "ext-4", "New Conversation", nil, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	now := time.Now().UTC()
	calls := []models.ToolCall{{ID: "call-1", Name: "update_health_record", Arguments: `{"height_cm":180}`}}
	turns := []models.Turn{
		models.AssistantTurn("", calls, now),
		models.ToolTurn("call-1", "update_health_record", []byte(`{"status":"success"}`), now),
	}
	if err := store.AppendTurns(ctx, session.Token, turns); err != nil {
		t.Fatalf("append turns: %v", err)
	}

	got, err := store.Transcript(ctx, session.Token)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(got))
	}
	if len(got[0].ToolCalls) != 1 || got[0].ToolCalls[0].ID != "call-1" {
		t.Fatalf("tool calls mangled: %+v", got[0])
	}
	if got[1].ToolCallID != "call-1" || got[1].ToolName != "update_health_record" {
		t.Fatalf("tool turn mangled: %+v", got[1])
	}
	if string(got[1].ToolResult) != `{"status":"success"}` {
		t.Fatalf("tool result mangled: %s", got[1].ToolResult)
	}
}

func TestReplaceTranscriptSwapsAllTurns(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	store := NewStore(db)
	userID := insertTestUser(t, db, "oscar")
	ctx := context.Background()

	session, err := store.CreateSession(ctx, userID, "ext-5", "New Conversation", nil, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	now := time.Now().UTC()
	if err := store.AppendTurns(ctx, session.Token, []models.Turn{
		models.UserTurn("old", now),
		models.AssistantTurn("old reply", nil, now),
	}); err != nil {
		t.Fatalf("append turns: %v", err)
	}

	if err := store.ReplaceTranscript(ctx, session.Token, []models.Turn{
		models.UserTurn("rewritten", now),
	}); err != nil {
		t.Fatalf("replace transcript: %v", err)
	}

	got, err := store.Transcript(ctx, session.Token)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(got) != 1 || *got[0].Content != "rewritten" {
		t.Fatalf("transcript not replaced: %+v", got)
	}
}

func TestSweepExpiredIsGlobal(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	store := NewStore(db)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Minute)

	for _, name := range []string{"frank", "grace"} {
		userID := insertTestUser(t, db, name)
		if _, err := store.CreateSession(ctx, userID, "", "New Conversation", &past, nil); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	n, err := store.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 swept sessions, got %d", n)
	}

	again, err := store.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again != 0 {
		t.Fatalf("sweep not idempotent, got %d", again)
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
