package chat

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mindvault/internal/models"
)

// Store persists chat sessions and their append-only transcripts. The
// orchestrator is the sole writer of transcripts and active flags.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ActiveSessions sweeps expired sessions for the user and returns the
// ones still active, most recently touched first. The sweep is
// idempotent: an expired session is deactivated at most once.
func (s *Store) ActiveSessions(ctx context.Context, userID int64) ([]models.ChatSession, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET active = 0, updated_at = ?
		 WHERE user_id = ? AND active = 1 AND expires_at IS NOT NULL AND expires_at <= ?`,
		now, userID, now,
	); err != nil {
		return nil, fmt.Errorf("sweep sessions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT token, user_id, external_id, name, created_at, updated_at, expires_at, active
		 FROM chat_sessions WHERE user_id = ? AND active = 1 ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.ChatSession
	for rows.Next() {
		se, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *se)
	}
	return sessions, rows.Err()
}

// CreateSession persists a new active session and any initial turns.
// expiresAt nil means the session never expires automatically.
func (s *Store) CreateSession(ctx context.Context, userID int64, externalID, name string, expiresAt *time.Time, initial []models.Turn) (*models.ChatSession, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_sessions (token, user_id, external_id, name, created_at, updated_at, expires_at, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
		token, userID, externalID, name, now, now, expiresAt,
	); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	for _, turn := range initial {
		if err := insertTurn(ctx, tx, token, turn); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit session: %w", err)
	}
	return &models.ChatSession{
		Token:      token,
		UserID:     userID,
		ExternalID: externalID,
		Name:       name,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  expiresAt,
		Active:     true,
	}, nil
}

// FindByToken returns the session only if it is owned by the user and
// still active. A miss returns (nil, nil); expired sessions are
// deactivated on access and reported as a miss.
func (s *Store) FindByToken(ctx context.Context, userID int64, token string) (*models.ChatSession, error) {
	if token == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, external_id, name, created_at, updated_at, expires_at, active
		 FROM chat_sessions WHERE token = ? AND user_id = ? AND active = 1`,
		token, userID,
	)
	se, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	now := time.Now().UTC()
	if se.Expired(now) {
		if err := s.Deactivate(ctx, se.Token); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return se, nil
}

// Transcript returns the session's turns in conversational order.
func (s *Store) Transcript(ctx context.Context, token string) ([]models.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, tool_calls, tool_call_id, tool_name, tool_result, created_at
		 FROM turns WHERE session_token = ? ORDER BY id ASC`,
		token,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var (
			t          models.Turn
			content    sql.NullString
			toolCalls  sql.NullString
			toolCallID sql.NullString
			toolName   sql.NullString
			toolResult sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Role, &content, &toolCalls, &toolCallID, &toolName, &toolResult, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if content.Valid {
			c := content.String
			t.Content = &c
		}
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &t.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		t.ToolCallID = toolCallID.String
		t.ToolName = toolName.String
		if toolResult.Valid && toolResult.String != "" {
			t.ToolResult = json.RawMessage(toolResult.String)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// AppendTurns appends the turns in order and bumps the session's
// last-update timestamp, all in one transaction.
func (s *Store) AppendTurns(ctx context.Context, token string, turns []models.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, turn := range turns {
		if err := insertTurn(ctx, tx, token, turn); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = ? WHERE token = ?`, time.Now().UTC(), token,
	); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return tx.Commit()
}

// ReplaceTranscript swaps the session's whole transcript in one
// transaction and bumps the last-update timestamp.
func (s *Store) ReplaceTranscript(ctx context.Context, token string, turns []models.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE session_token = ?`, token); err != nil {
		return fmt.Errorf("clear transcript: %w", err)
	}
	for _, turn := range turns {
		if err := insertTurn(ctx, tx, token, turn); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = ? WHERE token = ?`, time.Now().UTC(), token,
	); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return tx.Commit()
}

// Deactivate clears the active flag; the session is never resumed after.
func (s *Store) Deactivate(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET active = 0, updated_at = ? WHERE token = ?`,
		time.Now().UTC(), token,
	); err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	return nil
}

// CountUserTurns counts user-authored turns; psychological-test sessions
// charge their secondary limit against this count.
func (s *Store) CountUserTurns(ctx context.Context, token string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM turns WHERE session_token = ? AND role = ?`,
		token, models.TurnUser,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count user turns: %w", err)
	}
	return n, nil
}

// SweepExpired deactivates every expired session regardless of owner.
// Used by the background sweeper; the on-access sweep stays authoritative.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET active = 0, updated_at = ?
		 WHERE active = 1 AND expires_at IS NOT NULL AND expires_at <= ?`,
		now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func insertTurn(ctx context.Context, tx *sql.Tx, token string, turn models.Turn) error {
	var toolCalls interface{}
	if len(turn.ToolCalls) > 0 {
		data, err := json.Marshal(turn.ToolCalls)
		if err != nil {
			return fmt.Errorf("encode tool calls: %w", err)
		}
		toolCalls = string(data)
	}
	var toolResult interface{}
	if len(turn.ToolResult) > 0 {
		toolResult = string(turn.ToolResult)
	}
	created := turn.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns (session_token, role, content, tool_calls, tool_call_id, tool_name, tool_result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		token, turn.Role, turn.Content, toolCalls, nullable(turn.ToolCallID), nullable(turn.ToolName), toolResult, created,
	); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.ChatSession, error) {
	var (
		se      models.ChatSession
		expires sql.NullTime
		active  int
	)
	if err := row.Scan(&se.Token, &se.UserID, &se.ExternalID, &se.Name,
		&se.CreatedAt, &se.UpdatedAt, &expires, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if expires.Valid {
		t := expires.Time
		se.ExpiresAt = &t
	}
	se.Active = active != 0
	return &se, nil
}

func newSessionToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
