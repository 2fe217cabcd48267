package models

import (
	"encoding/json"
	"strings"
	"time"
)

// ChatSession groups one conversation between a user and the AI provider.
// Token is the internal identifier handed to clients; ExternalID is the
// provider-side session the conversation is keyed by.
type ChatSession struct {
	Token      string     `json:"session_id"`
	UserID     int64      `json:"user_id"`
	ExternalID string     `json:"-"`
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Active     bool       `json:"active"`
}

// TestSessionName marks a session as a psychological test. Test sessions
// run under the role's secondary limits.
const TestSessionName = "Psychological Test"

// IsTest reports whether the session runs the psychological-test flow.
func (s *ChatSession) IsTest() bool {
	return strings.HasPrefix(s.Name, TestSessionName)
}

// Expired reports whether the session's expiry has passed. Sessions with
// no expiry never expire.
func (s *ChatSession) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

type TurnRole string

const (
	TurnUser      TurnRole = "user"
	TurnAssistant TurnRole = "assistant"
	TurnTool      TurnRole = "tool"
)

// ToolCall is a provider-requested tool invocation recorded on an
// assistant turn. Arguments holds the raw payload as received.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Turn is one transcript entry. Content is nil for assistant turns that
// only request tool calls; ToolCallID/ToolName/ToolResult are set on tool
// turns only. The transcript is append-only and ordered by insertion.
type Turn struct {
	ID         int64           `json:"id,omitempty"`
	Role       TurnRole        `json:"role"`
	Content    *string         `json:"content"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolResult json.RawMessage `json:"tool_result,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// UserTurn builds a user-authored turn.
func UserTurn(content string, now time.Time) Turn {
	return Turn{Role: TurnUser, Content: &content, CreatedAt: now}
}

// AssistantTurn builds an assistant turn; content may be empty when the
// turn only carries tool calls.
func AssistantTurn(content string, calls []ToolCall, now time.Time) Turn {
	t := Turn{Role: TurnAssistant, ToolCalls: calls, CreatedAt: now}
	if content != "" {
		t.Content = &content
	}
	return t
}

// ToolTurn builds a turn recording one tool execution result.
func ToolTurn(callID, name string, result json.RawMessage, now time.Time) Turn {
	return Turn{Role: TurnTool, ToolCallID: callID, ToolName: name, ToolResult: result, CreatedAt: now}
}
