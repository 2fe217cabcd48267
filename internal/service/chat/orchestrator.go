package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"mindvault/internal/models"
	"mindvault/internal/service/profile"
	"mindvault/internal/service/provider"
	"mindvault/internal/service/quota"
	"mindvault/internal/service/tools"
)

var (
	ErrEmptyMessage    = errors.New("message is required")
	ErrQuotaExceeded   = errors.New("daily message limit reached")
	ErrSessionLimit    = errors.New("active session limit reached")
	ErrSessionNotFound = errors.New("session not found or expired")
)

// FallbackReply is returned when neither the direct path nor the tool
// loop produced any text.
const FallbackReply = "I'm sorry, I couldn't come up with a response. Please try again."

// Gateway is the provider surface the orchestrator consumes.
type Gateway interface {
	CreateSession(ctx context.Context, userContext string, initial []provider.InitialTurn, toolSchemas []json.RawMessage) (string, error)
	SendUserMessage(ctx context.Context, externalID, text string) (*provider.Reply, error)
	SendToolResults(ctx context.Context, externalID string, outputs []provider.ToolOutput) (*provider.Reply, error)
	DeleteSession(ctx context.Context, externalID string) error
}

// ToolExecutor is the registry surface the orchestrator consumes.
type ToolExecutor interface {
	Execute(ctx context.Context, userID int64, name string, args map[string]interface{}) tools.Result
	Schemas() []json.RawMessage
}

// Orchestrator drives one user message end to end:
// quota check, session resolution, provider round-trips, tool execution,
// transcript persistence. Everything happens synchronously within the
// request; there are no retries at any step.
type Orchestrator struct {
	store    *Store
	ledger   *quota.Ledger
	profiles *profile.Service
	registry ToolExecutor
	gateway  Gateway
}

func NewOrchestrator(store *Store, ledger *quota.Ledger, profiles *profile.Service, registry ToolExecutor, gateway Gateway) *Orchestrator {
	return &Orchestrator{
		store:    store,
		ledger:   ledger,
		profiles: profiles,
		registry: registry,
		gateway:  gateway,
	}
}

// Request is one incoming user message.
type Request struct {
	UserID       int64
	Message      string
	SessionToken string
	PsychTest    bool
}

// Reply is the finished exchange handed back to the API layer.
type Reply struct {
	Text         string
	SessionToken string
	Transcript   []models.Turn
}

// HandleMessage runs the orchestration state machine for one message.
// Transcript turns accumulate in memory and are persisted only once the
// provider has acknowledged the full exchange, so a connectivity failure
// mid-flight leaves no partial transcript behind.
func (o *Orchestrator) HandleMessage(ctx context.Context, req Request) (*Reply, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	role, err := o.ledger.RoleFor(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	// Resolve a supplied session first; its name decides which limit
	// bundle applies.
	var session *models.ChatSession
	if req.SessionToken != "" {
		session, err = o.store.FindByToken(ctx, req.UserID, req.SessionToken)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, ErrSessionNotFound
		}
	}
	isTest := req.PsychTest
	if session != nil {
		isTest = session.IsTest()
	}

	if err := o.checkQuota(ctx, req.UserID, role, session, isTest); err != nil {
		return nil, err
	}

	if session == nil {
		session, err = o.openSession(ctx, req.UserID, role, isTest)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	newTurns := []models.Turn{models.UserTurn(text, now)}

	reply, err := o.gateway.SendUserMessage(ctx, session.ExternalID, text)
	if err != nil {
		return nil, err
	}

	finalText := reply.Text
	classification := reply.Classification

	if reply.HasToolCalls() {
		newTurns = append(newTurns, models.AssistantTurn(reply.Text, reply.ToolCalls, time.Now().UTC()))

		outputs := make([]provider.ToolOutput, 0, len(reply.ToolCalls))
		for _, call := range reply.ToolCalls {
			args := parseToolArguments(call.Arguments)
			result := o.registry.Execute(ctx, req.UserID, call.Name, args)
			raw := result.JSON()
			newTurns = append(newTurns, models.ToolTurn(call.ID, call.Name, raw, time.Now().UTC()))
			outputs = append(outputs, provider.ToolOutput{CallID: call.ID, Name: call.Name, Output: raw})
		}

		// The reply to tool results is terminal; a second round of
		// tool calls within the same message is not supported.
		second, err := o.gateway.SendToolResults(ctx, session.ExternalID, outputs)
		if err != nil {
			return nil, err
		}
		finalText = second.Text
		if second.Classification != "" {
			classification = second.Classification
		}
	}

	if finalText == "" {
		finalText = FallbackReply
	}
	newTurns = append(newTurns, models.AssistantTurn(finalText, nil, time.Now().UTC()))

	if err := o.store.AppendTurns(ctx, session.Token, newTurns); err != nil {
		return nil, err
	}

	if isTest && classification != "" {
		// Terminal transition: the test concluded; the session never
		// re-enters the reuse path.
		if err := o.profiles.SaveClassification(ctx, req.UserID, classification); err != nil {
			return nil, err
		}
		if err := o.store.Deactivate(ctx, session.Token); err != nil {
			return nil, err
		}
	}

	if !isTest {
		if err := o.ledger.Increment(ctx, req.UserID); err != nil {
			return nil, err
		}
	}

	transcript, err := o.store.Transcript(ctx, session.Token)
	if err != nil {
		return nil, err
	}
	return &Reply{Text: finalText, SessionToken: session.Token, Transcript: transcript}, nil
}

func (o *Orchestrator) checkQuota(ctx context.Context, userID int64, role *models.Role, session *models.ChatSession, isTest bool) error {
	if isTest {
		// Test sessions run under the secondary limit and count only
		// user-authored turns; the daily ledger is untouched.
		if session == nil || role.TestMessageLimit <= 0 {
			return nil
		}
		n, err := o.store.CountUserTurns(ctx, session.Token)
		if err != nil {
			return err
		}
		if n >= role.TestMessageLimit {
			return ErrQuotaExceeded
		}
		return nil
	}
	allowed, err := o.ledger.Allowed(ctx, userID)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrQuotaExceeded
	}
	return nil
}

func (o *Orchestrator) openSession(ctx context.Context, userID int64, role *models.Role, isTest bool) (*models.ChatSession, error) {
	active, err := o.store.ActiveSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if role.MaxActiveSessions > 0 && len(active) >= role.MaxActiveSessions {
		return nil, ErrSessionLimit
	}

	summary, err := o.profiles.ContextSummary(ctx, userID)
	if err != nil {
		return nil, err
	}

	externalID, err := o.gateway.CreateSession(ctx, summary, nil, o.registry.Schemas())
	if err != nil {
		// No local session was persisted, so nothing is left active.
		return nil, err
	}

	name := "New Conversation"
	hours := role.SessionDurationHours
	if isTest {
		name = models.TestSessionName
		hours = role.TestDurationHours
	}
	var expiresAt *time.Time
	if hours > 0 {
		t := time.Now().UTC().Add(time.Duration(hours) * time.Hour)
		expiresAt = &t
	}
	return o.store.CreateSession(ctx, userID, externalID, name, expiresAt, nil)
}

// CloseSession deactivates the session and deletes its provider-side
// counterpart. The provider delete is best effort.
func (o *Orchestrator) CloseSession(ctx context.Context, userID int64, token string) error {
	session, err := o.store.FindByToken(ctx, userID, token)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if session.ExternalID != "" {
		if err := o.gateway.DeleteSession(ctx, session.ExternalID); err != nil {
			log.Printf("delete provider session %s failed: %v", session.ExternalID, err)
		}
	}
	return o.store.Deactivate(ctx, session.Token)
}

// parseToolArguments tolerates either a pre-parsed JSON object or a
// JSON-encoded string of one; anything unparseable becomes empty
// arguments rather than a failed request.
func parseToolArguments(raw string) map[string]interface{} {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]interface{}{}
	}
	var direct map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &direct); err == nil {
		return direct
	}
	var nested string
	if err := json.Unmarshal([]byte(raw), &nested); err == nil {
		var inner map[string]interface{}
		if err := json.Unmarshal([]byte(nested), &inner); err == nil {
			return inner
		}
	}
	return map[string]interface{}{}
}
