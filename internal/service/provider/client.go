package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mindvault/internal/config"
	"mindvault/internal/models"
)

const defaultTimeout = 30 * time.Second

// Reply is what the provider returns for one exchange: direct text, one
// or more tool-call requests, or both. Classification is set only when a
// psychological-test conversation concludes.
type Reply struct {
	Text           string
	ToolCalls      []models.ToolCall
	Classification string
}

// HasToolCalls reports whether the provider requested tool execution.
func (r *Reply) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// ToolOutput is one executed tool result sent back to the provider.
type ToolOutput struct {
	CallID string          `json:"tool_call_id"`
	Name   string          `json:"tool_name"`
	Output json.RawMessage `json:"output"`
}

// InitialTurn seeds the provider-side conversation at session creation.
type InitialTurn struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Client is a thin HTTP client over the hosted conversational-AI API. It
// performs no retries; the orchestrator owns retry/abort policy.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	botID      string
}

func NewClient(cfg config.ProviderConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		botID:      cfg.BotID,
	}
}

type createSessionRequest struct {
	BotID           string            `json:"bot_id"`
	UserContext     string            `json:"user_context,omitempty"`
	InitialMessages []InitialTurn     `json:"initial_messages,omitempty"`
	Tools           []json.RawMessage `json:"tools,omitempty"`
}

// CreateSession opens a provider-side session carrying the user context
// summary and the published tool schemas, and returns its external id.
func (c *Client) CreateSession(ctx context.Context, userContext string, initial []InitialTurn, toolSchemas []json.RawMessage) (string, error) {
	body := createSessionRequest{
		BotID:           c.botID,
		UserContext:     userContext,
		InitialMessages: initial,
		Tools:           toolSchemas,
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat/session", body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &Error{Kind: KindFormat, Op: "create session", Err: fmt.Errorf("response missing session id")}
	}
	return out.ID, nil
}

// SendUserMessage forwards one new user message. Only the new text is
// sent; the provider keeps the conversational state for the session.
func (c *Client) SendUserMessage(ctx context.Context, externalID, text string) (*Reply, error) {
	body := map[string]interface{}{
		"message": map[string]string{"type": "USER", "content": text},
	}
	return c.exchange(ctx, "send message", sessionPath(externalID, "/message"), body)
}

// SendToolResults submits all executed tool outputs for one assistant
// turn in a single batched call.
func (c *Client) SendToolResults(ctx context.Context, externalID string, outputs []ToolOutput) (*Reply, error) {
	body := map[string]interface{}{"outputs": outputs}
	return c.exchange(ctx, "send tool results", sessionPath(externalID, "/tool-results"), body)
}

// DeleteSession removes the provider-side session. A missing session is
// not an error.
func (c *Client) DeleteSession(ctx context.Context, externalID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, sessionPath(externalID, ""), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindConnectivity, Op: "delete session", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return &Error{Kind: KindConnectivity, Op: "delete session", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return nil
}

type wireReply struct {
	Content   string `json:"content"`
	ToolCalls []struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"tool_calls"`
	Classification string `json:"classification"`
}

func (c *Client) exchange(ctx context.Context, op, path string, body interface{}) (*Reply, error) {
	var wire wireReply
	if err := c.doOp(ctx, op, http.MethodPost, path, body, &wire); err != nil {
		return nil, err
	}
	reply := &Reply{Text: wire.Content, Classification: wire.Classification}
	for _, tc := range wire.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: string(tc.Arguments),
		})
	}
	return reply, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	return c.doOp(ctx, strings.ToLower(method)+" "+path, method, path, body, out)
}

func (c *Client) doOp(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindConnectivity, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{Kind: KindConnectivity, Op: op, Err: fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(data)))}
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindConnectivity, Op: op, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindFormat, Op: op, Err: err}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func sessionPath(externalID, suffix string) string {
	return "/api/v1/chat/session/" + url.PathEscape(externalID) + suffix
}
