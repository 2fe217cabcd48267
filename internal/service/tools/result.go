package tools

import (
	"context"
	"encoding/json"
)

// Result is the structured outcome of one tool execution. It is folded
// into the transcript and into the outputs returned to the provider; a
// failed Result never aborts the chat request.
type Result struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Errors  map[string]string      `json:"errors,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

func Success(message string, data map[string]interface{}) Result {
	return Result{Status: StatusSuccess, Message: message, Data: data}
}

func Failure(message string) Result {
	return Result{Status: StatusError, Message: message}
}

func Invalid(errs map[string]string) Result {
	return Result{Status: StatusError, Message: "validation failed", Errors: errs}
}

// JSON renders the result for transcript storage and provider payloads.
func (r Result) JSON() json.RawMessage {
	data, err := json.Marshal(r)
	if err != nil {
		return json.RawMessage(`{"status":"error","message":"result encoding failed"}`)
	}
	return data
}

type userContextKey struct{}

// WithUser attaches the acting user to the context so tool handlers know
// whose profile to mutate.
func WithUser(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userContextKey{}, userID)
}

// UserFromContext retrieves the acting user set by WithUser.
func UserFromContext(ctx context.Context) (int64, bool) {
	val := ctx.Value(userContextKey{})
	if val == nil {
		return 0, false
	}
	userID, ok := val.(int64)
	return userID, ok && userID > 0
}
