package provider

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// KindConnectivity covers network failures, timeouts and non-2xx
	// responses from the provider.
	KindConnectivity ErrorKind = iota
	// KindFormat covers response bodies that could not be parsed.
	KindFormat
)

// Error is any failure talking to the AI provider. Both kinds surface to
// the caller the same way; the split exists for logs.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	kind := "connectivity"
	if e.Kind == KindFormat {
		kind = "format"
	}
	return fmt.Sprintf("provider %s error (%s): %v", kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsProviderError reports whether err originated in the provider client.
func IsProviderError(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}
