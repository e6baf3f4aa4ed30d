package quota

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	NotConfigured        ErrorKind = "not_configured"
	InvalidConfiguration ErrorKind = "invalid_configuration"
	Unauthorized         ErrorKind = "unauthorized"
	NetworkFailure       ErrorKind = "network_failure"
	ParseFailure         ErrorKind = "parse_failure"
	APIError             ErrorKind = "api_error"
)

// RefreshError describes one failed refresh cycle. It is transient: the next
// successful cycle clears it.
type RefreshError struct {
	Kind    ErrorKind `json:"kind"`
	Code    int       `json:"code,omitempty"` // HTTP status for APIError
	Message string    `json:"message"`
}

func (e *RefreshError) Error() string {
	return e.Message
}

// Is matches on Kind so callers can write errors.Is(err, quota.ErrUnauthorized).
func (e *RefreshError) Is(target error) bool {
	t, ok := target.(*RefreshError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == 0 || t.Code == e.Code)
}

// Sentinels for errors.Is checks against a kind.
var (
	ErrNotConfigured        = &RefreshError{Kind: NotConfigured, Message: "not configured"}
	ErrInvalidConfiguration = &RefreshError{Kind: InvalidConfiguration, Message: "incomplete configuration"}
	ErrUnauthorized         = &RefreshError{Kind: Unauthorized, Message: "token expired or invalid, update the configuration"}
)

func NewNotConfigured() *RefreshError {
	return &RefreshError{Kind: NotConfigured, Message: "not configured"}
}

func NewInvalidConfiguration() *RefreshError {
	return &RefreshError{Kind: InvalidConfiguration, Message: "incomplete configuration"}
}

func NewUnauthorized() *RefreshError {
	return &RefreshError{Kind: Unauthorized, Message: ErrUnauthorized.Message}
}

func NewNetworkFailure(err error) *RefreshError {
	return &RefreshError{Kind: NetworkFailure, Message: fmt.Sprintf("request failed: %v", err)}
}

func NewParseFailure(err error) *RefreshError {
	return &RefreshError{Kind: ParseFailure, Message: fmt.Sprintf("parse response: %v", err)}
}

func NewAPIError(code int, body string) *RefreshError {
	return &RefreshError{Kind: APIError, Code: code, Message: fmt.Sprintf("API error (%d): %s", code, body)}
}

// AsRefreshError classifies err. Errors that are not already a RefreshError
// are treated as network failures.
func AsRefreshError(err error) *RefreshError {
	if err == nil {
		return nil
	}
	var re *RefreshError
	if errors.As(err, &re) {
		return re
	}
	return NewNetworkFailure(err)
}
