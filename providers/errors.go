package providers

import (
	"errors"
	"fmt"
)

var (
	ErrFieldAlreadySet   = errors.New("field already set")
	ErrNegativeAmount    = errors.New("amount must not be negative")
	ErrCurrencyRequired  = errors.New("currency is required")
	ErrReferenceRequired = errors.New("reference is required")
	ErrTokenRequired     = errors.New("transaction token is required")
	ErrDuplicateCapture  = errors.New("capture already in progress or completed")
)

// GatewayUnreachableError reports a transport failure talking to a gateway API.
type GatewayUnreachableError struct {
	Provider string
	Method   string
	Err      error
}

func (e *GatewayUnreachableError) Error() string {
	return fmt.Sprintf("%s %s: gateway unreachable: %v", e.Provider, e.Method, e.Err)
}

func (e *GatewayUnreachableError) Unwrap() error { return e.Err }

// GatewayError reports an API call that was answered without a success
// acknowledgement. Response holds every field the gateway returned.
type GatewayError struct {
	Provider string
	Method   string
	Response map[string]string
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("%s %s: call failed", e.Provider, e.Method)
	if ack, ok := e.Response["ACK"]; ok {
		msg += " (ACK=" + ack + ")"
	} else {
		msg += " (no ACK)"
	}
	if long := e.Response["L_LONGMESSAGE0"]; long != "" {
		msg += ": " + long
	}
	return msg
}

// MalformedResponseError reports a callback or response that could not be
// decrypted, parsed or verified, or that lacks required fields.
type MalformedResponseError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed response: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: malformed response: %s", e.Provider, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func malformed(provider, reason string, err error) error {
	return &MalformedResponseError{Provider: provider, Reason: reason, Err: err}
}
