// internal/dispatch/errors.go
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrAllProvidersCooldown means routing could not produce an endpoint
	// for the call, either because every candidate was already tried or
	// because nothing serves the class.
	ErrAllProvidersCooldown = errors.New("all providers unavailable or cooling down")
)

// ProviderError wraps an upstream failure with the endpoint and method that
// produced it, so callers and logs can tell providers apart.
type ProviderError struct {
	Err      error
	Endpoint string
	Method   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("RPC error [%s] at %s: %v", e.Method, e.Endpoint, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError attaches endpoint and method context to an upstream error.
func NewProviderError(err error, endpoint, method string) error {
	return &ProviderError{
		Err:      err,
		Endpoint: endpoint,
		Method:   method,
	}
}

// IsNetworkError reports whether the failure happened at the transport level,
// before the node could have durably accepted the request. Only these are
// safe grounds for resubmitting a transaction.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "tls handshake") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") ||
		strings.Contains(errStr, "eof")
}
