// Package gateway implements the client side of the gateway WebSocket RPC
// protocol used to reach paired nodes.
package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the gateway package.
var (
	// ErrGatewayUnavailable indicates the gateway (or the node behind it)
	// could not be reached.
	ErrGatewayUnavailable = errors.New("gateway: unavailable")

	// ErrGatewayTimeout indicates the call did not complete within its budget.
	ErrGatewayTimeout = errors.New("gateway: timed out")

	// ErrRejected indicates the gateway answered the request with an
	// explicit error.
	ErrRejected = errors.New("gateway: request rejected")

	// ErrProtocol indicates the gateway sent a frame this client cannot decode.
	ErrProtocol = errors.New("gateway: protocol error")
)

// Error codes sent by the gateway in response error frames.
const (
	CodeTimeout        = "TIMEOUT"
	CodeUnavailable    = "UNAVAILABLE"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeNotFound       = "NOT_FOUND"
)

// RPCError is the decoded error frame of a failed gateway request.
// It matches ErrGatewayTimeout, ErrGatewayUnavailable or ErrRejected
// depending on its code.
type RPCError struct {
	Method  string
	Code    string
	Message string
	Details map[string]any
}

func (e *RPCError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "request failed"
	}
	if e.Code == "" {
		return fmt.Sprintf("gateway: %s: %s", e.Method, msg)
	}
	return fmt.Sprintf("gateway: %s: %s (%s)", e.Method, msg, e.Code)
}

// Is implements errors.Is matching against the package sentinels.
func (e *RPCError) Is(target error) bool {
	switch target {
	case ErrGatewayTimeout:
		return e.Code == CodeTimeout
	case ErrGatewayUnavailable:
		return e.Code == CodeUnavailable
	case ErrRejected:
		return e.Code != CodeTimeout && e.Code != CodeUnavailable
	}
	return false
}
