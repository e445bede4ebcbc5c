package gateway

import (
	"encoding/json"

	"github.com/google/uuid"
)

// FrameType identifies the kind of frame exchanged with the gateway.
type FrameType string

// Frame types of the gateway protocol.
const (
	FrameRequest  FrameType = "req"
	FrameResponse FrameType = "res"
	FrameEvent    FrameType = "event"
)

// Gateway methods used by this client.
const (
	MethodConnect    = "connect"
	MethodNodeList   = "node.list"
	MethodNodeInvoke = "node.invoke"
)

// ProtocolVersion is the gateway protocol version spoken by this client.
const ProtocolVersion = 3

// Frame is the wire format for every message on the gateway socket.
// Request, response and event frames share one envelope; unused fields
// are omitted.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
}

// ErrorShape is the error object carried by a failed response frame.
type ErrorShape struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ConnectParams is the handshake sent as the first request on a connection.
type ConnectParams struct {
	MinProtocol int         `json:"minProtocol"`
	MaxProtocol int         `json:"maxProtocol"`
	Client      ClientInfo  `json:"client"`
	Auth        *AuthParams `json:"auth,omitempty"`
}

// ClientInfo identifies this client to the gateway.
type ClientInfo struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Mode     string `json:"mode"`
}

// AuthParams carries the shared gateway token.
type AuthParams struct {
	Token string `json:"token,omitempty"`
}

// RandomIdempotencyKey returns a fresh key for one logical gateway request.
// Every call yields a new random UUID; callers must never reuse a key for
// a separate user action.
func RandomIdempotencyKey() string {
	return uuid.NewString()
}

func newRequestID() string {
	return uuid.NewString()
}
