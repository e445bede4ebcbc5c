// Package gatewaytest provides test helpers for the gateway package: an
// in-process WebSocket gateway and a mock Caller.
package gatewaytest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"
	"github.com/flemzord/nodetalk/internal/gateway"
)

// HandlerFunc answers one gateway request. A non-nil ErrorShape is sent as
// a failed response; otherwise payload is encoded as the response payload.
type HandlerFunc func(ctx context.Context, method string, params json.RawMessage) (payload any, errShape *gateway.ErrorShape)

// Request is a request frame received by the Server or the MockCaller.
type Request struct {
	Method string
	Params json.RawMessage
}

// Server is a fake gateway speaking the WebSocket frame protocol.
// The connect handshake is answered automatically and recorded separately.
type Server struct {
	handler HandlerFunc
	srv     *httptest.Server

	mu        sync.Mutex
	requests  []Request
	connects  []gateway.ConnectParams
	authToken string
}

// NewServer starts a fake gateway that is closed when the test ends.
func NewServer(t testing.TB, handler HandlerFunc) *Server {
	t.Helper()
	s := &Server{handler: handler}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serveWS))
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the ws:// endpoint of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// RequireToken makes the handshake fail unless the client presents token.
func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authToken = token
}

// Requests returns the non-handshake requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Connects returns the handshake parameters received so far.
func (s *Server) Connects() []gateway.ConnectParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gateway.ConnectParams, len(s.connects))
	copy(out, s.connects)
	return out
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.CloseNow() }()

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var frame gateway.Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != gateway.FrameRequest {
			continue
		}

		resp := gateway.Frame{Type: gateway.FrameResponse, ID: frame.ID}
		if frame.Method == gateway.MethodConnect {
			var params gateway.ConnectParams
			_ = json.Unmarshal(frame.Params, &params)
			s.mu.Lock()
			s.connects = append(s.connects, params)
			want := s.authToken
			s.mu.Unlock()
			if want != "" && (params.Auth == nil || params.Auth.Token != want) {
				resp.Error = &gateway.ErrorShape{Code: gateway.CodeInvalidRequest, Message: "unauthorized: gateway token mismatch"}
			} else {
				resp.OK = true
				resp.Payload = json.RawMessage(`{"type":"hello-ok"}`)
			}
		} else {
			s.mu.Lock()
			s.requests = append(s.requests, Request{Method: frame.Method, Params: frame.Params})
			s.mu.Unlock()

			// An unrelated event before the response exercises frame skipping.
			event, _ := json.Marshal(gateway.Frame{Type: gateway.FrameEvent, Event: "tick"})
			if err := conn.Write(ctx, websocket.MessageText, event); err != nil {
				return
			}

			payload, errShape := s.handler(ctx, frame.Method, frame.Params)
			if errShape != nil {
				resp.Error = errShape
			} else {
				raw, err := json.Marshal(payload)
				if err != nil {
					resp.Error = &gateway.ErrorShape{Code: "INTERNAL_ERROR", Message: err.Error()}
				} else {
					resp.OK = true
					resp.Payload = raw
				}
			}
		}

		out, _ := json.Marshal(resp)
		if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
			return
		}
	}
}

// MockCaller is a configurable in-memory stand-in for *gateway.Client.
// CallFunc must be set; every call is recorded with its encoded params.
// All methods are safe for concurrent use.
type MockCaller struct {
	CallFunc func(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)

	mu    sync.Mutex
	calls []Request
}

// Call encodes params, records the call and delegates to CallFunc.
func (m *MockCaller) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.calls = append(m.calls, Request{Method: method, Params: raw})
	m.mu.Unlock()
	return m.CallFunc(ctx, method, raw)
}

// Calls returns the recorded calls in order.
func (m *MockCaller) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsTo returns the recorded calls for one method.
func (m *MockCaller) CallsTo(method string) []Request {
	var out []Request
	for _, c := range m.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}
